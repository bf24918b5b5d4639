package engine

import (
	"context"
	"errors"
	"fmt"
	"net"

	cerrdefs "github.com/containerd/errdefs"
	dockerclient "github.com/docker/docker/client"
)

var (
	// ErrConnectionFailure means the engine could not be reached (refused,
	// unresolvable, timed out). Reads degrade on it; writes surface it.
	ErrConnectionFailure = errors.New("engine unreachable")

	// ErrRemoteOperation means the engine answered with an error.
	ErrRemoteOperation = errors.New("engine operation failed")

	// ErrInvalidOptions is returned before any request is made when create
	// options cannot be translated (unbalanced quotes, bad port specs).
	ErrInvalidOptions = errors.New("invalid container options")
)

// Error describes a failed engine call and carries enough context to name
// the host and operation to the caller.
type Error struct {
	Host string
	Op   string
	Err  error
	kind error
}

// NewError builds an *Error of the given kind (ErrConnectionFailure or
// ErrRemoteOperation) for code that stands in for a Client.
func NewError(host, op string, kind, err error) *Error {
	return &Error{Host: host, Op: op, Err: err, kind: kind}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s on host %s: %v", e.Op, e.Host, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.kind, e.Err}
}

// Kind returns ErrConnectionFailure or ErrRemoteOperation, or
// context.Canceled when the caller gave up before the engine answered.
func (e *Error) Kind() error {
	return e.kind
}

// IsConnectionFailure reports whether err is (or wraps) a connection failure.
func IsConnectionFailure(err error) bool {
	return errors.Is(err, ErrConnectionFailure)
}

// IsNotFound reports whether the engine said the object does not exist.
func IsNotFound(err error) bool {
	return cerrdefs.IsNotFound(err)
}

// IsConflict reports whether the engine refused because of object state,
// e.g. killing a container that is not running.
func IsConflict(err error) bool {
	return cerrdefs.IsConflict(err)
}

func (c *Client) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Host: c.name, Op: op, Err: err, kind: classify(err)}
}

func classify(err error) error {
	// The transport reports a cancelled request as a net.Error too.
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if dockerclient.IsErrConnectionFailed(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectionFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrConnectionFailure
	}
	return ErrRemoteOperation
}
