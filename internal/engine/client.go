// Package engine talks to a single remote Docker engine over its HTTP API.
//
// One Client is bound to one host. Every failure is returned as *Error,
// classified as either a connection failure (the engine could not be
// reached in time) or a remote-operation failure (the engine answered with
// an error). Callers branch on that distinction with errors.Is.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/kballard/go-shellquote"
	"github.com/moby/go-archive"

	"evalgo.org/dockyard/internal/metrics"
	"evalgo.org/dockyard/internal/version"
	"evalgo.org/dockyard/models"
)

// Options configures the HTTP transport of a Client.
type Options struct {
	// APIVersion pins the engine API version (e.g. "1.41").
	APIVersion string

	// DialTimeout bounds establishing the TCP connection.
	DialTimeout time.Duration

	// Timeout bounds a whole request, including reading the response.
	Timeout time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		APIVersion:  "1.41",
		DialTimeout: 5 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// CreateOptions describes a container to create and start.
type CreateOptions struct {
	Image   string
	Command string
	// Ports are container port specs ("80", "8080/tcp", "53/udp"),
	// published on ephemeral host ports.
	Ports       []string
	Env         []string
	MemoryBytes int64
	Volumes     []string
	// VolumesFrom is a comma separated list of container names or ids.
	VolumesFrom string
	Privileged  bool
}

// Client is a connection to one remote engine.
type Client struct {
	name string
	cli  *dockerclient.Client
}

// New creates a client for host. No request is made until the first call.
func New(host *models.Host, opts Options) (*Client, error) {
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultOptions().APIVersion
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	// WithHTTPClient goes last so WithHost does not reconfigure the dialer.
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost(host.EngineURL()),
		dockerclient.WithVersion(opts.APIVersion),
		dockerclient.WithUserAgent(version.UserAgent()),
		dockerclient.WithHTTPClient(&http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client for host %s: %w", host.Name, err)
	}

	return &Client{name: host.Name, cli: cli}, nil
}

// Host returns the name of the host this client talks to.
func (c *Client) Host() string {
	return c.name
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.cli.Close()
}

// call times fn, counts its outcome and wraps its error.
func (c *Client) call(op string, fn func() error) error {
	timer := metrics.NewTimer()
	err := c.wrap(op, fn())
	timer.ObserveDurationVec(metrics.EngineCallDuration, op)

	outcome := "ok"
	switch {
	case err == nil:
	case IsConnectionFailure(err):
		outcome = "unreachable"
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
	default:
		outcome = "error"
	}
	metrics.EngineCalls.WithLabelValues(op, outcome).Inc()

	return err
}

// ListContainers lists running containers, or all containers when
// includeStopped is set.
func (c *Client) ListContainers(ctx context.Context, includeStopped bool) ([]ContainerDescriptor, error) {
	var list []container.Summary
	err := c.call("list containers", func() (err error) {
		list, err = c.cli.ContainerList(ctx, container.ListOptions{All: includeStopped})
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]ContainerDescriptor, 0, len(list))
	for _, s := range list {
		out = append(out, containerDescriptor(s))
	}
	return out, nil
}

// InspectContainer returns the engine's inspect document verbatim and
// whether it reports the container as running.
func (c *Client) InspectContainer(ctx context.Context, id string) (json.RawMessage, bool, error) {
	var (
		resp container.InspectResponse
		raw  []byte
	)
	err := c.call("inspect container", func() (err error) {
		resp, raw, err = c.cli.ContainerInspectWithRaw(ctx, id, false)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	running := resp.ContainerJSONBase != nil && resp.State != nil && resp.State.Running
	return json.RawMessage(raw), running, nil
}

// ListImages lists tagged images. Entries without a repository are dropped.
func (c *Client) ListImages(ctx context.Context, includeAll bool) ([]ImageDescriptor, error) {
	var list []image.Summary
	err := c.call("list images", func() (err error) {
		list, err = c.cli.ImageList(ctx, image.ListOptions{All: includeAll})
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]ImageDescriptor, 0, len(list))
	for _, img := range list {
		if d, ok := imageDescriptor(img); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// CreateContainer creates and starts a container, then inspects it again.
// started is true only when the engine reports the container running after
// the start call. The id is returned whenever the create call succeeded.
func (c *Client) CreateContainer(ctx context.Context, opts CreateOptions) (string, bool, error) {
	cfg, hostCfg, err := containerConfig(opts)
	if err != nil {
		return "", false, err
	}

	var id string
	err = c.call("create container", func() error {
		resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
		id = resp.ID
		return err
	})
	if err != nil {
		return "", false, err
	}

	if err := c.StartContainer(ctx, id); err != nil {
		return id, false, err
	}

	_, running, err := c.InspectContainer(ctx, id)
	if err != nil {
		return id, false, err
	}
	return id, running, nil
}

func containerConfig(opts CreateOptions) (*container.Config, *container.HostConfig, error) {
	cfg := &container.Config{
		Image:     opts.Image,
		Env:       opts.Env,
		Tty:       true,
		OpenStdin: true,
	}

	if strings.TrimSpace(opts.Command) != "" {
		args, err := shellquote.Split(opts.Command)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: command %q: %v", ErrInvalidOptions, opts.Command, err)
		}
		cfg.Cmd = args
	}

	hostCfg := &container.HostConfig{
		Privileged: opts.Privileged,
	}
	hostCfg.Memory = opts.MemoryBytes

	if len(opts.Ports) > 0 {
		exposed, bindings, err := nat.ParsePortSpecs(opts.Ports)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: ports: %v", ErrInvalidOptions, err)
		}
		cfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	if len(opts.Volumes) > 0 {
		cfg.Volumes = make(map[string]struct{}, len(opts.Volumes))
		for _, v := range opts.Volumes {
			cfg.Volumes[v] = struct{}{}
		}
	}

	for _, from := range strings.Split(opts.VolumesFrom, ",") {
		if from = strings.TrimSpace(from); from != "" {
			hostCfg.VolumesFrom = append(hostCfg.VolumesFrom, from)
		}
	}

	return cfg, hostCfg, nil
}

// StartContainer starts a created or stopped container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	return c.call("start container", func() error {
		return c.cli.ContainerStart(ctx, id, container.StartOptions{})
	})
}

// StopContainer stops a container using the engine's default grace period.
func (c *Client) StopContainer(ctx context.Context, id string) error {
	return c.call("stop container", func() error {
		return c.cli.ContainerStop(ctx, id, container.StopOptions{})
	})
}

// RestartContainer restarts a container.
func (c *Client) RestartContainer(ctx context.Context, id string) error {
	return c.call("restart container", func() error {
		return c.cli.ContainerRestart(ctx, id, container.StopOptions{})
	})
}

// KillContainer sends SIGKILL to a container.
func (c *Client) KillContainer(ctx context.Context, id string) error {
	return c.call("kill container", func() error {
		return c.cli.ContainerKill(ctx, id, "KILL")
	})
}

// RemoveContainer removes a stopped container.
func (c *Client) RemoveContainer(ctx context.Context, id string) error {
	return c.call("remove container", func() error {
		return c.cli.ContainerRemove(ctx, id, container.RemoveOptions{})
	})
}

// PullImage pulls repository and waits for the pull to finish.
func (c *Client) PullImage(ctx context.Context, repository string) error {
	return c.call("pull image", func() error {
		rc, err := c.cli.ImagePull(ctx, repository, image.PullOptions{})
		if err != nil {
			return err
		}
		defer rc.Close()
		return jsonmessage.DisplayJSONMessagesStream(rc, io.Discard, 0, false, nil)
	})
}

// RemoveImage removes an image by id or reference.
func (c *Client) RemoveImage(ctx context.Context, id string) error {
	return c.call("remove image", func() error {
		_, err := c.cli.ImageRemove(ctx, id, image.RemoveOptions{})
		return err
	})
}

// BuildImage builds the Dockerfile at dockerfilePath and tags the result.
// Only the Dockerfile itself is sent as build context.
func (c *Client) BuildImage(ctx context.Context, dockerfilePath, tag string) error {
	dir, base := filepath.Split(filepath.Clean(dockerfilePath))
	if dir == "" {
		dir = "."
	}

	buildCtx, err := archive.TarWithOptions(dir, &archive.TarOptions{
		IncludeFiles: []string{base},
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", dockerfilePath, err)
	}
	defer buildCtx.Close()

	return c.call("build image", func() error {
		resp, err := c.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
			Tags:       []string{tag},
			Dockerfile: base,
			Remove:     true,
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil)
	})
}

// FetchLogs returns the combined stdout and stderr of a container. TTY
// containers stream plain text; all others are multiplexed.
func (c *Client) FetchLogs(ctx context.Context, id string) (string, error) {
	var out bytes.Buffer
	err := c.call("fetch logs", func() error {
		info, err := c.cli.ContainerInspect(ctx, id)
		if err != nil {
			return err
		}

		rc, err := c.cli.ContainerLogs(ctx, id, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
		})
		if err != nil {
			return err
		}
		defer rc.Close()

		if info.Config != nil && info.Config.Tty {
			_, err = io.Copy(&out, rc)
			return err
		}
		_, err = stdcopy.StdCopy(&out, &out, rc)
		return err
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
