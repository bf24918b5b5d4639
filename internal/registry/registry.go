// Package registry implements the per-host view of a remote engine: cached
// container and image listings, reconciliation of container metadata, and
// the mutating operations that keep the cache honest.
//
// A Registry is bound to one host. Reads go through the cache; a miss calls
// the engine, reconciles the result into the metadata store and caches it.
// Every mutation invalidates all of the host's cached listings, whether or
// not the engine call succeeded.
package registry

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"evalgo.org/dockyard/internal/cache"
	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/routing"
	"evalgo.org/dockyard/models"
)

// DefaultTTL is how long listings stay cached when no TTL is configured.
const DefaultTTL = 15 * time.Second

// Engine is the remote engine API a registry drives. *engine.Client
// implements it.
type Engine interface {
	ListContainers(ctx context.Context, includeStopped bool) ([]engine.ContainerDescriptor, error)
	InspectContainer(ctx context.Context, id string) (json.RawMessage, bool, error)
	ListImages(ctx context.Context, includeAll bool) ([]engine.ImageDescriptor, error)
	CreateContainer(ctx context.Context, opts engine.CreateOptions) (string, bool, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RestartContainer(ctx context.Context, id string) error
	KillContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	PullImage(ctx context.Context, repository string) error
	RemoveImage(ctx context.Context, id string) error
	BuildImage(ctx context.Context, dockerfilePath, tag string) error
	FetchLogs(ctx context.Context, id string) (string, error)
}

// MetadataStore persists container metadata. *storage.Storage implements it.
type MetadataStore interface {
	UpsertContainer(hostID, containerID string, mutate func(*models.ContainerMetadata)) (*models.ContainerMetadata, error)
	GetContainer(hostID, containerID string) (*models.ContainerMetadata, error)
	MarkNotRunningExcept(hostID string, liveIDs []string) (int, error)
	FindByOwnerOrPublic(userID string) ([]string, error)
	DeleteByContainerID(containerID string) (int, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL sets how long listings stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the logger; a host field is added to it.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRouting sets the directory consulted after a restart.
func WithRouting(dir routing.Directory) Option {
	return func(r *Registry) {
		if dir != nil {
			r.routing = dir
		}
	}
}

// Registry is the cached, reconciled view of one host.
type Registry struct {
	host    models.Host
	engine  Engine
	cache   cache.Cache
	store   MetadataStore
	routing routing.Directory
	ttl     time.Duration
	logger  zerolog.Logger

	group singleflight.Group

	// Generations advance on every invalidation. A fetch started under an
	// older generation is neither joined by later readers nor cached.
	containersGen atomic.Uint64
	imagesGen     atomic.Uint64
}

// New creates a registry for host.
func New(host *models.Host, eng Engine, c cache.Cache, store MetadataStore, opts ...Option) *Registry {
	r := &Registry{
		host:    *host,
		engine:  eng,
		cache:   c,
		store:   store,
		routing: routing.Noop{},
		ttl:     DefaultTTL,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("host", host.Name).Logger()
	return r
}

// Host returns the host this registry is bound to.
func (r *Registry) Host() models.Host {
	return r.host
}
