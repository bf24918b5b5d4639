// Package orchestration pools one engine client and registry per host and
// builds the multi-host views on top of them.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"evalgo.org/dockyard/internal/cache"
	"evalgo.org/dockyard/internal/config"
	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/registry"
	"evalgo.org/dockyard/internal/routing"
	"evalgo.org/dockyard/models"
)

// Store is the persistence the manager needs: host lookups plus the
// container metadata each registry reconciles into.
type Store interface {
	registry.MetadataStore
	GetHost(id string) (*models.Host, error)
	ListHosts(enabledOnly bool) ([]*models.Host, error)
	DeleteHost(id string) (int, error)
}

// EngineClient is a registry.Engine bound to one host connection.
type EngineClient interface {
	registry.Engine
	Close() error
}

// EngineFactory opens an engine client for a host.
type EngineFactory func(host *models.Host, opts engine.Options) (EngineClient, error)

// NewEngineClient is the default EngineFactory.
func NewEngineClient(host *models.Host, opts engine.Options) (EngineClient, error) {
	cli, err := engine.New(host, opts)
	if err != nil {
		return nil, err
	}
	return cli, nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithEngineFactory replaces how engine clients are opened.
func WithEngineFactory(f EngineFactory) Option {
	return func(m *Manager) {
		if f != nil {
			m.factory = f
		}
	}
}

// WithRouting sets the routing directory handed to every registry.
func WithRouting(dir routing.Directory) Option {
	return func(m *Manager) {
		m.routing = dir
	}
}

// WithLogger sets the logger handed to every registry.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithConcurrency bounds how many hosts the aggregate views query at once.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

type pooled struct {
	name     string
	address  string
	client   EngineClient
	registry *registry.Registry
}

// Manager keeps one engine client and registry per host id. An entry is
// rebuilt when the stored host's name or address changes.
//
// Thread-safe for concurrent access.
type Manager struct {
	store       Store
	cache       cache.Cache
	engineOpts  engine.Options
	ttl         time.Duration
	routing     routing.Directory
	logger      zerolog.Logger
	factory     EngineFactory
	concurrency int

	mu      sync.RWMutex
	entries map[string]*pooled
}

// NewManager creates a manager. The cache TTL comes from cacheCfg; engine
// timeouts from engineCfg.
func NewManager(store Store, c cache.Cache, engineCfg config.EngineConfig, cacheCfg config.CacheConfig, opts ...Option) *Manager {
	engineOpts := engine.DefaultOptions()
	if engineCfg.APIVersion != "" {
		engineOpts.APIVersion = engineCfg.APIVersion
	}
	if engineCfg.DialTimeout > 0 {
		engineOpts.DialTimeout = engineCfg.DialTimeout
	}
	if engineCfg.Timeout > 0 {
		engineOpts.Timeout = engineCfg.Timeout
	}

	m := &Manager{
		store:       store,
		cache:       c,
		engineOpts:  engineOpts,
		ttl:         cacheCfg.TTL,
		routing:     routing.Noop{},
		logger:      zerolog.Nop(),
		factory:     NewEngineClient,
		concurrency: 8,
		entries:     make(map[string]*pooled),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the registry of a stored host, opening a client on
// first use.
func (m *Manager) Registry(_ context.Context, hostID string) (*registry.Registry, error) {
	host, err := m.store.GetHost(hostID)
	if err != nil {
		return nil, err
	}
	return m.registryFor(host)
}

func (m *Manager) registryFor(host *models.Host) (*registry.Registry, error) {
	address := host.Address()

	m.mu.RLock()
	entry, ok := m.entries[host.ID]
	m.mu.RUnlock()
	if ok && entry.address == address && entry.name == host.Name {
		return entry.registry, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have rebuilt the entry meanwhile.
	if entry, ok := m.entries[host.ID]; ok {
		if entry.address == address && entry.name == host.Name {
			return entry.registry, nil
		}
		m.closeEntry(host.ID, entry)
	}

	cli, err := m.factory(host, m.engineOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client for host %s: %w", host.Name, err)
	}

	reg := registry.New(host, cli, m.cache, m.store,
		registry.WithTTL(m.ttl),
		registry.WithLogger(m.logger),
		registry.WithRouting(m.routing),
	)
	m.entries[host.ID] = &pooled{name: host.Name, address: address, client: cli, registry: reg}
	m.logger.Debug().Str("host", host.Name).Str("address", address).Msg("opened engine client")
	return reg, nil
}

// closeEntry must be called with m.mu held.
func (m *Manager) closeEntry(hostID string, entry *pooled) {
	if err := entry.client.Close(); err != nil {
		m.logger.Warn().Err(err).Str("host", entry.name).Msg("failed to close engine client")
	}
	delete(m.entries, hostID)
}

// Forget closes and drops the pooled client of a host, if any.
func (m *Manager) Forget(hostID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[hostID]; ok {
		m.closeEntry(hostID, entry)
	}
}

// Count returns the number of pooled hosts.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// DeleteHost removes a host with all of its container metadata, drops its
// cached listings and closes its client. No engine client is needed, so a
// host whose engine cannot be reached is still deletable. It returns how
// many metadata records were removed.
func (m *Manager) DeleteHost(ctx context.Context, hostID string) (int, error) {
	host, err := m.store.GetHost(hostID)
	if err != nil {
		return 0, err
	}

	removed, err := m.store.DeleteHost(hostID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete host %s: %w", hostID, err)
	}

	// A pooled registry also cancels caching by its in-flight fetches.
	m.mu.RLock()
	entry, ok := m.entries[hostID]
	m.mu.RUnlock()
	if ok && entry.name == host.Name {
		entry.registry.InvalidateAll(ctx)
	} else {
		registry.New(host, nil, m.cache, m.store, registry.WithLogger(m.logger)).InvalidateAll(ctx)
	}

	m.Forget(hostID)
	m.logger.Info().Str("host", host.Name).Int("containers", removed).Msg("deleted host")
	return removed, nil
}

// Close closes every pooled client.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for hostID, entry := range m.entries {
		if err := entry.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client for host %s: %w", entry.name, err))
		}
		delete(m.entries, hostID)
	}
	return errors.Join(errs...)
}
