package commands

import (
	"errors"
	"fmt"

	"evalgo.org/dockyard/internal/cache"
	"evalgo.org/dockyard/internal/config"
	"evalgo.org/dockyard/internal/log"
	"evalgo.org/dockyard/internal/orchestration"
	"evalgo.org/dockyard/internal/storage"
)

// runtime holds the long lived pieces every command that touches hosts
// needs: the metadata store, the listing cache and the host pool.
type runtime struct {
	store   *storage.Storage
	cache   cache.Cache
	manager *orchestration.Manager
}

func openRuntime(c *config.Config, opts ...orchestration.Option) (*runtime, error) {
	store, err := storage.New(c.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	hostCache, err := cache.New(c.Cache)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	opts = append([]orchestration.Option{
		orchestration.WithLogger(log.WithComponent("orchestration")),
	}, opts...)

	return &runtime{
		store:   store,
		cache:   hostCache,
		manager: orchestration.NewManager(store, hostCache, c.Engine, c.Cache, opts...),
	}, nil
}

// Close releases the pool, the cache and the store, in that order.
func (r *runtime) Close() error {
	return errors.Join(
		r.manager.Close(),
		r.cache.Close(),
		r.store.Close(),
	)
}
