package registry

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/metrics"
	"evalgo.org/dockyard/models"
)

// share runs fetch once per flight key and hands its result to every
// caller that joined. The fetch is detached from the caller's cancellation;
// engine timeouts still bound it. Each caller returns as soon as its own ctx
// is done.
func share[T any](ctx context.Context, g *singleflight.Group, key string, fetch func(context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (any, error) {
		return fetch(detached)
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// GetContainers returns the host's containers, running only unless
// includeStopped is set. An unreachable host yields an empty list and a
// nil error, and nothing is cached.
func (r *Registry) GetContainers(ctx context.Context, includeStopped bool) ([]engine.ContainerDescriptor, error) {
	key := r.ContainersKey(includeStopped)

	var list []engine.ContainerDescriptor
	if r.cached(ctx, containersOp, key, &list) {
		return list, nil
	}

	at := r.containersGen.Load()
	return share(ctx, &r.group, flightKey(key, at), func(ctx context.Context) ([]engine.ContainerDescriptor, error) {
		return r.fetchContainers(ctx, key, includeStopped, at)
	})
}

// Refresh reloads the full listing from the engine regardless of what is
// cached, reconciles it and caches the result.
func (r *Registry) Refresh(ctx context.Context) ([]engine.ContainerDescriptor, error) {
	key := r.ContainersKey(true)
	at := r.containersGen.Load()
	return share(ctx, &r.group, flightKey(key, at), func(ctx context.Context) ([]engine.ContainerDescriptor, error) {
		return r.fetchContainers(ctx, key, true, at)
	})
}

func (r *Registry) fetchContainers(ctx context.Context, key string, includeStopped bool, at uint64) ([]engine.ContainerDescriptor, error) {
	list, err := r.engine.ListContainers(ctx, includeStopped)
	if err != nil {
		if engine.IsConnectionFailure(err) {
			r.unreachable(err)
			return []engine.ContainerDescriptor{}, nil
		}
		return nil, err
	}

	// A mutation since the fetch started makes this snapshot older than
	// the metadata store.
	if r.containersGen.Load() != at {
		return list, nil
	}

	if err := r.reconcile(ctx, list); err != nil {
		if engine.IsConnectionFailure(err) {
			r.unreachable(err)
			return []engine.ContainerDescriptor{}, nil
		}
		return nil, err
	}

	r.remember(ctx, key, list, &r.containersGen, at)
	return list, nil
}

func (r *Registry) unreachable(err error) {
	metrics.HostsUnreachable.Inc()
	r.logger.Warn().Err(err).Msg("host unreachable, returning empty listing")
}

// GetContainersForUser is GetContainers filtered to what user may see.
// Staff see everything; other users see public containers and their own.
func (r *Registry) GetContainersForUser(ctx context.Context, user models.User, includeStopped bool) ([]engine.ContainerDescriptor, error) {
	list, err := r.GetContainers(ctx, includeStopped)
	if err != nil {
		return nil, err
	}
	if user.Staff {
		return list, nil
	}

	ids, err := r.store.FindByOwnerOrPublic(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up visible containers: %w", err)
	}
	visible := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		visible[id] = struct{}{}
	}

	filtered := make([]engine.ContainerDescriptor, 0, len(list))
	for _, c := range list {
		if _, ok := visible[c.ShortID()]; ok {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// GetImages returns the host's tagged images. An unreachable host yields
// an empty list and a nil error, and nothing is cached.
func (r *Registry) GetImages(ctx context.Context, includeAll bool) ([]engine.ImageDescriptor, error) {
	key := r.imagesKey(includeAll)

	var list []engine.ImageDescriptor
	if r.cached(ctx, imagesOp, key, &list) {
		return list, nil
	}

	at := r.imagesGen.Load()
	return share(ctx, &r.group, flightKey(key, at), func(ctx context.Context) ([]engine.ImageDescriptor, error) {
		images, err := r.engine.ListImages(ctx, includeAll)
		if err != nil {
			if engine.IsConnectionFailure(err) {
				r.unreachable(err)
				return []engine.ImageDescriptor{}, nil
			}
			return nil, err
		}
		r.remember(ctx, key, images, &r.imagesGen, at)
		return images, nil
	})
}

// Metadata returns the stored record of a container on this host.
func (r *Registry) Metadata(_ context.Context, containerID string) (*models.ContainerMetadata, error) {
	return r.store.GetContainer(r.host.ID, engine.ShortID(containerID))
}

// FetchLogs returns a container's output. It does not touch the cache.
func (r *Registry) FetchLogs(ctx context.Context, containerID string) (string, error) {
	return r.engine.FetchLogs(ctx, containerID)
}
