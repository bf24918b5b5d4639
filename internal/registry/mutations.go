package registry

import (
	"context"
	"fmt"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/models"
)

// CreateRequest describes a container to create on the host.
type CreateRequest struct {
	engine.CreateOptions

	Description string
	Owner       models.Visibility
}

// CreateResult is the outcome of CreateContainer.
type CreateResult struct {
	// ID is the full engine id; empty when the engine refused the create.
	ID string `json:"id"`

	// Started reports whether the container was running after start.
	Started bool `json:"started"`

	// Metadata is the stored record, only set when Started.
	Metadata *models.ContainerMetadata `json:"metadata,omitempty"`
}

// mutate runs fn and invalidates the host cache afterwards, even when fn
// fails or ctx is cancelled.
func (r *Registry) mutate(ctx context.Context, op string, fn func() error) error {
	defer r.InvalidateAll(context.WithoutCancel(ctx))

	if err := fn(); err != nil {
		r.logger.Error().Err(err).Str("op", op).Msg("engine operation failed")
		return err
	}
	return nil
}

// CreateContainer creates and starts a container. Metadata carrying the
// description and owner is written only when the container is running
// after start.
func (r *Registry) CreateContainer(ctx context.Context, req CreateRequest) (CreateResult, error) {
	var result CreateResult
	err := r.mutate(ctx, "create container", func() error {
		id, started, err := r.engine.CreateContainer(ctx, req.CreateOptions)
		result.ID = id
		if err != nil {
			return err
		}
		if !started {
			r.logger.Warn().Str("container", engine.ShortID(id)).Str("image", req.Image).Msg("container is not running after start")
			return nil
		}
		result.Started = true

		record, err := r.store.UpsertContainer(r.host.ID, engine.ShortID(id), func(m *models.ContainerMetadata) {
			m.Description = req.Description
			m.Visibility = req.Owner
			m.IsRunning = true
		})
		if err != nil {
			return fmt.Errorf("failed to store metadata for container %s: %w", engine.ShortID(id), err)
		}
		result.Metadata = record
		return nil
	})
	return result, err
}

// StartContainer starts a stopped container.
func (r *Registry) StartContainer(ctx context.Context, id string) error {
	return r.mutate(ctx, "start container", func() error {
		return r.engine.StartContainer(ctx, id)
	})
}

// StopContainer stops a running container.
func (r *Registry) StopContainer(ctx context.Context, id string) error {
	return r.mutate(ctx, "stop container", func() error {
		return r.engine.StopContainer(ctx, id)
	})
}

// KillContainer kills a running container.
func (r *Registry) KillContainer(ctx context.Context, id string) error {
	return r.mutate(ctx, "kill container", func() error {
		return r.engine.KillContainer(ctx, id)
	})
}

// RestartContainer restarts a container, reloads the running listing so
// the new port assignments are cached and mirrored, and asks every routing
// configuration that references the host to update itself.
func (r *Registry) RestartContainer(ctx context.Context, id string) error {
	err := r.mutate(ctx, "restart container", func() error {
		return r.engine.RestartContainer(ctx, id)
	})
	if err != nil {
		return err
	}

	if _, err := r.GetContainers(ctx, false); err != nil {
		r.logger.Warn().Err(err).Msg("failed to reload containers after restart")
	}
	r.notifyRouting(ctx)
	return nil
}

func (r *Registry) notifyRouting(ctx context.Context) {
	configs, err := r.routing.ConfigsForHost(ctx, r.host.ID)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to look up routing configurations")
		return
	}
	for _, cfg := range configs {
		if err := cfg.UpdateConfig(ctx); err != nil {
			r.logger.Error().Err(err).Msg("failed to update routing configuration")
		}
	}
}

// DestroyContainer kills and removes a container and deletes its metadata.
// A container that is already stopped is removed without error.
func (r *Registry) DestroyContainer(ctx context.Context, id string) error {
	shortID := engine.ShortID(id)
	return r.mutate(ctx, "destroy container", func() error {
		if err := r.engine.KillContainer(ctx, id); err != nil && !engine.IsConflict(err) {
			return err
		}
		if err := r.engine.RemoveContainer(ctx, id); err != nil {
			return err
		}
		if _, err := r.store.DeleteByContainerID(shortID); err != nil {
			return fmt.Errorf("failed to delete metadata for container %s: %w", shortID, err)
		}
		return nil
	})
}

// ImportImage pulls repository onto the host.
func (r *Registry) ImportImage(ctx context.Context, repository string) error {
	return r.mutate(ctx, "import image", func() error {
		return r.engine.PullImage(ctx, repository)
	})
}

// BuildImage builds a Dockerfile on the host and tags the result.
func (r *Registry) BuildImage(ctx context.Context, dockerfilePath, tag string) error {
	return r.mutate(ctx, "build image", func() error {
		return r.engine.BuildImage(ctx, dockerfilePath, tag)
	})
}

// RemoveImage removes an image from the host.
func (r *Registry) RemoveImage(ctx context.Context, id string) error {
	return r.mutate(ctx, "remove image", func() error {
		return r.engine.RemoveImage(ctx, id)
	})
}
