package registry

import (
	"context"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/metrics"
	"evalgo.org/dockyard/models"
)

// reconcile mirrors a fresh listing into the metadata store. Each listed
// container is inspected and upserted; every record of the host that was
// not seen is then marked not running. Records are never deleted here.
//
// A connection failure while inspecting aborts the pass and is returned so
// the caller can treat the host as unreachable. Any other failure is logged
// and skipped.
func (r *Registry) reconcile(ctx context.Context, list []engine.ContainerDescriptor) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	seen := make([]string, 0, len(list))
	for _, c := range list {
		shortID := c.ShortID()

		raw, running, err := r.engine.InspectContainer(ctx, c.ID)
		switch {
		case err == nil:
		case engine.IsConnectionFailure(err):
			return err
		case engine.IsNotFound(err):
			// Removed between list and inspect; it is marked stopped below.
			r.logger.Debug().Str("container", shortID).Msg("container vanished before inspect")
			continue
		default:
			r.logger.Warn().Err(err).Str("container", shortID).Msg("inspect failed, keeping previous metadata")
			seen = append(seen, shortID)
			continue
		}

		_, err = r.store.UpsertContainer(r.host.ID, shortID, func(m *models.ContainerMetadata) {
			m.IsRunning = running
			m.RawMeta = raw
		})
		if err != nil {
			r.logger.Error().Err(err).Str("container", shortID).Msg("failed to store container metadata")
		}
		seen = append(seen, shortID)
	}

	marked, err := r.store.MarkNotRunningExcept(r.host.ID, seen)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to mark vanished containers")
		return nil
	}
	if marked > 0 {
		metrics.ContainersMarkedStopped.Add(float64(marked))
		r.logger.Info().Int("count", marked).Msg("marked vanished containers as not running")
	}
	return nil
}
