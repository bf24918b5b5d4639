package orchestration

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/registry"
	"evalgo.org/dockyard/models"
)

// HostContainers is one host's share of an aggregate container view.
type HostContainers struct {
	Host       models.Host                  `json:"host"`
	Containers []engine.ContainerDescriptor `json:"containers"`
	Error      string                       `json:"error,omitempty"`
}

// HostImages is one host's share of an aggregate image view.
type HostImages struct {
	Host   models.Host              `json:"host"`
	Images []engine.ImageDescriptor `json:"images"`
	Error  string                   `json:"error,omitempty"`
}

// RunningContainers returns the running containers user may see on every
// enabled host, in host name order. A host that fails is reported with an
// empty list and its error; unreachable hosts are simply empty.
func (m *Manager) RunningContainers(ctx context.Context, user models.User) ([]HostContainers, error) {
	hosts, err := m.store.ListHosts(true)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}

	out := make([]HostContainers, len(hosts))
	m.eachHost(ctx, hosts, func(ctx context.Context, i int, reg *registry.Registry, err error) {
		out[i] = HostContainers{Host: *hosts[i], Containers: []engine.ContainerDescriptor{}}
		if err == nil {
			var list []engine.ContainerDescriptor
			if list, err = reg.GetContainersForUser(ctx, user, false); err == nil {
				out[i].Containers = list
				return
			}
		}
		out[i].Error = err.Error()
	})
	return out, nil
}

// ImagesByHost returns the tagged images of every enabled host, in host
// name order, with the same failure handling as RunningContainers.
func (m *Manager) ImagesByHost(ctx context.Context) ([]HostImages, error) {
	hosts, err := m.store.ListHosts(true)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}

	out := make([]HostImages, len(hosts))
	m.eachHost(ctx, hosts, func(ctx context.Context, i int, reg *registry.Registry, err error) {
		out[i] = HostImages{Host: *hosts[i], Images: []engine.ImageDescriptor{}}
		if err == nil {
			var list []engine.ImageDescriptor
			if list, err = reg.GetImages(ctx, false); err == nil {
				out[i].Images = list
				return
			}
		}
		out[i].Error = err.Error()
	})
	return out, nil
}

// RefreshAll reloads and reconciles the full listing of every enabled host.
// It returns how many hosts failed.
func (m *Manager) RefreshAll(ctx context.Context) (int, error) {
	hosts, err := m.store.ListHosts(true)
	if err != nil {
		return 0, fmt.Errorf("failed to list hosts: %w", err)
	}

	var (
		mu     sync.Mutex
		failed int
	)
	m.eachHost(ctx, hosts, func(ctx context.Context, i int, reg *registry.Registry, err error) {
		if err == nil {
			_, err = reg.Refresh(ctx)
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("host", hosts[i].Name).Msg("refresh failed")
			mu.Lock()
			failed++
			mu.Unlock()
		}
	})
	return failed, nil
}

// eachHost runs fn for every host with at most m.concurrency in flight.
// fn receives the registry or the error that prevented opening it.
func (m *Manager) eachHost(ctx context.Context, hosts []*models.Host, fn func(ctx context.Context, i int, reg *registry.Registry, err error)) {
	var g errgroup.Group
	g.SetLimit(m.concurrency)

	for i, host := range hosts {
		g.Go(func() error {
			reg, err := m.registryFor(host)
			fn(ctx, i, reg, err)
			return nil
		})
	}
	_ = g.Wait()
}
