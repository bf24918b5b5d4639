// Package routing defines how Dockyard notifies external routing
// (reverse proxy or load balancer) configurations that depend on a host.
package routing

import "context"

// Config is one external routing configuration. UpdateConfig re-pushes it
// so it picks up the current port assignments of its containers.
type Config interface {
	UpdateConfig(ctx context.Context) error
}

// Directory finds the routing configurations that reference a host.
type Directory interface {
	ConfigsForHost(ctx context.Context, hostID string) ([]Config, error)
}

// Noop is a Directory with no configurations.
type Noop struct{}

// ConfigsForHost implements Directory.
func (Noop) ConfigsForHost(context.Context, string) ([]Config, error) {
	return nil, nil
}

// ConfigFunc adapts a function to Config.
type ConfigFunc func(ctx context.Context) error

// UpdateConfig implements Config.
func (f ConfigFunc) UpdateConfig(ctx context.Context) error {
	return f(ctx)
}

// Static is a Directory backed by a fixed map from host id to configs.
type Static map[string][]Config

// ConfigsForHost implements Directory.
func (s Static) ConfigsForHost(_ context.Context, hostID string) ([]Config, error) {
	return s[hostID], nil
}
