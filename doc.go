// Package dockyard manages containers across a fleet of remote Docker
// engines.
//
// # Overview
//
// Dockyard keeps a registry of hosts, each a remote container engine
// reachable over TCP. For every host it caches the container and image
// listings, mirrors container metadata (description, ownership, the last
// inspect document) in a local bbolt database, and exposes the engine's
// lifecycle operations over a REST API.
//
// The system consists of four layers:
//   - Engine client: one Docker SDK client per host (internal/engine)
//   - Host registry: cached reads, reconciliation and cache-invalidating
//     mutations for one host (internal/registry)
//   - Host pool: per-host registries plus the multi-host views and the
//     background refresher (internal/orchestration)
//   - API server: Echo REST endpoints (internal/api)
//
// # Architecture
//
//	┌─────────────────┐
//	│  API Server     │
//	│  (Echo REST)    │
//	└────────┬────────┘
//	         │
//	┌────────▼────────┐       ┌─────────────────┐
//	│  Host Pool      │──────►│  Cache          │
//	│  + Registries   │       │ (memory/Redis)  │
//	└───┬─────────┬───┘       └─────────────────┘
//	    │         │
//	┌───▼─────┐ ┌─▼───────────────┐
//	│ Engines │ │ Metadata store  │
//	│ (TCP)   │ │ (bbolt)         │
//	└─────────┘ └─────────────────┘
//
// # Caching
//
// Listings are cached per host under containers:<host>:<variant> and
// images:<host>[:all] for cache.ttl. Every mutation drops all of the
// host's keys, whether or not the engine call succeeded. An unreachable
// host reads as an empty list and nothing is cached.
//
// # Usage
//
// Register a host and start the API server:
//
//	dockyard hosts add web-01 10.0.0.5
//	dockyard server --config configs/config.yaml
//
// Reconcile every enabled host once:
//
//	dockyard sync
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (config.yaml in ., ./configs, $HOME/.dockyard, /etc/dockyard)
//   - Environment variables (DY_ prefix, e.g. DY_CACHE_BACKEND=redis)
//   - .env file
//
// Run "dockyard config init" for a commented starting point.
//
// # API Endpoints
//
// Hosts (mutations require X-User-Staff: true):
//   - GET    /api/v1/hosts               - List hosts (paginated)
//   - POST   /api/v1/hosts               - Register host
//   - GET    /api/v1/hosts/:id           - Get host
//   - PUT    /api/v1/hosts/:id           - Update host
//   - DELETE /api/v1/hosts/:id           - Delete host and its metadata
//
// Containers on a host (filtered by X-User-ID unless staff):
//   - GET    /api/v1/hosts/:id/containers?all=       - List containers
//   - POST   /api/v1/hosts/:id/containers            - Create and start
//   - GET    /api/v1/hosts/:id/containers/:cid       - Stored metadata
//   - POST   /api/v1/hosts/:id/containers/:cid/start - Start (also stop, restart, kill)
//   - DELETE /api/v1/hosts/:id/containers/:cid       - Kill and remove
//   - GET    /api/v1/hosts/:id/containers/:cid/logs  - Output as text
//
// Images on a host:
//   - GET    /api/v1/hosts/:id/images?all=  - List tagged images
//   - POST   /api/v1/hosts/:id/images/pull  - Pull
//   - POST   /api/v1/hosts/:id/images/build - Build a Dockerfile
//   - DELETE /api/v1/hosts/:id/images/:iid  - Remove
//
// Across enabled hosts:
//   - GET /api/v1/containers - Running containers by host
//   - GET /api/v1/images     - Images by host
//
// # Development
//
// Run tests:
//
//	go test ./...
//
// Build the binary:
//
//	go build -o dockyard ./cmd/dockyard
package dockyard
