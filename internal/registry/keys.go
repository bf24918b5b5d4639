package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync/atomic"

	"evalgo.org/dockyard/internal/cache"
	"evalgo.org/dockyard/internal/metrics"
)

const (
	containersOp = "containers"
	imagesOp     = "images"
)

// ContainersKey is the cache key of the container listing; variant is the
// includeStopped flag.
func (r *Registry) ContainersKey(variant bool) string {
	sum := sha256.Sum224([]byte(r.host.Name + "|" + strconv.FormatBool(variant)))
	return containersOp + ":" + r.host.Name + ":" + hex.EncodeToString(sum[:])
}

// ImagesKey is the cache key of the default image listing.
func (r *Registry) ImagesKey() string {
	return imagesOp + ":" + r.host.Name
}

func (r *Registry) imagesKey(includeAll bool) string {
	if includeAll {
		return r.ImagesKey() + ":all"
	}
	return r.ImagesKey()
}

// InvalidateContainerCache drops every container listing of the host.
func (r *Registry) InvalidateContainerCache(ctx context.Context) {
	r.containersGen.Add(1)
	pattern := containersOp + ":" + cache.EscapeGlob(r.host.Name) + ":*"
	n, err := r.cache.DeletePattern(ctx, pattern)
	if err != nil {
		r.logger.Warn().Err(err).Str("pattern", pattern).Msg("failed to invalidate container cache")
		return
	}
	metrics.CacheInvalidations.Add(float64(n))
}

// InvalidateImageCache drops every image listing of the host.
func (r *Registry) InvalidateImageCache(ctx context.Context) {
	r.imagesGen.Add(1)
	if err := r.cache.Delete(ctx, r.ImagesKey()); err != nil {
		r.logger.Warn().Err(err).Str("key", r.ImagesKey()).Msg("failed to invalidate image cache")
	}
	pattern := cache.EscapeGlob(r.ImagesKey()) + ":*"
	n, err := r.cache.DeletePattern(ctx, pattern)
	if err != nil {
		r.logger.Warn().Err(err).Str("pattern", pattern).Msg("failed to invalidate image cache")
		return
	}
	metrics.CacheInvalidations.Add(float64(n))
}

// InvalidateAll drops every cached listing of the host.
func (r *Registry) InvalidateAll(ctx context.Context) {
	r.InvalidateContainerCache(ctx)
	r.InvalidateImageCache(ctx)
}

// cached decodes the value under key into dst. A backend error or an
// undecodable value counts as a miss.
func (r *Registry) cached(ctx context.Context, op, key string, dst any) bool {
	data, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues(op, "error").Inc()
		r.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	case !ok:
		metrics.CacheRequests.WithLabelValues(op, "miss").Inc()
		r.logger.Debug().Str("key", key).Msg("cache miss")
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheRequests.WithLabelValues(op, "error").Inc()
		r.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return false
	}
	metrics.CacheRequests.WithLabelValues(op, "hit").Inc()
	r.logger.Debug().Str("key", key).Msg("cache hit")
	return true
}

// flightKey scopes a cache key to the generation it is fetched under.
func flightKey(key string, gen uint64) string {
	return key + "@" + strconv.FormatUint(gen, 10)
}

// remember caches v under key unless the listing was invalidated after the
// fetch started at generation at.
func (r *Registry) remember(ctx context.Context, key string, v any, gen *atomic.Uint64, at uint64) {
	if gen.Load() != at {
		r.logger.Debug().Str("key", key).Msg("listing invalidated during fetch, not caching")
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to encode cache entry")
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}

	// An invalidation landing between the check and the write has already
	// run its delete.
	if gen.Load() != at {
		if err := r.cache.Delete(ctx, key); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("failed to drop stale cache entry")
		}
	}
}
