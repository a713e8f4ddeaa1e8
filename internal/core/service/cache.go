package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/record-store/internal/metrics"
	"github.com/rl1809/record-store/internal/port"
)

const (
	RecordsCachePrefix   = "records::"
	MostOrderedCacheKey  = "mostOrderedRecords"
	TracklistCachePrefix = "mbid::"

	tracklistCacheTTL = 12 * time.Hour
)

func cacheNamespace(key string) string {
	if i := strings.Index(key, "::"); i >= 0 {
		return key[:i]
	}
	return key
}

// getCached decodes the value under key. Backend errors and undecodable values are
// logged and reported as a miss.
func getCached[T any](ctx context.Context, cache port.Cache, m *metrics.Metrics, log zerolog.Logger, key string) (T, bool) {
	var v T
	ns := cacheNamespace(key)

	raw, ok, err := cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		m.CacheMisses.WithLabelValues(ns).Inc()
		return v, false
	}
	if !ok {
		m.CacheMisses.WithLabelValues(ns).Inc()
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cached value is corrupt")
		m.CacheMisses.WithLabelValues(ns).Inc()
		return v, false
	}

	m.CacheHits.WithLabelValues(ns).Inc()
	return v, true
}

func setCached(ctx context.Context, cache port.Cache, log zerolog.Logger, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := cache.Set(ctx, key, raw, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// invalidate clears every prefix on a context that outlives the caller's cancellation.
// Failures are logged and counted; the write that triggered them stays committed.
func invalidate(ctx context.Context, cache port.Cache, m *metrics.Metrics, log zerolog.Logger, prefixes ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for _, prefix := range prefixes {
		if err := cache.ClearByPrefix(ctx, prefix); err != nil {
			m.CacheInvalidationFailures.Inc()
			log.Error().Err(err).Str("prefix", prefix).Msg("cache invalidation failed")
		}
	}
}
