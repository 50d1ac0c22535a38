package features

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hmpi-cli/internal/model"
	"github.com/sells-group/hmpi-cli/internal/store"
)

// Cache stores source answers in the store's source cache. A nil Cache, or
// one without a store, calls through on every lookup.
type Cache struct {
	store store.Store
	ttl   time.Duration
}

// NewCache returns a cache over st with entries living for ttl. A nil store
// or a non-positive ttl disables caching.
func NewCache(st store.Store, ttl time.Duration) *Cache {
	if st == nil || ttl <= 0 {
		return nil
	}
	return &Cache{store: st, ttl: ttl}
}

// PointKey is the cache key of a coordinate, rounded to 4 decimals.
func PointKey(loc model.Location) string {
	return fmt.Sprintf("%.4f,%.4f", loc.Latitude, loc.Longitude)
}

// cached returns the cached value for (source, key) or computes it with fn
// and stores the result. Cache failures are logged and never fail the call.
func cached[T any](ctx context.Context, c *Cache, source, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	if c == nil {
		return fn(ctx)
	}
	log := zap.L().With(zap.String("source", source), zap.String("key", key))

	data, err := c.store.GetCachedSource(ctx, source, key)
	if err != nil {
		log.Debug("features: cache read failed", zap.Error(err))
	} else if data != nil {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		log.Debug("features: discarding undecodable cache entry")
	}

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := c.store.SetCachedSource(ctx, source, key, data, c.ttl); err != nil {
			log.Debug("features: cache write failed", zap.Error(err))
		}
	}
	return v, nil
}
