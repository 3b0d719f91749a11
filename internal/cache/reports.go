package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"

	"github.com/trafficpulse/livemap/internal/domain"
	"github.com/trafficpulse/livemap/internal/metrics"
)

// Reports caches the latest good consistency report per query key: an
// in-memory LRU in front of an optional Redis tier. Redis being absent or
// down degrades to memory only; it never fails a read or write.
type Reports struct {
	mem *Memory
	rdb *redis.Client // nil disables the tier
	ttl time.Duration
	log *slog.Logger
}

// NewReports wires the two tiers together. rdb may be nil.
func NewReports(mem *Memory, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Reports {
	if mem == nil {
		mem = NewMemory(DefaultCapacity, DefaultTTL)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reports{mem: mem, rdb: rdb, ttl: ttl, log: log}
}

// Key renders the cache key for one query's parameters.
func Key(center orb.Point, radiusKm float64) string {
	return fmt.Sprintf("livemap:report:%.5f,%.5f:%.1f", center[0], center[1], radiusKm)
}

// Put stores a report in both tiers. Failures are logged, never returned: the
// cache is an accelerator, not a store of record.
func (c *Reports) Put(ctx context.Context, key string, report domain.ConsistencyReport) {
	data, err := json.Marshal(report)
	if err != nil {
		c.log.Error("cache_marshal_failed", "key", key, "error", err)
		return
	}

	c.mem.Put(key, data)

	if c.rdb != nil {
		if err := c.rdb.SetEx(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("cache_redis_write_failed", "key", key, "error", err)
		}
	}
}

// Get looks a report up, memory first, then Redis. A Redis hit backfills the
// memory tier.
func (c *Reports) Get(ctx context.Context, key string) (domain.ConsistencyReport, bool) {
	if data, ok := c.mem.Get(key); ok {
		if report, ok := decode(data, c.log, key); ok {
			metrics.CacheHitsTotal.WithLabelValues("memory").Inc()
			return report, true
		}
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			// plain miss
		case err != nil:
			c.log.Warn("cache_redis_read_failed", "key", key, "error", err)
		default:
			if report, ok := decode(data, c.log, key); ok {
				c.mem.Put(key, data)
				metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
				return report, true
			}
		}
	}

	metrics.CacheMissesTotal.Inc()
	return domain.ConsistencyReport{}, false
}

// Stats returns the memory tier's counters.
func (c *Reports) Stats() Stats {
	return c.mem.Stats()
}

func decode(data []byte, log *slog.Logger, key string) (domain.ConsistencyReport, bool) {
	var report domain.ConsistencyReport
	if err := json.Unmarshal(data, &report); err != nil {
		log.Warn("cache_decode_failed", "key", key, "error", err)
		return domain.ConsistencyReport{}, false
	}
	return report, true
}
