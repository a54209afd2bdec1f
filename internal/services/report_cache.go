package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// ReportCache keeps rendered report JSON in Redis with a short TTL. The
// posting and reversal engines invalidate the touched year after commit.
// Works with a nil client: every operation becomes a no-op miss, so report
// correctness never depends on Redis being up.
type ReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReportCache(rdb *redis.Client) *ReportCache {
	viper.SetDefault("reports.cache_ttl", 5*time.Minute)
	return &ReportCache{
		rdb: rdb,
		ttl: viper.GetDuration("reports.cache_ttl"),
	}
}

func monthlyCacheKey(year int) string    { return fmt.Sprintf("reports:monthly:%d", year) }
func netSurplusCacheKey(year int) string { return fmt.Sprintf("reports:netsurplus:%d", year) }

// GetJSON loads a cached report into v. Returns false on miss, decode
// failure, or when Redis is unavailable.
func (c *ReportCache) GetJSON(ctx context.Context, key string, v any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("[CACHE] Corrupt cache entry %s dropped: %v", key, err)
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

// SetJSON stores a report. Failures are logged and ignored.
func (c *ReportCache) SetJSON(ctx context.Context, key string, v any) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("[CACHE] Failed to cache %s: %v", key, err)
	}
}

// InvalidateYear drops the cached reports for the year a posting or reversal
// touched.
func (c *ReportCache) InvalidateYear(ctx context.Context, year int) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, monthlyCacheKey(year), netSurplusCacheKey(year)).Err(); err != nil {
		log.Printf("[CACHE] Failed to invalidate reports for %d: %v", year, err)
	}
}
