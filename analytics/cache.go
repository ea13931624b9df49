package analytics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"postviews/api/models"
)

// ReportCache memoizes aggregate reports. Any tracking write calls
// Invalidate, which bumps a generation counter folded into every key so
// older entries become unreachable and age out of the cache.
type ReportCache struct {
	cache      *ristretto.Cache[string, []models.AggregatedPeriod]
	generation atomic.Uint64
}

func NewReportCache(maxEntries int64) (*ReportCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []models.AggregatedPeriod]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}
	return &ReportCache{cache: c}, nil
}

// Key names a report under the current generation. Take the key before
// running the query so a write that lands during the query leaves the
// result stored under a generation nobody reads any more.
func (c *ReportCache) Key(start, end time.Time, g Granularity, contentID string) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s",
		c.generation.Load(),
		start.UTC().Format(LabelLayout),
		end.UTC().Format(LabelLayout),
		g,
		contentID,
	)
}

// Get returns the report stored under key, if any. The returned slice is
// shared and must not be modified.
func (c *ReportCache) Get(key string) ([]models.AggregatedPeriod, bool) {
	return c.cache.Get(key)
}

func (c *ReportCache) Set(key string, periods []models.AggregatedPeriod) {
	c.cache.Set(key, periods, 1)
}

// Invalidate drops every cached report.
func (c *ReportCache) Invalidate() {
	c.generation.Add(1)
}

// Wait blocks until buffered writes are visible to Get.
func (c *ReportCache) Wait() {
	c.cache.Wait()
}

func (c *ReportCache) Close() {
	c.cache.Close()
}
