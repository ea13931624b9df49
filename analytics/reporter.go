package analytics

import (
	"context"
	"fmt"
	"time"

	"postviews/api/metrics"
	"postviews/api/models"
)

// Reporter serves period reports, from cache when possible.
type Reporter struct {
	querier PeriodQuerier
	cache   *ReportCache
	metrics *metrics.Metrics
}

// NewReporter builds a Reporter. cache may be nil to disable caching.
func NewReporter(q PeriodQuerier, cache *ReportCache, m *metrics.Metrics) *Reporter {
	return &Reporter{querier: q, cache: cache, metrics: m}
}

func (r *Reporter) Report(ctx context.Context, start, end time.Time, g Granularity, contentID string) ([]models.AggregatedPeriod, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}

	var key string
	if r.cache != nil {
		key = r.cache.Key(start, end, g, contentID)
		if periods, ok := r.cache.Get(key); ok {
			r.metrics.ReportRequests.WithLabelValues(string(g), "hit").Inc()
			return periods, nil
		}
	}

	periods, err := Aggregate(ctx, r.querier, start, end, g, contentID)
	if err != nil {
		return nil, err
	}
	r.metrics.ReportRequests.WithLabelValues(string(g), "miss").Inc()

	if r.cache != nil {
		r.cache.Set(key, periods)
	}
	return periods, nil
}
