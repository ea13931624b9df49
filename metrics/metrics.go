package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	ViewsRecorded    prometheus.Counter
	ViewsSuppressed  prometheus.Counter
	TrackingFailures *prometheus.CounterVec
	ReportRequests   *prometheus.CounterVec
	DailyRebuilds    *prometheus.CounterVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ViewsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "postviews",
			Name:      "views_recorded_total",
			Help:      "View events written after passing the dedup window.",
		}),
		ViewsSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "postviews",
			Name:      "views_suppressed_total",
			Help:      "Tracking calls that fell inside an existing dedup window.",
		}),
		TrackingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postviews",
			Name:      "view_tracking_failures_total",
			Help:      "Tracking calls that failed, by error kind.",
		}, []string{"kind"}),
		ReportRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postviews",
			Name:      "report_requests_total",
			Help:      "Aggregate report requests by granularity and cache outcome.",
		}, []string{"granularity", "cache"}),
		DailyRebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postviews",
			Name:      "daily_stats_rebuilds_total",
			Help:      "Daily stats rebuild runs by outcome.",
		}, []string{"outcome"}),
	}
}
