package analytics

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"postviews/api/metrics"
	"postviews/api/models"
)

const maxContentIDLength = 255

// ViewRecorder persists one tracking event atomically.
type ViewRecorder interface {
	TrackView(ctx context.Context, req models.ViewTrackRequest, now time.Time) (models.TrackResult, error)
}

// ViewSink receives view events after they are committed.
type ViewSink interface {
	MirrorViews(ctx context.Context, views []models.ViewEvent) error
}

// Tracker validates tracking requests, hands them to the recorder and keeps
// the report cache and mirror in step with what was written.
type Tracker struct {
	recorder ViewRecorder
	sink     ViewSink
	cache    *ReportCache
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

type TrackerOption func(*Tracker)

// WithSink mirrors every recorded view into s.
func WithSink(s ViewSink) TrackerOption {
	return func(t *Tracker) { t.sink = s }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(recorder ViewRecorder, cache *ReportCache, m *metrics.Metrics, log *zap.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		recorder: recorder,
		cache:    cache,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records one view event. Validation failures return a
// *ValidationError before anything touches the store; store failures
// return a *TransactionError and nothing is persisted. No retries.
func (t *Tracker) Track(ctx context.Context, req models.ViewTrackRequest) (models.TrackResult, error) {
	req.ContentID = strings.TrimSpace(req.ContentID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.ViewerID = optional(req.ViewerID)
	req.EntryPoint = optional(req.EntryPoint)

	if err := ValidateTrackRequest(req); err != nil {
		t.metrics.TrackingFailures.WithLabelValues("validation").Inc()
		return models.TrackResult{SessionID: req.SessionID}, err
	}

	res, err := t.recorder.TrackView(ctx, req, t.now().UTC())
	if err != nil {
		t.metrics.TrackingFailures.WithLabelValues("transaction").Inc()
		return res, err
	}

	if !res.Recorded {
		t.metrics.ViewsSuppressed.Inc()
		return res, nil
	}

	t.metrics.ViewsRecorded.Inc()
	if t.cache != nil {
		t.cache.Invalidate()
	}
	if t.sink != nil && res.View != nil {
		if err := t.sink.MirrorViews(ctx, []models.ViewEvent{*res.View}); err != nil {
			t.metrics.TrackingFailures.WithLabelValues("mirror").Inc()
			t.log.Warn("failed to mirror view event",
				zap.String("view_id", res.ViewID),
				zap.String("content_id", req.ContentID),
				zap.Error(err))
		}
	}

	return res, nil
}

// optional trims s and treats a blank value as absent, so "" never counts
// as a registered viewer.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// ValidateTrackRequest checks the fields every tracking event needs.
func ValidateTrackRequest(req models.ViewTrackRequest) error {
	switch {
	case req.ContentID == "":
		return &ValidationError{Field: "content_id", Reason: "is required"}
	case len(req.ContentID) > maxContentIDLength:
		return &ValidationError{Field: "content_id", Reason: "is too long"}
	case req.SessionID == "":
		return &ValidationError{Field: "session_id", Reason: "is required"}
	case math.IsNaN(req.ScrollDepth) || req.ScrollDepth < 0 || req.ScrollDepth > 100:
		return &ValidationError{Field: "scroll_depth", Reason: "must be between 0 and 100"}
	case req.TimeSpent < 0:
		return &ValidationError{Field: "time_spent", Reason: "must not be negative"}
	}
	return nil
}
