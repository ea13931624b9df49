package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postviews/api/metrics"
	"postviews/api/models"
)

type fakeRecorder struct {
	result models.TrackResult
	err    error
	calls  int
	last   models.ViewTrackRequest
	now    time.Time
}

func (f *fakeRecorder) TrackView(_ context.Context, req models.ViewTrackRequest, now time.Time) (models.TrackResult, error) {
	f.calls++
	f.last = req
	f.now = now
	res := f.result
	res.SessionID = req.SessionID
	return res, f.err
}

type fakeSink struct {
	views []models.ViewEvent
	err   error
}

func (f *fakeSink) MirrorViews(_ context.Context, views []models.ViewEvent) error {
	f.views = append(f.views, views...)
	return f.err
}

func newTestTracker(t *testing.T, rec ViewRecorder, sink ViewSink) (*Tracker, *ReportCache, *metrics.Metrics) {
	t.Helper()
	cache, err := NewReportCache(100)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	m := metrics.New(prometheus.NewRegistry())
	clock := func() time.Time { return time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) }
	opts := []TrackerOption{WithClock(clock)}
	if sink != nil {
		opts = append(opts, WithSink(sink))
	}
	return NewTracker(rec, cache, m, zap.NewNop(), opts...), cache, m
}

func validRequest() models.ViewTrackRequest {
	return models.ViewTrackRequest{
		ContentID:   "C42",
		SessionID:   "sess-1",
		IPAddress:   "203.0.113.7",
		UserAgent:   "Mozilla/5.0",
		ScrollDepth: 40,
		TimeSpent:   12,
	}
}

func TestValidateTrackRequest(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*models.ViewTrackRequest)
		field string
	}{
		{"missing content", func(r *models.ViewTrackRequest) { r.ContentID = "" }, "content_id"},
		{"long content", func(r *models.ViewTrackRequest) { r.ContentID = string(make([]byte, 256)) }, "content_id"},
		{"missing session", func(r *models.ViewTrackRequest) { r.SessionID = "" }, "session_id"},
		{"negative scroll", func(r *models.ViewTrackRequest) { r.ScrollDepth = -1 }, "scroll_depth"},
		{"scroll over 100", func(r *models.ViewTrackRequest) { r.ScrollDepth = 100.5 }, "scroll_depth"},
		{"nan scroll", func(r *models.ViewTrackRequest) { r.ScrollDepth = math.NaN() }, "scroll_depth"},
		{"negative time", func(r *models.ViewTrackRequest) { r.TimeSpent = -3 }, "time_spent"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mut(&req)
			err := ValidateTrackRequest(req)

			var v *ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tc.field, v.Field)
		})
	}

	assert.NoError(t, ValidateTrackRequest(validRequest()))
}

func TestTracker_ValidationSkipsRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	tr, _, m := newTestTracker(t, rec, nil)

	req := validRequest()
	req.ContentID = "   "
	_, err := tr.Track(context.Background(), req)

	assert.True(t, IsValidation(err))
	assert.Zero(t, rec.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackingFailures.WithLabelValues("validation")))
}

func TestTracker_RecordedViewInvalidatesCacheAndMirrors(t *testing.T) {
	view := &models.ViewEvent{ID: "v1", ContentID: "C42"}
	rec := &fakeRecorder{result: models.TrackResult{Recorded: true, ViewID: "v1", View: view}}
	sink := &fakeSink{}
	tr, cache, m := newTestTracker(t, rec, sink)

	start, end := day("2024-01-01"), day("2024-01-03")
	cache.Set(cache.Key(start, end, Daily, ""), []models.AggregatedPeriod{{Period: "2024-01-01"}})
	cache.Wait()

	res, err := tr.Track(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, res.Recorded)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC), rec.now)
	require.Len(t, sink.views, 1)
	assert.Equal(t, "v1", sink.views[0].ID)

	_, ok := cache.Get(cache.Key(start, end, Daily, ""))
	assert.False(t, ok, "recording a view must invalidate cached reports")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewsRecorded))
}

func TestTracker_BlankOptionalFieldsBecomeNil(t *testing.T) {
	rec := &fakeRecorder{result: models.TrackResult{Recorded: true}}
	tr, _, _ := newTestTracker(t, rec, nil)

	req := validRequest()
	blank, spaced, viewer := "", "   ", " reader-9 "
	req.ViewerID = &blank
	req.EntryPoint = &spaced

	_, err := tr.Track(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, rec.last.ViewerID)
	assert.Nil(t, rec.last.EntryPoint)

	req.ViewerID = &viewer
	_, err = tr.Track(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, rec.last.ViewerID)
	assert.Equal(t, "reader-9", *rec.last.ViewerID)
}

func TestTracker_SuppressedViewKeepsCache(t *testing.T) {
	rec := &fakeRecorder{result: models.TrackResult{Recorded: false}}
	sink := &fakeSink{}
	tr, cache, m := newTestTracker(t, rec, sink)

	start, end := day("2024-01-01"), day("2024-01-03")
	cache.Set(cache.Key(start, end, Daily, ""), []models.AggregatedPeriod{{Period: "2024-01-01"}})
	cache.Wait()

	res, err := tr.Track(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.Empty(t, sink.views)

	_, ok := cache.Get(cache.Key(start, end, Daily, ""))
	assert.True(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewsSuppressed))
}

func TestTracker_TransactionErrorPropagates(t *testing.T) {
	rec := &fakeRecorder{err: &TransactionError{Op: "commit", Err: errors.New("conn reset")}}
	tr, _, m := newTestTracker(t, rec, nil)

	_, err := tr.Track(context.Background(), validRequest())
	assert.True(t, IsTransaction(err))
	assert.Equal(t, 1, rec.calls, "no internal retry")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackingFailures.WithLabelValues("transaction")))
}

func TestTracker_MirrorFailureIsNotFatal(t *testing.T) {
	view := &models.ViewEvent{ID: "v1", ContentID: "C42"}
	rec := &fakeRecorder{result: models.TrackResult{Recorded: true, ViewID: "v1", View: view}}
	tr, _, m := newTestTracker(t, rec, &fakeSink{err: errors.New("clickhouse down")})

	res, err := tr.Track(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackingFailures.WithLabelValues("mirror")))
}

func TestReporter_CachesUntilInvalidated(t *testing.T) {
	q := &fakeQuerier{rows: map[string]models.AggregatedPeriod{
		"2024-01-02": {Period: "2024-01-02", TotalViews: 1},
	}}
	cache, err := NewReportCache(100)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	m := metrics.New(prometheus.NewRegistry())
	r := NewReporter(q, cache, m)

	ctx := context.Background()
	start, end := day("2024-01-01"), day("2024-01-03")

	first, err := r.Report(ctx, start, end, Daily, "")
	require.NoError(t, err)
	require.Len(t, first, 3)
	cache.Wait()

	second, err := r.Report(ctx, start, end, Daily, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, q.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportRequests.WithLabelValues("daily", "hit")))

	cache.Invalidate()
	_, err = r.Report(ctx, start, end, Daily, "")
	require.NoError(t, err)
	assert.Equal(t, 2, q.calls)
}

func TestReporter_RejectsUnknownGranularity(t *testing.T) {
	q := &fakeQuerier{}
	r := NewReporter(q, nil, metrics.New(prometheus.NewRegistry()))

	_, err := r.Report(context.Background(), day("2024-01-01"), day("2024-01-02"), Granularity("weekly"), "")
	assert.ErrorIs(t, err, ErrInvalidGranularity)
	assert.Zero(t, q.calls)
}

// writingQuerier records a view while the report query is in flight.
type writingQuerier struct {
	cache *ReportCache
}

func (w *writingQuerier) CountViewsByPeriod(_ context.Context, _, _ time.Time, _ Granularity, _ string) (map[string]models.AggregatedPeriod, error) {
	w.cache.Invalidate()
	return map[string]models.AggregatedPeriod{}, nil
}

func TestReporter_WriteDuringQueryIsNotCachedAsCurrent(t *testing.T) {
	cache, err := NewReportCache(100)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	r := NewReporter(&writingQuerier{cache: cache}, cache, metrics.New(prometheus.NewRegistry()))

	start, end := day("2024-01-01"), day("2024-01-03")
	_, err = r.Report(context.Background(), start, end, Daily, "")
	require.NoError(t, err)
	cache.Wait()

	_, ok := cache.Get(cache.Key(start, end, Daily, ""))
	assert.False(t, ok, "a report computed before the write must not be served after it")
}
