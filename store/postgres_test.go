package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"postviews/api/analytics"
	"postviews/api/database"
	"postviews/api/models"
)

// openPostgresClient connects to TEST_DATABASE_URL and skips the test when
// it is unset. Tests use fresh content ids so they can share a database.
func openPostgresClient(t *testing.T) *database.DBClient {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	c, err := database.NewPostgresDB(ctx, url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, database.NewMigrationRunner(c).Run(ctx))
	return c
}

func TestPostgres_ConcurrentRequestsRecordOnce(t *testing.T) {
	c := openPostgresClient(t)
	s := NewViewStore(c, DefaultDedupWindow)
	ctx := context.Background()
	content := "pg-" + uuid.NewString()

	const workers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		recorded int
		errs     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.TrackView(ctx, trackReq(content, fmt.Sprintf("sess-%d", i), float64(i), int64(i)), t0)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Recorded {
				recorded++
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, recorded)

	n, err := s.CountViewEvents(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgres_ConcurrentEngagementKeepsMaximum(t *testing.T) {
	c := openPostgresClient(t)
	s := NewViewStore(c, DefaultDedupWindow)
	ctx := context.Background()
	content := "pg-" + uuid.NewString()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.TrackView(ctx, trackReq(content, "sess-1", float64(i*5), int64(i)), t0.Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	e, err := s.GetEngagement(ctx, content, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 100.0, e.ScrollDepth)
	assert.Equal(t, int64(20), e.TimeSpent)
}

func TestPostgres_AggregateBucketsInUTC(t *testing.T) {
	c := openPostgresClient(t)
	vs := NewViewStore(c, DefaultDedupWindow)
	rs := NewReportStore(c)
	content := "pg-" + uuid.NewString()

	seedViews(t, vs, []viewSeed{
		{content: content, viewer: strPtr("reader-1"), ip: "10.0.0.1", ua: "A", at: time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)},
		{content: content, ip: "10.0.0.2", ua: "A", at: time.Date(2024, 2, 1, 0, 10, 0, 0, time.UTC)},
		{content: content, ip: "10.0.0.2", ua: "A", at: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
	})

	ctx := context.Background()
	daily, err := analytics.Aggregate(ctx, rs, date("2024-01-31"), date("2024-02-02"), analytics.Daily, content)
	require.NoError(t, err)
	assert.Equal(t, []models.AggregatedPeriod{
		{Period: "2024-01-31", TotalViews: 1, UniqueViews: 1, RegisteredUserViews: 1},
		{Period: "2024-02-01", TotalViews: 1, UniqueViews: 1, AnonymousViews: 1},
		{Period: "2024-02-02"},
	}, daily)

	monthly, err := analytics.Aggregate(ctx, rs, date("2024-01-01"), date("2024-03-31"), analytics.Monthly, content)
	require.NoError(t, err)
	require.Len(t, monthly, 3)
	assert.Equal(t, "2024-02-01", monthly[1].Period)
	assert.Equal(t, int64(1), monthly[2].TotalViews)

	n, err := rs.RebuildDailyStats(ctx, date("2024-02-01"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	stats, err := rs.ListDailyStats(ctx, content, "2024-02-01", "2024-02-01")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].AnonymousViews)
}
