package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"postviews/api/models"
)

// Granularity is the size of a reporting bucket.
type Granularity string

const (
	Daily   Granularity = "daily"
	Monthly Granularity = "monthly"
	Yearly  Granularity = "yearly"
)

// LabelLayout is the layout of every period label: the first day of the
// period, in UTC.
const LabelLayout = "2006-01-02"

// ParseGranularity accepts daily, monthly or yearly, case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Daily, Monthly, Yearly:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
}

// Valid reports whether g is one of the supported granularities.
func (g Granularity) Valid() bool {
	switch g {
	case Daily, Monthly, Yearly:
		return true
	}
	return false
}

// PeriodStart truncates t to the start of its UTC period.
func (g Granularity) PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Next returns the start of the period following the one starting at t.
func (g Granularity) Next(t time.Time) time.Time {
	switch g {
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Yearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Label formats the period containing t.
func (g Granularity) Label(t time.Time) string {
	return g.PeriodStart(t).Format(LabelLayout)
}

// Boundaries lists the start of every period touched by [start, end], in
// chronological order. It returns nil when start is after end.
func Boundaries(start, end time.Time, g Granularity) ([]time.Time, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
	if start.After(end) {
		return nil, nil
	}

	last := g.PeriodStart(end)
	var out []time.Time
	for t := g.PeriodStart(start); !t.After(last); t = g.Next(t) {
		out = append(out, t)
	}
	return out, nil
}

// PeriodQuerier returns the view counts of every non-empty period in
// [from, to), keyed by period label.
type PeriodQuerier interface {
	CountViewsByPeriod(ctx context.Context, from, to time.Time, g Granularity, contentID string) (map[string]models.AggregatedPeriod, error)
}

// Aggregate produces exactly one entry per period between start and end
// inclusive. Periods without events are zero-filled.
func Aggregate(ctx context.Context, q PeriodQuerier, start, end time.Time, g Granularity, contentID string) ([]models.AggregatedPeriod, error) {
	bounds, err := Boundaries(start, end, g)
	if err != nil {
		return nil, err
	}
	if len(bounds) == 0 {
		return []models.AggregatedPeriod{}, nil
	}

	from := bounds[0]
	to := g.Next(bounds[len(bounds)-1])
	rows, err := q.CountViewsByPeriod(ctx, from, to, g, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count views by period: %w", err)
	}

	return GapFill(bounds, g, rows), nil
}

// GapFill walks bounds in order and emits the matching row from rows, or a
// zero row carrying only the label.
func GapFill(bounds []time.Time, g Granularity, rows map[string]models.AggregatedPeriod) []models.AggregatedPeriod {
	out := make([]models.AggregatedPeriod, 0, len(bounds))
	for _, b := range bounds {
		label := g.Label(b)
		row, ok := rows[label]
		if !ok {
			row = models.AggregatedPeriod{}
		}
		row.Period = label
		out = append(out, row)
	}
	return out
}
