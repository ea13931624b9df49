package utils

import (
	"fmt"
	"time"

	"postviews/api/analytics"
)

// DateLayout is the layout of date query parameters.
const DateLayout = "2006-01-02"

// DefaultReportDays is the span of a report when no start date is given.
const DefaultReportDays = 7

// ParseDate parses a YYYY-MM-DD value as a UTC date, returning def when
// the value is empty.
func ParseDate(value string, def time.Time) (time.Time, error) {
	if value == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q, use YYYY-MM-DD", analytics.ErrInvalidRange, value)
	}
	return t, nil
}

// ParseDateRange parses start and end parameters. end defaults to today
// and start to DefaultReportDays-1 days before end.
func ParseDateRange(startParam, endParam string, now time.Time) (start, end time.Time, err error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	end, err = ParseDate(endParam, today)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err = ParseDate(startParam, end.AddDate(0, 0, -(DefaultReportDays-1)))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
