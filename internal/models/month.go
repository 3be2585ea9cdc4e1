package models

import (
	"fmt"
	"strings"
	"time"
)

var monthLayouts = []string{
	"2006-01",
	"2006-01-02",
	"200601",
	"2006/01",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// MonthStart truncates t to the first day of its month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the month start n months after t
func AddMonths(t time.Time, n int) time.Time {
	m := MonthStart(t)
	return time.Date(m.Year(), m.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth parses the month formats found in prescription extracts
func ParseMonth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised month %q", value)
}

// DateRange is an inclusive month range; a zero bound is open
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// IsZero reports whether neither bound is set
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Contains reports whether month falls inside the range
func (r DateRange) Contains(month time.Time) bool {
	month = MonthStart(month)
	if !r.From.IsZero() && month.Before(MonthStart(r.From)) {
		return false
	}
	if !r.To.IsZero() && month.After(MonthStart(r.To)) {
		return false
	}
	return true
}

// Validate checks that the bounds are ordered
func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && MonthStart(r.From).After(MonthStart(r.To)) {
		return fmt.Errorf("%w: date range start %s is after end %s", ErrInvalidParameter,
			r.From.Format("2006-01"), r.To.Format("2006-01"))
	}
	return nil
}
