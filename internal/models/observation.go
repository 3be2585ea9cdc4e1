package models

import (
	"math"
	"strings"
	"time"
)

// Observation is one cost record: a month, a region, a BNF category and a cost
type Observation struct {
	Month    time.Time `json:"month"`
	Region   string    `json:"region"`
	Category string    `json:"category"`
	Cost     float64   `json:"cost"`
}

// SeriesPoint is a monthly total
type SeriesPoint struct {
	Month time.Time `json:"month"`
	Value float64   `json:"value"`
}

// Series is a chronologically ordered sequence of monthly totals
type Series []SeriesPoint

// Values returns the totals of the series in order
func (s Series) Values() []float64 {
	values := make([]float64, len(s))
	for i, p := range s {
		values[i] = p.Value
	}
	return values
}

// LastMonth returns the month of the final point, or the zero time for an empty series
func (s Series) LastMonth() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Month
}

// SeriesKey identifies a (region, category) series
type SeriesKey struct {
	Region   string `json:"region"`
	Category string `json:"category"`
}

// CategoryCode returns the BNF chapter code, the part of a category label before ':'
func CategoryCode(category string) string {
	if idx := strings.Index(category, ":"); idx >= 0 {
		return strings.TrimSpace(category[:idx])
	}
	return strings.TrimSpace(category)
}

// Finite returns a pointer to v, or nil when v is NaN or infinite, so
// undefined metrics serialise as JSON null
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
