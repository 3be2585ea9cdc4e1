package models

import "errors"

var (
	// ErrInsufficientData is returned when a series or group has too few points
	ErrInsufficientData = errors.New("insufficient data")
	// ErrModelFit is returned when every candidate forecasting model fails
	ErrModelFit = errors.New("no candidate model could be fitted")
	// ErrDegenerateInput marks zero-variance input where a statistic is undefined
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrEmptyDataset is returned when there are no observations to analyse
	ErrEmptyDataset = errors.New("no observations in selection")
	// ErrInvalidParameter is returned for out-of-range analysis parameters
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnknownGroup is returned when a region or category is not in the dataset
	ErrUnknownGroup = errors.New("unknown group")
)

// SkippedUnit records a unit of work excluded from an aggregate and why
type SkippedUnit struct {
	Region   string `json:"region,omitempty"`
	Category string `json:"category,omitempty"`
	Reason   string `json:"reason"`
}
