package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"prescription-analytics-api/internal/models"
)

var validate = validator.New()

// DateFilter is an optional inclusive month range
type DateFilter struct {
	From string `form:"from" json:"from"`
	To   string `form:"to" json:"to"`
}

// Range parses the filter into a date range
func (f DateFilter) Range() (models.DateRange, error) {
	var r models.DateRange
	var err error

	if f.From != "" {
		if r.From, err = models.ParseMonth(f.From); err != nil {
			return r, NewValidationError("from: " + err.Error())
		}
	}
	if f.To != "" {
		if r.To, err = models.ParseMonth(f.To); err != nil {
			return r, NewValidationError("to: " + err.Error())
		}
	}
	if err := r.Validate(); err != nil {
		return r, NewValidationError(err.Error())
	}
	return r, nil
}

// CacheKey identifies the filter in a cache key
func (f DateFilter) CacheKey() string {
	return strings.TrimSpace(f.From) + ".." + strings.TrimSpace(f.To)
}

// ForecastRequest asks for a forecast of one series. An empty region or
// category aggregates over that dimension.
type ForecastRequest struct {
	Region   string `json:"region"`
	Category string `json:"category"`
	Horizon  int    `json:"horizon" validate:"omitempty,min=1,max=36"`
	DateFilter
}

// RegionForecastRequest asks for per-category forecasts within a region
type RegionForecastRequest struct {
	Region     string   `json:"region" validate:"required"`
	Categories []string `json:"categories" validate:"omitempty,dive,required"`
	Horizon    int      `json:"horizon" validate:"omitempty,min=1,max=36"`
	DateFilter
}

// ErrorsRequest configures error generation for backtest and fairness
type ErrorsRequest struct {
	Mode        string `json:"mode" validate:"omitempty,oneof=backtest simulated"`
	TestPeriods int    `json:"test_periods" validate:"omitempty,min=1,max=24"`
	DateFilter
}

// OutlierRequest configures outlier detection
type OutlierRequest struct {
	Method        string  `json:"method"`
	Granularity   string  `json:"granularity" validate:"omitempty,oneof=record temporal"`
	Threshold     float64 `json:"threshold" validate:"omitempty,min=0.1,max=3"`
	Contamination float64 `json:"contamination" validate:"omitempty,min=0.01,max=0.25"`
	Limit         int     `json:"limit" validate:"omitempty,min=1,max=100000"`
	DateFilter
}

// ClusterRequest configures group clustering
type ClusterRequest struct {
	GroupBy   string `json:"group_by" validate:"omitempty,oneof=region category"`
	Algorithm string `json:"algorithm"`
	Clusters  int    `json:"clusters" validate:"omitempty,min=1,max=50"`
	DateFilter
}

// CategoryQuery selects categories for category views
type CategoryQuery struct {
	Categories []string `form:"category" json:"categories"`
	Top        int      `form:"top" json:"top" validate:"omitempty,min=1,max=50"`
	DateFilter
}

// SetDefaults sets default values for forecast request
func (r *ForecastRequest) SetDefaults(horizon int) {
	if r.Horizon <= 0 {
		r.Horizon = horizon
	}
}

// SetDefaults sets default values for region forecast request
func (r *RegionForecastRequest) SetDefaults(horizon int) {
	if r.Horizon <= 0 {
		r.Horizon = horizon
	}
}

// SetDefaults sets default values for errors request
func (r *ErrorsRequest) SetDefaults(testPeriods int) {
	if r.Mode == "" {
		r.Mode = "backtest"
	}
	if r.TestPeriods <= 0 {
		r.TestPeriods = testPeriods
	}
}

// SetDefaults sets default values for outlier request
func (r *OutlierRequest) SetDefaults(threshold, contamination float64) {
	if r.Threshold == 0 {
		r.Threshold = threshold
	}
	if r.Contamination == 0 {
		r.Contamination = contamination
	}
	if r.Granularity == "" {
		r.Granularity = "record"
	}
}

// SetDefaults sets default values for cluster request
func (r *ClusterRequest) SetDefaults(clusters int) {
	if r.GroupBy == "" {
		r.GroupBy = "region"
	}
	if r.Clusters <= 0 {
		r.Clusters = clusters
	}
}

// Validate validates the forecast request
func (r *ForecastRequest) Validate() error {
	return validateWithRange(r, r.DateFilter)
}

// Validate validates the region forecast request
func (r *RegionForecastRequest) Validate() error {
	return validateWithRange(r, r.DateFilter)
}

// Validate validates the errors request
func (r *ErrorsRequest) Validate() error {
	return validateWithRange(r, r.DateFilter)
}

// Validate validates the outlier request
func (r *OutlierRequest) Validate() error {
	return validateWithRange(r, r.DateFilter)
}

// Validate validates the cluster request
func (r *ClusterRequest) Validate() error {
	return validateWithRange(r, r.DateFilter)
}

// Validate validates the category query
func (r *CategoryQuery) Validate() error {
	return validateWithRange(r, r.DateFilter)
}

func validateWithRange(req interface{}, filter DateFilter) error {
	if err := validate.Struct(req); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			messages := make([]string, 0, len(fieldErrors))
			for _, fe := range fieldErrors {
				messages = append(messages, describeField(fe))
			}
			return NewValidationError(strings.Join(messages, "; "))
		}
		return NewValidationError(err.Error())
	}

	if _, err := filter.Range(); err != nil {
		return err
	}
	return nil
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// Unwrap lets callers match validation failures as invalid parameters
func (e ValidationError) Unwrap() error {
	return models.ErrInvalidParameter
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}
