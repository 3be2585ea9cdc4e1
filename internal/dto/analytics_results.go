package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/fairness"
	"prescription-analytics-api/internal/forecast"
	"prescription-analytics-api/internal/insights"
	"prescription-analytics-api/internal/models"
)

// DatasetSummary describes the loaded dataset
type DatasetSummary struct {
	Version      uint64          `json:"version"`
	Mode         string          `json:"mode"`
	Source       string          `json:"source"`
	Observations int             `json:"observations"`
	DroppedRows  int             `json:"dropped_rows"`
	Regions      []string        `json:"regions"`
	Categories   []string        `json:"categories"`
	FirstMonth   time.Time       `json:"first_month"`
	LastMonth    time.Time       `json:"last_month"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	LoadedAt     time.Time       `json:"loaded_at"`
}

// ForecastResponse is a forecast of one series with its history
type ForecastResponse struct {
	Region   string           `json:"region,omitempty"`
	Category string           `json:"category,omitempty"`
	History  models.Series    `json:"history"`
	Forecast *forecast.Result `json:"forecast"`
}

// RegionForecastResponse bundles per-category forecasts for a region
type RegionForecastResponse struct {
	Region     string                      `json:"region"`
	Horizon    int                         `json:"horizon"`
	Forecasts  map[string]*forecast.Result `json:"forecasts"`
	Failed     []models.SkippedUnit        `json:"failed"`
	History    models.Series               `json:"history"`
	Total      *forecast.Result            `json:"total,omitempty"`
	TotalError string                      `json:"total_error,omitempty"`
	Accuracy   *forecast.Accuracy          `json:"accuracy,omitempty"`
}

// FairnessResponse is a fairness summary and the error run behind it
type FairnessResponse struct {
	Mode        backtest.Mode        `json:"mode"`
	TestPeriods int                  `json:"test_periods"`
	Summary     *fairness.Summary    `json:"summary"`
	Skipped     []models.SkippedUnit `json:"skipped"`
}

// DashboardResponse is the regional ranking with national totals
type DashboardResponse struct {
	Regions  []insights.RegionKPI       `json:"regions"`
	National *insights.NationalOverview `json:"national"`
}
