package controllers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/services"
)

// AnalyticsController handles forecasting, error analysis, outlier and
// clustering endpoints
type AnalyticsController struct {
	service *services.AnalyticsService
	timeout time.Duration
	logger  *logrus.Logger
}

// NewAnalyticsController creates a new analytics controller
func NewAnalyticsController(service *services.AnalyticsService, timeout time.Duration, logger *logrus.Logger) *AnalyticsController {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &AnalyticsController{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

func (ac *AnalyticsController) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), ac.timeout)
}

// Forecast handles POST /api/v1/forecast
func (ac *AnalyticsController) Forecast(c *gin.Context) {
	var req dto.ForecastRequest
	if !bindJSON(c, ac.logger, &req) {
		return
	}

	ctx, cancel := ac.context(c)
	defer cancel()

	resp, info, err := ac.service.Forecast(ctx, &req)
	if err != nil {
		fail(c, ac.logger, "forecast", err)
		return
	}
	respond(c, resp, info)
}

// RegionForecast handles POST /api/v1/forecast/region
func (ac *AnalyticsController) RegionForecast(c *gin.Context) {
	var req dto.RegionForecastRequest
	if !bindJSON(c, ac.logger, &req) {
		return
	}

	ctx, cancel := ac.context(c)
	defer cancel()

	resp, info, err := ac.service.RegionForecast(ctx, &req)
	if err != nil {
		fail(c, ac.logger, "region_forecast", err)
		return
	}
	respond(c, resp, info)
}

// Backtest handles POST /api/v1/backtest
func (ac *AnalyticsController) Backtest(c *gin.Context) {
	var req dto.ErrorsRequest
	if !bindJSON(c, ac.logger, &req) {
		return
	}

	ctx, cancel := ac.context(c)
	defer cancel()

	report, info, err := ac.service.Backtest(ctx, &req)
	if err != nil {
		fail(c, ac.logger, "backtest", err)
		return
	}

	ac.logger.WithFields(logrus.Fields{
		"mode":    report.Mode,
		"records": len(report.Records),
		"skipped": len(report.Skipped),
		"cached":  info.Cached,
	}).Info("Backtest served")

	respond(c, report, info)
}

// Fairness handles POST /api/v1/fairness
func (ac *AnalyticsController) Fairness(c *gin.Context) {
	var req dto.ErrorsRequest
	if !bindJSON(c, ac.logger, &req) {
		return
	}

	ctx, cancel := ac.context(c)
	defer cancel()

	resp, info, err := ac.service.Fairness(ctx, &req)
	if err != nil {
		fail(c, ac.logger, "fairness", err)
		return
	}
	respond(c, resp, info)
}

// Outliers handles POST /api/v1/outliers
func (ac *AnalyticsController) Outliers(c *gin.Context) {
	var req dto.OutlierRequest
	if !bindJSON(c, ac.logger, &req) {
		return
	}

	ctx, cancel := ac.context(c)
	defer cancel()

	result, info, err := ac.service.Outliers(ctx, &req)
	if err != nil {
		fail(c, ac.logger, "outliers", err)
		return
	}
	respond(c, result, info)
}

// Clusters handles POST /api/v1/clusters
func (ac *AnalyticsController) Clusters(c *gin.Context) {
	var req dto.ClusterRequest
	if !bindJSON(c, ac.logger, &req) {
		return
	}

	ctx, cancel := ac.context(c)
	defer cancel()

	result, info, err := ac.service.Clusters(ctx, &req)
	if err != nil {
		fail(c, ac.logger, "clusters", err)
		return
	}
	respond(c, result, info)
}
