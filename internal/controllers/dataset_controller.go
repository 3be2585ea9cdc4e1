package controllers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/services"
)

// DatasetController handles dataset, dashboard and category endpoints
type DatasetController struct {
	service *services.AnalyticsService
	logger  *logrus.Logger
}

// NewDatasetController creates a new dataset controller
func NewDatasetController(service *services.AnalyticsService, logger *logrus.Logger) *DatasetController {
	return &DatasetController{
		service: service,
		logger:  logger,
	}
}

// Summary handles GET /api/v1/dataset/summary
func (dc *DatasetController) Summary(c *gin.Context) {
	summary, err := dc.service.Summary(c.Request.Context())
	if err != nil {
		fail(c, dc.logger, "summary", err)
		return
	}
	respond(c, summary, &services.Info{DatasetVersion: summary.Version, DatasetMode: summary.Mode})
}

// Reload handles POST /api/v1/dataset/reload
func (dc *DatasetController) Reload(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	summary, err := dc.service.Reload(ctx)
	if err != nil {
		fail(c, dc.logger, "reload", err)
		return
	}

	dc.logger.WithFields(logrus.Fields{
		"version":      summary.Version,
		"mode":         summary.Mode,
		"observations": summary.Observations,
	}).Info("Dataset reloaded")

	respond(c, summary, &services.Info{DatasetVersion: summary.Version, DatasetMode: summary.Mode})
}

// Regions handles GET /api/v1/dashboard/regions
func (dc *DatasetController) Regions(c *gin.Context) {
	var filter dto.DateFilter
	if !dc.bindQuery(c, &filter) {
		return
	}

	resp, info, err := dc.service.Dashboard(c.Request.Context(), filter)
	if err != nil {
		fail(c, dc.logger, "dashboard", err)
		return
	}
	respond(c, resp, info)
}

// Region handles GET /api/v1/dashboard/regions/:region
func (dc *DatasetController) Region(c *gin.Context) {
	var filter dto.DateFilter
	if !dc.bindQuery(c, &filter) {
		return
	}

	kpi, info, err := dc.service.RegionKPIs(c.Request.Context(), c.Param("region"), filter)
	if err != nil {
		fail(c, dc.logger, "region_kpis", err)
		return
	}
	respond(c, kpi, info)
}

// Categories handles GET /api/v1/categories
func (dc *DatasetController) Categories(c *gin.Context) {
	var query dto.CategoryQuery
	if !dc.bindQuery(c, &query) {
		return
	}

	overview, info, err := dc.service.Categories(c.Request.Context(), &query)
	if err != nil {
		fail(c, dc.logger, "categories", err)
		return
	}
	respond(c, overview, info)
}

// CategoryTrends handles GET /api/v1/categories/trends
func (dc *DatasetController) CategoryTrends(c *gin.Context) {
	var query dto.CategoryQuery
	if !dc.bindQuery(c, &query) {
		return
	}

	trends, info, err := dc.service.CategoryTrends(c.Request.Context(), &query)
	if err != nil {
		fail(c, dc.logger, "category_trends", err)
		return
	}
	respond(c, trends, info)
}

func (dc *DatasetController) bindQuery(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		fail(c, dc.logger, "bind_query", dto.NewValidationError("invalid query parameters: "+err.Error()))
		return false
	}
	return true
}
