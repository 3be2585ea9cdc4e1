package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/middleware"
	"prescription-analytics-api/internal/services"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// AdminController handles administrative HTTP endpoints
type AdminController struct {
	service *services.AnalyticsService
	cache   HealthChecker
	logger  *logrus.Logger
}

// NewAdminController creates a new admin controller
func NewAdminController(service *services.AnalyticsService, cache HealthChecker, logger *logrus.Logger) *AdminController {
	return &AdminController{
		service: service,
		cache:   cache,
		logger:  logger,
	}
}

// GetHealth handles GET /health
func (ac *AdminController) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health := dto.HealthResponse{
		Status:         "healthy",
		Service:        "prescription-analytics-api",
		Timestamp:      time.Now().UTC(),
		DatasetVersion: ac.service.DatasetVersion(),
		Checks:         map[string]string{"cache": "ok"},
	}
	if ac.cache != nil {
		if err := ac.cache.Ping(ctx); err != nil {
			health.Status = "degraded"
			health.Checks["cache"] = err.Error()
		}
	}
	if health.DatasetVersion == 0 {
		health.Checks["dataset"] = "not loaded"
	} else {
		health.Checks["dataset"] = "ok"
	}

	c.JSON(http.StatusOK, health)
}

// GetCacheStats handles GET /api/v1/admin/cache/stats
func (ac *AdminController) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(ac.service.CacheStats()).
		WithRequestID(c.GetString(middleware.RequestIDKey)))
}

// ClearCache handles POST /api/v1/admin/cache/clear
func (ac *AdminController) ClearCache(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := ac.service.ClearCache(ctx); err != nil {
		ac.logger.WithError(err).Error("Failed to clear cache")
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(
			"CACHE_ERROR",
			"Failed to clear cache",
			err.Error(),
		).WithRequestID(c.GetString(middleware.RequestIDKey)))
		return
	}

	ac.logger.Info("Cache cleared via admin endpoint")
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"cleared": true}).
		WithRequestID(c.GetString(middleware.RequestIDKey)))
}
