package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/config"
	"prescription-analytics-api/internal/controllers"
	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/middleware"
	"prescription-analytics-api/internal/monitoring"
	"prescription-analytics-api/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	service *services.AnalyticsService,
	cache controllers.HealthChecker,
	metrics monitoring.MetricsService,
	logger *logrus.Logger,
) *middleware.RateLimiter {
	// Initialize controllers
	analyticsController := controllers.NewAnalyticsController(service, cfg.Server.RequestTimeout, logger)
	datasetController := controllers.NewDatasetController(service, logger)
	adminController := controllers.NewAdminController(service, cache, logger)

	// Global middleware
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	if metrics != nil {
		router.Use(middleware.Metrics(metrics))
	}

	router.GET("/health", adminController.GetHealth)
	if metrics != nil && cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize, cfg.RateLimit.IdleTimeout)
		v1.Use(limiter.RateLimit())
	}

	dataset := v1.Group("/dataset")
	{
		dataset.GET("/summary", datasetController.Summary)
		dataset.POST("/reload", datasetController.Reload)
	}

	dashboard := v1.Group("/dashboard")
	{
		dashboard.GET("/regions", datasetController.Regions)
		dashboard.GET("/regions/:region", datasetController.Region)
	}

	v1.GET("/categories", datasetController.Categories)
	v1.GET("/categories/trends", datasetController.CategoryTrends)

	v1.POST("/forecast", analyticsController.Forecast)
	v1.POST("/forecast/region", analyticsController.RegionForecast)
	v1.POST("/backtest", analyticsController.Backtest)
	v1.POST("/fairness", analyticsController.Fairness)
	v1.POST("/outliers", analyticsController.Outliers)
	v1.POST("/clusters", analyticsController.Clusters)

	admin := v1.Group("/admin")
	{
		admin.GET("/cache/stats", adminController.GetCacheStats)
		admin.POST("/cache/clear", adminController.ClearCache)
	}

	// Add a catch-all route for 404s
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(
			"NOT_FOUND",
			"Endpoint not found",
			gin.H{"path": c.Request.URL.Path},
		))
	})

	// Add a method not allowed handler
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, dto.NewErrorResponse(
			"METHOD_NOT_ALLOWED",
			"Method not allowed for this endpoint",
			gin.H{"method": c.Request.Method, "path": c.Request.URL.Path},
		))
	})

	return limiter
}
