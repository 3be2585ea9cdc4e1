package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/dto"
	"prescription-analytics-api/internal/middleware"
	"prescription-analytics-api/internal/services"
)

func respond(c *gin.Context, data interface{}, info *services.Info) {
	resp := dto.NewSuccessResponse(data).WithRequestID(c.GetString(middleware.RequestIDKey))
	if info != nil {
		resp.WithResult(info.DatasetVersion, info.DatasetMode, info.Cached, info.Duration)
	}
	c.JSON(http.StatusOK, resp)
}

func fail(c *gin.Context, logger *logrus.Logger, operation string, err error) {
	status, resp := dto.ErrorResponseFor(err)

	entry := logger.WithFields(logrus.Fields{
		"operation":  operation,
		"status":     status,
		"error":      err,
		"request_id": c.GetString(middleware.RequestIDKey),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Analysis request failed")
	} else {
		entry.Debug("Analysis request rejected")
	}

	c.JSON(status, resp.WithRequestID(c.GetString(middleware.RequestIDKey)))
}

func bindJSON(c *gin.Context, logger *logrus.Logger, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		logger.WithFields(logrus.Fields{
			"error": err,
			"path":  c.Request.URL.Path,
		}).Debug("Invalid request body")

		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(
			"INVALID_REQUEST",
			"Invalid request body: "+err.Error(),
			nil,
		).WithRequestID(c.GetString(middleware.RequestIDKey)))
		return false
	}
	return true
}
