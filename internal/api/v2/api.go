// Package api implements the v2 HTTP API of the leak-detection service.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/aquaguard/aquaguard-go/internal/alert"
	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/datastore"
	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/logging"
	"github.com/aquaguard/aquaguard-go/internal/mlmodel"
	"github.com/aquaguard/aquaguard-go/internal/observability"
	"github.com/aquaguard/aquaguard-go/internal/processor"
)

// Controller holds the API route handlers and their dependencies.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings
	DS       datastore.Interface
	Proc     *processor.Processor
	Alerts   *alert.Bridge
	Models   *mlmodel.Manager

	logger *slog.Logger
}

// ErrorResponse is the uniform error body. The correlation ID links a client
// report back to the server logs.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// New creates the API controller and registers all v2 routes.
func New(e *echo.Echo, settings *conf.Settings, ds datastore.Interface,
	proc *processor.Processor, alerts *alert.Bridge, models *mlmodel.Manager,
) *Controller {
	c := &Controller{
		Echo:     e,
		Settings: settings,
		DS:       ds,
		Proc:     proc,
		Alerts:   alerts,
		Models:   models,
		logger:   logging.ForService("api"),
	}

	c.Group = e.Group("/api/v2")
	c.Group.Use(middleware.Recover())

	c.initTelemetryRoutes()
	c.initAlertRoutes()
	c.initModelRoutes()

	c.Group.GET("/health", c.Health)
	e.GET("/metrics", observability.MetricsHandler())
	return c
}

// Health reports liveness.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// HandleError maps a pipeline error to its HTTP status, logs it with a fresh
// correlation ID and writes the uniform error body.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryDecryption):
		code = http.StatusBadRequest
	case errors.IsNotFound(err):
		code = http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryModelState):
		code = http.StatusConflict
	}

	correlationID := uuid.New().String()
	c.logger.Error(message,
		"error", err,
		"correlation_id", correlationID,
		"method", ctx.Request().Method,
		"path", ctx.Request().URL.Path,
		"code", code)

	return ctx.JSON(code, ErrorResponse{
		Error:         err.Error(),
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	})
}
