package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// initTelemetryRoutes registers the ingest and labeling endpoints.
func (c *Controller) initTelemetryRoutes() {
	c.Group.POST("/telemetry", c.IngestTelemetry)
	c.Group.GET("/telemetry", c.GetTelemetry)
	c.Group.POST("/labels", c.CollectLabeled)
}

// maxBodySize bounds ingest bodies; sensor payloads are a few hundred bytes.
const maxBodySize = 64 * 1024

// IngestTelemetry POST /api/v2/telemetry
//
// Accepts plaintext or encrypted sensor payloads and runs them through the
// detection pipeline.
func (c *Controller) IngestTelemetry(ctx echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxBodySize))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read request body", http.StatusBadRequest)
	}

	reading, pred, err := c.Proc.Ingest(ctx.Request().Context(), body)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to ingest telemetry", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"status":           "success",
		"id":               reading.ID,
		"ml_leak_detected": pred.LeakDetected == 1,
		"ml_leak_location": pred.LeakLocation,
		"ml_confidence":    pred.Confidence,
	})
}

// GetTelemetry GET /api/v2/telemetry
//
// Returns the latest 50 stored readings, newest first.
func (c *Controller) GetTelemetry(ctx echo.Context) error {
	readings, err := c.DS.GetLatestReadings(50)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get readings", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, readings)
}

// CollectLabeled POST /api/v2/labels
//
// Accepts a human-labeled sample and appends it to the validated corpus.
func (c *Controller) CollectLabeled(ctx echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxBodySize))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read request body", http.StatusBadRequest)
	}

	rows, err := c.Proc.CollectLabeled(body)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to collect labeled sample", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"status":       "success",
		"rows_written": rows,
	})
}
