package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// initAlertRoutes registers the alert review endpoints.
func (c *Controller) initAlertRoutes() {
	c.Group.GET("/alerts", c.GetAlerts)
	c.Group.POST("/alerts/:id/resolve", c.ResolveAlert)
	c.Group.POST("/alerts/:id/false", c.MarkAlertFalse)
	c.Group.POST("/alerts/resolve-group", c.ResolveAlertGroup)
	c.Group.POST("/alerts/false-group", c.MarkAlertGroupFalse)
}

type resolveRequest struct {
	ActualPipelineID string `json:"actual_pipeline_id"`
}

type groupRequest struct {
	AlertIDs         []uint `json:"alert_ids"`
	ActualPipelineID string `json:"actual_pipeline_id"`
}

// GetAlerts GET /api/v2/alerts
//
// Returns unresolved alerts newest first; ?all=1 includes resolved ones.
func (c *Controller) GetAlerts(ctx echo.Context) error {
	includeResolved := ctx.QueryParam("all") == "1"
	alerts, err := c.DS.GetAlerts(includeResolved)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get alerts", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, alerts)
}

// ResolveAlert POST /api/v2/alerts/:id/resolve
//
// Confirms an alert as a real leak, optionally correcting the pipeline.
func (c *Controller) ResolveAlert(ctx echo.Context) error {
	id, err := alertID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid alert id", http.StatusBadRequest)
	}

	var req resolveRequest
	// Body is optional; an empty body confirms the predicted pipeline.
	_ = ctx.Bind(&req)

	alert, err := c.Alerts.Resolve(id, req.ActualPipelineID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to resolve alert", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// MarkAlertFalse POST /api/v2/alerts/:id/false
//
// Dismisses an alert as a false positive.
func (c *Controller) MarkAlertFalse(ctx echo.Context) error {
	id, err := alertID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid alert id", http.StatusBadRequest)
	}

	alert, err := c.Alerts.MarkFalse(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to dismiss alert", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// ResolveAlertGroup POST /api/v2/alerts/resolve-group
func (c *Controller) ResolveAlertGroup(ctx echo.Context) error {
	var req groupRequest
	if err := ctx.Bind(&req); err != nil || len(req.AlertIDs) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "alert_ids is required"})
	}

	if err := c.Alerts.ResolveGroup(req.AlertIDs, req.ActualPipelineID); err != nil {
		return c.HandleError(ctx, err, "Failed to resolve alert group", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"status": "success", "resolved": len(req.AlertIDs)})
}

// MarkAlertGroupFalse POST /api/v2/alerts/false-group
func (c *Controller) MarkAlertGroupFalse(ctx echo.Context) error {
	var req groupRequest
	if err := ctx.Bind(&req); err != nil || len(req.AlertIDs) == 0 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "alert_ids is required"})
	}

	if err := c.Alerts.MarkFalseGroup(req.AlertIDs); err != nil {
		return c.HandleError(ctx, err, "Failed to dismiss alert group", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"status": "success", "dismissed": len(req.AlertIDs)})
}

func alertID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
