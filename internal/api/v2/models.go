package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/aquaguard/aquaguard-go/internal/datastore"
	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/mlmodel"
	"github.com/aquaguard/aquaguard-go/internal/observability"
)

// initModelRoutes registers the model lifecycle endpoints.
func (c *Controller) initModelRoutes() {
	c.Group.GET("/models", c.ListModels)
	c.Group.GET("/models/active", c.ActiveModel)
	c.Group.POST("/models/train", c.StartTraining)
	c.Group.GET("/models/progress", c.TrainingProgress)
	c.Group.POST("/models/:id/activate", c.ActivateModel)
	c.Group.GET("/models/settings", c.GetTrainingSettings)
	c.Group.PUT("/models/settings", c.SetTrainingSettings)
}

// ListModels GET /api/v2/models
func (c *Controller) ListModels(ctx echo.Context) error {
	models, err := c.Models.List()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list models", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, models)
}

// ActiveModel GET /api/v2/models/active
func (c *Controller) ActiveModel(ctx echo.Context) error {
	summary, err := c.Models.ActiveSummary()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get active model", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, summary)
}

// StartTraining POST /api/v2/models/train
//
// Starting while a run is in flight is not an error; the caller gets a
// skipped status so retraining buttons can be pressed freely.
func (c *Controller) StartTraining(ctx echo.Context) error {
	mv, err := c.Models.StartTraining("manual")
	if err != nil {
		if errors.Is(err, datastore.ErrTrainingInProgress) {
			return ctx.JSON(http.StatusOK, map[string]string{"status": "skipped"})
		}
		return c.HandleError(ctx, err, "Failed to start training", http.StatusInternalServerError)
	}

	observability.TrainingRuns.WithLabelValues("manual").Inc()
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":  "in_progress",
		"version": mv.Version,
		"tag":     mlmodel.VersionTag(mv.Version),
	})
}

// TrainingProgress GET /api/v2/models/progress
func (c *Controller) TrainingProgress(ctx echo.Context) error {
	progress, err := c.Models.GetProgress()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read training progress", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, progress)
}

// ActivateModel POST /api/v2/models/:id/activate
func (c *Controller) ActivateModel(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid model id", http.StatusBadRequest)
	}

	mv, err := c.Models.Activate(uint(id))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to activate model", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, mv)
}

type trainingSettings struct {
	Mode   string `json:"mode"`
	Target int    `json:"target"`
}

// GetTrainingSettings GET /api/v2/models/settings
func (c *Controller) GetTrainingSettings(ctx echo.Context) error {
	mode, err := c.DS.GetSetting(datastore.SettingTrainingMode, datastore.DefaultTrainingMode)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read settings", http.StatusInternalServerError)
	}
	rawTarget, err := c.DS.GetSetting(datastore.SettingTrainingTarget,
		strconv.Itoa(datastore.DefaultTrainingTarget))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read settings", http.StatusInternalServerError)
	}
	target, err := strconv.Atoi(rawTarget)
	if err != nil {
		target = datastore.DefaultTrainingTarget
	}
	return ctx.JSON(http.StatusOK, trainingSettings{Mode: mode, Target: target})
}

// SetTrainingSettings PUT /api/v2/models/settings
func (c *Controller) SetTrainingSettings(ctx echo.Context) error {
	var req trainingSettings
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	if req.Mode != datastore.TrainingModeAuto && req.Mode != datastore.TrainingModeManual {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "mode must be auto or manual"})
	}
	if req.Target < 1 {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "target must be positive"})
	}

	if err := c.DS.SetSetting(datastore.SettingTrainingMode, req.Mode); err != nil {
		return c.HandleError(ctx, err, "Failed to save settings", http.StatusInternalServerError)
	}
	if err := c.DS.SetSetting(datastore.SettingTrainingTarget, strconv.Itoa(req.Target)); err != nil {
		return c.HandleError(ctx, err, "Failed to save settings", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, req)
}
