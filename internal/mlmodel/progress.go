package mlmodel

import (
	"encoding/json"
	"os"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/errors"
)

// Progress statuses written by the trainer into the progress file.
const (
	ProgressStatusIdle     = "idle"
	ProgressStatusStarting = "starting"
	ProgressStatusRunning  = "running"
	ProgressStatusComplete = "complete"
	ProgressStatusFailed   = "failed"
)

// TrainProgress mirrors the progress file the trainer updates as it runs.
type TrainProgress struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// TrainResult mirrors the result file the trainer writes once at the end.
type TrainResult struct {
	Status   string  `json:"status"`
	Accuracy float64 `json:"accuracy"`
	Error    string  `json:"error,omitempty"`
}

// GetProgress reads the trainer's progress file and, on a terminal status,
// folds the outcome back into the database: complete runs promote the
// TRAINING row to TRAINED with the reported accuracy, failed runs mark it
// FAILED. The fold is idempotent, so polling past completion is harmless.
func (m *Manager) GetProgress() (TrainProgress, error) {
	progressPath, err := m.settings.StoragePath(conf.TrainProgressFile)
	if err != nil {
		return TrainProgress{}, err
	}

	data, err := os.ReadFile(progressPath)
	if os.IsNotExist(err) {
		return TrainProgress{Status: ProgressStatusIdle}, nil
	}
	if err != nil {
		return TrainProgress{}, errors.New(err).
			Component("mlmodel").
			Category(errors.CategoryFileIO).
			Context("path", progressPath).
			Build()
	}

	var progress TrainProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return TrainProgress{}, errors.New(err).
			Component("mlmodel").
			Category(errors.CategoryFileIO).
			Context("path", progressPath).
			Build()
	}

	switch {
	case progress.Status == ProgressStatusFailed:
		if err := m.ds.FailTraining(); err != nil {
			return progress, err
		}
	// Some trainer builds stop updating the status field once the bar hits
	// 100, so a full progress counter is treated as completion too.
	case progress.Status == ProgressStatusComplete || progress.Progress >= 100:
		if err := m.foldCompletion(); err != nil {
			return progress, err
		}
	}
	return progress, nil
}

// foldCompletion reads the result file and closes out the TRAINING row.
func (m *Manager) foldCompletion() error {
	resultPath, err := m.settings.StoragePath(conf.TrainResultFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(resultPath)
	if os.IsNotExist(err) {
		// Progress says complete but the result is not on disk yet; the next
		// poll will pick it up.
		return nil
	}
	if err != nil {
		return errors.New(err).
			Component("mlmodel").
			Category(errors.CategoryFileIO).
			Context("path", resultPath).
			Build()
	}

	var result TrainResult
	if err := json.Unmarshal(data, &result); err != nil {
		return errors.New(err).
			Component("mlmodel").
			Category(errors.CategoryFileIO).
			Context("path", resultPath).
			Build()
	}

	if result.Status != "success" {
		m.logger.Warn("training run reported failure", "error", result.Error)
		return m.ds.FailTraining()
	}

	mv, err := m.ds.CompleteTraining(result.Accuracy)
	if err != nil {
		return err
	}
	if mv != nil {
		m.logger.Info("training complete",
			"version", mv.Version, "accuracy", result.Accuracy)
	}
	return nil
}
