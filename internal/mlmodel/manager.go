// Package mlmodel manages the training lifecycle of the leak-detection
// models: launching training runs, tracking their progress through the
// filesystem handshake with the trainer process, and promoting finished
// models to active.
package mlmodel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/datastore"
	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/inference"
	"github.com/aquaguard/aquaguard-go/internal/logging"
)

// Manager drives the model lifecycle state machine.
type Manager struct {
	ds       datastore.Interface
	settings *conf.Settings
	runner   JobRunner
	logger   *slog.Logger
}

// New creates a Manager launching trainers as real detached processes.
func New(settings *conf.Settings, ds datastore.Interface) *Manager {
	return &Manager{
		ds:       ds,
		settings: settings,
		runner:   &processRunner{logger: logging.ForService("mlmodel")},
		logger:   logging.ForService("mlmodel"),
	}
}

// NewWithRunner creates a Manager with a custom job runner.
func NewWithRunner(settings *conf.Settings, ds datastore.Interface, runner JobRunner) *Manager {
	m := New(settings, ds)
	m.runner = runner
	return m
}

// VersionTag renders a version number as an artifact tag, e.g. 1.2 -> "v1_2".
func VersionTag(version float64) string {
	return "v" + strings.ReplaceAll(fmt.Sprintf("%.1f", version), ".", "_")
}

// StartTraining records a new TRAINING model version and launches the trainer
// in the background. At most one training run may be in flight; a second call
// while one is running returns datastore.ErrTrainingInProgress. The trigger
// string ("manual", "auto") is recorded in the version metadata.
func (m *Manager) StartTraining(trigger string) (*datastore.ModelVersion, error) {
	maxVersion, err := m.ds.MaxModelVersion()
	if err != nil {
		return nil, err
	}
	version := maxVersion + m.settings.ML.VersionStep
	tag := VersionTag(version)

	detectPath, err := m.settings.StoragePath("rf_leak_detect_" + tag + ".joblib")
	if err != nil {
		return nil, err
	}
	locatePath, err := m.settings.StoragePath("rf_leak_locate_" + tag + ".joblib")
	if err != nil {
		return nil, err
	}
	featuresPath, err := m.settings.StoragePath(conf.FeatureColumnsFile)
	if err != nil {
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]string{"trigger": trigger})
	mv := &datastore.ModelVersion{
		Name:             "Leak Detector " + tag,
		Description:      "Random forest detect/locate pair trained on the labeled corpora",
		Version:          version,
		Status:           datastore.ModelStatusTraining,
		FilePathDetect:   detectPath,
		FilePathLocate:   locatePath,
		FilePathFeatures: featuresPath,
		Metadata:         string(metadata),
	}

	if err := m.ds.CreateTrainingVersion(mv); err != nil {
		return nil, err
	}

	if err := m.resetProgressFiles(); err != nil {
		m.logger.Warn("could not reset training progress files", "error", err)
	}

	if err := m.launchTrainer(mv, tag); err != nil {
		// The row must not stay TRAINING when no trainer is running.
		if failErr := m.ds.FailTraining(); failErr != nil {
			m.logger.Error("could not mark training failed after launch error", "error", failErr)
		}
		return nil, err
	}

	m.logger.Info("training started", "version", version, "tag", tag, "trigger", trigger)
	return mv, nil
}

// launchTrainer starts the trainer process detached. The trainer reports back
// exclusively through the progress and result files.
func (m *Manager) launchTrainer(mv *datastore.ModelVersion, tag string) error {
	bulkPath, err := m.settings.BulkCorpusPath()
	if err != nil {
		return err
	}
	validatedPath, err := m.settings.ValidatedCorpusPath()
	if err != nil {
		return err
	}
	progressPath, err := m.settings.StoragePath(conf.TrainProgressFile)
	if err != nil {
		return err
	}
	resultPath, err := m.settings.StoragePath(conf.TrainResultFile)
	if err != nil {
		return err
	}

	args := []string{
		m.settings.ML.TrainScript,
		"--data", bulkPath,
		"--validated", validatedPath,
		"--detect-out", mv.FilePathDetect,
		"--locate-out", mv.FilePathLocate,
		"--features-out", mv.FilePathFeatures,
		"--progress", progressPath,
		"--result", resultPath,
		"--tag", tag,
	}
	return m.runner.Start(m.settings.ML.Python, args...)
}

// resetProgressFiles seeds the progress file for the new run and removes any
// stale result file from a previous one.
func (m *Manager) resetProgressFiles() error {
	progress := TrainProgress{Status: ProgressStatusStarting, Progress: 0, Message: "queued"}
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	progressPath, err := m.settings.StoragePath(conf.TrainProgressFile)
	if err != nil {
		return err
	}
	if err := os.WriteFile(progressPath, data, 0o644); err != nil {
		return errors.New(err).
			Component("mlmodel").
			Category(errors.CategoryFileIO).
			Context("path", progressPath).
			Build()
	}

	resultPath, err := m.settings.StoragePath(conf.TrainResultFile)
	if err != nil {
		return err
	}
	if err := os.Remove(resultPath); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("mlmodel").
			Category(errors.CategoryFileIO).
			Context("path", resultPath).
			Build()
	}
	return nil
}

// Activate promotes the given model version to ACTIVE.
func (m *Manager) Activate(id uint) (*datastore.ModelVersion, error) {
	mv, err := m.ds.GetModelVersion(id)
	if err != nil {
		return nil, err
	}
	if mv.Status != datastore.ModelStatusTrained && mv.Status != datastore.ModelStatusActive {
		return nil, errors.Newf("model version %d is %s, only trained models can be activated", id, mv.Status).
			Component("mlmodel").
			Category(errors.CategoryModelState).
			Build()
	}
	return m.ds.ActivateModel(id)
}

// List returns all recorded model versions, newest version first.
func (m *Manager) List() ([]datastore.ModelVersion, error) {
	return m.ds.ListModelVersions()
}

// Summary describes the model the system would currently predict with.
type Summary struct {
	Status    string    `json:"status"`
	Version   float64   `json:"version,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// StatusNotTrained is the summary status before any model has been trained.
const StatusNotTrained = "NOT_TRAINED"

// ActiveSummary summarizes the active model, falling back to the latest
// trained one, or a NOT_TRAINED placeholder when neither exists.
func (m *Manager) ActiveSummary() (Summary, error) {
	mv, err := m.ds.ActiveModel()
	if err != nil {
		return Summary{}, err
	}
	if mv == nil {
		mv, err = m.ds.LatestTrainedModel()
		if err != nil {
			return Summary{}, err
		}
	}
	if mv == nil {
		return Summary{Status: StatusNotTrained}, nil
	}
	return Summary{
		Status:    mv.Status,
		Version:   mv.Version,
		Tag:       VersionTag(mv.Version),
		Accuracy:  mv.Accuracy,
		UpdatedAt: mv.UpdatedAt,
	}, nil
}

// ActiveArtifacts resolves the artifact paths of the active model for the
// inference invoker.
func (m *Manager) ActiveArtifacts() (inference.ModelArtifacts, bool, error) {
	mv, err := m.ds.ActiveModel()
	if err != nil {
		return inference.ModelArtifacts{}, false, err
	}
	if mv == nil {
		return inference.ModelArtifacts{}, false, nil
	}
	return inference.ModelArtifacts{
		DetectPath:   mv.FilePathDetect,
		LocatePath:   mv.FilePathLocate,
		FeaturesPath: mv.FilePathFeatures,
	}, true, nil
}
