// Package autotrain retrains the model automatically once the bulk corpus
// grows past an operator-set threshold. The check runs after every bulk
// append but is sampled down so the corpus line count is not recomputed on
// every single reading.
package autotrain

import (
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/dataset"
	"github.com/aquaguard/aquaguard-go/internal/datastore"
	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/logging"
	"github.com/aquaguard/aquaguard-go/internal/observability"
)

// TriggerReason is recorded in the model version metadata for automatic runs.
const TriggerReason = "automatic-threshold"

// DefaultTarget is the corpus size threshold used when the operator has not
// set one.
const DefaultTarget = datastore.DefaultTrainingTarget

// Trainer starts a training run. Satisfied by the model lifecycle manager.
type Trainer interface {
	StartTraining(trigger string) (*datastore.ModelVersion, error)
}

// Trigger samples bulk-corpus growth and kicks off automatic training runs.
type Trigger struct {
	ds      datastore.Interface
	bulk    *dataset.Writer
	trainer Trainer
	logger  *slog.Logger

	sampling int
	// sample reports whether this invocation won the 1-in-N draw.
	sample func() bool
}

// New creates a Trigger with the configured 1-in-N sampling.
func New(settings *conf.Settings, ds datastore.Interface, bulk *dataset.Writer, trainer Trainer) *Trigger {
	n := settings.Ingest.AutoTrainSampling
	if n < 1 {
		n = 1
	}
	return &Trigger{
		ds:       ds,
		bulk:     bulk,
		trainer:  trainer,
		logger:   logging.ForService("autotrain"),
		sampling: n,
		sample:   func() bool { return rand.IntN(n) == 0 },
	}
}

// MaybeTrigger runs the threshold check, sampled 1-in-N. Training starts only
// when the operator mode is auto, the bulk corpus has reached the target and
// no run is already in flight. Returns whether a run was started.
func (tr *Trigger) MaybeTrigger() (bool, error) {
	if !tr.sample() {
		return false, nil
	}

	mode, err := tr.ds.GetSetting(datastore.SettingTrainingMode, datastore.DefaultTrainingMode)
	if err != nil {
		return false, err
	}
	if mode != datastore.TrainingModeAuto {
		return false, nil
	}

	target, err := tr.target()
	if err != nil {
		return false, err
	}

	lines, err := tr.bulk.LineCount()
	if err != nil {
		return false, err
	}
	if lines < target {
		return false, nil
	}

	inProgress, err := tr.ds.TrainingInProgress()
	if err != nil {
		return false, err
	}
	if inProgress {
		return false, nil
	}

	mv, err := tr.trainer.StartTraining(TriggerReason)
	if err != nil {
		// Lost the race against a concurrent manual start; not a failure.
		if errors.Is(err, datastore.ErrTrainingInProgress) {
			return false, nil
		}
		return false, err
	}

	observability.TrainingRuns.WithLabelValues(TriggerReason).Inc()
	tr.logger.Info("automatic training triggered",
		"corpus_lines", lines, "target", target, "version", mv.Version)
	return true, nil
}

func (tr *Trigger) target() (int, error) {
	raw, err := tr.ds.GetSetting(datastore.SettingTrainingTarget, strconv.Itoa(DefaultTarget))
	if err != nil {
		return 0, err
	}
	target, err := strconv.Atoi(raw)
	if err != nil || target < 1 {
		tr.logger.Warn("invalid training target setting, using default", "value", raw)
		return DefaultTarget, nil
	}
	return target, nil
}
