// Package inference invokes the external leak predictor over a sample and
// normalizes its output. The predictor is a separate Python process holding
// the trained model artifacts; a crashed, slow or missing predictor degrades
// to a safe no-leak result so ingestion keeps flowing.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"time"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/logging"
	"github.com/aquaguard/aquaguard-go/internal/telemetry"
)

// Prediction is the normalized predictor verdict for one sample.
type Prediction struct {
	LeakDetected int     `json:"leak_detected"`
	LeakLocation int     `json:"leak_location"`
	Confidence   float64 `json:"confidence"`
}

// SafeDefault is the verdict used whenever the predictor cannot be consulted.
func SafeDefault() Prediction {
	return Prediction{LeakDetected: 0, LeakLocation: 0, Confidence: 0}
}

// ModelArtifacts names the model files the predictor loads.
type ModelArtifacts struct {
	DetectPath   string
	LocatePath   string
	FeaturesPath string
}

// ArtifactSource resolves the artifacts of the currently active model.
// An empty result means no model is active yet.
type ArtifactSource interface {
	ActiveArtifacts() (ModelArtifacts, bool, error)
}

// Invoker shells out to the configured predictor script.
type Invoker struct {
	settings  *conf.Settings
	artifacts ArtifactSource
	runner    CommandRunner
	logger    *slog.Logger
}

// CommandRunner executes the predictor command and returns its stdout.
// Factored out so tests can substitute the Python process.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryCommandExecution).
			Context("command", name).
			Context("stderr", stderr.String()).
			Build()
	}
	return stdout.Bytes(), nil
}

// New creates an Invoker using the configured Python interpreter and script.
func New(settings *conf.Settings, artifacts ArtifactSource) *Invoker {
	return &Invoker{
		settings:  settings,
		artifacts: artifacts,
		runner:    execRunner{},
		logger:    logging.ForService("inference"),
	}
}

// NewWithRunner creates an Invoker with a custom command runner.
func NewWithRunner(settings *conf.Settings, artifacts ArtifactSource, runner CommandRunner) *Invoker {
	inv := New(settings, artifacts)
	inv.runner = runner
	return inv
}

// Predict runs the predictor over the sample. Simulated ground truth wins
// outright: a declared leak becomes a full-confidence verdict without
// consulting the predictor. Every failure path logs and returns the safe
// default with a nil error; ingestion must never fail because the model did.
func (inv *Invoker) Predict(ctx context.Context, sample *telemetry.Sample) Prediction {
	if sample.HasSimulatedLeak() {
		return Prediction{
			LeakDetected: 1,
			LeakLocation: sample.SimulatedLocationLabel(),
			Confidence:   100,
		}
	}

	arts, ok, err := inv.artifacts.ActiveArtifacts()
	if err != nil {
		inv.logger.Error("could not resolve active model", "error", err)
		return SafeDefault()
	}
	if !ok {
		inv.logger.Debug("no active model, returning safe default")
		return SafeDefault()
	}

	input, err := json.Marshal(sample)
	if err != nil {
		inv.logger.Error("could not marshal sample", "error", err)
		return SafeDefault()
	}

	ctx, cancel := context.WithTimeout(ctx, inv.settings.InferenceTimeout())
	defer cancel()

	start := time.Now()
	out, err := inv.runner.Run(ctx, inv.settings.ML.Python,
		inv.settings.ML.PredictScript,
		"--detect", arts.DetectPath,
		"--locate", arts.LocatePath,
		"--features", arts.FeaturesPath,
		"--input", string(input),
	)
	elapsed := time.Since(start)
	if err != nil {
		inv.logger.Warn("predictor invocation failed, using safe default",
			"error", err, "elapsed", elapsed)
		return SafeDefault()
	}

	var pred Prediction
	if err := json.Unmarshal(bytes.TrimSpace(out), &pred); err != nil {
		inv.logger.Warn("predictor returned unparseable output, using safe default",
			"error", err, "output", truncate(out, 200))
		return SafeDefault()
	}

	inv.logger.Debug("prediction complete",
		"leak", pred.LeakDetected, "location", pred.LeakLocation,
		"confidence", pred.Confidence, "elapsed", elapsed)
	return pred
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
