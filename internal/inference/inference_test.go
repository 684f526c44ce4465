package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/telemetry"
)

type fakeRunner struct {
	out     []byte
	err     error
	delay   time.Duration
	lastCmd []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.lastCmd = append([]string{name}, args...)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

type fakeArtifacts struct {
	arts ModelArtifacts
	ok   bool
	err  error
}

func (f *fakeArtifacts) ActiveArtifacts() (ModelArtifacts, bool, error) {
	return f.arts, f.ok, f.err
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.ML.Python = "python3"
	s.ML.PredictScript = "ml/predict_leak.py"
	s.ML.InferenceTimeout = 1
	return s
}

func activeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{
		arts: ModelArtifacts{
			DetectPath:   "ml_models/rf_leak_detect_v1_0.joblib",
			LocatePath:   "ml_models/rf_leak_locate_v1_0.joblib",
			FeaturesPath: "ml_models/feature_cols.joblib",
		},
		ok: true,
	}
}

func TestPredictParsesOutput(t *testing.T) {
	runner := &fakeRunner{out: []byte(`{"leak_detected":1,"leak_location":2,"confidence":87.5}` + "\n")}
	inv := NewWithRunner(testSettings(t), activeArtifacts(), runner)

	pred := inv.Predict(context.Background(), &telemetry.Sample{FMain: 10})
	assert.Equal(t, 1, pred.LeakDetected)
	assert.Equal(t, 2, pred.LeakLocation)
	assert.InDelta(t, 87.5, pred.Confidence, 1e-9)

	require.NotEmpty(t, runner.lastCmd)
	assert.Equal(t, "python3", runner.lastCmd[0])
	assert.Contains(t, runner.lastCmd, "--detect")
	assert.Contains(t, runner.lastCmd, "ml_models/rf_leak_detect_v1_0.joblib")
}

func TestPredictSimulatedLeakSkipsPredictor(t *testing.T) {
	runner := &fakeRunner{out: []byte(`{"leak_detected":0}`)}
	inv := NewWithRunner(testSettings(t), activeArtifacts(), runner)

	one, three := 1, 3
	pred := inv.Predict(context.Background(), &telemetry.Sample{
		SimulatedLeak: &one, SimulatedLocation: &three,
	})

	assert.Equal(t, Prediction{LeakDetected: 1, LeakLocation: 3, Confidence: 100}, pred)
	assert.Nil(t, runner.lastCmd, "predictor must not run for declared ground truth")
}

func TestPredictSafeDefaults(t *testing.T) {
	sample := &telemetry.Sample{FMain: 5}

	t.Run("RunnerError", func(t *testing.T) {
		runner := &fakeRunner{err: assert.AnError}
		inv := NewWithRunner(testSettings(t), activeArtifacts(), runner)
		assert.Equal(t, SafeDefault(), inv.Predict(context.Background(), sample))
	})

	t.Run("GarbageOutput", func(t *testing.T) {
		runner := &fakeRunner{out: []byte("Traceback (most recent call last):")}
		inv := NewWithRunner(testSettings(t), activeArtifacts(), runner)
		assert.Equal(t, SafeDefault(), inv.Predict(context.Background(), sample))
	})

	t.Run("NoActiveModel", func(t *testing.T) {
		runner := &fakeRunner{out: []byte(`{"leak_detected":1}`)}
		inv := NewWithRunner(testSettings(t), &fakeArtifacts{ok: false}, runner)
		assert.Equal(t, SafeDefault(), inv.Predict(context.Background(), sample))
		assert.Nil(t, runner.lastCmd)
	})

	t.Run("ArtifactLookupError", func(t *testing.T) {
		inv := NewWithRunner(testSettings(t), &fakeArtifacts{err: assert.AnError}, &fakeRunner{})
		assert.Equal(t, SafeDefault(), inv.Predict(context.Background(), sample))
	})

	t.Run("Timeout", func(t *testing.T) {
		runner := &fakeRunner{out: []byte(`{"leak_detected":1}`), delay: 5 * time.Second}
		inv := NewWithRunner(testSettings(t), activeArtifacts(), runner)

		start := time.Now()
		pred := inv.Predict(context.Background(), sample)
		assert.Equal(t, SafeDefault(), pred)
		assert.Less(t, time.Since(start), 3*time.Second, "timeout must cut the predictor off")
	})
}
