// Package processor orchestrates the ingest pipeline: parse, predict,
// persist, alert, corpus append, auto-train check. Handlers stay thin and
// call in here.
package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/dataset"
	"github.com/aquaguard/aquaguard-go/internal/datastore"
	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/inference"
	"github.com/aquaguard/aquaguard-go/internal/logging"
	"github.com/aquaguard/aquaguard-go/internal/notification"
	"github.com/aquaguard/aquaguard-go/internal/observability"
	"github.com/aquaguard/aquaguard-go/internal/telemetry"
)

// Predictor yields a verdict for one sample.
type Predictor interface {
	Predict(ctx context.Context, sample *telemetry.Sample) inference.Prediction
}

// AlertSink receives positive verdicts.
type AlertSink interface {
	OnPositivePrediction(locationLabel int, confidence float64) (*datastore.Alert, bool, error)
}

// TrainTrigger runs the sampled auto-train threshold check.
type TrainTrigger interface {
	MaybeTrigger() (bool, error)
}

// LabelMapper resolves pipeline IDs to class labels for labeled submissions.
type LabelMapper interface {
	GetLabel(pipelineID string) int
}

// Processor wires the ingest pipeline stages together.
type Processor struct {
	settings  *conf.Settings
	ds        datastore.Interface
	parser    *telemetry.Parser
	predictor Predictor
	alerts    AlertSink
	mapper    LabelMapper
	bulk      *dataset.Writer
	validated *dataset.Writer
	trigger   TrainTrigger
	bus       *notification.Bus
	logger    *slog.Logger
}

// New creates a Processor.
func New(settings *conf.Settings, ds datastore.Interface, parser *telemetry.Parser,
	predictor Predictor, alerts AlertSink, mapper LabelMapper,
	bulk, validated *dataset.Writer, trigger TrainTrigger, bus *notification.Bus,
) *Processor {
	return &Processor{
		settings:  settings,
		ds:        ds,
		parser:    parser,
		predictor: predictor,
		alerts:    alerts,
		mapper:    mapper,
		bulk:      bulk,
		validated: validated,
		trigger:   trigger,
		bus:       bus,
		logger:    logging.ForService("processor"),
	}
}

// Ingest runs one telemetry body through the full pipeline and returns the
// stored reading. Parse failures are returned to the caller; everything after
// the reading is stored is best-effort and only logged.
func (p *Processor) Ingest(ctx context.Context, body []byte) (*datastore.SensorReading, inference.Prediction, error) {
	sample, _, err := p.parser.Parse(body)
	if err != nil {
		observability.IngestTotal.WithLabelValues("invalid").Inc()
		return nil, inference.Prediction{}, err
	}

	start := time.Now()
	pred := p.predictor.Predict(ctx, sample)
	observability.InferenceDuration.Observe(time.Since(start).Seconds())
	observability.PredictionsTotal.WithLabelValues(verdictLabel(sample, pred)).Inc()

	reading := readingFrom(sample, pred)
	if err := p.ds.SaveReading(reading); err != nil {
		observability.IngestTotal.WithLabelValues("error").Inc()
		return nil, pred, err
	}
	observability.IngestTotal.WithLabelValues("ok").Inc()
	p.bus.Publish(notification.EventSensorUpdated, reading)

	if pred.LeakDetected == 1 {
		if _, _, err := p.alerts.OnPositivePrediction(pred.LeakLocation, pred.Confidence); err != nil {
			p.logger.Error("alert creation failed", "reading_id", reading.ID, "error", err)
		}
	}

	row := dataset.Row{Sample: sample, LeakDetected: bulkLeakLabel(sample, pred), LeakLocation: bulkLocationLabel(sample, pred)}
	if err := p.bulk.Append(row, 1); err != nil {
		p.logger.Error("bulk corpus append failed", "reading_id", reading.ID, "error", err)
	} else {
		observability.DatasetRows.WithLabelValues("bulk").Inc()
		if _, err := p.trigger.MaybeTrigger(); err != nil {
			p.logger.Error("auto-train check failed", "error", err)
		}
	}

	return reading, pred, nil
}

// CollectLabeled handles a human-labeled submission: the sample plus a
// manual_label ("leak" or "safe") and, for leaks, the pipeline the leak was
// actually on. Rows go to the validated corpus with oversampling.
func (p *Processor) CollectLabeled(body []byte) (int, error) {
	sample, raw, err := p.parser.Parse(body)
	if err != nil {
		return 0, err
	}

	label, ok := raw["manual_label"].(string)
	if !ok || (label != "leak" && label != "safe") {
		return 0, errors.Newf("manual_label must be \"leak\" or \"safe\"").
			Component("processor").
			Category(errors.CategoryValidation).
			Build()
	}

	leak, location := 0, 0
	if label == "leak" {
		leak = 1
		if pid, ok := raw["manual_pipeline_id"].(string); ok && pid != "" {
			location = p.mapper.GetLabel(pid)
		}
	}

	row := dataset.Row{Sample: sample, LeakDetected: leak, LeakLocation: location}
	if err := p.validated.Append(row, dataset.ValidatedOversampling); err != nil {
		return 0, err
	}
	observability.DatasetRows.WithLabelValues("validated").Add(dataset.ValidatedOversampling)
	p.logger.Info("labeled example collected", "label", label, "location", location)
	return dataset.ValidatedOversampling, nil
}

// bulkLeakLabel picks the training label for the bulk corpus. A declared
// simulated_leak is ground truth and overrides the model verdict, including
// simulated_leak=0.
func bulkLeakLabel(sample *telemetry.Sample, pred inference.Prediction) int {
	if sample.SimulatedLeak != nil {
		return *sample.SimulatedLeak
	}
	return pred.LeakDetected
}

func bulkLocationLabel(sample *telemetry.Sample, pred inference.Prediction) int {
	if sample.SimulatedLocation != nil {
		return *sample.SimulatedLocation
	}
	return pred.LeakLocation
}

func verdictLabel(sample *telemetry.Sample, pred inference.Prediction) string {
	switch {
	case sample.HasSimulatedLeak():
		return "simulated"
	case pred.LeakDetected == 1:
		return "leak"
	default:
		return "no_leak"
	}
}

// readingFrom flattens a sample and its verdict into the persisted row.
func readingFrom(sample *telemetry.Sample, pred inference.Prediction) *datastore.SensorReading {
	details, _ := json.Marshal(map[string]any{"ml_accuracy": pred.Confidence})
	return &datastore.SensorReading{
		FMain: sample.FMain, F1: sample.F1, F2: sample.F2, F3: sample.F3,
		PMain: sample.PMain, PDma1: sample.PDma1, PDma2: sample.PDma2, PDma3: sample.PDma3,
		PumpOn: sample.PumpOn, CompOn: sample.CompOn,
		S1: sample.S1, S2: sample.S2, S3: sample.S3,
		SolenoidActive: sample.SolenoidActive,
		IsLeak:         pred.LeakDetected,
		LeakLocation:   pred.LeakLocation,
		Details:        string(details),
	}
}
