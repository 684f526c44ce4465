// Package alert turns positive predictions into alert rows and feeds human
// review decisions back into the validated training corpus. It is the hinge
// between live detection and the reinforcement loop.
package alert

import (
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/dataset"
	"github.com/aquaguard/aquaguard-go/internal/datastore"
	"github.com/aquaguard/aquaguard-go/internal/logging"
	"github.com/aquaguard/aquaguard-go/internal/notification"
	"github.com/aquaguard/aquaguard-go/internal/observability"
	"github.com/aquaguard/aquaguard-go/internal/telemetry"
)

// Mapper resolves between pipeline IDs and model class labels.
type Mapper interface {
	GetLabel(pipelineID string) int
	GetIDFromLabel(label int) (string, bool)
}

// Bridge creates alerts from predictions and reinforces the validated corpus
// from review decisions.
type Bridge struct {
	ds        datastore.Interface
	mapper    Mapper
	validated *dataset.Writer
	settings  *conf.Settings
	bus       *notification.Bus
	suppress  *gocache.Cache
	logger    *slog.Logger
}

// New creates a Bridge. The suppression cache expiry tracks the configured
// dedup window.
func New(settings *conf.Settings, ds datastore.Interface, mapper Mapper, validated *dataset.Writer, bus *notification.Bus) *Bridge {
	window := settings.DedupWindow()
	return &Bridge{
		ds:        ds,
		mapper:    mapper,
		validated: validated,
		settings:  settings,
		bus:       bus,
		suppress:  gocache.New(window, 2*window),
		logger:    logging.ForService("alert"),
	}
}

// OnPositivePrediction creates an alert for a positive leak verdict unless an
// equivalent alert is already live within the dedup window. Returns the alert
// and whether one was created.
func (b *Bridge) OnPositivePrediction(locationLabel int, confidence float64) (*datastore.Alert, bool, error) {
	pipelineID, located := b.mapper.GetIDFromLabel(locationLabel)

	dedupKey := suppressKey(pipelineID)
	if _, held := b.suppress.Get(dedupKey); held {
		observability.AlertsSuppressed.Inc()
		return nil, false, nil
	}
	if located {
		since := time.Now().Add(-b.settings.DedupWindow())
		recent, err := b.ds.HasRecentUnresolvedAlert(pipelineID, since)
		if err != nil {
			return nil, false, err
		}
		if recent {
			b.suppress.SetDefault(dedupKey, struct{}{})
			observability.AlertsSuppressed.Inc()
			return nil, false, nil
		}
	}

	sensorID, err := b.sensorFor(pipelineID)
	if err != nil {
		return nil, false, err
	}

	alert := &datastore.Alert{
		SensorID: sensorID,
		Message:  alertMessage(pipelineID, confidence),
		Severity: severityFor(confidence),
		Accuracy: confidence,
	}
	if located {
		alert.PipelineID = &pipelineID
	}
	if err := b.ds.CreateAlert(alert); err != nil {
		return nil, false, err
	}

	b.suppress.SetDefault(dedupKey, struct{}{})
	observability.AlertsCreated.Inc()
	b.bus.Publish(notification.EventLeakDetected, alert)
	b.logger.Info("leak alert created",
		"alert_id", alert.ID, "pipeline_id", pipelineID,
		"sensor_id", sensorID, "confidence", confidence)
	return alert, true, nil
}

// suppressKey maps a pipeline to its suppression-cache key. Unlocated
// positives share one key, so at most one unlocated alert is live per window.
func suppressKey(pipelineID string) string {
	if pipelineID == "" {
		return "unlocated"
	}
	return pipelineID
}

// liftSuppression drops the cache entry for a reviewed alert. Deduplication
// only spans unresolved alerts, so the next positive must alert again.
func (b *Bridge) liftSuppression(pipelineID *string) {
	if pipelineID == nil {
		b.suppress.Delete(suppressKey(""))
		return
	}
	b.suppress.Delete(suppressKey(*pipelineID))
}

// sensorFor resolves the sensor closest to the pipeline, defaulting to the
// configured main sensor when the pipeline is unknown.
func (b *Bridge) sensorFor(pipelineID string) (string, error) {
	if pipelineID == "" {
		return b.settings.Ingest.DefaultSensorID, nil
	}
	pipe, err := b.ds.GetPipeline(pipelineID)
	if err != nil {
		return "", err
	}
	if pipe == nil || pipe.From == "" {
		return b.settings.Ingest.DefaultSensorID, nil
	}
	return pipe.From, nil
}

func alertMessage(pipelineID string, confidence float64) string {
	if pipelineID == "" {
		return fmt.Sprintf("Possible leak detected, location unresolved (confidence %.1f%%)", confidence)
	}
	return fmt.Sprintf("Possible leak detected near pipeline %s (confidence %.1f%%)", pipelineID, confidence)
}

func severityFor(confidence float64) string {
	switch {
	case confidence >= 90:
		return datastore.SeverityCritical
	case confidence >= 70:
		return datastore.SeverityWarning
	default:
		return datastore.SeverityInfo
	}
}

// Resolve confirms an alert as a real leak. When the reviewer supplies a
// corrected pipeline ID it replaces the predicted one, and the reinforcement
// row is labeled with the correction.
func (b *Bridge) Resolve(id uint, correctedPipelineID string) (*datastore.Alert, error) {
	alert, err := b.ds.GetAlert(id)
	if err != nil {
		return nil, err
	}

	predictedPipeline := alert.PipelineID
	if correctedPipelineID != "" {
		alert.PipelineID = &correctedPipelineID
	}
	now := time.Now()
	alert.ResolvedAt = &now
	alert.FalsePositive = false
	if err := b.ds.SaveAlert(alert); err != nil {
		return nil, err
	}
	b.liftSuppression(predictedPipeline)

	b.reinforce(alert, 1, b.labelFor(alert))
	b.bus.Publish(notification.EventAlertResolved, alert)
	return alert, nil
}

// MarkFalse dismisses an alert as a false positive and reinforces the corpus
// with a no-leak example.
func (b *Bridge) MarkFalse(id uint) (*datastore.Alert, error) {
	alert, err := b.ds.GetAlert(id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	alert.ResolvedAt = &now
	alert.FalsePositive = true
	if err := b.ds.SaveAlert(alert); err != nil {
		return nil, err
	}
	b.liftSuppression(alert.PipelineID)

	b.reinforce(alert, 0, 0)
	b.bus.Publish(notification.EventAlertResolved, alert)
	return alert, nil
}

// ResolveGroup confirms a batch of alerts in one update and writes a single
// representative reinforcement example taken from the newest alert, so a
// burst of duplicates does not multiply into the corpus.
func (b *Bridge) ResolveGroup(ids []uint, correctedPipelineID string) error {
	members, err := b.ds.GetAlertsByIDs(ids)
	if err != nil {
		return err
	}
	now := time.Now()
	updates := map[string]any{"resolved_at": now, "false_positive": false}
	if correctedPipelineID != "" {
		updates["pipeline_id"] = correctedPipelineID
	}
	if err := b.ds.UpdateAlerts(ids, updates); err != nil {
		return err
	}
	for i := range members {
		b.liftSuppression(members[i].PipelineID)
	}

	representative, err := b.ds.LatestAlertOf(ids)
	if err != nil {
		return err
	}
	if representative != nil {
		if correctedPipelineID != "" {
			representative.PipelineID = &correctedPipelineID
		}
		b.reinforce(representative, 1, b.labelFor(representative))
		b.bus.Publish(notification.EventAlertResolved, representative)
	}
	return nil
}

// MarkFalseGroup dismisses a batch of alerts with a single no-leak
// reinforcement example.
func (b *Bridge) MarkFalseGroup(ids []uint) error {
	members, err := b.ds.GetAlertsByIDs(ids)
	if err != nil {
		return err
	}
	now := time.Now()
	updates := map[string]any{"resolved_at": now, "false_positive": true}
	if err := b.ds.UpdateAlerts(ids, updates); err != nil {
		return err
	}
	for i := range members {
		b.liftSuppression(members[i].PipelineID)
	}

	representative, err := b.ds.LatestAlertOf(ids)
	if err != nil {
		return err
	}
	if representative != nil {
		b.reinforce(representative, 0, 0)
		b.bus.Publish(notification.EventAlertResolved, representative)
	}
	return nil
}

func (b *Bridge) labelFor(alert *datastore.Alert) int {
	if alert.PipelineID == nil {
		return 0
	}
	return b.mapper.GetLabel(*alert.PipelineID)
}

// reinforce writes the oversampled validated-corpus rows for a review
// decision, using the sensor reading closest to the alert. Reinforcement is
// best-effort: a failure is logged but never blocks the review itself.
func (b *Bridge) reinforce(alert *datastore.Alert, leak, location int) {
	reading, err := b.ds.LatestReadingBefore(alert.CreatedAt.Add(b.settings.Lookback()))
	if err != nil {
		b.logger.Error("reinforcement reading lookup failed", "alert_id", alert.ID, "error", err)
		return
	}
	if reading == nil {
		reading, err = b.ds.LatestReading()
		if err != nil {
			b.logger.Error("reinforcement reading lookup failed", "alert_id", alert.ID, "error", err)
			return
		}
		if reading == nil {
			b.logger.Warn("no sensor reading available for reinforcement", "alert_id", alert.ID)
			return
		}
		b.logger.Warn("no reading near alert, reinforcing from latest reading",
			"alert_id", alert.ID, "reading_id", reading.ID)
	}

	row := dataset.Row{
		Sample:       sampleFromReading(reading),
		LeakDetected: leak,
		LeakLocation: location,
	}
	if err := b.validated.Append(row, dataset.ValidatedOversampling); err != nil {
		b.logger.Error("validated corpus append failed", "alert_id", alert.ID, "error", err)
		return
	}
	observability.DatasetRows.WithLabelValues("validated").Add(dataset.ValidatedOversampling)
	b.logger.Info("reinforcement example written",
		"alert_id", alert.ID, "leak", leak, "location", location)
}

func sampleFromReading(r *datastore.SensorReading) *telemetry.Sample {
	return &telemetry.Sample{
		FMain: r.FMain, F1: r.F1, F2: r.F2, F3: r.F3,
		PMain: r.PMain, PDma1: r.PDma1, PDma2: r.PDma2, PDma3: r.PDma3,
		PumpOn: r.PumpOn, CompOn: r.CompOn,
		S1: r.S1, S2: r.S2, S3: r.S3,
		SolenoidActive: r.SolenoidActive,
	}
}
