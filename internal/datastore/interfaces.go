// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/logging"
)

// Interface abstracts the underlying database implementation and defines the
// operations used by the leak-detection pipeline.
type Interface interface {
	Open() error
	Close() error

	// telemetry
	SaveReading(reading *SensorReading) error
	GetLatestReadings(limit int) ([]SensorReading, error)
	LatestReadingBefore(t time.Time) (*SensorReading, error)
	LatestReading() (*SensorReading, error)

	// alerts
	CreateAlert(alert *Alert) error
	GetAlert(id uint) (*Alert, error)
	GetAlerts(includeResolved bool) ([]Alert, error)
	SaveAlert(alert *Alert) error
	HasRecentUnresolvedAlert(pipelineID string, since time.Time) (bool, error)
	GetAlertsByIDs(ids []uint) ([]Alert, error)
	UpdateAlerts(ids []uint, updates map[string]any) error
	LatestAlertOf(ids []uint) (*Alert, error)

	// model lifecycle
	CreateTrainingVersion(mv *ModelVersion) error
	MaxModelVersion() (float64, error)
	TrainingInProgress() (bool, error)
	CompleteTraining(accuracy float64) (*ModelVersion, error)
	FailTraining() error
	ActivateModel(id uint) (*ModelVersion, error)
	GetModelVersion(id uint) (*ModelVersion, error)
	ListModelVersions() ([]ModelVersion, error)
	ActiveModel() (*ModelVersion, error)
	LatestTrainedModel() (*ModelVersion, error)

	// topology
	ListPipelineIDs() ([]string, error)
	GetPipeline(id string) (*Pipeline, error)

	// settings
	GetSetting(key, fallback string) (string, error)
	SetSetting(key, value string) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB     *gorm.DB // GORM database instance
	logger *slog.Logger
}

// New creates a new datastore instance based on the provided settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

func (ds *DataStore) log() *slog.Logger {
	if ds.logger == nil {
		ds.logger = logging.ForService("datastore")
	}
	return ds.logger
}

// dbError wraps a gorm error with datastore metadata.
func dbError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

// SaveReading stores one telemetry sample.
func (ds *DataStore) SaveReading(reading *SensorReading) error {
	if err := ds.DB.Create(reading).Error; err != nil {
		return dbError(err, "save_reading")
	}
	return nil
}

// GetLatestReadings returns the newest readings, newest first.
func (ds *DataStore) GetLatestReadings(limit int) ([]SensorReading, error) {
	var readings []SensorReading
	if err := ds.DB.Order("created_at DESC").Limit(limit).Find(&readings).Error; err != nil {
		return nil, dbError(err, "get_latest_readings")
	}
	return readings, nil
}

// LatestReadingBefore returns the newest reading created at or before t, or
// nil when no such reading exists.
func (ds *DataStore) LatestReadingBefore(t time.Time) (*SensorReading, error) {
	var reading SensorReading
	err := ds.DB.Where("created_at <= ?", t).Order("created_at DESC").First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "latest_reading_before")
	}
	return &reading, nil
}

// LatestReading returns the newest reading, or nil when the table is empty.
func (ds *DataStore) LatestReading() (*SensorReading, error) {
	var reading SensorReading
	err := ds.DB.Order("created_at DESC").First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "latest_reading")
	}
	return &reading, nil
}

// CreateAlert stores a new alert row.
func (ds *DataStore) CreateAlert(alert *Alert) error {
	if err := ds.DB.Create(alert).Error; err != nil {
		return dbError(err, "create_alert")
	}
	return nil
}

// GetAlert retrieves an alert by id.
func (ds *DataStore) GetAlert(id uint) (*Alert, error) {
	var alert Alert
	err := ds.DB.First(&alert, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf("alert %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "get_alert")
	}
	return &alert, nil
}

// GetAlerts returns alerts newest first, either all of them or only the
// unresolved ones.
func (ds *DataStore) GetAlerts(includeResolved bool) ([]Alert, error) {
	var alerts []Alert
	q := ds.DB.Order("created_at DESC")
	if !includeResolved {
		q = q.Where("resolved_at IS NULL")
	}
	if err := q.Find(&alerts).Error; err != nil {
		return nil, dbError(err, "get_alerts")
	}
	return alerts, nil
}

// SaveAlert persists modifications of an existing alert.
func (ds *DataStore) SaveAlert(alert *Alert) error {
	if err := ds.DB.Save(alert).Error; err != nil {
		return dbError(err, "save_alert")
	}
	return nil
}

// HasRecentUnresolvedAlert reports whether an unresolved alert exists for the
// given pipeline created after the given instant. Used for deduplication.
func (ds *DataStore) HasRecentUnresolvedAlert(pipelineID string, since time.Time) (bool, error) {
	var count int64
	err := ds.DB.Model(&Alert{}).
		Where("pipeline_id = ?", pipelineID).
		Where("resolved_at IS NULL").
		Where("created_at > ?", since).
		Count(&count).Error
	if err != nil {
		return false, dbError(err, "has_recent_unresolved_alert")
	}
	return count > 0, nil
}

// GetAlertsByIDs returns the alerts matching ids; unknown ids are skipped.
func (ds *DataStore) GetAlertsByIDs(ids []uint) ([]Alert, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var alerts []Alert
	if err := ds.DB.Where("id IN ?", ids).Find(&alerts).Error; err != nil {
		return nil, dbError(err, "get_alerts_by_ids")
	}
	return alerts, nil
}

// UpdateAlerts applies the given column updates to all alerts in ids.
func (ds *DataStore) UpdateAlerts(ids []uint, updates map[string]any) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ds.DB.Model(&Alert{}).Where("id IN ?", ids).Updates(updates).Error; err != nil {
		return dbError(err, "update_alerts")
	}
	return nil
}

// LatestAlertOf returns the newest alert among ids, or nil for an empty set.
func (ds *DataStore) LatestAlertOf(ids []uint) (*Alert, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var alert Alert
	err := ds.DB.Where("id IN ?", ids).Order("created_at DESC").First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "latest_alert_of")
	}
	return &alert, nil
}

// ListPipelineIDs returns the ids of all known pipeline segments.
func (ds *DataStore) ListPipelineIDs() ([]string, error) {
	var ids []string
	if err := ds.DB.Model(&Pipeline{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, dbError(err, "list_pipeline_ids")
	}
	return ids, nil
}

// GetPipeline retrieves a pipeline by id, nil when unknown.
func (ds *DataStore) GetPipeline(id string) (*Pipeline, error) {
	var pipe Pipeline
	err := ds.DB.First(&pipe, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "get_pipeline")
	}
	return &pipe, nil
}

// GetSetting returns the value stored under key, or fallback when absent.
func (ds *DataStore) GetSetting(key, fallback string) (string, error) {
	var setting SystemSetting
	err := ds.DB.First(&setting, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, dbError(err, "get_setting")
	}
	return setting.Value, nil
}

// SetSetting upserts a system setting.
func (ds *DataStore) SetSetting(key, value string) error {
	setting := SystemSetting{Key: key, Value: value}
	err := ds.DB.Save(&setting).Error
	if err != nil {
		return dbError(err, "set_setting")
	}
	return nil
}

// Open is overridden by the backend-specific stores; a bare DataStore has no
// connection settings of its own.
func (ds *DataStore) Open() error {
	if ds.DB != nil {
		return nil
	}
	return errors.NewStd("no database backend configured")
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}
	return sqlDB.Close()
}
