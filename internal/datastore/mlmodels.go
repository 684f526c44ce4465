// mlmodels.go: database operations for the model lifecycle state machine
package datastore

import (
	"gorm.io/gorm"

	"github.com/aquaguard/aquaguard-go/internal/errors"
)

// ErrTrainingInProgress signals that a TRAINING row already exists and a new
// training run must not be started.
var ErrTrainingInProgress = errors.NewStd("a training run is already in progress")

// CreateTrainingVersion inserts a new TRAINING row inside a transaction that
// re-checks the single-flight invariant. The plain check in the caller is a
// narrow check-then-act window; re-checking under the transaction closes it
// for serialized-write backends.
func (ds *DataStore) CreateTrainingVersion(mv *ModelVersion) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ModelVersion{}).Where("status = ?", ModelStatusTraining).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrTrainingInProgress
		}
		return tx.Create(mv).Error
	})
	if err != nil {
		if errors.Is(err, ErrTrainingInProgress) {
			return err
		}
		return dbError(err, "create_training_version")
	}
	return nil
}

// MaxModelVersion returns the highest version number ever recorded, 0 when no
// model exists yet.
func (ds *DataStore) MaxModelVersion() (float64, error) {
	var maxVersion *float64
	if err := ds.DB.Model(&ModelVersion{}).Select("MAX(version)").Scan(&maxVersion).Error; err != nil {
		return 0, dbError(err, "max_model_version")
	}
	if maxVersion == nil {
		return 0, nil
	}
	return *maxVersion, nil
}

// TrainingInProgress reports whether any row currently has status TRAINING.
func (ds *DataStore) TrainingInProgress() (bool, error) {
	var count int64
	if err := ds.DB.Model(&ModelVersion{}).Where("status = ?", ModelStatusTraining).Count(&count).Error; err != nil {
		return false, dbError(err, "training_in_progress")
	}
	return count > 0, nil
}

// CompleteTraining promotes the newest TRAINING row to TRAINED with the
// reported accuracy. Returns nil when no TRAINING row exists, which makes the
// completion side-effect idempotent.
func (ds *DataStore) CompleteTraining(accuracy float64) (*ModelVersion, error) {
	var mv ModelVersion
	err := ds.DB.Where("status = ?", ModelStatusTraining).Order("created_at DESC").First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "complete_training")
	}

	updates := map[string]any{
		"status":    ModelStatusTrained,
		"accuracy":  accuracy,
		"is_active": false,
	}
	if err := ds.DB.Model(&mv).Updates(updates).Error; err != nil {
		return nil, dbError(err, "complete_training")
	}
	mv.Status = ModelStatusTrained
	mv.Accuracy = accuracy
	return &mv, nil
}

// FailTraining marks all TRAINING rows as FAILED. Used when the trainer could
// not be launched, so the system never believes a run is in progress when it
// is not.
func (ds *DataStore) FailTraining() error {
	err := ds.DB.Model(&ModelVersion{}).
		Where("status = ?", ModelStatusTraining).
		Update("status", ModelStatusFailed).Error
	if err != nil {
		return dbError(err, "fail_training")
	}
	return nil
}

// ActivateModel promotes the given model to ACTIVE and demotes any prior
// ACTIVE row to TRAINED, both inside one transaction so the at-most-one-ACTIVE
// invariant holds at every observable point.
func (ds *DataStore) ActivateModel(id uint) (*ModelVersion, error) {
	var mv ModelVersion
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&mv, id).Error; err != nil {
			return err
		}
		if err := tx.Model(&ModelVersion{}).
			Where("status = ?", ModelStatusActive).
			Updates(map[string]any{"status": ModelStatusTrained, "is_active": false}).Error; err != nil {
			return err
		}
		return tx.Model(&mv).
			Updates(map[string]any{"status": ModelStatusActive, "is_active": true}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf("model version %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "activate_model")
	}
	mv.Status = ModelStatusActive
	mv.IsActive = true
	return &mv, nil
}

// GetModelVersion retrieves a model version by id.
func (ds *DataStore) GetModelVersion(id uint) (*ModelVersion, error) {
	var mv ModelVersion
	err := ds.DB.First(&mv, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Newf("model version %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "get_model_version")
	}
	return &mv, nil
}

// ListModelVersions returns all model versions, newest version first.
func (ds *DataStore) ListModelVersions() ([]ModelVersion, error) {
	var models []ModelVersion
	if err := ds.DB.Order("version DESC").Find(&models).Error; err != nil {
		return nil, dbError(err, "list_model_versions")
	}
	return models, nil
}

// ActiveModel returns the currently ACTIVE model, nil when none is active.
func (ds *DataStore) ActiveModel() (*ModelVersion, error) {
	var mv ModelVersion
	err := ds.DB.Where("status = ?", ModelStatusActive).First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "active_model")
	}
	return &mv, nil
}

// LatestTrainedModel returns the newest TRAINED model, nil when none exists.
func (ds *DataStore) LatestTrainedModel() (*ModelVersion, error) {
	var mv ModelVersion
	err := ds.DB.Where("status = ?", ModelStatusTrained).Order("created_at DESC").First(&mv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "latest_trained_model")
	}
	return &mv, nil
}
