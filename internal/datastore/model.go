// model.go this code defines the data model for the application
package datastore

import "time"

// Model lifecycle statuses. At most one row is ACTIVE at any time.
const (
	ModelStatusTraining = "TRAINING"
	ModelStatusTrained  = "TRAINED"
	ModelStatusActive   = "ACTIVE"
	ModelStatusFailed   = "FAILED"
	ModelStatusInactive = "INACTIVE"
)

// Alert severities
const (
	SeverityCritical = "Critical"
	SeverityWarning  = "Warning"
	SeverityInfo     = "Info"
)

// SensorReading represents a single ingested telemetry sample together with
// the prediction derived from it.
type SensorReading struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	FMain          float64   `gorm:"column:f_main" json:"f_main"`
	F1             float64   `gorm:"column:f_1" json:"f_1"`
	F2             float64   `gorm:"column:f_2" json:"f_2"`
	F3             float64   `gorm:"column:f_3" json:"f_3"`
	PMain          float64   `gorm:"column:p_main" json:"p_main"`
	PDma1          float64   `gorm:"column:p_dma1" json:"p_dma1"`
	PDma2          float64   `gorm:"column:p_dma2" json:"p_dma2"`
	PDma3          float64   `gorm:"column:p_dma3" json:"p_dma3"`
	PumpOn         int       `gorm:"column:pump_on" json:"pump_on"`
	CompOn         int       `gorm:"column:comp_on" json:"comp_on"`
	S1             int       `gorm:"column:s1" json:"s1"`
	S2             int       `gorm:"column:s2" json:"s2"`
	S3             int       `gorm:"column:s3" json:"s3"`
	SolenoidActive int       `gorm:"column:solenoid_active" json:"solenoid_active"`
	IsLeak         int       `gorm:"column:is_leak" json:"is_leak"`
	LeakLocation   int       `gorm:"column:leak_location" json:"leak_location"`
	Details        string    `gorm:"type:text" json:"details,omitempty"` // JSON metadata, e.g. {"ml_accuracy":91}
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// Alert represents one detected or reported anomaly. Resolution is terminal:
// either confirmed (resolved_at set) or dismissed (resolved_at set and
// false_positive true).
type Alert struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SensorID      string     `gorm:"index" json:"sensorId"`
	PipelineID    *string    `gorm:"index" json:"pipelineId"`
	Message       string     `json:"message"`
	Severity      string     `gorm:"type:varchar(20)" json:"severity"`
	Accuracy      float64    `json:"accuracy"` // prediction confidence at creation time
	ResolvedAt    *time.Time `gorm:"index" json:"resolvedAt"`
	FalsePositive bool       `json:"falsePositive"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Resolved reports whether the alert has reached a terminal state.
func (a *Alert) Resolved() bool {
	return a.ResolvedAt != nil
}

// ModelVersion represents one trained model artifact set. Rows are never
// deleted; they form the audit trail of the model lifecycle.
type ModelVersion struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Version          float64   `gorm:"index" json:"version"`
	Status           string    `gorm:"type:varchar(20);index" json:"status"`
	IsActive         bool      `json:"is_active"`
	Accuracy         float64   `json:"accuracy"` // 0 until training completes
	FilePathDetect   string    `json:"file_path_detect"`
	FilePathLocate   string    `json:"file_path_locate"`
	FilePathFeatures string    `json:"file_path_features"`
	Metadata         string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Pipeline represents one pipeline segment of the distribution topology.
// Topology management is handled by an external system; these rows are read
// for identifier mapping and alert sensor resolution.
type Pipeline struct {
	ID       string `gorm:"primaryKey;type:varchar(32)" json:"id"`
	Location string `json:"location"`
	Diameter string `json:"diameter"`
	Material string `json:"material"`
	From     string `gorm:"column:from_sensor" json:"from"`
	To       string `gorm:"column:to_sensor" json:"to"`
}

// Sensor represents a physical sensor node of the network.
type Sensor struct {
	ID       string `gorm:"primaryKey;type:varchar(32)" json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// SystemSetting is a key/value row used for operational settings such as the
// auto-train mode and target.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known system setting keys.
const (
	SettingTrainingMode   = "training_mode"
	SettingTrainingTarget = "training_target"
)

// Training modes stored under SettingTrainingMode.
const (
	TrainingModeAuto   = "auto"
	TrainingModeManual = "manual"
)

// Defaults applied when no training settings have been stored. Automatic
// retraining is opt-in.
const (
	DefaultTrainingMode   = TrainingModeManual
	DefaultTrainingTarget = 100
)
