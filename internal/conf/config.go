// config.go: settings struct and functions to load the AquaGuard-Go configuration.
package conf

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LogSettings contains settings for a rotating file log.
type LogSettings struct {
	Enabled    bool   // true to enable this log
	Path       string // path to the log file
	MaxSize    int    // maximum log size in megabytes before rotation
	MaxBackups int    // maximum number of rotated files to keep
	MaxAge     int    // maximum age of rotated files in days
}

// MainSettings contains top-level application settings.
type MainSettings struct {
	Name     string      // name of this node, used in logs and MQTT topics
	LogLevel string      // minimum log level: trace, debug, info, warn, error
	Log      LogSettings // main log settings
}

// WebSettings contains settings for the HTTP server.
type WebSettings struct {
	Host string // address to bind to
	Port int    // port to listen on
}

// SQLiteSettings contains settings for the SQLite database output.
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite output
	Path    string // path to the SQLite database file
}

// MySQLSettings contains settings for the MySQL database output.
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL output
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL host
	Port     string // MySQL port
}

// OutputSettings contains datastore output settings.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// MLSettings contains settings for the model artifacts, the predictor and the trainer.
type MLSettings struct {
	StorageDir       string  // directory holding corpora, artifacts, map and progress files
	Python           string  // python interpreter used for predictor and trainer
	PredictScript    string  // path to the prediction script
	TrainScript      string  // path to the training script
	InferenceTimeout int     // predictor timeout in seconds
	VersionStep      float64 // increment applied to the latest model version on retrain
}

// IngestSettings contains settings for the telemetry ingestion pipeline.
type IngestSettings struct {
	SecretKeyHex      string // shared secret for encrypted sensor payloads, hex encoded
	DefaultSensorID   string // sensor id used for alerts when no pipeline endpoint matches
	DedupWindowSec    int    // alert deduplication window in seconds
	LookbackSec       int    // reinforcement sensor-reading lookback in seconds
	AutoTrainSampling int    // 1-in-N sampling of the auto-train threshold check
}

// MQTTSettings contains settings for MQTT event broadcasting.
type MQTTSettings struct {
	Enabled     bool   // true to enable MQTT
	Broker      string // MQTT broker (tcp://host:port)
	TopicPrefix string // prefix for telemetry and alert topics
	Username    string // MQTT username
	Password    string // MQTT password
}

// Settings is the root configuration for AquaGuard-Go.
type Settings struct {
	Debug bool // true to enable debug output

	Main   MainSettings
	Web    WebSettings
	Output OutputSettings
	ML     MLSettings
	Ingest IngestSettings
	MQTT   MQTTSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create one with defaults
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the current (default) settings to a new config file.
func createDefaultConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling defaults: %w", err)
	}
	if err := SaveYAMLConfig(configPath, settings); err != nil {
		return fmt.Errorf("error writing default config: %w", err)
	}

	log.Printf("Created default config file at %s", configPath)
	return viper.ReadInConfig()
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// GetSettings returns the current settings instance under a read lock.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings replaces the global settings instance. Intended for tests only.
func SetTestSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
	once.Do(func() {})
}

// SaveYAMLConfig writes settings to the YAML configuration file using an
// atomic write via a temporary file.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temp config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempName)
		return fmt.Errorf("error writing temp config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error closing temp config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// DedupWindow returns the alert deduplication window as a duration.
func (s *Settings) DedupWindow() time.Duration {
	return time.Duration(s.Ingest.DedupWindowSec) * time.Second
}

// Lookback returns the reinforcement sensor-reading lookback as a duration.
func (s *Settings) Lookback() time.Duration {
	return time.Duration(s.Ingest.LookbackSec) * time.Second
}

// IngestKey decodes the shared payload secret into the 16-byte cipher key.
func (s *Settings) IngestKey() ([]byte, error) {
	key, err := hex.DecodeString(s.Ingest.SecretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("ingest secret key is not valid hex: %w", err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("ingest secret key must be 16 bytes, got %d", len(key))
	}
	return key, nil
}

// InferenceTimeout returns the predictor timeout as a duration.
func (s *Settings) InferenceTimeout() time.Duration {
	return time.Duration(s.ML.InferenceTimeout) * time.Second
}
