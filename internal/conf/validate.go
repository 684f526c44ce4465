package conf

import (
	"encoding/hex"
	"fmt"
)

// ValidateSettings checks the loaded settings for values that would break the
// pipeline at runtime. It returns the first problem found.
func ValidateSettings(settings *Settings) error {
	if settings.Web.Port <= 0 || settings.Web.Port > 65535 {
		return fmt.Errorf("web.port must be between 1 and 65535, got %d", settings.Web.Port)
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("no datastore enabled: enable output.sqlite or output.mysql")
	}
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return fmt.Errorf("only one datastore may be enabled at a time")
	}

	if settings.ML.StorageDir == "" {
		return fmt.Errorf("ml.storagedir must not be empty")
	}
	if settings.ML.InferenceTimeout < 1 || settings.ML.InferenceTimeout > 20 {
		return fmt.Errorf("ml.inferencetimeout must be between 1 and 20 seconds, got %d", settings.ML.InferenceTimeout)
	}
	if settings.ML.VersionStep <= 0 {
		return fmt.Errorf("ml.versionstep must be positive, got %v", settings.ML.VersionStep)
	}

	key, err := hex.DecodeString(settings.Ingest.SecretKeyHex)
	if err != nil {
		return fmt.Errorf("ingest.secretkeyhex is not valid hex: %w", err)
	}
	if len(key) != 16 {
		return fmt.Errorf("ingest.secretkeyhex must decode to 16 bytes, got %d", len(key))
	}

	if settings.Ingest.DedupWindowSec <= 0 {
		return fmt.Errorf("ingest.dedupwindowsec must be positive, got %d", settings.Ingest.DedupWindowSec)
	}
	if settings.Ingest.LookbackSec < 0 {
		return fmt.Errorf("ingest.lookbacksec must not be negative, got %d", settings.Ingest.LookbackSec)
	}
	if settings.Ingest.AutoTrainSampling < 1 {
		return fmt.Errorf("ingest.autotrainsampling must be at least 1, got %d", settings.Ingest.AutoTrainSampling)
	}

	return nil
}
