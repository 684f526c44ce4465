// conf/consts.go well-known file names under the ML storage directory
package conf

const (
	// BulkCorpusFile is the CSV corpus fed by routine telemetry.
	BulkCorpusFile = "pipeline_sensor_data.csv"
	// ValidatedCorpusFile is the CSV corpus fed by human-confirmed examples.
	ValidatedCorpusFile = "validated_alerts.csv"
	// PipelineMapFile holds the topology id to class label mapping.
	PipelineMapFile = "pipeline_id_map.json"
	// TrainProgressFile is updated incrementally by a running trainer.
	TrainProgressFile = "train_progress.json"
	// TrainResultFile is written once by the trainer at completion.
	TrainResultFile = "train_result.json"
	// FeatureColumnsFile lists the feature columns shared by all model versions.
	FeatureColumnsFile = "feature_cols.joblib"
)

// BulkCorpusPath returns the path of the bulk training corpus.
func (s *Settings) BulkCorpusPath() (string, error) {
	return s.StoragePath(BulkCorpusFile)
}

// ValidatedCorpusPath returns the path of the validated training corpus.
func (s *Settings) ValidatedCorpusPath() (string, error) {
	return s.StoragePath(ValidatedCorpusFile)
}
