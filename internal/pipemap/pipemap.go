// Package pipemap maintains the bidirectional mapping between topology-level
// pipeline IDs (e.g. "P008") and the integer class labels used by the model
// (e.g. 2). Label 0 is reserved for "no confident location" and is never
// assigned. Entries are append-only so historical training rows stay valid.
package pipemap

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aquaguard/aquaguard-go/internal/errors"
	"github.com/aquaguard/aquaguard-go/internal/filelock"
	"github.com/aquaguard/aquaguard-go/internal/logging"
)

// TopologySource provides the live set of known pipeline IDs the map is
// synced against.
type TopologySource interface {
	ListPipelineIDs() ([]string, error)
}

// Mapper owns the persisted pipeline-id map file.
type Mapper struct {
	path   string
	source TopologySource
	mu     sync.Mutex // serializes read-modify-write within this process
	logger *slog.Logger
}

// New creates a Mapper persisting to path and syncing against source.
func New(path string, source TopologySource) *Mapper {
	return &Mapper{
		path:   path,
		source: source,
		logger: logging.ForService("pipemap"),
	}
}

// GetLabel returns the integer label for a pipeline ID, assigning a fresh one
// when the pipeline is known to the topology but not yet mapped. Returns 0 for
// an empty or unknown ID, never an error: 0 signals "no confident location".
func (m *Mapper) GetLabel(pipelineID string) int {
	if pipelineID == "" {
		return 0
	}
	mapping, err := m.Sync()
	if err != nil {
		m.logger.Error("pipeline map sync failed", "error", err)
		return 0
	}
	return mapping[pipelineID]
}

// GetIDFromLabel returns the pipeline ID mapped to label. The second return
// value is false when no pipeline maps to that label (label 0 included).
func (m *Mapper) GetIDFromLabel(label int) (string, bool) {
	if label == 0 {
		return "", false
	}
	mapping, err := m.Sync()
	if err != nil {
		m.logger.Error("pipeline map sync failed", "error", err)
		return "", false
	}
	for id, l := range mapping {
		if l == label {
			return id, true
		}
	}
	return "", false
}

// Sync loads the persisted map, assigns fresh sequential labels to any
// pipeline the topology knows but the map does not, persists when anything
// changed, and returns the full map. The read-modify-write is serialized by
// an in-process mutex plus a cross-process file lock so two concurrent
// callers can never hand the same label to different pipelines.
func (m *Mapper) Sync() (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var mapping map[string]int
	err := filelock.WithExclusiveLock(m.lockPath(), filelock.DefaultMaxAttempts, filelock.DefaultBackoff, func() error {
		var err error
		mapping, err = m.load()
		if err != nil {
			return err
		}

		knownIDs, err := m.source.ListPipelineIDs()
		if err != nil {
			return err
		}

		maxVal := 0
		for _, label := range mapping {
			if label > maxVal {
				maxVal = label
			}
		}

		changed := false
		for _, id := range knownIDs {
			if _, ok := mapping[id]; !ok {
				maxVal++
				mapping[id] = maxVal
				changed = true
				m.logger.Info("assigned new pipeline label", "pipeline_id", id, "label", maxVal)
			}
		}

		if changed {
			return m.persist(mapping)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

func (m *Mapper) lockPath() string {
	return m.path + ".lock"
}

func (m *Mapper) load() (map[string]int, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, errors.New(err).
			Component("pipemap").
			Category(errors.CategoryFileIO).
			Context("path", m.path).
			Build()
	}

	mapping := map[string]int{}
	if len(data) == 0 {
		return mapping, nil
	}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, errors.New(err).
			Component("pipemap").
			Category(errors.CategoryFileIO).
			Context("path", m.path).
			Build()
	}
	return mapping, nil
}

// persist writes the map atomically via a temp file rename.
func (m *Mapper) persist(mapping map[string]int) error {
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return errors.New(err).Component("pipemap").Category(errors.CategoryFileIO).Build()
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).Component("pipemap").Category(errors.CategoryFileIO).Build()
	}

	tmp, err := os.CreateTemp(dir, "pipemap-*.json")
	if err != nil {
		return errors.New(err).Component("pipemap").Category(errors.CategoryFileIO).Build()
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.New(err).Component("pipemap").Category(errors.CategoryFileIO).Build()
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.New(err).Component("pipemap").Category(errors.CategoryFileIO).Build()
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return errors.New(err).Component("pipemap").Category(errors.CategoryFileIO).Build()
	}
	return nil
}
