package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aquaguard/aquaguard-go/internal/alert"
	"github.com/aquaguard/aquaguard-go/internal/autotrain"
	"github.com/aquaguard/aquaguard-go/internal/conf"
	"github.com/aquaguard/aquaguard-go/internal/dataset"
	"github.com/aquaguard/aquaguard-go/internal/datastore"
	"github.com/aquaguard/aquaguard-go/internal/inference"
	"github.com/aquaguard/aquaguard-go/internal/mlmodel"
	"github.com/aquaguard/aquaguard-go/internal/notification"
	"github.com/aquaguard/aquaguard-go/internal/pipemap"
	"github.com/aquaguard/aquaguard-go/internal/processor"
	"github.com/aquaguard/aquaguard-go/internal/telemetry"
)

type scriptedPredictor struct {
	pred inference.Prediction
}

func (s *scriptedPredictor) Predict(_ context.Context, sample *telemetry.Sample) inference.Prediction {
	if sample.HasSimulatedLeak() {
		return inference.Prediction{LeakDetected: 1, LeakLocation: sample.SimulatedLocationLabel(), Confidence: 100}
	}
	return s.pred
}

type nopJobRunner struct{}

func (nopJobRunner) Start(string, ...string) error { return nil }

type testServer struct {
	e         *echo.Echo
	ds        *datastore.DataStore
	settings  *conf.Settings
	predictor *scriptedPredictor
	validated string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "Failed to create test database")
	require.NoError(t, db.AutoMigrate(
		&datastore.SensorReading{}, &datastore.Alert{}, &datastore.ModelVersion{},
		&datastore.Pipeline{}, &datastore.Sensor{}, &datastore.SystemSetting{}))
	ds := &datastore.DataStore{DB: db}

	require.NoError(t, db.Create(&datastore.Pipeline{ID: "P001", From: "S001", To: "S002"}).Error)
	require.NoError(t, db.Create(&datastore.Pipeline{ID: "P002", From: "S002", To: "S003"}).Error)

	dir := t.TempDir()
	s := &conf.Settings{}
	s.ML.StorageDir = dir
	s.ML.Python = "python3"
	s.ML.TrainScript = "ml/train_with_ga.py"
	s.ML.VersionStep = 0.1
	s.Ingest.SecretKeyHex = "A9F1C43E92ABCDEF76881244B35A9DEE"
	s.Ingest.DefaultSensorID = "S001"
	s.Ingest.DedupWindowSec = 60
	s.Ingest.LookbackSec = 10
	s.Ingest.AutoTrainSampling = 1

	key, err := s.IngestKey()
	require.NoError(t, err)

	bulkPath := filepath.Join(dir, conf.BulkCorpusFile)
	validatedPath := filepath.Join(dir, conf.ValidatedCorpusFile)
	bulk := dataset.NewWriter(bulkPath)
	validated := dataset.NewWriter(validatedPath)

	bus := notification.NewBus()
	mapper := pipemap.New(filepath.Join(dir, conf.PipelineMapFile), ds)
	bridge := alert.New(s, ds, mapper, validated, bus)
	models := mlmodel.NewWithRunner(s, ds, nopJobRunner{})
	trigger := autotrain.New(s, ds, bulk, models)
	predictor := &scriptedPredictor{}
	proc := processor.New(s, ds, telemetry.NewParser(key), predictor, bridge, mapper,
		bulk, validated, trigger, bus)

	e := echo.New()
	New(e, s, ds, proc, bridge, models)

	return &testServer{e: e, ds: ds, settings: s, predictor: predictor, validated: validatedPath}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func validatedRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	if len(records) == 0 {
		return nil
	}
	return records[1:]
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v2/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestIngestFlow(t *testing.T) {
	t.Run("PlaintextNoLeak", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodPost, "/api/v2/telemetry", `{"f_main":12.5,"p_main":3.1}`)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, false, body["ml_leak_detected"], "verdict is a JSON boolean")

		rec = ts.do(t, http.MethodGet, "/api/v2/telemetry", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var readings []datastore.SensorReading
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
		require.Len(t, readings, 1)
		assert.InDelta(t, 12.5, readings[0].FMain, 1e-9)
	})

	t.Run("EncryptedLeakCreatesAlert", func(t *testing.T) {
		ts := newTestServer(t)
		ts.predictor.pred = inference.Prediction{LeakDetected: 1, LeakLocation: 2, Confidence: 95}

		key, err := ts.settings.IngestKey()
		require.NoError(t, err)
		cipherHex, err := telemetry.EncryptCTR([]byte(`{"f_main":2.0,"p_main":0.8}`), 99, key)
		require.NoError(t, err)

		rec := ts.do(t, http.MethodPost, "/api/v2/telemetry",
			`{"ciphertext":"`+cipherHex+`","nonce":99}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decode(t, rec)["ml_leak_detected"])

		rec = ts.do(t, http.MethodGet, "/api/v2/alerts", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var alerts []datastore.Alert
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
		require.Len(t, alerts, 1)
		require.NotNil(t, alerts[0].PipelineID)
		assert.Equal(t, "P002", *alerts[0].PipelineID, "label 2 maps to the second synced pipeline")
		assert.Equal(t, "S002", alerts[0].SensorID)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodPost, "/api/v2/telemetry", `{"s1":1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		assert.NotEmpty(t, body["correlation_id"])
	})

	t.Run("GarbageCiphertext", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodPost, "/api/v2/telemetry", `{"ciphertext":"zzzz","nonce":1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("SimulatedLeak", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodPost, "/api/v2/telemetry",
			`{"f_main":1.1,"p_main":0.4,"simulated_leak":1,"simulated_location":1}`)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["ml_leak_detected"])
		assert.EqualValues(t, 100, body["ml_confidence"])
	})
}

func TestReviewFlow(t *testing.T) {
	newAlert := func(t *testing.T, ts *testServer) datastore.Alert {
		t.Helper()
		ts.predictor.pred = inference.Prediction{LeakDetected: 1, LeakLocation: 2, Confidence: 95}
		rec := ts.do(t, http.MethodPost, "/api/v2/telemetry", `{"f_main":2.0,"p_main":0.8}`)
		require.Equal(t, http.StatusOK, rec.Code)

		alerts, err := ts.ds.GetAlerts(false)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		return alerts[0]
	}

	t.Run("ResolveWithCorrection", func(t *testing.T) {
		ts := newTestServer(t)
		a := newAlert(t, ts)

		rec := ts.do(t, http.MethodPost,
			"/api/v2/alerts/"+strconv.Itoa(int(a.ID))+"/resolve",
			`{"actual_pipeline_id":"P001"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		resolved, err := ts.ds.GetAlert(a.ID)
		require.NoError(t, err)
		assert.True(t, resolved.Resolved())
		assert.Equal(t, "P001", *resolved.PipelineID)

		rows := validatedRows(t, ts.validated)
		require.Len(t, rows, dataset.ValidatedOversampling)
		assert.Equal(t, "1", rows[0][14])
		assert.Equal(t, "1", rows[0][15], "corrected to P001's label")
	})

	t.Run("MarkFalse", func(t *testing.T) {
		ts := newTestServer(t)
		a := newAlert(t, ts)

		rec := ts.do(t, http.MethodPost,
			"/api/v2/alerts/"+strconv.Itoa(int(a.ID))+"/false", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rows := validatedRows(t, ts.validated)
		require.Len(t, rows, dataset.ValidatedOversampling)
		assert.Equal(t, "0", rows[0][14])
	})

	t.Run("ResolveUnknownAlert", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v2/alerts/4242/resolve", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("GroupRequiresIDs", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(t, http.MethodPost, "/api/v2/alerts/resolve-group", `{}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLabelEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v2/labels",
		`{"manual_label":"leak","manual_pipeline_id":"P002","data":{"f_main":2.1,"p_main":0.9}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, dataset.ValidatedOversampling, decode(t, rec)["rows_written"])

	rows := validatedRows(t, ts.validated)
	require.Len(t, rows, dataset.ValidatedOversampling)
	assert.Equal(t, "2", rows[0][15])

	rec = ts.do(t, http.MethodPost, "/api/v2/labels", `{"manual_label":"maybe","f_main":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModelLifecycleFlow(t *testing.T) {
	ts := newTestServer(t)

	// Start a training run.
	rec := ts.do(t, http.MethodPost, "/api/v2/models/train", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, "v0_1", body["tag"])

	// A second start is skipped, not an error.
	rec = ts.do(t, http.MethodPost, "/api/v2/models/train", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", decode(t, rec)["status"])

	// The trainer reports completion through the files.
	progressPath, err := ts.settings.StoragePath(conf.TrainProgressFile)
	require.NoError(t, err)
	resultPath, err := ts.settings.StoragePath(conf.TrainResultFile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(progressPath,
		[]byte(`{"status":"complete","progress":100}`), 0o644))
	require.NoError(t, os.WriteFile(resultPath,
		[]byte(`{"status":"success","accuracy":92.5}`), 0o644))

	rec = ts.do(t, http.MethodGet, "/api/v2/models/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// The run is now TRAINED and can be activated.
	var models []datastore.ModelVersion
	rec = ts.do(t, http.MethodGet, "/api/v2/models", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	require.Len(t, models, 1)
	assert.Equal(t, datastore.ModelStatusTrained, models[0].Status)

	rec = ts.do(t, http.MethodPost,
		"/api/v2/models/"+strconv.Itoa(int(models[0].ID))+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v2/models/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode(t, rec)
	assert.Equal(t, datastore.ModelStatusActive, active["status"])
	assert.EqualValues(t, 92.5, active["accuracy"])
}

func TestTrainingSettingsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v2/models/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	defaults := decode(t, rec)
	assert.Equal(t, datastore.TrainingModeManual, defaults["mode"], "retraining is opt-in out of the box")
	assert.EqualValues(t, datastore.DefaultTrainingTarget, defaults["target"])

	rec = ts.do(t, http.MethodPut, "/api/v2/models/settings",
		`{"mode":"auto","target":250}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v2/models/settings", "")
	saved := decode(t, rec)
	assert.Equal(t, "auto", saved["mode"])
	assert.EqualValues(t, 250, saved["target"])

	rec = ts.do(t, http.MethodPut, "/api/v2/models/settings", `{"mode":"sometimes","target":10}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivateUntrainedModelConflicts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v2/models/train", "")
	require.Equal(t, http.StatusOK, rec.Code)

	models, err := ts.ds.ListModelVersions()
	require.NoError(t, err)
	require.Len(t, models, 1)

	rec = ts.do(t, http.MethodPost,
		"/api/v2/models/"+strconv.Itoa(int(models[0].ID))+"/activate", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}
