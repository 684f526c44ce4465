package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadings(t *testing.T) {
	t.Run("LatestReadingsNewestFirst", func(t *testing.T) {
		ds := setupTestDB(t)

		base := time.Now().Add(-time.Minute)
		for i := range 3 {
			r := &SensorReading{FMain: float64(100 + i), CreatedAt: base.Add(time.Duration(i) * time.Second)}
			require.NoError(t, ds.SaveReading(r))
		}

		readings, err := ds.GetLatestReadings(2)
		require.NoError(t, err)
		require.Len(t, readings, 2)
		assert.InDelta(t, 102, readings[0].FMain, 0.001)
		assert.InDelta(t, 101, readings[1].FMain, 0.001)
	})

	t.Run("LatestReadingBefore", func(t *testing.T) {
		ds := setupTestDB(t)

		base := time.Now().Add(-time.Hour)
		early := &SensorReading{FMain: 1, CreatedAt: base}
		late := &SensorReading{FMain: 2, CreatedAt: base.Add(30 * time.Minute)}
		require.NoError(t, ds.SaveReading(early))
		require.NoError(t, ds.SaveReading(late))

		got, err := ds.LatestReadingBefore(base.Add(10 * time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, early.ID, got.ID)

		// No reading that early: nil, not an error.
		got, err = ds.LatestReadingBefore(base.Add(-time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("LatestReadingEmptyTable", func(t *testing.T) {
		ds := setupTestDB(t)

		got, err := ds.LatestReading()
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestAlertQueries(t *testing.T) {
	pipelineID := "P008"

	t.Run("HasRecentUnresolvedAlert", func(t *testing.T) {
		ds := setupTestDB(t)

		alert := &Alert{SensorID: "S001", PipelineID: &pipelineID, Severity: SeverityCritical}
		require.NoError(t, ds.CreateAlert(alert))

		exists, err := ds.HasRecentUnresolvedAlert(pipelineID, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.True(t, exists)

		// Resolving the alert ends suppression.
		now := time.Now()
		alert.ResolvedAt = &now
		require.NoError(t, ds.SaveAlert(alert))

		exists, err = ds.HasRecentUnresolvedAlert(pipelineID, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("GetAlertsFiltersResolved", func(t *testing.T) {
		ds := setupTestDB(t)

		open := &Alert{SensorID: "S001", PipelineID: &pipelineID}
		require.NoError(t, ds.CreateAlert(open))
		now := time.Now()
		closed := &Alert{SensorID: "S001", PipelineID: &pipelineID, ResolvedAt: &now}
		require.NoError(t, ds.CreateAlert(closed))

		unresolved, err := ds.GetAlerts(false)
		require.NoError(t, err)
		assert.Len(t, unresolved, 1)

		all, err := ds.GetAlerts(true)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("UpdateAlertsAndLatestOf", func(t *testing.T) {
		ds := setupTestDB(t)

		base := time.Now().Add(-time.Minute)
		var ids []uint
		for i := range 3 {
			a := &Alert{SensorID: "S001", PipelineID: &pipelineID, CreatedAt: base.Add(time.Duration(i) * time.Second)}
			require.NoError(t, ds.CreateAlert(a))
			ids = append(ids, a.ID)
		}

		now := time.Now()
		require.NoError(t, ds.UpdateAlerts(ids, map[string]any{"resolved_at": now, "false_positive": true}))

		all, err := ds.GetAlerts(true)
		require.NoError(t, err)
		for _, a := range all {
			assert.True(t, a.Resolved())
			assert.True(t, a.FalsePositive)
		}

		latest, err := ds.LatestAlertOf(ids)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, ids[2], latest.ID)
	})
}

func TestSettings(t *testing.T) {
	ds := setupTestDB(t)

	val, err := ds.GetSetting(SettingTrainingMode, TrainingModeManual)
	require.NoError(t, err)
	assert.Equal(t, TrainingModeManual, val)

	require.NoError(t, ds.SetSetting(SettingTrainingMode, TrainingModeAuto))
	val, err = ds.GetSetting(SettingTrainingMode, TrainingModeManual)
	require.NoError(t, err)
	assert.Equal(t, TrainingModeAuto, val)

	// Upsert overwrites.
	require.NoError(t, ds.SetSetting(SettingTrainingMode, TrainingModeManual))
	val, err = ds.GetSetting(SettingTrainingMode, "")
	require.NoError(t, err)
	assert.Equal(t, TrainingModeManual, val)
}

func TestPipelines(t *testing.T) {
	ds := setupTestDB(t)

	require.NoError(t, ds.DB.Create(&Pipeline{ID: "P008", From: "S002", To: "S003"}).Error)
	require.NoError(t, ds.DB.Create(&Pipeline{ID: "P001", From: "S001", To: "S002"}).Error)

	ids, err := ds.ListPipelineIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"P001", "P008"}, ids)

	pipe, err := ds.GetPipeline("P008")
	require.NoError(t, err)
	require.NotNil(t, pipe)
	assert.Equal(t, "S002", pipe.From)

	missing, err := ds.GetPipeline("P999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
