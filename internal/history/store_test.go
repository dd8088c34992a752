package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func recordRun(t *testing.T, s *Store, id string, start int64, events ...models.RunEvent) *models.RunInfo {
	t.Helper()
	info := models.NewRunInfo(id, "raspberrypi.local", 1)
	info.Backend = "ssh"
	info.Artifact = "/tmp/File.py"
	info.Status = models.RunStatusRunning
	info.StartTime = start
	require.NoError(t, s.BeginRun(info))
	for i, ev := range events {
		ev.RunID = id
		ev.Seq = i + 1
		if ev.Time == 0 {
			ev.Time = start + int64(i)
		}
		require.NoError(t, s.RecordEvent(ev))
	}
	info.Status = models.RunStatusComplete
	info.State = "done"
	info.EndTime = start + 100
	info.OutputBytes = 7
	require.NoError(t, s.FinishRun(info))
	return info
}

func TestStore_RecordsRun(t *testing.T) {
	s := openTestStore(t)
	recordRun(t, s, "run-1", 1000,
		models.RunEvent{Type: models.RunEventStatus, Text: "Running"},
		models.RunEvent{Type: models.RunEventOutput, Text: "LED on\n"},
		models.RunEvent{Type: models.RunEventTelemetry, Telemetry: &models.Telemetry{
			Variables: map[string]models.VariableReport{"counter": {Value: 1}},
			Devices:   map[string]models.DeviceReport{"D1": {State: 1}},
		}},
		models.RunEvent{Type: models.RunEventCompleted, OK: true},
	)

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, models.RunStatusComplete, runs[0].Status)
	assert.Equal(t, "done", runs[0].State)
	assert.Equal(t, int64(1100), runs[0].EndTime)
	assert.Equal(t, 7, runs[0].OutputBytes)

	events, err := s.Events("run-1")
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, models.RunEventOutput, events[1].Type)
	assert.Equal(t, "LED on\n", events[1].Text)
	assert.True(t, events[3].OK)

	samples, err := s.Telemetry("run-1")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, KindVariable, samples[0].Kind)
	assert.Equal(t, "counter", samples[0].Name)
	assert.EqualValues(t, 1, samples[0].Value)
	assert.Equal(t, KindDevice, samples[1].Kind)
	assert.Equal(t, 1, samples[1].State)

	latest := Latest(samples)
	assert.Equal(t, 1, latest.Devices["D1"].State)
	assert.EqualValues(t, 1, latest.Variables["counter"].Value)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	recordRun(t, s, "old", 1000)
	recordRun(t, s, "new", 2000)
	recordRun(t, s, "mid", 1500)

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestStore_UnknownRun(t *testing.T) {
	s := openTestStore(t)
	events, err := s.Events("missing")
	require.NoError(t, err)
	assert.Empty(t, events)
	samples, err := s.Telemetry("missing")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestStore_CleanupBefore(t *testing.T) {
	s := openTestStore(t)
	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	recent := time.Now().UnixMilli()
	recordRun(t, s, "old", old, models.RunEvent{Type: models.RunEventOutput, Text: "x"})
	recordRun(t, s, "recent", recent, models.RunEvent{Type: models.RunEventOutput, Text: "y"})

	n, err := s.CleanupBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "recent", runs[0].ID)
	events, err := s.Events("old")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	recordRun(t, s, "kept", 1000)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "kept", runs[0].ID)
}

func TestLatest_LaterSampleWins(t *testing.T) {
	samples := []Sample{
		{Kind: KindDevice, Name: "D1", State: 0, Time: 2},
		{Kind: KindDevice, Name: "D1", State: 1, Time: 1},
	}
	assert.Equal(t, 0, Latest(samples).Devices["D1"].State)
}
