package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/config"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/database"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
	_ "github.com/nhat092005/smart-home-sub001/migrations"
)

func openRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx))
	return NewSQLiteRepository(db.DB)
}

func countRows(t *testing.T, r *SQLiteRepository, table string) int {
	t.Helper()
	var n int
	require.NoError(t, r.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// =============================================================================
// Record Tests
// =============================================================================

func TestSQLiteRepository_StateHistory(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	for i := range 3 {
		require.NoError(t, repo.RecordState(ctx, "esp32_01", protocol.State{
			Timestamp: int64(1700000000 + i), Mode: 1, Interval: 5 + i, Fan: i % 2,
		}))
	}
	require.NoError(t, repo.RecordState(ctx, "esp32_02", protocol.State{Timestamp: 1, Interval: 5}))

	entries, err := repo.GetStateHistory(ctx, "esp32_01", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 7, entries[0].State.Interval, "newest first")
	assert.Equal(t, int64(1700000002), entries[0].State.Timestamp)
	assert.Equal(t, "esp32_01", entries[0].DeviceID)
	assert.False(t, entries[0].CreatedAt.IsZero())

	limited, err := repo.GetStateHistory(ctx, "esp32_01", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	empty, err := repo.GetStateHistory(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.GetStateHistory(ctx, "", 10)
	assert.ErrorIs(t, err, ErrDeviceIDRequired)
}

func TestSQLiteRepository_DataAndInfo(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	require.NoError(t, repo.RecordData(ctx, "esp32_01", protocol.Data{
		Timestamp: 1700000000, Temperature: 24.5, Humidity: 60.1, Light: 300,
	}))
	assert.Equal(t, 1, countRows(t, repo, "sensor_data"))

	info := protocol.Info{Timestamp: 1, ID: "esp32_01", SSID: "home", IP: "10.0.0.2", Broker: "tcp://broker:1883", Firmware: "1.0.0"}
	require.NoError(t, repo.RecordInfo(ctx, "esp32_01", info))
	info.Firmware = "1.0.1"
	require.NoError(t, repo.RecordInfo(ctx, "esp32_01", info))
	assert.Equal(t, 1, countRows(t, repo, "device_info"), "info is upserted")

	var firmware string
	require.NoError(t, repo.db.QueryRow("SELECT firmware FROM device_info WHERE device_id = ?", "esp32_01").Scan(&firmware))
	assert.Equal(t, "1.0.1", firmware)

	assert.ErrorIs(t, repo.RecordData(ctx, "", protocol.Data{}), ErrDeviceIDRequired)
	assert.ErrorIs(t, repo.RecordInfo(ctx, "", info), ErrDeviceIDRequired)
}

func TestSQLiteRepository_CommandLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	payload, err := protocol.EncodeCommand("cmd_001", protocol.CmdSetMode, protocol.SetMode{Mode: 1})
	require.NoError(t, err)

	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.RecordCommand(ctx, Command{
		CmdID: "cmd_001", DeviceID: "esp32_01", Command: "set_mode", Payload: payload, SentAt: sentAt,
	}))

	rec, err := repo.GetCommand(ctx, "cmd_001")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Nil(t, rec.ResolvedAt)
	assert.True(t, rec.CreatedAt.Equal(sentAt))
	assert.JSONEq(t, `{"mode":1}`, string(rec.Params))

	require.NoError(t, repo.RecordCommandResult(ctx, "cmd_001", "success"))
	rec, err = repo.GetCommand(ctx, "cmd_001")
	require.NoError(t, err)
	assert.Equal(t, "success", rec.Status)
	require.NotNil(t, rec.ResolvedAt)

	_, err = repo.GetCommand(ctx, "cmd_999")
	assert.ErrorIs(t, err, ErrCommandNotFound)
	assert.ErrorIs(t, repo.RecordCommandResult(ctx, "cmd_999", "timeout"), ErrCommandNotFound)
}

func TestSQLiteRepository_ReusedCmdIDResolvesNewest(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	require.NoError(t, repo.RecordCommand(ctx, Command{CmdID: "cmd_001", DeviceID: "esp32_01", Command: "get_status"}))
	require.NoError(t, repo.RecordCommandResult(ctx, "cmd_001", "success"))

	// A restarted client reuses cmd_001.
	require.NoError(t, repo.RecordCommand(ctx, Command{CmdID: "cmd_001", DeviceID: "esp32_01", Command: "reboot"}))
	require.NoError(t, repo.RecordCommandResult(ctx, "cmd_001", "timeout"))

	rec, err := repo.GetCommand(ctx, "cmd_001")
	require.NoError(t, err)
	assert.Equal(t, "reboot", rec.Command)
	assert.Equal(t, "timeout", rec.Status)

	var firstStatus string
	require.NoError(t, repo.db.QueryRow(
		"SELECT status FROM commands WHERE cmd_id = ? ORDER BY id ASC LIMIT 1", "cmd_001",
	).Scan(&firstStatus))
	assert.Equal(t, "success", firstStatus)
}

func TestParamsColumn(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    string
		valid   bool
	}{
		{"empty", nil, "", false},
		{"no params", []byte(`{"id":"cmd_001","command":"get_status"}`), "", false},
		{"params", []byte(`{"id":"cmd_001","command":"set_interval","params":{"interval":10}}`), `{"interval":10}`, true},
		{"not an envelope", []byte(`not json`), "not json", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paramsColumn(tt.payload)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, got.String)
			}
		})
	}
}

// =============================================================================
// Prune Tests
// =============================================================================

func TestSQLiteRepository_Prune(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	require.NoError(t, repo.RecordData(ctx, "esp32_01", protocol.Data{Timestamp: 1}))
	require.NoError(t, repo.RecordState(ctx, "esp32_01", protocol.State{Timestamp: 1, Interval: 5}))
	require.NoError(t, repo.RecordInfo(ctx, "esp32_01", protocol.Info{Timestamp: 1, ID: "esp32_01"}))
	require.NoError(t, repo.RecordCommand(ctx, Command{CmdID: "cmd_001", DeviceID: "esp32_01", Command: "get_status"}))
	require.NoError(t, repo.RecordCommandResult(ctx, "cmd_001", "success"))
	require.NoError(t, repo.RecordCommand(ctx, Command{CmdID: "cmd_002", DeviceID: "esp32_01", Command: "get_status"}))

	n, err := repo.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh rows are kept")

	repo.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = repo.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.Zero(t, countRows(t, repo, "sensor_data"))
	assert.Zero(t, countRows(t, repo, "device_states"))
	assert.Equal(t, 1, countRows(t, repo, "device_info"))
	assert.Equal(t, 1, countRows(t, repo, "commands"), "pending command kept")

	_, err = repo.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestPruner(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	require.NoError(t, repo.RecordData(ctx, "esp32_01", protocol.Data{Timestamp: 1}))
	repo.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	p, err := NewPruner(repo, "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRetention, p.retention)

	p.Start()
	defer p.Stop(ctx)

	n, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "48h is inside the 30 day default")

	p.retention = time.Hour
	n, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewPruner_InvalidSchedule(t *testing.T) {
	_, err := NewPruner(openRepo(t), "not a schedule", time.Hour, nil)
	assert.Error(t, err)
}

type failingPrune struct{}

func (failingPrune) Prune(context.Context, time.Duration) (int64, error) {
	return 0, errors.New("disk full")
}

func TestPruner_Error(t *testing.T) {
	p, err := NewPruner(failingPrune{}, "@every 1h", time.Hour, nil)
	require.NoError(t, err)
	_, err = p.RunOnce(context.Background())
	assert.EqualError(t, err, "disk full")
}

