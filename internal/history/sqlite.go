package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// sqliteTimeLayout matches strftime('%Y-%m-%dT%H:%M:%fZ') so string
	// comparison on created_at orders correctly.
	sqliteTimeLayout = "2006-01-02T15:04:05.000Z"
)

// SQLiteRepository implements Sink on the tables created by the history
// migration and answers history queries.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteRepository: Repository ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordData inserts a sensor_data row.
func (r *SQLiteRepository) RecordData(ctx context.Context, deviceID string, d protocol.Data) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sensor_data (device_id, timestamp, temperature, humidity, light)
		 VALUES (?, ?, ?, ?, ?)`,
		deviceID, d.Timestamp, d.Temperature, d.Humidity, d.Light,
	)
	if err != nil {
		return fmt.Errorf("inserting sensor data: %w", err)
	}
	return nil
}

// RecordState inserts a device_states row.
func (r *SQLiteRepository) RecordState(ctx context.Context, deviceID string, s protocol.State) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_states (device_id, timestamp, mode, interval, fan, light, ac)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deviceID, s.Timestamp, s.Mode, s.Interval, s.Fan, s.Light, s.AC,
	)
	if err != nil {
		return fmt.Errorf("inserting device state: %w", err)
	}
	return nil
}

// RecordInfo upserts the device_info row; only the latest info is kept.
func (r *SQLiteRepository) RecordInfo(ctx context.Context, deviceID string, i protocol.Info) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_info (device_id, timestamp, ssid, ip, broker, firmware, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT(device_id) DO UPDATE SET
		     timestamp = excluded.timestamp,
		     ssid = excluded.ssid,
		     ip = excluded.ip,
		     broker = excluded.broker,
		     firmware = excluded.firmware,
		     updated_at = excluded.updated_at`,
		deviceID, i.Timestamp, i.SSID, i.IP, i.Broker, i.Firmware,
	)
	if err != nil {
		return fmt.Errorf("upserting device info: %w", err)
	}
	return nil
}

// RecordCommand inserts a pending commands row. Only the params object of
// the published envelope is stored.
func (r *SQLiteRepository) RecordCommand(ctx context.Context, cmd Command) error {
	if cmd.DeviceID == "" {
		return ErrDeviceIDRequired
	}
	if cmd.CmdID == "" {
		return fmt.Errorf("history: cmd_id is required")
	}

	sentAt := cmd.SentAt
	if sentAt.IsZero() {
		sentAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO commands (cmd_id, device_id, command, params, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cmd.CmdID, cmd.DeviceID, cmd.Command, paramsColumn(cmd.Payload), StatusPending,
		sentAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// RecordCommandResult sets the outcome on the newest row with cmdID.
// Correlation ids restart with the client, so older rows may share it.
func (r *SQLiteRepository) RecordCommandResult(ctx context.Context, cmdID, outcome string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE commands SET status = ?, resolved_at = ?
		 WHERE id = (SELECT id FROM commands WHERE cmd_id = ? ORDER BY id DESC LIMIT 1)`,
		outcome, r.now().UTC().Format(sqliteTimeLayout), cmdID,
	)
	if err != nil {
		return fmt.Errorf("updating command result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, cmdID)
	}
	return nil
}

// GetStateHistory returns stored states for a device, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device identifier
//   - limit: Maximum entries (default 50, max 200)
//
// Returns:
//   - []StateEntry: Entries ordered newest first (may be empty)
//   - error: nil on success, otherwise the query error
func (r *SQLiteRepository) GetStateHistory(ctx context.Context, deviceID string, limit int) ([]StateEntry, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, timestamp, mode, interval, fan, light, ac, created_at
		 FROM device_states
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateEntry, 0, limit)
	for rows.Next() {
		var (
			e         StateEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.State.Timestamp, &e.State.Mode, &e.State.Interval,
			&e.State.Fan, &e.State.Light, &e.State.AC, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// GetCommand returns the newest command row with cmdID.
func (r *SQLiteRepository) GetCommand(ctx context.Context, cmdID string) (CommandRecord, error) {
	var (
		rec        CommandRecord
		params     sql.NullString
		createdAt  string
		resolvedAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, cmd_id, device_id, command, params, status, created_at, resolved_at
		 FROM commands WHERE cmd_id = ? ORDER BY id DESC LIMIT 1`,
		cmdID,
	).Scan(&rec.ID, &rec.CmdID, &rec.DeviceID, &rec.Command, &params, &rec.Status, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CommandRecord{}, fmt.Errorf("%w: %s", ErrCommandNotFound, cmdID)
	}
	if err != nil {
		return CommandRecord{}, fmt.Errorf("querying command: %w", err)
	}

	if params.Valid {
		rec.Params = json.RawMessage(params.String)
	}
	if rec.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return CommandRecord{}, err
	}
	if resolvedAt.Valid {
		ts, err := parseTimestamp(resolvedAt.String)
		if err != nil {
			return CommandRecord{}, err
		}
		rec.ResolvedAt = &ts
	}
	return rec, nil
}

// Prune deletes sensor_data, device_states and resolved commands older
// than the retention window. device_info holds one row per device and is
// never pruned.
//
// Returns:
//   - int64: Total rows deleted
//   - error: nil on success
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: olderThan must be positive")
	}
	cutoff := r.now().UTC().Add(-olderThan).Format(sqliteTimeLayout)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var total int64
	for _, stmt := range []string{
		"DELETE FROM sensor_data WHERE created_at < ?",
		"DELETE FROM device_states WHERE created_at < ?",
		"DELETE FROM commands WHERE created_at < ? AND status != 'pending'",
	} {
		res, err := tx.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return 0, fmt.Errorf("pruning history: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

// paramsColumn extracts the params object from a command envelope. A
// payload that is not an envelope is stored as is.
func paramsColumn(payload []byte) sql.NullString {
	if len(payload) == 0 {
		return sql.NullString{}
	}
	var env protocol.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Command == "" {
		return sql.NullString{String: string(payload), Valid: true}
	}
	if len(env.Params) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(env.Params), Valid: true}
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("history: empty timestamp")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
	}
	return ts, nil
}
