package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Settings are the parts of State that survive a restart.
type Settings struct {
	Mode     int
	Interval int
}

// SettingsStore persists Settings for one node.
type SettingsStore interface {
	// Load returns the saved settings. ok is false when nothing is saved.
	Load(ctx context.Context) (settings Settings, ok bool, err error)

	// Save replaces the saved settings.
	Save(ctx context.Context, settings Settings) error

	// Clear removes the saved settings.
	Clear(ctx context.Context) error
}

// SQLiteSettingsStore implements SettingsStore on the device_settings table.
type SQLiteSettingsStore struct {
	db       *sql.DB
	deviceID string
}

// NewSQLiteSettingsStore creates a settings store for deviceID.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//   - deviceID: Row key; one database may hold several simulated nodes
//
// Returns:
//   - *SQLiteSettingsStore: Store ready for use
func NewSQLiteSettingsStore(db *sql.DB, deviceID string) *SQLiteSettingsStore {
	return &SQLiteSettingsStore{db: db, deviceID: deviceID}
}

// Load returns the persisted settings for the node.
func (s *SQLiteSettingsStore) Load(ctx context.Context) (Settings, bool, error) {
	var out Settings
	err := s.db.QueryRowContext(ctx,
		"SELECT mode, interval FROM device_settings WHERE device_id = ?",
		s.deviceID,
	).Scan(&out.Mode, &out.Interval)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("loading device settings: %w", err)
	}
	return out, true, nil
}

// Save upserts the settings row.
func (s *SQLiteSettingsStore) Save(ctx context.Context, settings Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_settings (device_id, mode, interval, updated_at)
		 VALUES (?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT(device_id) DO UPDATE SET
		     mode = excluded.mode,
		     interval = excluded.interval,
		     updated_at = excluded.updated_at`,
		s.deviceID,
		settings.Mode,
		settings.Interval,
	)
	if err != nil {
		return fmt.Errorf("saving device settings: %w", err)
	}
	return nil
}

// Clear deletes the settings row.
func (s *SQLiteSettingsStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM device_settings WHERE device_id = ?", s.deviceID); err != nil {
		return fmt.Errorf("clearing device settings: %w", err)
	}
	return nil
}

// nopSettings is used when persistence is disabled.
type nopSettings struct{}

func (nopSettings) Load(context.Context) (Settings, bool, error) { return Settings{}, false, nil }
func (nopSettings) Save(context.Context, Settings) error         { return nil }
func (nopSettings) Clear(context.Context) error                  { return nil }

// RestoreState loads persisted settings on top of boot defaults.
// A load failure is returned alongside the defaults so the node still boots.
func RestoreState(ctx context.Context, settings SettingsStore) (State, error) {
	state := DefaultState()
	if settings == nil {
		return state, nil
	}

	saved, ok, err := settings.Load(ctx)
	if err != nil || !ok {
		return state, err
	}
	if binary(saved.Mode) {
		state.Mode = saved.Mode
	}
	if validInterval(saved.Interval) {
		state.Interval = saved.Interval
	}
	return state, nil
}
