package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// Command status values stored alongside each sent command. Outcomes from
// the client correlator (success, error, timeout, not_connected,
// send_failed) replace StatusPending once the command resolves.
const StatusPending = "pending"

var (
	// ErrDeviceIDRequired is returned when a record has no device id.
	ErrDeviceIDRequired = errors.New("history: device id is required")

	// ErrCommandNotFound is returned by GetCommand for an unknown cmd_id.
	ErrCommandNotFound = errors.New("history: command not found")

	// ErrRecorderStopped is returned when a record arrives after Stop.
	ErrRecorderStopped = errors.New("history: recorder stopped")
)

// Command is one command published by the client.
type Command struct {
	CmdID    string
	DeviceID string
	Command  string
	Payload  []byte
	SentAt   time.Time
}

// Sink persists records. Implementations must be safe for concurrent use.
type Sink interface {
	RecordData(ctx context.Context, deviceID string, d protocol.Data) error
	RecordState(ctx context.Context, deviceID string, s protocol.State) error
	RecordInfo(ctx context.Context, deviceID string, i protocol.Info) error
	RecordCommand(ctx context.Context, cmd Command) error
	RecordCommandResult(ctx context.Context, cmdID, outcome string) error
}

// StateEntry is one stored state envelope.
type StateEntry struct {
	ID        int64          `json:"id"`
	DeviceID  string         `json:"device_id"`
	State     protocol.State `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
}

// CommandRecord is one stored command and its outcome.
type CommandRecord struct {
	ID         int64           `json:"id"`
	CmdID      string          `json:"cmd_id"`
	DeviceID   string          `json:"device_id"`
	Command    string          `json:"command"`
	Params     json.RawMessage `json:"params,omitempty"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}
