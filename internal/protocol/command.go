package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Name is a command identifier as it appears on the wire.
type Name string

// Command set understood by device nodes.
const (
	CmdSetDevice    Name = "set_device"
	CmdSetDevices   Name = "set_devices"
	CmdSetMode      Name = "set_mode"
	CmdSetInterval  Name = "set_interval"
	CmdSetTimestamp Name = "set_timestamp"
	CmdGetStatus    Name = "get_status"
	CmdReboot       Name = "reboot"
	CmdFactoryReset Name = "factory_reset"
)

// Unchanged is the set_devices sentinel meaning "leave this output alone".
const Unchanged = -1

// Command is a parsed, bounds-checked command. The concrete types below are
// the only implementations.
type Command interface {
	Name() Name
}

// SetDevice switches one named output.
type SetDevice struct {
	Device string `json:"device"`
	State  int    `json:"state"`
}

// SetDevices switches several outputs at once. A nil field is left unchanged.
type SetDevices struct {
	Fan   *int `json:"fan,omitempty"`
	Light *int `json:"light,omitempty"`
	AC    *int `json:"ac,omitempty"`
}

// SetMode selects manual (0) or automatic (1) operation.
type SetMode struct {
	Mode int `json:"mode"`
}

// SetInterval sets the telemetry period in seconds.
type SetInterval struct {
	Interval int `json:"interval"`
}

// SetTimestamp sets the device wall clock, in unix seconds.
type SetTimestamp struct {
	Timestamp int64 `json:"timestamp"`
}

// GetStatus asks the device to republish its state.
type GetStatus struct{}

// Reboot restarts the device after a grace delay.
type Reboot struct{}

// FactoryReset wipes persisted settings and restarts after a grace delay.
type FactoryReset struct{}

func (SetDevice) Name() Name    { return CmdSetDevice }
func (SetDevices) Name() Name   { return CmdSetDevices }
func (SetMode) Name() Name      { return CmdSetMode }
func (SetInterval) Name() Name  { return CmdSetInterval }
func (SetTimestamp) Name() Name { return CmdSetTimestamp }
func (GetStatus) Name() Name    { return CmdGetStatus }
func (Reboot) Name() Name       { return CmdReboot }
func (FactoryReset) Name() Name { return CmdFactoryReset }

// Envelope is the command wire format.
type Envelope struct {
	ID      string          `json:"id"`
	Command Name            `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Request is an inbound command after parsing.
type Request struct {
	ID      string
	Name    Name
	Command Command
}

// ParseCommand decodes a command envelope and its typed parameters.
//
// The returned Request carries ID and Name whenever the envelope itself was
// well formed, even if the error is ErrUnknownCommand or ErrInvalidParams,
// so the caller can still answer the sender.
//
// Returns:
//   - Request: Parsed request
//   - error: ErrMalformedEnvelope, ErrUnknownCommand or ErrInvalidParams
func ParseCommand(payload []byte) (Request, error) {
	var w struct {
		ID      *string         `json:"id"`
		Command *Name           `json:"command"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(payload, &w); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if w.ID == nil || *w.ID == "" {
		return Request{}, fmt.Errorf("%w: command missing id", ErrMalformedEnvelope)
	}
	if w.Command == nil || *w.Command == "" {
		return Request{}, fmt.Errorf("%w: command missing name", ErrMalformedEnvelope)
	}

	req := Request{ID: *w.ID, Name: *w.Command}
	cmd, err := DecodeCommand(req.Name, w.Params)
	if err != nil {
		return req, err
	}
	req.Command = cmd
	return req, nil
}

// DecodeCommand builds the typed command for name from raw params.
// Absent or null params decode as an empty object.
func DecodeCommand(name Name, params json.RawMessage) (Command, error) {
	params = bytes.TrimSpace(params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = []byte("{}")
	}

	switch name {
	case CmdSetDevice:
		var w struct {
			Device *string `json:"device"`
			State  *int    `json:"state"`
		}
		if err := unmarshalParams(name, params, &w); err != nil {
			return nil, err
		}
		if w.Device == nil || *w.Device == "" || w.State == nil {
			return nil, fmt.Errorf("%w: %s requires device and state", ErrInvalidParams, name)
		}
		if !isBinary(*w.State) {
			return nil, fmt.Errorf("%w: %s state %d not in {0,1}", ErrInvalidParams, name, *w.State)
		}
		return SetDevice{Device: *w.Device, State: *w.State}, nil

	case CmdSetDevices:
		var w struct {
			Fan   *int `json:"fan"`
			Light *int `json:"light"`
			AC    *int `json:"ac"`
		}
		if err := unmarshalParams(name, params, &w); err != nil {
			return nil, err
		}
		var cmd SetDevices
		for _, f := range []struct {
			name string
			in   *int
			out  **int
		}{
			{"fan", w.Fan, &cmd.Fan},
			{"light", w.Light, &cmd.Light},
			{"ac", w.AC, &cmd.AC},
		} {
			if f.in == nil || *f.in == Unchanged {
				continue
			}
			if !isBinary(*f.in) {
				return nil, fmt.Errorf("%w: %s %s %d not in {-1,0,1}", ErrInvalidParams, name, f.name, *f.in)
			}
			v := *f.in
			*f.out = &v
		}
		return cmd, nil

	case CmdSetMode:
		var w struct {
			Mode *int `json:"mode"`
		}
		if err := unmarshalParams(name, params, &w); err != nil {
			return nil, err
		}
		if w.Mode == nil || !isBinary(*w.Mode) {
			return nil, fmt.Errorf("%w: %s requires mode 0 or 1", ErrInvalidParams, name)
		}
		return SetMode{Mode: *w.Mode}, nil

	case CmdSetInterval:
		var w struct {
			Interval *int `json:"interval"`
		}
		if err := unmarshalParams(name, params, &w); err != nil {
			return nil, err
		}
		if w.Interval == nil {
			return nil, fmt.Errorf("%w: %s requires interval", ErrInvalidParams, name)
		}
		if *w.Interval < MinInterval || *w.Interval > MaxInterval {
			return nil, fmt.Errorf("%w: %s %d not in [%d,%d]", ErrInvalidParams, name, *w.Interval, MinInterval, MaxInterval)
		}
		return SetInterval{Interval: *w.Interval}, nil

	case CmdSetTimestamp:
		var w struct {
			Timestamp *int64 `json:"timestamp"`
		}
		if err := unmarshalParams(name, params, &w); err != nil {
			return nil, err
		}
		if w.Timestamp == nil || *w.Timestamp <= 0 {
			return nil, fmt.Errorf("%w: %s requires a positive timestamp", ErrInvalidParams, name)
		}
		return SetTimestamp{Timestamp: *w.Timestamp}, nil

	case CmdGetStatus:
		return GetStatus{}, nil
	case CmdReboot:
		return Reboot{}, nil
	case CmdFactoryReset:
		return FactoryReset{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// EncodeCommand renders a command envelope for publishing.
//
// params may be a typed Command, a json.RawMessage, any JSON-marshalable
// value, or nil.
func EncodeCommand(id string, name Name, params any) ([]byte, error) {
	env := Envelope{ID: id, Command: name}

	switch p := params.(type) {
	case nil:
	case json.RawMessage:
		env.Params = p
	case GetStatus, Reboot, FactoryReset:
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encoding %s params: %w", name, err)
		}
		env.Params = raw
	}

	return json.Marshal(env)
}

func unmarshalParams(name Name, params json.RawMessage, v any) error {
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidParams, name, err)
	}
	return nil
}
