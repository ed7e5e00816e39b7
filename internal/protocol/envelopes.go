package protocol

import (
	"encoding/json"
	"fmt"
)

// Status is the outcome reported in a Response envelope.
type Status string

// Response statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Bounds for state values.
const (
	MinInterval = 1
	MaxInterval = 3600
)

// Response acknowledges a command.
type Response struct {
	CmdID  string `json:"cmd_id"`
	Status Status `json:"status"`
}

// State mirrors the device configuration and outputs.
type State struct {
	Timestamp int64 `json:"timestamp"`
	Mode      int   `json:"mode"`
	Interval  int   `json:"interval"`
	Fan       int   `json:"fan"`
	Light     int   `json:"light"`
	AC        int   `json:"ac"`
}

// Data is one telemetry sample.
type Data struct {
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Light       float64 `json:"light"`
}

// Info describes a device. It is published retained on every connect.
type Info struct {
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
	SSID      string `json:"ssid"`
	IP        string `json:"ip"`
	Broker    string `json:"broker"`
	Firmware  string `json:"firmware"`
}

// Wire shapes with pointer fields so a missing key can be told apart from
// a zero value.
type (
	responseWire struct {
		CmdID  *string `json:"cmd_id"`
		Status *Status `json:"status"`
	}

	stateWire struct {
		Timestamp *int64 `json:"timestamp"`
		Mode      *int   `json:"mode"`
		Interval  *int   `json:"interval"`
		Fan       *int   `json:"fan"`
		Light     *int   `json:"light"`
		AC        *int   `json:"ac"`
	}

	dataWire struct {
		Timestamp   *int64   `json:"timestamp"`
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
		Light       *float64 `json:"light"`
	}

	infoWire struct {
		Timestamp *int64  `json:"timestamp"`
		ID        *string `json:"id"`
		SSID      string  `json:"ssid"`
		IP        string  `json:"ip"`
		Broker    string  `json:"broker"`
		Firmware  string  `json:"firmware"`
	}
)

// DecodeResponse parses a Response envelope.
//
// Returns:
//   - Response: Decoded envelope
//   - error: ErrMalformedEnvelope if cmd_id or status is missing or status is unknown
func DecodeResponse(payload []byte) (Response, error) {
	var w responseWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if w.CmdID == nil || *w.CmdID == "" {
		return Response{}, fmt.Errorf("%w: response missing cmd_id", ErrMalformedEnvelope)
	}
	if w.Status == nil {
		return Response{}, fmt.Errorf("%w: response missing status", ErrMalformedEnvelope)
	}
	if *w.Status != StatusSuccess && *w.Status != StatusError {
		return Response{}, fmt.Errorf("%w: unknown status %q", ErrMalformedEnvelope, *w.Status)
	}
	return Response{CmdID: *w.CmdID, Status: *w.Status}, nil
}

// DecodeState parses and bounds-checks a State envelope.
func DecodeState(payload []byte) (State, error) {
	var w stateWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	required := []struct {
		name  string
		value *int
	}{
		{"mode", w.Mode}, {"interval", w.Interval}, {"fan", w.Fan}, {"light", w.Light}, {"ac", w.AC},
	}
	for _, f := range required {
		if f.value == nil {
			return State{}, fmt.Errorf("%w: state missing %s", ErrMalformedEnvelope, f.name)
		}
	}
	if w.Timestamp == nil {
		return State{}, fmt.Errorf("%w: state missing timestamp", ErrMalformedEnvelope)
	}

	s := State{
		Timestamp: *w.Timestamp,
		Mode:      *w.Mode,
		Interval:  *w.Interval,
		Fan:       *w.Fan,
		Light:     *w.Light,
		AC:        *w.AC,
	}
	if err := s.Validate(); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return s, nil
}

// Validate checks that every state field is inside its domain.
func (s State) Validate() error {
	if !isBinary(s.Mode) {
		return fmt.Errorf("mode %d not in {0,1}", s.Mode)
	}
	if s.Interval < MinInterval || s.Interval > MaxInterval {
		return fmt.Errorf("interval %d not in [%d,%d]", s.Interval, MinInterval, MaxInterval)
	}
	if !isBinary(s.Fan) || !isBinary(s.Light) || !isBinary(s.AC) {
		return fmt.Errorf("outputs must be 0 or 1 (fan=%d light=%d ac=%d)", s.Fan, s.Light, s.AC)
	}
	return nil
}

// DecodeData parses a Data envelope. Values are not range-checked.
func DecodeData(payload []byte) (Data, error) {
	var w dataWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Data{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if w.Timestamp == nil || w.Temperature == nil || w.Humidity == nil || w.Light == nil {
		return Data{}, fmt.Errorf("%w: data requires timestamp, temperature, humidity and light", ErrMalformedEnvelope)
	}
	return Data{
		Timestamp:   *w.Timestamp,
		Temperature: *w.Temperature,
		Humidity:    *w.Humidity,
		Light:       *w.Light,
	}, nil
}

// DecodeInfo parses an Info envelope. Only id and timestamp are required.
func DecodeInfo(payload []byte) (Info, error) {
	var w infoWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if w.ID == nil || *w.ID == "" {
		return Info{}, fmt.Errorf("%w: info missing id", ErrMalformedEnvelope)
	}
	if w.Timestamp == nil {
		return Info{}, fmt.Errorf("%w: info missing timestamp", ErrMalformedEnvelope)
	}
	return Info{
		Timestamp: *w.Timestamp,
		ID:        *w.ID,
		SSID:      w.SSID,
		IP:        w.IP,
		Broker:    w.Broker,
		Firmware:  w.Firmware,
	}, nil
}

func isBinary(v int) bool {
	return v == 0 || v == 1
}
