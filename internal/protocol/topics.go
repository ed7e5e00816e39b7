package protocol

import (
	"fmt"
	"strings"
)

// Kind identifies one of the per-device topics.
type Kind string

// Topic kinds.
const (
	KindData     Kind = "data"
	KindState    Kind = "state"
	KindInfo     Kind = "info"
	KindCommand  Kind = "command"
	KindResponse Kind = "response"
)

// MQTT QoS levels used by the contract.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
)

// DefaultBase is the topic namespace used when none is configured.
const DefaultBase = "smarthome"

// MonitoredKinds are the topics a client subscribes to for every device.
var MonitoredKinds = []Kind{KindData, KindState, KindInfo, KindResponse}

// Valid reports whether k is one of the five topic kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindData, KindState, KindInfo, KindCommand, KindResponse:
		return true
	}
	return false
}

// QoS returns the delivery level for the kind. Telemetry is loss-tolerant;
// everything else is at least once.
func (k Kind) QoS() byte {
	if k == KindData {
		return QoSAtMostOnce
	}
	return QoSAtLeastOnce
}

// Retained reports whether messages of this kind are published retained.
//
// Responses are not retained by default; the device runtime may override
// that per configuration. Commands are never retained so a stale command
// cannot re-fire when a device reconnects.
func (k Kind) Retained() bool {
	return k == KindState || k == KindInfo
}

// Topics builds and parses topic strings for one namespace.
type Topics struct {
	base string
}

// NewTopics returns a topic builder for base. Leading and trailing slashes
// are trimmed; an empty base falls back to DefaultBase.
func NewTopics(base string) Topics {
	base = strings.Trim(base, "/")
	if base == "" {
		base = DefaultBase
	}
	return Topics{base: base}
}

// Base returns the namespace prefix.
func (t Topics) Base() string {
	return t.base
}

// For returns {base}/{deviceID}/{kind}.
func (t Topics) For(deviceID string, kind Kind) string {
	return t.base + "/" + deviceID + "/" + string(kind)
}

// Data returns the telemetry topic for a device.
func (t Topics) Data(deviceID string) string { return t.For(deviceID, KindData) }

// State returns the state topic for a device.
func (t Topics) State(deviceID string) string { return t.For(deviceID, KindState) }

// Info returns the info topic for a device.
func (t Topics) Info(deviceID string) string { return t.For(deviceID, KindInfo) }

// Command returns the command topic for a device.
func (t Topics) Command(deviceID string) string { return t.For(deviceID, KindCommand) }

// Response returns the response topic for a device.
func (t Topics) Response(deviceID string) string { return t.For(deviceID, KindResponse) }

// Parse splits a topic into device id and kind.
//
// Returns:
//   - string: Device identifier
//   - Kind: Topic kind
//   - error: ErrInvalidTopic if the topic is outside the namespace or malformed
func (t Topics) Parse(topic string) (string, Kind, error) {
	rest, ok := strings.CutPrefix(topic, t.base+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q outside namespace %q", ErrInvalidTopic, topic, t.base)
	}

	deviceID, kind, ok := strings.Cut(rest, "/")
	if !ok || deviceID == "" || strings.Contains(kind, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	k := Kind(kind)
	if !k.Valid() {
		return "", "", fmt.Errorf("%w: unknown kind %q", ErrInvalidTopic, kind)
	}
	return deviceID, k, nil
}
