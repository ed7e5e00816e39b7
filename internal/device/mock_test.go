package device

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/mqtt"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// MockTransport records publishes and lets tests inject inbound messages.
type MockTransport struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]mqtt.MessageHandler
	subQoS    map[string]byte
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		handlers:  make(map[string]mqtt.MessageHandler),
		subQoS:    make(map[string]byte),
		connected: true,
	}
}

func (m *MockTransport) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockTransport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	m.subQoS[topic] = qos
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) SetConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// SimulateMessage delivers payload to the handler subscribed on topic.
func (m *MockTransport) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler := m.handlers[topic]
	m.mu.Unlock()
	if handler != nil {
		_ = handler(topic, payload) //nolint:errcheck // Dispatcher never returns errors
	}
}

func (m *MockTransport) Published() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// PublishedOn returns publishes for one topic, in order.
func (m *MockTransport) PublishedOn(topic string) []mockPublish {
	var out []mockPublish
	for _, p := range m.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

// fakeSensor returns a fixed reading.
type fakeSensor struct {
	reading Reading
}

func (s fakeSensor) Read(ctx context.Context) (Reading, error) {
	return s.reading, ctx.Err()
}

// fakeSystem counts system actions.
type fakeSystem struct {
	mu       sync.Mutex
	reboots  int
	resets   int
	rebooted chan struct{}
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{rebooted: make(chan struct{}, 4)}
}

func (s *fakeSystem) Reboot() {
	s.mu.Lock()
	s.reboots++
	s.mu.Unlock()
	s.rebooted <- struct{}{}
}

func (s *fakeSystem) FactoryReset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
	s.rebooted <- struct{}{}
}

func (s *fakeSystem) counts() (reboots, resets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reboots, s.resets
}

// memorySettings is an in-memory SettingsStore.
type memorySettings struct {
	mu    sync.Mutex
	saved *Settings
}

func (m *memorySettings) Load(context.Context) (Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return Settings{}, false, nil
	}
	return *m.saved, true, nil
}

func (m *memorySettings) Save(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &s
	return nil
}

func (m *memorySettings) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = nil
	return nil
}

func decodeState(t *testing.T, p mockPublish) protocol.State {
	t.Helper()
	s, err := protocol.DecodeState(p.Payload)
	if err != nil {
		t.Fatalf("DecodeState(%s) error = %v", p.Payload, err)
	}
	return s
}

func decodeResponse(t *testing.T, p mockPublish) protocol.Response {
	t.Helper()
	r, err := protocol.DecodeResponse(p.Payload)
	if err != nil {
		t.Fatalf("DecodeResponse(%s) error = %v", p.Payload, err)
	}
	return r
}

func commandPayload(t *testing.T, id string, name protocol.Name, params string) []byte {
	t.Helper()
	var raw json.RawMessage
	if params != "" {
		raw = json.RawMessage(params)
	}
	payload, err := protocol.EncodeCommand(id, name, raw)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	return payload
}
