package client

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/nhat092005/smart-home-sub001/internal/history"
	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/mqtt"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// MockTransport records publishes and lets tests inject inbound messages.
type MockTransport struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]mqtt.MessageHandler
	subQoS     map[string]byte
	connected  bool
	publishErr error
	onPublish  func(topic string, payload []byte)
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
	if m.publishErr != nil {
		err := m.publishErr
		m.mu.Unlock()
		return err
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	hook := m.onPublish
	m.mu.Unlock()

	if hook != nil {
		hook(topic, payload)
	}
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

func (m *MockTransport) SetPublishError(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

func (m *MockTransport) SetOnPublish(fn func(topic string, payload []byte)) {
	m.mu.Lock()
	m.onPublish = fn
	m.mu.Unlock()
}

// SimulateMessage delivers payload to the handler subscribed on topic.
func (m *MockTransport) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	handler := m.handlers[topic]
	m.mu.Unlock()
	if handler != nil {
		_ = handler(topic, payload) //nolint:errcheck // Monitor never returns errors
	}
}

func (m *MockTransport) Published() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

// fakeDevices answers commands for the listed devices with status, from a
// separate goroutine, the way a broker round trip would.
func fakeDevices(m *MockTransport, topics protocol.Topics, status protocol.Status, devices ...string) {
	answer := make(map[string]bool, len(devices))
	for _, d := range devices {
		answer[d] = true
	}

	m.SetOnPublish(func(topic string, payload []byte) {
		deviceID, kind, err := topics.Parse(topic)
		if err != nil || kind != protocol.KindCommand || !answer[deviceID] {
			return
		}
		req, err := protocol.ParseCommand(payload)
		if err != nil {
			return
		}
		resp, _ := json.Marshal(protocol.Response{CmdID: req.ID, Status: status}) //nolint:errcheck // Static shape
		go m.SimulateMessage(topics.Response(deviceID), resp)
	})
}

// routeResponses subscribes the response topic of each device and hands
// decoded responses to c, doing the monitor's routing for tests that drive
// a correlator directly.
func routeResponses(m *MockTransport, topics protocol.Topics, c *Correlator, devices ...string) {
	for _, id := range devices {
		//nolint:errcheck // MockTransport.Subscribe never fails
		m.Subscribe(topics.Response(id), protocol.QoSAtLeastOnce, func(_ string, payload []byte) error {
			resp, err := protocol.DecodeResponse(payload)
			if err != nil {
				return err
			}
			c.HandleResponse(id, resp)
			return nil
		})
	}
}

// recordingPersistence collects everything the monitor forwards.
type recordingPersistence struct {
	mu       sync.Mutex
	states   []string
	data     []string
	infos    []string
	sent     []history.Command
	resolved map[string]string
}

func newRecordingPersistence() *recordingPersistence {
	return &recordingPersistence{resolved: make(map[string]string)}
}

func (r *recordingPersistence) Data(id string, _ protocol.Data) {
	r.mu.Lock()
	r.data = append(r.data, id)
	r.mu.Unlock()
}

func (r *recordingPersistence) State(id string, _ protocol.State) {
	r.mu.Lock()
	r.states = append(r.states, id)
	r.mu.Unlock()
}

func (r *recordingPersistence) Info(id string, _ protocol.Info) {
	r.mu.Lock()
	r.infos = append(r.infos, id)
	r.mu.Unlock()
}

func (r *recordingPersistence) CommandSent(cmd history.Command) {
	r.mu.Lock()
	r.sent = append(r.sent, cmd)
	r.mu.Unlock()
}

func (r *recordingPersistence) CommandResolved(cmdID, outcome string) {
	r.mu.Lock()
	r.resolved[cmdID] = outcome
	r.mu.Unlock()
}

func (r *recordingPersistence) outcome(cmdID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved[cmdID]
}

// recordingEvents collects broadcast channels.
type recordingEvents struct {
	mu       sync.Mutex
	channels []string
}

func (e *recordingEvents) Broadcast(channel string, _ any) {
	e.mu.Lock()
	e.channels = append(e.channels, channel)
	e.mu.Unlock()
}

func (e *recordingEvents) count(channel string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.channels {
		if strings.EqualFold(c, channel) {
			n++
		}
	}
	return n
}
