package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/nhat092005/smart-home-sub001/internal/history"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// Event channels broadcast to live listeners.
const (
	EventDeviceState  = "device.state"
	EventDeviceData   = "device.data"
	EventDeviceInfo   = "device.info"
	EventDeviceOnline = "device.online"
	EventCommand      = "device.command"
)

// Persistence receives every envelope and command outcome. Implementations
// must not block; *history.Recorder queues and drops when full.
type Persistence interface {
	Data(deviceID string, d protocol.Data)
	State(deviceID string, s protocol.State)
	Info(deviceID string, i protocol.Info)
	CommandSent(cmd history.Command)
	CommandResolved(cmdID, outcome string)
}

// EventPublisher pushes live events to listeners. *api.Hub satisfies it.
type EventPublisher interface {
	Broadcast(channel string, payload any)
}

// MonitorConfig wires a Monitor.
type MonitorConfig struct {
	Devices   []string
	Topics    protocol.Topics
	Transport Transport

	CommandTimeout  time.Duration
	ProbeTimeout    time.Duration
	SettleDelay     time.Duration
	ProbeInterval   time.Duration
	MaxMissedProbes int

	Persistence Persistence // optional
	Metrics     *Metrics    // optional
	Events      EventPublisher
	Logger      Logger
}

// Monitor observes a fixed set of devices and sends them commands.
type Monitor struct {
	devices        []string
	known          map[string]bool
	topics         protocol.Topics
	transport      Transport
	commandTimeout time.Duration

	correlator *Correlator
	gate       *Gate
	cache      *Cache

	persistence Persistence
	metrics     *Metrics
	logger      Logger

	eventsMu sync.RWMutex
	events   EventPublisher

	ctx    context.Context
	cancel context.CancelFunc
	sweeps sync.WaitGroup
}

// NewMonitor builds a monitor. Call Subscribe before starting the
// transport, register OnConnect as its connect callback, then Run.
func NewMonitor(cfg MonitorConfig) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	logger := orNop(cfg.Logger)

	devices := lo.Uniq(lo.Compact(cfg.Devices))
	m := &Monitor{
		devices:        devices,
		known:          lo.SliceToMap(devices, func(id string) (string, bool) { return id, true }),
		topics:         cfg.Topics,
		transport:      cfg.Transport,
		commandTimeout: cfg.CommandTimeout,
		cache:          NewCache(),
		persistence:    cfg.Persistence,
		metrics:        cfg.Metrics,
		events:         cfg.Events,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}
	if m.commandTimeout <= 0 {
		m.commandTimeout = DefaultCommandTimeout
	}

	m.correlator = NewCorrelator(cfg.Transport, cfg.Topics, m, logger)
	m.gate = NewGate(GateConfig{
		Probe:           m.probe,
		ProbeTimeout:    cfg.ProbeTimeout,
		SettleDelay:     cfg.SettleDelay,
		ProbeInterval:   cfg.ProbeInterval,
		MaxMissedProbes: cfg.MaxMissedProbes,
		Logger:          logger,
	})
	m.gate.OnChange(m.onLivenessChange)
	m.gate.Reset(devices)
	if m.metrics != nil {
		for _, id := range devices {
			m.metrics.DeviceOnline(id, false)
		}
	}
	return m
}

// SetEvents replaces the live event publisher.
func (m *Monitor) SetEvents(events EventPublisher) {
	m.eventsMu.Lock()
	m.events = events
	m.eventsMu.Unlock()
}

// Devices returns the configured device ids.
func (m *Monitor) Devices() []string {
	return append([]string(nil), m.devices...)
}

// Correlator exposes the command correlation layer.
func (m *Monitor) Correlator() *Correlator { return m.correlator }

// Gate exposes the liveness gate.
func (m *Monitor) Gate() *Gate { return m.gate }

// Subscribe registers handlers for data, state, info and response of
// every device. The transport restores them on reconnect.
func (m *Monitor) Subscribe() error {
	for _, id := range m.devices {
		for _, kind := range protocol.MonitoredKinds {
			topic := m.topics.For(id, kind)
			if err := m.transport.Subscribe(topic, kind.QoS(), m.HandleMessage); err != nil {
				return fmt.Errorf("subscribing to %s: %w", topic, err)
			}
		}
	}
	return nil
}

// OnConnect restarts the liveness protocol: every device goes offline,
// passive inference is disabled, and a probe sweep runs in the background.
func (m *Monitor) OnConnect() {
	m.logger.Info("broker session up, resetting liveness", "devices", len(m.devices))
	m.gate.Reset(m.devices)

	m.sweeps.Add(1)
	go func() {
		defer m.sweeps.Done()
		if err := m.gate.Sweep(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("liveness sweep aborted", "error", err)
		}
	}()
}

// OnDisconnect marks every device offline and disables passive inference
// as soon as the session drops. The transport restores subscriptions before
// OnConnect runs, and retained envelopes replayed in that window must not
// count as liveness.
func (m *Monitor) OnDisconnect(err error) {
	m.logger.Warn("broker session lost, marking devices offline", "error", err)
	m.gate.Reset(m.devices)
}

// Run drives periodic re-probing until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		m.cancel()
	}()

	m.gate.Run(m.ctx)
	m.sweeps.Wait()
	return nil
}

// HandleMessage is the mqtt.MessageHandler for every monitored topic.
// Malformed envelopes are logged and dropped.
func (m *Monitor) HandleMessage(topic string, payload []byte) error {
	deviceID, kind, err := m.topics.Parse(topic)
	if err != nil || !m.known[deviceID] {
		m.logger.Debug("ignoring message", "topic", topic)
		return nil
	}

	switch kind {
	case protocol.KindResponse:
		resp, err := protocol.DecodeResponse(payload)
		if err != nil {
			m.logger.Warn("dropping response", "device_id", deviceID, "error", err)
			return nil
		}
		m.correlator.HandleResponse(deviceID, resp)

	case protocol.KindState:
		state, err := protocol.DecodeState(payload)
		if err != nil {
			m.logger.Warn("dropping state", "device_id", deviceID, "error", err)
			return nil
		}
		m.cache.PutState(deviceID, state)
		m.gate.Observe(deviceID)
		if m.persistence != nil {
			m.persistence.State(deviceID, state)
		}
		m.broadcast(EventDeviceState, map[string]any{"device_id": deviceID, "state": state})

	case protocol.KindData:
		data, err := protocol.DecodeData(payload)
		if err != nil {
			m.logger.Warn("dropping data", "device_id", deviceID, "error", err)
			return nil
		}
		m.cache.PutData(deviceID, data)
		m.gate.Observe(deviceID)
		if m.persistence != nil {
			m.persistence.Data(deviceID, data)
		}
		m.broadcast(EventDeviceData, map[string]any{"device_id": deviceID, "data": data})

	case protocol.KindInfo:
		info, err := protocol.DecodeInfo(payload)
		if err != nil {
			m.logger.Warn("dropping info", "device_id", deviceID, "error", err)
			return nil
		}
		m.cache.PutInfo(deviceID, info)
		m.gate.Observe(deviceID)
		if m.persistence != nil {
			m.persistence.Info(deviceID, info)
		}
		m.broadcast(EventDeviceInfo, map[string]any{"device_id": deviceID, "info": info})

	case protocol.KindCommand:
		// Commands from other clients are not ours to correlate.
	}
	return nil
}

// GetCachedState returns the last state seen for deviceID. It is
// last-known, not proof of liveness; see IsOnline.
func (m *Monitor) GetCachedState(deviceID string) (protocol.State, bool) {
	return m.cache.State(deviceID)
}

// IsOnline reports the gate's verdict for deviceID.
func (m *Monitor) IsOnline(deviceID string) bool {
	return m.gate.IsOnline(deviceID)
}

// IsKnown reports whether deviceID is configured.
func (m *Monitor) IsKnown(deviceID string) bool {
	return m.known[deviceID]
}

// Device returns the combined view of one device.
func (m *Monitor) Device(deviceID string) (DeviceView, error) {
	if !m.known[deviceID] {
		return DeviceView{}, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
	v := m.cache.View(deviceID)
	v.Online = m.gate.IsOnline(deviceID)
	return v, nil
}

// DeviceViews returns the combined view of every device, in config order.
func (m *Monitor) DeviceViews() []DeviceView {
	return lo.Map(m.devices, func(id string, _ int) DeviceView {
		v := m.cache.View(id)
		v.Online = m.gate.IsOnline(id)
		return v
	})
}

// SendCommand sends a command with callbacks. See Correlator.Send.
func (m *Monitor) SendCommand(deviceID string, name protocol.Name, params any, cb Callbacks, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		timeout = m.commandTimeout
	}
	return m.correlator.Send(deviceID, name, params, cb, timeout)
}

// Do sends a command to a known device and waits for its outcome.
func (m *Monitor) Do(ctx context.Context, deviceID string, name protocol.Name, params any, timeout time.Duration) (protocol.Response, error) {
	if !m.known[deviceID] {
		return protocol.Response{}, fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}
	if timeout <= 0 {
		timeout = m.commandTimeout
	}
	return m.correlator.SendAndWait(ctx, deviceID, name, params, timeout)
}

// CommandSent implements Observer.
func (m *Monitor) CommandSent(cmd SentCommand) {
	if m.persistence != nil {
		m.persistence.CommandSent(history.Command{
			CmdID:    cmd.CmdID,
			DeviceID: cmd.DeviceID,
			Command:  string(cmd.Command),
			Payload:  cmd.Params,
			SentAt:   cmd.SentAt,
		})
	}
}

// CommandResolved implements Observer.
func (m *Monitor) CommandResolved(res Result) {
	if m.metrics != nil {
		m.metrics.CommandResolved(res)
	}
	if m.persistence != nil && res.CmdID != "" {
		m.persistence.CommandResolved(res.CmdID, res.Outcome())
	}
	m.broadcast(EventCommand, map[string]any{
		"cmd_id":    res.CmdID,
		"device_id": res.DeviceID,
		"command":   res.Command,
		"outcome":   res.Outcome(),
	})
}

func (m *Monitor) probe(ctx context.Context, deviceID string, timeout time.Duration) error {
	err := m.correlator.Probe(ctx, deviceID, timeout)
	if m.metrics != nil {
		m.metrics.Probe(err)
	}
	return err
}

func (m *Monitor) onLivenessChange(deviceID string, online bool) {
	if m.metrics != nil {
		m.metrics.DeviceOnline(deviceID, online)
	}
	m.broadcast(EventDeviceOnline, map[string]any{"device_id": deviceID, "online": online})
}

func (m *Monitor) broadcast(channel string, payload any) {
	m.eventsMu.RLock()
	events := m.events
	m.eventsMu.RUnlock()
	if events != nil {
		events.Broadcast(channel, payload)
	}
}
