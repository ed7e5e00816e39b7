package device

import (
	"context"
	"fmt"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// AgentConfig wires a node together. Zero-valued optional fields get
// defaults in NewAgent.
type AgentConfig struct {
	DeviceID  string
	Topics    protocol.Topics
	Transport Transport
	Store     *Store

	Registry *Registry     // default: DefaultRegistry()
	Actuator Actuator      // default: LogActuator
	Sensor   Sensor        // default: SimulatedSensor
	Clock    *Clock        // default: NewClock()
	Settings SettingsStore // default: no persistence
	System   System        // default: log only

	Info           InfoConfig
	RetainResponse bool

	Tick                time.Duration
	StateBackupInterval time.Duration
	RebootDelay         time.Duration

	Logger Logger
}

// Agent connects a node's Dispatcher and Scheduler to the transport.
type Agent struct {
	deviceID   string
	topics     protocol.Topics
	transport  Transport
	publisher  *Publisher
	dispatcher *Dispatcher
	scheduler  *Scheduler
	jobs       *Jobs
	logger     Logger
}

// NewAgent builds a node runtime from cfg.
func NewAgent(cfg AgentConfig) *Agent {
	logger := orNop(cfg.Logger)
	if cfg.Store == nil {
		cfg.Store = NewStore(DefaultState())
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	if cfg.Actuator == nil {
		cfg.Actuator = NewLogActuator(logger)
	}
	if cfg.Sensor == nil {
		cfg.Sensor = NewSimulatedSensor(uint64(time.Now().UnixNano()))
	}
	if cfg.Clock == nil {
		cfg.Clock = NewClock()
	}
	if cfg.Settings == nil {
		cfg.Settings = nopSettings{}
	}
	if cfg.System == nil {
		cfg.System = logSystem{logger: logger}
	}
	if cfg.RebootDelay <= 0 {
		cfg.RebootDelay = DefaultRebootDelay
	}

	publisher := &Publisher{
		deviceID:       cfg.DeviceID,
		topics:         cfg.Topics,
		transport:      cfg.Transport,
		store:          cfg.Store,
		sensor:         cfg.Sensor,
		clock:          cfg.Clock,
		info:           cfg.Info,
		retainResponse: cfg.RetainResponse,
	}
	jobs := NewJobs()

	return &Agent{
		deviceID:  cfg.DeviceID,
		topics:    cfg.Topics,
		transport: cfg.Transport,
		publisher: publisher,
		dispatcher: &Dispatcher{
			store:       cfg.Store,
			registry:    cfg.Registry,
			actuator:    cfg.Actuator,
			clock:       cfg.Clock,
			settings:    cfg.Settings,
			system:      cfg.System,
			jobs:        jobs,
			publisher:   publisher,
			rebootDelay: cfg.RebootDelay,
			logger:      logger,
		},
		scheduler: newScheduler(cfg.Store, publisher, cfg.Tick, cfg.StateBackupInterval, logger),
		jobs:      jobs,
		logger:    logger,
	}
}

// Dispatcher returns the node's command dispatcher, for local controls.
func (a *Agent) Dispatcher() *Dispatcher {
	return a.dispatcher
}

// Publisher returns the node's envelope publisher.
func (a *Agent) Publisher() *Publisher {
	return a.publisher
}

// Subscribe registers the command handler. The transport keeps the
// subscription and restores it on every reconnect.
func (a *Agent) Subscribe() error {
	topic := a.topics.Command(a.deviceID)
	if err := a.transport.Subscribe(topic, protocol.KindCommand.QoS(), a.dispatcher.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

// OnConnect publishes Info and State so new sessions start with fresh
// retained values. Register it as the transport's connect callback.
func (a *Agent) OnConnect() {
	a.logger.Info("broker session up", "device_id", a.deviceID)
	if err := a.publisher.PublishInfo(); err != nil {
		a.logger.Warn("info publish failed", "error", err)
	}
	if err := a.publisher.PublishState(); err != nil {
		a.logger.Warn("state publish failed", "error", err)
	}
}

// Run subscribes, starts the scheduler and blocks until ctx is done.
// Pending reboot or factory-reset jobs are cancelled on the way out.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Subscribe(); err != nil {
		return err
	}

	a.scheduler.Start(ctx)
	a.logger.Info("device node running", "device_id", a.deviceID)

	<-ctx.Done()

	a.scheduler.Stop()
	a.jobs.Close()
	a.jobs.Wait()
	return nil
}
