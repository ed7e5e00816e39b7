package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

const (
	// DefaultRebootDelay is the grace period between acknowledging a
	// destructive command and running it.
	DefaultRebootDelay = 2 * time.Second

	// systemJobKey is shared by reboot and factory_reset so the later
	// request replaces a pending one.
	systemJobKey = "system"

	// handlerTimeout bounds persistence work done for one command.
	handlerTimeout = 5 * time.Second
)

// Dispatcher applies commands to the node.
//
// It is the only writer of the Store apart from boot-time restore. Every
// mutation is followed by a state publish, whether it came from MQTT or
// from a local control.
type Dispatcher struct {
	store       *Store
	registry    *Registry
	actuator    Actuator
	clock       *Clock
	settings    SettingsStore
	system      System
	jobs        *Jobs
	publisher   *Publisher
	rebootDelay time.Duration
	logger      Logger
}

// HandleMessage is the mqtt.MessageHandler for the command topic.
//
// Malformed envelopes and unknown commands are logged and dropped. Every
// other command gets exactly one Response: success when Apply succeeds,
// error otherwise. It never returns an error, so the transport has nothing
// to report.
func (d *Dispatcher) HandleMessage(topic string, payload []byte) error {
	req, err := protocol.ParseCommand(payload)
	switch {
	case errors.Is(err, protocol.ErrMalformedEnvelope):
		d.logger.Warn("dropping malformed command", "topic", topic, "error", err)
		return nil
	case errors.Is(err, protocol.ErrUnknownCommand):
		d.logger.Warn("dropping unknown command", "cmd_id", req.ID, "command", req.Name)
		return nil
	case err != nil:
		d.logger.Warn("rejecting command", "cmd_id", req.ID, "command", req.Name, "error", err)
		d.respond(req.ID, protocol.StatusError)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	d.logger.Info("command received", "cmd_id", req.ID, "command", req.Name)
	if err := d.Apply(ctx, req.Command); err != nil {
		d.logger.Warn("command failed", "cmd_id", req.ID, "command", req.Name, "error", err)
		d.respond(req.ID, protocol.StatusError)
		return nil
	}
	d.respond(req.ID, protocol.StatusSuccess)
	return nil
}

// Apply executes one command.
//
// Parameters:
//   - ctx: Bounds persistence I/O
//   - cmd: Parsed command; parameters are already range-checked
//
// Returns:
//   - error: ErrUnknownSlot for set_device with an unregistered name,
//     or a store validation error; the state is unchanged in both cases
func (d *Dispatcher) Apply(ctx context.Context, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.SetDevice:
		slot, ok := d.registry.Lookup(c.Device)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSlot, c.Device)
		}
		if _, err := d.store.SetOutputs(map[Slot]int{slot: c.State}); err != nil {
			return err
		}
		d.drive(slot, c.State)
		d.publishState()

	case protocol.SetDevices:
		changes := make(map[Slot]int, 3)
		for slot, v := range map[Slot]*int{SlotFan: c.Fan, SlotLight: c.Light, SlotAC: c.AC} {
			if v != nil {
				changes[slot] = *v
			}
		}
		if _, err := d.store.SetOutputs(changes); err != nil {
			return err
		}
		for slot, v := range changes {
			d.drive(slot, v)
		}
		d.publishState()

	case protocol.SetMode:
		if _, err := d.store.SetMode(c.Mode); err != nil {
			return err
		}
		d.persist(ctx)
		d.publishState()

	case protocol.SetInterval:
		if err := d.store.SetInterval(c.Interval); err != nil {
			return err
		}
		d.logger.Info("interval updated", "interval", c.Interval)
		d.persist(ctx)
		d.publishState()

	case protocol.SetTimestamp:
		d.clock.Set(c.Timestamp)
		d.logger.Info("clock set", "timestamp", c.Timestamp)

	case protocol.GetStatus:
		d.publishState()

	case protocol.Reboot:
		d.logger.Warn("reboot scheduled", "delay", d.rebootDelay)
		d.jobs.Schedule(systemJobKey, d.rebootDelay, d.system.Reboot)

	case protocol.FactoryReset:
		d.logger.Warn("factory reset scheduled", "delay", d.rebootDelay)
		d.jobs.Schedule(systemJobKey, d.rebootDelay, d.system.FactoryReset)

	default:
		return fmt.Errorf("%w: %T", protocol.ErrUnknownCommand, cmd)
	}
	return nil
}

// ToggleSlot flips the named output, as a physical button would.
func (d *Dispatcher) ToggleSlot(name string) error {
	slot, ok := d.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}

	state := d.store.ToggleOutput(slot)
	d.drive(slot, state.Output(slot))
	d.publishState()
	return nil
}

// ToggleMode flips the operating mode, as the mode button would.
func (d *Dispatcher) ToggleMode(ctx context.Context) {
	state := d.store.ToggleMode()
	d.logger.Info("mode toggled", "mode", state.Mode)
	d.persist(ctx)
	d.publishState()
}

func (d *Dispatcher) drive(slot Slot, v int) {
	if err := d.actuator.Set(slot, v == 1); err != nil {
		d.logger.Error("actuator failed", "output", slot.String(), "error", err)
	}
}

func (d *Dispatcher) persist(ctx context.Context) {
	snap := d.store.Snapshot()
	if err := d.settings.Save(ctx, Settings{Mode: snap.Mode, Interval: snap.Interval}); err != nil {
		d.logger.Error("saving settings failed", "error", err)
	}
}

func (d *Dispatcher) publishState() {
	if err := d.publisher.PublishState(); err != nil {
		d.logger.Debug("state publish skipped", "error", err)
	}
}

func (d *Dispatcher) respond(cmdID string, status protocol.Status) {
	if err := d.publisher.PublishResponse(cmdID, status); err != nil {
		d.logger.Warn("response publish failed", "cmd_id", cmdID, "error", err)
	}
}
