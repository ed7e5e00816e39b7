package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/mqtt"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// DefaultCommandTimeout applies when Send is given a non-positive timeout.
const DefaultCommandTimeout = 5 * time.Second

// Transport is the MQTT surface a client needs. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Callbacks receive the single terminal outcome of a command.
// Either may be nil.
type Callbacks struct {
	OnSuccess func(resp protocol.Response)

	// OnError receives ErrCommandRejected, ErrCommandTimeout,
	// ErrNotConnected or ErrSendFailed (possibly wrapped).
	OnError func(err error)
}

// SentCommand describes a command that was published.
type SentCommand struct {
	CmdID    string
	DeviceID string
	Command  protocol.Name
	Params   []byte
	SentAt   time.Time
}

// Result describes how a command ended.
type Result struct {
	SentCommand
	Err     error
	Latency time.Duration
}

// Outcome returns the outcome label for the result.
func (r Result) Outcome() string {
	return Reason(r.Err)
}

// Observer is notified of every command lifecycle event. Implementations
// must not block.
type Observer interface {
	CommandSent(cmd SentCommand)
	CommandResolved(res Result)
}

// pending is one in-flight command. It lives in the map from publish until
// exactly one of response or deadline removes it.
type pending struct {
	cmd   SentCommand
	cb    Callbacks
	timer *time.Timer
}

// Correlator matches responses to in-flight commands.
type Correlator struct {
	transport Transport
	topics    protocol.Topics
	observer  Observer
	logger    Logger

	seq atomic.Uint64

	mu      sync.Mutex
	pending map[string]*pending
}

// NewCorrelator creates a correlator publishing on topics through transport.
// observer and logger may be nil.
func NewCorrelator(transport Transport, topics protocol.Topics, observer Observer, logger Logger) *Correlator {
	return &Correlator{
		transport: transport,
		topics:    topics,
		observer:  observer,
		logger:    orNop(logger),
		pending:   make(map[string]*pending),
	}
}

// nextID returns cmd_001, cmd_002, ... Ids are unique for the process.
func (c *Correlator) nextID() string {
	return fmt.Sprintf("cmd_%03d", c.seq.Add(1))
}

// Send publishes a command and tracks it until it resolves.
//
// Parameters:
//   - deviceID: Target device
//   - name: Command name
//   - params: Typed protocol command, json.RawMessage, any JSON value, or nil
//   - cb: Outcome callbacks; exactly one call is made
//   - timeout: Deadline for the response (DefaultCommandTimeout if <= 0)
//
// Returns:
//   - string: The command id
//   - bool: False if the command could not be sent; OnError has already
//     been called with ErrNotConnected or ErrSendFailed
func (c *Correlator) Send(deviceID string, name protocol.Name, params any, cb Callbacks, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	id := c.nextID()
	cmd := SentCommand{CmdID: id, DeviceID: deviceID, Command: name, SentAt: time.Now()}

	payload, err := protocol.EncodeCommand(id, name, params)
	if err != nil {
		c.fail(cmd, cb, fmt.Errorf("%w: %w", ErrSendFailed, err))
		return "", false
	}
	cmd.Params = payload

	if !c.transport.IsConnected() {
		c.fail(cmd, cb, ErrNotConnected)
		return "", false
	}

	// Register before publishing: a QoS1 publish returns only after the
	// broker acks, and the device response can beat that ack.
	p := &pending{cmd: cmd, cb: cb}
	c.mu.Lock()
	c.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() { c.expire(id) })
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.CommandSent(cmd)
	}

	if err := c.transport.Publish(c.topics.Command(deviceID), payload, protocol.KindCommand.QoS(), false); err != nil {
		if c.remove(id) == nil {
			// Already resolved by a response or the deadline.
			return id, true
		}
		if errors.Is(err, mqtt.ErrNotConnected) {
			c.fail(cmd, cb, fmt.Errorf("%w: %w", ErrNotConnected, err))
		} else {
			c.fail(cmd, cb, fmt.Errorf("%w: %w", ErrSendFailed, err))
		}
		return "", false
	}

	c.logger.Debug("command sent", "cmd_id", id, "device_id", deviceID, "command", name)
	return id, true
}

// HandleResponse resolves the pending command named by resp.
//
// Returns:
//   - bool: False if no matching command is pending (late, duplicate, or
//     for another device); nothing is called in that case
func (c *Correlator) HandleResponse(deviceID string, resp protocol.Response) bool {
	c.mu.Lock()
	p, ok := c.pending[resp.CmdID]
	if ok && p.cmd.DeviceID != deviceID {
		c.mu.Unlock()
		c.logger.Warn("response on wrong device topic ignored",
			"cmd_id", resp.CmdID, "device_id", deviceID, "expected", p.cmd.DeviceID)
		return false
	}
	if ok {
		delete(c.pending, resp.CmdID)
		p.timer.Stop()
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown or expired command", "cmd_id", resp.CmdID, "device_id", deviceID)
		return false
	}

	if resp.Status == protocol.StatusSuccess {
		c.finish(p, nil)
		if p.cb.OnSuccess != nil {
			p.cb.OnSuccess(resp)
		}
		return true
	}

	err := fmt.Errorf("%w: status %q", ErrCommandRejected, resp.Status)
	c.finish(p, err)
	if p.cb.OnError != nil {
		p.cb.OnError(err)
	}
	return true
}

// Pending returns the number of in-flight commands.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SendAndWait sends a command and blocks until it resolves or ctx ends.
// If ctx ends first the command stays tracked until its own deadline.
func (c *Correlator) SendAndWait(ctx context.Context, deviceID string, name protocol.Name, params any, timeout time.Duration) (protocol.Response, error) {
	type outcome struct {
		resp protocol.Response
		err  error
	}
	done := make(chan outcome, 1)

	id, ok := c.Send(deviceID, name, params, Callbacks{
		OnSuccess: func(resp protocol.Response) { done <- outcome{resp: resp} },
		OnError:   func(err error) { done <- outcome{err: err} },
	}, timeout)
	if !ok {
		o := <-done
		return protocol.Response{}, o.err
	}

	select {
	case o := <-done:
		if o.err != nil {
			return protocol.Response{CmdID: id, Status: protocol.StatusError}, o.err
		}
		return o.resp, nil
	case <-ctx.Done():
		return protocol.Response{CmdID: id}, ctx.Err()
	}
}

// Probe sends get_status and reports whether the device answered. Any
// matching response proves liveness, including status "error".
func (c *Correlator) Probe(ctx context.Context, deviceID string, timeout time.Duration) error {
	_, err := c.SendAndWait(ctx, deviceID, protocol.CmdGetStatus, nil, timeout)
	if errors.Is(err, ErrCommandRejected) {
		return nil
	}
	return err
}

// expire is the deadline timer callback.
func (c *Correlator) expire(id string) {
	p := c.remove(id)
	if p == nil {
		return
	}

	c.logger.Warn("command timed out", "cmd_id", id, "device_id", p.cmd.DeviceID, "command", p.cmd.Command)
	c.finish(p, ErrCommandTimeout)
	if p.cb.OnError != nil {
		p.cb.OnError(ErrCommandTimeout)
	}
}

// remove takes id out of the map and stops its timer. It returns nil if
// the entry was already gone.
func (c *Correlator) remove(id string) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	p.timer.Stop()
	return p
}

func (c *Correlator) finish(p *pending, err error) {
	if c.observer != nil {
		c.observer.CommandResolved(Result{SentCommand: p.cmd, Err: err, Latency: time.Since(p.cmd.SentAt)})
	}
}

// fail reports a command that never became pending.
func (c *Correlator) fail(cmd SentCommand, cb Callbacks, err error) {
	c.logger.Warn("command not sent", "device_id", cmd.DeviceID, "command", cmd.Command, "error", err)
	if c.observer != nil {
		c.observer.CommandResolved(Result{SentCommand: cmd, Err: err})
	}
	if cb.OnError != nil {
		cb.OnError(err)
	}
}
