package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhat092005/smart-home-sub001/internal/infrastructure/mqtt"
	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

var testTopics = protocol.NewTopics("smarthome")

// outcomeCounter counts callback invocations per command.
type outcomeCounter struct {
	mu        sync.Mutex
	successes map[string]int
	errs      map[string][]error
}

func newOutcomeCounter() *outcomeCounter {
	return &outcomeCounter{successes: make(map[string]int), errs: make(map[string][]error)}
}

func (o *outcomeCounter) callbacks(key string) Callbacks {
	return Callbacks{
		OnSuccess: func(protocol.Response) {
			o.mu.Lock()
			o.successes[key]++
			o.mu.Unlock()
		},
		OnError: func(err error) {
			o.mu.Lock()
			o.errs[key] = append(o.errs[key], err)
			o.mu.Unlock()
		},
	}
}

func (o *outcomeCounter) total(key string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.successes[key] + len(o.errs[key])
}

func (o *outcomeCounter) errorsFor(key string) []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.errs[key]...)
}

func responsePayload(id string, status protocol.Status) protocol.Response {
	return protocol.Response{CmdID: id, Status: status}
}

// ============================================================================
// Single command outcomes
// ============================================================================

func TestCorrelator_IDsAreSequential(t *testing.T) {
	m := NewMockTransport()
	c := NewCorrelator(m, testTopics, nil, nil)

	id1, ok := c.Send("d1", protocol.CmdGetStatus, nil, Callbacks{}, time.Minute)
	require.True(t, ok)
	id2, ok := c.Send("d1", protocol.CmdGetStatus, nil, Callbacks{}, time.Minute)
	require.True(t, ok)

	assert.Equal(t, "cmd_001", id1)
	assert.Equal(t, "cmd_002", id2)
	assert.Equal(t, 2, c.Pending())

	pubs := m.Published()
	require.Len(t, pubs, 2)
	assert.Equal(t, "smarthome/d1/command", pubs[0].Topic)
	assert.Equal(t, protocol.QoSAtLeastOnce, pubs[0].QoS)
	assert.False(t, pubs[0].Retained, "commands are never retained")
}

func TestCorrelator_Success(t *testing.T) {
	m := NewMockTransport()
	c := NewCorrelator(m, testTopics, nil, nil)
	o := newOutcomeCounter()

	id, ok := c.Send("d1", protocol.CmdSetMode, protocol.SetMode{Mode: 1}, o.callbacks("a"), time.Second)
	require.True(t, ok)

	assert.True(t, c.HandleResponse("d1", responsePayload(id, protocol.StatusSuccess)))
	assert.False(t, c.HandleResponse("d1", responsePayload(id, protocol.StatusSuccess)), "duplicate is a no-op")

	assert.Equal(t, 1, o.total("a"))
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_DeviceError(t *testing.T) {
	c := NewCorrelator(NewMockTransport(), testTopics, nil, nil)
	o := newOutcomeCounter()

	id, _ := c.Send("d1", protocol.CmdSetInterval, protocol.SetInterval{Interval: 10}, o.callbacks("a"), time.Second)
	c.HandleResponse("d1", responsePayload(id, protocol.StatusError))

	errs := o.errorsFor("a")
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCommandRejected)
	assert.Equal(t, OutcomeError, Reason(errs[0]))
}

func TestCorrelator_LateResponseAfterTimeout(t *testing.T) {
	c := NewCorrelator(NewMockTransport(), testTopics, nil, nil)
	o := newOutcomeCounter()

	id, ok := c.Send("d1", protocol.CmdGetStatus, nil, o.callbacks("a"), 20*time.Millisecond)
	require.True(t, ok)

	require.Eventually(t, func() bool { return o.total("a") == 1 }, time.Second, 5*time.Millisecond)
	errs := o.errorsFor("a")
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCommandTimeout)
	assert.Equal(t, OutcomeTimeout, Reason(errs[0]))

	assert.False(t, c.HandleResponse("d1", responsePayload(id, protocol.StatusSuccess)))
	assert.Equal(t, 1, o.total("a"), "late response must not fire a second callback")
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_NotConnected(t *testing.T) {
	m := NewMockTransport()
	m.SetConnected(false)
	c := NewCorrelator(m, testTopics, nil, nil)
	o := newOutcomeCounter()

	id, ok := c.Send("d1", protocol.CmdGetStatus, nil, o.callbacks("a"), time.Second)

	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Equal(t, 0, c.Pending())
	assert.Empty(t, m.Published())
	errs := o.errorsFor("a")
	require.Len(t, errs, 1)
	assert.Equal(t, OutcomeNotConnected, Reason(errs[0]))
}

func TestCorrelator_PublishFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{"broker error", mqtt.ErrPublishFailed, OutcomeSendFailed},
		{"dropped mid-send", mqtt.ErrNotConnected, OutcomeNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMockTransport()
			m.SetPublishError(tt.err)
			c := NewCorrelator(m, testTopics, nil, nil)
			o := newOutcomeCounter()

			_, ok := c.Send("d1", protocol.CmdGetStatus, nil, o.callbacks("a"), time.Second)

			assert.False(t, ok)
			assert.Equal(t, 0, c.Pending())
			errs := o.errorsFor("a")
			require.Len(t, errs, 1)
			assert.Equal(t, tt.outcome, Reason(errs[0]))
		})
	}
}

func TestCorrelator_InvalidParams(t *testing.T) {
	c := NewCorrelator(NewMockTransport(), testTopics, nil, nil)
	o := newOutcomeCounter()

	_, ok := c.Send("d1", protocol.CmdSetMode, func() {}, o.callbacks("a"), time.Second)

	assert.False(t, ok)
	errs := o.errorsFor("a")
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSendFailed)
}

func TestCorrelator_ResponseOnWrongDeviceIgnored(t *testing.T) {
	c := NewCorrelator(NewMockTransport(), testTopics, nil, nil)
	o := newOutcomeCounter()

	id, _ := c.Send("d1", protocol.CmdGetStatus, nil, o.callbacks("a"), time.Second)

	assert.False(t, c.HandleResponse("d2", responsePayload(id, protocol.StatusSuccess)))
	assert.Equal(t, 0, o.total("a"))
	assert.True(t, c.HandleResponse("d1", responsePayload(id, protocol.StatusSuccess)))
}

// ============================================================================
// Exactly-once resolution
// ============================================================================

func TestCorrelator_ExactlyOnceUnderRaces(t *testing.T) {
	m := NewMockTransport()
	c := NewCorrelator(m, testTopics, nil, nil)
	o := newOutcomeCounter()

	const n = 200
	ids := make([]string, n)
	for i := range n {
		// Deadlines straddle the response times so some responses race
		// their own timers.
		timeout := time.Duration(1+i%5) * time.Millisecond
		id, ok := c.Send("d1", protocol.CmdGetStatus, nil, o.callbacks(fmt.Sprint(i)), timeout)
		require.True(t, ok)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(time.Duration(i%4) * time.Millisecond)
			c.HandleResponse("d1", responsePayload(ids[i], protocol.StatusSuccess))
			c.HandleResponse("d1", responsePayload(ids[i], protocol.StatusError))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	for i := range n {
		assert.Equal(t, 1, o.total(fmt.Sprint(i)), "command %s", ids[i])
	}
}

// ============================================================================
// Blocking helpers
// ============================================================================

func TestCorrelator_SetModeScenario(t *testing.T) {
	m := NewMockTransport()
	fakeDevices(m, testTopics, protocol.StatusSuccess, "esp32-01")
	c := NewCorrelator(m, testTopics, nil, nil)
	routeResponses(m, testTopics, c, "esp32-01")

	start := time.Now()
	resp, err := c.SendAndWait(context.Background(), "esp32-01", protocol.CmdSetMode, protocol.SetMode{Mode: 1}, 5000*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "cmd_001", resp.CmdID)
	assert.Equal(t, protocol.StatusSuccess, resp.Status)
	assert.Less(t, time.Since(start), 5000*time.Millisecond)

	req, err := protocol.ParseCommand(m.Published()[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.SetMode{Mode: 1}, req.Command)
}

func TestCorrelator_ProbeCountsAnyAnswer(t *testing.T) {
	m := NewMockTransport()
	fakeDevices(m, testTopics, protocol.StatusError, "d1")
	c := NewCorrelator(m, testTopics, nil, nil)
	routeResponses(m, testTopics, c, "d1", "d2")

	// A device that rejects get_status still answered.
	require.NoError(t, c.Probe(context.Background(), "d1", time.Second))

	_, err := c.SendAndWait(context.Background(), "d1", protocol.CmdSetMode, protocol.SetMode{Mode: 1}, time.Second)
	assert.ErrorIs(t, err, ErrCommandRejected, "commands keep the rejection")

	err = c.Probe(context.Background(), "d2", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrCommandTimeout)
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_SendAndWaitContextCancelled(t *testing.T) {
	c := NewCorrelator(NewMockTransport(), testTopics, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.SendAndWait(ctx, "d1", protocol.CmdGetStatus, nil, time.Minute)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, c.Pending(), "entry lives until its own deadline")
}

type countingObserver struct {
	sent     atomic.Int32
	resolved atomic.Int32
}

func (o *countingObserver) CommandSent(SentCommand)  { o.sent.Add(1) }
func (o *countingObserver) CommandResolved(Result)   { o.resolved.Add(1) }

func TestCorrelator_Observer(t *testing.T) {
	m := NewMockTransport()
	obs := &countingObserver{}
	c := NewCorrelator(m, testTopics, obs, nil)

	id, _ := c.Send("d1", protocol.CmdGetStatus, nil, Callbacks{}, time.Second)
	c.HandleResponse("d1", responsePayload(id, protocol.StatusSuccess))

	m.SetConnected(false)
	c.Send("d1", protocol.CmdGetStatus, nil, Callbacks{}, time.Second)

	assert.Equal(t, int32(1), obs.sent.Load())
	assert.Equal(t, int32(2), obs.resolved.Load())
}
