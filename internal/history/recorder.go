package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

const (
	// DefaultBufferSize is the number of records queued before new ones drop.
	DefaultBufferSize = 256

	defaultWriteTimeout = 5 * time.Second
)

// record is one queued write.
type record struct {
	kind  string
	write func(ctx context.Context, s Sink) error
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	BufferSize   int
	WriteTimeout time.Duration
	Logger       Logger
}

// Recorder fans records out to sinks from a single worker goroutine.
//
// Enqueueing never blocks: when the buffer is full the record is dropped
// and counted. Sinks see records in arrival order.
type Recorder struct {
	sinks        []Sink
	queue        chan record
	writeTimeout time.Duration
	logger       Logger

	mu      sync.RWMutex
	stopped bool

	dropped atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewRecorder creates a recorder writing to every sink.
func NewRecorder(cfg RecorderConfig, sinks ...Sink) *Recorder {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Recorder{
		sinks:        sinks,
		queue:        make(chan record, size),
		writeTimeout: timeout,
		logger:       orNop(cfg.Logger),
		done:         make(chan struct{}),
	}
}

// Start launches the worker.
func (r *Recorder) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Stop refuses new records, drains the queue and waits for the worker.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		close(r.queue)
		r.mu.Unlock()

		// Drain inline when Start was never called.
		r.startOnce.Do(func() { go r.run() })
		<-r.done
	})
}

// Dropped returns how many records were discarded on a full buffer.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Data queues a sensor data record.
func (r *Recorder) Data(deviceID string, d protocol.Data) {
	r.enqueue(record{kind: "data", write: func(ctx context.Context, s Sink) error {
		return s.RecordData(ctx, deviceID, d)
	}})
}

// State queues a state record.
func (r *Recorder) State(deviceID string, st protocol.State) {
	r.enqueue(record{kind: "state", write: func(ctx context.Context, s Sink) error {
		return s.RecordState(ctx, deviceID, st)
	}})
}

// Info queues a device info record.
func (r *Recorder) Info(deviceID string, i protocol.Info) {
	r.enqueue(record{kind: "info", write: func(ctx context.Context, s Sink) error {
		return s.RecordInfo(ctx, deviceID, i)
	}})
}

// CommandSent queues a sent command.
func (r *Recorder) CommandSent(cmd Command) {
	r.enqueue(record{kind: "command", write: func(ctx context.Context, s Sink) error {
		return s.RecordCommand(ctx, cmd)
	}})
}

// CommandResolved queues a command outcome.
func (r *Recorder) CommandResolved(cmdID, outcome string) {
	r.enqueue(record{kind: "command_result", write: func(ctx context.Context, s Sink) error {
		return s.RecordCommandResult(ctx, cmdID, outcome)
	}})
}

func (r *Recorder) enqueue(rec record) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		r.logger.Debug("history record after stop", "kind", rec.kind, "error", ErrRecorderStopped)
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("history buffer full, record dropped", "kind", rec.kind)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *Recorder) write(rec record) {
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := rec.write(ctx, s)
		cancel()
		if err != nil {
			r.logger.Warn("history write failed", "kind", rec.kind, "error", err)
		}
	}
}
