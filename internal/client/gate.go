package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Gate defaults.
const (
	DefaultProbeTimeout    = 3 * time.Second
	DefaultSettleDelay     = 500 * time.Millisecond
	DefaultProbeInterval   = 30 * time.Second
	DefaultMaxMissedProbes = 1
)

// ProbeFunc actively checks one device. nil means the device answered.
type ProbeFunc func(ctx context.Context, deviceID string, timeout time.Duration) error

// GateConfig configures a Gate.
type GateConfig struct {
	Probe           ProbeFunc
	ProbeTimeout    time.Duration
	SettleDelay     time.Duration
	ProbeInterval   time.Duration
	MaxMissedProbes int
	Logger          Logger
}

// Record is the liveness view of one device.
type Record struct {
	DeviceID       string    `json:"device_id"`
	Online         bool      `json:"online"`
	LastSeen       time.Time `json:"last_seen,omitzero"`
	MissedProbes   int       `json:"missed_probes"`
	PassiveAllowed bool      `json:"passive_allowed"`
}

type record struct {
	online   bool
	lastSeen time.Time
	missed   int
}

// Gate owns the online/offline state of every device.
//
// Online status only changes through Gate methods. After Reset, passive
// evidence is ignored until Sweep has probed every device; from then on
// any data, state or info envelope marks its device online.
type Gate struct {
	probe         ProbeFunc
	probeTimeout  time.Duration
	settleDelay   time.Duration
	probeInterval time.Duration
	maxMissed     int
	logger        Logger

	mu       sync.Mutex
	records  map[string]*record
	passive  bool
	gen      uint64
	onChange func(deviceID string, online bool)
}

// NewGate creates a gate with no devices.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		probe:         cfg.Probe,
		probeTimeout:  cfg.ProbeTimeout,
		settleDelay:   cfg.SettleDelay,
		probeInterval: cfg.ProbeInterval,
		maxMissed:     cfg.MaxMissedProbes,
		logger:        orNop(cfg.Logger),
		records:       make(map[string]*record),
	}
	if g.probeTimeout <= 0 {
		g.probeTimeout = DefaultProbeTimeout
	}
	if g.settleDelay < 0 {
		g.settleDelay = 0
	}
	if g.probeInterval <= 0 {
		g.probeInterval = DefaultProbeInterval
	}
	if g.maxMissed <= 0 {
		g.maxMissed = DefaultMaxMissedProbes
	}
	return g
}

// OnChange registers a callback for online/offline transitions. It is
// called without the gate lock held.
func (g *Gate) OnChange(fn func(deviceID string, online bool)) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

// Reset marks every device offline and disables passive inference.
// Call it when the session drops and again on every (re)connect, so no
// envelope delivered before the next sweep counts as liveness.
func (g *Gate) Reset(devices []string) {
	g.mu.Lock()
	g.gen++
	g.passive = false

	var demoted []string
	known := make(map[string]*record, len(devices))
	for _, id := range devices {
		if old, ok := g.records[id]; ok && old.online {
			demoted = append(demoted, id)
		}
		known[id] = &record{}
	}
	g.records = known
	cb := g.onChange
	g.mu.Unlock()

	g.notify(cb, demoted, false)
}

// Sweep waits for the settle delay, probes every device once in parallel
// and then enables passive inference.
//
// A successful probe is the only thing that can bring a device online
// during the sweep. If Reset is called while a sweep is running, the stale
// sweep's results are discarded and it does not enable passive inference.
//
// Returns:
//   - error: ctx.Err() if cancelled before completion
func (g *Gate) Sweep(ctx context.Context) error {
	g.mu.Lock()
	gen := g.gen
	devices := g.devicesLocked()
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.settleDelay):
	}

	online := g.probeAll(ctx, gen, devices)
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	if g.gen == gen {
		g.passive = true
	}
	g.mu.Unlock()

	g.logger.Info("liveness sweep complete", "devices", len(devices), "online", online)
	return nil
}

// Reprobe probes every device once and demotes those that have missed
// MaxMissedProbes probes in a row. It does nothing before the first sweep
// has finished.
func (g *Gate) Reprobe(ctx context.Context) {
	g.mu.Lock()
	if !g.passive {
		g.mu.Unlock()
		return
	}
	gen := g.gen
	devices := g.devicesLocked()
	g.mu.Unlock()

	g.probeAll(ctx, gen, devices)
}

// Run re-probes at ProbeInterval until ctx is done.
func (g *Gate) Run(ctx context.Context) {
	ticker := time.NewTicker(g.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Reprobe(ctx)
		}
	}
}

// Observe records passive evidence for deviceID.
//
// Returns:
//   - bool: True if the evidence was accepted (passive inference enabled
//     and the device is known)
func (g *Gate) Observe(deviceID string) bool {
	g.mu.Lock()
	rec, ok := g.records[deviceID]
	if !ok || !g.passive {
		g.mu.Unlock()
		return false
	}
	rec.lastSeen = time.Now()
	rec.missed = 0
	changed := !rec.online
	rec.online = true
	cb := g.onChange
	g.mu.Unlock()

	if changed {
		g.logger.Info("device online (passive)", "device_id", deviceID)
		g.notify(cb, []string{deviceID}, true)
	}
	return true
}

// IsOnline reports the current status of deviceID.
func (g *Gate) IsOnline(deviceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[deviceID]
	return ok && rec.online
}

// PassiveAllowed reports whether passive inference is enabled.
func (g *Gate) PassiveAllowed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.passive
}

// Snapshot returns every record sorted by device id.
func (g *Gate) Snapshot() []Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := lo.MapToSlice(g.records, func(id string, r *record) Record {
		return Record{
			DeviceID:       id,
			Online:         r.online,
			LastSeen:       r.lastSeen,
			MissedProbes:   r.missed,
			PassiveAllowed: g.passive,
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// probeAll probes devices in parallel and applies the results if gen is
// still current. It returns the number of devices that answered.
func (g *Gate) probeAll(ctx context.Context, gen uint64, devices []string) int {
	results := make([]bool, len(devices))

	var eg errgroup.Group
	for i, id := range devices {
		eg.Go(func() error {
			results[i] = g.probe(ctx, id, g.probeTimeout) == nil
			return nil
		})
	}
	_ = eg.Wait() //nolint:errcheck // Probe goroutines never return errors

	answered := 0
	for i, id := range devices {
		if results[i] {
			answered++
		}
		g.applyProbe(gen, id, results[i])
	}
	return answered
}

func (g *Gate) applyProbe(gen uint64, deviceID string, ok bool) {
	g.mu.Lock()
	rec, known := g.records[deviceID]
	if !known || g.gen != gen {
		g.mu.Unlock()
		return
	}

	var changed bool
	if ok {
		rec.missed = 0
		rec.lastSeen = time.Now()
		changed = !rec.online
		rec.online = true
	} else {
		rec.missed++
		if rec.online && rec.missed >= g.maxMissed {
			rec.online = false
			changed = true
		}
	}
	online := rec.online
	missed := rec.missed
	cb := g.onChange
	g.mu.Unlock()

	if changed {
		g.logger.Info("device liveness changed", "device_id", deviceID, "online", online, "missed_probes", missed)
		g.notify(cb, []string{deviceID}, online)
	}
}

func (g *Gate) devicesLocked() []string {
	ids := lo.Keys(g.records)
	sort.Strings(ids)
	return ids
}

func (g *Gate) notify(cb func(string, bool), ids []string, online bool) {
	if cb == nil {
		return
	}
	for _, id := range ids {
		cb(id, online)
	}
}
