package device

import (
	"fmt"
	"sync"

	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// Boot defaults.
const (
	DefaultMode     = 0
	DefaultInterval = 5
)

// Slot identifies one switched output.
type Slot int

// Outputs driven by the node.
const (
	SlotFan Slot = iota
	SlotLight
	SlotAC
)

// String returns the wire name of the slot.
func (s Slot) String() string {
	switch s {
	case SlotFan:
		return "fan"
	case SlotLight:
		return "light"
	case SlotAC:
		return "ac"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// State is a copy of the node's configuration and outputs.
type State struct {
	Mode     int
	Interval int
	Fan      int
	Light    int
	AC       int
}

// DefaultState returns the state a node boots with.
func DefaultState() State {
	return State{Mode: DefaultMode, Interval: DefaultInterval}
}

// Output returns the value of one slot.
func (s State) Output(slot Slot) int {
	switch slot {
	case SlotFan:
		return s.Fan
	case SlotLight:
		return s.Light
	case SlotAC:
		return s.AC
	}
	return 0
}

func (s *State) setOutput(slot Slot, v int) {
	switch slot {
	case SlotFan:
		s.Fan = v
	case SlotLight:
		s.Light = v
	case SlotAC:
		s.AC = v
	}
}

// Envelope renders the state for publishing.
func (s State) Envelope(timestamp int64) protocol.State {
	return protocol.State{
		Timestamp: timestamp,
		Mode:      s.Mode,
		Interval:  s.Interval,
		Fan:       s.Fan,
		Light:     s.Light,
		AC:        s.AC,
	}
}

// Store owns the live device state.
//
// Every read and write happens under mu. Snapshot hands out copies so
// callers never hold a reference into the guarded struct.
type Store struct {
	mu              sync.Mutex
	state           State
	intervalChanged bool
}

// NewStore creates a store seeded with initial. An out-of-range interval
// falls back to DefaultInterval.
func NewStore(initial State) *Store {
	if !validInterval(initial.Interval) {
		initial.Interval = DefaultInterval
	}
	return &Store{state: initial}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Interval returns the current telemetry interval in seconds.
func (s *Store) Interval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Interval
}

// SetInterval stores a new telemetry interval and raises the changed flag.
//
// Returns:
//   - error: ErrIntervalOutOfRange if seconds is outside [1,3600]; the state
//     and the flag are left untouched
func (s *Store) SetInterval(seconds int) error {
	if !validInterval(seconds) {
		return fmt.Errorf("%w: %d", ErrIntervalOutOfRange, seconds)
	}

	s.mu.Lock()
	s.state.Interval = seconds
	s.intervalChanged = true
	s.mu.Unlock()
	return nil
}

// TakeIntervalChanged reports and clears the changed flag.
//
// Returns:
//   - int: Current interval
//   - bool: True if SetInterval succeeded since the last call
func (s *Store) TakeIntervalChanged() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.intervalChanged
	s.intervalChanged = false
	return s.state.Interval, changed
}

// SetMode stores the operating mode.
func (s *Store) SetMode(mode int) (State, error) {
	if !binary(mode) {
		return State{}, fmt.Errorf("%w: mode %d", ErrInvalidValue, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Mode = mode
	return s.state, nil
}

// ToggleMode flips the operating mode.
func (s *Store) ToggleMode() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Mode = 1 - s.state.Mode
	return s.state
}

// SetOutputs applies every change atomically and returns the new state.
func (s *Store) SetOutputs(changes map[Slot]int) (State, error) {
	for slot, v := range changes {
		if !binary(v) {
			return State{}, fmt.Errorf("%w: %s=%d", ErrInvalidValue, slot, v)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for slot, v := range changes {
		s.state.setOutput(slot, v)
	}
	return s.state, nil
}

// ToggleOutput flips one output and returns the new state.
func (s *Store) ToggleOutput(slot Slot) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.setOutput(slot, 1-s.state.Output(slot))
	return s.state
}

// Reset restores boot defaults. The changed flag is raised because the
// interval may have moved.
func (s *Store) Reset() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = DefaultState()
	s.intervalChanged = true
	return s.state
}

func validInterval(v int) bool {
	return v >= protocol.MinInterval && v <= protocol.MaxInterval
}

func binary(v int) bool {
	return v == 0 || v == 1
}
