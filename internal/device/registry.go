package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry resolves output names used by set_device to slots.
//
// New outputs are added with Register; the dispatcher does not change.
type Registry struct {
	mu    sync.RWMutex
	slots map[string]Slot
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]Slot)}
}

// DefaultRegistry returns a registry with fan, light and ac registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, slot := range []Slot{SlotFan, SlotLight, SlotAC} {
		r.slots[slot.String()] = slot
	}
	return r
}

// Register maps name to slot.
//
// Returns:
//   - error: ErrSlotExists if name is already registered
func (r *Registry) Register(name string, slot Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[name]; ok {
		return fmt.Errorf("%w: %q", ErrSlotExists, name)
	}
	r.slots[name] = slot
	return nil
}

// Lookup returns the slot registered under name.
func (r *Registry) Lookup(name string) (Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.slots[name]
	return slot, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.slots)
	sort.Strings(names)
	return names
}
