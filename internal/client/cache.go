package client

import (
	"sync"
	"time"

	"github.com/nhat092005/smart-home-sub001/internal/protocol"
)

// DeviceView is everything the monitor knows about one device.
type DeviceView struct {
	ID        string          `json:"id"`
	Online    bool            `json:"online"`
	State     *protocol.State `json:"state,omitempty"`
	Data      *protocol.Data  `json:"data,omitempty"`
	Info      *protocol.Info  `json:"info,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitzero"`
}

type cacheEntry struct {
	state     *protocol.State
	data      *protocol.Data
	info      *protocol.Info
	updatedAt time.Time
}

// Cache keeps the last envelope of each kind per device. Values are
// last-known, not current: a cached state says nothing about liveness.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

func (c *Cache) entry(id string) *cacheEntry {
	e, ok := c.entries[id]
	if !ok {
		e = &cacheEntry{}
		c.entries[id] = e
	}
	return e
}

// PutState stores the latest state for id.
func (c *Cache) PutState(id string, s protocol.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(id)
	e.state = &s
	e.updatedAt = time.Now()
}

// PutData stores the latest telemetry for id.
func (c *Cache) PutData(id string, d protocol.Data) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(id)
	e.data = &d
	e.updatedAt = time.Now()
}

// PutInfo stores the latest info for id.
func (c *Cache) PutInfo(id string, i protocol.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(id)
	e.info = &i
	e.updatedAt = time.Now()
}

// State returns the cached state for id.
func (c *Cache) State(id string) (protocol.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || e.state == nil {
		return protocol.State{}, false
	}
	return *e.state, true
}

// View returns copies of everything cached for id. Online is left false;
// the Monitor fills it from the Gate.
func (c *Cache) View(id string) DeviceView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := DeviceView{ID: id}
	e, ok := c.entries[id]
	if !ok {
		return v
	}
	if e.state != nil {
		s := *e.state
		v.State = &s
	}
	if e.data != nil {
		d := *e.data
		v.Data = &d
	}
	if e.info != nil {
		i := *e.info
		v.Info = &i
	}
	v.UpdatedAt = e.updatedAt
	return v
}
