package device

import (
	"sync"
	"time"
)

// Clock is the node's wall clock. set_timestamp moves it without touching
// the host clock; envelope timestamps always come from here.
type Clock struct {
	mu     sync.RWMutex
	offset time.Duration
	now    func() time.Time
}

// NewClock returns a clock that tracks time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the adjusted wall time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset)
}

// Unix returns the adjusted time in unix seconds.
func (c *Clock) Unix() int64 {
	return c.Now().Unix()
}

// Set moves the clock so that it currently reads unix seconds.
func (c *Clock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = time.Unix(unix, 0).Sub(c.now())
}
