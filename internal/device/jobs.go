package device

import (
	"sync"
	"time"
)

// Jobs runs deferred actions that can be cancelled before they fire.
//
// Scheduling under a key that already has a pending job replaces it.
type Jobs struct {
	mu     sync.Mutex
	jobs   map[string]*job
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

type job struct {
	id    uint64
	timer *time.Timer
}

// NewJobs returns an empty job set.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*job)}
}

// Schedule runs fn after delay unless cancelled or replaced first.
// It is a no-op after Close.
func (j *Jobs) Schedule(key string, delay time.Duration, fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}
	j.stopLocked(key)

	j.seq++
	id := j.seq
	j.wg.Add(1)
	// The callback takes mu, so it cannot observe the map before the entry
	// below is stored.
	timer := time.AfterFunc(delay, func() {
		defer j.wg.Done()

		j.mu.Lock()
		if cur, ok := j.jobs[key]; ok && cur.id == id {
			delete(j.jobs, key)
		}
		j.mu.Unlock()

		fn()
	})
	j.jobs[key] = &job{id: id, timer: timer}
}

// Cancel stops the pending job under key.
//
// Returns:
//   - bool: True if a job was pending and will not run
func (j *Jobs) Cancel(key string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopLocked(key)
}

// Pending reports whether a job is waiting under key.
func (j *Jobs) Pending(key string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.jobs[key]
	return ok
}

// Close cancels every pending job and rejects new ones.
func (j *Jobs) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.closed = true
	for key := range j.jobs {
		j.stopLocked(key)
	}
}

// Wait blocks until every job that started running has returned.
func (j *Jobs) Wait() {
	j.wg.Wait()
}

func (j *Jobs) stopLocked(key string) bool {
	existing, ok := j.jobs[key]
	if !ok {
		return false
	}
	delete(j.jobs, key)
	if existing.timer.Stop() {
		j.wg.Done()
		return true
	}
	return false
}
