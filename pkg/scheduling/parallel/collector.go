package parallel

import (
	"sync"
	"sync/atomic"
)

// Collector captures the first error of a parallel run and raises a stop flag.
// It is safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	err     error
	stopped atomic.Bool
	dropped atomic.Int64
}

// Record stores err if it is the first one and reports whether it was kept.
// Later errors are counted and discarded.
func (c *Collector) Record(err error) bool {
	if err == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		c.dropped.Add(1)
		return false
	}
	c.err = err
	c.stopped.Store(true)
	return true
}

// Stopped reports whether an error has been recorded.
func (c *Collector) Stopped() bool {
	return c.stopped.Load()
}

// Err returns the first recorded error.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Dropped returns how many errors arrived after the first one.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}
