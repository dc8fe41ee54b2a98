package channel

import (
	"fmt"
	"sync"
	"time"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
)

// ErrChannelClosed is returned when pushing to a closed channel.
var ErrChannelClosed = fmt.Errorf("channel: %w", pferrors.ErrClosed)

// Stats holds statistics about channel usage.
type Stats struct {
	// SendCount is the total number of accepted pushes.
	SendCount int64

	// ReceiveCount is the total number of successful pops.
	ReceiveCount int64

	// BlockedSends is the number of pushes that had to wait for a free slot.
	BlockedSends int64

	// BlockedReceives is the number of pops that had to wait for an item.
	BlockedReceives int64

	// PeakLen is the highest number of buffered items observed.
	PeakLen int

	// LastSendTime is the timestamp of the last accepted push.
	LastSendTime time.Time

	// LastReceiveTime is the timestamp of the last successful pop.
	LastReceiveTime time.Time
}

// Config holds configuration for a Channel.
type Config struct {
	// BufferSize is the ring capacity. Must be positive.
	BufferSize int

	// OnBlock is called each time a push waits on a full buffer.
	OnBlock func()
}

// Channel is a bounded FIFO built on a mutex-guarded ring buffer and two
// condition variables. It is safe for any number of producers and consumers.
type Channel[T any] struct {
	config Config
	buffer []T
	mu     sync.Mutex

	head     int
	tail     int
	count    int
	closed   bool
	poisoned bool

	notEmpty *sync.Cond
	notFull  *sync.Cond

	stats Stats
}

// New creates a Channel with the given capacity.
func New[T any](bufferSize int) *Channel[T] {
	return NewWithConfig[T](Config{BufferSize: bufferSize})
}

// NewWithConfig creates a Channel with the specified configuration.
// It panics if BufferSize is not positive.
func NewWithConfig[T any](config Config) *Channel[T] {
	if config.BufferSize <= 0 {
		panic("channel buffer size must be positive")
	}

	ch := &Channel[T]{
		config: config,
		buffer: make([]T, config.BufferSize),
	}
	ch.notEmpty = sync.NewCond(&ch.mu)
	ch.notFull = sync.NewCond(&ch.mu)

	return ch
}

// Push appends value, blocking while the buffer is full. It returns
// ErrChannelClosed after Close and errors.ErrPoisonedPipeline after Poison.
func (ch *Channel[T]) Push(value T) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.count >= len(ch.buffer) && !ch.closed && !ch.poisoned {
		ch.stats.BlockedSends++
		if ch.config.OnBlock != nil {
			ch.config.OnBlock()
		}
		for ch.count >= len(ch.buffer) && !ch.closed && !ch.poisoned {
			ch.notFull.Wait()
		}
	}

	if ch.poisoned {
		return pferrors.ErrPoisonedPipeline
	}
	if ch.closed {
		return ErrChannelClosed
	}

	ch.buffer[ch.tail] = value
	ch.tail = (ch.tail + 1) % len(ch.buffer)
	ch.count++

	ch.stats.SendCount++
	ch.stats.LastSendTime = time.Now()
	if ch.count > ch.stats.PeakLen {
		ch.stats.PeakLen = ch.count
	}

	ch.notEmpty.Signal()
	return nil
}

// Pop removes the oldest value, blocking while the buffer is empty.
// After Close it keeps returning buffered values and then ok == false.
// After Poison it returns errors.ErrPoisonedPipeline.
func (ch *Channel[T]) Pop() (value T, ok bool, err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.count == 0 && !ch.closed && !ch.poisoned {
		ch.stats.BlockedReceives++
		for ch.count == 0 && !ch.closed && !ch.poisoned {
			ch.notEmpty.Wait()
		}
	}

	if ch.poisoned {
		return value, false, pferrors.ErrPoisonedPipeline
	}
	if ch.count == 0 {
		return value, false, nil
	}

	value = ch.buffer[ch.head]
	var zero T
	ch.buffer[ch.head] = zero // drop the reference
	ch.head = (ch.head + 1) % len(ch.buffer)
	ch.count--

	ch.stats.ReceiveCount++
	ch.stats.LastReceiveTime = time.Now()

	ch.notFull.Signal()
	return value, true, nil
}

// Close marks the end of input. Buffered values can still be popped.
// Closing twice is a no-op.
func (ch *Channel[T]) Close() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.closed = true
	ch.notEmpty.Broadcast()
	ch.notFull.Broadcast()
}

// Poison aborts the channel, waking every blocked caller. Buffered values
// are discarded.
func (ch *Channel[T]) Poison() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.poisoned = true
	var zero T
	for i := range ch.buffer {
		ch.buffer[i] = zero
	}
	ch.count = 0
	ch.notEmpty.Broadcast()
	ch.notFull.Broadcast()
}

// IsClosed returns true after Close or Poison.
func (ch *Channel[T]) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed || ch.poisoned
}

// Len returns the current number of buffered elements.
func (ch *Channel[T]) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.count
}

// Cap returns the buffer capacity.
func (ch *Channel[T]) Cap() int {
	return len(ch.buffer)
}

// Stats returns a snapshot of the channel statistics.
func (ch *Channel[T]) Stats() Stats {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.stats
}
