package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vnykmshr/parflow/pkg/scheduling/pipeline"
)

// ErrInjected is returned by stages built with FailAt.
var ErrInjected = errors.New("injected failure")

// VisitRecorder counts how often each index of a loop was visited and by
// which worker. Safe for concurrent use.
type VisitRecorder struct {
	visits  []atomic.Int32
	workers []atomic.Int32
}

// NewVisitRecorder creates a recorder for [0, n).
func NewVisitRecorder(n int) *VisitRecorder {
	return &VisitRecorder{
		visits:  make([]atomic.Int32, n),
		workers: make([]atomic.Int32, n),
	}
}

// Visit records index i on worker w.
func (r *VisitRecorder) Visit(w, i int) error {
	r.visits[i].Add(1)
	r.workers[i].Store(int32(w))
	return nil
}

// Body adapts Visit to a body without worker ids.
func (r *VisitRecorder) Body(i int) error {
	return r.Visit(0, i)
}

// Count returns the number of visits of index i.
func (r *VisitRecorder) Count(i int) int {
	return int(r.visits[i].Load())
}

// Worker returns the worker that last visited index i.
func (r *VisitRecorder) Worker(i int) int {
	return int(r.workers[i].Load())
}

// Total returns the number of visits across all indices.
func (r *VisitRecorder) Total() int {
	total := 0
	for i := range r.visits {
		total += r.Count(i)
	}
	return total
}

// AssertExactlyOnce fails the test unless every index was visited once.
func (r *VisitRecorder) AssertExactlyOnce(t testing.TB) {
	t.Helper()
	for i := range r.visits {
		if c := r.Count(i); c != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, c)
		}
	}
}

// Recorder is a terminal stage that keeps every unit it receives in
// arrival order.
type Recorder[T any] struct {
	name string
	mu   sync.Mutex
	got  []T
}

// NewRecorder creates a recording sink.
func NewRecorder[T any](name string) *Recorder[T] {
	return &Recorder[T]{name: name}
}

// Name implements pipeline.Stage.
func (r *Recorder[T]) Name() string {
	return r.name
}

// Process implements pipeline.Stage.
func (r *Recorder[T]) Process(_ context.Context, item any) (any, bool, error) {
	v, ok := item.(T)
	if !ok {
		return nil, false, fmt.Errorf("recorder %q got %T: %w", r.name, item, pipeline.ErrTypeMismatch)
	}
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
	return nil, true, nil
}

// Items returns a copy of the recorded units.
func (r *Recorder[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

// Len returns the number of recorded units.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

// FailAt returns a pass-through int stage that fails with ErrInjected on
// the unit equal to bad.
func FailAt(name string, bad int) pipeline.Stage {
	return pipeline.Transform(name, func(_ context.Context, v int) (int, error) {
		if v == bad {
			return 0, fmt.Errorf("unit %d: %w", v, ErrInjected)
		}
		return v, nil
	})
}

// CallbackTracker tracks callback invocations for testing.
type CallbackTracker struct {
	mu    sync.Mutex
	count int
	value any
}

// NewCallbackTracker creates a new CallbackTracker.
func NewCallbackTracker() *CallbackTracker {
	return &CallbackTracker{}
}

// Mark records a call, optionally with a value.
func (c *CallbackTracker) Mark(v ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if len(v) > 0 {
		c.value = v[0]
	}
}

// CallCount returns the number of recorded calls.
func (c *CallbackTracker) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Called reports whether Mark was called at least once.
func (c *CallbackTracker) Called() bool {
	return c.CallCount() > 0
}

// Value returns the last value passed to Mark.
func (c *CallbackTracker) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
