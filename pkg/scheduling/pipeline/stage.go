package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrTypeMismatch is returned by the typed stage helpers when a unit does not
// have the expected type.
var ErrTypeMismatch = errors.New("unexpected unit type")

// Stage represents a single processing stage in a pipeline.
//
// The first stage of a pipeline is the generator: it is called with a nil
// item and reports exhaustion by returning ok == false. Every other stage
// receives the previous stage's output; returning ok == false filters the
// unit out. The output of the last stage is discarded.
//
// State kept in a Stage value belongs to that stage's workers. A stage that
// declares more than one worker must make Process safe for concurrent use.
type Stage interface {
	// Name returns an identifier used in errors, logs and metrics.
	Name() string

	// Process transforms one unit. ctx is canceled when the pipeline aborts.
	Process(ctx context.Context, item any) (out any, ok bool, err error)
}

// Concurrent is implemented by stages that run on more than one worker.
type Concurrent interface {
	Workers() int
}

// ProcessFunc is the function form of Stage.Process.
type ProcessFunc func(ctx context.Context, item any) (any, bool, error)

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	name    string
	workers int
	fn      ProcessFunc
}

// NewStageFunc creates a single-worker stage from a function.
func NewStageFunc(name string, fn ProcessFunc) Stage {
	return &StageFunc{name: name, workers: 1, fn: fn}
}

// NewParallelStageFunc creates a stage that runs fn on the given number of workers.
func NewParallelStageFunc(name string, workers int, fn ProcessFunc) Stage {
	return &StageFunc{name: name, workers: workers, fn: fn}
}

// Name returns the stage name.
func (sf *StageFunc) Name() string {
	return sf.name
}

// Workers returns the number of workers for the stage.
func (sf *StageFunc) Workers() int {
	return sf.workers
}

// Process implements the Stage interface for StageFunc.
func (sf *StageFunc) Process(ctx context.Context, item any) (any, bool, error) {
	return sf.fn(ctx, item)
}

// WithWorkers returns s running on the given number of workers.
func WithWorkers(s Stage, workers int) Stage {
	return &StageFunc{name: s.Name(), workers: workers, fn: s.Process}
}

// Source creates a generator stage. next returns ok == false when exhausted.
func Source[T any](name string, next func(ctx context.Context) (T, bool, error)) Stage {
	return NewStageFunc(name, func(ctx context.Context, _ any) (any, bool, error) {
		v, ok, err := next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		return v, true, nil
	})
}

// FromSlice creates a generator stage that emits the items in order.
func FromSlice[T any](name string, items []T) Stage {
	i := 0
	return Source(name, func(context.Context) (T, bool, error) {
		if i >= len(items) {
			var zero T
			return zero, false, nil
		}
		v := items[i]
		i++
		return v, true, nil
	})
}

// Transform creates a stage that maps every unit through fn.
func Transform[I, O any](name string, fn func(ctx context.Context, in I) (O, error)) Stage {
	return NewStageFunc(name, func(ctx context.Context, item any) (any, bool, error) {
		in, err := as[I](name, item)
		if err != nil {
			return nil, false, err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	})
}

// Filter creates a stage that forwards only the units for which keep is true.
func Filter[T any](name string, keep func(ctx context.Context, in T) (bool, error)) Stage {
	return NewStageFunc(name, func(ctx context.Context, item any) (any, bool, error) {
		in, err := as[T](name, item)
		if err != nil {
			return nil, false, err
		}
		ok, err := keep(ctx, in)
		if err != nil || !ok {
			return nil, false, err
		}
		return in, true, nil
	})
}

// Sink creates a terminal stage that consumes every unit.
func Sink[T any](name string, consume func(ctx context.Context, in T) error) Stage {
	return NewStageFunc(name, func(ctx context.Context, item any) (any, bool, error) {
		in, err := as[T](name, item)
		if err != nil {
			return nil, false, err
		}
		if err := consume(ctx, in); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	})
}

func as[T any](stage string, item any) (T, error) {
	v, ok := item.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("stage %q got %T, want %T: %w", stage, item, zero, ErrTypeMismatch)
	}
	return v, nil
}

func workersOf(s Stage) int {
	if c, ok := s.(Concurrent); ok {
		return c.Workers()
	}
	return 1
}
