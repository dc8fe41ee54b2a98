// Package errors defines the error taxonomy shared by the parflow primitives.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration indicates invalid configuration parameters
	// such as zero threads or a zero queue capacity.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrWorkerPanic indicates that a ParallelFor body panicked.
	ErrWorkerPanic = errors.New("worker panicked")

	// ErrStagePanic indicates that a pipeline stage panicked.
	ErrStagePanic = errors.New("stage panicked")

	// ErrPoisonedPipeline indicates that a stage was waiting on a queue that
	// was aborted because of a fault elsewhere in the pipeline.
	ErrPoisonedPipeline = errors.New("pipeline poisoned")

	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")
)

// ValidationError describes a rejected configuration value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap makes every ValidationError match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// PanicKind tells whether a panic came from a ParallelFor body or a pipeline stage.
type PanicKind int

const (
	// WorkerPanic is a panic raised by a ParallelFor body.
	WorkerPanic PanicKind = iota
	// StagePanic is a panic raised by a pipeline stage.
	StagePanic
)

// PanicError carries a recovered panic together with where it happened.
type PanicError struct {
	Kind      PanicKind
	Stage     string // pipeline stage name, empty for WorkerPanic
	Index     int    // ParallelFor index or pipeline sequence number
	Worker    int
	Recovered interface{}
	Stack     []byte
}

func (e *PanicError) Error() string {
	if e.Kind == StagePanic {
		return fmt.Sprintf("stage %q panicked on unit %d: %v", e.Stage, e.Index, e.Recovered)
	}
	return fmt.Sprintf("worker %d panicked on index %d: %v", e.Worker, e.Index, e.Recovered)
}

// Is reports ErrWorkerPanic or ErrStagePanic depending on Kind.
func (e *PanicError) Is(target error) bool {
	switch target {
	case ErrWorkerPanic:
		return e.Kind == WorkerPanic
	case ErrStagePanic:
		return e.Kind == StagePanic
	}
	return false
}

// Unwrap exposes the recovered value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Recovered.(error); ok {
		return err
	}
	return nil
}

// StageError wraps an error returned by a pipeline stage.
type StageError struct {
	Stage string
	Seq   int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed on unit %d: %v", e.Stage, e.Seq, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsConfiguration returns true if err reports a configuration problem.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsPanic returns true if err carries a recovered worker or stage panic.
func IsPanic(err error) bool {
	var perr *PanicError
	return errors.As(err, &perr)
}

// IsPoisoned returns true if err reports an aborted pipeline queue.
func IsPoisoned(err error) bool {
	return errors.Is(err, ErrPoisonedPipeline)
}
