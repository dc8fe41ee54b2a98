package parallel

import (
	"runtime/debug"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/common/validation"
)

const module = "parallel"

// Body processes index i.
type Body func(i int) error

// WorkerBody processes index i on the worker with the given id.
// No two calls with the same worker id run concurrently.
type WorkerBody func(worker, i int) error

// Executor schedules a panic-safe body over [0, n) on threads workers.
// Implementations must visit every index at most once, stop starting new
// indices after the first error and return that error.
type Executor interface {
	Execute(n, threads int, body WorkerBody) error
}

// For runs body for every index in [0, n) on ex.
func For(ex Executor, n, threads int, body Body) error {
	if body == nil {
		return validation.ValidateNotNil(module, "body", nil)
	}
	return ForWorker(ex, n, threads, func(_, i int) error {
		return body(i)
	})
}

// ForWorker is like For but passes the worker id to body.
func ForWorker(ex Executor, n, threads int, body WorkerBody) error {
	if err := Validate(n, threads); err != nil {
		return err
	}
	if body == nil {
		return validation.ValidateNotNil(module, "body", nil)
	}
	if ex == nil {
		return validation.ValidateNotNil(module, "executor", nil)
	}
	if n == 0 {
		return nil
	}
	return ex.Execute(n, threads, Protect(body))
}

// Validate checks the loop parameters.
func Validate(n, threads int) error {
	if err := validation.ValidatePositive(module, "threads", threads); err != nil {
		return err
	}
	return validation.ValidateNonNegative(module, "n", n)
}

// Protect converts a panic in body into a *errors.PanicError.
func Protect(body WorkerBody) WorkerBody {
	return func(worker, i int) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &pferrors.PanicError{
					Kind:      pferrors.WorkerPanic,
					Index:     i,
					Worker:    worker,
					Recovered: r,
					Stack:     debug.Stack(),
				}
			}
		}()
		return body(worker, i)
	}
}
