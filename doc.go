/*
Package parflow provides two threading primitives for CPU-bound batch work,
each available on two interchangeable execution backends.

Primitives:
  - ParallelFor: run body(i) for every i in [0, n) across a fixed number of threads
  - Pipeline: stream items through an ordered chain of stages connected by bounded queues

Backends (pkg/scheduling/backend):
  - native: a persistent pool of OS-thread-locked workers with static range assignment
  - workstealing: per-worker deques with range splitting and random-victim stealing

Supporting packages:
  - pkg/scheduling/parallel: executor contract, partitioning and first-error collection
  - pkg/scheduling/pipeline: stage contract, queues, sequencing and statistics
  - pkg/scheduling/workerpool: the native thread pool
  - pkg/scheduling/worksteal: the work-stealing scheduler
  - pkg/streaming/channel: bounded blocking queue used by the native pipeline
  - pkg/config: file, environment and flag configuration
  - pkg/metrics: Prometheus instrumentation

Example usage:

	import (
		"github.com/vnykmshr/parflow/pkg/scheduling/backend"
		"github.com/vnykmshr/parflow/pkg/scheduling/pipeline"
	)

	b := backend.Native(backend.WithThreads(4))
	defer b.Close()

	out := make([]int, 1000)
	err := b.ParallelFor(len(out), 4, func(i int) error {
		out[i] = i * i
		return nil
	})

	err = b.Pipeline(ctx, 64,
		pipeline.FromSlice("read", records),
		pipeline.WithWorkers(pipeline.Transform("align", align), 4),
		pipeline.Sink("write", write),
	)

Both primitives return the first error raised by user code. Panics are
recovered and reported as errors wrapping ErrStagePanic or ErrWorkerPanic
from pkg/common/errors.
*/
package parflow
