/*
Package parallel provides the data-parallel for-loop primitive shared by the
parflow backends.

For runs a numbered body over the index range [0, n) using a fixed number of
threads and blocks until every index completed or the first failure was
observed. The scheduling itself is delegated to an Executor, which is what the
native-thread and work-stealing backends implement.

# Quick Start

	err := parallel.For(executor, len(reads), 8, func(i int) error {
		return mapRead(reads[i])
	})

Bodies that keep per-thread buffers use ForWorker, which also passes the
worker id in [0, threads):

	buffers := make([][]byte, 8)
	err := parallel.ForWorker(executor, len(reads), 8, func(worker, i int) error {
		buffers[worker] = encode(buffers[worker][:0], reads[i])
		return nil
	})

# Failure Semantics

When a body returns an error or panics, no new index is started, indices
already running are allowed to finish, and the first error is returned.
Panics are converted to *errors.PanicError with the failing index. Secondary
errors are counted by the Collector but never returned.

# Work Distribution

Partition splits [0, n) into contiguous ranges of near-equal size in
ascending order; executors that assign work statically (the native backend)
give range w to worker w. Dynamic executors only guarantee that every index is
visited exactly once.

# Degenerate Cases

n == 0 returns immediately without calling the executor. threads <= 0 and
n < 0 are configuration errors.
*/
package parallel
