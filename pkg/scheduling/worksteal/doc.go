/*
Package worksteal is the work-stealing backend: a parallel.Executor that
balances uneven loops dynamically, and a pipeline.Transport built on Go
channels and goroutines.

Every Execute call seeds one contiguous range per thread, exactly like the
native backend. From there each worker takes ranges from the bottom of its
own deque and halves anything larger than the grain, pushing the upper half
back. A worker that runs dry steals from the top of a random victim's deque,
which is where the largest remaining ranges are. A worker that finds nothing
to steal yields for a while, then sleeps with a doubling delay capped at one
millisecond, and wakes at once when the last range finishes. The call returns when the
outstanding range count drops to zero, or after the first error once every
worker has noticed the cancellation.

	s := worksteal.NewWithConfig(worksteal.Config{Grain: 64})
	defer s.Close()

	err := parallel.For(s, len(reads), 8, func(i int) error {
		return align(reads[i])
	})

The index-to-worker mapping is not fixed, so a body must not rely on which
worker sees which index. The worker id passed to parallel.WorkerBody is still
unique among concurrently running calls and can index per-worker buffers.

Pipeline queues are buffered channels. Stage workers are goroutines managed
by an errgroup.Group and scheduled by the Go runtime.
*/
package worksteal
