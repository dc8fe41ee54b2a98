/*
Package workerpool is the native-thread backend: a fixed set of long-lived
workers, each optionally pinned to its own OS thread, driven by a
dispatch/barrier protocol.

Workers are created lazily on first use (or by Start) and reused across
calls. Execute publishes one job per call: worker w runs range w of
parallel.Partition(n, threads) and the caller sleeps on a condition variable
until every participating worker has passed the completion barrier. Workers
with an id above the requested thread count skip the job. When a call asks
for more threads than exist, the pool grows first.

Basic usage:

	pool := workerpool.New()
	defer pool.Close()

	err := parallel.For(pool, len(chunks), 8, func(i int) error {
		return compress(chunks[i])
	})

Index assignment is static, which keeps per-worker state cheap to reason
about:

	buffers := make([][]byte, 8)
	err := parallel.ForWorker(pool, n, 8, func(w, i int) error {
		buffers[w] = encode(buffers[w][:0], i)
		return nil
	})

The pool is also a pipeline.Transport. Pipeline queues are condition-variable
ring buffers from the channel package, and every stage worker runs on a
dedicated goroutine, locked to an OS thread when Config.LockOSThread is set.
Stage workers never borrow ParallelFor workers, so a pipeline stage may call
parallel.For on the same pool without deadlocking.

Lifecycle hooks run on the worker's own thread:

	pool := workerpool.NewWithConfig(workerpool.Config{
		Threads:      4,
		LockOSThread: true,
		OnWorkerStart: func(id int) {
			scratch[id] = make([]byte, 1<<20)
		},
	})

Execute calls on one pool are serialized, so a loop body must not call
Execute on its own pool; the nested call would wait on the outer one. Close
waits for a running call and then stops every worker; later calls return
errors.ErrClosed.

The pool keeps its largest size until Close. A single call with a large
thread count leaves that many idle workers, each holding a locked OS thread
when LockOSThread is set, so size calls to the machine rather than to n.
*/
package workerpool
