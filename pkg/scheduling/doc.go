/*
Package scheduling groups the execution primitives of parflow.

  - parallel: the Executor contract, static range partitioning and error collection
  - pipeline: multi-stage processing over bounded queues with optional re-sequencing
  - workerpool: persistent OS-thread pool backing the native backend
  - worksteal: work-stealing scheduler backing the workstealing backend
  - backend: the Backend facade that binds an executor and a pipeline transport

Most callers only need the backend package:

	b, err := backend.New(backend.Options{Kind: backend.KindWorkStealing, Threads: 8})
	if err != nil {
		return err
	}
	defer b.Close()

	err = b.ParallelFor(n, 8, func(i int) error {
		return process(i)
	})

Every component is safe for concurrent use. Calls to a single backend are
serialized: a second ParallelFor waits until the first returns.
*/
package scheduling
