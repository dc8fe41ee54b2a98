/*
Package pipeline provides the fixed-stage producer/consumer primitive shared
by the parflow backends.

A pipeline is an ordered list of stages. The first stage generates units,
every following stage transforms or filters them, and the last stage drains
them. Adjacent stages are connected by bounded queues, so a stage may work on
unit i+1 while the next stage is still busy with unit i, and a fast producer
blocks instead of growing memory.

# Quick Start

	err := pipeline.Run(ctx, transport, pipeline.Config{Capacity: 64},
		pipeline.Source("read", reader.Next),
		pipeline.Transform("map", func(ctx context.Context, r Read) (Hits, error) {
			return aligner.Map(r)
		}),
		pipeline.Sink("write", func(ctx context.Context, h Hits) error {
			return out.Write(h)
		}),
	)

The transport decides how queues and worker threads are built; the
workerpool and worksteal packages each provide one, and most callers go
through the backend package instead of calling Run directly.

# Stages

Stage is the interface; NewStageFunc, Source, FromSlice, Transform, Filter and
Sink cover the common shapes. A stage that implements Concurrent (for example
one built with NewParallelStageFunc or WithWorkers) runs on several workers.
The generator must stay single-threaded.

# Ordering

Every queue is FIFO. Single-worker stages therefore preserve generator order
end to end. For a stage with several workers the output is re-sequenced by a
Sequencer before it reaches the next queue, so order is preserved as well.
Setting Config.Unordered skips re-sequencing; output of parallel stages then
has no ordering guarantee.

# Termination and Failure

When the generator reports exhaustion its outbound queue is closed. Each
stage drains its inbound queue and the last of its workers closes the next
queue. Run returns once every worker has exited.

The first error returned by a stage is wrapped in *errors.StageError, a panic
becomes *errors.PanicError. Either one poisons every queue so that no worker
stays blocked, and is returned after all workers have joined. Errors observed
afterwards, including errors.ErrPoisonedPipeline seen by other stages, are
passed to Config.OnError and otherwise discarded.

The context given to Run is passed to stages and canceled when the run
aborts. The pipeline's own loops do not watch it: cancellation from the
caller has to be checked by the stages.
*/
package pipeline
