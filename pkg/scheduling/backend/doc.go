/*
Package backend selects between the two threading backends behind one
interface.

	b := backend.Native(backend.WithThreads(8))
	defer b.Close()

	err := b.ParallelFor(len(reads), 8, func(i int) error {
		return align(reads[i])
	})

	err = b.Pipeline(ctx, 64,
		pipeline.Source("read", next),
		pipeline.WithWorkers(pipeline.Transform("map", mapRead), 6),
		pipeline.Sink("write", write),
	)

The native backend (package workerpool) runs loops on long-lived workers
pinned to OS threads, with a static contiguous range per worker. The
work-stealing backend (package worksteal) splits ranges dynamically and
suits loops with uneven per-index cost. Both produce the same results for
the same inputs; only the index-to-worker mapping differs.

A backend can also be built from configuration:

	cfg, err := config.Load(config.WithConfigFile("parflow.yml"))
	if err != nil {
		return err
	}
	b, err := backend.FromConfig(cfg)

Every call is logged with a fresh run id. WithMetrics wraps the backend in a
MetricsBackend that reports calls, stage activity, queue depth and
backpressure to a metrics.Registry.
*/
package backend
