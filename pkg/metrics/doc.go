// Package metrics provides Prometheus instrumentation for parflow backends.
//
// # Overview
//
// A backend created with backend.WithMetrics reports every ParallelFor call
// and every pipeline run to a Registry:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	b := backend.Native(backend.WithMetrics(reg))
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Available Metrics
//
// ## Parallel-for
//
//   - parflow_parallel_for_runs_total: calls, by backend
//   - parflow_parallel_for_indices_total: loop indices submitted
//   - parflow_parallel_for_failures_total: calls that returned an error, by reason
//   - parflow_parallel_for_duration_seconds: wall time per call
//   - parflow_parallel_for_threads: thread count of the latest call
//
// ## Pipeline
//
//   - parflow_pipeline_runs_total: runs, by backend and pipeline name
//   - parflow_pipeline_failures_total: failed runs, by reason
//   - parflow_pipeline_duration_seconds: wall time per run
//   - parflow_pipeline_stage_items_total: units passed downstream per stage
//   - parflow_pipeline_stage_filtered_total: units dropped per stage
//   - parflow_pipeline_stage_failures_total: errors observed per stage
//   - parflow_pipeline_stage_duration_seconds: time per stage call
//   - parflow_pipeline_queue_depth: units buffered after the latest pop
//   - parflow_pipeline_backpressure_events_total: pushes that waited on a full queue
//
// Queues are named after the stage that feeds them.
//
// # Labels
//
//   - backend: "native" or "work-stealing"
//   - pipeline: pipeline.Config.Name, or "pipeline" when unset
//   - stage, queue: stage names
//   - reason: "panic", "configuration", "closed", "poisoned" or "error"
//
// Constant labels from Config.Labels are attached to every metric, and
// Config.Namespace replaces the "parflow" prefix.
package metrics
