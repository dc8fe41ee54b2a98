package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
)

// Registry holds all metric instances for parflow components.
type Registry struct {
	// Parallel-for metrics
	ParallelForRuns     *prometheus.CounterVec
	ParallelForIndices  *prometheus.CounterVec
	ParallelForFailures *prometheus.CounterVec
	ParallelForDuration *prometheus.HistogramVec
	ThreadsRequested    *prometheus.GaugeVec

	// Pipeline metrics
	PipelineRuns       *prometheus.CounterVec
	PipelineFailures   *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	StageItems         *prometheus.CounterVec
	StageFiltered      *prometheus.CounterVec
	StageFailures      *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	QueueDepth         *prometheus.GaugeVec
	BackpressureEvents *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry bound to prometheus.DefaultRegisterer.
// It is created on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registry: reg})
}

// NewRegistryWithConfig creates a registry honoring the namespace, registry
// and constant labels of cfg.
func NewRegistryWithConfig(cfg Config) *Registry {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	labels := cfg.Labels
	factory := promauto.With(cfg.Registry)

	return &Registry{
		ParallelForRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "parallel_for",
				Name:        "runs_total",
				Help:        "Total number of parallel-for calls",
				ConstLabels: labels,
			},
			[]string{"backend"},
		),

		ParallelForIndices: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "parallel_for",
				Name:        "indices_total",
				Help:        "Total number of loop indices submitted",
				ConstLabels: labels,
			},
			[]string{"backend"},
		),

		ParallelForFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "parallel_for",
				Name:        "failures_total",
				Help:        "Total number of parallel-for calls that returned an error",
				ConstLabels: labels,
			},
			[]string{"backend", "reason"},
		),

		ParallelForDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "parallel_for",
				Name:        "duration_seconds",
				Help:        "Wall time of parallel-for calls",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"backend"},
		),

		ThreadsRequested: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "parallel_for",
				Name:        "threads",
				Help:        "Thread count of the most recent parallel-for call",
				ConstLabels: labels,
			},
			[]string{"backend"},
		),

		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "runs_total",
				Help:        "Total number of pipeline runs",
				ConstLabels: labels,
			},
			[]string{"backend", "pipeline"},
		),

		PipelineFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "failures_total",
				Help:        "Total number of pipeline runs that returned an error",
				ConstLabels: labels,
			},
			[]string{"backend", "pipeline", "reason"},
		),

		PipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "duration_seconds",
				Help:        "Wall time of pipeline runs",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"backend", "pipeline"},
		),

		StageItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "stage_items_total",
				Help:        "Total number of units a stage passed downstream",
				ConstLabels: labels,
			},
			[]string{"pipeline", "stage"},
		),

		StageFiltered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "stage_filtered_total",
				Help:        "Total number of units a stage dropped",
				ConstLabels: labels,
			},
			[]string{"pipeline", "stage"},
		),

		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "stage_failures_total",
				Help:        "Total number of errors observed by a stage",
				ConstLabels: labels,
			},
			[]string{"pipeline", "stage"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "stage_duration_seconds",
				Help:        "Time spent in a single stage call",
				Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 12),
				ConstLabels: labels,
			},
			[]string{"pipeline", "stage"},
		),

		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "queue_depth",
				Help:        "Units buffered in an inter-stage queue",
				ConstLabels: labels,
			},
			[]string{"pipeline", "queue"},
		),

		BackpressureEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "pipeline",
				Name:        "backpressure_events_total",
				Help:        "Total number of pushes that waited for a full queue",
				ConstLabels: labels,
			},
			[]string{"pipeline", "queue"},
		),
	}
}

// ObserveParallelFor records one finished parallel-for call.
func (r *Registry) ObserveParallelFor(backend string, n, threads int, d time.Duration, err error) {
	r.ParallelForRuns.WithLabelValues(backend).Inc()
	r.ParallelForIndices.WithLabelValues(backend).Add(float64(n))
	r.ParallelForDuration.WithLabelValues(backend).Observe(d.Seconds())
	r.ThreadsRequested.WithLabelValues(backend).Set(float64(threads))
	if err != nil {
		r.ParallelForFailures.WithLabelValues(backend, Reason(err)).Inc()
	}
}

// ObservePipeline records one finished pipeline run.
func (r *Registry) ObservePipeline(backend, pipeline string, d time.Duration, err error) {
	r.PipelineRuns.WithLabelValues(backend, pipeline).Inc()
	r.PipelineDuration.WithLabelValues(backend, pipeline).Observe(d.Seconds())
	if err != nil {
		r.PipelineFailures.WithLabelValues(backend, pipeline, Reason(err)).Inc()
	}
}

// StageCompleted records one stage call that did not fail.
func (r *Registry) StageCompleted(pipeline, stage string, d time.Duration, kept bool) {
	r.StageDuration.WithLabelValues(pipeline, stage).Observe(d.Seconds())
	if kept {
		r.StageItems.WithLabelValues(pipeline, stage).Inc()
	} else {
		r.StageFiltered.WithLabelValues(pipeline, stage).Inc()
	}
}

// StageFailed records an error observed by a stage.
func (r *Registry) StageFailed(pipeline, stage string) {
	r.StageFailures.WithLabelValues(pipeline, stage).Inc()
}

// Backpressure records a push that waited on a full queue.
func (r *Registry) Backpressure(pipeline, queue string) {
	r.BackpressureEvents.WithLabelValues(pipeline, queue).Inc()
}

// SetQueueDepth records the current depth of a queue.
func (r *Registry) SetQueueDepth(pipeline, queue string, depth int) {
	r.QueueDepth.WithLabelValues(pipeline, queue).Set(float64(depth))
}

// Reason maps an error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case pferrors.IsPanic(err):
		return "panic"
	case pferrors.IsConfiguration(err):
		return "configuration"
	case errors.Is(err, pferrors.ErrClosed):
		return "closed"
	case pferrors.IsPoisoned(err):
		return "poisoned"
	default:
		return "error"
	}
}
