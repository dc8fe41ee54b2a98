package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vnykmshr/parflow/pkg/metrics"
	"github.com/vnykmshr/parflow/pkg/scheduling/parallel"
	"github.com/vnykmshr/parflow/pkg/scheduling/pipeline"
)

// MetricsBackend wraps a Backend with Prometheus metrics collection.
type MetricsBackend struct {
	Backend

	mu       sync.RWMutex
	registry *metrics.Registry
	enabled  bool
}

var _ metrics.Instrumentable = (*MetricsBackend)(nil)

func newMetricsBackend(b Backend, reg *metrics.Registry) *MetricsBackend {
	return &MetricsBackend{Backend: b, registry: reg, enabled: true}
}

func (mb *MetricsBackend) current() *metrics.Registry {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if !mb.enabled {
		return nil
	}
	return mb.registry
}

// ParallelFor calls the wrapped backend and records the call.
func (mb *MetricsBackend) ParallelFor(n, threads int, body parallel.Body) error {
	start := time.Now()
	err := mb.Backend.ParallelFor(n, threads, body)
	if reg := mb.current(); reg != nil {
		reg.ObserveParallelFor(mb.Kind().String(), n, threads, time.Since(start), err)
	}
	return err
}

// ParallelForWorker calls the wrapped backend and records the call.
func (mb *MetricsBackend) ParallelForWorker(n, threads int, body parallel.WorkerBody) error {
	start := time.Now()
	err := mb.Backend.ParallelForWorker(n, threads, body)
	if reg := mb.current(); reg != nil {
		reg.ObserveParallelFor(mb.Kind().String(), n, threads, time.Since(start), err)
	}
	return err
}

// Pipeline runs stages with per-stage metrics.
func (mb *MetricsBackend) Pipeline(ctx context.Context, capacity int, stages ...pipeline.Stage) error {
	_, err := mb.PipelineWithConfig(ctx, pipeline.Config{Capacity: capacity}, stages...)
	return err
}

// PipelineWithConfig runs stages with per-stage metrics, chaining any hooks
// already present in cfg.
func (mb *MetricsBackend) PipelineWithConfig(ctx context.Context, cfg pipeline.Config, stages ...pipeline.Stage) (pipeline.Stats, error) {
	reg := mb.current()
	if reg == nil {
		return mb.Backend.PipelineWithConfig(ctx, cfg, stages...)
	}
	if cfg.Name == "" {
		cfg.Name = DefaultPipelineName
	}

	stats, err := mb.Backend.PipelineWithConfig(ctx, instrument(cfg, reg), stages...)
	reg.ObservePipeline(mb.Kind().String(), cfg.Name, stats.Duration, err)
	return stats, err
}

func instrument(cfg pipeline.Config, reg *metrics.Registry) pipeline.Config {
	name := cfg.Name

	onComplete := cfg.OnStageComplete
	cfg.OnStageComplete = func(stage string, d time.Duration, kept bool) {
		reg.StageCompleted(name, stage, d, kept)
		if onComplete != nil {
			onComplete(stage, d, kept)
		}
	}

	onError := cfg.OnError
	cfg.OnError = func(stage string, err error) {
		reg.StageFailed(name, stage)
		if onError != nil {
			onError(stage, err)
		}
	}

	onBackpressure := cfg.OnBackpressure
	cfg.OnBackpressure = func(queue string) {
		reg.Backpressure(name, queue)
		if onBackpressure != nil {
			onBackpressure(queue)
		}
	}

	onDepth := cfg.OnQueueDepth
	cfg.OnQueueDepth = func(queue string, depth int) {
		reg.SetQueueDepth(name, queue, depth)
		if onDepth != nil {
			onDepth(queue, depth)
		}
	}
	return cfg
}

// EnableMetrics enables metrics collection. A config with a registry
// switches to a new metrics.Registry on it.
func (mb *MetricsBackend) EnableMetrics(config metrics.Config) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if config.Registry != nil {
		reg, err := newRegistry(config)
		if err != nil {
			return err
		}
		mb.registry = reg
	}
	mb.enabled = config.Enabled
	return nil
}

// newRegistry turns a registration panic, such as a duplicate collector,
// into an error.
func newRegistry(config metrics.Config) (reg *metrics.Registry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend: register metrics: %v", r)
		}
	}()
	return metrics.NewRegistryWithConfig(config), nil
}

// DisableMetrics disables metrics collection.
func (mb *MetricsBackend) DisableMetrics() {
	mb.mu.Lock()
	mb.enabled = false
	mb.mu.Unlock()
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mb *MetricsBackend) MetricsEnabled() bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.enabled
}

// Registry returns the registry metrics are reported to.
func (mb *MetricsBackend) Registry() *metrics.Registry {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.registry
}
