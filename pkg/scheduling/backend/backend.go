package backend

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/common/logging"
	"github.com/vnykmshr/parflow/pkg/config"
	"github.com/vnykmshr/parflow/pkg/scheduling/parallel"
	"github.com/vnykmshr/parflow/pkg/scheduling/pipeline"
)

// Kind names a backend implementation.
type Kind string

const (
	// KindNative runs loops on pinned long-lived workers with static ranges.
	KindNative Kind = "native"
	// KindWorkStealing runs loops on a work-stealing scheduler.
	KindWorkStealing Kind = "work-stealing"
)

// DefaultPipelineName labels pipeline runs whose Config.Name is empty.
const DefaultPipelineName = "pipeline"

// ParseKind parses a backend name. Matching ignores case, and "worksteal"
// and "ws" are accepted for work-stealing.
func ParseKind(s string) (Kind, error) {
	if canonical, ok := config.CanonicalBackend(s); ok {
		return Kind(canonical), nil
	}
	return "", pferrors.NewValidationError(module, "backend", s, "unknown backend").
		WithHint(fmt.Sprintf("use %q or %q", KindNative, KindWorkStealing))
}

func (k Kind) String() string {
	return string(k)
}

// Backend is the common surface of both threading backends.
type Backend interface {
	// Kind reports which implementation is in use.
	Kind() Kind

	// ParallelFor calls body(i) for every i in [0, n) on threads workers
	// and returns after all of them have finished.
	//
	// Calls are serialized, so body must not call ParallelFor or
	// ParallelForWorker on the same backend: the inner call waits for the
	// outer one forever. Pipeline stages may call ParallelFor, since stage
	// workers are separate from loop workers.
	ParallelFor(n, threads int, body parallel.Body) error

	// ParallelForWorker is like ParallelFor and also passes a worker id in
	// [0, threads) that no two concurrent calls share. The same re-entrancy
	// rule applies.
	ParallelForWorker(n, threads int, body parallel.WorkerBody) error

	// Pipeline runs stages connected by queues holding at most capacity
	// units each.
	Pipeline(ctx context.Context, capacity int, stages ...pipeline.Stage) error

	// PipelineWithConfig runs stages with full pipeline configuration and
	// returns per-stage counters.
	PipelineWithConfig(ctx context.Context, cfg pipeline.Config, stages ...pipeline.Stage) (pipeline.Stats, error)

	// Close releases the backend's threads. Later calls return
	// errors.ErrClosed.
	Close() error
}

// engine is what a backend implementation provides.
type engine interface {
	parallel.Executor
	pipeline.Transport
	Close() error
}

type runner struct {
	kind   Kind
	eng    engine
	log    zerolog.Logger
	closed atomic.Bool
}

func newRunner(kind Kind, eng engine, log zerolog.Logger) *runner {
	return &runner{
		kind: kind,
		eng:  eng,
		log:  logging.WithComponent(log, "backend").With().Str(logging.FieldBackend, string(kind)).Logger(),
	}
}

func (r *runner) Kind() Kind {
	return r.kind
}

func (r *runner) ParallelFor(n, threads int, body parallel.Body) error {
	if body == nil {
		return parallel.For(r.eng, n, threads, nil)
	}
	return r.ParallelForWorker(n, threads, func(_, i int) error {
		return body(i)
	})
}

func (r *runner) ParallelForWorker(n, threads int, body parallel.WorkerBody) error {
	if r.closed.Load() {
		return pferrors.ErrClosed
	}

	log := r.log.With().
		Str(logging.FieldRunID, uuid.NewString()).
		Int(logging.FieldThreads, threads).
		Logger()

	start := time.Now()
	err := parallel.ForWorker(r.eng, n, threads, body)
	d := time.Since(start)

	if err != nil {
		log.Warn().Err(err).Int("n", n).Msg("parallel-for failed")
		return err
	}
	log.Debug().Int("n", n).Int64(logging.FieldDuration, d.Milliseconds()).Msg("parallel-for finished")
	return nil
}

func (r *runner) Pipeline(ctx context.Context, capacity int, stages ...pipeline.Stage) error {
	_, err := r.PipelineWithConfig(ctx, pipeline.Config{Capacity: capacity}, stages...)
	return err
}

func (r *runner) PipelineWithConfig(ctx context.Context, cfg pipeline.Config, stages ...pipeline.Stage) (pipeline.Stats, error) {
	if r.closed.Load() {
		return pipeline.Stats{}, pferrors.ErrClosed
	}
	if cfg.Name == "" {
		cfg.Name = DefaultPipelineName
	}

	log := r.log.With().
		Str(logging.FieldRunID, uuid.NewString()).
		Str("pipeline", cfg.Name).
		Logger()

	onError := cfg.OnError
	cfg.OnError = func(stage string, err error) {
		log.Debug().Str(logging.FieldStage, stage).Err(err).Msg("stage error")
		if onError != nil {
			onError(stage, err)
		}
	}

	stats, err := pipeline.RunWithStats(ctx, r.eng, cfg, stages...)
	if err != nil {
		log.Warn().Err(err).Int("stages", len(stages)).Msg("pipeline failed")
		return stats, err
	}
	log.Debug().
		Int("stages", len(stages)).
		Int64(logging.FieldDuration, stats.Duration.Milliseconds()).
		Msg("pipeline finished")
	return stats, nil
}

func (r *runner) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.log.Debug().Msg("backend closed")
	return r.eng.Close()
}
