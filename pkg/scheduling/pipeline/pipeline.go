package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/common/validation"
	"github.com/vnykmshr/parflow/pkg/scheduling/parallel"
)

const module = "pipeline"

// Config holds pipeline configuration options.
type Config struct {
	// Name identifies the pipeline in logs and metrics.
	Name string

	// Capacity is the size of every inter-stage queue. Must be positive.
	Capacity int

	// Unordered disables re-sequencing after stages with several workers.
	// Single-worker stages stay FIFO either way.
	Unordered bool

	// OnStageComplete is called after every Process call that did not fail.
	// kept is false for filtered units and for generator exhaustion.
	OnStageComplete func(stage string, d time.Duration, kept bool)

	// OnError is called for every error observed, including the secondary
	// ones that are not returned.
	OnError func(stage string, err error)

	// OnBackpressure is called when a stage blocks on a full outbound queue.
	OnBackpressure func(queue string)

	// OnQueueDepth is called after every successful pop with the number of
	// units still buffered in that queue.
	OnQueueDepth func(queue string, depth int)
}

// Stats summarizes a finished run.
type Stats struct {
	Duration time.Duration
	Stages   []StageStats
}

// StageStats holds per-stage counters.
type StageStats struct {
	Name      string
	Workers   int
	Processed int64 // units emitted downstream
	Filtered  int64
	Failed    int64
	Busy      time.Duration // summed across workers
	Poisoned  bool          // a worker stopped because of a fault elsewhere
}

// Run executes stages on t and blocks until every worker has exited.
// It returns the first error raised by a stage, or nil once the generator
// is exhausted and the last stage drained its queue.
func Run(ctx context.Context, t Transport, cfg Config, stages ...Stage) error {
	_, err := RunWithStats(ctx, t, cfg, stages...)
	return err
}

// RunWithStats is like Run and also returns per-stage counters.
func RunWithStats(ctx context.Context, t Transport, cfg Config, stages ...Stage) (Stats, error) {
	if err := Validate(t, cfg, stages); err != nil {
		return Stats{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r := newRun(ctx, t, cfg, stages)
	return r.execute()
}

// Validate checks a pipeline definition without running it.
func Validate(t Transport, cfg Config, stages []Stage) error {
	if err := validation.ValidateNotNil(module, "transport", t); err != nil {
		return err
	}
	if err := validation.ValidatePositive(module, "capacity", cfg.Capacity); err != nil {
		return err
	}
	if len(stages) == 0 {
		return pferrors.NewValidationError(module, "stages", 0, "cannot be empty").
			WithHint("a pipeline needs at least a generator stage")
	}
	for i, s := range stages {
		if s == nil {
			return pferrors.NewValidationError(module, fmt.Sprintf("stages[%d]", i), nil, "cannot be nil")
		}
		if err := validation.ValidatePositive(module, s.Name()+".workers", workersOf(s)); err != nil {
			return err
		}
	}
	if w := workersOf(stages[0]); w != 1 {
		return pferrors.NewValidationError(module, stages[0].Name()+".workers", w, "generator must be single-threaded").
			WithHint("parallelize the stages after the generator")
	}
	return nil
}

type stageCounters struct {
	processed atomic.Int64
	filtered  atomic.Int64
	failed    atomic.Int64
	busy      atomic.Int64
	poisoned  atomic.Bool
}

type stageRunner struct {
	index   int
	stage   Stage
	workers int
	in      Queue
	out     Queue // nil for the last stage
	seq     *Sequencer

	onDepth func(depth int)

	popMu   sync.Mutex
	nextPos int
	live    atomic.Int32
}

type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	t       Transport
	cfg     Config
	runners []*stageRunner
	queues  []Queue
	seqs    []*Sequencer
	counts  []stageCounters
	errs    parallel.Collector
	abort   sync.Once
}

func newRun(ctx context.Context, t Transport, cfg Config, stages []Stage) *run {
	r := &run{
		t:       t,
		cfg:     cfg,
		runners: make([]*stageRunner, len(stages)),
		queues:  make([]Queue, len(stages)-1),
		counts:  make([]stageCounters, len(stages)),
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	for i := range r.queues {
		name := stages[i].Name()
		qc := QueueConfig{Name: name, Capacity: cfg.Capacity}
		if cfg.OnBackpressure != nil {
			qc.OnBlock = func() { cfg.OnBackpressure(name) }
		}
		r.queues[i] = t.NewQueue(qc)
	}

	for i, s := range stages {
		sr := &stageRunner{index: i, stage: s, workers: workersOf(s)}
		if i > 0 {
			sr.in = r.queues[i-1]
			if cfg.OnQueueDepth != nil {
				name := stages[i-1].Name()
				sr.onDepth = func(d int) { cfg.OnQueueDepth(name, d) }
			}
		}
		if i < len(r.queues) {
			sr.out = r.queues[i]
		}
		if sr.workers > 1 && sr.out != nil && !cfg.Unordered {
			sr.seq = NewSequencer(sr.out, cfg.Capacity+sr.workers)
			r.seqs = append(r.seqs, sr.seq)
		}
		sr.live.Store(int32(sr.workers))
		r.runners[i] = sr
	}
	return r
}

func (r *run) execute() (Stats, error) {
	start := time.Now()
	g := r.t.NewGroup()

	g.Go(func() error {
		r.generate(r.runners[0])
		return nil
	})
	for _, sr := range r.runners[1:] {
		for w := 0; w < sr.workers; w++ {
			sr, w := sr, w
			g.Go(func() error {
				r.work(sr, w)
				return nil
			})
		}
	}

	// Workers report through r.fail; an error here comes from the transport.
	if err := g.Wait(); err != nil {
		r.errs.Record(err)
	}
	r.cancel()

	return r.stats(time.Since(start)), r.errs.Err()
}

func (r *run) generate(sr *stageRunner) {
	defer sr.exit()

	for seq := 0; ; seq++ {
		if r.errs.Stopped() {
			return
		}
		item, ok, err := r.call(sr, 0, seq, nil)
		if err != nil {
			r.fail(sr, err)
			return
		}
		if !ok {
			return
		}
		r.counts[sr.index].processed.Add(1)
		if sr.out == nil {
			continue
		}
		if err := sr.out.Push(Unit{Seq: seq, Item: item}); err != nil {
			r.poisoned(sr, err)
			return
		}
	}
}

func (r *run) work(sr *stageRunner, worker int) {
	defer sr.exit()

	for {
		if r.errs.Stopped() {
			r.counts[sr.index].poisoned.Store(true)
			return
		}
		u, pos, ok, err := sr.next()
		if err != nil {
			r.poisoned(sr, err)
			return
		}
		if !ok {
			return
		}

		out, keep, err := r.call(sr, worker, u.Seq, u.Item)
		if err != nil {
			r.fail(sr, err)
			return
		}
		if keep {
			r.counts[sr.index].processed.Add(1)
		} else {
			r.counts[sr.index].filtered.Add(1)
		}

		if err := sr.emit(pos, Unit{Seq: u.Seq, Item: out}, keep); err != nil {
			r.poisoned(sr, err)
			return
		}
	}
}

// call runs one Process invocation, converting panics and wrapping errors.
func (r *run) call(sr *stageRunner, worker, seq int, item any) (out any, ok bool, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = &pferrors.PanicError{
				Kind:      pferrors.StagePanic,
				Stage:     sr.stage.Name(),
				Index:     seq,
				Worker:    worker,
				Recovered: rec,
				Stack:     debug.Stack(),
			}
		}
		d := time.Since(start)
		r.counts[sr.index].busy.Add(int64(d))
		if err == nil && r.cfg.OnStageComplete != nil {
			r.cfg.OnStageComplete(sr.stage.Name(), d, ok)
		}
	}()

	out, ok, err = sr.stage.Process(r.ctx, item)
	if err != nil {
		err = &pferrors.StageError{Stage: sr.stage.Name(), Seq: seq, Err: err}
	}
	return out, ok, err
}

// fail records a stage fault and aborts the run if it is the first one.
func (r *run) fail(sr *stageRunner, err error) {
	r.counts[sr.index].failed.Add(1)
	if r.cfg.OnError != nil {
		r.cfg.OnError(sr.stage.Name(), err)
	}
	if r.errs.Record(err) {
		r.abortAll()
	}
}

// poisoned handles a queue that was aborted under a worker. The error is
// only kept if nothing else was recorded first.
func (r *run) poisoned(sr *stageRunner, err error) {
	r.counts[sr.index].poisoned.Store(true)
	err = fmt.Errorf("stage %q: %w", sr.stage.Name(), err)
	if r.cfg.OnError != nil {
		r.cfg.OnError(sr.stage.Name(), err)
	}
	if r.errs.Record(err) {
		r.abortAll()
	}
}

func (r *run) abortAll() {
	r.abort.Do(func() {
		r.cancel()
		for _, q := range r.queues {
			q.Poison()
		}
		for _, s := range r.seqs {
			s.Poison()
		}
	})
}

func (r *run) stats(d time.Duration) Stats {
	st := Stats{Duration: d, Stages: make([]StageStats, len(r.runners))}
	for i, sr := range r.runners {
		c := &r.counts[i]
		st.Stages[i] = StageStats{
			Name:      sr.stage.Name(),
			Workers:   sr.workers,
			Processed: c.processed.Load(),
			Filtered:  c.filtered.Load(),
			Failed:    c.failed.Load(),
			Busy:      time.Duration(c.busy.Load()),
			Poisoned:  c.poisoned.Load(),
		}
	}
	return st
}

// next pops the next unit. When the stage re-sequences, the pop and the
// position assignment happen under one lock so positions follow queue order.
func (sr *stageRunner) next() (Unit, int, bool, error) {
	if sr.seq == nil {
		u, ok, err := sr.in.Pop()
		if ok {
			sr.depth()
		}
		return u, 0, ok, err
	}

	sr.popMu.Lock()
	defer sr.popMu.Unlock()

	u, ok, err := sr.in.Pop()
	if err != nil || !ok {
		return u, 0, ok, err
	}
	sr.depth()
	pos := sr.nextPos
	sr.nextPos++
	return u, pos, true, nil
}

func (sr *stageRunner) depth() {
	if sr.onDepth != nil {
		sr.onDepth(sr.in.Len())
	}
}

func (sr *stageRunner) emit(pos int, u Unit, keep bool) error {
	if sr.out == nil {
		return nil
	}
	if sr.seq != nil {
		return sr.seq.Submit(pos, u, keep)
	}
	if !keep {
		return nil
	}
	return sr.out.Push(u)
}

// exit closes the outbound queue once the last worker of the stage leaves.
func (sr *stageRunner) exit() {
	if sr.live.Add(-1) == 0 && sr.out != nil {
		sr.out.Close()
	}
}
