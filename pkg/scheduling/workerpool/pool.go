package workerpool

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/common/logging"
	"github.com/vnykmshr/parflow/pkg/scheduling/parallel"
)

// Config holds configuration options for creating a worker pool.
type Config struct {
	// Threads is the number of workers started by Start or on first use.
	// Zero means runtime.NumCPU(). The pool grows when a call asks for more.
	Threads int

	// LockOSThread pins every worker, including pipeline stage workers, to
	// its own OS thread for the lifetime of the worker.
	LockOSThread bool

	// Logger receives lifecycle events. Defaults to a no-op logger.
	Logger *zerolog.Logger

	// OnWorkerStart is called on the worker's thread when a worker starts.
	// Useful for per-worker initialization.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called on the worker's thread when a worker stops.
	OnWorkerStop func(workerID int)
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		Threads:      runtime.NumCPU(),
		LockOSThread: true,
	}
}

// Pool is a fixed set of long-lived workers driven by a dispatch/barrier
// protocol. It implements parallel.Executor with static range assignment
// and pipeline.Transport with dedicated stage threads.
//
// Calls to Execute are serialized: a second caller waits until the first
// one has passed the completion barrier.
type Pool struct {
	config Config
	log    zerolog.Logger

	callMu sync.Mutex // serializes Execute and Close

	mu      sync.Mutex
	start   *sync.Cond // a new job generation was published
	done    *sync.Cond // pending reached zero
	workers []*worker
	gen     uint64
	job     *job
	pending int
	closed  bool

	workerWg sync.WaitGroup
}

type job struct {
	threads int
	ranges  []parallel.Range
	body    parallel.WorkerBody
	errs    *parallel.Collector
}

type worker struct {
	id   int
	pool *Pool
	seen uint64
	tid  int
}

// New creates a pool with the default configuration. Workers start lazily.
func New() *Pool {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a pool with the specified configuration.
func NewWithConfig(config Config) *Pool {
	if config.Threads <= 0 {
		config.Threads = runtime.NumCPU()
	}

	log := logging.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	p := &Pool{
		config: config,
		log:    logging.WithComponent(log, "workerpool"),
	}
	p.start = sync.NewCond(&p.mu)
	p.done = sync.NewCond(&p.mu)
	return p
}

// Start creates the configured number of workers if they do not exist yet.
func (p *Pool) Start() error {
	p.callMu.Lock()
	defer p.callMu.Unlock()
	return p.ensure(p.config.Threads)
}

// Execute implements parallel.Executor. Worker w runs range w of
// parallel.Partition(n, threads); the caller blocks until every
// participating worker has passed the completion barrier. Calls are
// serialized, so body must not call Execute on the same pool.
func (p *Pool) Execute(n, threads int, body parallel.WorkerBody) error {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	if err := p.ensure(threads); err != nil {
		return err
	}

	var errs parallel.Collector
	j := &job{
		threads: threads,
		ranges:  parallel.Partition(n, threads),
		body:    body,
		errs:    &errs,
	}

	p.mu.Lock()
	p.job = j
	p.pending = threads
	p.gen++
	p.start.Broadcast()
	for p.pending > 0 {
		p.done.Wait()
	}
	p.job = nil
	p.mu.Unlock()

	if dropped := errs.Dropped(); dropped > 0 {
		p.log.Debug().Int64("dropped", dropped).Err(errs.Err()).Msg("secondary worker errors discarded")
	}
	return errs.Err()
}

// Close stops every worker and waits for them to exit. It waits for a
// running Execute to finish first. Closing twice is a no-op.
func (p *Pool) Close() error {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.start.Broadcast()
	p.mu.Unlock()

	p.workerWg.Wait()
	p.log.Debug().Msg("worker pool closed")
	return nil
}

// Size returns the number of workers currently running.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// ThreadIDs returns the OS thread id of every worker, or -1 where the
// platform does not expose one.
func (p *Pool) ThreadIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]int, len(p.workers))
	for i, w := range p.workers {
		ids[i] = w.tid
	}
	return ids
}

// ensure grows the pool to at least size workers. Caller holds callMu.
func (p *Pool) ensure(size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return pferrors.ErrClosed
	}
	if len(p.workers) >= size {
		return nil
	}

	from := len(p.workers)
	for id := from; id < size; id++ {
		w := &worker{id: id, pool: p, seen: p.gen, tid: -1}
		p.workers = append(p.workers, w)
		p.workerWg.Add(1)
		go w.run()
	}

	p.log.Debug().Int("from", from).Int("to", size).Msg("worker pool grown")
	return nil
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	if p.config.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	tid := threadID()
	p.mu.Lock()
	w.tid = tid
	p.mu.Unlock()
	p.log.Debug().Int(logging.FieldWorker, w.id).Int("tid", tid).Msg("worker started")

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}
	if p.config.OnWorkerStop != nil {
		defer p.config.OnWorkerStop(w.id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		for p.gen == w.seen && !p.closed {
			p.start.Wait()
		}
		if p.closed {
			return
		}
		w.seen = p.gen

		j := p.job
		if j == nil || w.id >= j.threads {
			continue
		}

		p.mu.Unlock()
		j.errs.Record(j.ranges[w.id].Run(w.id, j.body, j.errs.Stopped))
		p.mu.Lock()

		p.pending--
		if p.pending == 0 {
			p.done.Broadcast()
		}
	}
}
