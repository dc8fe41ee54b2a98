package worksteal

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/common/logging"
	"github.com/vnykmshr/parflow/pkg/scheduling/parallel"
)

// Idle workers yield spinsBeforeSleep times, then sleep between steal
// attempts with a delay doubling from minIdleSleep up to maxIdleSleep.
const (
	spinsBeforeSleep = 64
	minIdleSleep     = 50 * time.Microsecond
	maxIdleSleep     = time.Millisecond
)

// Config holds scheduler configuration.
type Config struct {
	// Workers is the number of deques allocated up front. Zero means
	// runtime.NumCPU(). More are added when a call asks for more threads.
	Workers int

	// Grain is the largest range a worker runs without splitting it.
	// Zero picks max(1, n/(threads*8)) per call.
	Grain int

	// Logger receives scheduler events. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Stats holds cumulative scheduler counters.
type Stats struct {
	Runs   int64
	Splits int64
	Steals int64
	Sleeps int64 // idle sleeps between failed steal attempts
}

// Scheduler is a work-stealing parallel.Executor. Each call seeds one
// range per worker, workers split their ranges down to the grain and idle
// workers steal from a random victim. Index assignment to workers is
// therefore dynamic; only exhaustive coverage is guaranteed.
//
// Calls on one Scheduler are serialized.
type Scheduler struct {
	config Config
	log    zerolog.Logger

	mu     sync.Mutex
	deques []*deque
	closed bool

	runs   atomic.Int64
	splits atomic.Int64
	steals atomic.Int64
	sleeps atomic.Int64
}

// New creates a scheduler with default configuration.
func New() *Scheduler {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a scheduler with the specified configuration.
func NewWithConfig(config Config) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.Grain < 0 {
		config.Grain = 0
	}

	log := logging.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	s := &Scheduler{
		config: config,
		log:    logging.WithComponent(log, "worksteal"),
	}
	s.grow(config.Workers)
	return s
}

// Execute implements parallel.Executor. Calls are serialized, so body must
// not call Execute on the same scheduler.
func (s *Scheduler) Execute(n, threads int, body parallel.WorkerBody) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pferrors.ErrClosed
	}
	s.grow(threads)
	s.runs.Add(1)

	grain := s.grainFor(n, threads)
	deques := s.deques[:threads]
	defer func() {
		for _, d := range deques {
			d.reset()
		}
	}()

	outstanding := newTracker()
	for w, r := range parallel.Partition(n, threads) {
		if r.Len() > 0 {
			deques[w].push(r)
			outstanding.add(1)
		}
	}

	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < threads; w++ {
		w := w
		g.Go(func() error {
			return s.work(ctx, w, deques, grain, outstanding, body)
		})
	}
	return g.Wait()
}

// Close releases the scheduler. Later calls return errors.ErrClosed.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stats returns cumulative counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Runs:   s.runs.Load(),
		Splits: s.splits.Load(),
		Steals: s.steals.Load(),
		Sleeps: s.sleeps.Load(),
	}
}

// Grain returns the configured grain; zero means automatic.
func (s *Scheduler) Grain() int {
	return s.config.Grain
}

func (s *Scheduler) work(ctx context.Context, w int, deques []*deque, grain int, outstanding *tracker, body parallel.WorkerBody) error {
	own := deques[w]
	rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
	stopped := func() bool { return ctx.Err() != nil }
	var idle backoff
	defer idle.stop()

	for {
		r, ok := own.pop()
		if !ok {
			r, ok = s.steal(deques, w, rng)
		}
		if !ok {
			if outstanding.load() == 0 {
				return nil
			}
			if idle.wait(outstanding.drained) {
				s.sleeps.Add(1)
			}
			continue
		}
		idle.reset()

		if stopped() {
			outstanding.add(-1)
			continue
		}

		for r.Len() > grain {
			mid := r.Start + r.Len()/2
			outstanding.add(1)
			own.push(parallel.Range{Start: mid, End: r.End})
			s.splits.Add(1)
			r.End = mid
		}

		err := r.Run(w, body, stopped)
		outstanding.add(-1)
		if err != nil {
			return err
		}
	}
}

// tracker counts ranges that are queued or running. The count only reaches
// zero once per call, when drained is closed.
type tracker struct {
	n       atomic.Int64
	drained chan struct{}
}

func newTracker() *tracker {
	return &tracker{drained: make(chan struct{})}
}

func (t *tracker) add(d int64) {
	if t.n.Add(d) == 0 {
		close(t.drained)
	}
}

func (t *tracker) load() int64 {
	return t.n.Load()
}

// backoff paces an idle worker while another one is still running a range.
type backoff struct {
	spins int
	delay time.Duration
	timer *time.Timer
}

// wait yields or sleeps once and reports whether it slept. A sleep ends
// early when drained is closed.
func (b *backoff) wait(drained <-chan struct{}) bool {
	b.spins++
	if b.spins <= spinsBeforeSleep {
		runtime.Gosched()
		return false
	}

	b.delay = min(max(2*b.delay, minIdleSleep), maxIdleSleep)
	if b.timer == nil {
		b.timer = time.NewTimer(b.delay)
	} else {
		b.timer.Reset(b.delay)
	}
	select {
	case <-drained:
		b.timer.Stop()
	case <-b.timer.C:
	}
	return true
}

func (b *backoff) reset() {
	b.spins = 0
	b.delay = 0
}

func (b *backoff) stop() {
	if b.timer != nil {
		b.timer.Stop()
	}
}

// steal scans the other deques starting at a random victim.
func (s *Scheduler) steal(deques []*deque, self int, rng *rand.Rand) (parallel.Range, bool) {
	n := len(deques)
	if n < 2 {
		return parallel.Range{}, false
	}
	start := rng.IntN(n)
	for i := 0; i < n; i++ {
		v := (start + i) % n
		if v == self {
			continue
		}
		if r, ok := deques[v].steal(); ok {
			s.steals.Add(1)
			return r, true
		}
	}
	return parallel.Range{}, false
}

func (s *Scheduler) grainFor(n, threads int) int {
	if s.config.Grain > 0 {
		return s.config.Grain
	}
	return max(1, n/(threads*8))
}

// grow makes sure at least size deques exist. Caller holds s.mu or owns s.
func (s *Scheduler) grow(size int) {
	if len(s.deques) >= size {
		return
	}
	from := len(s.deques)
	for len(s.deques) < size {
		s.deques = append(s.deques, &deque{})
	}
	s.log.Debug().Int("from", from).Int("to", size).Msg("deques grown")
}
