package worksteal

import (
	"sync"

	"golang.org/x/sync/errgroup"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/scheduling/pipeline"
)

// NewQueue implements pipeline.Transport with a buffered Go channel.
func (s *Scheduler) NewQueue(cfg pipeline.QueueConfig) pipeline.Queue {
	return newChanQueue(cfg)
}

// NewGroup implements pipeline.Transport. Stage workers are plain
// goroutines scheduled by the Go runtime.
func (s *Scheduler) NewGroup() pipeline.Group {
	return new(errgroup.Group)
}

// chanQueue is a bounded queue over a buffered channel. Close must only be
// called by the producing side once all of its pushes have returned, which
// is how the pipeline uses it.
type chanQueue struct {
	ch      chan pipeline.Unit
	abort   chan struct{}
	onBlock func()

	closeOnce  sync.Once
	poisonOnce sync.Once
}

func newChanQueue(cfg pipeline.QueueConfig) *chanQueue {
	return &chanQueue{
		ch:      make(chan pipeline.Unit, cfg.Capacity),
		abort:   make(chan struct{}),
		onBlock: cfg.OnBlock,
	}
}

func (q *chanQueue) Push(u pipeline.Unit) error {
	select {
	case <-q.abort:
		return pferrors.ErrPoisonedPipeline
	default:
	}

	select {
	case q.ch <- u:
		return nil
	default:
	}

	if q.onBlock != nil {
		q.onBlock()
	}
	select {
	case q.ch <- u:
		return nil
	case <-q.abort:
		return pferrors.ErrPoisonedPipeline
	}
}

func (q *chanQueue) Pop() (pipeline.Unit, bool, error) {
	select {
	case <-q.abort:
		return pipeline.Unit{}, false, pferrors.ErrPoisonedPipeline
	default:
	}

	select {
	case u, ok := <-q.ch:
		if !ok {
			return pipeline.Unit{}, false, nil
		}
		return u, true, nil
	case <-q.abort:
		return pipeline.Unit{}, false, pferrors.ErrPoisonedPipeline
	}
}

func (q *chanQueue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

func (q *chanQueue) Poison() {
	q.poisonOnce.Do(func() { close(q.abort) })
}

func (q *chanQueue) Len() int {
	return len(q.ch)
}

func (q *chanQueue) Cap() int {
	return cap(q.ch)
}
