package pipeline

import (
	"sync"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
)

type pendingUnit struct {
	unit Unit
	keep bool
}

// Sequencer restores input order after a stage with several workers.
// Every position handed out by the stage must be submitted exactly once,
// including filtered units, so that no gap stalls the release of later ones.
// At most window positions are held out of order; submitters further ahead
// wait.
type Sequencer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	out      Queue
	next     int
	window   int
	pending  map[int]pendingUnit
	poisoned bool
}

// NewSequencer creates a Sequencer releasing into out.
func NewSequencer(out Queue, window int) *Sequencer {
	if window < 1 {
		window = 1
	}
	s := &Sequencer{
		out:     out,
		window:  window,
		pending: make(map[int]pendingUnit, window),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Submit hands in the result for position pos. Units are pushed to the
// outbound queue in position order; keep == false only releases the slot.
func (s *Sequencer) Submit(pos int, u Unit, keep bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pos-s.next >= s.window && !s.poisoned {
		s.cond.Wait()
	}
	if s.poisoned {
		return pferrors.ErrPoisonedPipeline
	}

	s.pending[pos] = pendingUnit{unit: u, keep: keep}
	for {
		p, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		if p.keep {
			if err := s.out.Push(p.unit); err != nil {
				return err
			}
		}
		s.next++
	}

	s.cond.Broadcast()
	return nil
}

// Poison wakes every waiting submitter with ErrPoisonedPipeline.
// The outbound queue must be poisoned first so that a submitter blocked in
// Push releases the lock.
func (s *Sequencer) Poison() {
	s.mu.Lock()
	s.poisoned = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Pending returns the number of units held out of order.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
