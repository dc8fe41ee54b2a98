package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
)

// sliceQueue records pushed units; it never blocks.
type sliceQueue struct {
	mu       sync.Mutex
	units    []Unit
	poisoned bool
}

func (q *sliceQueue) Push(u Unit) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.poisoned {
		return pferrors.ErrPoisonedPipeline
	}
	q.units = append(q.units, u)
	return nil
}

func (q *sliceQueue) Pop() (Unit, bool, error) { return Unit{}, false, nil }
func (q *sliceQueue) Close()                   {}
func (q *sliceQueue) Len() int                 { return len(q.units) }
func (q *sliceQueue) Cap() int                 { return 0 }

func (q *sliceQueue) Poison() {
	q.mu.Lock()
	q.poisoned = true
	q.mu.Unlock()
}

func (q *sliceQueue) seqs() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, len(q.units))
	for i, u := range q.units {
		out[i] = u.Seq
	}
	return out
}

func TestSequencerReleasesInOrder(t *testing.T) {
	out := &sliceQueue{}
	s := NewSequencer(out, 8)

	for _, pos := range []int{2, 0, 3, 1} {
		require.NoError(t, s.Submit(pos, Unit{Seq: pos}, true))
	}

	assert.Equal(t, []int{0, 1, 2, 3}, out.seqs())
	assert.Zero(t, s.Pending())
}

func TestSequencerHoldsUntilGapFilled(t *testing.T) {
	out := &sliceQueue{}
	s := NewSequencer(out, 8)

	require.NoError(t, s.Submit(1, Unit{Seq: 1}, true))
	require.NoError(t, s.Submit(2, Unit{Seq: 2}, true))
	assert.Empty(t, out.seqs())
	assert.Equal(t, 2, s.Pending())

	require.NoError(t, s.Submit(0, Unit{Seq: 0}, true))
	assert.Equal(t, []int{0, 1, 2}, out.seqs())
}

func TestSequencerFilteredUnitsReleaseSlot(t *testing.T) {
	out := &sliceQueue{}
	s := NewSequencer(out, 4)

	require.NoError(t, s.Submit(1, Unit{Seq: 1}, true))
	require.NoError(t, s.Submit(0, Unit{Seq: 0}, false))

	assert.Equal(t, []int{1}, out.seqs())
	assert.Zero(t, s.Pending())
}

func TestSequencerWindowBlocksAndPoisonWakes(t *testing.T) {
	out := &sliceQueue{}
	s := NewSequencer(out, 2)

	errc := make(chan error, 1)
	go func() {
		// Position 5 is outside the window while position 0 is missing.
		errc <- s.Submit(5, Unit{Seq: 5}, true)
	}()

	select {
	case err := <-errc:
		t.Fatalf("submit returned early: %v", err)
	default:
	}

	out.Poison()
	s.Poison()

	err := <-errc
	assert.ErrorIs(t, err, pferrors.ErrPoisonedPipeline)
	assert.ErrorIs(t, s.Submit(0, Unit{}, true), pferrors.ErrPoisonedPipeline)
}

func TestSequencerConcurrentSubmitters(t *testing.T) {
	const n = 500
	out := &sliceQueue{}
	s := NewSequencer(out, 16)

	var wg sync.WaitGroup
	positions := make(chan int, n)
	for i := 0; i < n; i++ {
		positions <- i
	}
	close(positions)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range positions {
				assert.NoError(t, s.Submit(pos, Unit{Seq: pos}, pos%3 != 0))
			}
		}()
	}
	wg.Wait()

	var want []int
	for i := 0; i < n; i++ {
		if i%3 != 0 {
			want = append(want, i)
		}
	}
	assert.Equal(t, want, out.seqs())
}
