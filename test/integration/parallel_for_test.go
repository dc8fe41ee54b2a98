package integration

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/parflow/internal/testutil"
	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/scheduling/backend"
	"github.com/vnykmshr/parflow/pkg/scheduling/parallel"
	"github.com/vnykmshr/parflow/pkg/scheduling/workerpool"
	"github.com/vnykmshr/parflow/pkg/scheduling/worksteal"
)

func TestParallelForExhaustiveVisitation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		for _, n := range []int{1, 7, 64, 1000, 12345} {
			for _, threads := range []int{1, 3, 4, 16} {
				t.Run(fmt.Sprintf("n=%d/threads=%d", n, threads), func(t *testing.T) {
					rec := testutil.NewVisitRecorder(n)
					testutil.RunWithin(t, testutil.TestTimeout, func() {
						require.NoError(t, b.ParallelForWorker(n, threads, rec.Visit))
					})
					rec.AssertExactlyOnce(t)
					for i := 0; i < n; i++ {
						w := rec.Worker(i)
						require.True(t, w >= 0 && w < threads, "worker id %d out of range", w)
					}
				})
			}
		}
	})
}

func TestParallelForZeroItemsStartsNothing(t *testing.T) {
	pool := workerpool.New()
	defer pool.Close()
	sched := worksteal.New()
	defer sched.Close()

	for _, ex := range []parallel.Executor{pool, sched} {
		err := parallel.For(ex, 0, 8, func(int) error {
			t.Error("body must not run")
			return nil
		})
		require.NoError(t, err)
	}

	assert.Zero(t, pool.Size(), "no native worker may be created")
	assert.Zero(t, sched.Stats().Runs, "no work-stealing run may start")
}

func TestParallelForNativeStaticPartition(t *testing.T) {
	b := backend.Native()
	defer b.Close()

	const n, threads = 10, 4
	rec := testutil.NewVisitRecorder(n)
	require.NoError(t, b.ParallelForWorker(n, threads, rec.Visit))

	want := []int{0, 0, 0, 1, 1, 1, 2, 2, 3, 3}
	for i, w := range want {
		assert.Equalf(t, w, rec.Worker(i), "index %d", i)
	}
}

func TestParallelForIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		run := func() []uint64 {
			out := make([]uint64, 2000)
			require.NoError(t, b.ParallelFor(len(out), 4, func(i int) error {
				out[i] = testutil.Spin(i % 50)
				return nil
			}))
			return out
		}
		assert.Equal(t, run(), run())
	})
}

func TestParallelForSameOutputAcrossBackends(t *testing.T) {
	outputs := make([][]int, 0, len(backendCases))
	for _, bc := range backendCases {
		b := bc.new()
		out := make([]int, 5000)
		require.NoError(t, b.ParallelFor(len(out), 6, func(i int) error {
			out[i] = i*i - 3*i
			return nil
		}))
		require.NoError(t, b.Close())
		outputs = append(outputs, out)
	}
	assert.Equal(t, outputs[0], outputs[1])
}

func TestParallelForFirstErrorWins(t *testing.T) {
	errBoom := errors.New("boom")

	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		var visited atomic.Int64
		err := b.ParallelFor(50000, 4, func(i int) error {
			visited.Add(1)
			if i == 100 {
				return errBoom
			}
			time.Sleep(time.Microsecond)
			return nil
		})

		require.ErrorIs(t, err, errBoom)
		assert.Less(t, visited.Load(), int64(50000), "workers stop taking indices after a failure")

		// The backend is still usable afterwards.
		rec := testutil.NewVisitRecorder(100)
		require.NoError(t, b.ParallelForWorker(100, 4, rec.Visit))
		rec.AssertExactlyOnce(t)
	})
}

func TestParallelForInFlightIndicesFinishBeforeError(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		errBoom := errors.New("boom")
		started := make(chan struct{})
		var finished atomic.Bool

		err := b.ParallelFor(2, 2, func(i int) error {
			if i == 1 {
				close(started)
				time.Sleep(50 * time.Millisecond)
				finished.Store(true)
				return nil
			}
			select {
			case <-started:
			case <-time.After(testutil.TestTimeout):
			}
			return errBoom
		})

		require.ErrorIs(t, err, errBoom)
		assert.True(t, finished.Load(), "the running index completes before the call returns")
	})
}

func TestParallelForPanicIsTyped(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		err := b.ParallelFor(100, 4, func(i int) error {
			if i == 77 {
				var m map[string]int
				m["x"] = 1
			}
			return nil
		})

		require.ErrorIs(t, err, pferrors.ErrWorkerPanic)
		var perr *pferrors.PanicError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, 77, perr.Index)
		assert.True(t, pferrors.IsPanic(err))
	})
}

func TestParallelForConfigurationErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		noop := func(int) error { return nil }

		assert.True(t, pferrors.IsConfiguration(b.ParallelFor(10, 0, noop)))
		assert.True(t, pferrors.IsConfiguration(b.ParallelFor(-1, 2, noop)))
		assert.True(t, pferrors.IsConfiguration(b.ParallelFor(10, 2, nil)))
	})
}

func TestParallelForMoreThreadsThanItems(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		rec := testutil.NewVisitRecorder(3)
		require.NoError(t, b.ParallelForWorker(3, 32, rec.Visit))
		rec.AssertExactlyOnce(t)
	})
}
