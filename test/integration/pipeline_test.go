package integration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/parflow/internal/testutil"
	pferrors "github.com/vnykmshr/parflow/pkg/common/errors"
	"github.com/vnykmshr/parflow/pkg/scheduling/backend"
	"github.com/vnykmshr/parflow/pkg/scheduling/pipeline"
)

func double(_ context.Context, v int) (int, error) {
	return v * 2, nil
}

func TestPipelineOrderedDoubling(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		sink := testutil.NewRecorder[int]("collect")
		ctx, cancel := testutil.WithTimeout(t)
		defer cancel()

		testutil.RunWithin(t, testutil.TestTimeout, func() {
			err := b.Pipeline(ctx, 4,
				pipeline.FromSlice("generate", testutil.Ints(1000)),
				pipeline.Transform("double", double),
				sink,
			)
			require.NoError(t, err)
		})

		got := sink.Items()
		require.Len(t, got, 1000)
		for i, v := range got {
			require.Equal(t, 2*i, v)
		}
	})
}

func TestPipelineCapacityOneBackpressure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		var maxDepth atomic.Int64
		blocked := testutil.NewCallbackTracker()
		cfg := pipeline.Config{
			Name:     "backpressure",
			Capacity: 1,
			OnQueueDepth: func(_ string, depth int) {
				for {
					cur := maxDepth.Load()
					if int64(depth) <= cur || maxDepth.CompareAndSwap(cur, int64(depth)) {
						break
					}
				}
			},
			OnBackpressure: func(queue string) { blocked.Mark(queue) },
		}

		var produced atomic.Int64
		var consumed atomic.Int64
		var ahead atomic.Int64
		_, err := b.PipelineWithConfig(context.Background(), cfg,
			pipeline.Source("generate", func(context.Context) (int, bool, error) {
				n := produced.Add(1)
				if d := n - consumed.Load(); d > ahead.Load() {
					ahead.Store(d)
				}
				return int(n), n <= 50, nil
			}),
			pipeline.Sink("slow", func(context.Context, int) error {
				time.Sleep(200 * time.Microsecond)
				consumed.Add(1)
				return nil
			}),
		)

		require.NoError(t, err)
		assert.LessOrEqual(t, maxDepth.Load(), int64(1), "queue never holds more than its capacity")
		assert.True(t, blocked.Called(), "the producer has to wait for the consumer")
		assert.Equal(t, "generate", blocked.Value())
		// One unit in the queue, one in the consumer, one being produced.
		assert.LessOrEqual(t, ahead.Load(), int64(3))
		assert.EqualValues(t, 50, consumed.Load())
	})
}

func TestPipelineFaultAtItem500(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		sink := testutil.NewRecorder[int]("collect")
		faults := testutil.NewCallbackTracker()
		cfg := pipeline.Config{
			Capacity: 8,
			OnError: func(stage string, err error) {
				if stage == "check" {
					faults.Mark(err)
				}
			},
		}

		var err error
		testutil.RunWithin(t, testutil.TestTimeout, func() {
			_, err = b.PipelineWithConfig(context.Background(), cfg,
				pipeline.FromSlice("generate", testutil.Ints(1000)),
				testutil.FailAt("check", 500),
				sink,
			)
		})

		assert.Equal(t, 1, faults.CallCount())
		reported, ok := faults.Value().(error)
		require.True(t, ok)
		assert.ErrorIs(t, reported, testutil.ErrInjected)

		require.ErrorIs(t, err, testutil.ErrInjected)
		var serr *pferrors.StageError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "check", serr.Stage)
		assert.Equal(t, 500, serr.Seq)

		for _, v := range sink.Items() {
			require.Less(t, v, 500, "nothing at or after the fault reaches the sink")
		}
	})
}

func TestPipelineFaultInParallelStage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		sink := testutil.NewRecorder[int]("collect")

		err := b.Pipeline(context.Background(), 2,
			pipeline.FromSlice("generate", testutil.Ints(1000)),
			pipeline.WithWorkers(testutil.FailAt("check", 500), 4),
			sink,
		)

		require.ErrorIs(t, err, testutil.ErrInjected)
		for i, v := range sink.Items() {
			require.Equal(t, i, v, "re-sequenced output stays contiguous up to the fault")
			require.Less(t, v, 500)
		}
	})
}

func TestPipelineParallelStageResequenced(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		sink := testutil.NewRecorder[int]("collect")
		jitter := pipeline.NewParallelStageFunc("jitter", 4, func(_ context.Context, item any) (any, bool, error) {
			v := item.(int)
			testutil.Spin((v * 7919) % 20000)
			return v * 2, true, nil
		})

		err := b.Pipeline(context.Background(), 3,
			pipeline.FromSlice("generate", testutil.Ints(1000)),
			jitter,
			pipeline.Transform("inc", func(_ context.Context, v int) (int, error) { return v + 1, nil }),
			sink,
		)

		require.NoError(t, err)
		got := sink.Items()
		require.Len(t, got, 1000)
		for i, v := range got {
			require.Equal(t, 2*i+1, v)
		}
	})
}

func TestPipelineUnorderedCoversEveryUnit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		rec := testutil.NewVisitRecorder(1000)
		_, err := b.PipelineWithConfig(context.Background(), pipeline.Config{Capacity: 4, Unordered: true},
			pipeline.FromSlice("generate", testutil.Ints(1000)),
			pipeline.WithWorkers(pipeline.Transform("double", double), 4),
			pipeline.WithWorkers(pipeline.Sink("mark", func(_ context.Context, v int) error {
				return rec.Body(v / 2)
			}), 3),
		)

		require.NoError(t, err)
		rec.AssertExactlyOnce(t)
	})
}

func TestPipelineStagePanicIsTyped(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		err := b.Pipeline(context.Background(), 2,
			pipeline.FromSlice("generate", testutil.Ints(100)),
			pipeline.Transform("explode", func(_ context.Context, v int) (int, error) {
				if v == 42 {
					panic(errors.New("corrupt record"))
				}
				return v, nil
			}),
			pipeline.Sink("drop", func(context.Context, int) error { return nil }),
		)

		require.ErrorIs(t, err, pferrors.ErrStagePanic)
		var perr *pferrors.PanicError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "explode", perr.Stage)
		assert.Equal(t, 42, perr.Index)
		assert.EqualError(t, errors.Unwrap(perr), "corrupt record")
	})
}

func TestPipelineStagesSeeCancellation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		parent, stop := testutil.WithTimeout(t)
		defer stop()
		ctx, cancel := context.WithCancel(parent)
		defer cancel()

		err := b.Pipeline(ctx, 2,
			pipeline.Source("generate", func(ctx context.Context) (int, bool, error) {
				if err := ctx.Err(); err != nil {
					return 0, false, err
				}
				return 1, true, nil
			}),
			pipeline.Sink("cancel", func(context.Context, int) error {
				cancel()
				return nil
			}),
		)

		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestPipelineNestedParallelFor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		var mu sync.Mutex
		sums := map[int]int{}

		err := b.Pipeline(context.Background(), 2,
			pipeline.FromSlice("generate", []int{10, 100, 1000}),
			pipeline.Transform("sum", func(_ context.Context, n int) ([2]int, error) {
				var total atomic.Int64
				err := b.ParallelFor(n, 4, func(i int) error {
					total.Add(int64(i))
					return nil
				})
				return [2]int{n, int(total.Load())}, err
			}),
			pipeline.Sink("collect", func(_ context.Context, r [2]int) error {
				mu.Lock()
				sums[r[0]] = r[1]
				mu.Unlock()
				return nil
			}),
		)

		require.NoError(t, err)
		assert.Equal(t, map[int]int{10: 45, 100: 4950, 1000: 499500}, sums)
	})
}

func TestPipelineConfigurationErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend.Backend) {
		gen := pipeline.FromSlice("generate", testutil.Ints(3))

		assert.True(t, pferrors.IsConfiguration(b.Pipeline(context.Background(), 0, gen)))
		assert.True(t, pferrors.IsConfiguration(b.Pipeline(context.Background(), 1)))
		assert.True(t, pferrors.IsConfiguration(b.Pipeline(context.Background(), 1, pipeline.WithWorkers(gen, 3))))
	})
}
