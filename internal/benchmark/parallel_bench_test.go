package benchmark

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/vnykmshr/parflow/internal/testutil"
	"github.com/vnykmshr/parflow/pkg/scheduling/backend"
)

// BenchmarkParallelFor measures loops with a fixed amount of work per index.
func BenchmarkParallelFor(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	threads := []int{1, 2, 4, 8}

	eachBackend(b, func(b *testing.B, be backend.Backend) {
		for _, n := range sizes {
			for _, t := range threads {
				b.Run(fmt.Sprintf("items=%d/%s", n, threadLabel(t)), func(b *testing.B) {
					var sink atomic.Uint64
					b.ReportAllocs()
					b.ResetTimer()
					for i := 0; i < b.N; i++ {
						_ = be.ParallelFor(n, t, func(j int) error {
							sink.Add(testutil.Spin(1000))
							return nil
						})
					}
					b.ReportMetric(float64(n*b.N)/b.Elapsed().Seconds(), "items/s")
				})
			}
		}
	})
}

// BenchmarkParallelForUneven puts most of the cost in the first eighth of
// the index space, where static partitioning leaves threads idle.
func BenchmarkParallelForUneven(b *testing.B) {
	const n = 4096

	eachBackend(b, func(b *testing.B, be backend.Backend) {
		for _, t := range []int{2, 4, 8} {
			b.Run(threadLabel(t), func(b *testing.B) {
				var sink atomic.Uint64
				for i := 0; i < b.N; i++ {
					_ = be.ParallelFor(n, t, func(j int) error {
						cost := 50
						if j < n/8 {
							cost = 5000
						}
						sink.Add(testutil.Spin(cost))
						return nil
					})
				}
			})
		}
	})
}

// BenchmarkThreadingOverhead uses minimal work per index so the numbers
// are dominated by dispatch and join costs.
func BenchmarkThreadingOverhead(b *testing.B) {
	const n = 10000

	eachBackend(b, func(b *testing.B, be backend.Backend) {
		for _, t := range []int{1, 2, 4, 8, 16} {
			b.Run(threadLabel(t), func(b *testing.B) {
				var sink atomic.Uint64
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					_ = be.ParallelFor(n, t, func(j int) error {
						sink.Add(uint64(j))
						return nil
					})
				}
			})
		}
	})
}
