package parallel

// Range is the half-open index interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in r.
func (r Range) Len() int {
	return r.End - r.Start
}

// Run calls body for each index of r in ascending order on the given worker.
// It checks stop before every index and returns the first error from body.
func (r Range) Run(worker int, body WorkerBody, stop func() bool) error {
	for i := r.Start; i < r.End; i++ {
		if stop() {
			return nil
		}
		if err := body(worker, i); err != nil {
			return err
		}
	}
	return nil
}

// Partition splits [0, n) into threads contiguous ranges. Range sizes differ
// by at most one; the first n%threads ranges hold the extra index. When
// n < threads the trailing ranges are empty.
func Partition(n, threads int) []Range {
	if threads <= 0 || n < 0 {
		return nil
	}

	ranges := make([]Range, threads)
	base, extra := n/threads, n%threads
	start := 0
	for t := 0; t < threads; t++ {
		size := base
		if t < extra {
			size++
		}
		ranges[t] = Range{Start: start, End: start + size}
		start += size
	}
	return ranges
}
