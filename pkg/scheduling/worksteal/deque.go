package worksteal

import (
	"sync"

	"github.com/vnykmshr/parflow/pkg/scheduling/parallel"
)

// deque holds the ranges owned by one worker. The owner pushes and pops at
// the bottom; thieves take from the top, where the largest ranges sit.
type deque struct {
	mu    sync.Mutex
	items []parallel.Range
}

func (d *deque) push(r parallel.Range) {
	d.mu.Lock()
	d.items = append(d.items, r)
	d.mu.Unlock()
}

func (d *deque) pop() (parallel.Range, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.items)
	if n == 0 {
		return parallel.Range{}, false
	}
	r := d.items[n-1]
	d.items = d.items[:n-1]
	return r, true
}

func (d *deque) steal() (parallel.Range, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.items) == 0 {
		return parallel.Range{}, false
	}
	r := d.items[0]
	d.items = d.items[1:]
	return r, true
}

func (d *deque) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *deque) reset() {
	d.mu.Lock()
	d.items = d.items[:0]
	d.mu.Unlock()
}
