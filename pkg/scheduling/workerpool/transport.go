package workerpool

import (
	"runtime"
	"sync"

	"github.com/vnykmshr/parflow/pkg/scheduling/parallel"
	"github.com/vnykmshr/parflow/pkg/scheduling/pipeline"
	"github.com/vnykmshr/parflow/pkg/streaming/channel"
)

// NewQueue implements pipeline.Transport with a condition-variable ring buffer.
func (p *Pool) NewQueue(cfg pipeline.QueueConfig) pipeline.Queue {
	return channel.NewWithConfig[pipeline.Unit](channel.Config{
		BufferSize: cfg.Capacity,
		OnBlock:    cfg.OnBlock,
	})
}

// NewGroup implements pipeline.Transport. Every stage worker gets a
// dedicated goroutine, pinned to its own OS thread when LockOSThread is set.
// Stage workers do not take workers from the ParallelFor pool, so a
// pipeline never waits for pool capacity.
func (p *Pool) NewGroup() pipeline.Group {
	return &threadGroup{lock: p.config.LockOSThread}
}

type threadGroup struct {
	wg   sync.WaitGroup
	errs parallel.Collector
	lock bool
}

func (g *threadGroup) Go(fn func() error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if g.lock {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		g.errs.Record(fn())
	}()
}

func (g *threadGroup) Wait() error {
	g.wg.Wait()
	return g.errs.Err()
}
