package task

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Execute runs every task submitted to g, respecting the dependency
// edges Submit wired in: ready tasks (indegree zero) of one wave run
// concurrently, bounded by workerCount (0 means GOMAXPROCS), before
// the next wave is computed — the same stage-by-stage shape as a
// classic topological sort over a job DAG. MainThread-pinned tasks in
// a wave run synchronously on the calling goroutine before the wave's
// Default tasks are handed to the pool, so they observe a consistent
// view before any sibling runs.
//
// A panic inside a callback is recovered and turned into the fatal
// error this call returns, per §4.2's "executing a task with an
// unhandled panic is a fatal error" — siblings already in flight are
// allowed to finish, but no further wave is started.
func (g *Graph) Execute(ctx context.Context, workerCount int) error {
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}

	for _, n := range g.nodes {
		n.indegree = len(n.parents)
	}

	ready := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n.indegree == 0 {
			ready = append(ready, n)
		}
	}

	processed := 0
	for len(ready) > 0 {
		wave := ready
		ready = nil

		var mainThread, def []*node
		for _, n := range wave {
			if n.pinning == MainThread {
				mainThread = append(mainThread, n)
			} else {
				def = append(def, n)
			}
		}

		for _, n := range mainThread {
			if err := g.runNode(n); err != nil {
				return err
			}
		}

		if len(def) > 0 {
			eg, egCtx := errgroup.WithContext(ctx)
			eg.SetLimit(workerCount)
			for _, n := range def {
				n := n
				eg.Go(func() error {
					select {
					case <-egCtx.Done():
						return egCtx.Err()
					default:
					}
					return g.runNode(n)
				})
			}
			if err := eg.Wait(); err != nil {
				return err
			}
		}

		processed += len(wave)
		for _, n := range wave {
			for _, c := range n.children {
				c.indegree--
				if c.indegree == 0 {
					ready = append(ready, c)
				}
			}
		}
	}

	if processed != len(g.nodes) {
		return fmt.Errorf("task graph has a cycle: %d of %d tasks were never ready", len(g.nodes)-processed, len(g.nodes))
	}
	return nil
}

// runNode invokes n's callback (once, or once per batch), timing the
// whole invocation on g.Clock and reporting the wall-clock duration in
// seconds to g.Duration if one is set — this covers every batch of a
// parallel-for task, not each batch individually, since the metric
// exists to answer "how expensive was this task this frame."
func (g *Graph) runNode(n *node) error {
	if n.callback == nil {
		return nil
	}

	start := g.Clock.Now()
	defer g.reportDuration(start)

	if n.config == nil {
		return safeCall(n, Args{Begin: 0, End: 1})
	}

	cfg := *n.config
	if cfg.WorkItemCount <= 0 {
		return nil // zero work items: task is skipped entirely
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.WorkItemCount
	}

	batches := (cfg.WorkItemCount + cfg.BatchSize - 1) / cfg.BatchSize
	if batches <= 1 {
		return safeCall(n, Args{Begin: 0, End: cfg.WorkItemCount})
	}

	sem := semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))
	eg := new(errgroup.Group)
	for b := 0; b < batches; b++ {
		begin := b * cfg.BatchSize
		end := begin + cfg.BatchSize
		if end > cfg.WorkItemCount {
			end = cfg.WorkItemCount
		}
		threadIndex := b
		if err := sem.Acquire(context.Background(), 1); err != nil {
			return err
		}
		eg.Go(func() error {
			defer sem.Release(1)
			return safeCall(n, Args{Begin: begin, End: end, ThreadIndex: threadIndex})
		})
	}
	return eg.Wait()
}

func (g *Graph) reportDuration(start time.Time) {
	if g.Duration == nil {
		return
	}
	g.Duration.Observe(g.Clock.Now().Sub(start).Seconds())
}

func safeCall(n *node, args Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked on batch [%d,%d): %v", n.name, args.Begin, args.End, r)
		}
	}()
	n.callback(args)
	return nil
}
