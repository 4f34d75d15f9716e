// Package threadpool runs fire-and-forget jobs on goroutines. Two strategies
// are provided: Naive starts a goroutine per job, SharedQueue feeds a fixed
// set of workers from one unbounded queue.
package threadpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Names of the available pools, as accepted by the server configuration.
const (
	KindNaive  = "naive"
	KindShared = "shared"
)

// Pool executes jobs asynchronously. Spawn never blocks and never refuses a
// job while the pool is open.
type Pool interface {
	Spawn(job func())
	Stats() Stats

	// Shutdown stops intake, lets queued jobs finish and waits for them or
	// for ctx to be done.
	Shutdown(ctx context.Context) error
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Workers   int    // Long-lived workers, 0 for Naive.
	Queued    int    // Jobs waiting for a worker.
	Running   int64  // Jobs currently executing.
	Completed uint64 // Jobs that returned normally.
	Panics    uint64 // Jobs that panicked and were recovered.
	Aborted   uint64 // Jobs that ended their goroutine with runtime.Goexit.
	Dropped   uint64 // Jobs refused after Shutdown.
}

type counters struct {
	running   atomic.Int64
	completed atomic.Uint64
	panics    atomic.Uint64
	aborted   atomic.Uint64
	dropped   atomic.Uint64
}

// run executes job and recovers a panic so the calling goroutine survives.
// A job calling runtime.Goexit cannot be recovered: it is counted, and run
// never returns to its caller.
func (c *counters) run(log *zap.SugaredLogger, job func()) {
	c.running.Add(1)
	defer c.running.Add(-1)

	returned := false
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			log.Errorw(
				"Job panicked",
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
				"panics", c.panics.Load(),
			)
			return
		}
		if !returned {
			c.aborted.Add(1)
			log.Errorw("Job exited its goroutine", "aborted", c.aborted.Load())
		}
	}()

	job()
	returned = true
	c.completed.Add(1)
}

// wait blocks until wg is done or ctx ends.
func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *counters) drop(log *zap.SugaredLogger) {
	c.dropped.Add(1)
	log.Warnw("Pool is shut down, job dropped", "dropped", c.dropped.Load())
}

func (c *counters) stats() Stats {
	return Stats{
		Running:   c.running.Load(),
		Completed: c.completed.Load(),
		Panics:    c.panics.Load(),
		Aborted:   c.aborted.Load(),
		Dropped:   c.dropped.Load(),
	}
}
