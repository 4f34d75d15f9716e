package threadpool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/iamBelugaa/kvs/pkg/errors"
)

// SharedQueue runs jobs on a fixed number of workers fed by one unbounded
// queue. A panicking job is recovered inside its worker and a worker ended
// by runtime.Goexit is replaced, so the worker count never drops.
type SharedQueue struct {
	workers  int
	log      *zap.SugaredLogger
	wg       sync.WaitGroup
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func()
	head     int
	shutdown bool
	counters
}

// NewSharedQueue starts n workers.
func NewSharedQueue(n int, log *zap.SugaredLogger) (*SharedQueue, error) {
	if n <= 0 {
		return nil, errors.NewValidationError(
			nil, errors.ErrValidationOutOfRange, fmt.Sprintf("workers must be positive, got %d", n),
		).
			WithField("workers").
			WithProvided(n)
	}

	p := &SharedQueue{workers: n, log: log}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for id := range n {
		go p.worker(id)
	}

	log.Infow("Shared queue pool started", "workers", n)
	return p, nil
}

// Spawn queues job. It never blocks.
func (p *SharedQueue) Spawn(job func()) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		p.drop(p.log)
		return
	}

	p.queue = append(p.queue, job)
	p.mu.Unlock()
	p.cond.Signal()
}

// worker is the supervisor loop of one worker. It exits only once the pool
// is shut down and the queue is empty. If a job takes the goroutine down
// with runtime.Goexit, a replacement worker inherits its wait group slot.
func (p *SharedQueue) worker(id int) {
	log := p.log.With("worker", id)

	drained := false
	defer func() {
		if drained {
			p.wg.Done()
			return
		}
		log.Warnw("Worker goroutine exited by its job, starting a replacement")
		go p.worker(id)
	}()

	for {
		job, ok := p.next()
		if !ok {
			drained = true
			log.Debugw("Worker exiting")
			return
		}
		p.run(log, job)
	}
}

func (p *SharedQueue) next() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.head == len(p.queue) && !p.shutdown {
		p.cond.Wait()
	}
	if p.head == len(p.queue) {
		return nil, false
	}

	job := p.queue[p.head]
	p.queue[p.head] = nil
	p.head++

	// Reclaim the consumed prefix once the queue drains.
	if p.head == len(p.queue) {
		p.queue = p.queue[:0]
		p.head = 0
	}
	return job, true
}

func (p *SharedQueue) Stats() Stats {
	s := p.stats()
	s.Workers = p.workers

	p.mu.Lock()
	s.Queued = len(p.queue) - p.head
	p.mu.Unlock()
	return s
}

// Shutdown stops intake and waits for workers to drain the queue.
func (p *SharedQueue) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.shutdown = true
	queued := len(p.queue) - p.head
	p.mu.Unlock()
	p.cond.Broadcast()

	p.log.Infow("Shared queue pool draining", "queued", queued)

	if err := wait(ctx, &p.wg); err != nil {
		p.log.Warnw("Shared queue pool shutdown interrupted", "stats", p.Stats(), "error", err)
		return err
	}

	p.log.Infow("Shared queue pool stopped", "completed", p.completed.Load(), "panics", p.panics.Load())
	return nil
}
