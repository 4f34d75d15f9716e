package threadpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Naive starts a new goroutine for every job.
type Naive struct {
	log      *zap.SugaredLogger
	wg       sync.WaitGroup
	mu       sync.RWMutex
	shutdown bool
	counters
}

func NewNaive(log *zap.SugaredLogger) *Naive {
	log.Infow("Naive pool started")
	return &Naive{log: log}
}

func (p *Naive) Spawn(job func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shutdown {
		p.drop(p.log)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(p.log, job)
	}()
}

func (p *Naive) Stats() Stats {
	return p.stats()
}

func (p *Naive) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()

	if err := wait(ctx, &p.wg); err != nil {
		p.log.Warnw("Naive pool shutdown interrupted", "running", p.running.Load(), "error", err)
		return err
	}

	p.log.Infow("Naive pool stopped", "completed", p.completed.Load(), "panics", p.panics.Load())
	return nil
}
