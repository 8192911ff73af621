package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mochigome-git/plc-ping/pkg/plc"
	"github.com/mochigome-git/plc-ping/pkg/probe"
)

var ErrStopped = errors.New("worker pool stopped")

// Job is one probe request. Key identifies the device to the handler.
type Job struct {
	Key string
	PLC *plc.PLC
}

// Handler receives every probe result. It is called from worker goroutines.
type Handler func(job Job, res probe.Result)

// Pool manages concurrent workers that probe PLCs and hand results to a Handler
type Pool struct {
	workers int
	jobCh   chan Job
	wg      sync.WaitGroup
	handler Handler
	logger  logrus.FieldLogger

	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a new worker pool
func NewPool(workers int, handler Handler, logger logrus.FieldLogger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers: workers,
		jobCh:   make(chan Job),
		handler: handler,
		logger:  logger,
	}
}

// Start launches the workers. Probes run under ctx.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerRoutine(ctx)
	}
}

// Stop waits for queued probes to finish. Enqueue fails afterwards.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// Enqueue blocks until a worker takes the job or ctx ends.
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobCh <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) workerRoutine(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobCh {
		res := job.PLC.Probe(ctx)
		if p.handler != nil {
			p.handler(job, res)
		} else {
			p.logger.WithField("plc", job.Key).Debugf("probe finished, reachable=%v", res.Reachable)
		}
	}
}
