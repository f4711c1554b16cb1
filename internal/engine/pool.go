package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// pool runs submitted functions with bounded parallelism.
type pool struct {
	ctx context.Context
	sem *semaphore.Weighted

	mu     sync.Mutex
	active int
	idle   chan struct{}
}

func newPool(ctx context.Context, size int) *pool {
	idle := make(chan struct{})
	close(idle)
	return &pool{
		ctx:  ctx,
		sem:  semaphore.NewWeighted(int64(size)),
		idle: idle,
	}
}

// Submit schedules fn. Waiting submissions start in no particular order.
func (p *pool) Submit(fn func()) {
	p.mu.Lock()
	if p.active == 0 {
		p.idle = make(chan struct{})
	}
	p.active++
	p.mu.Unlock()

	go func() {
		defer p.release()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn()
	}()
}

func (p *pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active--
	if p.active == 0 {
		close(p.idle)
	}
}

// Drain waits until no submission is left, at most timeout. It reports
// whether the pool drained.
func (p *pool) Drain(timeout time.Duration) bool {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// Active returns the number of submissions running or waiting.
func (p *pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
