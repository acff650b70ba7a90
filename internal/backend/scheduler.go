package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// inlineScheduler runs each function to completion inside Go.
type inlineScheduler struct{}

func (inlineScheduler) Go(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

func (inlineScheduler) Wait() {}

// semaphoreScheduler starts a goroutine per function once a semaphore slot
// is acquired; the goroutine releases it when fn returns.
type semaphoreScheduler struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func newSemaphoreScheduler(limit int) *semaphoreScheduler {
	if limit <= 0 {
		limit = 1
	}
	return &semaphoreScheduler{sem: semaphore.NewWeighted(int64(limit))}
}

func (s *semaphoreScheduler) Go(ctx context.Context, fn func()) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		fn()
	}()
	return nil
}

func (s *semaphoreScheduler) Wait() {
	s.wg.Wait()
}

// poolScheduler delegates execution to an errgroup with a fixed limit.
// Admission reserves one of limit slots; a full pool is retried every poll
// interval, or as soon as a member exits.
type poolScheduler struct {
	g       errgroup.Group
	limit   int64
	running atomic.Int64
	poll    time.Duration
	freed   chan struct{}
}

func newPoolScheduler(limit int, poll time.Duration) *poolScheduler {
	if limit <= 0 {
		limit = 1
	}
	p := &poolScheduler{limit: int64(limit), poll: poll, freed: make(chan struct{}, 1)}
	p.g.SetLimit(limit)
	return p
}

func (p *poolScheduler) Go(ctx context.Context, fn func()) error {
	task := func() error {
		defer p.signalFreed()
		defer p.running.Add(-1)
		fn()
		return nil
	}

	timer := time.NewTimer(p.poll)
	defer timer.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.reserve() {
			// The group's own limit only waits out the moment between a
			// member returning and its group slot being freed.
			p.g.Go(task)
			return nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.poll)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.freed:
		case <-timer.C:
		}
	}
}

func (p *poolScheduler) reserve() bool {
	for {
		n := p.running.Load()
		if n >= p.limit {
			return false
		}
		if p.running.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (p *poolScheduler) signalFreed() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

func (p *poolScheduler) Wait() {
	_ = p.g.Wait()
}
