// Package channel provides the bounded single-writer queues that connect file
// workers to the ordered fan-in, and the registry that fixes their read order.
//
// End of stream is signalled out of band: the writer calls Close exactly once
// and readers observe it as ok == false from Get. No value of T is reserved.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("channel closed")

// Channel is a bounded FIFO with blocking, cancellable Put and Get.
// It has exactly one writer, which must call Close when done.
type Channel[T any] struct {
	items     chan T
	closed    atomic.Bool
	closeOnce sync.Once

	drained   chan struct{}
	drainOnce sync.Once

	tracker *Tracker
}

// New creates a channel holding at most capacity items.
// A non-positive capacity is treated as 1.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Channel[T]{
		items:   make(chan T, capacity),
		drained: make(chan struct{}),
	}
}

// WithTracker attaches a tracker that samples buffered items after each Put.
func (c *Channel[T]) WithTracker(t *Tracker) *Channel[T] {
	c.tracker = t
	if t != nil {
		t.track(c)
	}
	return c
}

// Put appends v, blocking while the channel is full.
// It returns ctx.Err() if ctx is done before space becomes available.
func (c *Channel[T]) Put(ctx context.Context, v T) error {
	if c.closed.Load() {
		return ErrClosed
	}
	// A done ctx wins over a free slot.
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.items <- v:
		if c.tracker != nil {
			c.tracker.sample()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of the stream. It never blocks and only the first call
// has an effect, so the end marker is delivered exactly once.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.items)
	})
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool {
	return c.closed.Load()
}

// Get removes the next item, blocking while the channel is empty.
// ok is false once the channel is closed and every item has been read.
func (c *Channel[T]) Get(ctx context.Context) (v T, ok bool, err error) {
	select {
	case v, ok = <-c.items:
		return v, ok, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

// MarkDrained records that the reader has consumed the end marker, or has
// given up on the channel.
func (c *Channel[T]) MarkDrained() {
	c.drainOnce.Do(func() {
		close(c.drained)
		if c.tracker != nil {
			c.tracker.untrack(c)
		}
	})
}

// Drained is closed once MarkDrained has been called.
func (c *Channel[T]) Drained() <-chan struct{} {
	return c.drained
}

// Len returns the number of buffered items.
func (c *Channel[T]) Len() int {
	return len(c.items)
}

// Cap returns the channel capacity.
func (c *Channel[T]) Cap() int {
	return cap(c.items)
}
