// Package fanin merges per-source channels into one sequence ordered by
// registration, regardless of which source finishes first.
package fanin

import (
	"context"
	"iter"

	"github.com/Aman-CERP/ordgrep/internal/channel"
)

// Iterate yields every item of every registered channel: channels in
// registry order, items in channel order. Each channel is marked drained once
// its end is read, or when iteration stops while reading it.
//
// The sequence ends at the registry end, when ctx is done, or when the
// consumer stops. It may be ranged over only once.
func Iterate[T any](ctx context.Context, reg *channel.Registry[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			entry, ok, err := reg.Next(ctx)
			if err != nil || !ok {
				return
			}
			if !drain(ctx, entry.Channel, yield) {
				return
			}
		}
	}
}

// drain returns false when iteration must stop.
func drain[T any](ctx context.Context, ch *channel.Channel[T], yield func(T) bool) bool {
	defer ch.MarkDrained()
	for {
		v, ok, err := ch.Get(ctx)
		if err != nil {
			return false
		}
		if !ok {
			return true
		}
		if !yield(v) {
			return false
		}
	}
}
