package channel

import "context"

// Entry pairs a source name with the channel its worker writes to.
type Entry[T any] struct {
	Name    string
	Channel *Channel[T]
}

// Registry is the ordered list of entries the fan-in reads from.
// Entries are read in the order they were registered. The dispatcher is its
// only writer and closes it after the last entry.
type Registry[T any] struct {
	entries *Channel[Entry[T]]
}

// NewRegistry creates a registry buffering at most capacity unread entries.
func NewRegistry[T any](capacity int) *Registry[T] {
	return &Registry[T]{entries: New[Entry[T]](capacity)}
}

// Register appends an entry, blocking while the registry is full.
func (r *Registry[T]) Register(ctx context.Context, name string, ch *Channel[T]) error {
	return r.entries.Put(ctx, Entry[T]{Name: name, Channel: ch})
}

// Close marks the end of the registry.
func (r *Registry[T]) Close() {
	r.entries.Close()
}

// Next returns the next entry. ok is false after the last entry.
func (r *Registry[T]) Next(ctx context.Context) (Entry[T], bool, error) {
	return r.entries.Get(ctx)
}
