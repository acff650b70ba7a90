package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_FIFOAndEnd(t *testing.T) {
	ctx := context.Background()
	ch := New[int](3)

	for i := 1; i <= 3; i++ {
		require.NoError(t, ch.Put(ctx, i))
	}
	ch.Close()

	for i := 1; i <= 3; i++ {
		v, ok, err := ch.Get(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok, err := ch.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "end marker expected after last item")
}

func TestChannel_ZeroValueIsNotEnd(t *testing.T) {
	ctx := context.Background()
	ch := New[string](2)

	require.NoError(t, ch.Put(ctx, ""))
	ch.Close()

	v, ok, err := ch.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestChannel_CloseIsIdempotent(t *testing.T) {
	ch := New[int](1)
	ch.Close()
	assert.NotPanics(t, ch.Close)
	assert.True(t, ch.Closed())
	assert.ErrorIs(t, ch.Put(context.Background(), 1), ErrClosed)
}

func TestChannel_CloseNeverBlocksWhenFull(t *testing.T) {
	ch := New[int](1)
	require.NoError(t, ch.Put(context.Background(), 1))

	done := make(chan struct{})
	go func() {
		ch.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a full channel")
	}
}

func TestChannel_PutCancelledWhileFull(t *testing.T) {
	ch := New[int](1)
	require.NoError(t, ch.Put(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- ch.Put(ctx, 2) }()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("Put did not observe cancellation")
	}
}

func TestChannel_GetCancelledWhileEmpty(t *testing.T) {
	ch := New[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, ok, err := ch.Get(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_Drained(t *testing.T) {
	ch := New[int](1)
	select {
	case <-ch.Drained():
		t.Fatal("drained before MarkDrained")
	default:
	}

	ch.MarkDrained()
	ch.MarkDrained()

	select {
	case <-ch.Drained():
	default:
		t.Fatal("Drained not closed")
	}
}

func TestTracker_PeakAcrossChannels(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker()
	a := New[int](4).WithTracker(tr)
	b := New[int](4).WithTracker(tr)

	for i := 0; i < 3; i++ {
		require.NoError(t, a.Put(ctx, i))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Put(ctx, i))
	}

	assert.Equal(t, 5, tr.Peak())
	assert.Equal(t, 2, tr.Live())

	a.MarkDrained()
	assert.Equal(t, 1, tr.Live())
}

func TestRegistry_Order(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry[int](4)
	names := []string{"a", "b", "c"}
	for _, n := range names {
		require.NoError(t, reg.Register(ctx, n, New[int](1)))
	}
	reg.Close()

	var got []string
	for {
		e, ok, err := reg.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, e.Name)
	}
	assert.Equal(t, names, got)
}
