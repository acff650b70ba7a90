package fanin

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ordgrep/internal/channel"
)

func TestIterate_RegistryOrderNotCompletionOrder(t *testing.T) {
	ctx := context.Background()
	reg := channel.NewRegistry[string](4)
	slow := channel.New[string](4)
	fast := channel.New[string](4)
	require.NoError(t, reg.Register(ctx, "slow", slow))
	require.NoError(t, reg.Register(ctx, "fast", fast))
	reg.Close()

	// fast finishes first
	require.NoError(t, fast.Put(ctx, "b1"))
	fast.Close()

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = slow.Put(ctx, "a1")
		_ = slow.Put(ctx, "a2")
		slow.Close()
	}()

	got := slices.Collect(Iterate(ctx, reg))
	assert.Equal(t, []string{"a1", "a2", "b1"}, got)

	for _, ch := range []*channel.Channel[string]{slow, fast} {
		select {
		case <-ch.Drained():
		default:
			t.Fatal("channel not marked drained")
		}
	}
}

func TestIterate_EmptyChannels(t *testing.T) {
	ctx := context.Background()
	reg := channel.NewRegistry[int](3)
	for _, n := range []string{"a", "b", "c"} {
		ch := channel.New[int](1)
		ch.Close()
		require.NoError(t, reg.Register(ctx, n, ch))
	}
	reg.Close()

	assert.Empty(t, slices.Collect(Iterate(ctx, reg)))
}

func TestIterate_ConsumerStopMarksCurrentDrained(t *testing.T) {
	ctx := context.Background()
	reg := channel.NewRegistry[int](2)
	a := channel.New[int](4)
	b := channel.New[int](4)
	require.NoError(t, reg.Register(ctx, "a", a))
	require.NoError(t, reg.Register(ctx, "b", b))
	reg.Close()
	require.NoError(t, a.Put(ctx, 1))
	require.NoError(t, a.Put(ctx, 2))
	a.Close()

	for v := range Iterate(ctx, reg) {
		assert.Equal(t, 1, v)
		break
	}

	select {
	case <-a.Drained():
	default:
		t.Fatal("abandoned channel must be marked drained")
	}
	select {
	case <-b.Drained():
		t.Fatal("unread channel must not be marked drained")
	default:
	}
}

func TestIterate_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := channel.NewRegistry[int](1)
	open := channel.New[int](1)
	require.NoError(t, reg.Register(ctx, "never-closed", open))

	done := make(chan []int, 1)
	go func() { done <- slices.Collect(Iterate(ctx, reg)) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case got := <-done:
		assert.Empty(t, got)
	case <-time.After(time.Second):
		t.Fatal("fan-in did not observe cancellation")
	}
}
