package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ordgrep/internal/channel"
	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/pattern"
	"github.com/Aman-CERP/ordgrep/internal/source"
)

func drainAll(t *testing.T, ch *channel.Channel[match.Record]) []match.Record {
	t.Helper()
	var out []match.Record
	for {
		rec, ok, err := ch.Get(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

func TestRun_DeliversRecordsThenEnd(t *testing.T) {
	ch := channel.New[match.Record](8)
	res := Run(context.Background(), Job{
		Handle:  source.Lines("a.txt", "foo", "bar", "foobar"),
		Pattern: pattern.Literal("foo"),
		Mode:    match.ModeNormal,
		Out:     ch,
	})

	assert.Equal(t, 2, res.Records)
	assert.NoError(t, res.OpenErr)
	assert.NoError(t, res.ReadErr)
	assert.True(t, ch.Closed())

	got := drainAll(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, "foobar", got[1].Line)
	assert.Equal(t, 3, got[1].LineNumber)
}

func TestRun_OpenFailureStillCloses(t *testing.T) {
	ch := channel.New[match.Record](1)
	openErr := errors.New("permission denied")
	res := Run(context.Background(), Job{
		Handle:  &source.MemoryHandle{Filename: "x", OpenErr: openErr},
		Pattern: pattern.Literal("foo"),
		Out:     ch,
	})

	assert.ErrorIs(t, res.OpenErr, openErr)
	assert.True(t, ch.Closed())
	assert.Empty(t, drainAll(t, ch))
}

func TestRun_DecodeFailureTruncates(t *testing.T) {
	ch := channel.New[match.Record](8)
	h := &source.MemoryHandle{Filename: "bad", Content: "foo 1\nfoo 2\nfoo \xff\nfoo 4\n"}
	res := Run(context.Background(), Job{Handle: h, Pattern: pattern.Literal("foo"), Out: ch})

	assert.ErrorIs(t, res.ReadErr, match.ErrDecode)
	assert.Equal(t, 2, res.Records)
	assert.Len(t, drainAll(t, ch), 2)
}

func TestRun_CancelWhileFull(t *testing.T) {
	ch := channel.New[match.Record](1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Result, 1)
	go func() {
		done <- Run(ctx, Job{
			Handle:  source.Lines("a", "foo", "foo", "foo"),
			Pattern: pattern.Literal("foo"),
			Out:     ch,
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.True(t, res.Cancelled)
		assert.Equal(t, 1, res.Records)
	case <-time.After(time.Second):
		t.Fatal("worker blocked after cancellation")
	}
	assert.True(t, ch.Closed())
}

func TestRun_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := channel.New[match.Record](1)

	res := Run(ctx, Job{Handle: source.Lines("a", "foo"), Pattern: pattern.Literal("foo"), Out: ch})
	assert.True(t, res.Cancelled)
	assert.True(t, ch.Closed())
}

type panicPattern struct{}

func (panicPattern) Search(string) (string, bool) { panic("bad pattern") }

func TestRun_PanicStillCloses(t *testing.T) {
	ch := channel.New[match.Record](1)
	res := Run(context.Background(), Job{Handle: source.Lines("a", "x"), Pattern: panicPattern{}, Out: ch})

	require.Error(t, res.ReadErr)
	assert.Contains(t, res.ReadErr.Error(), "bad pattern")
	assert.True(t, ch.Closed())
}
