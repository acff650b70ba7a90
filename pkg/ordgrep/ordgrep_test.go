package ordgrep_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ordgrep/pkg/ordgrep"
)

func TestSearch_OrderedAcrossSources(t *testing.T) {
	p, err := ordgrep.Compile(ordgrep.PatternSpec{Patterns: []string{"foo"}})
	require.NoError(t, err)

	for _, kind := range []ordgrep.BackendKind{ordgrep.KindSequential, ordgrep.KindThread, ordgrep.KindPool} {
		t.Run(string(kind), func(t *testing.T) {
			b, err := ordgrep.NewBackend(ordgrep.BackendConfig{Kind: kind})
			require.NoError(t, err)

			sess, records, err := ordgrep.Search(context.Background(), ordgrep.Sources(
				ordgrep.Lines("a", "foo", "bar", "foobar"),
				ordgrep.Lines("b", "nofoo"),
			), p, ordgrep.ModeNormal, b, ordgrep.WithMaxFiles(2))
			require.NoError(t, err)

			var got []string
			for rec := range records {
				got = append(got, rec.Filename+":"+rec.Line)
			}
			require.NoError(t, sess.Join())
			assert.Equal(t, []string{"a:foo", "a:foobar", "b:nofoo"}, got)
			assert.Equal(t, 3, sess.Stats().Records)
		})
	}
}

func TestCollect(t *testing.T) {
	p, err := ordgrep.Compile(ordgrep.PatternSpec{Patterns: []string{"foo"}})
	require.NoError(t, err)
	b, err := ordgrep.NewBackend(ordgrep.BackendConfig{})
	require.NoError(t, err)

	mode, err := ordgrep.ParseMode("files-without-match")
	require.NoError(t, err)

	got, err := ordgrep.Collect(context.Background(), ordgrep.Sources(
		ordgrep.Lines("a", "foo"),
		ordgrep.Lines("b", "bar", "baz"),
	), p, mode, b)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Filename)
	assert.True(t, got[0].IsFileOnly())
}

func TestCompile_InvalidPattern(t *testing.T) {
	p, err := ordgrep.Compile(ordgrep.PatternSpec{Patterns: []string{"("}})
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestSearch_CancelledContext(t *testing.T) {
	p, err := ordgrep.Compile(ordgrep.PatternSpec{Patterns: []string{"x"}})
	require.NoError(t, err)
	b, err := ordgrep.NewBackend(ordgrep.BackendConfig{Kind: ordgrep.KindThread})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ordgrep.Collect(ctx, ordgrep.Sources(ordgrep.Lines("a", "x")), p, ordgrep.ModeNormal, b)
	assert.ErrorIs(t, err, context.Canceled)
}
