package render

import (
	"bytes"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ordgrep/internal/match"
)

func seq(recs ...match.Record) iter.Seq[match.Record] {
	return func(yield func(match.Record) bool) {
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	}
}

func render(t *testing.T, opts Options, recs ...match.Record) (string, bool) {
	t.Helper()
	var buf bytes.Buffer
	if opts.Color == "" {
		opts.Color = ColorNever
	}
	matched, err := New(&buf, opts).Render(seq(recs...))
	require.NoError(t, err)
	return buf.String(), matched
}

func TestRender_Layouts(t *testing.T) {
	recs := []match.Record{
		match.NewLineRecord("a.txt", 1, "foo", "foo"),
		match.NewLineRecord("a.txt", 3, "a foobar", "foo"),
	}

	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"plain", Options{}, "foo\na foobar\n"},
		{"filename", Options{WithFilename: true}, "a.txt:foo\na.txt:a foobar\n"},
		{"line numbers", Options{LineNumbers: true}, "1:foo\n3:a foobar\n"},
		{"both", Options{WithFilename: true, LineNumbers: true}, "a.txt:1:foo\na.txt:3:a foobar\n"},
		{"only matching", Options{OnlyMatching: true}, "foo\nfoo\n"},
		{"quiet", Options{Quiet: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := render(t, tt.opts, recs...)
			assert.Equal(t, tt.want, got)
			assert.True(t, matched)
		})
	}
}

func TestRender_FileRecordsIgnorePrefixes(t *testing.T) {
	got, matched := render(t, Options{WithFilename: true, LineNumbers: true},
		match.NewFileRecord("a.txt"), match.NewFileRecord("b.txt"))
	assert.True(t, matched)
	assert.Equal(t, "a.txt\nb.txt\n", got)
}

func TestRender_InvertedLines(t *testing.T) {
	rec := match.NewInvertedRecord("a", 2, "bar")
	got, _ := render(t, Options{}, rec)
	assert.Equal(t, "bar\n", got)

	got, matched := render(t, Options{OnlyMatching: true}, rec)
	assert.Empty(t, got)
	assert.True(t, matched)
}

func TestRender_EmptyLineIsPrinted(t *testing.T) {
	got, _ := render(t, Options{LineNumbers: true}, match.NewInvertedRecord("a", 4, ""))
	assert.Equal(t, "4:\n", got)
}

func TestRender_NothingMatched(t *testing.T) {
	got, matched := render(t, Options{})
	assert.Empty(t, got)
	assert.False(t, matched)
}

func TestRender_QuietStopsSequence(t *testing.T) {
	pulled := 0
	records := func(yield func(match.Record) bool) {
		for i := range 10 {
			pulled++
			if !yield(match.NewLineRecord("a", i+1, "x", "x")) {
				return
			}
		}
	}
	var buf bytes.Buffer
	matched, err := New(&buf, Options{Quiet: true, Color: ColorNever}).Render(records)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, 1, pulled)
}

func TestRender_ColorHighlightsMatch(t *testing.T) {
	got, _ := render(t, Options{WithFilename: true, Color: ColorAlways},
		match.NewLineRecord("a.txt", 1, "say foo\tnow", "foo"))
	assert.Contains(t, got, "\x1b[")
	assert.Contains(t, got, "\tnow")

	stripped := stripANSI(got)
	assert.Equal(t, "a.txt:say foo\tnow\n", stripped)
}

func TestUseColor(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, UseColor(&buf, ColorAlways))
	assert.False(t, UseColor(&buf, ColorNever))
	assert.False(t, UseColor(&buf, ColorAuto))

	t.Setenv("NO_COLOR", "1")
	assert.True(t, UseColor(&buf, ColorAlways))
}

func TestParseColorMode(t *testing.T) {
	for in, want := range map[string]ColorMode{"": ColorAuto, "AUTO": ColorAuto, "always": ColorAlways, "never": ColorNever} {
		got, err := ParseColorMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseColorMode("sometimes")
	assert.Error(t, err)
}

func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
