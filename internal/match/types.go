// Package match provides the line-matching kernel for ordgrep.
// It turns a lazy sequence of lines into a lazy sequence of Records
// according to one of four matching modes.
package match

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownFilename is used when a source has no usable name.
const UnknownFilename = "???"

// ErrDecode is returned by a LineReader when the next line cannot be decoded.
// The matcher treats it as the end of the source.
var ErrDecode = errors.New("line decode failed")

// Mode selects how lines are turned into records.
type Mode int

const (
	// ModeNormal reports every line that matches, with the matched substring.
	ModeNormal Mode = iota
	// ModeInvert reports every line that does not match.
	ModeInvert
	// ModeFilesWithMatch reports the filename of sources with at least one match.
	ModeFilesWithMatch
	// ModeFilesWithoutMatch reports the filename of sources without any match.
	ModeFilesWithoutMatch
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeInvert:
		return "invert"
	case ModeFilesWithMatch:
		return "files-with-matches"
	case ModeFilesWithoutMatch:
		return "files-without-match"
	default:
		return "unknown"
	}
}

// FilesOnly reports whether records in this mode carry only a filename.
func (m Mode) FilesOnly() bool {
	return m == ModeFilesWithMatch || m == ModeFilesWithoutMatch
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return ModeNormal, nil
	case "invert":
		return ModeInvert, nil
	case "files-with-matches", "files-with-match":
		return ModeFilesWithMatch, nil
	case "files-without-match":
		return ModeFilesWithoutMatch, nil
	default:
		return ModeNormal, fmt.Errorf("unknown match mode %q", s)
	}
}

// Pattern is the searchable form of a compiled pattern.
// Search returns the matched substring and true on a hit.
type Pattern interface {
	Search(line string) (string, bool)
}

// LineReader yields the lines of a single source, one at a time.
// ReadLine returns io.EOF after the last line and ErrDecode when the next
// line cannot be decoded. A LineReader cannot be restarted.
type LineReader interface {
	ReadLine() (string, error)
}

// Record is one reported result: a matching or non-matching line, or a bare
// filename in the files-only modes. Records are values and are never mutated.
type Record struct {
	Filename   string `json:"filename"`
	Line       string `json:"line,omitempty"`
	Matched    string `json:"matched,omitempty"`
	LineNumber int    `json:"line_number,omitempty"`
	HasLine    bool   `json:"has_line,omitempty"`
	HasMatched bool   `json:"has_matched,omitempty"`
}

// NewLineRecord creates a record for a matching line.
func NewLineRecord(filename string, number int, line, matched string) Record {
	return Record{
		Filename:   normalizeName(filename),
		Line:       line,
		Matched:    matched,
		LineNumber: number,
		HasLine:    true,
		HasMatched: true,
	}
}

// NewInvertedRecord creates a record for a line that did not match.
func NewInvertedRecord(filename string, number int, line string) Record {
	return Record{
		Filename:   normalizeName(filename),
		Line:       line,
		LineNumber: number,
		HasLine:    true,
	}
}

// NewFileRecord creates a filename-only record.
func NewFileRecord(filename string) Record {
	return Record{Filename: normalizeName(filename)}
}

// IsFileOnly reports whether the record carries only a filename.
func (r Record) IsFileOnly() bool {
	return !r.HasLine
}

func normalizeName(name string) string {
	if name == "" {
		return UnknownFilename
	}
	return name
}
