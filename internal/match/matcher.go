package match

import "iter"

// Matches returns the records produced by scanning lines with pattern in the
// given mode. The sequence is as lazy as lines: it pulls one line per step and
// never buffers the input.
//
// Any error from lines ends the sequence without a record for the failing
// line. A FilesWithoutMatch scan that ends this way emits nothing, since the
// source was not fully scanned.
func Matches(filename string, lines LineReader, pattern Pattern, mode Mode) iter.Seq[Record] {
	switch mode {
	case ModeInvert:
		return invert(filename, lines, pattern)
	case ModeFilesWithMatch:
		return filesWithMatch(filename, lines, pattern)
	case ModeFilesWithoutMatch:
		return filesWithoutMatch(filename, lines, pattern)
	default:
		return normal(filename, lines, pattern)
	}
}

func normal(filename string, lines LineReader, pattern Pattern) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for n := 1; ; n++ {
			line, err := lines.ReadLine()
			if err != nil {
				return
			}
			if matched, ok := pattern.Search(line); ok {
				if !yield(NewLineRecord(filename, n, line, matched)) {
					return
				}
			}
		}
	}
}

func invert(filename string, lines LineReader, pattern Pattern) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for n := 1; ; n++ {
			line, err := lines.ReadLine()
			if err != nil {
				return
			}
			if _, ok := pattern.Search(line); ok {
				continue
			}
			if !yield(NewInvertedRecord(filename, n, line)) {
				return
			}
		}
	}
}

// filesWithMatch stops reading at the first hit.
func filesWithMatch(filename string, lines LineReader, pattern Pattern) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for {
			line, err := lines.ReadLine()
			if err != nil {
				return
			}
			if _, ok := pattern.Search(line); ok {
				yield(NewFileRecord(filename))
				return
			}
		}
	}
}

// filesWithoutMatch always reads to the end of the input before deciding.
func filesWithoutMatch(filename string, lines LineReader, pattern Pattern) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		hits := 0
		for {
			line, err := lines.ReadLine()
			if err != nil {
				if !isEOF(err) {
					return
				}
				break
			}
			if _, ok := pattern.Search(line); ok {
				hits++
			}
		}
		if hits == 0 {
			yield(NewFileRecord(filename))
		}
	}
}
