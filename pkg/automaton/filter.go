package automaton

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"
)

// Filter streams the cleaned character sequence that training consumes.
// It reads runes from an underlying reader and applies the normalization
// rules shared by every model in this package:
//
//   - control characters (tab, carriage return, vertical tab, form feed and
//     the rest of the Unicode control set) are dropped,
//   - a newline becomes a single space, and runs of consecutive newlines
//     collapse into one space,
//   - letters are lowercased unless case preservation is requested.
//
// After the underlying reader is exhausted the Filter yields one final
// character: a repeat of the first character it ever produced. This closes
// the chain over the end of the text so that every observed context has at
// least one successor.
type Filter struct {
	r          *bufio.Reader
	ignoreCase bool

	offset   int64 // byte offset of the next rune, for error reporting
	first    rune
	hasFirst bool
	lastNL   bool
	eof      bool
	closed   bool
}

// NewFilter wraps r in a Filter. When ignoreCase is true the original
// letter case of the input is preserved; otherwise everything is lowercased.
func NewFilter(r io.Reader, ignoreCase bool) *Filter {
	return &Filter{r: bufio.NewReader(r), ignoreCase: ignoreCase}
}

// Next returns the next cleaned character. It returns io.EOF once the
// sequence, including the final wrap-around character, is exhausted.
func (f *Filter) Next() (rune, error) {
	if f.eof {
		if f.hasFirst && !f.closed {
			f.closed = true
			return f.first, nil
		}
		return 0, io.EOF
	}
	for {
		c, size, err := f.r.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.eof = true
				return f.Next()
			}
			return 0, err
		}
		if c == utf8.RuneError && size == 1 {
			return 0, fmt.Errorf("invalid utf-8 sequence at byte offset %d", f.offset)
		}
		f.offset += int64(size)

		if c == '\n' {
			if f.lastNL {
				continue
			}
			f.lastNL = true
			return f.yield(' '), nil
		}
		if unicode.IsControl(c) {
			continue
		}
		if !f.ignoreCase {
			c = unicode.ToLower(c)
		}
		f.lastNL = false
		return f.yield(c), nil
	}
}

func (f *Filter) yield(c rune) rune {
	if !f.hasFirst {
		f.first = c
		f.hasFirst = true
	}
	return c
}
