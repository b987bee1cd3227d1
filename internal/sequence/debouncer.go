// Package sequence turns the stream of pose codes into action codes: a
// debouncer collapses repeated poses into a symbol string and a matcher
// looks for trigger patterns in it.
package sequence

import "strings"

// Debouncer appends a pose symbol only when it differs from the previous one.
type Debouncer struct {
	seq     strings.Builder
	prev    byte
	hasPrev bool
}

// NewDebouncer returns a debouncer whose sequence starts with sentinel.
func NewDebouncer(sentinel string) *Debouncer {
	d := &Debouncer{}
	d.Reset(sentinel)
	return d
}

// Push feeds one symbol and reports whether it was appended.
func (d *Debouncer) Push(symbol byte) bool {
	if d.hasPrev && symbol == d.prev {
		return false
	}
	d.seq.WriteByte(symbol)
	d.prev = symbol
	d.hasPrev = true
	return true
}

// Sequence returns the accumulated sequence, sentinel included.
func (d *Debouncer) Sequence() string {
	return d.seq.String()
}

// Reset restarts the sequence from sentinel and forgets the previous symbol,
// so the next symbol is always appended.
func (d *Debouncer) Reset(sentinel string) {
	d.seq.Reset()
	d.seq.WriteString(sentinel)
	d.prev = 0
	d.hasPrev = false
}
