// Package transcript accumulates incremental transcription fragments
// into whole utterances.
package transcript

import (
	"strings"
	"sync"
)

// Aggregator collects fragments for one speaker until the turn ends.
// The zero value is ready to use; all methods are safe for concurrent
// use.
type Aggregator struct {
	mu  sync.Mutex
	buf strings.Builder
}

// Append adds a fragment to the buffer in arrival order.
func (a *Aggregator) Append(fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.WriteString(fragment)
}

// Flush returns the accumulated utterance and clears the buffer. ok is
// false when the buffer holds nothing but whitespace, so flushing an
// already-flushed turn is a no-op rather than an empty message.
func (a *Aggregator) Flush() (text string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	text = a.buf.String()
	a.buf.Reset()
	return text, strings.TrimSpace(text) != ""
}

// Reset discards the buffer without emitting anything. Used when the
// service interrupts a turn or the session stops.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
}
