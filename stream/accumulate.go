// ABOUTME: Accumulator builds a turn's assistant text from normalized events.
// ABOUTME: The first text source seen in a turn is kept for the rest of it, so text is counted once and only grows.

package stream

import "strings"

type textSource int

const (
	sourceNone textSource = iota
	sourceDeltas
	sourceMessages
	sourceResult
)

// Accumulator collects assistant text for one turn. The agent may report the
// same text as incremental deltas, as complete assistant messages and again
// in its final result. Whichever source produces text first is locked in and
// the others are ignored, so Text never shrinks. The zero value is ready to use.
type Accumulator struct {
	source textSource
	text   strings.Builder
}

// Add appends evt's text when it comes from the locked source. Non-text
// events are ignored.
func (a *Accumulator) Add(evt Event) {
	if evt.Kind != KindTextDelta || evt.Text == "" {
		return
	}
	src := sourceDeltas
	switch evt.Type {
	case TypeAssistant:
		src = sourceMessages
	case TypeResult:
		src = sourceResult
	}
	if a.source == sourceNone {
		a.source = src
	}
	if src != a.source {
		return
	}
	a.text.WriteString(evt.Text)
}

// Text returns the accumulated assistant text so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Len reports the length of Text.
func (a *Accumulator) Len() int {
	return len(a.Text())
}
