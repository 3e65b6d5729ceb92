// ABOUTME: LineBuffer turns arbitrarily chunked bytes into complete newline-terminated records.
// ABOUTME: Holds back a trailing partial line between feeds and rejects lines longer than a cap.

package stream

import (
	"bytes"
	"errors"
)

// DefaultMaxLineBytes bounds a single record when no explicit cap is configured.
const DefaultMaxLineBytes = 4 << 20

// ErrLineTooLong is returned when a record exceeds the buffer's cap. The
// offending record is dropped in full; lines after it are unaffected.
var ErrLineTooLong = errors.New("stream: line exceeds maximum length")

// LineBuffer accumulates raw chunks and yields complete lines. The zero value
// is usable and applies DefaultMaxLineBytes.
type LineBuffer struct {
	max        int
	pending    []byte
	discarding bool // inside an oversized line, dropping bytes until the next '\n'
}

// NewLineBuffer creates a LineBuffer that rejects lines longer than maxBytes.
// A maxBytes of zero or less selects DefaultMaxLineBytes.
func NewLineBuffer(maxBytes int) *LineBuffer {
	return &LineBuffer{max: maxBytes}
}

func (b *LineBuffer) limit() int {
	if b.max <= 0 {
		return DefaultMaxLineBytes
	}
	return b.max
}

// Feed appends chunk and returns every line completed by it, in order, with
// the "\n" (and a preceding "\r", if any) removed. Empty lines are returned
// as empty strings. If any line was dropped for exceeding the cap the
// returned error is ErrLineTooLong; the returned lines are still valid.
func (b *LineBuffer) Feed(chunk []byte) ([]string, error) {
	var lines []string
	var tooLong bool
	limit := b.limit()

	for len(chunk) > 0 {
		idx := bytes.IndexByte(chunk, '\n')
		if idx < 0 {
			if b.discarding {
				return lines, errOrNil(tooLong)
			}
			if len(b.pending)+len(chunk) > limit {
				b.pending = b.pending[:0]
				b.discarding = true
				tooLong = true
				return lines, errOrNil(tooLong)
			}
			b.pending = append(b.pending, chunk...)
			return lines, errOrNil(tooLong)
		}

		segment := chunk[:idx]
		chunk = chunk[idx+1:]

		if b.discarding {
			b.discarding = false
			continue
		}
		if len(b.pending)+len(segment) > limit {
			b.pending = b.pending[:0]
			tooLong = true
			continue
		}

		var line []byte
		if len(b.pending) > 0 {
			line = append(b.pending, segment...)
			b.pending = nil
		} else {
			line = segment
		}
		lines = append(lines, string(bytes.TrimSuffix(line, []byte{'\r'})))
	}
	return lines, errOrNil(tooLong)
}

// Flush returns any buffered partial line and resets the buffer. It is used
// once the source has ended without a trailing newline.
func (b *LineBuffer) Flush() (string, bool) {
	defer func() {
		b.pending = nil
		b.discarding = false
	}()
	if b.discarding || len(b.pending) == 0 {
		return "", false
	}
	return string(bytes.TrimSuffix(b.pending, []byte{'\r'})), true
}

// Buffered reports how many bytes of an incomplete line are being held.
func (b *LineBuffer) Buffered() int {
	return len(b.pending)
}

func errOrNil(tooLong bool) error {
	if tooLong {
		return ErrLineTooLong
	}
	return nil
}
