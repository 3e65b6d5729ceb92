// ABOUTME: Tests for LineBuffer chunk reassembly.
// ABOUTME: Covers arbitrary chunk splits, CRLF terminators, trailing partial lines, and the length cap.

package stream

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func feedAll(t *testing.T, b *LineBuffer, chunks ...string) []string {
	t.Helper()
	var out []string
	for _, c := range chunks {
		lines, err := b.Feed([]byte(c))
		if err != nil {
			t.Fatalf("Feed(%q): %v", c, err)
		}
		out = append(out, lines...)
	}
	if rest, ok := b.Flush(); ok {
		out = append(out, rest)
	}
	return out
}

func TestLineBufferSingleChunk(t *testing.T) {
	got := feedAll(t, NewLineBuffer(0), "alpha\nbeta\n")
	want := []string{"alpha", "beta"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLineBufferHoldsPartialLine(t *testing.T) {
	b := NewLineBuffer(0)
	lines, err := b.Feed([]byte(`{"type":"te`))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no complete lines, got %v", lines)
	}
	if b.Buffered() != len(`{"type":"te`) {
		t.Errorf("Buffered = %d, want %d", b.Buffered(), len(`{"type":"te`))
	}
	lines, err = b.Feed([]byte("xt\"}\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if diff := cmp.Diff([]string{`{"type":"text"}`}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if b.Buffered() != 0 {
		t.Errorf("Buffered = %d after complete line, want 0", b.Buffered())
	}
}

func TestLineBufferArbitrarySplits(t *testing.T) {
	input := "alpha\nbeta\r\n\n{\"type\":\"text\",\"text\":\"gamma\"}\r\ndelta"
	want := feedAll(t, NewLineBuffer(0), input)
	if len(want) != 5 {
		t.Fatalf("whole-input lines = %q, want 5 lines", want)
	}

	for i := 0; i <= len(input); i++ {
		for j := i; j <= len(input); j++ {
			got := feedAll(t, NewLineBuffer(0), input[:i], input[i:j], input[j:])
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("split at %d/%d mismatch (-want +got):\n%s", i, j, diff)
			}
		}
	}
}

func TestLineBufferByteAtATime(t *testing.T) {
	input := "one\r\ntwo\nthree\n"
	b := NewLineBuffer(0)
	var got []string
	for i := 0; i < len(input); i++ {
		lines, err := b.Feed([]byte{input[i]})
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		got = append(got, lines...)
	}
	if diff := cmp.Diff([]string{"one", "two", "three"}, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLineBufferDropsOversizedTerminatedLine(t *testing.T) {
	b := NewLineBuffer(8)
	lines, err := b.Feed([]byte("short\n0123456789abc\nok\n"))
	if !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("err = %v, want ErrLineTooLong", err)
	}
	if diff := cmp.Diff([]string{"short", "ok"}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLineBufferDiscardsOversizedPartialUntilNewline(t *testing.T) {
	b := NewLineBuffer(8)
	if _, err := b.Feed([]byte("0123456789")); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("err = %v, want ErrLineTooLong", err)
	}
	if b.Buffered() != 0 {
		t.Errorf("Buffered = %d while discarding, want 0", b.Buffered())
	}
	lines, err := b.Feed([]byte("more\nnext\n"))
	if err != nil {
		t.Fatalf("Feed after discard: %v", err)
	}
	if diff := cmp.Diff([]string{"next"}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLineBufferExactlyAtLimit(t *testing.T) {
	b := NewLineBuffer(8)
	lines, err := b.Feed([]byte("01234567\n"))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if diff := cmp.Diff([]string{"01234567"}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLineBufferFlushEmpty(t *testing.T) {
	var b LineBuffer
	if _, ok := b.Flush(); ok {
		t.Error("Flush on empty buffer reported a line")
	}
}
