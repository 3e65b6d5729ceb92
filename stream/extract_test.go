// ABOUTME: Tests for the embedded screenshot command extractor.
// ABOUTME: Covers nesting, braces inside strings, malformed payloads, and display text cleanup.

package stream

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractScreenshotWithShortDescriptions(t *testing.T) {
	text := "I found two routes.\n[SCREENSHOT:{\"urls\":[\"http://x/a\",\"http://x/b\"],\"descriptions\":[\"A\"]}]\nLet me know."
	cmds, display := Extract(text)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	want := Command{URLs: []string{"http://x/a", "http://x/b"}, Descriptions: []string{"A"}}
	if diff := cmp.Diff(want, cmds[0]); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	if got := cmds[0].Description(0); got != "A" {
		t.Errorf("Description(0) = %q, want %q", got, "A")
	}
	if got := cmds[0].Description(1); got != "http://x/b" {
		t.Errorf("Description(1) = %q, want %q", got, "http://x/b")
	}
	if display != "I found two routes.\n\nLet me know." {
		t.Errorf("display = %q", display)
	}
}

func TestExtractNestedPayload(t *testing.T) {
	payload := `{"urls":["http://a/1"],"meta":{"viewport":[{"w":1280,"h":[720]}],"tags":[[1],[2,{"k":"v"}]]}}`
	text := "func f() { return [1, 2] } } ] {\n" + CommandMarker + payload + "]\ntail"
	cmds, display := Extract(text)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if diff := cmp.Diff([]string{"http://a/1"}, cmds[0].URLs); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
	if display != "func f() { return [1, 2] } } ] {\n\ntail" {
		t.Errorf("display = %q", display)
	}

	start := strings.Index(text, CommandMarker) + len(CommandMarker)
	end, ok := matchObject(text, start)
	if !ok {
		t.Fatal("matchObject failed on nested payload")
	}
	if text[start:end] != payload {
		t.Errorf("payload = %q, want %q", text[start:end], payload)
	}
}

func TestExtractBracesInsideStrings(t *testing.T) {
	text := `[SCREENSHOT:{"urls":["http://a/?q={x}]"],"descriptions":["a \"}\" b"]}]`
	cmds, display := Extract(text)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if cmds[0].URLs[0] != "http://a/?q={x}]" {
		t.Errorf("url = %q", cmds[0].URLs[0])
	}
	if cmds[0].Descriptions[0] != `a "}" b` {
		t.Errorf("description = %q", cmds[0].Descriptions[0])
	}
	if display != "" {
		t.Errorf("display = %q, want empty", display)
	}
}

func TestExtractSkipsMalformedAndContinues(t *testing.T) {
	text := `start [SCREENSHOT:{"urls":]} middle [SCREENSHOT:{"urls":["http://ok"]}] end`
	cmds, display := Extract(text)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if cmds[0].URLs[0] != "http://ok" {
		t.Errorf("url = %q, want http://ok", cmds[0].URLs[0])
	}
	want := `start [SCREENSHOT:{"urls":]} middle  end`
	if display != want {
		t.Errorf("display = %q, want %q", display, want)
	}
}

func TestExtractUnterminatedPayload(t *testing.T) {
	text := `[SCREENSHOT:{"urls":["http://a"] and later [SCREENSHOT:{"urls":["http://b"]}]`
	cmds, _ := Extract(text)
	if len(cmds) != 1 || cmds[0].URLs[0] != "http://b" {
		t.Fatalf("commands = %+v, want only http://b", cmds)
	}
}

func TestExtractRejectsMissingURLs(t *testing.T) {
	for _, text := range []string{
		`[SCREENSHOT:{"descriptions":["x"]}]`,
		`[SCREENSHOT:{"urls":[]}]`,
		`[SCREENSHOT:{"urls":"http://a"}]`,
		`[SCREENSHOT:not json]`,
	} {
		cmds, display := Extract(text)
		if len(cmds) != 0 {
			t.Errorf("Extract(%q) returned %d commands, want 0", text, len(cmds))
		}
		if display != text {
			t.Errorf("display = %q, want input unchanged", display)
		}
	}
}

func TestExtractMultipleCommandsInOrder(t *testing.T) {
	text := "a\n[SCREENSHOT:{\"urls\":[\"http://1\"]}]\n\n\n\n\nb\n[SCREENSHOT: {\"urls\":[\"http://2\",\"http://3\"]} ]\nc"
	cmds, display := Extract(text)
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	var urls []string
	for _, c := range cmds {
		urls = append(urls, c.URLs...)
	}
	if diff := cmp.Diff([]string{"http://1", "http://2", "http://3"}, urls); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
	if display != "a\n\nb\n\nc" {
		t.Errorf("display = %q", display)
	}
}

func TestExtractNoMarker(t *testing.T) {
	cmds, display := Extract("  plain text\n\n\n\nmore  ")
	if len(cmds) != 0 {
		t.Errorf("got %d commands, want 0", len(cmds))
	}
	if display != "plain text\n\nmore" {
		t.Errorf("display = %q", display)
	}
}
