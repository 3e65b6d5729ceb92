// ABOUTME: Finds embedded [SCREENSHOT:{...}] commands in assistant text and strips them out.
// ABOUTME: Uses bracket-depth matching so nested objects and arrays in the payload are handled.

package stream

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CommandMarker opens an embedded screenshot command.
const CommandMarker = "[SCREENSHOT:"

// Command is one decoded screenshot request.
type Command struct {
	URLs         []string `json:"urls"`
	Descriptions []string `json:"descriptions,omitempty"`
}

// Description returns the description for URL i, falling back to the URL
// itself when descriptions are missing or shorter than the URL list.
func (c Command) Description(i int) string {
	if i < len(c.Descriptions) && strings.TrimSpace(c.Descriptions[i]) != "" {
		return c.Descriptions[i]
	}
	if i < len(c.URLs) {
		return c.URLs[i]
	}
	return ""
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Extract returns every well-formed command in text, in order, and the text
// with each accepted command (marker, payload, and closing bracket) removed.
// Malformed payloads and payloads without URLs are left in place verbatim.
// Runs of three or more newlines are collapsed and the result is trimmed.
func Extract(text string) ([]Command, string) {
	var cmds []Command
	var out strings.Builder
	rest := text

	for {
		idx := strings.Index(rest, CommandMarker)
		if idx < 0 {
			out.WriteString(rest)
			break
		}
		payloadStart := idx + len(CommandMarker)
		for payloadStart < len(rest) && isSpace(rest[payloadStart]) {
			payloadStart++
		}

		end, ok := matchObject(rest, payloadStart)
		if !ok {
			out.WriteString(rest[:payloadStart])
			rest = rest[payloadStart:]
			continue
		}

		var cmd Command
		if err := json.Unmarshal([]byte(rest[payloadStart:end]), &cmd); err != nil || len(cmd.URLs) == 0 {
			out.WriteString(rest[:payloadStart])
			rest = rest[payloadStart:]
			continue
		}
		cmds = append(cmds, cmd)

		out.WriteString(rest[:idx])
		tail := end
		for tail < len(rest) && isSpace(rest[tail]) && rest[tail] != '\n' {
			tail++
		}
		if tail < len(rest) && rest[tail] == ']' {
			end = tail + 1
		}
		rest = rest[end:]
	}

	cleaned := blankRuns.ReplaceAllString(out.String(), "\n\n")
	return cmds, strings.TrimSpace(cleaned)
}

// matchObject scans a JSON object beginning at s[start] and returns the index
// just past its closing brace. Brackets inside string literals are ignored.
func matchObject(s string, start int) (int, bool) {
	if start >= len(s) || s[start] != '{' {
		return 0, false
	}
	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return 0, false
			}
			open := stack[len(stack)-1]
			if (c == '}' && open != '{') || (c == ']' && open != '[') {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// ObjectEnd reports the index just past the JSON object that opens at
// s[start], matching nested braces and brackets outside string literals.
func ObjectEnd(s string, start int) (int, bool) {
	return matchObject(s, start)
}
