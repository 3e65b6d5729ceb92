// ABOUTME: Renders a stored thread as a markdown transcript or as HTML via goldmark.
// ABOUTME: Raw HTML inside messages is not passed through to the HTML output.
package store

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// RenderMarkdown formats the thread as a markdown document.
func RenderMarkdown(t *Thread) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Conversation %s\n\n", t.ID)
	if t.PageID != "" {
		fmt.Fprintf(&sb, "Page: %s\n\n", t.PageID)
	}
	for _, m := range t.Messages {
		speaker := "User"
		if m.Role == RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&sb, "## %s\n\n", speaker)
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "_%s_\n\n", m.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
		}
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// RenderHTML converts the markdown transcript to an HTML fragment.
func RenderHTML(t *Thread) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(RenderMarkdown(t)), &buf); err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	return buf.String(), nil
}
