// ABOUTME: Event normalizer mapping the agent's heterogeneous JSON record shapes to Event.
// ABOUTME: Dispatches on the "type" discriminator; unparsable lines are dropped, unknown types become control events.

package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Record discriminators understood by Normalize.
const (
	TypeAssistant         = "assistant"
	TypeContentBlockDelta = "content_block_delta"
	TypeStreamEvent       = "stream_event"
	TypeResult            = "result"
	TypeText              = "text"
	TypeError             = "error"
	TypeDone              = "done"
)

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type textDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type assistantRecord struct {
	Message *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
	Content json.RawMessage `json:"content"`
}

type contentBlockDeltaRecord struct {
	Delta textDelta `json:"delta"`
}

type streamEventRecord struct {
	Event struct {
		Type  string    `json:"type"`
		Delta textDelta `json:"delta"`
	} `json:"event"`
}

type resultRecord struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"is_error"`
	Result  string          `json:"result"`
}

type textRecord struct {
	Text *string `json:"text"`
}

type errorRecord struct {
	Error json.RawMessage `json:"error"`
}

// Normalize parses one record. It returns false when the line is blank, is
// not a JSON object, or cannot be decoded; such lines are diagnostic noise
// from the agent and must not fail the stream.
func Normalize(line string) (Event, bool) {
	raw := bytes.TrimSpace([]byte(line))
	if len(raw) == 0 || raw[0] != '{' {
		return Event{}, false
	}

	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Event{}, false
	}

	evt := Event{Kind: KindControl, Raw: json.RawMessage(raw)}
	if head.Type == nil {
		var rec textRecord
		if err := json.Unmarshal(raw, &rec); err == nil && rec.Text != nil {
			evt.Kind = KindTextDelta
			evt.Text = *rec.Text
		}
		return evt, true
	}
	evt.Type = *head.Type

	switch evt.Type {
	case TypeAssistant:
		var rec assistantRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return evt, true
		}
		content := rec.Content
		if rec.Message != nil && len(rec.Message.Content) > 0 {
			content = rec.Message.Content
		}
		if text, ok := joinText(content); ok {
			evt.Kind = KindTextDelta
			evt.Text = text
		}

	case TypeContentBlockDelta:
		var rec contentBlockDeltaRecord
		if err := json.Unmarshal(raw, &rec); err == nil && isTextDelta(rec.Delta) {
			evt.Kind = KindTextDelta
			evt.Text = rec.Delta.Text
		}

	case TypeStreamEvent:
		var rec streamEventRecord
		if err := json.Unmarshal(raw, &rec); err == nil &&
			rec.Event.Type == TypeContentBlockDelta && isTextDelta(rec.Event.Delta) {
			evt.Kind = KindTextDelta
			evt.Text = rec.Event.Delta.Text
		}

	case TypeResult:
		evt.Terminal = true
		var rec resultRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return evt, true
		}
		if rec.IsError {
			evt.Kind = KindError
			evt.Text = rec.Result
			return evt, true
		}
		if text, ok := joinBlocks(rec.Content); ok {
			evt.Kind = KindTextDelta
			evt.Text = text
		}

	case TypeText:
		var rec textRecord
		if err := json.Unmarshal(raw, &rec); err == nil && rec.Text != nil {
			evt.Kind = KindTextDelta
			evt.Text = *rec.Text
		}

	case TypeError:
		evt.Kind = KindError
		var rec errorRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			evt.Text = errorMessage(rec.Error)
		}

	case TypeDone:
		evt.Terminal = true
	}

	return evt, true
}

func isTextDelta(d textDelta) bool {
	return d.Text != "" && (d.Type == "" || d.Type == "text_delta")
}

// joinText accepts either a plain string or an array of content blocks.
func joinText(content json.RawMessage) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s, s != ""
	}
	return joinBlocks(content)
}

// joinBlocks concatenates the text of every "text" block in a content array.
func joinBlocks(content json.RawMessage) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	var blocks []contentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return "", false
	}
	var sb strings.Builder
	found := false
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			sb.WriteString(b.Text)
			found = true
		}
	}
	return sb.String(), found
}

func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
