// ABOUTME: Canonical event representation that every upstream agent record is reduced to.
// ABOUTME: Defines Kind (text delta, control, error) and the immutable Event value.

package stream

import "encoding/json"

// Kind classifies a normalized event.
type Kind int

const (
	// KindControl is any record that carries no assistant text: thread-id
	// assignment, status pings, tool use, or shapes this package does not know.
	KindControl Kind = iota
	// KindTextDelta carries assistant text to append to the turn's transcript.
	KindTextDelta
	// KindError carries an error message reported in-band.
	KindError
)

// String returns the lowercase name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindTextDelta:
		return "text"
	case KindError:
		return "error"
	default:
		return "control"
	}
}

// Event is one normalized record. Raw always holds the original JSON object
// so callers can forward it unchanged.
type Event struct {
	Kind     Kind
	Type     string // the record's "type" discriminator, empty if absent
	Text     string // assistant text for KindTextDelta, message for KindError
	Terminal bool   // the record marks the end of the agent's output
	Raw      json.RawMessage
}

// Field decodes a single top-level field of the raw record into dst.
// It reports false when the field is missing or has the wrong shape.
func (e Event) Field(name string, dst any) bool {
	if len(e.Raw) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Raw, &fields); err != nil {
		return false
	}
	v, ok := fields[name]
	if !ok {
		return false
	}
	return json.Unmarshal(v, dst) == nil
}

// StringField returns a top-level string field of the raw record, or "".
func (e Event) StringField(name string) string {
	var s string
	if e.Field(name, &s) {
		return s
	}
	return ""
}
