// ABOUTME: Tests for plan parsing from bare JSON, embedded JSON, fenced blocks, and free text.
package client

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Plan
	}{
		{
			name: "bare json with files array",
			text: `{"summary":"Add nav","steps":[{"id":"step-1","title":"Nav","files":["src/Nav.tsx","src/App.tsx"],"action":"create","description":"d"}],"dependencies":["clsx"]}`,
			want: Plan{
				Summary:      "Add nav",
				Steps:        []PlanStep{{ID: "step-1", Title: "Nav", File: "src/Nav.tsx", Files: []string{"src/Nav.tsx", "src/App.tsx"}, Action: ActionCreate, Description: "d"}},
				Dependencies: []string{"clsx"},
			},
		},
		{
			name: "embedded in prose with single file",
			text: "I looked around. Plan:\n{\"summary\":\"Fix\",\"steps\":[{\"file\":\"a.go\",\"action\":\"Delete\"}]}\nLet me know.",
			want: Plan{
				Summary: "Fix",
				Steps:   []PlanStep{{File: "a.go", Files: []string{"a.go"}, Action: ActionDelete}},
			},
		},
		{
			name: "fenced block after unrelated braces",
			text: "Use {curly} style.\n```json\n{\"summary\":\"S\",\"steps\":[{\"file\":\"b.go\",\"action\":\"rewrite\",\"description\":\"uses {braces} inside\"}]}\n```",
			want: Plan{
				Summary: "S",
				Steps:   []PlanStep{{File: "b.go", Files: []string{"b.go"}, Action: ActionModify, Description: "uses {braces} inside"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePlan(tt.text)
			tt.want.Raw = tt.text
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePlan (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePlanFreeText(t *testing.T) {
	text := "First, add a header component.\nThen wire it into the layout."
	got := ParsePlan(text)
	if !got.FreeText {
		t.Fatal("expected a free-text plan")
	}
	if got.Summary != "First, add a header component." {
		t.Errorf("summary = %q", got.Summary)
	}
	if len(got.Steps) != 1 || got.Steps[0].Description != text {
		t.Errorf("steps = %+v", got.Steps)
	}
	if got.Raw != text {
		t.Errorf("raw = %q", got.Raw)
	}
}

func TestParsePlanIgnoresObjectsWithoutPlanFields(t *testing.T) {
	got := ParsePlan(`config is {"port": 3000} and nothing else`)
	if !got.FreeText {
		t.Errorf("expected free text, got %+v", got)
	}
}

func TestParsePlanFreeTextSummaryKeepsRunesWhole(t *testing.T) {
	got := ParsePlan(strings.Repeat("é", 200))
	if !utf8.ValidString(got.Summary) {
		t.Fatalf("summary is not valid UTF-8: %q", got.Summary)
	}
	want := strings.Repeat("é", 117) + "..."
	if got.Summary != want {
		t.Errorf("summary = %q, want %q", got.Summary, want)
	}
}
