// ABOUTME: Plan parsing: turns a planning turn's text into a structured Plan.
// ABOUTME: Accepts bare JSON, JSON embedded in prose or a fenced block, and falls back to a one-step free-text plan.
package client

import (
	"encoding/json"
	"strings"

	"github.com/2389-research/kodejam/stream"
)

// Plan actions.
const (
	ActionCreate = "create"
	ActionModify = "modify"
	ActionDelete = "delete"
)

// PlanStep is one unit of work in a plan.
type PlanStep struct {
	ID          string
	Title       string
	File        string
	Files       []string
	Action      string
	Description string
}

// Plan is the agent's proposed build. Once shown for approval it is not
// mutated; Clone hands out independent copies.
type Plan struct {
	Summary      string
	Steps        []PlanStep
	Dependencies []string
	// Raw is the text the plan was parsed from; it is what execution receives.
	Raw string
	// FreeText is set when no structured plan could be found.
	FreeText bool
}

// Clone returns a deep copy of p.
func (p Plan) Clone() Plan {
	out := p
	out.Steps = make([]PlanStep, len(p.Steps))
	for i, s := range p.Steps {
		s.Files = append([]string(nil), s.Files...)
		out.Steps[i] = s
	}
	out.Dependencies = append([]string(nil), p.Dependencies...)
	return out
}

type planJSON struct {
	Summary      string     `json:"summary"`
	Steps        []stepJSON `json:"steps"`
	Dependencies []string   `json:"dependencies"`
}

type stepJSON struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	File        string   `json:"file"`
	Files       []string `json:"files"`
	Action      string   `json:"action"`
	Description string   `json:"description"`
}

// ParsePlan extracts a plan from text. It never fails: text without a
// usable JSON plan becomes a single free-text step.
func ParsePlan(text string) Plan {
	trimmed := strings.TrimSpace(text)
	if p, ok := decodePlan(trimmed); ok {
		p.Raw = text
		return p
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != '{' {
			continue
		}
		end, ok := stream.ObjectEnd(trimmed, i)
		if !ok {
			continue
		}
		if p, ok := decodePlan(trimmed[i:end]); ok {
			p.Raw = text
			return p
		}
	}
	return freeTextPlan(text)
}

func decodePlan(s string) (Plan, bool) {
	var pj planJSON
	if err := json.Unmarshal([]byte(s), &pj); err != nil {
		return Plan{}, false
	}
	if pj.Summary == "" && len(pj.Steps) == 0 {
		return Plan{}, false
	}
	p := Plan{Summary: pj.Summary, Dependencies: pj.Dependencies}
	for _, sj := range pj.Steps {
		step := PlanStep{
			ID:          sj.ID,
			Title:       sj.Title,
			Action:      normalizeAction(sj.Action),
			Description: sj.Description,
		}
		switch {
		case len(sj.Files) > 0:
			step.Files = sj.Files
			step.File = sj.Files[0]
		case sj.File != "":
			step.File = sj.File
			step.Files = []string{sj.File}
		}
		p.Steps = append(p.Steps, step)
	}
	return p, true
}

func normalizeAction(a string) string {
	switch strings.ToLower(strings.TrimSpace(a)) {
	case ActionCreate:
		return ActionCreate
	case ActionDelete:
		return ActionDelete
	default:
		return ActionModify
	}
}

func freeTextPlan(text string) Plan {
	trimmed := strings.TrimSpace(text)
	summary := trimmed
	if i := strings.IndexByte(summary, '\n'); i >= 0 {
		summary = summary[:i]
	}
	if r := []rune(summary); len(r) > 120 {
		summary = string(r[:117]) + "..."
	}
	return Plan{
		Summary:  summary,
		Steps:    []PlanStep{{ID: "step-1", Title: "Follow the plan", Action: ActionModify, Description: trimmed}},
		Raw:      text,
		FreeText: true,
	}
}
