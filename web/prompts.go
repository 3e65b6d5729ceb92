// ABOUTME: Prompt builders for chat, build planning, and build execution turns.
// ABOUTME: Shapes from the canvas are rendered as an indented list the agent can refer back to.
package web

import (
	"fmt"
	"strings"

	"github.com/2389-research/kodejam/store"
	"github.com/2389-research/kodejam/stream"
)

// Connection links two canvas shapes.
type Connection struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Shape is a canvas element described to the agent.
type Shape struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Connections []Connection `json:"connections,omitempty"`
}

func shapeIDs(shapes []Shape) []string {
	ids := make([]string, 0, len(shapes))
	for _, s := range shapes {
		ids = append(ids, s.ID)
	}
	return ids
}

func describeShapes(shapes []Shape) string {
	if len(shapes) == 0 {
		return "No shapes defined."
	}
	var lines []string
	for _, s := range shapes {
		desc := ""
		if s.Description != "" {
			desc = " - " + s.Description
		}
		lines = append(lines, fmt.Sprintf("  - [%s] %q%s (id: %s)", s.Type, s.Label, desc, s.ID))
		for _, c := range s.Connections {
			label := ""
			if c.Label != "" {
				label = " (" + c.Label + ")"
			}
			lines = append(lines, fmt.Sprintf("      -> connects to %s%s", c.To, label))
		}
	}
	return strings.Join(lines, "\n")
}

func buildChatPrompt(req ChatRequest, history []store.Message) string {
	pageName := req.Context.PageName
	if pageName == "" {
		pageName = "Untitled"
	}

	var sb strings.Builder
	sb.WriteString("You are an AI assistant helping design and build a web application.\n")
	fmt.Fprintf(&sb, "The user is working on a canvas page called %q.\n\n", pageName)
	if len(req.Context.Shapes) > 0 {
		sb.WriteString("The canvas currently contains these shapes/components:\n")
		sb.WriteString(describeShapes(req.Context.Shapes))
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("The canvas is currently empty.\n\n")
	}
	sb.WriteString("You have read-only access to the project codebase. You can read files, search for patterns, and explore the directory structure to answer questions about the code.\n\n")
	sb.WriteString("When discussing code, reference specific file paths and line numbers when possible.\n")
	sb.WriteString("Keep responses concise and focused on what the user asked.\n")

	if req.Context.DevURL != "" {
		fmt.Fprintf(&sb, "\nThe app is running at %s. To show the user rendered pages, put this on its own line:\n", req.Context.DevURL)
		fmt.Fprintf(&sb, "%s{\"urls\":[\"%s/\"],\"descriptions\":[\"Home page\"]}]\n", stream.CommandMarker, strings.TrimRight(req.Context.DevURL, "/"))
		sb.WriteString("List every page you want captured in urls, in the order they should appear.\n")
	}

	sb.WriteString("\n")
	if len(history) > 0 {
		sb.WriteString("Previous conversation:\n")
		for _, m := range history {
			prefix := "User"
			if m.Role == store.RoleAssistant {
				prefix = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n\n", prefix, m.Content)
		}
	}
	fmt.Fprintf(&sb, "User: %s", req.Message)
	return sb.String()
}

func buildPlanPrompt(shapes []Shape) string {
	return strings.Join([]string{
		"You are an expert software architect and developer. Analyze the following UI component design from a visual canvas and create a detailed build plan.",
		"",
		"Canvas shapes and their relationships:",
		describeShapes(shapes),
		"",
		"Instructions:",
		"1. First, explore the existing codebase to understand the project structure, tech stack, and conventions.",
		"2. Based on the canvas shapes (which represent UI components, data flows, and relationships), create a structured build plan.",
		"3. The plan should specify exactly which files to create or modify, what code to write, and in what order.",
		"",
		"Output your plan as a structured JSON object with this format:",
		"{",
		`  "summary": "Brief description of what will be built",`,
		`  "steps": [`,
		"    {",
		`      "id": "step-1",`,
		`      "title": "Step title",`,
		`      "description": "What this step does",`,
		`      "files": ["path/to/file.ts"],`,
		`      "action": "create" | "modify" | "delete"`,
		"    }",
		"  ],",
		`  "estimatedFiles": number,`,
		`  "dependencies": ["any new packages needed"]`,
		"}",
		"",
		"Be thorough but practical. Focus on producing working code.",
	}, "\n")
}

func buildExecutePrompt(plan string) string {
	return strings.Join([]string{
		"You are an expert software developer. Execute the following build plan precisely and completely.",
		"",
		"Build Plan:",
		plan,
		"",
		"Instructions:",
		"1. Follow the plan step by step.",
		"2. For each step, create or modify the specified files with working, production-quality code.",
		"3. Follow the existing code conventions in the project (imports, formatting, naming, etc).",
		"4. After making changes, verify the code is correct by reading back the files you modified.",
		"5. If you encounter issues, adapt and fix them rather than stopping.",
		"",
		"Execute the plan now. Create all necessary files and modifications.",
	}, "\n")
}
