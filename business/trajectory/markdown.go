package trajectory

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// observationLines is how much of an observation the Markdown keeps.
const observationLines = 30

// Markdown renders the record for human review. now stamps the header.
func (r Record) Markdown(now time.Time) string {
	var lines []string
	add := func(s ...string) {
		lines = append(lines, s...)
	}

	add("# Agent Trajectory", "")

	if model := r.ModelName(); model != "" {
		add(fmt.Sprintf("**Model**: `%s`  ", model))
	}
	add(fmt.Sprintf("**Iterations**: %d  ", len(r.Steps)))
	add(fmt.Sprintf("**Generated**: %s", now.Format(time.DateTime)), "")

	add("## Trajectory", "")

	for i, s := range r.Steps {
		add(fmt.Sprintf("### Step %d", i+1), "")
		add(fmt.Sprintf("**Thought**: %s", s.Thought), "")

		if s.ToolName == ToolFinish {
			add("**Tool**: `finish`")
		} else {
			add(fmt.Sprintf("**Tool**: `%s`", s.ToolName), "")
			add(formatArgs(s))
		}
		add("")

		if s.ToolName != ToolFinish && s.Observation != "" {
			add("**Observation**:", "")
			add("```\n"+truncateLines(s.Observation, observationLines)+"\n```", "")
		}

		add("---", "")
	}

	if len(r.Usage) > 0 {
		add("## Usage", "")

		for _, model := range slices.Sorted(maps.Keys(r.Usage)) {
			add(usageTable(model, r.Usage[model])...)
		}
	}

	return strings.Join(lines, "\n")
}

// Save writes the Markdown rendering to dir/name.md and returns the path.
func (r Record) Save(dir string, name string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	path := filepath.Join(dir, name+".md")
	if err := os.WriteFile(path, []byte(r.Markdown(now)), 0o644); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	return path, nil
}

// =============================================================================

func formatArgs(s Step) string {
	if s.ToolArgs == nil {
		return s.RawArgs
	}

	parts := make([]string, 0, len(s.ToolArgs))

	for _, key := range slices.Sorted(maps.Keys(s.ToolArgs)) {
		value := s.ToolArgs[key]

		str, isString := value.(string)
		switch {
		case isString && strings.Contains(str, "\n"):
			parts = append(parts, fmt.Sprintf("**%s**:\n```sql\n%s\n```", key, str))
		case isString && len(str) > 80:
			parts = append(parts, fmt.Sprintf("**%s**:\n```\n%s\n```", key, str))
		default:
			parts = append(parts, fmt.Sprintf("**%s**: `%v`", key, value))
		}
	}

	return strings.Join(parts, "\n")
}

func truncateLines(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}

	return strings.Join(lines[:limit], "\n") + fmt.Sprintf("\n\n*... (%d more lines)*", len(lines)-limit)
}

func usageTable(model string, u Usage) []string {
	cached := u.CachedTokens()
	nonCachedPrompt := u.PromptTokens - cached

	lines := []string{
		fmt.Sprintf("**%s**", model),
		"",
		"| Metric | Value |",
		"|--------|-------|",
		fmt.Sprintf("| Prompt tokens | %d |", u.PromptTokens),
		fmt.Sprintf("| Cached tokens | %d |", cached),
		fmt.Sprintf("| Non-cached prompt tokens | %d |", nonCachedPrompt),
		fmt.Sprintf("| Completion tokens | %d |", u.CompletionTokens),
		fmt.Sprintf("| Non-cached total | %d |", nonCachedPrompt+u.CompletionTokens),
	}

	// Prompt cost is pro-rated to the non-cached share.
	cd := u.CostDetails
	switch {
	case cd != nil && cd.PromptCost != nil && cd.CompletionCost != nil && u.PromptTokens > 0:
		cost := *cd.PromptCost*float64(nonCachedPrompt)/float64(u.PromptTokens) + *cd.CompletionCost
		lines = append(lines, fmt.Sprintf("| Cost (non-cached) | $%.6f |", cost))

	case u.Cost != nil:
		lines = append(lines, fmt.Sprintf("| Cost (total) | $%.6f |", *u.Cost))
	}

	return append(lines, "")
}
