package evaluate

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteReport prints the run as a fixed width table with an averages row.
func WriteReport(w io.Writer, run Run) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Running eval on %d examples with %s\n\n", len(run.Results), run.Agent)
	fmt.Fprintf(&b, "%-3s %-35s %-12s %-12s %-10s %-10s %-10s\n", "#", "ID", "Difficulty", "Efficiency", "SQLValid", "Recovery", "Answer Quality")
	b.WriteString(strings.Repeat("-", 100) + "\n")

	for i, r := range run.Results {
		fmt.Fprintf(&b, "%-3d %-35s %-12s %-12.2f %-10.2f %-10.2f %-10.2f (%ss)\n",
			i+1, r.ID, r.Difficulty, r.ToolEfficiency, r.SQLValidity, r.ErrorRecovery, r.AnswerQuality,
			strconv.FormatFloat(r.ElapsedSecs, 'f', -1, 64))
	}

	b.WriteString(strings.Repeat("-", 100) + "\n")

	s := run.Summary
	fmt.Fprintf(&b, "%-3s %-35s %-12s %-12.2f %-10.2f %-10.2f %-10.2f (%.0fs)\n",
		"AVG", "", "", s.ToolEfficiency, s.SQLValidity, s.ErrorRecovery, s.AnswerQuality, s.TotalSecs)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
