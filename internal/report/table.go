package report

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders a report as an ASCII table for terminals.
type TableFormatter struct{}

// Format renders the report as a rounded table with a run summary above it.
func (f *TableFormatter) Format(r *Report) (string, error) {
	if r == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("run %s  started %s  %s\n", r.RunID, r.StartedAt, runState(r)))
	sb.WriteString(fmt.Sprintf("polls %d ok / %d failed", r.PollCount, r.PollFailures))
	if r.SecondaryRateLimitHits > 0 {
		sb.WriteString(fmt.Sprintf(" / %d secondary limit hits", r.SecondaryRateLimitHits))
	}
	sb.WriteString("\n")
	if r.LastError != "" {
		sb.WriteString(fmt.Sprintf("last error: %s\n", r.LastError))
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Bucket", "Limit", "Remaining", "Used (run)", "Windows", "Anomalies", "Resets In"})

	for _, row := range r.Rows {
		t.AppendRow(table.Row{
			row.Bucket,
			row.Limit,
			row.Remaining,
			row.TotalUsed,
			row.WindowsCrossed,
			row.Anomalies,
			row.ResetsIn,
		})
	}
	if len(r.Rows) > 0 {
		t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d total", r.TotalUsed), "", "", ""})
	}

	sb.WriteString(t.Render())
	sb.WriteString("\n")
	return sb.String(), nil
}

func runState(r *Report) string {
	if r.Running {
		return fmt.Sprintf("running for %s", r.Duration)
	}
	return fmt.Sprintf("stopped after %s", r.Duration)
}
