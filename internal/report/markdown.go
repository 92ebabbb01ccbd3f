package report

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders a report as GitHub-flavored markdown, suitable
// for appending to a job summary file.
type MarkdownFormatter struct{}

// Format renders the report as a markdown section with a bucket table.
func (f *MarkdownFormatter) Format(r *Report) (string, error) {
	if r == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("### API rate limit usage\n\n")
	sb.WriteString("| Bucket | Limit | Remaining | Used (run) | Windows crossed | Anomalies | Resets in |\n")
	sb.WriteString("|--------|-------|-----------|------------|-----------------|-----------|-----------|\n")

	for _, row := range r.Rows {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %d | %s |\n",
			row.Bucket,
			row.Limit,
			row.Remaining,
			row.TotalUsed,
			row.WindowsCrossed,
			row.Anomalies,
			row.ResetsIn,
		))
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("- Run `%s`, %s\n", r.RunID, runState(r)))
	sb.WriteString(fmt.Sprintf("- Polls: %d succeeded, %d failed\n", r.PollCount, r.PollFailures))
	sb.WriteString(fmt.Sprintf("- Requests attributed: **%d**\n", r.TotalUsed))
	if r.SecondaryRateLimitHits > 0 {
		sb.WriteString(fmt.Sprintf("- Secondary rate limit hits: **%d**\n", r.SecondaryRateLimitHits))
	}
	if r.LastError != "" {
		sb.WriteString(fmt.Sprintf("- Last error: `%s`\n", r.LastError))
	}
	return sb.String(), nil
}
