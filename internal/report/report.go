// Package report renders persisted RateWatch state for people and CI steps:
// an ASCII table for terminals, markdown for job summaries, and JSON/YAML
// for machines. Rendering is read-only over the reduced state; it never
// mutates or persists anything.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jpalmerr/ratewatch/internal/reducer"
)

// Row is one bucket's line in a report.
type Row struct {
	Bucket         string `json:"bucket" yaml:"bucket"`
	Limit          int    `json:"limit" yaml:"limit"`
	FirstRemaining int    `json:"first_remaining" yaml:"first_remaining"`
	Remaining      int    `json:"remaining" yaml:"remaining"`
	TotalUsed      int    `json:"total_used" yaml:"total_used"`
	WindowsCrossed int    `json:"windows_crossed" yaml:"windows_crossed"`
	Anomalies      int    `json:"anomalies" yaml:"anomalies"`
	ResetsIn       string `json:"resets_in" yaml:"resets_in"`
}

// Report is the rendered view of one run's state.
type Report struct {
	RunID                  string `json:"run_id" yaml:"run_id"`
	StartedAt              string `json:"started_at" yaml:"started_at"`
	StoppedAt              string `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`
	Running                bool   `json:"running" yaml:"running"`
	Duration               string `json:"duration" yaml:"duration"`
	PollCount              int    `json:"poll_count" yaml:"poll_count"`
	PollFailures           int    `json:"poll_failures" yaml:"poll_failures"`
	SecondaryRateLimitHits int    `json:"secondary_rate_limit_hits" yaml:"secondary_rate_limit_hits"`
	LastError              string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	TotalUsed              int    `json:"total_used" yaml:"total_used"`
	Rows                   []Row  `json:"buckets" yaml:"buckets"`
}

// Build derives a report from reduced state. A run without a stop timestamp
// is considered still running and its duration is measured against now.
func Build(st *reducer.State, now time.Time) *Report {
	started := time.Unix(st.StartedAt, 0)
	r := &Report{
		RunID:                  st.RunID,
		StartedAt:              started.UTC().Format(time.RFC3339),
		PollCount:              st.PollCount,
		PollFailures:           st.PollFailures,
		SecondaryRateLimitHits: st.SecondaryRateLimitHits,
		LastError:              st.LastError,
	}

	end := now
	if st.StoppedAt > 0 {
		end = time.Unix(st.StoppedAt, 0)
		r.StoppedAt = end.UTC().Format(time.RFC3339)
	} else {
		r.Running = true
	}
	r.Duration = end.Sub(started).Round(time.Second).String()

	names := make([]string, 0, len(st.Buckets))
	for name := range st.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b := st.Buckets[name]
		r.TotalUsed += b.TotalUsed
		r.Rows = append(r.Rows, Row{
			Bucket:         name,
			Limit:          b.Limit,
			FirstRemaining: b.FirstRemaining,
			Remaining:      b.Remaining,
			TotalUsed:      b.TotalUsed,
			WindowsCrossed: b.WindowsCrossed,
			Anomalies:      b.Anomalies,
			ResetsIn:       resetsIn(b.LastReset, now),
		})
	}
	return r
}

func resetsIn(reset int64, now time.Time) string {
	if reset == 0 {
		return "-"
	}
	d := time.Unix(reset, 0).Sub(now)
	if d <= 0 {
		return "passed"
	}
	return d.Round(time.Second).String()
}

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formatter renders a report.
type Formatter interface {
	Format(r *Report) (string, error)
}

// ParseFormat validates and normalizes a format string. Empty means table.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatYAML):
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}
