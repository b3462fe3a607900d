// Package render produces output from reconciled subjects: the rewritten
// canonical report, a JSON document and a Markdown summary.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reinkaoss/sifting-tool/internal/consensus"
	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/scoreline"
)

// RewriteReport rewrites canonical line by line. Each score line whose
// subject has a record in subjects is replaced with the canonical grammar
// carrying the reconciled values; the line's own list number is kept.
// Every other line passes through unchanged, so the output always has the
// same number of lines as the input. Only the first score line of a
// subject is rewritten.
func RewriteReport(canonical string, subjects map[string]consensus.Subject, shape schema.Shape, g scoreline.Grammar) string {
	lines := strings.Split(canonical, "\n")
	done := make(map[string]bool, len(subjects))
	for i, line := range lines {
		body, cr := strings.CutSuffix(line, "\r")
		id, ok := scoreline.SubjectOf(body, g)
		if !ok || done[id] {
			continue
		}
		s, ok := subjects[id]
		if !ok {
			continue
		}
		done[id] = true
		out := scoreline.Format(Fields(s, scoreline.Ordinal(body)), shape, g)
		if cr {
			out += "\r"
		}
		lines[i] = out
	}
	return strings.Join(lines, "\n")
}

// Fields converts a reconciled subject into formatter input.
func Fields(s consensus.Subject, ordinal string) scoreline.Fields {
	return scoreline.Fields{
		Ordinal:       ordinal,
		SubjectID:     s.SubjectID,
		Aggregate:     s.Aggregate,
		AggregateMax:  s.AggregateMax,
		Dimensions:    s.Dimensions,
		Justification: s.Justification,
	}
}

// RenderJSON produces a pretty-printed JSON representation of v.
func RenderJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("render: nil value")
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

// Failure is one row of the failed-subjects table.
type Failure struct {
	SubjectID string
	Reason    string
}

// RenderMarkdown produces a GitHub-flavoured summary table of the scored
// subjects followed by any failures.
func RenderMarkdown(subjects []consensus.Subject, failed []Failure, shape schema.Shape) string {
	var sb strings.Builder

	sb.WriteString("## Sifting Results\n\n")
	fmt.Fprintf(&sb, "**Scored:** %d | **Failed:** %d\n\n", len(subjects), len(failed))

	if len(subjects) > 0 {
		sb.WriteString("| Subject | Score |")
		for _, k := range shape.Keys {
			fmt.Fprintf(&sb, " %s |", k)
		}
		sb.WriteString(" Runs | Justification |\n|---|---|")
		for range shape.Keys {
			sb.WriteString("---|")
		}
		sb.WriteString("---|---|\n")
		for _, s := range subjects {
			fmt.Fprintf(&sb, "| %s | %.2f/%d |", mdEscape(s.SubjectID), s.Aggregate, s.AggregateMax)
			for _, k := range shape.Keys {
				fmt.Fprintf(&sb, " %s |", s.Dimensions[k])
			}
			fmt.Fprintf(&sb, " %s | %s |\n", series(s.Series), mdEscape(s.Justification))
		}
		sb.WriteString("\n")
	}

	if len(failed) > 0 {
		sb.WriteString("## Failed\n\n")
		for _, f := range failed {
			fmt.Fprintf(&sb, "- **%s**: %s\n", mdEscape(f.SubjectID), mdEscape(f.Reason))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func series(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%.2f", x)
	}
	return strings.Join(parts, ", ")
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
