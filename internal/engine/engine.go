// Package engine ties the score pipeline together: parse every run for every
// subject, reconcile, rewrite the canonical run and map the columns. It does
// no I/O and keeps no state between calls.
package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/reinkaoss/sifting-tool/internal/columns"
	"github.com/reinkaoss/sifting-tool/internal/consensus"
	"github.com/reinkaoss/sifting-tool/internal/render"
	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/scoreline"
)

// ReasonNoScores is the failure reason for a subject with no numeric
// aggregate in any run.
const ReasonNoScores = "no scores found in analysis"

var (
	// ErrNoRuns is returned when Run is called without any run text.
	ErrNoRuns = errors.New("engine: no runs supplied")
	// ErrCanonicalRange is returned when the canonical run index does not
	// name a supplied run.
	ErrCanonicalRange = errors.New("engine: canonical run out of range")
)

// Input is everything one aggregation call needs.
type Input struct {
	// Runs are the raw completion texts; Runs[i] is run i+1.
	Runs []string
	// Subjects to score. Duplicates are ignored. When empty, the subjects
	// are taken from the score lines of the canonical run.
	Subjects []string
	Shape    schema.Shape
	Grammar  scoreline.Grammar
	// Canonical is the 1-based run whose prose is kept; 0 means run 1.
	Canonical int
	// Metadata fields written after the justification column.
	Metadata []string
	// Reasoning puts each subject's detailed-reasoning excerpt (N/A when
	// the canonical run has none) ahead of Metadata.
	Reasoning bool
	// Columns controls value rendering in Row.Cells.
	Columns columns.Options
}

// Row is a succeeded subject with its write payload.
type Row struct {
	consensus.Subject
	Cells []columns.Cell `json:"cells"`
}

// Failure records a subject that could not be scored.
type Failure struct {
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("subject %s: %s", f.SubjectID, f.Reason)
}

// Mismatch records a line whose denominator disagreed with the shape.
type Mismatch struct {
	SubjectID string `json:"subject_id"`
	Run       int    `json:"run"`
	Reported  int    `json:"reported"`
	Expected  int    `json:"expected"`
}

// Result partitions the subjects into succeeded and failed, in input order,
// and carries the rewritten canonical report.
type Result struct {
	Succeeded  []Row        `json:"succeeded"`
	Failed     []Failure    `json:"failed"`
	Report     string       `json:"report"`
	Mismatches []Mismatch   `json:"mismatches,omitempty"`
	Shape      schema.Shape `json:"-"`
}

// Engine runs aggregation calls.
type Engine struct {
	logger *zap.Logger
}

// New returns an Engine. A nil logger discards output.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.Named("engine")}
}

// Run performs one aggregation call. It returns an error only for an invalid
// call, in which case no partial result is produced; per-subject problems
// are reported in Result.Failed.
func (e *Engine) Run(in Input) (Result, error) {
	if len(in.Runs) == 0 {
		return Result{}, ErrNoRuns
	}
	canonical := in.Canonical
	if canonical == 0 {
		canonical = consensus.CanonicalRun
	}
	if canonical < 1 || canonical > len(in.Runs) {
		return Result{}, fmt.Errorf("%w: %d of %d", ErrCanonicalRange, canonical, len(in.Runs))
	}
	if in.Shape.DimensionCount == 0 {
		in.Shape = schema.Default()
	}

	subjects := dedupe(in.Subjects)
	if len(subjects) == 0 {
		subjects = scoreline.Subjects(in.Runs[canonical-1], in.Grammar)
	}

	res := Result{
		Succeeded: []Row{},
		Failed:    []Failure{},
		Shape:     in.Shape,
	}
	reconciled := make(map[string]consensus.Subject, len(subjects))

	for _, id := range subjects {
		samples := make([]consensus.Sample, 0, len(in.Runs))
		for i, text := range in.Runs {
			p, ok := scoreline.ParseRun(text, id, in.Shape, in.Grammar)
			if !ok {
				e.logger.Debug("subject missing from run", zap.String("subject", id), zap.Int("run", i+1))
				continue
			}
			if p.AggregateMax != 0 && p.AggregateMax != in.Shape.AggregateMax {
				e.logger.Warn("aggregate maximum disagrees with criteria",
					zap.String("subject", id),
					zap.Int("run", i+1),
					zap.Int("reported", p.AggregateMax),
					zap.Int("expected", in.Shape.AggregateMax))
				res.Mismatches = append(res.Mismatches, Mismatch{
					SubjectID: id, Run: i + 1, Reported: p.AggregateMax, Expected: in.Shape.AggregateMax,
				})
			}
			samples = append(samples, consensus.Sample{Run: i + 1, Parse: p})
		}

		s := consensus.Reconcile(in.Shape, id, samples, canonical)
		if !s.Scored {
			res.Failed = append(res.Failed, Failure{SubjectID: id, Reason: ReasonNoScores})
			continue
		}
		reconciled[id] = s
		res.Succeeded = append(res.Succeeded, Row{
			Subject: s,
			Cells:   columns.Cells(s, in.Shape, in.metadata(s), in.Columns),
		})
	}

	res.Report = render.RewriteReport(in.Runs[canonical-1], reconciled, in.Shape, in.Grammar)
	e.logger.Info("aggregation complete",
		zap.Int("runs", len(in.Runs)),
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

// Subjects returns the reconciled subjects of the succeeded rows.
func (r Result) Subjects() []consensus.Subject {
	out := make([]consensus.Subject, len(r.Succeeded))
	for i, row := range r.Succeeded {
		out[i] = row.Subject
	}
	return out
}

// RenderFailures converts the failures for render.RenderMarkdown.
func (r Result) RenderFailures() []render.Failure {
	out := make([]render.Failure, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = render.Failure{SubjectID: f.SubjectID, Reason: f.Reason}
	}
	return out
}

// MetaCount is the number of metadata cells per row.
func (in Input) MetaCount() int {
	if in.Reasoning {
		return len(in.Metadata) + 1
	}
	return len(in.Metadata)
}

func (in Input) metadata(s consensus.Subject) []string {
	if !in.Reasoning {
		return in.Metadata
	}
	reasoning := s.Reasoning
	if reasoning == "" {
		reasoning = schema.NA
	}
	return append([]string{reasoning}, in.Metadata...)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
