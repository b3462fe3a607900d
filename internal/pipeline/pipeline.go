// Package pipeline runs an analysis batch end to end: build the prompt,
// issue the passes, aggregate them with the engine and write the results
// back to the sheet.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reinkaoss/sifting-tool/internal/archive"
	"github.com/reinkaoss/sifting-tool/internal/clients"
	"github.com/reinkaoss/sifting-tool/internal/columns"
	"github.com/reinkaoss/sifting-tool/internal/engine"
	"github.com/reinkaoss/sifting-tool/internal/llm"
	"github.com/reinkaoss/sifting-tool/internal/sheets"
)

// RowLabel is the subject word used for sheet rows.
const RowLabel = "Row"

// ErrNoRows is returned by AnalyzeRows when no rows were selected.
var ErrNoRows = errors.New("pipeline: no rows selected")

// Archiver stores finished batches.
type Archiver interface {
	Save(ctx context.Context, b archive.Batch) error
}

// Notifier forwards finished batches.
type Notifier interface {
	Notify(ctx context.Context, event any) error
}

// Options configures an Analyzer. Zero values take defaults.
type Options struct {
	Passes      int
	StartColumn int  // first analysis column; 0 means sheets.AnalysisStartColumn
	Stars       bool // render graded dimensions as star formulas
	MaxTokens   int
	Temperature float64
	// Timeout bounds the passes of one batch; 0 means no limit.
	Timeout  time.Duration
	Archive  Archiver
	Notifier Notifier
}

// Analyzer runs analysis batches.
type Analyzer struct {
	runner *llm.Runner
	engine *engine.Engine
	sheets sheets.Opener
	opts   Options
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

// New returns an Analyzer. opener may be nil when only AnalyzeRecords is used.
func New(runner *llm.Runner, opener sheets.Opener, opts Options, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Passes < 1 {
		opts.Passes = llm.DefaultPasses
	}
	if opts.StartColumn < 1 {
		opts.StartColumn = sheets.AnalysisStartColumn
	}
	return &Analyzer{
		runner: runner,
		engine: engine.New(logger),
		sheets: opener,
		opts:   opts,
		logger: logger.Named("pipeline"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RowsRequest selects sheet rows to analyze.
type RowsRequest struct {
	Client               clients.Client
	JobDescription       string
	SupportingReferences string
	SpreadsheetID        string
	GID                  string
	Rows                 []int
}

// RowResult is a row whose analysis was written.
type RowResult struct {
	Row       int     `json:"row"`
	Name      string  `json:"name"`
	Score     string  `json:"score"`
	Range     string  `json:"range"`
	Aggregate float64 `json:"aggregate"`
}

// RowFailure is a row that was not written.
type RowFailure struct {
	Row   int    `json:"row"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Outcome is the result of one sheet batch.
type Outcome struct {
	BatchID       string            `json:"batch_id"`
	Client        string            `json:"client"`
	AnalyzedCount int               `json:"analyzed_count"`
	FailedCount   int               `json:"failed_count"`
	Results       []RowResult       `json:"results"`
	Failed        []RowFailure      `json:"failed"`
	Report        string            `json:"report,omitempty"`
	Mismatches    []engine.Mismatch `json:"mismatches,omitempty"`
}

// AnalyzeRows analyzes the selected sheet rows and writes one row of cells
// per scored applicant, starting at the analysis start column. A write
// error fails only its own row. Errors returned are batch-level: the
// sheet could not be read, the rows are invalid or a pass failed.
func (a *Analyzer) AnalyzeRows(ctx context.Context, req RowsRequest) (*Outcome, error) {
	if len(req.Rows) == 0 {
		return nil, ErrNoRows
	}
	if a.sheets == nil {
		return nil, errors.New("pipeline: no sheet store configured")
	}
	store, err := a.sheets.Open(ctx, req.SpreadsheetID, req.GID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open sheet: %w", err)
	}
	rows, err := store.ReadRows(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("pipeline: read sheet: %w", err)
	}
	apps, err := sheets.Select(rows, req.Rows, a.opts.StartColumn)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	data := make([]sheets.Prompt, len(apps))
	subjects := make([]string, len(apps))
	names := make(map[string]string, len(apps))
	for i, app := range apps {
		data[i] = app.PromptData()
		subjects[i] = strconv.Itoa(app.Row)
		names[subjects[i]] = app.Name()
	}

	shape := req.Client.Shape()
	grammar := req.Client.Grammar(RowLabel)
	prompt, err := llm.BuildPrompt(llm.PromptInput{
		Client:               req.Client.Name,
		JobDescription:       req.JobDescription,
		SupportingReferences: req.SupportingReferences,
		Criteria:             req.Client.Criteria,
		Shape:                shape,
		Grammar:              grammar,
		Count:                len(apps),
		Data:                 data,
		Reasoning:            true,
	})
	if err != nil {
		return nil, err
	}
	runs, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	in := engine.Input{
		Runs:      llm.Texts(runs),
		Subjects:  subjects,
		Shape:     shape,
		Grammar:   grammar,
		Metadata:  []string{a.now().Format("2006-01-02 15:04:05"), req.Client.Name, req.JobDescription},
		Reasoning: true,
		Columns:   columns.Options{Stars: a.opts.Stars},
	}
	res, err := a.engine.Run(in)
	if err != nil {
		return nil, fmt.Errorf("pipeline: aggregate: %w", err)
	}

	out := &Outcome{
		BatchID:    a.newID(),
		Client:     req.Client.Name,
		Results:    []RowResult{},
		Failed:     []RowFailure{},
		Report:     res.Report,
		Mismatches: res.Mismatches,
	}
	width := columns.Width(shape, in.MetaCount())
	for _, row := range res.Succeeded {
		n, _ := strconv.Atoi(row.SubjectID)
		rng := columns.Range("", a.opts.StartColumn, n, width)
		if err := store.WriteCells(ctx, rng, row.Cells); err != nil {
			a.logger.Warn("row write failed", zap.Int("row", n), zap.String("range", rng), zap.Error(err))
			out.Failed = append(out.Failed, RowFailure{Row: n, Name: names[row.SubjectID], Error: err.Error()})
			continue
		}
		out.Results = append(out.Results, RowResult{
			Row:       n,
			Name:      names[row.SubjectID],
			Score:     fmt.Sprintf("%.2f/%d", row.Aggregate, row.AggregateMax),
			Range:     rng,
			Aggregate: row.Aggregate,
		})
	}
	for _, f := range res.Failed {
		n, _ := strconv.Atoi(f.SubjectID)
		out.Failed = append(out.Failed, RowFailure{Row: n, Name: names[f.SubjectID], Error: f.Reason})
	}
	out.AnalyzedCount = len(out.Results)
	out.FailedCount = len(out.Failed)

	a.logger.Info("sheet batch complete",
		zap.String("batch", out.BatchID),
		zap.String("client", out.Client),
		zap.Int("analyzed", out.AnalyzedCount),
		zap.Int("failed", out.FailedCount))
	a.finish(ctx, "sheet", out.BatchID, out.Client, runs, out.Report, out.AnalyzedCount, out.FailedCount, out)
	return out, nil
}

// RecordsRequest carries inline applicant records.
type RecordsRequest struct {
	Client               clients.Client
	JobDescription       string
	SupportingReferences string
	// Records are sent to the model as-is; subject n is "User n".
	Records any
	Count   int
}

// RecordsOutcome is the result of one inline batch.
type RecordsOutcome struct {
	BatchID    string            `json:"batch_id"`
	Client     string            `json:"client"`
	Analysis   string            `json:"analysis"`
	Count      int               `json:"userCount"`
	Succeeded  []engine.Row      `json:"succeeded"`
	Failed     []engine.Failure  `json:"failed"`
	Mismatches []engine.Mismatch `json:"mismatches,omitempty"`
}

// AnalyzeRecords analyzes inline records without touching a sheet and
// returns the rewritten canonical report.
func (a *Analyzer) AnalyzeRecords(ctx context.Context, req RecordsRequest) (*RecordsOutcome, error) {
	if req.Count < 1 {
		return nil, errors.New("pipeline: record count must be positive")
	}
	subjects := make([]string, req.Count)
	for i := range subjects {
		subjects[i] = strconv.Itoa(i + 1)
	}
	shape := req.Client.Shape()
	grammar := req.Client.Grammar("")
	prompt, err := llm.BuildPrompt(llm.PromptInput{
		Client:               req.Client.Name,
		JobDescription:       req.JobDescription,
		SupportingReferences: req.SupportingReferences,
		Criteria:             req.Client.Criteria,
		Shape:                shape,
		Grammar:              grammar,
		Count:                req.Count,
		Data:                 req.Records,
	})
	if err != nil {
		return nil, err
	}
	runs, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	res, err := a.engine.Run(engine.Input{
		Runs:     llm.Texts(runs),
		Subjects: subjects,
		Shape:    shape,
		Grammar:  grammar,
		Metadata: []string{req.Client.Name},
		Columns:  columns.Options{Stars: a.opts.Stars},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: aggregate: %w", err)
	}

	out := &RecordsOutcome{
		BatchID:    a.newID(),
		Client:     req.Client.Name,
		Analysis:   res.Report,
		Count:      req.Count,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		Mismatches: res.Mismatches,
	}
	a.logger.Info("record batch complete",
		zap.String("batch", out.BatchID),
		zap.Int("succeeded", len(out.Succeeded)),
		zap.Int("failed", len(out.Failed)))
	a.finish(ctx, "records", out.BatchID, out.Client, runs, out.Analysis, len(out.Succeeded), len(out.Failed), out)
	return out, nil
}

// generate issues the passes for one batch.
func (a *Analyzer) generate(ctx context.Context, req llm.Request) ([]llm.Run, error) {
	if a.opts.MaxTokens > 0 {
		req.MaxTokens = a.opts.MaxTokens
	}
	req.Temperature = a.opts.Temperature
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	runs, err := a.runner.Generate(ctx, req, a.opts.Passes)
	if err != nil {
		return nil, fmt.Errorf("pipeline: analysis failed: %w", err)
	}
	return runs, nil
}

// finish archives and forwards a batch. Failures are logged only.
func (a *Analyzer) finish(ctx context.Context, source, id, client string, runs []llm.Run, report string, ok, failed int, outcome any) {
	if a.opts.Archive != nil {
		results, err := json.Marshal(outcome)
		if err == nil {
			err = a.opts.Archive.Save(ctx, archive.Batch{
				ID:        id,
				Client:    client,
				Source:    source,
				CreatedAt: a.now(),
				Runs:      llm.Texts(runs),
				Report:    report,
				Succeeded: ok,
				Failed:    failed,
				Results:   results,
			})
		}
		if err != nil {
			a.logger.Warn("archive failed", zap.String("batch", id), zap.Error(err))
		}
	}
	if a.opts.Notifier != nil {
		if err := a.opts.Notifier.Notify(ctx, outcome); err != nil {
			a.logger.Warn("webhook failed", zap.String("batch", id), zap.Error(err))
		}
	}
}
