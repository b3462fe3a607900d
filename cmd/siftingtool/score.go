package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/reinkaoss/sifting-tool/internal/clients"
	"github.com/reinkaoss/sifting-tool/internal/columns"
	"github.com/reinkaoss/sifting-tool/internal/engine"
	"github.com/reinkaoss/sifting-tool/internal/render"
)

type scoreFlags struct {
	runs          []string
	subjects      []string
	client        string
	criteriaFile  string
	mixed         bool
	label         string
	canonical     int
	metadata      []string
	format        string
	out           string
	failOnMissing bool
}

func newScoreCmd(a *app) *cobra.Command {
	var f scoreFlags
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Aggregate saved analysis runs offline",
		Long: "score reads the text of each analysis run from a file, reconciles every\n" +
			"subject across the runs and prints the rewritten canonical report.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(a, f, cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringArrayVar(&f.runs, "run", nil, "analysis run file, in run order (repeatable)")
	fl.StringArrayVar(&f.subjects, "subject", nil, "subject id to score (repeatable; default: every subject in the canonical run)")
	fl.StringVar(&f.client, "client", "", "registered client whose criteria apply")
	fl.StringVar(&f.criteriaFile, "criteria", "", "YAML criteria mapping (instead of --client)")
	fl.BoolVar(&f.mixed, "mixed", false, "use the Yes/No plus graded layout with --criteria")
	fl.StringVar(&f.label, "label", "", `subject word in score lines (default "User")`)
	fl.IntVar(&f.canonical, "canonical", 1, "run whose prose is kept")
	fl.StringArrayVar(&f.metadata, "meta", nil, "metadata cell written after the justification (repeatable)")
	fl.StringVar(&f.format, "format", "report", "report, markdown or json")
	fl.StringVarP(&f.out, "out", "o", "", "write output to file instead of stdout")
	fl.BoolVar(&f.failOnMissing, "fail-on-missing", false, "exit 2 when a subject has no scores")
	return cmd
}

func runScore(a *app, f scoreFlags, stdout io.Writer) error {
	if len(f.runs) == 0 {
		return withCode(exitCodeBadInput, errors.New("score: at least one --run is required"))
	}
	switch f.format {
	case "report", "markdown", "json":
	default:
		return withCode(exitCodeBadInput, fmt.Errorf("score: unknown format %q", f.format))
	}

	client, err := scoreClient(a, f)
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}

	texts := make([]string, len(f.runs))
	for i, path := range f.runs {
		b, err := os.ReadFile(path)
		if err != nil {
			return withCode(exitCodeBadInput, fmt.Errorf("score: read run %d: %w", i+1, err))
		}
		texts[i] = string(b)
	}

	res, err := engine.New(a.logger).Run(engine.Input{
		Runs:      texts,
		Subjects:  f.subjects,
		Shape:     client.Shape(),
		Grammar:   client.Grammar(f.label),
		Canonical: f.canonical,
		Metadata:  f.metadata,
		Columns:   columns.Options{Stars: a.cfg.Sheets.Stars},
	})
	if err != nil {
		return withCode(exitCodeBadInput, err)
	}

	var out []byte
	switch f.format {
	case "report":
		out = []byte(res.Report)
	case "markdown":
		out = []byte(render.RenderMarkdown(res.Subjects(), res.RenderFailures(), res.Shape))
	case "json":
		if out, err = render.RenderJSON(res); err != nil {
			return err
		}
	}
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}

	if f.out != "" {
		if err := os.WriteFile(f.out, out, 0o644); err != nil {
			return fmt.Errorf("score: write output: %w", err)
		}
	} else if _, err := stdout.Write(out); err != nil {
		return err
	}

	if f.failOnMissing && len(res.Failed) > 0 {
		return withCode(exitCodeFailed, fmt.Errorf("score: %d of %d subjects failed: %w",
			len(res.Failed), len(res.Failed)+len(res.Succeeded), res.Failed[0]))
	}
	return nil
}

// scoreClient resolves the client from --criteria, --client or the
// default three-question layout.
func scoreClient(a *app, f scoreFlags) (clients.Client, error) {
	switch {
	case f.criteriaFile != "" && f.client != "":
		return clients.Client{}, errors.New("score: --client and --criteria are mutually exclusive")
	case f.criteriaFile != "":
		b, err := os.ReadFile(f.criteriaFile)
		if err != nil {
			return clients.Client{}, fmt.Errorf("score: read criteria: %w", err)
		}
		crit, err := clients.DecodeCriteria(b)
		if err != nil {
			return clients.Client{}, fmt.Errorf("score: criteria: %w", err)
		}
		layout := clients.LayoutNumeric
		if f.mixed {
			layout = clients.LayoutMixed
		}
		return clients.Client{Name: "custom", Criteria: crit, Layout: layout}, nil
	case f.client != "":
		reg, err := clients.Open(a.cfg.Storage.ClientsFile, a.logger)
		if err != nil {
			return clients.Client{}, err
		}
		c, err := reg.Get(f.client)
		if err != nil {
			return clients.Client{}, err
		}
		if f.mixed {
			c.Layout = clients.LayoutMixed
		}
		return c, nil
	}
	return clients.Client{Name: "default", Layout: clients.LayoutNumeric}, nil
}
