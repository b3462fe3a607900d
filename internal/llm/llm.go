// Package llm handles completion-provider communication, prompt
// construction and the concurrent analysis passes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPasses is the number of independent analysis passes per batch.
const DefaultPasses = 3

var (
	// ErrEmptyCompletion is returned when a pass produced no text.
	ErrEmptyCompletion = errors.New("llm: empty completion")
	// ErrTruncated is returned by providers, together with the text, when
	// the completion stopped at the token limit. Runner keeps such text.
	ErrTruncated = errors.New("llm: completion truncated at token limit")
)

// Provider is the interface for completion backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model, apiKey string) (Provider, error) = defaultNewProvider

// DefaultModel returns the model used when none is configured.
func DefaultModel(providerName string) string {
	switch strings.ToLower(providerName) {
	case "anthropic":
		return "claude-sonnet-4-5"
	case "google":
		return "gemini-1.5-flash"
	default:
		return "gpt-4o-mini"
	}
}

// Request is one prompt sent to every pass.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Run is the text of one pass. Index is 1-based.
type Run struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// PassError reports the pass that failed.
type PassError struct {
	Pass int
	Err  error
}

func (e PassError) Error() string {
	return fmt.Sprintf("llm: pass %d: %v", e.Pass, e.Err)
}

func (e PassError) Unwrap() error { return e.Err }

// Runner issues analysis passes against a provider.
type Runner struct {
	provider Provider
	// Parallel bounds concurrent passes; values below 1 mean one at a time.
	Parallel int
	logger   *zap.Logger
}

// NewRunner returns a Runner. A nil logger discards output.
func NewRunner(p Provider, parallel int, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{provider: p, Parallel: parallel, logger: logger.Named("llm")}
}

// Generate issues passes independent completions of req and returns them in
// run order. Any failing pass cancels the rest and fails the whole call:
// no partial set of runs is ever returned.
func (r *Runner) Generate(ctx context.Context, req Request, passes int) ([]Run, error) {
	if passes < 1 {
		passes = DefaultPasses
	}
	limit := r.Parallel
	if limit < 1 {
		limit = 1
	}

	runs := make([]Run, passes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < passes; i++ {
		idx := i + 1
		g.Go(func() error {
			r.logger.Debug("pass started", zap.Int("pass", idx), zap.Int("of", passes))
			text, err := r.provider.Complete(gctx, req.System, req.User, req.MaxTokens, req.Temperature)
			if errors.Is(err, ErrTruncated) {
				r.logger.Warn("pass truncated; later subjects may be missing", zap.Int("pass", idx), zap.Int("max_tokens", req.MaxTokens))
				err = nil
			}
			if err != nil {
				return PassError{Pass: idx, Err: err}
			}
			text = stripMarkdownFences(text)
			if text == "" {
				return PassError{Pass: idx, Err: ErrEmptyCompletion}
			}
			runs[idx-1] = Run{Index: idx, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Warn("analysis passes failed", zap.Error(err))
		return nil, err
	}
	r.logger.Info("analysis passes complete", zap.Int("passes", passes))
	return runs, nil
}

// Texts returns the run texts in run order.
func Texts(runs []Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.Text
	}
	return out
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line (no closing fence required).
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes a code fence that wraps the whole response
// (e.g. "```markdown\n...\n```"). A truncated response keeps its content
// with only the opening fence line removed.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// completion returns text, flagged with ErrTruncated when the provider
// stopped at the token limit.
func completion(text string, truncated bool) (string, error) {
	if truncated {
		return text, ErrTruncated
	}
	return text, nil
}

func missingKey(provider, env string) error {
	return fmt.Errorf("llm: %s: no API key configured (set %s)", provider, env)
}

// ── Provider dispatch ─────────────────────────────────────────────────────────

// defaultNewProvider dispatches to the appropriate provider implementation.
func defaultNewProvider(providerName, model, apiKey string) (Provider, error) {
	if model == "" {
		model = DefaultModel(providerName)
	}
	switch strings.ToLower(providerName) {
	case "openai", "":
		return newOpenAIProvider(model, apiKey)
	case "anthropic":
		return newAnthropicProvider(model, apiKey)
	case "google":
		return newGoogleProvider(model, apiKey)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}
