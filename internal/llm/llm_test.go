package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/scoreline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockProvider is a test double for Provider. It is safe for concurrent use.
type mockProvider struct {
	mu        sync.Mutex
	responses []string // returned in call order; last entry is repeated if list exhausted
	failOn    int      // 1-based call number that returns an error; 0 disables
	callCount int
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (m *mockProvider) Complete(ctx context.Context, _, _ string, _ int, _ float64) (string, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxFlight.Load()
		if n <= cur || m.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	m.mu.Lock()
	m.callCount++
	call := m.callCount
	m.mu.Unlock()

	if m.failOn == call {
		return "", fmt.Errorf("mockProvider: call %d failed", call)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(m.responses) == 0 {
		return "", fmt.Errorf("mockProvider: no responses configured")
	}
	idx := call - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

// installMock replaces NewProvider with a factory returning mp, and restores
// the original after the test.
func installMock(t *testing.T, mp *mockProvider) {
	t.Helper()
	orig := NewProvider
	NewProvider = func(_, _, _ string) (Provider, error) { return mp, nil }
	t.Cleanup(func() { NewProvider = orig })
}

func TestGenerate_RunOrder(t *testing.T) {
	mp := &mockProvider{responses: []string{"same text"}}
	installMock(t, mp)

	p, err := NewProvider("openai", "", "key")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	runs, err := NewRunner(p, 3, nil).Generate(context.Background(), Request{User: "u"}, 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i, r := range runs {
		if r.Index != i+1 || r.Text != "same text" {
			t.Errorf("runs[%d] = %+v, want index %d", i, r, i+1)
		}
	}
	if mp.callCount != 3 {
		t.Errorf("callCount = %d, want 3", mp.callCount)
	}
}

func TestGenerate_DefaultPasses(t *testing.T) {
	mp := &mockProvider{responses: []string{"x"}}
	runs, err := NewRunner(mp, 0, nil).Generate(context.Background(), Request{}, 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(runs) != DefaultPasses {
		t.Errorf("got %d runs, want %d", len(runs), DefaultPasses)
	}
	if got := mp.maxFlight.Load(); got != 1 {
		t.Errorf("parallel 0 ran %d passes at once, want 1", got)
	}
}

func TestGenerate_BoundedParallelism(t *testing.T) {
	mp := &mockProvider{responses: []string{"x"}}
	if _, err := NewRunner(mp, 2, nil).Generate(context.Background(), Request{}, 6); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := mp.maxFlight.Load(); got > 2 {
		t.Errorf("max concurrent passes = %d, want <= 2", got)
	}
}

func TestGenerate_FailureIsAllOrNothing(t *testing.T) {
	mp := &mockProvider{responses: []string{"x"}, failOn: 2}
	runs, err := NewRunner(mp, 1, nil).Generate(context.Background(), Request{}, 3)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if runs != nil {
		t.Errorf("expected no runs on failure, got %d", len(runs))
	}
	var pe PassError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PassError, got %T: %v", err, err)
	}
	if pe.Pass != 2 {
		t.Errorf("PassError.Pass = %d, want 2", pe.Pass)
	}
}

func TestGenerate_EmptyCompletion(t *testing.T) {
	mp := &mockProvider{responses: []string{"```\n```"}}
	_, err := NewRunner(mp, 1, nil).Generate(context.Background(), Request{}, 1)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestGenerate_StripsFences(t *testing.T) {
	mp := &mockProvider{responses: []string{"```markdown\n1. **User 1 - Overall Score **10.00/15**\n```"}}
	runs, err := NewRunner(mp, 1, nil).Generate(context.Background(), Request{}, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if runs[0].Text != "1. **User 1 - Overall Score **10.00/15**" {
		t.Errorf("fence not stripped: %q", runs[0].Text)
	}
}

func TestStripMarkdownFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"```\nbody\n```", "body"},
		{"~~~text\nbody\n~~~\n", "body"},
		{"```md\ntruncated body", "truncated body"},
		{"  spaced  ", "spaced"},
	}
	for _, c := range cases {
		if got := stripMarkdownFences(c.in); got != c.want {
			t.Errorf("stripMarkdownFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTexts(t *testing.T) {
	got := Texts([]Run{{Index: 1, Text: "a"}, {Index: 2, Text: "b"}})
	if strings.Join(got, ",") != "a,b" {
		t.Errorf("Texts = %v", got)
	}
}

func TestDefaultNewProvider(t *testing.T) {
	if _, err := defaultNewProvider("bogus", "", "k"); err == nil {
		t.Error("expected error for unknown provider")
	}
	for _, name := range []string{"openai", "anthropic", "google"} {
		if _, err := defaultNewProvider(name, "", ""); err == nil {
			t.Errorf("%s: expected error for missing key", name)
		}
		p, err := defaultNewProvider(name, "", "k")
		if err != nil || p == nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
}

func TestDefaultModel(t *testing.T) {
	cases := map[string]string{
		"":          "gpt-4o-mini",
		"openai":    "gpt-4o-mini",
		"Anthropic": "claude-sonnet-4-5",
		"google":    "gemini-1.5-flash",
	}
	for in, want := range cases {
		if got := DefaultModel(in); got != want {
			t.Errorf("DefaultModel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildPrompt_Mixed(t *testing.T) {
	crit := schema.NewCriteria(
		"Right to work", "Do they have the right to work?",
		"Visa", "Do they need sponsorship?",
		"Maths", "GCSE maths grade 4 or above?",
		"Understanding", "Understanding of the role",
		"Available", "Available from September?",
		"Motivation", "Why this company",
		"Stand out", "What makes them stand out",
	)
	shape := schema.Resolve(crit, true)
	req, err := BuildPrompt(PromptInput{
		Client:         "Graduate Scheme",
		JobDescription: "Analyst",
		Criteria:       crit,
		Shape:          shape,
		Count:          2,
		Data:           []map[string]string{{"Row": "2"}, {"Row": "3"}},
	})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	for _, want := range []string{
		"Analyze the following job applications for Graduate Scheme",
		"Number of Applications: 2",
		"Q4:\nUnderstanding of the role",
		"Q1, Q2, Q3, Q5 are Yes/No",
		"(max 15)",
		ExampleLine(shape, scoreline.DefaultGrammar()),
		`"Row": "3"`,
	} {
		if !strings.Contains(req.User, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
	if strings.Contains(req.User, "Supporting References") {
		t.Error("empty supporting references should be omitted")
	}
	if req.MaxTokens != DefaultMaxTokens || req.System == "" {
		t.Errorf("unexpected request defaults: %+v", req)
	}
}

func TestBuildPrompt_NoCriteria(t *testing.T) {
	req, err := BuildPrompt(PromptInput{Client: "Acme", SupportingReferences: "ref"})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(req.User, "No specific criteria provided") {
		t.Error("missing default criteria note")
	}
	if !strings.Contains(req.User, "Supporting References:\nref") {
		t.Error("missing supporting references")
	}
}

func TestBuildPrompt_MarshalError(t *testing.T) {
	if _, err := BuildPrompt(PromptInput{Data: make(chan int)}); err == nil {
		t.Error("expected marshal error")
	}
}

func TestExampleLine(t *testing.T) {
	got := ExampleLine(schema.ResolveCount(7, true), scoreline.DefaultGrammar())
	want := "1. **User [number] - Overall Score **[X.XX]/15** - Q1: Yes/No Q2: Yes/No Q3: Yes/No Q4: [X.XX]* Q5: Yes/No Q6: [X.XX]* Q7: [X.XX]* - [brief reason]**"
	if got != want {
		t.Errorf("ExampleLine =\n%s\nwant\n%s", got, want)
	}
	got = ExampleLine(schema.Default(), scoreline.Grammar{Label: "Row"})
	if !strings.HasPrefix(got, "1. **Row [number] - Overall Score **[X.XX]/15** - Q1: [X.XX]*") {
		t.Errorf("ExampleLine with Row label = %s", got)
	}
}

// truncatingProvider reports every completion as cut off at the token limit.
type truncatingProvider struct{ text string }

func (p truncatingProvider) Complete(context.Context, string, string, int, float64) (string, error) {
	return completion(p.text, true)
}

func TestGenerate_TruncatedPassIsKept(t *testing.T) {
	runs, err := NewRunner(truncatingProvider{text: "User 1 - Overall Score 9/15"}, 2, nil).
		Generate(context.Background(), Request{MaxTokens: 10}, 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(runs) != 2 || runs[1].Text != "User 1 - Overall Score 9/15" {
		t.Errorf("runs = %+v", runs)
	}

	_, err = NewRunner(truncatingProvider{}, 1, nil).Generate(context.Background(), Request{}, 1)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("truncated empty text: err = %v, want ErrEmptyCompletion", err)
	}
}

func TestCompletion(t *testing.T) {
	if text, err := completion("x", false); text != "x" || err != nil {
		t.Errorf("completion(x, false) = %q, %v", text, err)
	}
	if text, err := completion("x", true); text != "x" || !errors.Is(err, ErrTruncated) {
		t.Errorf("completion(x, true) = %q, %v", text, err)
	}
}

func TestBuildPrompt_Reasoning(t *testing.T) {
	req, err := BuildPrompt(PromptInput{Client: "Acme", Grammar: scoreline.Grammar{Label: "Row"}, Reasoning: true})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.HasSuffix(req.User, "DETAILED REASONING:\nRow [number]: [detailed explanation on one line]") {
		t.Errorf("missing reasoning section request:\n%s", req.User)
	}

	req, _ = BuildPrompt(PromptInput{Client: "Acme"})
	if strings.Contains(req.User, scoreline.ReasoningHeading) {
		t.Error("reasoning section requested without Reasoning")
	}
}
