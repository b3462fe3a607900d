package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/reinkaoss/sifting-tool/internal/consensus"
	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/scoreline"
)

func sampleSubject() consensus.Subject {
	return consensus.Subject{
		SubjectID:    "3",
		Aggregate:    11,
		AggregateMax: 15,
		Scored:       true,
		Dimensions: map[string]schema.Value{
			"Q1": schema.Number(4),
			"Q2": schema.Number(3.5),
			"Q3": schema.Absent(),
		},
		Series:        []float64{10, 11, 12},
		Justification: "Good fit",
	}
}

const canonicalText = "# Results\n" +
	"1. **User 3 - Overall Score **10.00/15** - Q1: 3.00* Q2: 3.00* Q3: 3.00* - Good fit**\n" +
	"notes about User 3\n" +
	"2. **User 5 - Overall Score 9/15 - Q1: 2* - thin**\n"

func TestRewriteReport_ReplacesOnlyKnownSubjects(t *testing.T) {
	got := RewriteReport(canonicalText, map[string]consensus.Subject{"3": sampleSubject()}, schema.Default(), scoreline.DefaultGrammar())
	lines := strings.Split(got, "\n")

	want := "1. **User 3 - Overall Score **11.00/15** - Q1: 4.00* Q2: 3.50* Q3: N/A - Good fit**"
	if lines[1] != want {
		t.Errorf("line 1 =\n%s\nwant\n%s", lines[1], want)
	}
	if lines[2] != "notes about User 3" {
		t.Errorf("non-score line changed: %q", lines[2])
	}
	if lines[3] != "2. **User 5 - Overall Score 9/15 - Q1: 2* - thin**" {
		t.Errorf("subject without record changed: %q", lines[3])
	}
}

func TestRewriteReport_LineCountPreserved(t *testing.T) {
	inputs := []string{
		"",
		canonicalText,
		strings.TrimSuffix(canonicalText, "\n"),
		"\n\n\n",
	}
	subjects := map[string]consensus.Subject{"3": sampleSubject()}
	for _, in := range inputs {
		out := RewriteReport(in, subjects, schema.Default(), scoreline.DefaultGrammar())
		if got, want := strings.Count(out, "\n"), strings.Count(in, "\n"); got != want {
			t.Errorf("RewriteReport(%q) has %d newlines, want %d", in, got, want)
		}
	}
}

func TestRewriteReport_KeepsCRLF(t *testing.T) {
	in := strings.ReplaceAll(canonicalText, "\n", "\r\n")
	out := RewriteReport(in, map[string]consensus.Subject{"3": sampleSubject()}, schema.Default(), scoreline.DefaultGrammar())
	lines := strings.Split(out, "\n")
	for i, l := range lines[:len(lines)-1] {
		if !strings.HasSuffix(l, "\r") {
			t.Errorf("line %d lost its carriage return: %q", i, l)
		}
	}
	if !strings.Contains(lines[1], "11.00/15") {
		t.Errorf("score line not rewritten: %q", lines[1])
	}
}

func TestRewriteReport_FirstLineOnly(t *testing.T) {
	in := "User 3 - Overall Score 1/15 - x\nUser 3 - Overall Score 2/15 - y"
	out := RewriteReport(in, map[string]consensus.Subject{"3": sampleSubject()}, schema.Default(), scoreline.DefaultGrammar())
	lines := strings.Split(out, "\n")
	if !strings.HasPrefix(lines[0], "**User 3 - Overall Score **11.00/15**") {
		t.Errorf("first line not rewritten: %q", lines[0])
	}
	if lines[1] != "User 3 - Overall Score 2/15 - y" {
		t.Errorf("second line changed: %q", lines[1])
	}
}

func TestRewriteReport_Idempotent(t *testing.T) {
	shape := schema.ResolveCount(7, true)
	line := "1. **User 3 - Overall Score **12.50/15** - Q1: Yes Q2: No Q3: Yes Q4: 3.25* Q5: No Q6: 4.50* Q7: 4.75* - Solid grasp of the role.**"
	p, ok := scoreline.ParseLine(line, "3", shape, scoreline.DefaultGrammar())
	if !ok {
		t.Fatal("parse failed")
	}
	subjects := map[string]consensus.Subject{"3": consensus.Identity(shape, p)}
	if got := RewriteReport(line, subjects, shape, scoreline.DefaultGrammar()); got != line {
		t.Errorf("identity rewrite changed line:\n%s\n%s", line, got)
	}
}

func TestRenderJSON_RoundTrip(t *testing.T) {
	in := []consensus.Subject{sampleSubject()}
	b, err := RenderJSON(in)
	if err != nil {
		t.Fatalf("RenderJSON error: %v", err)
	}
	var got []consensus.Subject
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if len(got) != 1 || got[0].Aggregate != 11 || got[0].Dimensions["Q2"] != schema.Number(3.5) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got[0].Dimensions["Q3"].Present() {
		t.Error("absent dimension came back present")
	}
	if !strings.Contains(string(b), "\n  ") {
		t.Error("expected indentation in pretty-printed JSON output")
	}
}

func TestRenderJSON_Nil(t *testing.T) {
	if _, err := RenderJSON(nil); err == nil {
		t.Error("expected error for nil value, got nil")
	}
}

func TestRenderMarkdown(t *testing.T) {
	s := sampleSubject()
	s.Justification = "before|after"
	md := RenderMarkdown([]consensus.Subject{s}, []Failure{{SubjectID: "9", Reason: "no scores found in analysis"}}, schema.Default())

	for _, want := range []string{
		"**Scored:** 1 | **Failed:** 1",
		"| Subject | Score | Q1 | Q2 | Q3 | Runs | Justification |",
		"| 3 | 11.00/15 | 4.00 | 3.50 | N/A | 10.00, 11.00, 12.00 | before\\|after |",
		"- **9**: no scores found in analysis",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(nil, nil, schema.Default())
	if strings.Contains(md, "| Subject") || strings.Contains(md, "## Failed") {
		t.Errorf("empty input rendered sections:\n%s", md)
	}
}

func TestMdEscape(t *testing.T) {
	cases := []struct{ in, want string }{
		{"no pipes", "no pipes"},
		{"a|b", `a\|b`},
		{"line\r\nbreak", "line break"},
		{"", ""},
	}
	for _, c := range cases {
		got := mdEscape(c.in)
		if got != c.want {
			t.Errorf("mdEscape(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
