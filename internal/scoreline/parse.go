package scoreline

import (
	"strconv"
	"strings"

	"github.com/reinkaoss/sifting-tool/internal/schema"
)

// Grammar names the fixed words of a score line.
type Grammar struct {
	Label  string // word preceding the subject id, e.g. "User" or "Row"
	Marker string // aggregate-score marker, e.g. "Overall Score"
	Unit   string // graded-unit glyph written after numeric dimensions
}

// DefaultGrammar is the grammar requested from the completion service.
func DefaultGrammar() Grammar {
	return Grammar{Label: "User", Marker: "Overall Score", Unit: "*"}
}

func (g Grammar) withDefaults() Grammar {
	d := DefaultGrammar()
	if g.Label == "" {
		g.Label = d.Label
	}
	if g.Marker == "" {
		g.Marker = d.Marker
	}
	if g.Unit == "" {
		g.Unit = d.Unit
	}
	return g
}

// Form identifies which aggregate pattern matched.
type Form int

const (
	FormNone       Form = iota
	FormEmphasised      // **12.50/15**
	FormFraction        // 12.50/15
	FormBare            // 12.50
)

func (f Form) String() string {
	switch f {
	case FormEmphasised:
		return "emphasised"
	case FormFraction:
		return "fraction"
	case FormBare:
		return "bare"
	default:
		return "none"
	}
}

// Parse is one subject's extraction from one run.
type Parse struct {
	SubjectID        string
	Line             int // 0-based line index within the run text
	Ordinal          string
	Aggregate        float64
	AggregateMax     int // 0 when the line carried no denominator
	HasAggregate     bool
	Form             Form
	Dimensions       map[string]schema.Value // one entry per shape key
	Justification    string
	HasJustification bool
	// Reasoning is the subject's detailed-reasoning excerpt; only ParseRun
	// fills it.
	Reasoning string
}

// ParseRun scans text for the first score line whose subject is
// subjectID. ok is false when no such line exists.
func ParseRun(text, subjectID string, shape schema.Shape, g Grammar) (p Parse, ok bool) {
	for i, line := range strings.Split(text, "\n") {
		if p, ok = ParseLine(line, subjectID, shape, g); ok {
			p.Line = i
			p.Reasoning = DetailedReasoning(text, subjectID, g)
			return p, true
		}
	}
	return Parse{}, false
}

// ParseLine extracts subjectID's scores from a single line. The line
// belongs to the first "<Label> <id>" it names, which must precede the
// aggregate marker; later mentions in the prose do not count.
func ParseLine(line, subjectID string, shape schema.Shape, g Grammar) (Parse, bool) {
	g = g.withDefaults()
	toks := lex(line)
	id, markEnd, ok := scoreLine(toks, g)
	if !ok || id != subjectID {
		return Parse{}, false
	}

	p := Parse{
		SubjectID:  subjectID,
		Dimensions: make(map[string]schema.Value, len(shape.Keys)),
	}
	p.Ordinal, _ = leadingOrdinal(line)

	scoreEnd := markEnd
	for _, af := range aggregateForms {
		if m, ok := af.match(toks, markEnd); ok {
			p.Aggregate = m.value
			p.AggregateMax = m.max
			p.HasAggregate = true
			p.Form = af.form
			scoreEnd = m.end
			break
		}
	}

	for _, key := range shape.Keys {
		v, end := dimension(toks, markEnd, key, shape.IsCategorical(key))
		p.Dimensions[key] = v
		if v.Present() && end > scoreEnd {
			scoreEnd = end
		}
	}

	for j := scoreEnd; j < len(toks); j++ {
		if toks[j].kind != tokDash {
			continue
		}
		just := strings.TrimSpace(line[toks[j].end:])
		just = strings.TrimSpace(strings.TrimRight(just, "*"))
		if just != "" {
			p.Justification = just
			p.HasJustification = true
		}
		break
	}
	return p, true
}

// SubjectOf returns the subject id of a score line: the first "<Label> <id>"
// on a line that carries the aggregate marker after it.
func SubjectOf(line string, g Grammar) (string, bool) {
	g = g.withDefaults()
	id, _, ok := scoreLine(lex(line), g)
	return id, ok
}

// scoreLine returns the subject of a score line and the token index just
// past its aggregate marker.
func scoreLine(toks []token, g Grammar) (id string, markEnd int, ok bool) {
	id, idx, ok := subjectIn(toks, g.Label)
	if !ok {
		return "", 0, false
	}
	markEnd, ok = markerEnd(toks, g.Marker)
	if !ok || idx >= markEnd {
		return "", 0, false
	}
	return id, markEnd, true
}

// Subjects lists the distinct subject ids of every score line in text, in
// order of first appearance.
func Subjects(text string, g Grammar) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, line := range strings.Split(text, "\n") {
		id, ok := SubjectOf(line, g)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// subjectIn finds the first "<label> <id>" pair in toks.
func subjectIn(toks []token, label string) (id string, idx int, ok bool) {
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].kind != tokWord || !strings.EqualFold(toks[i].text, label) {
			continue
		}
		next := toks[i+1]
		if next.kind == tokWord || next.kind == tokNumber {
			return next.text, i, true
		}
	}
	return "", 0, false
}

// markerEnd returns the index just past the first occurrence of the marker
// words.
func markerEnd(toks []token, marker string) (int, bool) {
	words := strings.Fields(marker)
	if len(words) == 0 {
		return 0, false
	}
outer:
	for i := 0; i+len(words) <= len(toks); i++ {
		for k, w := range words {
			t := toks[i+k]
			if t.kind != tokWord || !strings.EqualFold(t.text, w) {
				continue outer
			}
		}
		return i + len(words), true
	}
	return 0, false
}

type aggregateMatch struct {
	value float64
	max   int
	end   int
}

type aggregateForm struct {
	form  Form
	match func(toks []token, i int) (aggregateMatch, bool)
}

// aggregateForms are tried in order; the first match wins.
var aggregateForms = []aggregateForm{
	{FormEmphasised, matchEmphasised},
	{FormFraction, matchFraction},
	{FormBare, matchBare},
}

func at(toks []token, i int, kind tokenKind) bool {
	return i < len(toks) && toks[i].kind == kind
}

// skip advances past any tokens of the given kinds.
func skip(toks []token, i int, kinds ...tokenKind) int {
	for i < len(toks) {
		found := false
		for _, k := range kinds {
			if toks[i].kind == k {
				found = true
				break
			}
		}
		if !found {
			return i
		}
		i++
	}
	return i
}

func matchEmphasised(toks []token, i int) (aggregateMatch, bool) {
	i = skip(toks, i, tokColon)
	if !at(toks, i, tokEmph) {
		return aggregateMatch{}, false
	}
	m, ok := fraction(toks, i+1)
	if !ok || !at(toks, m.end, tokEmph) {
		return aggregateMatch{}, false
	}
	m.end++
	return m, true
}

func matchFraction(toks []token, i int) (aggregateMatch, bool) {
	return fraction(toks, skip(toks, i, tokColon, tokEmph))
}

func matchBare(toks []token, i int) (aggregateMatch, bool) {
	i = skip(toks, i, tokColon, tokEmph)
	if !at(toks, i, tokNumber) {
		return aggregateMatch{}, false
	}
	v, err := strconv.ParseFloat(toks[i].text, 64)
	if err != nil {
		return aggregateMatch{}, false
	}
	return aggregateMatch{value: v, end: i + 1}, true
}

func fraction(toks []token, i int) (aggregateMatch, bool) {
	if !at(toks, i, tokNumber) || !at(toks, i+1, tokSlash) || !at(toks, i+2, tokNumber) {
		return aggregateMatch{}, false
	}
	v, err := strconv.ParseFloat(toks[i].text, 64)
	if err != nil {
		return aggregateMatch{}, false
	}
	mx, err := strconv.ParseFloat(toks[i+2].text, 64)
	if err != nil {
		return aggregateMatch{}, false
	}
	return aggregateMatch{value: v, max: int(mx), end: i + 3}, true
}

// dimension finds "<key>: <value>" at or after from. Numeric keys require
// a number followed by a unit glyph; categorical keys require Yes or No.
// The first occurrence that yields a value wins.
func dimension(toks []token, from int, key string, categorical bool) (schema.Value, int) {
	for i := from; i+2 < len(toks); i++ {
		if toks[i].kind != tokWord || !strings.EqualFold(toks[i].text, key) || toks[i+1].kind != tokColon {
			continue
		}
		j := skip(toks, i+2, tokPunct)
		if j >= len(toks) {
			break
		}
		t := toks[j]
		if categorical {
			if t.kind == tokWord && (equalFold(t.text, schema.Yes) || equalFold(t.text, schema.No)) {
				return schema.Category(strings.TrimRight(t.text, ".,;!")), j + 1
			}
			continue
		}
		if t.kind == tokNumber && at(toks, j+1, tokUnit) {
			if f, err := strconv.ParseFloat(t.text, 64); err == nil {
				return schema.Number(f), j + 2
			}
		}
	}
	return schema.Absent(), from
}

// Ordinal returns the list number a line starts with ("3" for "3. ..."),
// or "" when the line is not a numbered item.
func Ordinal(line string) string {
	n, _ := leadingOrdinal(line)
	return n
}
