// Package columns maps a reconciled subject onto an ordered row of output
// cells and computes spreadsheet ranges for it.
package columns

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reinkaoss/sifting-tool/internal/consensus"
	"github.com/reinkaoss/sifting-tool/internal/schema"
)

// SeriesSlots is the fixed number of raw-aggregate audit columns.
const SeriesSlots = 3

// Cell is one output value. Formula cells are evaluated by the store;
// everything else is written as a literal string.
type Cell struct {
	Value   string `json:"value"`
	Formula bool   `json:"formula,omitempty"`
}

// Literal returns a literal cell.
func Literal(s string) Cell { return Cell{Value: s} }

// Formula returns a formula cell.
func Formula(expr string) Cell { return Cell{Value: expr, Formula: true} }

// Options control how values are rendered.
type Options struct {
	// Stars renders numeric dimensions as a star-glyph formula.
	Stars bool
}

// Width is the number of cells Cells produces for shape and metaCount
// metadata fields: aggregate, one per dimension, justification, metadata,
// then the series slots.
func Width(shape schema.Shape, metaCount int) int {
	return 1 + shape.DimensionCount + 1 + metaCount + SeriesSlots
}

// Cells builds the row for s. The order is fixed:
//
//	[aggregate, dimensions ascending..., justification, metadata..., series]
//
// The series occupies SeriesSlots cells, left-padded with empty strings when
// fewer runs reported an aggregate; only the first SeriesSlots values are kept
// when more did. len(result) == Width(shape, len(metadata)).
func Cells(s consensus.Subject, shape schema.Shape, metadata []string, opts Options) []Cell {
	out := make([]Cell, 0, Width(shape, len(metadata)))
	out = append(out, Literal(number(s.Aggregate)))

	for _, key := range shape.Keys {
		v := s.Dimensions[key]
		if v.Kind == schema.KindNumber && opts.Stars {
			out = append(out, Formula(StarFormula(v.Number)))
			continue
		}
		out = append(out, Literal(v.String()))
	}

	out = append(out, Literal(s.Justification))
	for _, m := range metadata {
		out = append(out, Literal(m))
	}

	series := s.Series
	if len(series) > SeriesSlots {
		series = series[:SeriesSlots]
	}
	for i := len(series); i < SeriesSlots; i++ {
		out = append(out, Literal(""))
	}
	for _, x := range series {
		out = append(out, Literal(number(x)))
	}
	return out
}

// StarFormula renders n as a run of star glyphs followed by the value,
// e.g. =REPT(CHAR(9733),ROUND(4.33,0))&" 4.33".
func StarFormula(n float64) string {
	v := number(n)
	return fmt.Sprintf(`=REPT(CHAR(9733),ROUND(%s,0))&" %s"`, v, v)
}

func number(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

// ColumnLetter converts a 1-based column number into its letter address:
// 1 → A, 26 → Z, 27 → AA.
func ColumnLetter(n int) string {
	if n < 1 {
		return ""
	}
	var b []byte
	for n > 0 {
		n--
		b = append(b, byte('A'+n%26))
		n /= 26
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// ColumnNumber is the inverse of ColumnLetter. It returns 0 for input that
// is not a letter address.
func ColumnNumber(letters string) int {
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0
		}
		n = n*26 + int(r-'A'+1)
	}
	return n
}

// Range returns the single-row A1 range covering width cells that start at
// startCol (1-based) on row, e.g. Range("", 22, 7, 9) = "V7:AD7". A non-empty
// sheet title is prefixed and quoted.
func Range(sheet string, startCol, row, width int) string {
	r := fmt.Sprintf("%s%d:%s%d", ColumnLetter(startCol), row, ColumnLetter(startCol+width-1), row)
	if sheet == "" {
		return r
	}
	return QuoteSheet(sheet) + "!" + r
}

// QuoteSheet wraps a sheet title in single quotes, doubling any embedded
// quote.
func QuoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// ParseCell splits an A1 cell reference such as "AD12" into its 1-based
// column and row.
func ParseCell(ref string) (col, row int, err error) {
	i := 0
	for i < len(ref) && (ref[i] >= 'A' && ref[i] <= 'Z' || ref[i] >= 'a' && ref[i] <= 'z') {
		i++
	}
	col = ColumnNumber(ref[:i])
	row, convErr := strconv.Atoi(ref[i:])
	if col == 0 || convErr != nil || row < 1 {
		return 0, 0, fmt.Errorf("columns: invalid cell reference %q", ref)
	}
	return col, row, nil
}
