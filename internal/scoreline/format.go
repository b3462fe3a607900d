package scoreline

import (
	"strconv"
	"strings"

	"github.com/reinkaoss/sifting-tool/internal/schema"
)

// Fields are the values rendered into one canonical score line.
type Fields struct {
	Ordinal       string // omitted from the line when empty
	SubjectID     string
	Aggregate     float64
	AggregateMax  int
	Dimensions    map[string]schema.Value
	Justification string
}

// Format renders f using the canonical grammar. Dimensions appear in the
// shape's ascending key order; numeric values carry two decimals and the
// unit glyph, categorical values are written verbatim and missing values
// as "N/A".
func Format(f Fields, shape schema.Shape, g Grammar) string {
	g = g.withDefaults()
	var sb strings.Builder
	if f.Ordinal != "" {
		sb.WriteString(f.Ordinal)
		sb.WriteString(". ")
	}
	sb.WriteString("**")
	sb.WriteString(g.Label)
	sb.WriteByte(' ')
	sb.WriteString(f.SubjectID)
	sb.WriteString(" - ")
	sb.WriteString(g.Marker)
	sb.WriteString(" **")
	sb.WriteString(strconv.FormatFloat(f.Aggregate, 'f', 2, 64))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(f.AggregateMax))
	sb.WriteString("** - ")
	for i, key := range shape.Keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		v := f.Dimensions[key]
		sb.WriteString(key)
		sb.WriteString(": ")
		sb.WriteString(v.String())
		if v.Kind == schema.KindNumber {
			sb.WriteString(g.Unit)
		}
	}
	sb.WriteString(" - ")
	sb.WriteString(f.Justification)
	sb.WriteString("**")
	return sb.String()
}

// FieldsOf converts a parse back into formatter input.
func FieldsOf(p Parse) Fields {
	return Fields{
		Ordinal:       p.Ordinal,
		SubjectID:     p.SubjectID,
		Aggregate:     p.Aggregate,
		AggregateMax:  p.AggregateMax,
		Dimensions:    p.Dimensions,
		Justification: p.Justification,
	}
}
