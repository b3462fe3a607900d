package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind distinguishes the three states a dimension value can be in.
type Kind int

const (
	// KindAbsent means no value was found (rendered as "N/A").
	KindAbsent Kind = iota
	KindNumber
	KindCategory
)

// Categorical answers.
const (
	Yes = "Yes"
	No  = "No"
	NA  = "N/A"
)

// Value is a single dimension score: a number, a Yes/No answer, or absent.
type Value struct {
	Kind   Kind
	Number float64
	Text   string
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// Category returns a categorical Value. Yes/No are normalised to their
// canonical capitalisation; anything else is kept verbatim.
func Category(s string) Value {
	switch strings.ToLower(s) {
	case "yes":
		s = Yes
	case "no":
		s = No
	}
	return Value{Kind: KindCategory, Text: s}
}

// Absent returns the missing value.
func Absent() Value { return Value{} }

// Present reports whether v holds a number or a category.
func (v Value) Present() bool { return v.Kind != KindAbsent }

// String renders numbers with two decimals, categories verbatim and
// absent values as "N/A".
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', 2, 64)
	case KindCategory:
		return v.Text
	default:
		return NA
	}
}

// MarshalJSON encodes numbers as JSON numbers and everything else as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindNumber {
		return json.Marshal(v.Number)
	}
	return json.Marshal(v.String())
}

// UnmarshalJSON reverses MarshalJSON.
func (v *Value) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*v = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == NA || s == "" {
		*v = Absent()
		return nil
	}
	*v = Category(s)
	return nil
}
