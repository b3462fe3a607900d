// Package schema defines the canonical scoring data types and resolves a
// client's criteria into the dimension layout used by the parser, the
// consensus aggregator and the column mapper.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxStars is the top of the graded scale for a numeric dimension.
const MaxStars = 5

// categoricalPositions are the 1-based dimension positions that hold Yes/No
// answers in the mixed layout.
var categoricalPositions = map[int]bool{1: true, 2: true, 3: true, 5: true}

// defaultDimensions is used when no criteria are supplied.
const defaultDimensions = 3

// Criteria is an ordered mapping of question identifiers to rubric text.
// Keys keeps the caller's order; Rubrics is keyed by the same identifiers.
type Criteria struct {
	Keys    []string
	Rubrics map[string]string
}

// NewCriteria builds Criteria from alternating key, rubric pairs.
// It panics on an odd argument count; it is meant for literals and tests.
func NewCriteria(pairs ...string) Criteria {
	if len(pairs)%2 != 0 {
		panic("schema: NewCriteria requires key/rubric pairs")
	}
	c := Criteria{Rubrics: make(map[string]string, len(pairs)/2)}
	for i := 0; i < len(pairs); i += 2 {
		c.Set(pairs[i], pairs[i+1])
	}
	return c
}

// Set appends key (or replaces its rubric if already present).
func (c *Criteria) Set(key, rubric string) {
	if c.Rubrics == nil {
		c.Rubrics = make(map[string]string)
	}
	if _, ok := c.Rubrics[key]; !ok {
		c.Keys = append(c.Keys, key)
	}
	c.Rubrics[key] = rubric
}

// Clone returns a deep copy of c.
func (c Criteria) Clone() Criteria {
	if c.Keys == nil && c.Rubrics == nil {
		return Criteria{}
	}
	out := Criteria{
		Keys:    append([]string(nil), c.Keys...),
		Rubrics: make(map[string]string, len(c.Rubrics)),
	}
	for k, v := range c.Rubrics {
		out.Rubrics[k] = v
	}
	return out
}

// Len returns the number of criteria entries.
func (c Criteria) Len() int { return len(c.Keys) }

// Shape is the resolved dimension layout for one scoring call.
type Shape struct {
	DimensionCount  int
	Keys            []string // every dimension key, ascending ("Q1", "Q2", ...)
	NumericKeys     []string
	CategoricalKeys []string
	AggregateMax    int
	Mixed           bool
}

// Resolve computes the Shape for criteria. mixed selects the fixed
// categorical-plus-numeric layout; otherwise every dimension is numeric.
// Empty criteria fall back to the default three-dimension numeric shape.
// Resolve never fails.
func Resolve(c Criteria, mixed bool) Shape {
	n := c.Len()
	if n == 0 {
		return Default()
	}
	return ResolveCount(n, mixed)
}

// ResolveCount builds a Shape for n dimensions. n < 1 yields Default().
func ResolveCount(n int, mixed bool) Shape {
	if n < 1 {
		return Default()
	}
	s := Shape{DimensionCount: n, Mixed: mixed}
	for i := 1; i <= n; i++ {
		key := DimensionKey(i)
		s.Keys = append(s.Keys, key)
		if mixed && categoricalPositions[i] {
			s.CategoricalKeys = append(s.CategoricalKeys, key)
		} else {
			s.NumericKeys = append(s.NumericKeys, key)
		}
	}
	s.AggregateMax = MaxStars * len(s.NumericKeys)
	return s
}

// Default returns the fallback shape: Q1..Q3, all numeric, max 15.
func Default() Shape {
	return ResolveCount(defaultDimensions, false)
}

// IsCategorical reports whether key is a Yes/No dimension in s.
func (s Shape) IsCategorical(key string) bool {
	for _, k := range s.CategoricalKeys {
		if k == key {
			return true
		}
	}
	return false
}

// DimensionKey returns the canonical key for 1-based position i.
func DimensionKey(i int) string {
	return "Q" + strconv.Itoa(i)
}

// DimensionIndex parses a canonical key back to its 1-based position.
func DimensionIndex(key string) (int, error) {
	if !strings.HasPrefix(key, "Q") {
		return 0, fmt.Errorf("schema: invalid dimension key %q", key)
	}
	i, err := strconv.Atoi(key[1:])
	if err != nil || i < 1 {
		return 0, fmt.Errorf("schema: invalid dimension key %q", key)
	}
	return i, nil
}
