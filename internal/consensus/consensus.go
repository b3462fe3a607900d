// Package consensus reconciles the per-run parses of one subject into a
// single authoritative score. No I/O happens here.
package consensus

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/scoreline"
)

// CanonicalRun is the run whose prose and categorical answers are kept.
const CanonicalRun = 1

// Sample is one run's parse of a subject.
type Sample struct {
	Run   int // 1-based run index
	Parse scoreline.Parse
}

// Subject is the reconciled record for one subject.
type Subject struct {
	SubjectID     string                  `json:"subject_id"`
	Aggregate     float64                 `json:"aggregate"`
	AggregateMax  int                     `json:"aggregate_max"`
	Scored        bool                    `json:"scored"`
	Dimensions    map[string]schema.Value `json:"dimensions"`
	Series        []float64               `json:"series"`
	Justification string                  `json:"justification"`
	Reasoning     string                  `json:"reasoning,omitempty"`
	// DimensionSeries holds the raw numeric values behind each averaged
	// dimension, in run order.
	DimensionSeries map[string][]float64 `json:"dimension_series,omitempty"`
	// Ordinal is the list number of the subject's line in the canonical run.
	Ordinal string `json:"-"`
}

// Reconcile combines samples for subjectID.
//
// Rules:
//  1. Series is every numeric aggregate observed, in run order.
//  2. Aggregate is the mean of Series; an empty Series leaves 0 and Scored false.
//  3. AggregateMax is the first reported denominator, else the shape's maximum.
//  4. Numeric dimensions average the runs that produced a number, else N/A.
//  5. Categorical dimensions, the justification and the detailed reasoning
//     come from the canonical run only.
//
// samples is not modified.
func Reconcile(shape schema.Shape, subjectID string, samples []Sample, canonicalRun int) Subject {
	ordered := make([]Sample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Run < ordered[j].Run })

	out := Subject{
		SubjectID:       subjectID,
		Dimensions:      make(map[string]schema.Value, len(shape.Keys)),
		DimensionSeries: make(map[string][]float64),
		Series:          []float64{},
	}

	var canonical *scoreline.Parse
	for i := range ordered {
		p := &ordered[i].Parse
		if ordered[i].Run == canonicalRun && canonical == nil {
			canonical = p
		}
		if p.HasAggregate {
			out.Series = append(out.Series, p.Aggregate)
		}
		if out.AggregateMax == 0 && p.AggregateMax > 0 {
			out.AggregateMax = p.AggregateMax
		}
	}
	if out.AggregateMax == 0 {
		out.AggregateMax = shape.AggregateMax
	}
	if len(out.Series) > 0 {
		out.Aggregate = Mean(out.Series)
		out.Scored = true
	}

	for _, key := range shape.NumericKeys {
		var xs []float64
		for _, s := range ordered {
			if v := s.Parse.Dimensions[key]; v.Kind == schema.KindNumber {
				xs = append(xs, v.Number)
			}
		}
		if len(xs) == 0 {
			out.Dimensions[key] = schema.Absent()
			continue
		}
		out.Dimensions[key] = schema.Number(Mean(xs))
		out.DimensionSeries[key] = xs
	}

	for _, key := range shape.CategoricalKeys {
		out.Dimensions[key] = schema.Absent()
		if canonical == nil {
			continue
		}
		if v := canonical.Dimensions[key]; v.Kind == schema.KindCategory {
			out.Dimensions[key] = v
		}
	}

	if canonical != nil {
		out.Justification = canonical.Justification
		out.Reasoning = canonical.Reasoning
		out.Ordinal = canonical.Ordinal
	}
	return out
}

// Mean is the arithmetic mean of xs; it returns 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Identity builds the Subject a single parse reconciles to when it is the
// only sample. It is the identity step of the parse/rewrite round trip.
func Identity(shape schema.Shape, p scoreline.Parse) Subject {
	return Reconcile(shape, p.SubjectID, []Sample{{Run: CanonicalRun, Parse: p}}, CanonicalRun)
}
