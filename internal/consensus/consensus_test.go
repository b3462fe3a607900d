package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/scoreline"
)

func numericParse(id string, agg float64, dims map[string]float64) scoreline.Parse {
	p := scoreline.Parse{
		SubjectID:    id,
		Aggregate:    agg,
		AggregateMax: 15,
		HasAggregate: true,
		Dimensions:   map[string]schema.Value{},
	}
	for k, v := range dims {
		p.Dimensions[k] = schema.Number(v)
	}
	return p
}

func TestReconcile_ThreeRunsNumeric(t *testing.T) {
	shape := schema.Default()
	samples := []Sample{
		{Run: 1, Parse: numericParse("3", 10, map[string]float64{"Q1": 3})},
		{Run: 2, Parse: numericParse("3", 11, map[string]float64{"Q1": 4})},
		{Run: 3, Parse: numericParse("3", 12, map[string]float64{"Q1": 5})},
	}
	got := Reconcile(shape, "3", samples, CanonicalRun)

	assert.True(t, got.Scored)
	assert.InDelta(t, 11.0, got.Aggregate, 1e-9)
	assert.Equal(t, 15, got.AggregateMax)
	assert.Equal(t, []float64{10, 11, 12}, got.Series)
	assert.Equal(t, schema.Number(4), got.Dimensions["Q1"])
	assert.Equal(t, []float64{3, 4, 5}, got.DimensionSeries["Q1"])
	assert.False(t, got.Dimensions["Q2"].Present(), "Q2 never parsed; want N/A")
}

func TestReconcile_SubjectMissingFromOneRun(t *testing.T) {
	samples := []Sample{
		{Run: 3, Parse: numericParse("5", 13, nil)},
		{Run: 1, Parse: numericParse("5", 9, nil)},
	}
	got := Reconcile(schema.Default(), "5", samples, CanonicalRun)

	assert.InDelta(t, 11.0, got.Aggregate, 1e-9)
	assert.Equal(t, []float64{9, 13}, got.Series, "series is in run order and not padded")
	assert.Equal(t, 3, samples[0].Run, "input must not be reordered")
}

func TestReconcile_CategoricalFromCanonicalOnly(t *testing.T) {
	shape := schema.ResolveCount(7, true)
	run1 := numericParse("8", 12, map[string]float64{"Q4": 4})
	run1.Dimensions["Q2"] = schema.Category("Yes")
	run1.Justification = "canonical prose"
	run2 := numericParse("8", 13, map[string]float64{"Q4": 5})
	run2.Dimensions["Q2"] = schema.Category("No")
	run2.Dimensions["Q3"] = schema.Category("Yes")
	run2.Justification = "other prose"

	got := Reconcile(shape, "8", []Sample{{1, run1}, {2, run2}}, CanonicalRun)

	assert.Equal(t, schema.Category("Yes"), got.Dimensions["Q2"])
	assert.Equal(t, schema.Absent(), got.Dimensions["Q3"], "absent in canonical run stays N/A")
	assert.Equal(t, schema.Number(4.5), got.Dimensions["Q4"])
	assert.Equal(t, "canonical prose", got.Justification)
}

func TestReconcile_CanonicalMissing(t *testing.T) {
	got := Reconcile(schema.Default(), "2", []Sample{{Run: 2, Parse: numericParse("2", 6, nil)}}, CanonicalRun)
	assert.True(t, got.Scored)
	assert.Empty(t, got.Justification)
}

func TestReconcile_NoNumericAggregate(t *testing.T) {
	p := scoreline.Parse{SubjectID: "4", Dimensions: map[string]schema.Value{"Q1": schema.Number(2)}}
	got := Reconcile(schema.Default(), "4", []Sample{{1, p}}, CanonicalRun)

	assert.False(t, got.Scored)
	assert.Zero(t, got.Aggregate)
	assert.Empty(t, got.Series)
	assert.Equal(t, 15, got.AggregateMax, "falls back to the shape maximum")
	assert.Equal(t, schema.Number(2), got.Dimensions["Q1"])
}

func TestReconcile_FirstReportedMaxWins(t *testing.T) {
	a := numericParse("1", 10, nil)
	a.AggregateMax = 0
	b := numericParse("1", 10, nil)
	b.AggregateMax = 35
	c := numericParse("1", 10, nil)
	got := Reconcile(schema.Default(), "1", []Sample{{1, a}, {2, b}, {3, c}}, CanonicalRun)
	assert.Equal(t, 35, got.AggregateMax)
}

func TestMean(t *testing.T) {
	cases := []struct {
		xs   []float64
		want float64
	}{
		{nil, 0},
		{[]float64{4}, 4},
		{[]float64{3.25, 4.75}, 4},
		{[]float64{1, 2, 3, 4}, 2.5},
		{[]float64{12.5, 11.75, 13}, (12.5 + 11.75 + 13) / 3},
	}
	for _, c := range cases {
		require.InDelta(t, c.want, Mean(c.xs), 1e-12, "Mean(%v)", c.xs)
	}
}

func TestIdentity(t *testing.T) {
	p := numericParse("6", 12.5, map[string]float64{"Q1": 4, "Q2": 4.25, "Q3": 4.25})
	p.Justification = "fine"
	got := Identity(schema.Default(), p)
	assert.Equal(t, 12.5, got.Aggregate)
	assert.Equal(t, schema.Number(4.25), got.Dimensions["Q2"])
	assert.Equal(t, "fine", got.Justification)
}

func TestReconcile_ReasoningFromCanonical(t *testing.T) {
	run1 := numericParse("4", 10, nil)
	run1.Reasoning = "first run detail"
	run2 := numericParse("4", 12, nil)
	run2.Reasoning = "second run detail"

	got := Reconcile(schema.Default(), "4", []Sample{{1, run1}, {2, run2}}, 2)
	assert.Equal(t, "second run detail", got.Reasoning)
}
