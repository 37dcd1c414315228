package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCitationSpan(t *testing.T) {
	source := "Cells were incubated at 37 degrees Celsius for two hours in LB broth " +
		"before centrifugation at 5000 rpm."

	t.Run("exact substring matches with full confidence", func(t *testing.T) {
		match := CheckCitationSpan("incubated at 37 degrees", source, DefaultSpanThreshold)

		assert.True(t, match.Matched)
		assert.Equal(t, 1.0, match.Confidence)
		assert.Equal(t, "exact", match.Method)
	})

	t.Run("matching is case insensitive", func(t *testing.T) {
		match := CheckCitationSpan("INCUBATED AT 37 DEGREES", source, DefaultSpanThreshold)

		assert.True(t, match.Matched)
		assert.Equal(t, "exact", match.Method)
	})

	t.Run("paraphrased numeric facts match via word overlap", func(t *testing.T) {
		// "37°C" grounds against "37 degrees" through its numeric part.
		match := CheckCitationSpan("37°C for 2 hours", source, DefaultSpanThreshold)

		assert.True(t, match.Matched)
		assert.Equal(t, "fuzzy", match.Method)
		assert.GreaterOrEqual(t, match.Confidence, DefaultSpanThreshold)
	})

	t.Run("unrelated facts do not match", func(t *testing.T) {
		match := CheckCitationSpan("autoclaved overnight under nitrogen atmosphere", source, DefaultSpanThreshold)

		assert.False(t, match.Matched)
		assert.Equal(t, "none", match.Method)
		assert.Less(t, match.Confidence, DefaultSpanThreshold)
	})

	t.Run("empty fact does not match", func(t *testing.T) {
		match := CheckCitationSpan("   ", source, DefaultSpanThreshold)

		assert.False(t, match.Matched)
	})
}

func TestCheckPlausibility(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		value      string
		plausible  bool
		confidence float64
	}{
		{"pH in range", "ph", "7.4", true, 1.0},
		{"pH above range", "ph", "15.2", false, 0.3},
		{"negative pH", "ph", "-1", false, 0.3},
		{"celsius in range", "temperature", "37°C", true, 1.0},
		{"celsius above range", "temperature", "500°C", false, 0.5},
		{"fahrenheit in range", "temperature", "98.6°F", true, 1.0},
		{"fahrenheit above range", "temperature", "400 Fahrenheit", false, 0.5},
		{"negative concentration", "concentration", "-0.5 M", false, 0.2},
		{"positive concentration", "concentration", "0.5 M", true, 1.0},
		{"negative time", "incubation_time", "-3 hours", false, 0.2},
		{"fractional step number", "step_number", "2.5", false, 0.3},
		{"valid step number", "step_number", "3", true, 1.0},
		{"unknown field is always plausible", "humidity", "9999", true, 1.0},
		{"non-numeric value is plausible", "ph", "neutral", true, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := CheckPlausibility(tt.field, tt.value)

			assert.Equal(t, tt.plausible, p.Plausible)
			assert.InDelta(t, tt.confidence, p.Confidence, 1e-9)
			if !tt.plausible {
				assert.NotEmpty(t, p.Flags)
			}
		})
	}
}

func TestDetectHallucinations(t *testing.T) {
	source := "Mix the agar with distilled water and incubate at 37 degrees Celsius."

	t.Run("grounded extraction has no flags and full confidence", func(t *testing.T) {
		extracted := Extraction{
			Steps: []Step{{Number: 1, Description: "Mix the agar with distilled water"}},
			Conditions: []Condition{
				{Type: "temperature", Value: "37°C"},
				{Type: "ph", Value: "7.0"},
			},
		}

		report := DetectHallucinations(extracted, source, nil)

		assert.False(t, report.HasHallucinations)
		assert.Empty(t, report.Flags)
		assert.Equal(t, 1.0, report.Confidence)
	})

	t.Run("ungrounded step raises a citation flag", func(t *testing.T) {
		extracted := Extraction{
			Steps: []Step{{Number: 2, Description: "Centrifuge the sample at 10000 rpm under vacuum"}},
		}

		report := DetectHallucinations(extracted, source, nil)

		require.True(t, report.HasHallucinations)
		require.Len(t, report.Flags, 1)
		assert.Equal(t, "citation_mismatch", report.Flags[0].Type)
		assert.Equal(t, "step_2_description", report.Flags[0].Field)
		assert.Contains(t, report.FlaggedFields, "step_2_description")
	})

	t.Run("implausible condition severity follows confidence", func(t *testing.T) {
		extracted := Extraction{
			Conditions: []Condition{
				{Type: "ph", Value: "19"},
				{Type: "temperature", Value: "300°C"},
			},
		}

		report := DetectHallucinations(extracted, source, nil)

		require.Len(t, report.Flags, 2)
		assert.Equal(t, "high", report.Flags[0].Severity)
		assert.Equal(t, "medium", report.Flags[1].Severity)
	})

	t.Run("confidence never drops below the penalty cap", func(t *testing.T) {
		extracted := Extraction{
			Conditions: []Condition{
				{Type: "concentration", Value: "-5 M"},
				{Type: "reaction_time", Value: "-2 hours"},
			},
		}

		report := DetectHallucinations(extracted, source, nil)

		assert.True(t, report.HasHallucinations)
		assert.InDelta(t, 0.2, report.Confidence, 1e-9)
	})

	t.Run("cross-model outlier needs at least two siblings", func(t *testing.T) {
		deviant := Extraction{Steps: []Step{
			{Number: 1, Description: "Mix the agar with distilled water"},
			{Number: 2, Description: "Mix the agar with distilled water"},
			{Number: 3, Description: "Mix the agar with distilled water"},
			{Number: 4, Description: "Mix the agar with distilled water"},
		}}
		sibling := Extraction{Steps: []Step{{Number: 1, Description: "mix"}}}

		oneSibling := DetectHallucinations(deviant, source, []Extraction{sibling})
		twoSiblings := DetectHallucinations(deviant, source, []Extraction{sibling, sibling})

		assert.False(t, hasFlagType(oneSibling, "cross_model_outlier"))
		require.True(t, hasFlagType(twoSiblings, "cross_model_outlier"))
	})

	t.Run("counts near the sibling mean are not outliers", func(t *testing.T) {
		current := Extraction{Steps: []Step{
			{Number: 1, Description: "Mix the agar with distilled water"},
			{Number: 2, Description: "Mix the agar with distilled water"},
		}}
		sibling := Extraction{Steps: []Step{{Number: 1}, {Number: 2}, {Number: 3}}}

		report := DetectHallucinations(current, source, []Extraction{sibling, sibling})

		assert.False(t, hasFlagType(report, "cross_model_outlier"))
	})
}

func hasFlagType(report HallucinationReport, flagType string) bool {
	for _, f := range report.Flags {
		if f.Type == flagType {
			return true
		}
	}
	return false
}

func TestStructuralConsensus(t *testing.T) {
	t.Run("needs at least two results", func(t *testing.T) {
		view := StructuralConsensus([]Extraction{{}})

		assert.False(t, view.Available)
	})

	t.Run("partitions count fields by agreement", func(t *testing.T) {
		results := []Extraction{
			{Steps: []Step{{Number: 1}}, Materials: []string{"agar", "broth"}},
			{Steps: []Step{{Number: 1}}, Materials: []string{"agar"}},
		}

		view := StructuralConsensus(results)

		require.True(t, view.Available)
		assert.Equal(t, []string{"step_count"}, view.Agreed)
		assert.Equal(t, []string{"material_count"}, view.Disagreed)
	})
}
