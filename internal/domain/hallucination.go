package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// DefaultSpanThreshold is the minimum confidence for a citation span to
// count as grounded in the source text.
const DefaultSpanThreshold = 0.6

// crossModelDeviation is the fraction of the sibling mean beyond which a
// count is treated as a cross-model outlier.
const crossModelDeviation = 0.5

// maxConfidencePenalty caps how far flags can depress overall confidence.
// Confidence never drops below 1 - maxConfidencePenalty regardless of how
// many flags accumulate.
const maxConfidencePenalty = 0.8

// foldCaser normalizes case for matching without allocating per call.
var foldCaser = cases.Fold()

// SpanMatch is the outcome of grounding one extracted fact against source
// text. Method names which matching tier succeeded: "exact", "fuzzy",
// "similarity", or "none" when every tier failed.
type SpanMatch struct {
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Plausibility is the outcome of a numeric sanity check on a field value.
type Plausibility struct {
	Plausible  bool     `json:"plausible"`
	Flags      []string `json:"flags,omitempty"`
	Confidence float64  `json:"confidence"`
}

// HallucinationFlag marks one suspect portion of an extraction.
type HallucinationFlag struct {
	Type       string   `json:"type"`
	Field      string   `json:"field"`
	Severity   string   `json:"severity"`
	Confidence float64  `json:"confidence"`
	Value      string   `json:"value,omitempty"`
	Details    []string `json:"details,omitempty"`
}

// HallucinationReport summarizes grounding checks over one extraction.
type HallucinationReport struct {
	HasHallucinations bool                `json:"has_hallucinations"`
	Flags             []HallucinationFlag `json:"flags"`
	Confidence        float64             `json:"confidence"`
	FlaggedFields     []string            `json:"flagged_fields"`
}

// StructuralConsensusView is the lightweight count-only consensus used when
// full structured data is unavailable. The Comparison Engine's
// ComputeConsensus is the richer variant.
type StructuralConsensusView struct {
	Available  bool     `json:"consensus_available"`
	Agreed     []string `json:"agreed_fields"`
	Disagreed  []string `json:"disagreed_fields"`
	ModelCount int      `json:"model_count"`
}

// CheckCitationSpan tests whether an extracted fact is grounded in the
// source text, trying three tiers in order: exact substring (confidence
// 1.0), word-overlap ratio over words longer than three characters, and
// edit-distance similarity against a prefix window of the source. When all
// tiers fail the result is unmatched with the best confidence achieved.
func CheckCitationSpan(fact, source string, threshold float64) SpanMatch {
	factNorm := strings.TrimSpace(foldCaser.String(fact))
	sourceNorm := foldCaser.String(source)

	if factNorm != "" && strings.Contains(sourceNorm, factNorm) {
		return SpanMatch{Matched: true, Confidence: 1.0, Method: "exact"}
	}

	if ratio, ok := wordOverlap(factNorm, sourceNorm); ok && ratio >= threshold {
		return SpanMatch{Matched: true, Confidence: ratio, Method: "fuzzy"}
	}

	similarity := prefixSimilarity(factNorm, sourceNorm)
	if similarity >= threshold {
		return SpanMatch{Matched: true, Confidence: similarity, Method: "similarity"}
	}

	return SpanMatch{Matched: false, Confidence: similarity, Method: "none"}
}

// wordOverlap returns the fraction of the fact's significant words that
// appear in the source. Significant words are those longer than three
// characters plus any token carrying a digit; digit-bearing tokens match on
// their numeric part alone, so "37°C" is grounded by "37 degrees" in the
// source.
func wordOverlap(fact, source string) (float64, bool) {
	significant, matches := 0, 0
	for _, w := range strings.Fields(fact) {
		num := numberPattern.FindString(w)
		if len(w) <= 3 && num == "" {
			continue
		}
		significant++
		if strings.Contains(source, w) || (num != "" && strings.Contains(source, num)) {
			matches++
		}
	}
	if significant == 0 {
		return 0, false
	}
	return float64(matches) / float64(significant), true
}

// prefixSimilarity computes a normalized Levenshtein similarity between the
// fact and a source prefix window of twice the fact's length. The window
// keeps the comparison local: a fact should match near its citation, and
// diffing against an entire article would drown the signal.
func prefixSimilarity(fact, source string) float64 {
	if fact == "" {
		return 0
	}

	window := source
	if limit := 2 * len(fact); len(window) > limit {
		window = window[:limit]
	}

	distance := levenshtein.ComputeDistance(fact, window)
	maxLen := utf8.RuneCountInString(fact)
	if n := utf8.RuneCountInString(window); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 0
	}

	similarity := 1.0 - float64(distance)/float64(maxLen)
	if similarity < 0 {
		similarity = 0
	}
	return similarity
}

var numberPattern = regexp.MustCompile(`-?\d+\.?\d*`)

// extractNumber pulls the first numeric token out of a value.
func extractNumber(value string) (float64, bool) {
	match := numberPattern.FindString(value)
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CheckPlausibility runs domain-specific numeric sanity checks keyed by
// substrings of the field name: pH in [0,14], Celsius in [-80,200],
// Fahrenheit in [-112,392], concentration and time non-negative, step
// numbers positive integers. A field name matching no known check is
// always plausible.
func CheckPlausibility(fieldName, value string) Plausibility {
	field := strings.ToLower(fieldName)
	result := Plausibility{Plausible: true, Confidence: 1.0}

	n, hasNumber := extractNumber(value)
	if !hasNumber {
		return result
	}

	addFlag := func(flag string, confidence float64) {
		result.Flags = append(result.Flags, flag)
		result.Confidence = confidence
		result.Plausible = false
	}

	switch {
	case strings.Contains(field, "ph"):
		if n < 0 || n > 14 {
			addFlag("pH out of range (0-14)", 0.3)
		}
	case strings.Contains(field, "temperature"):
		lower := strings.ToLower(value)
		switch {
		case strings.Contains(lower, "°f") || strings.Contains(lower, "fahrenheit"):
			if n < -112 || n > 392 {
				addFlag("temperature outside typical lab range", 0.5)
			}
		case strings.Contains(lower, "°c") || strings.Contains(lower, "celsius"):
			if n < -80 || n > 200 {
				addFlag("temperature outside typical lab range", 0.5)
			}
		}
	case strings.Contains(field, "concentration") || strings.Contains(field, "molar"):
		if n < 0 {
			addFlag("negative concentration", 0.2)
		}
	case strings.Contains(field, "time") || strings.Contains(field, "duration"):
		if n < 0 {
			addFlag("negative time", 0.2)
		}
	case strings.Contains(field, "step_number"):
		if n <= 0 || n != math.Trunc(n) {
			addFlag("invalid step number", 0.3)
		}
	}

	return result
}

// DetectHallucinations validates one extraction against its source text
// and, when at least two sibling results are supplied, against the sibling
// group's step and material counts. Overall confidence is
// 1 - min(0.8, mean(1-flagConfidence)); no flags yields 1.0, and the cap
// keeps confidence at or above 0.2 no matter how many flags fire.
func DetectHallucinations(extracted Extraction, source string, siblings []Extraction) HallucinationReport {
	var flags []HallucinationFlag

	for _, step := range extracted.Steps {
		if step.Description == "" {
			continue
		}
		match := CheckCitationSpan(step.Description, source, DefaultSpanThreshold)
		if !match.Matched {
			flags = append(flags, HallucinationFlag{
				Type:       "citation_mismatch",
				Field:      fmt.Sprintf("step_%d_description", step.Number),
				Severity:   "medium",
				Confidence: 1.0 - match.Confidence,
			})
		}
	}

	for _, cond := range extracted.Conditions {
		p := CheckPlausibility(cond.Type, cond.Value)
		if p.Plausible {
			continue
		}
		severity := "medium"
		if p.Confidence < 0.5 {
			severity = "high"
		}
		flags = append(flags, HallucinationFlag{
			Type:       "implausible_value",
			Field:      "condition_" + cond.Type,
			Severity:   severity,
			Confidence: 1.0 - p.Confidence,
			Value:      cond.Value,
			Details:    p.Flags,
		})
	}

	if len(siblings) >= 2 {
		if details := crossModelOutliers(extracted, siblings); len(details) > 0 {
			flags = append(flags, HallucinationFlag{
				Type:       "cross_model_outlier",
				Field:      "cross_model",
				Severity:   "medium",
				Confidence: 0.5,
				Details:    details,
			})
		}
	}

	confidence := 1.0
	if len(flags) > 0 {
		var penalty float64
		for _, f := range flags {
			penalty += f.Confidence
		}
		penalty /= float64(len(flags))
		confidence = 1.0 - math.Min(penalty, maxConfidencePenalty)
	}

	fields := make([]string, len(flags))
	for i, f := range flags {
		fields[i] = f.Field
	}

	return HallucinationReport{
		HasHallucinations: len(flags) > 0,
		Flags:             flags,
		Confidence:        confidence,
		FlaggedFields:     fields,
	}
}

// crossModelOutliers flags counts deviating from the sibling average by
// more than half of that average.
func crossModelOutliers(current Extraction, siblings []Extraction) []string {
	var details []string

	if d := countDeviation(len(current.Steps), stepCounts(siblings)); d != "" {
		details = append(details, "step count "+d)
	}
	if d := countDeviation(len(current.Materials), materialCounts(siblings)); d != "" {
		details = append(details, "material count "+d)
	}
	return details
}

func countDeviation(current int, siblingCounts []int) string {
	if len(siblingCounts) == 0 {
		return ""
	}
	var sum float64
	for _, c := range siblingCounts {
		sum += float64(c)
	}
	avg := sum / float64(len(siblingCounts))
	if math.Abs(float64(current)-avg) > avg*crossModelDeviation {
		return fmt.Sprintf("(%d vs avg %.1f)", current, avg)
	}
	return ""
}

// StructuralConsensus computes count-level agreement across results. It is
// deliberately simpler than ComputeConsensus and is used when full
// structured data is unavailable.
func StructuralConsensus(results []Extraction) StructuralConsensusView {
	if len(results) < 2 {
		return StructuralConsensusView{Available: false, ModelCount: len(results)}
	}

	view := StructuralConsensusView{Available: true, ModelCount: len(results)}

	classify := func(field string, counts []int) {
		for _, c := range counts[1:] {
			if c != counts[0] {
				view.Disagreed = append(view.Disagreed, field)
				return
			}
		}
		view.Agreed = append(view.Agreed, field)
	}

	classify("step_count", stepCounts(results))
	classify("material_count", materialCounts(results))
	return view
}
