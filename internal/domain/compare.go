package domain

import (
	"fmt"
	"math"
	"reflect"
)

// DefaultOutlierThreshold is the z-score magnitude beyond which a result's
// numeric field is flagged as an outlier.
const DefaultOutlierThreshold = 2.0

// Diff is a recursive structural diff between two generic maps.
// Modified entries hold {old, new} pairs; list changes additionally carry
// old/new lengths. Nested map changes recurse into a child Diff.
type Diff struct {
	Added     map[string]any `json:"added"`
	Removed   map[string]any `json:"removed"`
	Modified  map[string]any `json:"modified"`
	Unchanged map[string]any `json:"unchanged"`
}

// Empty reports whether the diff contains no additions, removals, or
// modifications. Unchanged entries do not count.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// PairwiseDiff names the two models whose structured outputs were diffed.
type PairwiseDiff struct {
	ModelA string `json:"model_a"`
	ModelB string `json:"model_b"`
	Diff   Diff   `json:"diff"`
}

// Disagreement records the per-model values of a field the models did not
// agree on.
type Disagreement struct {
	Values []int    `json:"values"`
	Models []string `json:"models"`
}

// ConsensusView partitions compared fields into agreed and disagreed sets.
// A field is agreed only when every result produced an identical scalar.
type ConsensusView struct {
	Available  bool                    `json:"consensus_available"`
	Agreed     map[string]any          `json:"agreed_fields,omitempty"`
	Disagreed  map[string]Disagreement `json:"disagreed_fields,omitempty"`
	ModelCount int                     `json:"model_count"`
}

// ComparisonReport is the full derived comparison across a result set.
// It is recomputed per request and never persisted beyond the response.
type ComparisonReport struct {
	ModelIDs      []string            `json:"model_ids"`
	PairwiseDiffs []PairwiseDiff      `json:"pairwise_diffs"`
	Outliers      map[string][]string `json:"outliers"`
	Consensus     ConsensusView       `json:"consensus"`
}

// ComputeDiff computes a recursive structural diff between two maps.
// Keys present on one side only are classified added/removed; keys on both
// sides recurse when both values are maps, otherwise compare by deep
// equality. Two empty maps diff to an all-empty Diff.
func ComputeDiff(a, b map[string]any) Diff {
	diff := Diff{
		Added:     map[string]any{},
		Removed:   map[string]any{},
		Modified:  map[string]any{},
		Unchanged: map[string]any{},
	}

	for key, vb := range b {
		if _, ok := a[key]; !ok {
			diff.Added[key] = vb
		}
	}

	for key, va := range a {
		vb, ok := b[key]
		if !ok {
			diff.Removed[key] = va
			continue
		}

		switch {
		case isMap(va) && isMap(vb):
			nested := ComputeDiff(va.(map[string]any), vb.(map[string]any))
			if nested.Empty() {
				diff.Unchanged[key] = va
			} else {
				diff.Modified[key] = nested
			}
		case isList(va) && isList(vb):
			la, lb := va.([]any), vb.([]any)
			if reflect.DeepEqual(la, lb) {
				diff.Unchanged[key] = va
			} else {
				diff.Modified[key] = map[string]any{
					"old": la, "new": lb,
					"old_length": len(la), "new_length": len(lb),
				}
			}
		case reflect.DeepEqual(va, vb):
			diff.Unchanged[key] = va
		default:
			diff.Modified[key] = map[string]any{"old": va, "new": vb}
		}
	}

	return diff
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

// DetectOutliers flags results whose step or material counts deviate from
// the peer group by more than threshold standard deviations. Fewer than
// three results is an insufficient sample and yields an empty map. A zero
// standard deviation suppresses flagging entirely: identical counts are
// never outliers and dividing by zero is avoided.
func DetectOutliers(results []Extraction, threshold float64) map[string][]string {
	if len(results) < 3 {
		return map[string][]string{}
	}

	outliers := make(map[string][]string)
	flagCounts(outliers, "step_count", "steps", stepCounts(results), threshold)
	flagCounts(outliers, "material_count", "materials", materialCounts(results), threshold)
	return outliers
}

func flagCounts(outliers map[string][]string, field, noun string, counts []int, threshold float64) {
	mean, std := meanStddev(counts)
	if std == 0 {
		return
	}
	for i, count := range counts {
		z := math.Abs((float64(count) - mean) / std)
		if z > threshold {
			outliers[field] = append(outliers[field],
				fmt.Sprintf("Model %d: %d %s (mean: %.1f)", i+1, count, noun, mean))
		}
	}
}

// meanStddev returns the population mean and standard deviation.
func meanStddev(counts []int) (float64, float64) {
	if len(counts) == 0 {
		return 0, 0
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	mean := sum / float64(len(counts))

	var variance float64
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(counts))
	return mean, math.Sqrt(variance)
}

func stepCounts(results []Extraction) []int {
	counts := make([]int, len(results))
	for i, r := range results {
		counts[i] = len(r.Steps)
	}
	return counts
}

func materialCounts(results []Extraction) []int {
	counts := make([]int, len(results))
	for i, r := range results {
		counts[i] = len(r.Materials)
	}
	return counts
}

// ComputeConsensus reports which structural fields all models agree on.
// Fewer than two results cannot form a consensus. Equipment agreement uses
// set intersection: only items every model listed count as common.
func ComputeConsensus(results []Extraction, modelIDs []string) ConsensusView {
	if len(results) < 2 {
		return ConsensusView{Available: false, ModelCount: len(results)}
	}

	view := ConsensusView{
		Available:  true,
		Agreed:     map[string]any{},
		Disagreed:  map[string]Disagreement{},
		ModelCount: len(results),
	}

	classifyCounts(&view, "step_count", stepCounts(results), modelIDs)
	classifyCounts(&view, "material_count", materialCounts(results), modelIDs)

	if common := commonEquipment(results); len(common) > 0 {
		view.Agreed["common_equipment"] = common
	}

	return view
}

func classifyCounts(view *ConsensusView, field string, counts []int, modelIDs []string) {
	allEqual := true
	for _, c := range counts[1:] {
		if c != counts[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		view.Agreed[field] = counts[0]
		return
	}
	view.Disagreed[field] = Disagreement{Values: counts, Models: modelIDs}
}

// commonEquipment intersects the equipment sets of every result, preserving
// the first result's ordering for deterministic output.
func commonEquipment(results []Extraction) []string {
	if len(results) == 0 {
		return nil
	}

	var common []string
	for _, item := range results[0].Equipment {
		inAll := true
		for _, r := range results[1:] {
			if !containsString(r.Equipment, item) {
				inAll = false
				break
			}
		}
		if inAll && !containsString(common, item) {
			common = append(common, item)
		}
	}
	return common
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

// GenerateReport assembles the full comparison: a diff for every unordered
// pair (i<j), outlier detection, and the consensus view. It is a pure
// function over its inputs with no side effects or I/O.
func GenerateReport(results []Extraction, modelIDs []string) ComparisonReport {
	var diffs []PairwiseDiff
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			diffs = append(diffs, PairwiseDiff{
				ModelA: modelIDs[i],
				ModelB: modelIDs[j],
				Diff:   ComputeDiff(results[i].AsMap(), results[j].AsMap()),
			})
		}
	}

	return ComparisonReport{
		ModelIDs:      modelIDs,
		PairwiseDiffs: diffs,
		Outliers:      DetectOutliers(results, DefaultOutlierThreshold),
		Consensus:     ComputeConsensus(results, modelIDs),
	}
}
