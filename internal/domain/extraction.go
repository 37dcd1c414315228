package domain

import (
	"encoding/json"
	"strings"
)

// Step is one procedural step of an extracted protocol.
type Step struct {
	Number      int    `json:"step_number"`
	Description string `json:"description"`
	Duration    string `json:"duration,omitempty"`
	Temperature string `json:"temperature,omitempty"`
}

// Condition is one experimental condition (pH, temperature, concentration...).
type Condition struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Extraction is the typed form of a model's structured output.
// Model responses arrive as loosely-shaped JSON with vendor-specific key
// names; ParseExtraction resolves known aliases into this struct so the rest
// of the engine never touches dynamic maps.
type Extraction struct {
	Steps      []Step      `json:"steps"`
	Materials  []string    `json:"materials"`
	Equipment  []string    `json:"equipment"`
	Conditions []Condition `json:"conditions"`

	// Text carries the raw model output. It is the only populated field when
	// the output was not parseable as structured JSON (degraded result).
	Text string `json:"text,omitempty"`
}

// Key aliases accepted from model output, in priority order.
// Alias resolution is centralized here so adapters stay schema-agnostic.
var (
	stepAliases      = []string{"steps", "procedure", "protocol_steps"}
	materialAliases  = []string{"materials", "reagents"}
	equipmentAliases = []string{"equipment", "instruments", "apparatus"}
	conditionAliases = []string{"conditions", "parameters"}
)

// ParseExtraction normalizes a model's raw output into an Extraction.
// It returns ok=false when the output is not a JSON object; the returned
// Extraction then carries only the raw text so callers can degrade to a
// text-only comparison instead of failing the whole run.
func ParseExtraction(text string) (Extraction, bool) {
	raw := extractJSONObject(text)
	if raw == "" {
		return Extraction{Text: text}, false
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Extraction{Text: text}, false
	}

	ex := Extraction{Text: text}
	if msg, ok := firstAlias(payload, stepAliases); ok {
		ex.Steps = parseSteps(msg)
	}
	if msg, ok := firstAlias(payload, materialAliases); ok {
		ex.Materials = parseStringList(msg)
	}
	if msg, ok := firstAlias(payload, equipmentAliases); ok {
		ex.Equipment = parseStringList(msg)
	}
	if msg, ok := firstAlias(payload, conditionAliases); ok {
		ex.Conditions = parseConditions(msg)
	}

	return ex, true
}

// AsMap renders the extraction as a generic map for structural diffing.
// Only populated fields appear, so two empty extractions diff as empty.
func (e Extraction) AsMap() map[string]any {
	m := make(map[string]any)
	if len(e.Steps) > 0 {
		steps := make([]any, len(e.Steps))
		for i, s := range e.Steps {
			steps[i] = map[string]any{"step_number": s.Number, "description": s.Description}
		}
		m["steps"] = steps
	}
	if len(e.Materials) > 0 {
		m["materials"] = toAnySlice(e.Materials)
	}
	if len(e.Equipment) > 0 {
		m["equipment"] = toAnySlice(e.Equipment)
	}
	if len(e.Conditions) > 0 {
		conds := make([]any, len(e.Conditions))
		for i, c := range e.Conditions {
			conds[i] = map[string]any{"type": c.Type, "value": c.Value}
		}
		m["conditions"] = conds
	}
	return m
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func firstAlias(payload map[string]json.RawMessage, aliases []string) (json.RawMessage, bool) {
	for _, alias := range aliases {
		if msg, ok := payload[alias]; ok {
			return msg, true
		}
	}
	return nil, false
}

func parseSteps(msg json.RawMessage) []Step {
	var steps []Step
	if err := json.Unmarshal(msg, &steps); err == nil {
		for i := range steps {
			if steps[i].Number == 0 {
				steps[i].Number = i + 1
			}
		}
		return steps
	}

	// Plain string lists also count as steps.
	if descs := parseStringList(msg); len(descs) > 0 {
		steps = make([]Step, len(descs))
		for i, d := range descs {
			steps[i] = Step{Number: i + 1, Description: d}
		}
	}
	return steps
}

func parseStringList(msg json.RawMessage) []string {
	var items []string
	if err := json.Unmarshal(msg, &items); err == nil {
		return items
	}

	// Lists of objects are flattened to their name field when present.
	var objects []map[string]any
	if err := json.Unmarshal(msg, &objects); err != nil {
		return nil
	}
	for _, obj := range objects {
		for _, key := range []string{"name", "item", "description"} {
			if v, ok := obj[key].(string); ok && v != "" {
				items = append(items, v)
				break
			}
		}
	}
	return items
}

func parseConditions(msg json.RawMessage) []Condition {
	var conds []Condition
	if err := json.Unmarshal(msg, &conds); err == nil {
		return conds
	}

	var kv map[string]any
	if err := json.Unmarshal(msg, &kv); err != nil {
		return nil
	}
	for k, v := range kv {
		if s, ok := v.(string); ok {
			conds = append(conds, Condition{Type: k, Value: s})
		}
	}
	return conds
}

// extractJSONObject returns the outermost {...} span in text, tolerating
// prose or code fences around the object. Empty when no object is present.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
