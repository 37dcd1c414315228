// Package domain contains the pure core of the comparison engine: the
// normalized generation result contract, structured-extraction types, the
// comparison/consensus logic, and hallucination detection. Nothing in this
// package performs I/O; providers and stores live under infrastructure.
package domain

// ModelStatus describes the lifecycle state of a listed model.
type ModelStatus string

const (
	// ModelActive indicates the model accepts generation requests.
	ModelActive ModelStatus = "active"
	// ModelDeprecated indicates the model still works but should be migrated away from.
	ModelDeprecated ModelStatus = "deprecated"
	// ModelUnavailable indicates the model is listed but cannot currently serve requests.
	ModelUnavailable ModelStatus = "unavailable"
)

// CostHint is a coarse pricing tier derived from the model family.
// It is a hint for model selection, not a billing figure.
type CostHint string

const (
	CostFree   CostHint = "free"
	CostLow    CostHint = "low"
	CostMedium CostHint = "medium"
	CostHigh   CostHint = "high"
)

// ModelInfo is the provider-neutral description of one model.
// Instances are immutable once listed; refreshing requires re-querying the
// owning provider. The registry owns the authoritative set.
type ModelInfo struct {
	ID            string      `json:"id"`
	Provider      string      `json:"provider"`
	DisplayName   string      `json:"display_name"`
	ContextWindow int         `json:"context_window"`
	Capabilities  []string    `json:"capabilities"`
	CostHint      CostHint    `json:"cost_hint"`
	Status        ModelStatus `json:"status"`
	// MaxTokens is the provider-reported output cap, zero when unknown.
	MaxTokens int `json:"max_tokens,omitempty"`
	// TimeoutSeconds is the per-call timeout the owning adapter enforces.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// GenerationStatus is the terminal outcome of a single generation attempt.
type GenerationStatus string

const (
	StatusSuccess GenerationStatus = "success"
	StatusTimeout GenerationStatus = "timeout"
	StatusFailed  GenerationStatus = "failed"
)

// GenerationResult is the normalized outcome of one generation attempt.
// Adapters never return Go errors for provider failures; every failure mode
// terminates in Status with a human-readable Error. Results are immutable:
// a retry produces a fresh result, it never mutates an earlier one.
type GenerationResult struct {
	Text           string  `json:"text"`
	TokensIn       int     `json:"tokens_in"`
	TokensOut      int     `json:"tokens_out"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`

	// CostUSD is estimated from a static per-family price table, not fetched
	// from the provider. Treat it as an approximation.
	CostUSD float64 `json:"cost_usd"`

	ModelID       string           `json:"model_id"`
	PromptExcerpt string           `json:"prompt_excerpt"`
	Status        GenerationStatus `json:"status"`
	Error         string           `json:"error,omitempty"`
}

// Succeeded reports whether the attempt produced usable output.
func (r GenerationResult) Succeeded() bool { return r.Status == StatusSuccess }

// promptExcerptLen caps how much of the prompt a result carries around.
const promptExcerptLen = 100

// ExcerptPrompt truncates a prompt for inclusion in results and logs.
func ExcerptPrompt(prompt string) string {
	if len(prompt) <= promptExcerptLen {
		return prompt
	}
	return prompt[:promptExcerptLen] + "..."
}
