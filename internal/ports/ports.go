// Package ports defines the interfaces the comparison engine exposes and
// consumes. Infrastructure adapters (providers, caches, metrics backends)
// implement the outbound interfaces; external collaborators (bibliographic
// retrieval, prompt templating, text utilities) are consumed through narrow
// contracts so the core never depends on their implementations.
package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
)

// Generator is the model-invocation contract shared by individual provider
// adapters and the registry that aggregates them. Generate never returns a
// Go error: every failure mode terminates in the result's Status field so
// callers branch on status, not on provider-specific error types.
type Generator interface {
	// ListModels returns the currently available models. It fails soft:
	// any error or network issue yields an empty list, never a panic or
	// error return.
	ListModels(ctx context.Context) []domain.ModelInfo

	// Generate invokes the model and returns a normalized result. All
	// error paths resolve to a result with status failed or timeout and a
	// human-readable Error.
	Generate(ctx context.Context, modelID, prompt string, params map[string]any) domain.GenerationResult

	// CheckAvailability reports whether the model can currently serve
	// requests.
	CheckAvailability(ctx context.Context, modelID string) bool

	// Alternatives suggests substitute model IDs for an unavailable or
	// slow model.
	Alternatives(ctx context.Context, modelID string) []string
}

// Provider is one backend adapter (remote LLM API, search-ranking API,
// local inference server) normalized behind the Generator contract.
type Provider interface {
	Generator

	// Name identifies the backend for logging and model attribution.
	Name() string
}

// CacheStore is a shared, keyed JSON store with per-key TTLs. It carries no
// ownership semantics of its own; any component may read or write keys it
// created. Implementations must support concurrent per-key access without
// corruption, but no cross-key transactional guarantees are required.
type CacheStore interface {
	// Get retrieves the raw JSON stored under key. The second return is
	// false when the key is absent or expired.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set marshals value to JSON and stores it under key for ttl. A zero
	// ttl stores without expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key. Intended for tests and cache invalidation.
	Clear(ctx context.Context) error
}

// MetricsCollector receives every generation outcome for export to a
// monitoring backend. Implementations must be safe for concurrent use.
type MetricsCollector interface {
	ObserveGeneration(modelID, task string, status domain.GenerationStatus, elapsed time.Duration, costUSD float64)
	IncInFlight()
	DecInFlight()
}

// PublicationRecord is an opaque bibliographic record supplied by an
// external retrieval collaborator.
type PublicationRecord struct {
	PMID     string `json:"pmid,omitempty"`
	DOI      string `json:"doi,omitempty"`
	Title    string `json:"title"`
	Authors  string `json:"authors,omitempty"`
	Journal  string `json:"journal,omitempty"`
	Year     string `json:"year,omitempty"`
	Abstract string `json:"abstract,omitempty"`
}

// PublicationFetcher retrieves candidate publications and their text.
// Results are cacheable and possibly empty; the engine treats the
// implementation as a black box.
type PublicationFetcher interface {
	FetchCandidates(ctx context.Context, subjectID, subjectName, focus string) ([]PublicationRecord, error)
	FullText(ctx context.Context, record PublicationRecord) (string, error)
}

// PromptRenderer produces the prompt for a given task and model. It is
// treated as a pure string-producing function.
type PromptRenderer interface {
	Render(templateID, modelID string, vars map[string]string) (string, error)
}

// RenderFunc adapts a plain function to the PromptRenderer interface.
type RenderFunc func(templateID, modelID string, vars map[string]string) (string, error)

func (f RenderFunc) Render(templateID, modelID string, vars map[string]string) (string, error) {
	return f(templateID, modelID, vars)
}

// EntityBag groups named entities by category.
type EntityBag map[string][]string

// EntityExtractor pulls named entities out of generated text. Consumed only
// when comparing extraction quality.
type EntityExtractor interface {
	Extract(text string) EntityBag
}

// TextCleaner normalizes source text (HTML stripping, whitespace collapse)
// before it is handed to models or the hallucination detector.
type TextCleaner interface {
	Clean(text string) string
}
