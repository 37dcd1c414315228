package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

var _ ports.Generator = (*Registry)(nil)

// DefaultMaxRetries is the total number of attempts a persistently
// timing-out generation gets before the timeout result is surfaced.
const DefaultMaxRetries = 3

// Registry routes model IDs to the adapter that owns them and wraps
// every generation in a timeout-aware retry loop. Only timeouts are
// retried: a failed result reflects a deterministic backend answer
// (bad credentials, unknown model, malformed request) that repeating
// the call cannot change.
type Registry struct {
	providers  []ports.Provider
	maxRetries int
	logger     zerolog.Logger

	// backoff maps a zero-based attempt number to the delay before the
	// next attempt. Overridable so tests run without real sleeps.
	backoff func(attempt int) time.Duration
}

// RegistryOption customizes Registry construction.
type RegistryOption func(*Registry)

// WithMaxRetries overrides the total attempt count for timed-out
// generations. Values below one are ignored.
func WithMaxRetries(n int) RegistryOption {
	return func(r *Registry) {
		if n >= 1 {
			r.maxRetries = n
		}
	}
}

// WithBackoff overrides the delay schedule between retry attempts.
func WithBackoff(fn func(attempt int) time.Duration) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.backoff = fn
		}
	}
}

// NewRegistry builds a registry over the given adapters. Adapter order
// decides routing priority when two adapters list the same model ID.
func NewRegistry(providers []ports.Provider, logger zerolog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		providers:  providers,
		maxRetries: DefaultMaxRetries,
		logger:     logger.With().Str("component", "registry").Logger(),
		backoff:    exponentialBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// exponentialBackoff doubles the delay per attempt: 1s, 2s, 4s.
func exponentialBackoff(attempt int) time.Duration {
	return time.Second << attempt
}

// ListModels aggregates every adapter's catalog. A misbehaving adapter
// only loses its own entries; the rest of the catalog survives.
func (r *Registry) ListModels(ctx context.Context) []domain.ModelInfo {
	var all []domain.ModelInfo
	for _, p := range r.providers {
		models := r.listOne(ctx, p)
		all = append(all, models...)
	}
	return all
}

func (r *Registry) listOne(ctx context.Context, p ports.Provider) (models []domain.ModelInfo) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("provider", p.Name()).Any("panic", rec).Msg("adapter panicked during listing")
			models = nil
		}
	}()
	return p.ListModels(ctx)
}

// Generate resolves the model to its adapter and runs the retry loop.
// An unknown model produces an immediate failed result with the
// available catalog as guidance; no adapter call and no retry happen.
func (r *Registry) Generate(ctx context.Context, modelID, prompt string, params map[string]any) domain.GenerationResult {
	p := r.resolve(ctx, modelID)
	if p == nil {
		return r.unknownModel(ctx, modelID, prompt)
	}

	var result domain.GenerationResult
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		result = p.Generate(ctx, modelID, prompt, params)

		switch result.Status {
		case domain.StatusSuccess, domain.StatusFailed:
			// Failures are deterministic; retrying cannot help.
			return result
		case domain.StatusTimeout:
			if attempt == r.maxRetries-1 {
				r.logger.Warn().Str("model", modelID).Int("attempts", attempt+1).Msg("retry budget exhausted")
				return result
			}
			delay := r.backoff(attempt)
			r.logger.Info().
				Str("model", modelID).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("generation timed out, retrying")
			select {
			case <-ctx.Done():
				result.Error = "generation aborted: " + ctx.Err().Error()
				return result
			case <-time.After(delay):
			}
		}
	}
	return result
}

// resolve finds the adapter listing the model, or any adapter whose
// availability probe claims it. Listing order decides ties.
func (r *Registry) resolve(ctx context.Context, modelID string) ports.Provider {
	for _, p := range r.providers {
		for _, m := range r.listOne(ctx, p) {
			if m.ID == modelID {
				return p
			}
		}
	}
	for _, p := range r.providers {
		if p.CheckAvailability(ctx, modelID) {
			return p
		}
	}
	return nil
}

func (r *Registry) unknownModel(ctx context.Context, modelID, prompt string) domain.GenerationResult {
	known := r.ListModels(ctx)
	ids := make([]string, 0, len(known))
	for _, m := range known {
		ids = append(ids, m.ID)
	}

	msg := fmt.Sprintf("model %q is not offered by any configured provider", modelID)
	if len(ids) > 0 {
		if len(ids) > 8 {
			ids = ids[:8]
		}
		msg += "; available models include " + strings.Join(ids, ", ")
	}
	r.logger.Warn().Str("model", modelID).Msg("generation requested for unknown model")
	return failed(modelID, prompt, 0, msg)
}

// CheckAvailability reports whether any adapter can serve the model.
func (r *Registry) CheckAvailability(ctx context.Context, modelID string) bool {
	return r.resolve(ctx, modelID) != nil
}

// Alternatives defers to the owning adapter, or suggests from the full
// catalog when the model is unknown everywhere.
func (r *Registry) Alternatives(ctx context.Context, modelID string) []string {
	if p := r.resolve(ctx, modelID); p != nil {
		return p.Alternatives(ctx, modelID)
	}
	return alternativesFrom(r.ListModels(ctx), modelID)
}
