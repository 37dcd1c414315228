package provider

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

// rateLimitedProvider enforces a token bucket over Generate calls so a
// burst of comparisons cannot trip backend rate limits.
type rateLimitedProvider struct {
	ports.Provider
	limiter *rate.Limiter
}

// RateLimitMiddleware paces Generate calls. The limit parameter sets
// sustained requests per second; burst allows short spikes above it.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next ports.Provider) ports.Provider {
		return &rateLimitedProvider{Provider: next, limiter: limiter}
	}
}

// Generate waits for a token before forwarding. A cancelled wait is
// reported as a failed result, never as a panic or error.
func (r *rateLimitedProvider) Generate(ctx context.Context, modelID, prompt string, params map[string]any) domain.GenerationResult {
	if err := r.limiter.Wait(ctx); err != nil {
		return failed(modelID, prompt, 0, "rate limit wait aborted: "+err.Error())
	}
	return r.Provider.Generate(ctx, modelID, prompt, params)
}

// tracedProvider records a span per generation with model and outcome
// attributes.
type tracedProvider struct {
	ports.Provider
	tracer trace.Tracer
}

// TracingMiddleware wraps Generate calls in OpenTelemetry spans.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next ports.Provider) ports.Provider {
		return &tracedProvider{Provider: next, tracer: tracer}
	}
}

func (t *tracedProvider) Generate(ctx context.Context, modelID, prompt string, params map[string]any) domain.GenerationResult {
	ctx, span := t.tracer.Start(ctx, "provider.generate",
		trace.WithAttributes(
			attribute.String("provider.name", t.Provider.Name()),
			attribute.String("model.id", modelID),
			attribute.Int("prompt.length", len(prompt)),
		),
	)
	defer span.End()

	result := t.Provider.Generate(ctx, modelID, prompt, params)

	span.SetAttributes(
		attribute.String("generation.status", string(result.Status)),
		attribute.Int("tokens.input", result.TokensIn),
		attribute.Int("tokens.output", result.TokensOut),
	)
	if !result.Succeeded() {
		span.SetStatus(codes.Error, result.Error)
	}
	return result
}
