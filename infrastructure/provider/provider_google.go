package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

var _ ports.Provider = (*Google)(nil)

// GoogleConfig configures the Google Gemini adapter.
type GoogleConfig struct {
	APIKey          string
	Timeout         time.Duration
	ExtendedTimeout time.Duration
}

// Google adapts the Gemini API to the Provider contract with a static
// model catalog.
type Google struct {
	client          *genai.Client
	timeout         time.Duration
	extendedTimeout time.Duration
	logger          zerolog.Logger
}

// NewGoogle validates the configuration and builds the adapter.
func NewGoogle(ctx context.Context, cfg GoogleConfig, logger zerolog.Logger) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ExtendedTimeout <= 0 {
		cfg.ExtendedTimeout = ExtendedTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: create google client: %w", err)
	}

	return &Google{
		client:          client,
		timeout:         cfg.Timeout,
		extendedTimeout: cfg.ExtendedTimeout,
		logger:          logger.With().Str("provider", "google").Logger(),
	}, nil
}

// Name identifies the backend.
func (g *Google) Name() string { return "google" }

// ListModels returns the static Gemini catalog.
func (g *Google) ListModels(_ context.Context) []domain.ModelInfo {
	entries := []struct {
		id, name string
		window   int
		hint     domain.CostHint
	}{
		{"gemini-2.0-flash-exp", "Gemini 2.0 Flash", 1048576, domain.CostLow},
		{"gemini-1.5-pro", "Gemini 1.5 Pro", 2097152, domain.CostMedium},
		{"gemini-1.5-flash", "Gemini 1.5 Flash", 1048576, domain.CostLow},
	}

	models := make([]domain.ModelInfo, len(entries))
	for i, e := range entries {
		models[i] = domain.ModelInfo{
			ID:             e.id,
			Provider:       "google",
			DisplayName:    e.name,
			ContextWindow:  e.window,
			Capabilities:   []string{"text", "chat"},
			CostHint:       e.hint,
			Status:         domain.ModelActive,
			MaxTokens:      8192,
			TimeoutSeconds: int(timeoutFor(e.id, g.timeout, g.extendedTimeout).Seconds()),
		}
	}
	return models
}

// Generate invokes GenerateContent under a tiered per-call timeout.
func (g *Google) Generate(ctx context.Context, modelID, prompt string, params map[string]any) domain.GenerationResult {
	timeout := timeoutFor(modelID, g.timeout, g.extendedTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	finalPrompt := prompt
	if system := paramString(params, "system", ""); system != "" {
		// Gemini has no separate system role; prepend it.
		finalPrompt = fmt.Sprintf("System: %s\n\nUser: %s", system, prompt)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(paramFloat(params, "temperature", defaultTemperature))),
		MaxOutputTokens: int32(paramInt(params, "max_tokens", defaultMaxTokens)),
	}
	contents := []*genai.Content{genai.NewContentFromText(finalPrompt, genai.RoleUser)}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, modelID, contents, config)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		return g.failureResult(ctx, modelID, prompt, elapsed, err)
	}

	text := resp.Text()
	if text == "" {
		return failed(modelID, prompt, elapsed, "google: empty response from API")
	}

	tokensIn := estimateTokens(prompt)
	tokensOut := estimateTokens(text)
	if usage := resp.UsageMetadata; usage != nil {
		if usage.PromptTokenCount > 0 {
			tokensIn = int(usage.PromptTokenCount)
		}
		if usage.CandidatesTokenCount > 0 {
			tokensOut = int(usage.CandidatesTokenCount)
		}
	}

	return domain.GenerationResult{
		Text:           text,
		TokensIn:       tokensIn,
		TokensOut:      tokensOut,
		ElapsedSeconds: elapsed,
		CostUSD:        EstimateCost(modelID, tokensIn, tokensOut),
		ModelID:        modelID,
		PromptExcerpt:  domain.ExcerptPrompt(prompt),
		Status:         domain.StatusSuccess,
	}
}

func (g *Google) failureResult(ctx context.Context, modelID, prompt string, elapsed float64, err error) domain.GenerationResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		g.logger.Warn().Str("model", modelID).Float64("elapsed_s", elapsed).Msg("generation timed out")
		r := failed(modelID, prompt, elapsed, describeTimeout(modelID, elapsed, g.Alternatives(context.Background(), modelID)))
		r.Status = domain.StatusTimeout
		return r
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		g.logger.Error().Str("model", modelID).Int("status", apiErr.Code).Msg("generation failed")
		return failed(modelID, prompt, elapsed,
			describeHTTPFailure("google", modelID, apiErr.Code, message, g.Alternatives(context.Background(), modelID)))
	}

	g.logger.Error().Str("model", modelID).Err(err).Msg("generation failed")
	return failed(modelID, prompt, elapsed, "google: request failed: "+err.Error())
}

// CheckAvailability scans the catalog for the ID.
func (g *Google) CheckAvailability(ctx context.Context, modelID string) bool {
	for _, m := range g.ListModels(ctx) {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// Alternatives suggests other Gemini models, same family first.
func (g *Google) Alternatives(ctx context.Context, modelID string) []string {
	return alternativesFrom(g.ListModels(ctx), modelID)
}
