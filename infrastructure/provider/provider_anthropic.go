package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

var _ ports.Provider = (*Anthropic)(nil)

// AnthropicConfig configures the Anthropic Claude adapter.
type AnthropicConfig struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	ExtendedTimeout time.Duration
}

// Anthropic adapts the Claude Messages API to the Provider contract. The
// model catalog is static: Anthropic's lineup is small and stable enough
// that listing does not warrant a network call.
type Anthropic struct {
	client          anthropic.Client
	timeout         time.Duration
	extendedTimeout time.Duration
	logger          zerolog.Logger
}

// NewAnthropic validates the configuration and builds the adapter.
func NewAnthropic(cfg AnthropicConfig, logger zerolog.Logger) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ExtendedTimeout <= 0 {
		cfg.ExtendedTimeout = ExtendedTimeout
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		client:          anthropic.NewClient(opts...),
		timeout:         cfg.Timeout,
		extendedTimeout: cfg.ExtendedTimeout,
		logger:          logger.With().Str("provider", "anthropic").Logger(),
	}, nil
}

// Name identifies the backend.
func (a *Anthropic) Name() string { return "anthropic" }

// ListModels returns the static Claude catalog.
func (a *Anthropic) ListModels(_ context.Context) []domain.ModelInfo {
	entries := []struct {
		id, name string
		hint     domain.CostHint
	}{
		{"claude-3-5-sonnet-20241022", "Claude 3.5 Sonnet", domain.CostMedium},
		{"claude-3-5-haiku-20241022", "Claude 3.5 Haiku", domain.CostLow},
		{"claude-3-opus-20240229", "Claude 3 Opus", domain.CostHigh},
		{"claude-3-haiku-20240307", "Claude 3 Haiku", domain.CostLow},
	}

	models := make([]domain.ModelInfo, len(entries))
	for i, e := range entries {
		models[i] = domain.ModelInfo{
			ID:             e.id,
			Provider:       "anthropic",
			DisplayName:    e.name,
			ContextWindow:  200000,
			Capabilities:   []string{"text", "chat"},
			CostHint:       e.hint,
			Status:         domain.ModelActive,
			MaxTokens:      8192,
			TimeoutSeconds: int(timeoutFor(e.id, a.timeout, a.extendedTimeout).Seconds()),
		}
	}
	return models
}

// Generate invokes the Messages API under a tiered per-call timeout.
func (a *Anthropic) Generate(ctx context.Context, modelID, prompt string, params map[string]any) domain.GenerationResult {
	timeout := timeoutFor(modelID, a.timeout, a.extendedTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: int64(paramInt(params, "max_tokens", defaultMaxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(paramFloat(params, "temperature", defaultTemperature)),
	}
	if system := paramString(params, "system", ""); system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	message, err := a.client.Messages.New(ctx, req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		return a.failureResult(ctx, modelID, prompt, elapsed, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		}
	}

	tokensIn := int(message.Usage.InputTokens)
	if tokensIn == 0 {
		tokensIn = estimateTokens(prompt)
	}
	tokensOut := int(message.Usage.OutputTokens)
	if tokensOut == 0 {
		tokensOut = estimateTokens(text.String())
	}

	return domain.GenerationResult{
		Text:           text.String(),
		TokensIn:       tokensIn,
		TokensOut:      tokensOut,
		ElapsedSeconds: elapsed,
		CostUSD:        EstimateCost(modelID, tokensIn, tokensOut),
		ModelID:        modelID,
		PromptExcerpt:  domain.ExcerptPrompt(prompt),
		Status:         domain.StatusSuccess,
	}
}

func (a *Anthropic) failureResult(ctx context.Context, modelID, prompt string, elapsed float64, err error) domain.GenerationResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		a.logger.Warn().Str("model", modelID).Float64("elapsed_s", elapsed).Msg("generation timed out")
		r := failed(modelID, prompt, elapsed, describeTimeout(modelID, elapsed, a.Alternatives(context.Background(), modelID)))
		r.Status = domain.StatusTimeout
		return r
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		a.logger.Error().Str("model", modelID).Int("status", apiErr.StatusCode).Msg("generation failed")
		return failed(modelID, prompt, elapsed,
			describeHTTPFailure("anthropic", modelID, apiErr.StatusCode, apiErr.Error(), a.Alternatives(context.Background(), modelID)))
	}

	a.logger.Error().Str("model", modelID).Err(err).Msg("generation failed")
	return failed(modelID, prompt, elapsed, "anthropic: request failed: "+err.Error())
}

// CheckAvailability scans the catalog for the ID.
func (a *Anthropic) CheckAvailability(ctx context.Context, modelID string) bool {
	for _, m := range a.ListModels(ctx) {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// Alternatives suggests other Claude models, same family first.
func (a *Anthropic) Alternatives(ctx context.Context, modelID string) []string {
	return alternativesFrom(a.ListModels(ctx), modelID)
}
