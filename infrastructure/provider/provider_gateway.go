package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

// ErrMissingAPIKey is returned at construction time when a configured
// provider has no credential. Missing credentials fail fast; they never
// surface as per-request errors.
var ErrMissingAPIKey = errors.New("provider: API key is required")

var _ ports.Provider = (*Gateway)(nil)

// GatewayConfig configures an OpenAI-compatible backend: a unified
// multi-vendor gateway, OpenAI itself, or a Perplexity-style search API.
type GatewayConfig struct {
	// Name identifies this backend in model attribution and logs.
	Name string
	// APIKey authenticates requests. Required.
	APIKey string
	// BaseURL overrides the default endpoint. Leave empty for OpenAI.
	BaseURL string
	// Timeout is the default per-call deadline; zero means DefaultTimeout.
	Timeout time.Duration
	// ExtendedTimeout applies to slow model families; zero means
	// ExtendedTimeout.
	ExtendedTimeout time.Duration
	// Catalog, when non-empty, is served by ListModels instead of querying
	// the backend. Used for backends without a models endpoint.
	Catalog []domain.ModelInfo
}

// Gateway adapts any OpenAI-compatible chat-completions API to the
// Provider contract.
type Gateway struct {
	name            string
	client          *openai.Client
	timeout         time.Duration
	extendedTimeout time.Duration
	catalog         []domain.ModelInfo
	logger          zerolog.Logger
}

// NewGateway validates the configuration and builds the adapter.
func NewGateway(cfg GatewayConfig, logger zerolog.Logger) (*Gateway, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Name == "" {
		cfg.Name = "gateway"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ExtendedTimeout <= 0 {
		cfg.ExtendedTimeout = ExtendedTimeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Gateway{
		name:            cfg.Name,
		client:          openai.NewClientWithConfig(clientConfig),
		timeout:         cfg.Timeout,
		extendedTimeout: cfg.ExtendedTimeout,
		catalog:         cfg.Catalog,
		logger:          logger.With().Str("provider", cfg.Name).Logger(),
	}, nil
}

// Name identifies the backend.
func (g *Gateway) Name() string { return g.name }

// ListModels returns the static catalog when configured, otherwise queries
// the backend's models endpoint. Fails soft: any error yields an empty
// list.
func (g *Gateway) ListModels(ctx context.Context) []domain.ModelInfo {
	if len(g.catalog) > 0 {
		return g.catalog
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	list, err := g.client.ListModels(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("listing models failed")
		return nil
	}

	models := make([]domain.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID == "" {
			continue
		}
		models = append(models, domain.ModelInfo{
			ID:             m.ID,
			Provider:       g.name,
			DisplayName:    m.ID,
			ContextWindow:  4096,
			Capabilities:   []string{"text", "chat"},
			CostHint:       costHintFor(m.ID),
			Status:         domain.ModelActive,
			TimeoutSeconds: int(timeoutFor(m.ID, g.timeout, g.extendedTimeout).Seconds()),
		})
	}
	return models
}

// Generate invokes the chat-completions endpoint under a tiered per-call
// timeout. Every failure resolves to a result status, never an error.
func (g *Gateway) Generate(ctx context.Context, modelID, prompt string, params map[string]any) domain.GenerationResult {
	timeout := timeoutFor(modelID, g.timeout, g.extendedTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       modelID,
		MaxTokens:   paramInt(params, "max_tokens", defaultMaxTokens),
		Temperature: float32(paramFloat(params, "temperature", defaultTemperature)),
	}
	if system := paramString(params, "system", ""); system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		return g.failureResult(ctx, modelID, prompt, elapsed, err)
	}
	if len(resp.Choices) == 0 {
		return failed(modelID, prompt, elapsed, g.name+": response contained no choices")
	}

	text := resp.Choices[0].Message.Content
	tokensIn := resp.Usage.PromptTokens
	if tokensIn == 0 {
		tokensIn = estimateTokens(prompt)
	}
	tokensOut := resp.Usage.CompletionTokens
	if tokensOut == 0 {
		tokensOut = estimateTokens(text)
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

// failureResult classifies an API error into a timeout or failed result
// with a descriptive, secret-free message.
func (g *Gateway) failureResult(ctx context.Context, modelID, prompt string, elapsed float64, err error) domain.GenerationResult {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		g.logger.Warn().Str("model", modelID).Float64("elapsed_s", elapsed).Msg("generation timed out")
		r := failed(modelID, prompt, elapsed, describeTimeout(modelID, elapsed, g.Alternatives(context.Background(), modelID)))
		r.Status = domain.StatusTimeout
		return r
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		g.logger.Error().Str("model", modelID).Int("status", apiErr.HTTPStatusCode).Msg("generation failed")
		return failed(modelID, prompt, elapsed,
			describeHTTPFailure(g.name, modelID, apiErr.HTTPStatusCode, message, g.Alternatives(context.Background(), modelID)))
	}

	g.logger.Error().Str("model", modelID).Err(err).Msg("generation failed")
	return failed(modelID, prompt, elapsed, g.name+": request failed: "+err.Error())
}

// CheckAvailability scans the model list for the ID.
func (g *Gateway) CheckAvailability(ctx context.Context, modelID string) bool {
	for _, m := range g.ListModels(ctx) {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// Alternatives suggests other models this backend serves, same family
// first.
func (g *Gateway) Alternatives(ctx context.Context, modelID string) []string {
	return alternativesFrom(g.ListModels(ctx), modelID)
}

// PerplexityCatalog lists the Sonar search-ranking models. Perplexity's
// API is OpenAI-compatible but has no models endpoint, so a Gateway
// configured against it serves this static catalog.
func PerplexityCatalog() []domain.ModelInfo {
	return []domain.ModelInfo{
		{
			ID:             "sonar",
			Provider:       "perplexity",
			DisplayName:    "Perplexity Sonar",
			ContextWindow:  8192,
			Capabilities:   []string{"search", "text"},
			CostHint:       domain.CostMedium,
			Status:         domain.ModelActive,
			TimeoutSeconds: int(DefaultTimeout.Seconds()),
		},
		{
			ID:             "sonar-pro",
			Provider:       "perplexity",
			DisplayName:    "Perplexity Sonar Pro",
			ContextWindow:  8192,
			Capabilities:   []string{"search", "text"},
			CostHint:       domain.CostHigh,
			Status:         domain.ModelActive,
			TimeoutSeconds: int(DefaultTimeout.Seconds()),
		},
	}
}

// failed builds a failed GenerationResult with zero token counts.
func failed(modelID, prompt string, elapsed float64, errMsg string) domain.GenerationResult {
	return domain.GenerationResult{
		ElapsedSeconds: elapsed,
		ModelID:        modelID,
		PromptExcerpt:  domain.ExcerptPrompt(prompt),
		Status:         domain.StatusFailed,
		Error:          errMsg,
	}
}
