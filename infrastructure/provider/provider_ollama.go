package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

var _ ports.Provider = (*Ollama)(nil)

// DefaultOllamaBaseURL is the address of a locally running Ollama server.
const DefaultOllamaBaseURL = "http://localhost:11434"

// OllamaConfig configures the local Ollama adapter.
type OllamaConfig struct {
	BaseURL         string
	Timeout         time.Duration
	ExtendedTimeout time.Duration
}

// Ollama adapts a local Ollama server to the Provider contract. The
// model catalog is whatever the server reports, and all generations
// are free.
type Ollama struct {
	baseURL         string
	httpClient      *http.Client
	timeout         time.Duration
	extendedTimeout time.Duration
	logger          zerolog.Logger
}

// NewOllama builds the adapter. No credentials are required; the
// server is probed lazily on first use.
func NewOllama(cfg OllamaConfig, logger zerolog.Logger) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ExtendedTimeout <= 0 {
		cfg.ExtendedTimeout = ExtendedTimeout
	}
	return &Ollama{
		baseURL:         cfg.BaseURL,
		httpClient:      &http.Client{},
		timeout:         cfg.Timeout,
		extendedTimeout: cfg.ExtendedTimeout,
		logger:          logger.With().Str("provider", "ollama").Logger(),
	}
}

// Name identifies the backend.
func (o *Ollama) Name() string { return "ollama" }

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

// ListModels queries the server's tag list. An unreachable server
// yields an empty catalog rather than an error.
func (o *Ollama) ListModels(ctx context.Context) []domain.ModelInfo {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Warn().Err(err).Msg("model listing failed, returning empty catalog")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		o.logger.Warn().Int("status", resp.StatusCode).Msg("model listing failed, returning empty catalog")
		return nil
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		o.logger.Warn().Err(err).Msg("model listing decode failed, returning empty catalog")
		return nil
	}

	models := make([]domain.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, domain.ModelInfo{
			ID:             m.Name,
			Provider:       "ollama",
			DisplayName:    m.Name,
			ContextWindow:  4096,
			Capabilities:   []string{"text", "chat"},
			CostHint:       domain.CostFree,
			Status:         domain.ModelActive,
			MaxTokens:      defaultMaxTokens,
			TimeoutSeconds: int(timeoutFor(m.Name, o.timeout, o.extendedTimeout).Seconds()),
		})
	}
	return models
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// Generate performs a non-streaming completion against /api/generate.
// Local models cost nothing, so CostUSD is always zero.
func (o *Ollama) Generate(ctx context.Context, modelID, prompt string, params map[string]any) domain.GenerationResult {
	timeout := timeoutFor(modelID, o.timeout, o.extendedTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  modelID,
		Prompt: prompt,
		System: paramString(params, "system", ""),
		Stream: false,
		Options: map[string]any{
			"num_predict": paramInt(params, "max_tokens", defaultMaxTokens),
			"temperature": paramFloat(params, "temperature", defaultTemperature),
		},
	})
	if err != nil {
		return failed(modelID, prompt, 0, "ollama: encode request: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return failed(modelID, prompt, 0, "ollama: build request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.logger.Warn().Str("model", modelID).Float64("elapsed_s", elapsed).Msg("generation timed out")
			r := failed(modelID, prompt, elapsed, describeTimeout(modelID, elapsed, o.Alternatives(context.Background(), modelID)))
			r.Status = domain.StatusTimeout
			return r
		}
		o.logger.Error().Str("model", modelID).Err(err).Msg("generation failed")
		return failed(modelID, prompt, elapsed,
			fmt.Sprintf("ollama: server unreachable at %s; is Ollama running?", o.baseURL))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failed(modelID, prompt, elapsed, "ollama: read response: "+err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		var apiResp ollamaGenerateResponse
		message := string(raw)
		if json.Unmarshal(raw, &apiResp) == nil && apiResp.Error != "" {
			message = apiResp.Error
		}
		o.logger.Error().Str("model", modelID).Int("status", resp.StatusCode).Msg("generation failed")
		return failed(modelID, prompt, elapsed,
			describeHTTPFailure("ollama", modelID, resp.StatusCode, message, o.Alternatives(context.Background(), modelID)))
	}

	var apiResp ollamaGenerateResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return failed(modelID, prompt, elapsed, "ollama: decode response: "+err.Error())
	}
	if apiResp.Response == "" {
		return failed(modelID, prompt, elapsed, "ollama: empty response from server")
	}

	tokensIn := apiResp.PromptEvalCount
	if tokensIn == 0 {
		tokensIn = estimateTokens(prompt)
	}
	tokensOut := apiResp.EvalCount
	if tokensOut == 0 {
		tokensOut = estimateTokens(apiResp.Response)
	}

	return domain.GenerationResult{
		Text:           apiResp.Response,
		TokensIn:       tokensIn,
		TokensOut:      tokensOut,
		ElapsedSeconds: elapsed,
		CostUSD:        0,
		ModelID:        modelID,
		PromptExcerpt:  domain.ExcerptPrompt(prompt),
		Status:         domain.StatusSuccess,
	}
}

// CheckAvailability asks the server for its tag list.
func (o *Ollama) CheckAvailability(ctx context.Context, modelID string) bool {
	for _, m := range o.ListModels(ctx) {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// Alternatives suggests other locally available models.
func (o *Ollama) Alternatives(ctx context.Context, modelID string) []string {
	return alternativesFrom(o.ListModels(ctx), modelID)
}
