package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/crosscheck-ai/crosscheck/infrastructure/cache"
	"github.com/crosscheck-ai/crosscheck/infrastructure/provider"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

// BuildStore selects the cache backend from configuration: Redis when
// an address is set, the in-process memory store otherwise.
func BuildStore(ctx context.Context, cfg CacheConfig) (ports.CacheStore, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("engine: connect redis %s: %w", cfg.RedisAddr, err)
	}
	return cache.NewRedisFromClient(client), nil
}

// BuildRegistry constructs every configured adapter, applies the
// shared middleware, and wraps them in a retry-aware registry.
// Credential problems surface here, at startup.
func BuildRegistry(ctx context.Context, cfg Config, logger zerolog.Logger) (*provider.Registry, error) {
	var middleware []provider.Middleware
	if cfg.RateLimitPerSecond > 0 {
		middleware = append(middleware,
			provider.RateLimitMiddleware(rate.Limit(cfg.RateLimitPerSecond), 1))
	}

	providers := make([]ports.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := buildProvider(ctx, pc, logger)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %s: %w", pc.Type, err)
		}
		providers = append(providers, provider.Chain(p, middleware...))
	}

	return provider.NewRegistry(providers, logger,
		provider.WithMaxRetries(cfg.MaxRetries)), nil
}

func buildProvider(ctx context.Context, pc ProviderConfig, logger zerolog.Logger) (ports.Provider, error) {
	timeout := time.Duration(pc.TimeoutSeconds) * time.Second
	extended := time.Duration(pc.ExtendedTimeoutSeconds) * time.Second

	switch pc.Type {
	case "openai":
		return provider.NewGateway(provider.GatewayConfig{
			Name:            "openai",
			APIKey:          pc.APIKey(),
			BaseURL:         pc.BaseURL,
			Timeout:         timeout,
			ExtendedTimeout: extended,
		}, logger)
	case "perplexity":
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = "https://api.perplexity.ai"
		}
		return provider.NewGateway(provider.GatewayConfig{
			Name:            "perplexity",
			APIKey:          pc.APIKey(),
			BaseURL:         baseURL,
			Timeout:         timeout,
			ExtendedTimeout: extended,
			Catalog:         provider.PerplexityCatalog(),
		}, logger)
	case "anthropic":
		return provider.NewAnthropic(provider.AnthropicConfig{
			APIKey:          pc.APIKey(),
			Timeout:         timeout,
			ExtendedTimeout: extended,
		}, logger)
	case "google":
		return provider.NewGoogle(ctx, provider.GoogleConfig{
			APIKey:          pc.APIKey(),
			Timeout:         timeout,
			ExtendedTimeout: extended,
		}, logger)
	case "ollama":
		return provider.NewOllama(provider.OllamaConfig{
			BaseURL:         pc.BaseURL,
			Timeout:         timeout,
			ExtendedTimeout: extended,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}
