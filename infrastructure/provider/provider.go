// Package provider implements the backend adapters that normalize
// heterogeneous model APIs (OpenAI-compatible gateways, Anthropic, Google
// Gemini, Ollama local inference) into the ports.Provider contract, plus
// the Registry that routes model IDs to adapters and wraps every call with
// timeout-aware retry.
//
// Adapters never surface provider-specific errors: every failure mode
// terminates in a GenerationResult whose Status is failed or timeout and
// whose Error is a descriptive, secret-free message that suggests a
// corrective action where one is known.
package provider

import (
	"strings"
	"time"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

// Default per-call timeout tiers. Adapters pick a tier from heuristics on
// the model name: larger and slower model families get a longer deadline.
const (
	// DefaultTimeout applies to most models.
	DefaultTimeout = 30 * time.Second
	// MediumTimeout applies to large non-mini GPT-4-class models.
	MediumTimeout = 45 * time.Second
	// ExtendedTimeout applies to the slowest frontier-class families.
	ExtendedTimeout = 90 * time.Second
)

// Middleware wraps a Provider to add cross-cutting behavior such as rate
// limiting or tracing without touching adapter logic.
type Middleware func(ports.Provider) ports.Provider

// Chain applies middleware so the first element is the outermost wrapper.
func Chain(p ports.Provider, middleware ...Middleware) ports.Provider {
	for i := len(middleware) - 1; i >= 0; i-- {
		p = middleware[i](p)
	}
	return p
}

// timeoutFor selects the per-call deadline for a model. The extended and
// medium tiers are heuristics on the model name; base and extended come
// from adapter configuration so operators can widen them globally.
func timeoutFor(modelID string, base, extended time.Duration) time.Duration {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "gpt-5"),
		strings.Contains(id, "claude-opus"),
		strings.Contains(id, "claude-sonnet-4"),
		strings.Contains(id, "opus"):
		return extended
	case strings.Contains(id, "gpt-4") && !strings.Contains(id, "mini"):
		if base < MediumTimeout {
			return MediumTimeout
		}
		return base
	default:
		return base
	}
}

// costHintFor buckets a model into a coarse pricing tier by family name.
func costHintFor(modelID string) domain.CostHint {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "gpt-4") && !strings.Contains(id, "mini"),
		strings.Contains(id, "gpt-5") && !strings.Contains(id, "mini") && !strings.Contains(id, "nano"),
		strings.Contains(id, "opus"),
		strings.Contains(id, "sonar-pro"):
		return domain.CostHigh
	case strings.Contains(id, "gpt-3.5"),
		strings.Contains(id, "mini"),
		strings.Contains(id, "nano"),
		strings.Contains(id, "haiku"),
		strings.Contains(id, "flash"):
		return domain.CostLow
	default:
		return domain.CostMedium
	}
}

// estimateTokens approximates a token count at four characters per token,
// used when a backend does not report usage.
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// alternativesFrom returns the other models a provider lists, preferring
// members of the same family (shared prefix before the first dash group).
func alternativesFrom(models []domain.ModelInfo, modelID string) []string {
	family := familyOf(modelID)

	var sameFamily, others []string
	for _, m := range models {
		if m.ID == modelID {
			continue
		}
		if family != "" && strings.HasPrefix(familyOf(m.ID), family) {
			sameFamily = append(sameFamily, m.ID)
		} else {
			others = append(others, m.ID)
		}
	}
	return append(sameFamily, others...)
}

// familyOf strips version/date suffixes: "gpt-4o-2024-08-06" -> "gpt-4o".
func familyOf(modelID string) string {
	id := strings.ToLower(modelID)
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	for i, r := range id {
		if r >= '0' && r <= '9' && i > 0 && id[i-1] == '-' && i+3 < len(id) {
			// Trailing -YYYY... date segment marks the end of the family name.
			if len(id)-i >= 4 && allDigits(id[i:i+4]) {
				return id[:i-1]
			}
		}
	}
	return id
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
