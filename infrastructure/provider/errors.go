package provider

import (
	"fmt"
	"strings"
)

// ErrorType classifies a provider failure for retry policy and messaging.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeServerError
	ErrorTypeTimeout
)

// classifyStatus maps an HTTP status code onto an ErrorType.
func classifyStatus(code int) ErrorType {
	switch code {
	case 401, 403:
		return ErrorTypeAuthentication
	case 429:
		return ErrorTypeRateLimit
	case 400:
		return ErrorTypeBadRequest
	case 404:
		return ErrorTypeNotFound
	case 500, 502, 503, 504:
		return ErrorTypeServerError
	default:
		switch {
		case code >= 400 && code < 500:
			return ErrorTypeBadRequest
		case code >= 500:
			return ErrorTypeServerError
		default:
			return ErrorTypeUnknown
		}
	}
}

// describeHTTPFailure builds the user-facing error string for an HTTP-level
// failure. Messages suggest a corrective action where one is known and
// never include credentials: only the status code, the provider's message,
// and alternative model IDs appear.
func describeHTTPFailure(providerName, modelID string, code int, message string, alternatives []string) string {
	base := fmt.Sprintf("%s error (HTTP %d): %s", providerName, code, message)

	switch classifyStatus(code) {
	case ErrorTypeAuthentication:
		return fmt.Sprintf("%s authentication failed (HTTP %d): API key missing, invalid, or expired; check the configured credential", providerName, code)
	case ErrorTypeRateLimit:
		return base + " | rate limit exceeded, retry later or use a lower-volume model"
	case ErrorTypeNotFound:
		return withAlternatives(fmt.Sprintf("%s: model %q not found (HTTP %d)", providerName, modelID, code), alternatives)
	case ErrorTypeBadRequest:
		return withAlternatives(base, alternatives)
	case ErrorTypeServerError:
		return base + " | provider-side failure, retry later"
	default:
		return base
	}
}

// describeTimeout builds the error string for a timed-out call, including
// how long the call ran and which faster models to try instead.
func describeTimeout(modelID string, elapsedSeconds float64, alternatives []string) string {
	msg := fmt.Sprintf("request timed out after %.1fs", elapsedSeconds)
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "gpt-5"), strings.Contains(id, "opus"):
		msg += "; this model family is slow"
	case strings.Contains(id, "gpt-4"):
		msg += "; try a mini variant or reduce max_tokens"
	default:
		msg += "; the model may be overloaded, retry or use a faster model"
	}
	return withAlternatives(msg, alternatives)
}

// withAlternatives appends up to three suggested model IDs.
func withAlternatives(msg string, alternatives []string) string {
	if len(alternatives) == 0 {
		return msg
	}
	if len(alternatives) > 3 {
		alternatives = alternatives[:3]
	}
	return msg + " | try: " + strings.Join(alternatives, ", ")
}
