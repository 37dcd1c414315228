package provider

// Generation parameter defaults shared by all adapters.
const (
	defaultMaxTokens   = 2000
	defaultTemperature = 0.7
)

// paramInt extracts an int parameter, accepting the float64 that JSON
// decoding produces. Non-positive values fall back to the default.
func paramInt(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

// paramFloat extracts a float64 parameter, falling back when absent.
func paramFloat(params map[string]any, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// paramString extracts a non-empty string parameter.
func paramString(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
