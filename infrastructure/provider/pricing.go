package provider

import "strings"

// tokenPrice is USD per one million tokens.
type tokenPrice struct {
	in  float64
	out float64
}

// priceTable holds static per-family prices. Costs computed from it are
// local approximations for budgeting and model selection, not provider
// billing figures; do not treat them as numerically accurate.
var priceTable = map[string]tokenPrice{
	"gpt-4":             {in: 30.0, out: 60.0},
	"gpt-4-turbo":       {in: 10.0, out: 30.0},
	"gpt-4o":            {in: 2.5, out: 10.0},
	"gpt-4o-mini":       {in: 0.15, out: 0.6},
	"gpt-3.5-turbo":     {in: 0.5, out: 1.5},
	"claude-3-opus":     {in: 15.0, out: 75.0},
	"claude-3-sonnet":   {in: 3.0, out: 15.0},
	"claude-3-haiku":    {in: 0.25, out: 1.25},
	"claude-3-5-sonnet": {in: 3.0, out: 15.0},
	"claude-3-5-haiku":  {in: 0.8, out: 4.0},
	"gemini-pro":        {in: 0.5, out: 1.5},
	"gemini-1.5-pro":    {in: 1.25, out: 5.0},
	"gemini-1.5-flash":  {in: 0.075, out: 0.3},
	"gemini-2.0-flash":  {in: 0.1, out: 0.4},
	"sonar":             {in: 1.0, out: 1.0},
	"sonar-pro":         {in: 3.0, out: 15.0},
}

// fallbackPricePer1M prices unknown families at one dollar per million
// combined tokens.
const fallbackPricePer1M = 1.0

// EstimateCost approximates the USD cost of one generation from the static
// price table, matching the longest family key contained in the model ID so
// "gpt-4-turbo" does not price as "gpt-4".
func EstimateCost(modelID string, tokensIn, tokensOut int) float64 {
	id := strings.ToLower(modelID)

	var bestKey string
	for key := range priceTable {
		if strings.Contains(id, key) && len(key) > len(bestKey) {
			bestKey = key
		}
	}

	if bestKey == "" {
		return float64(tokensIn+tokensOut) / 1_000_000 * fallbackPricePer1M
	}

	price := priceTable[bestKey]
	return float64(tokensIn)/1_000_000*price.in + float64(tokensOut)/1_000_000*price.out
}
