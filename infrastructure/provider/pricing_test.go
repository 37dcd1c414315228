package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	t.Run("costs are never negative", func(t *testing.T) {
		for _, id := range []string{"gpt-4o", "claude-3-opus", "unknown-model", ""} {
			assert.GreaterOrEqual(t, EstimateCost(id, 1000, 1000), 0.0, id)
		}
	})

	t.Run("zero tokens cost nothing", func(t *testing.T) {
		assert.Zero(t, EstimateCost("gpt-4o", 0, 0))
	})

	t.Run("cost is monotone in tokens", func(t *testing.T) {
		small := EstimateCost("gpt-4o", 100, 100)
		large := EstimateCost("gpt-4o", 10000, 10000)

		assert.Greater(t, large, small)
	})

	t.Run("output tokens cost more than input for priced families", func(t *testing.T) {
		inputHeavy := EstimateCost("claude-3-opus", 1000, 0)
		outputHeavy := EstimateCost("claude-3-opus", 0, 1000)

		assert.Greater(t, outputHeavy, inputHeavy)
	})

	t.Run("longest matching family wins", func(t *testing.T) {
		// gpt-4o-mini must price as the mini family, not as gpt-4o.
		mini := EstimateCost("gpt-4o-mini", 1_000_000, 0)
		full := EstimateCost("gpt-4o", 1_000_000, 0)

		assert.InDelta(t, 0.15, mini, 1e-9)
		assert.InDelta(t, 2.5, full, 1e-9)
	})

	t.Run("dated model IDs price as their family", func(t *testing.T) {
		dated := EstimateCost("claude-3-5-sonnet-20241022", 1_000_000, 1_000_000)
		base := EstimateCost("claude-3-5-sonnet", 1_000_000, 1_000_000)

		assert.Equal(t, base, dated)
	})

	t.Run("unknown models use the fallback rate", func(t *testing.T) {
		cost := EstimateCost("totally-unknown", 1_000_000, 1_000_000)

		assert.InDelta(t, 2.0, cost, 1e-9)
	})
}
