package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnknownFallsBackToFree(t *testing.T) {
	for _, name := range []string{"", "free", "GOLD", "premium ", "BANANA"} {
		cfg := Resolve(name)
		assert.Equal(t, Free, cfg.Tier, "name %q", name)
	}
}

func TestResolveKnownTiers(t *testing.T) {
	cases := map[string]struct {
		generation string
		billing    bool
	}{
		"FREE":    {"gemini-2.5-flash-image", false},
		"MID":     {"gemini-2.5-flash-image", true},
		"PREMIUM": {"gemini-3-pro-image-preview", true},
		"ULTRA":   {"gemini-3-pro-image-preview", true},
		"PREVIEW": {"imagen-4.0-ultra-generate-001", true},
	}

	for name, want := range cases {
		cfg := Resolve(name)
		require.Equal(t, Tier(name), cfg.Tier)
		assert.Equal(t, want.generation, cfg.GenerationModel, name)
		assert.Equal(t, want.billing, cfg.RequiresBilling, name)
		assert.True(t, Known(name))
	}
}

func TestOnlyFreeHasDailyLimit(t *testing.T) {
	for _, cfg := range All() {
		if cfg.Tier == Free {
			assert.Equal(t, 100, cfg.DailyLimit)
		} else {
			assert.Zero(t, cfg.DailyLimit, string(cfg.Tier))
		}
	}
}

func TestSamplingTightensWithPrice(t *testing.T) {
	order := []Tier{Free, Mid, Premium, Ultra}
	for i := 1; i < len(order); i++ {
		lower := Resolve(string(order[i-1])).Sampling
		higher := Resolve(string(order[i])).Sampling
		assert.LessOrEqual(t, higher.Temperature, lower.Temperature)
		assert.LessOrEqual(t, higher.TopP, lower.TopP)
		assert.LessOrEqual(t, higher.TopK, lower.TopK)
	}
}

func TestEnforcementStrategyByTier(t *testing.T) {
	assert.Contains(t, Resolve("FREE").EnforcementStrategy, "REPETITIVE REINFORCEMENT")
	assert.Contains(t, Resolve("MID").EnforcementStrategy, "REPETITIVE REINFORCEMENT")
	assert.Contains(t, Resolve("PREMIUM").EnforcementStrategy, "STRUCTURAL AUDIT")
	assert.Contains(t, Resolve("ULTRA").EnforcementStrategy, "STRUCTURAL AUDIT")
}

func TestIsImagenModel(t *testing.T) {
	assert.True(t, IsImagenModel("imagen-4.0-ultra-generate-001"))
	assert.False(t, IsImagenModel("gemini-2.5-flash-image"))
}
