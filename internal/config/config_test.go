package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "FREE", cfg.ModelTier)
	assert.Equal(t, int64(10485760), cfg.MaxImageSize)
	assert.Equal(t, 5, cfg.MaxRefineAttempts)
	assert.Equal(t, ":8080", cfg.WebAddr)
	assert.Equal(t, 180*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "data/style_prompts.json", cfg.StyleDataPath)
	assert.Equal(t, "data/staging_styles.json", cfg.StagingPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("MODEL_TIER", "ultra")
	t.Setenv("MAX_REFINE_ATTEMPTS", "0")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ULTRA", cfg.ModelTier, "tier names are uppercased")
	assert.Equal(t, 1, cfg.MaxRefineAttempts, "floor of one attempt")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadBotRequiresToken(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := LoadBot()
	require.Error(t, err)

	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	cfg, err := LoadBot()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.TelegramToken)
}
