package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	GeminiAPIKey  string
	TelegramToken string

	// MODEL_TIER selects the default tier; requests may override it.
	ModelTier string

	// Optional global model overrides. Empty means "use the tier's model".
	AnalysisModelOverride   string
	GenerationModelOverride string

	LogLevel   string
	Debug      bool
	AppProfile string

	PreferIPv4 bool

	EnableRefinement          bool
	EnablePresetLearning      bool
	EnableMultiFormatDownload bool
	// EnablePDFUpload is parsed for parity with deployments that set it,
	// but PDF ingestion itself is not supported.
	EnablePDFUpload bool

	MaxImageSize       int64
	MaxRefineAttempts  int
	MaxConcurrent      int
	MediaGroupDebounce time.Duration
	RequestTimeout     time.Duration
	HTTPTimeout        time.Duration

	GeminiBaseURL    string
	GeminiAPIVersion string

	VisionRPS   float64
	VisionBurst int

	WebAddr        string
	AllowedOrigins []string
	StyleDataPath  string
	StagingPath    string
}

func Load() (Config, error) {
	cfg := Config{
		ModelTier:               strings.ToUpper(strings.TrimSpace(getEnv("MODEL_TIER", "FREE"))),
		AnalysisModelOverride:   strings.TrimSpace(os.Getenv("ANALYSIS_MODEL")),
		GenerationModelOverride: strings.TrimSpace(os.Getenv("GENERATION_MODEL")),

		LogLevel:   strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:      getEnvBool("DEBUG", false),
		AppProfile: strings.ToUpper(strings.TrimSpace(getEnv("APP_PROFILE", "USER"))),

		PreferIPv4: getEnvBool("PREFER_IPV4", true),

		EnableRefinement:          getEnvBool("ENABLE_REFINEMENT", false),
		EnablePresetLearning:      getEnvBool("ENABLE_PRESET_LEARNING", false),
		EnableMultiFormatDownload: getEnvBool("ENABLE_MULTI_FORMAT_DOWNLOAD", false),
		EnablePDFUpload:           getEnvBool("ENABLE_PDF_UPLOAD", false),

		MaxImageSize:       int64(getEnvInt("MAX_IMAGE_SIZE", 10485760)),
		MaxRefineAttempts:  getEnvInt("MAX_REFINE_ATTEMPTS", 5),
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 180)) * time.Second,
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,

		GeminiBaseURL:    strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion: strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),

		VisionRPS:   getEnvFloat("VISION_RPS", 0),
		VisionBurst: getEnvInt("VISION_BURST", 1),

		WebAddr:        strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		StyleDataPath:  strings.TrimSpace(getEnv("STYLE_DATA_PATH", "data/style_prompts.json")),
		StagingPath:    strings.TrimSpace(getEnv("STAGING_DATA_PATH", "data/staging_styles.json")),
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	if cfg.GeminiAPIKey == "" {
		return Config{}, errors.New("GEMINI_API_KEY is required")
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRefineAttempts < 1 {
		cfg.MaxRefineAttempts = 1
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = 10485760
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}

	return cfg, nil
}

// LoadBot is Load plus the bot-only requirement for a Telegram token.
func LoadBot() (Config, error) {
	cfg, err := Load()
	if err != nil {
		return Config{}, err
	}
	if cfg.TelegramToken == "" {
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
