package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads ambient configuration from the environment (optionally
// .env): explicit os.Getenv reads with defaults applied afterward, no
// struct tags or reflection-based binding.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	cfg.LogPath = strings.TrimSpace(os.Getenv("NARRATA_LOG_PATH"))
	cfg.LogLevel = firstNonEmpty(os.Getenv("NARRATA_LOG_LEVEL"), "info")

	cfg.Obs.ServiceName = firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "narrata")
	cfg.Obs.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Obs.Environment = firstNonEmpty(os.Getenv("ENVIRONMENT"), "development")
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	cfg.Postgres.DSN = strings.TrimSpace(os.Getenv("NARRATA_POSTGRES_DSN"))

	cfg.Redis.Addr = strings.TrimSpace(os.Getenv("NARRATA_REDIS_ADDR"))
	cfg.Redis.Enabled = cfg.Redis.Addr != ""
	cfg.Redis.Password = os.Getenv("NARRATA_REDIS_PASSWORD")
	if v := strings.TrimSpace(os.Getenv("NARRATA_REDIS_DB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	cfg.DefaultProvider = firstNonEmpty(os.Getenv("NARRATA_DEFAULT_PROVIDER"), "anthropic")

	cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Anthropic.Model = strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	cfg.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))

	cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	cfg.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))

	cfg.Google.APIKeyEnv = firstNonEmpty(os.Getenv("NARRATA_GOOGLE_API_KEY_ENV"), "GEMINI_API_KEY")
	cfg.Google.Model = strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL"))
	cfg.Google.BaseURL = strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL"))
	cfg.Google.LiveBaseURL = firstNonEmpty(os.Getenv("GOOGLE_LIVE_BASE_URL"), "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent")

	cfg.TierConfigPath = firstNonEmpty(os.Getenv("NARRATA_TIER_CONFIG"), "configs/tiers.toml")
	cfg.NarrativeDir = firstNonEmpty(os.Getenv("NARRATA_NARRATIVE_DIR"), "narratives")

	cfg.DefaultTemperature = floatOrDefault(os.Getenv("NARRATA_DEFAULT_TEMPERATURE"), 0.7)
	cfg.DefaultMaxTokens = intOrDefault(os.Getenv("NARRATA_DEFAULT_MAX_TOKENS"), 1024)

	cfg.Supervisor.Interval = durationOrDefault(os.Getenv("NARRATA_TASK_INTERVAL"), time.Minute)
	cfg.Supervisor.MaxFailures = intOrDefault(os.Getenv("NARRATA_MAX_TASK_FAILURES"), 3)
	cfg.Supervisor.PruneAfterDays = intOrDefault(os.Getenv("NARRATA_PRUNE_AFTER_DAYS"), 30)
	cfg.Supervisor.LiveMessagesPerMinute = intOrDefault(os.Getenv("NARRATA_LIVE_RPM"), 10)

	return cfg, nil
}

func intOrDefault(v string, def int) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatOrDefault(v string, def float64) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func durationOrDefault(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
