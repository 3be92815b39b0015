package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// Providers
	OpenAIAPIKey    string
	OpenAIModel     string
	EmbeddingModel  string
	LoraBaseURL     string
	LoraModel       string
	GeminiAPIKey    string
	GeminiModel     string
	PrimaryProvider string

	// Corrector chain, in priority order; entries name configured providers.
	CorrectorOrder []string

	// Rules / geo data
	RulesPath      string
	GeoTablePath   string
	WatchRulesFile bool

	// Per-call provider timeouts.
	ClassifierTimeout time.Duration
	PlannerTimeout    time.Duration
	GeneratorTimeout  time.Duration
	CorrectorTimeout  time.Duration
	RepairTimeout     time.Duration

	// Empirically tuned pipeline thresholds. The defaults come from the
	// production tuning of the original moderation system; override with
	// care and only after measuring.
	MaxMessageLength      int
	MinLengthAtBoundary   int
	TargetLengthMin       int
	TargetLengthMax       int
	RetrieverTopK         int
	MinSimilarity         float64
	CorrectorAcceptRatio  float64
	DuplicateWordOverlap  float64
	DuplicateCharOverlap  float64
	DuplicateLogSize      int
	PlannerMaxTokens      int
	GeneratorMaxTokens    int
	ClassifierMaxTokens   int
	RepairMaxTokens       int
	HistoryWindowMessages int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LoraBaseURL:     getEnv("LORA_BASE_URL", ""),
		LoraModel:       getEnv("LORA_MODEL", "chatmod-lora"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		PrimaryProvider: strings.ToLower(getEnv("PRIMARY_PROVIDER", "openai")),

		CorrectorOrder: getEnvAsList("CORRECTOR_ORDER", []string{"lora", "openai", "gemini"}),

		RulesPath:      getEnv("RULES_PATH", "rules.json"),
		GeoTablePath:   getEnv("GEO_TABLE_PATH", ""),
		WatchRulesFile: getEnvAsBool("WATCH_RULES_FILE", true),

		ClassifierTimeout: getEnvAsDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
		PlannerTimeout:    getEnvAsDuration("PLANNER_TIMEOUT", 10*time.Second),
		GeneratorTimeout:  getEnvAsDuration("GENERATOR_TIMEOUT", 60*time.Second),
		CorrectorTimeout:  getEnvAsDuration("CORRECTOR_TIMEOUT", 45*time.Second),
		RepairTimeout:     getEnvAsDuration("REPAIR_TIMEOUT", 15*time.Second),

		MaxMessageLength:      getEnvAsInt("MAX_MESSAGE_LENGTH", 480),
		MinLengthAtBoundary:   getEnvAsInt("MIN_LENGTH_AT_BOUNDARY", 160),
		TargetLengthMin:       getEnvAsInt("TARGET_LENGTH_MIN", 120),
		TargetLengthMax:       getEnvAsInt("TARGET_LENGTH_MAX", 400),
		RetrieverTopK:         getEnvAsInt("RETRIEVER_TOP_K", 4),
		MinSimilarity:         getEnvAsFloat("MIN_SIMILARITY", 0.72),
		CorrectorAcceptRatio:  getEnvAsFloat("CORRECTOR_ACCEPT_RATIO", 0.40),
		DuplicateWordOverlap:  getEnvAsFloat("DUPLICATE_WORD_OVERLAP", 0.85),
		DuplicateCharOverlap:  getEnvAsFloat("DUPLICATE_CHAR_OVERLAP", 0.90),
		DuplicateLogSize:      getEnvAsInt("DUPLICATE_LOG_SIZE", 5000),
		PlannerMaxTokens:      getEnvAsInt("PLANNER_MAX_TOKENS", 120),
		GeneratorMaxTokens:    getEnvAsInt("GENERATOR_MAX_TOKENS", 200),
		ClassifierMaxTokens:   getEnvAsInt("CLASSIFIER_MAX_TOKENS", 60),
		RepairMaxTokens:       getEnvAsInt("REPAIR_MAX_TOKENS", 160),
		HistoryWindowMessages: getEnvAsInt("HISTORY_WINDOW_MESSAGES", 12),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(p)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
