// Package config loads labtrace's configuration from environment variables
// into a single immutable Config, validated fail-fast at boot. There is
// only one source of truth: the process environment (with .env loaded in
// dev via godotenv).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// VisionProvider selects which OCR/vision backend is primary.
type VisionProvider string

const (
	VisionProviderAnthropic VisionProvider = "anthropic"
	VisionProviderOpenAI    VisionProvider = "openai"
)

// Config is the complete, validated runtime configuration. Built once at
// boot by Load and never mutated afterward.
type Config struct {
	// Database
	DatabaseDSN     string
	DatabaseMaxConn int32
	// AdminDatabaseDSN, when set, connects as a role granted BYPASSRLS so
	// the ingestion pipeline, mapping applier, and admin review workflow
	// can read and write across every user's patients/reports/lab_results
	// rows. Falls back to DatabaseDSN if unset (fine for local dev, where
	// the default role already owns every row it creates).
	AdminDatabaseDSN string

	// HTTP
	HTTPAddr       string
	SSEWriteTimeout time.Duration

	// Mapping thresholds (analyte-mapping confidence tiers)
	AutoAcceptThreshold  float64
	QueueLowerThreshold  float64
	BackfillMinOccurrence int

	// LLM
	AnthropicAPIKey string
	OpenAIAPIKey    string
	ChatModel       string
	OCRModel        string
	InsightModel    string

	// Vision provider selection / retry policy (C4, C5)
	PrimaryVisionProvider VisionProvider
	VisionMaxAttempts     int
	VisionBaseBackoff     time.Duration
	VisionMaxPages        int

	// Ingestion admission (C7)
	MaxUploadBytes int64

	// Session (C2)
	SessionTTL              time.Duration
	SessionSweepInterval    time.Duration
	MaxConversationMessages int

	// Chat tool loop (C9, C10)
	MaxConversationIterations int
	PlotRowCap                int
	TableRowCap               int

	// Jobs (C6)
	JobTTL           time.Duration
	JobSweepInterval time.Duration

	// Enforcement
	PatientScopeEnforced bool

	// Storage (C7)
	ContentStoreDir string

	// Misc
	Env string // "dev" or "prod" — controls log handler format
}

// Load reads a .env file if present (ignored if missing) and builds a
// Config from the environment, applying defaults, then validates it.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional in prod; env is the source of truth

	cfg := &Config{
		DatabaseDSN:      getenv("DATABASE_DSN", ""),
		DatabaseMaxConn:  int32(getenvInt("DATABASE_MAX_CONN", 10)),
		AdminDatabaseDSN: getenv("ADMIN_DATABASE_DSN", ""),

		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		SSEWriteTimeout: getenvDuration("SSE_WRITE_TIMEOUT", 30*time.Second),

		AutoAcceptThreshold:   getenvFloat("AUTO_ACCEPT_THRESHOLD", 0.90),
		QueueLowerThreshold:   getenvFloat("QUEUE_LOWER_THRESHOLD", 0.65),
		BackfillMinOccurrence: getenvInt("BACKFILL_MIN_OCCURRENCE", 3),

		AnthropicAPIKey: getenv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getenv("OPENAI_API_KEY", ""),
		ChatModel:       getenv("CHAT_MODEL", "claude-sonnet-4-5"),
		OCRModel:        getenv("OCR_MODEL", "claude-sonnet-4-5"),
		InsightModel:    getenv("INSIGHT_MODEL", "claude-sonnet-4-5"),

		PrimaryVisionProvider: VisionProvider(getenv("PRIMARY_VISION_PROVIDER", string(VisionProviderAnthropic))),
		VisionMaxAttempts:     getenvInt("VISION_MAX_ATTEMPTS", 3),
		VisionBaseBackoff:     getenvDuration("VISION_BASE_BACKOFF", 500*time.Millisecond),
		VisionMaxPages:        getenvInt("VISION_MAX_PAGES", 25),

		MaxUploadBytes: int64(getenvInt("MAX_UPLOAD_BYTES", 25*1024*1024)),

		SessionTTL:              getenvDuration("SESSION_TTL", 30*time.Minute),
		SessionSweepInterval:    getenvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		MaxConversationMessages: getenvInt("MAX_CONVERSATION_MESSAGES", 60),

		MaxConversationIterations: getenvInt("MAX_CONVERSATION_ITERATIONS", 8),
		PlotRowCap:                getenvInt("PLOT_ROW_CAP", 10000),
		TableRowCap:               getenvInt("TABLE_ROW_CAP", 50),

		JobTTL:           getenvDuration("JOB_TTL", 24*time.Hour),
		JobSweepInterval: getenvDuration("JOB_SWEEP_INTERVAL", 5*time.Minute),

		PatientScopeEnforced: getenvBool("PATIENT_SCOPE_ENFORCED", true),

		ContentStoreDir: getenv("CONTENT_STORE_DIR", "./data/reports"),

		Env: getenv("ENV", "dev"),
	}
	if cfg.AdminDatabaseDSN == "" {
		cfg.AdminDatabaseDSN = cfg.DatabaseDSN
	}

	if err := NewValidator(cfg).Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
