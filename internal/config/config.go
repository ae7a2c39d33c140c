// Package config handles application configuration.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// Store modes.
const (
	StoreModeDurable   = "durable"
	StoreModeEphemeral = "ephemeral"
	StoreModeAuto      = "auto"
)

// Classifier modes.
const (
	ClassifierModeLLM   = "llm"
	ClassifierModeRules = "rules"
	ClassifierModeAuto  = "auto"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port        int
	BaseURL     string
	CORSOrigins []string
	DocsEnabled bool // serve the OpenAPI document and docs UI

	// Storage
	DatabaseURL string
	StoreMode   string        // durable, ephemeral or auto
	SessionTTL  time.Duration // ephemeral sessions expire after this long idle

	// Conversation
	DeepeningTurns      int // answers collected in the deepening phase
	EscalationThreshold int // inappropriate inputs before the session closes

	// LLM (OpenAI-compatible endpoint, OpenRouter by default)
	ClassifierMode    string
	LLMBaseURL        string
	LLMAPIKey         string
	ClassifierModel   string
	ComposerModel     string
	ClassifierTimeout time.Duration
	ComposerTimeout   time.Duration

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentCurrency     string
	PaymentTimeout      time.Duration
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	// Secrets
	JWTSecret        string
	CheckoutTokenTTL time.Duration
	EncryptionKey    []byte // 32-byte key for AES-256-GCM encryption
	AdminAPIKey      string
	// StableKeys is false when the encryption key was derived from a
	// generated secret and changes on every start.
	StableKeys bool

	// Notification sinks
	EmailListWebhookURL    string
	EmailListWebhookSecret string // Svix signing secret (whsec_...)
	AdAttributionURL       string
	AdAttributionSecret    string // Svix signing secret (whsec_...)
	NotifyConcurrency      int
	NotifyQueueSize        int

	// Object Storage (Tigris/S3-compatible)
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3 for Tigris
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string // Bucket name (one per environment)
	StorageRegion    string // Region (auto for Tigris)

	// Idle shutdown settings (for scale-to-zero on Fly.io)
	IdleTimeout time.Duration // Time before shutting down when idle (0 = disabled)
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
		DocsEnabled: getEnvBool("DOCS_ENABLED", true),

		DatabaseURL: getEnv("DATABASE_URL", "file:prayerline.db?_journal=WAL&_timeout=5000"),
		StoreMode:   strings.ToLower(getEnv("STORE_MODE", StoreModeAuto)),
		SessionTTL:  getEnvDuration("SESSION_TTL", 6*time.Hour),

		DeepeningTurns:      getEnvInt("DEEPENING_TURNS", 3),
		EscalationThreshold: getEnvInt("ESCALATION_THRESHOLD", 3),

		ClassifierMode:    strings.ToLower(getEnv("CLASSIFIER_MODE", ClassifierModeAuto)),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMAPIKey:         getEnvWithFallback("LLM_API_KEY", "SERVICE_OPENROUTER_KEY", ""),
		ClassifierModel:   getEnv("CLASSIFIER_MODEL", "openai/gpt-4o-mini"),
		ComposerModel:     getEnv("COMPOSER_MODEL", "openai/gpt-4o-mini"),
		ClassifierTimeout: getEnvDuration("CLASSIFIER_TIMEOUT", 8*time.Second),
		ComposerTimeout:   getEnvDuration("COMPOSER_TIMEOUT", 20*time.Second),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		PaymentCurrency:     strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		PaymentTimeout:      getEnvDuration("PAYMENT_TIMEOUT", 15*time.Second),
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/prayer/thank-you"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/prayer"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		CheckoutTokenTTL: getEnvDuration("CHECKOUT_TOKEN_TTL", 24*time.Hour),
		AdminAPIKey:      getEnv("ADMIN_API_KEY", ""),

		EmailListWebhookURL:    getEnv("EMAIL_LIST_WEBHOOK_URL", ""),
		EmailListWebhookSecret: getEnv("EMAIL_LIST_WEBHOOK_SECRET", ""),
		AdAttributionURL:       getEnv("AD_ATTRIBUTION_URL", ""),
		AdAttributionSecret:    getEnv("AD_ATTRIBUTION_SECRET", ""),
		NotifyConcurrency:      getEnvInt("NOTIFY_CONCURRENCY", 2),
		NotifyQueueSize:        getEnvInt("NOTIFY_QUEUE_SIZE", 256),

		// Object Storage (Tigris/S3-compatible) - uses Fly's standard env vars
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}

	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""
	cfg.StableKeys = cfg.JWTSecret != "" || getEnv("ENCRYPTION_KEY", "") != ""

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Checkout return tokens need a signing secret even in development.
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = generateRandomSecret(64)
	}

	encKeyStr := getEnv("ENCRYPTION_KEY", "")
	if encKeyStr != "" {
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else {
		cfg.EncryptionKey = deriveEncryptionKey(cfg.JWTSecret)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreMode {
	case StoreModeDurable, StoreModeEphemeral, StoreModeAuto:
	default:
		return fmt.Errorf("STORE_MODE must be one of durable, ephemeral, auto (got %q)", c.StoreMode)
	}
	switch c.ClassifierMode {
	case ClassifierModeLLM, ClassifierModeRules, ClassifierModeAuto:
	default:
		return fmt.Errorf("CLASSIFIER_MODE must be one of llm, rules, auto (got %q)", c.ClassifierMode)
	}
	if c.ClassifierMode == ClassifierModeLLM && c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when CLASSIFIER_MODE=llm")
	}
	if c.DeepeningTurns < 1 {
		return fmt.Errorf("DEEPENING_TURNS must be at least 1")
	}
	if c.EscalationThreshold < 1 {
		return fmt.Errorf("ESCALATION_THRESHOLD must be at least 1")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if c.StoreMode == StoreModeDurable && !c.StableKeys {
		return fmt.Errorf("JWT_SECRET or ENCRYPTION_KEY is required when STORE_MODE=durable")
	}
	return nil
}

// EffectiveStoreMode resolves auto to ephemeral when stored emails could not
// be decrypted after a restart.
func (c *Config) EffectiveStoreMode() string {
	if c.StoreMode == StoreModeAuto && !c.StableKeys {
		return StoreModeEphemeral
	}
	return c.StoreMode
}

// UseLLM reports whether the LLM-backed classifier and composer should be used.
func (c *Config) UseLLM() bool {
	switch c.ClassifierMode {
	case ClassifierModeLLM:
		return true
	case ClassifierModeRules:
		return false
	default:
		return c.LLMAPIKey != ""
	}
}

// PaymentsEnabled returns true if a payment gateway is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.StripeSecretKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

func generateRandomSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "prayerline-secret-change-me-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return base64.URLEncoding.EncodeToString(bytes)
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using HKDF.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("prayerline-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
