package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like
	// X-Forwarded-For. Only enable behind a trusted proxy/LB.
	TrustProxyHeaders bool

	// Postgres connection string. Empty selects the in-memory store, which
	// is for local development only.
	DatabaseURL string

	// Payment processor.
	StripeAPIKey     string
	StripePlanID     string
	StripeSuccessURL string
	StripeCancelURL  string
	PaymentExpiry    time.Duration

	// Generation backend.
	GeminiAPIKey  string
	GeminiModel   string
	GenMaxTokens  int
	GenTimeout    time.Duration
	GenMaxRetries int

	// SMS delivery for checkout links.
	SMSBaseURL string
	SMSAPIKey  string
	SMSFrom    string

	// Conversion trigger.
	ConvertThreshold int64

	// Context assembly.
	ContextTokenBudget int

	// Live WebSocket call transport (/v1/calls).
	WSMaxJSONMessageBytes int64
	WSPingInterval        time.Duration
	WSWriteTimeout        time.Duration
	WSReadTimeout         time.Duration
	WSHandshakeTimeout    time.Duration
	TurnTimeout           time.Duration
	MaxSessionDuration    time.Duration
	MaxHistoryTurns       int

	EnrichmentTimeout time.Duration

	// Per-principal rate limiting. RPS/Burst of zero disables the token
	// bucket; MaxCallsPerPrincipal caps concurrent live calls per API key.
	LimitRPS             float64
	LimitBurst           int
	MaxCallsPerPrincipal int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                  envOr("KINDLINE_ADDR", ":8080"),
		AuthMode:              AuthMode(envOr("KINDLINE_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:               make(map[string]struct{}),
		TrustProxyHeaders:     envBoolOr("KINDLINE_TRUST_PROXY_HEADERS", false),
		DatabaseURL:           envOr("KINDLINE_DATABASE_URL", ""),
		StripeAPIKey:          envOr("KINDLINE_STRIPE_API_KEY", ""),
		StripePlanID:          envOr("KINDLINE_STRIPE_PLAN_ID", ""),
		StripeSuccessURL:      envOr("KINDLINE_STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:       envOr("KINDLINE_STRIPE_CANCEL_URL", ""),
		PaymentExpiry:         envDurationOr("KINDLINE_PAYMENT_EXPIRY", 30*time.Minute),
		GeminiAPIKey:          envOr("KINDLINE_GEMINI_API_KEY", ""),
		GeminiModel:           envOr("KINDLINE_GEMINI_MODEL", "gemini-2.0-flash"),
		GenMaxTokens:          envIntOr("KINDLINE_GEN_MAX_TOKENS", 256),
		GenTimeout:            envDurationOr("KINDLINE_GEN_TIMEOUT", 8*time.Second),
		GenMaxRetries:         envIntOr("KINDLINE_GEN_MAX_RETRIES", 2),
		SMSBaseURL:            envOr("KINDLINE_SMS_BASE_URL", ""),
		SMSAPIKey:             envOr("KINDLINE_SMS_API_KEY", ""),
		SMSFrom:               envOr("KINDLINE_SMS_FROM", ""),
		ConvertThreshold:      envInt64Or("KINDLINE_CONVERT_THRESHOLD", 8),
		ContextTokenBudget:    envIntOr("KINDLINE_CONTEXT_TOKEN_BUDGET", 2300),
		WSMaxJSONMessageBytes: envInt64Or("KINDLINE_WS_MAX_JSON_MESSAGE_BYTES", 64*1024),
		WSPingInterval:        envDurationOr("KINDLINE_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:        envDurationOr("KINDLINE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:         envDurationOr("KINDLINE_WS_READ_TIMEOUT", 90*time.Second),
		WSHandshakeTimeout:    envDurationOr("KINDLINE_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		TurnTimeout:           envDurationOr("KINDLINE_TURN_TIMEOUT", 15*time.Second),
		MaxSessionDuration:    envDurationOr("KINDLINE_MAX_SESSION_DURATION", 2*time.Hour),
		MaxHistoryTurns:       envIntOr("KINDLINE_MAX_HISTORY_TURNS", 40),
		EnrichmentTimeout:     envDurationOr("KINDLINE_ENRICHMENT_TIMEOUT", 30*time.Second),
		LimitRPS:              envFloat64Or("KINDLINE_RATE_LIMIT_RPS", 0),
		LimitBurst:            envIntOr("KINDLINE_RATE_LIMIT_BURST", 0),
		MaxCallsPerPrincipal:  envIntOr("KINDLINE_MAX_CALLS_PER_PRINCIPAL", 2),
		ReadHeaderTimeout:     envDurationOr("KINDLINE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:   envDurationOr("KINDLINE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("KINDLINE_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("KINDLINE_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	if cfg.PaymentExpiry <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_PAYMENT_EXPIRY must be > 0")
	}
	if cfg.GenMaxTokens <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_GEN_MAX_TOKENS must be > 0")
	}
	if cfg.GenTimeout <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_GEN_TIMEOUT must be > 0")
	}
	if cfg.GenMaxRetries < 0 {
		return Config{}, fmt.Errorf("KINDLINE_GEN_MAX_RETRIES must be >= 0")
	}
	if cfg.ConvertThreshold <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_CONVERT_THRESHOLD must be > 0")
	}
	if cfg.ContextTokenBudget <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_CONTEXT_TOKEN_BUDGET must be > 0")
	}
	if cfg.WSMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_WS_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("KINDLINE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.TurnTimeout <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_TURN_TIMEOUT must be > 0")
	}
	if cfg.MaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_MAX_SESSION_DURATION must be > 0")
	}
	if cfg.MaxHistoryTurns <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_MAX_HISTORY_TURNS must be > 0")
	}
	if cfg.EnrichmentTimeout <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_ENRICHMENT_TIMEOUT must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("KINDLINE_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("KINDLINE_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MaxCallsPerPrincipal <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_MAX_CALLS_PER_PRINCIPAL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("KINDLINE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("KINDLINE_API_KEYS must be set when KINDLINE_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
