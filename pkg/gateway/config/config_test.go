package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"KINDLINE_ADDR",
	"KINDLINE_AUTH_MODE",
	"KINDLINE_API_KEYS",
	"KINDLINE_TRUST_PROXY_HEADERS",
	"KINDLINE_DATABASE_URL",
	"KINDLINE_STRIPE_API_KEY",
	"KINDLINE_STRIPE_PLAN_ID",
	"KINDLINE_STRIPE_SUCCESS_URL",
	"KINDLINE_STRIPE_CANCEL_URL",
	"KINDLINE_PAYMENT_EXPIRY",
	"KINDLINE_GEMINI_API_KEY",
	"KINDLINE_GEMINI_MODEL",
	"KINDLINE_GEN_MAX_TOKENS",
	"KINDLINE_GEN_TIMEOUT",
	"KINDLINE_GEN_MAX_RETRIES",
	"KINDLINE_SMS_BASE_URL",
	"KINDLINE_SMS_API_KEY",
	"KINDLINE_SMS_FROM",
	"KINDLINE_CONVERT_THRESHOLD",
	"KINDLINE_CONTEXT_TOKEN_BUDGET",
	"KINDLINE_WS_MAX_JSON_MESSAGE_BYTES",
	"KINDLINE_WS_PING_INTERVAL",
	"KINDLINE_WS_WRITE_TIMEOUT",
	"KINDLINE_WS_READ_TIMEOUT",
	"KINDLINE_WS_HANDSHAKE_TIMEOUT",
	"KINDLINE_TURN_TIMEOUT",
	"KINDLINE_MAX_SESSION_DURATION",
	"KINDLINE_MAX_HISTORY_TURNS",
	"KINDLINE_ENRICHMENT_TIMEOUT",
	"KINDLINE_RATE_LIMIT_RPS",
	"KINDLINE_RATE_LIMIT_BURST",
	"KINDLINE_MAX_CALLS_PER_PRINCIPAL",
	"KINDLINE_READ_HEADER_TIMEOUT",
	"KINDLINE_SHUTDOWN_GRACE_PERIOD",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("KINDLINE_API_KEYS", "kl_sk_test")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeRequired)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty (dev memstore)", cfg.DatabaseURL)
	}
	if cfg.PaymentExpiry != 30*time.Minute {
		t.Fatalf("PaymentExpiry = %v, want 30m", cfg.PaymentExpiry)
	}
	if cfg.GeminiModel != "gemini-2.0-flash" {
		t.Fatalf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.GenMaxTokens != 256 {
		t.Fatalf("GenMaxTokens = %d, want 256", cfg.GenMaxTokens)
	}
	if cfg.GenTimeout != 8*time.Second {
		t.Fatalf("GenTimeout = %v, want 8s", cfg.GenTimeout)
	}
	if cfg.GenMaxRetries != 2 {
		t.Fatalf("GenMaxRetries = %d, want 2", cfg.GenMaxRetries)
	}
	if cfg.ConvertThreshold != 8 {
		t.Fatalf("ConvertThreshold = %d, want 8", cfg.ConvertThreshold)
	}
	if cfg.ContextTokenBudget != 2300 {
		t.Fatalf("ContextTokenBudget = %d, want 2300", cfg.ContextTokenBudget)
	}
	if cfg.WSMaxJSONMessageBytes != 64*1024 {
		t.Fatalf("WSMaxJSONMessageBytes = %d, want 65536", cfg.WSMaxJSONMessageBytes)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("WSPingInterval = %v, want 20s", cfg.WSPingInterval)
	}
	if cfg.WSWriteTimeout != 5*time.Second {
		t.Fatalf("WSWriteTimeout = %v, want 5s", cfg.WSWriteTimeout)
	}
	if cfg.WSReadTimeout != 90*time.Second {
		t.Fatalf("WSReadTimeout = %v, want 90s", cfg.WSReadTimeout)
	}
	if cfg.WSHandshakeTimeout != 5*time.Second {
		t.Fatalf("WSHandshakeTimeout = %v, want 5s", cfg.WSHandshakeTimeout)
	}
	if cfg.TurnTimeout != 15*time.Second {
		t.Fatalf("TurnTimeout = %v, want 15s", cfg.TurnTimeout)
	}
	if cfg.MaxSessionDuration != 2*time.Hour {
		t.Fatalf("MaxSessionDuration = %v, want 2h", cfg.MaxSessionDuration)
	}
	if cfg.MaxHistoryTurns != 40 {
		t.Fatalf("MaxHistoryTurns = %d, want 40", cfg.MaxHistoryTurns)
	}
	if cfg.EnrichmentTimeout != 30*time.Second {
		t.Fatalf("EnrichmentTimeout = %v, want 30s", cfg.EnrichmentTimeout)
	}
	if cfg.MaxCallsPerPrincipal != 2 {
		t.Fatalf("MaxCallsPerPrincipal = %d, want 2", cfg.MaxCallsPerPrincipal)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
	if cfg.TrustProxyHeaders {
		t.Fatalf("TrustProxyHeaders = true, want false")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("KINDLINE_ADDR", ":9090")
	t.Setenv("KINDLINE_AUTH_MODE", "optional")
	t.Setenv("KINDLINE_API_KEYS", "k1,k2")
	t.Setenv("KINDLINE_DATABASE_URL", "postgres://kindline@localhost/kindline")
	t.Setenv("KINDLINE_STRIPE_API_KEY", "sk_test_123")
	t.Setenv("KINDLINE_STRIPE_PLAN_ID", "price_abc")
	t.Setenv("KINDLINE_PAYMENT_EXPIRY", "45m")
	t.Setenv("KINDLINE_GEMINI_MODEL", "gemini-2.5-pro")
	t.Setenv("KINDLINE_GEN_MAX_TOKENS", "512")
	t.Setenv("KINDLINE_GEN_TIMEOUT", "6s")
	t.Setenv("KINDLINE_GEN_MAX_RETRIES", "3")
	t.Setenv("KINDLINE_SMS_BASE_URL", "https://sms.example")
	t.Setenv("KINDLINE_CONVERT_THRESHOLD", "12")
	t.Setenv("KINDLINE_CONTEXT_TOKEN_BUDGET", "1800")
	t.Setenv("KINDLINE_WS_MAX_JSON_MESSAGE_BYTES", "32768")
	t.Setenv("KINDLINE_WS_PING_INTERVAL", "9s")
	t.Setenv("KINDLINE_WS_WRITE_TIMEOUT", "3s")
	t.Setenv("KINDLINE_WS_READ_TIMEOUT", "70s")
	t.Setenv("KINDLINE_WS_HANDSHAKE_TIMEOUT", "6s")
	t.Setenv("KINDLINE_TURN_TIMEOUT", "12s")
	t.Setenv("KINDLINE_MAX_SESSION_DURATION", "95m")
	t.Setenv("KINDLINE_MAX_HISTORY_TURNS", "25")
	t.Setenv("KINDLINE_RATE_LIMIT_RPS", "3.5")
	t.Setenv("KINDLINE_RATE_LIMIT_BURST", "8")
	t.Setenv("KINDLINE_MAX_CALLS_PER_PRINCIPAL", "5")
	t.Setenv("KINDLINE_SHUTDOWN_GRACE_PERIOD", "31s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":9090" || cfg.AuthMode != AuthModeOptional {
		t.Fatalf("Addr/AuthMode = %q/%q", cfg.Addr, cfg.AuthMode)
	}
	if cfg.DatabaseURL != "postgres://kindline@localhost/kindline" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.StripeAPIKey != "sk_test_123" || cfg.StripePlanID != "price_abc" {
		t.Fatalf("stripe config mismatch: %q/%q", cfg.StripeAPIKey, cfg.StripePlanID)
	}
	if cfg.PaymentExpiry != 45*time.Minute {
		t.Fatalf("PaymentExpiry = %v, want 45m", cfg.PaymentExpiry)
	}
	if cfg.GeminiModel != "gemini-2.5-pro" || cfg.GenMaxTokens != 512 || cfg.GenMaxRetries != 3 {
		t.Fatalf("generation config mismatch: %q/%d/%d", cfg.GeminiModel, cfg.GenMaxTokens, cfg.GenMaxRetries)
	}
	if cfg.GenTimeout != 6*time.Second {
		t.Fatalf("GenTimeout = %v, want 6s", cfg.GenTimeout)
	}
	if cfg.ConvertThreshold != 12 {
		t.Fatalf("ConvertThreshold = %d, want 12", cfg.ConvertThreshold)
	}
	if cfg.ContextTokenBudget != 1800 {
		t.Fatalf("ContextTokenBudget = %d, want 1800", cfg.ContextTokenBudget)
	}
	if cfg.WSMaxJSONMessageBytes != 32768 {
		t.Fatalf("WSMaxJSONMessageBytes = %d, want 32768", cfg.WSMaxJSONMessageBytes)
	}
	if cfg.WSPingInterval != 9*time.Second || cfg.WSWriteTimeout != 3*time.Second || cfg.WSReadTimeout != 70*time.Second || cfg.WSHandshakeTimeout != 6*time.Second {
		t.Fatalf("ws timeout mismatch: %v/%v/%v/%v", cfg.WSPingInterval, cfg.WSWriteTimeout, cfg.WSReadTimeout, cfg.WSHandshakeTimeout)
	}
	if cfg.TurnTimeout != 12*time.Second {
		t.Fatalf("TurnTimeout = %v, want 12s", cfg.TurnTimeout)
	}
	if cfg.MaxSessionDuration != 95*time.Minute || cfg.MaxHistoryTurns != 25 {
		t.Fatalf("session limits mismatch: %v/%d", cfg.MaxSessionDuration, cfg.MaxHistoryTurns)
	}
	if cfg.LimitRPS != 3.5 || cfg.LimitBurst != 8 || cfg.MaxCallsPerPrincipal != 5 {
		t.Fatalf("rate limit mismatch: %v/%d/%d", cfg.LimitRPS, cfg.LimitBurst, cfg.MaxCallsPerPrincipal)
	}
	if cfg.ShutdownGracePeriod != 31*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 31s", cfg.ShutdownGracePeriod)
	}
	if len(cfg.APIKeys) != 2 {
		t.Fatalf("APIKeys len=%d, want 2", len(cfg.APIKeys))
	}
	if _, ok := cfg.APIKeys["k1"]; !ok {
		t.Fatalf("expected API key k1")
	}
}

func TestLoadFromEnv_RequiredAuthNeedsAPIKeys(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("KINDLINE_AUTH_MODE", "required")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "KINDLINE_API_KEYS") {
		t.Fatalf("error = %v, expected KINDLINE_API_KEYS in message", err)
	}
}

func TestLoadFromEnv_ParsesCSVKeys(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("KINDLINE_AUTH_MODE", "optional")
	t.Setenv("KINDLINE_API_KEYS", "k1, k2,,")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if len(cfg.APIKeys) != 2 {
		t.Fatalf("APIKeys len=%d, want 2", len(cfg.APIKeys))
	}
	if _, ok := cfg.APIKeys["k2"]; !ok {
		t.Fatalf("missing k2")
	}
}

func TestLoadFromEnv_InvalidDurationsAndBounds(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		errSubstr string
	}{
		{
			name: "invalid auth mode",
			env: map[string]string{
				"KINDLINE_AUTH_MODE": "sometimes",
			},
			errSubstr: "KINDLINE_AUTH_MODE",
		},
		{
			name: "invalid payment expiry",
			env: map[string]string{
				"KINDLINE_AUTH_MODE":      "optional",
				"KINDLINE_PAYMENT_EXPIRY": "0s",
			},
			errSubstr: "KINDLINE_PAYMENT_EXPIRY",
		},
		{
			name: "invalid conversion threshold",
			env: map[string]string{
				"KINDLINE_AUTH_MODE":         "optional",
				"KINDLINE_CONVERT_THRESHOLD": "-1",
			},
			errSubstr: "KINDLINE_CONVERT_THRESHOLD",
		},
		{
			name: "invalid turn timeout",
			env: map[string]string{
				"KINDLINE_AUTH_MODE":    "optional",
				"KINDLINE_TURN_TIMEOUT": "-1s",
			},
			errSubstr: "KINDLINE_TURN_TIMEOUT",
		},
		{
			name: "invalid max session duration",
			env: map[string]string{
				"KINDLINE_AUTH_MODE":            "optional",
				"KINDLINE_MAX_SESSION_DURATION": "0s",
			},
			errSubstr: "KINDLINE_MAX_SESSION_DURATION",
		},
		{
			name: "invalid shutdown grace period",
			env: map[string]string{
				"KINDLINE_AUTH_MODE":             "optional",
				"KINDLINE_SHUTDOWN_GRACE_PERIOD": "0s",
			},
			errSubstr: "KINDLINE_SHUTDOWN_GRACE_PERIOD",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errSubstr) {
				t.Fatalf("error = %v, expected substring %q", err, tc.errSubstr)
			}
		})
	}
}
