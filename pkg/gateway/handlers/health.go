package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kindline-ai/kindline/pkg/gateway/config"
	"github.com/kindline-ai/kindline/pkg/gateway/lifecycle"
	"github.com/kindline-ai/kindline/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK           bool     `json:"ok"`
		AuthMode     string   `json:"auth_mode"`
		Draining     bool     `json:"draining"`
		ActiveCalls  int      `json:"active_calls"`
		DevStore     bool     `json:"dev_store"`
		PaymentsLive bool     `json:"payments_live"`
		Issues       []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.TurnTimeout <= 0 {
		issues = append(issues, "turn timeout must be > 0")
	}
	if h.Config.MaxSessionDuration <= 0 {
		issues = append(issues, "max session duration must be > 0")
	}
	if h.Config.StripeAPIKey != "" && h.Config.StripePlanID == "" {
		issues = append(issues, "stripe key set without a plan id")
	}

	draining := h.Lifecycle.IsDraining()
	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:           ok,
		AuthMode:     string(h.Config.AuthMode),
		Draining:     draining,
		ActiveCalls:  h.Sessions.Count(),
		DevStore:     h.Config.DatabaseURL == "",
		PaymentsLive: h.Config.StripeAPIKey != "",
		Issues:       issues,
	})
}
