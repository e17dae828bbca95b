package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kindline-ai/kindline/pkg/gateway/config"
	"github.com/kindline-ai/kindline/pkg/gateway/convert"
	"github.com/kindline-ai/kindline/pkg/gateway/generation"
	"github.com/kindline-ai/kindline/pkg/gateway/payment"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
	"github.com/kindline-ai/kindline/pkg/gateway/screening"
)

type stubProcessor struct{}

func (stubProcessor) CreateCheckoutLink(ctx context.Context, clientID, planID string) (string, error) {
	return "https://pay.example/" + clientID, nil
}

func (stubProcessor) SubscriptionStatus(ctx context.Context, clientID string) (payment.Status, error) {
	return payment.Status{}, nil
}

type stubSender struct{}

func (stubSender) Send(ctx context.Context, to, body string) error { return nil }

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, systemPrompt string, history []generation.Message) (string, error) {
	return "that sounds lovely", nil
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := profile.NewMemStore()

	flow, err := payment.New(payment.Dependencies{
		Store:     store,
		Processor: stubProcessor{},
		Messenger: stubSender{},
		Logger:    logger,
		PlanID:    "price_test",
		Expiry:    30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("payment.New error = %v", err)
	}
	trigger, err := convert.New(convert.Dependencies{
		Store:     store,
		Flow:      flow,
		Logger:    logger,
		Threshold: 8,
	})
	if err != nil {
		t.Fatalf("convert.New error = %v", err)
	}

	return New(cfg, logger, Dependencies{
		Store:     store,
		Flow:      flow,
		Trigger:   trigger,
		Generator: stubGenerator{},
		Screener:  screening.NewRuleScreener(),
	})
}

func baseConfig() config.Config {
	return config.Config{
		AuthMode:           config.AuthModeRequired,
		APIKeys:            map[string]struct{}{"kl_sk_test": {}},
		TurnTimeout:        15 * time.Second,
		MaxSessionDuration: 2 * time.Hour,
	}
}

func TestServer_HealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t, baseConfig())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServer_ReadyReportsDraining(t *testing.T) {
	s := newTestServer(t, baseConfig())
	s.Lifecycle().SetDraining(true)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp struct {
		Draining bool `json:"draining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !resp.Draining {
		t.Fatalf("resp = %+v, want draining", resp)
	}
}

func TestServer_CallsRequiresAuth(t *testing.T) {
	s := newTestServer(t, baseConfig())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/calls", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestServer_CallsAcceptsConfiguredKey(t *testing.T) {
	s := newTestServer(t, baseConfig())
	req := httptest.NewRequest(http.MethodPost, "/v1/calls", nil)
	req.Header.Set("Authorization", "Bearer kl_sk_test")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	// Auth passed; the handler then rejects the method, not the credentials.
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestServer_UnknownRouteIs404Envelope(t *testing.T) {
	s := newTestServer(t, baseConfig())
	req := httptest.NewRequest(http.MethodGet, "/v1/unknown", nil)
	req.Header.Set("Authorization", "Bearer kl_sk_test")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var env struct {
		Error *struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Error == nil || env.Error.Type != "not_found_error" {
		t.Fatalf("envelope = %+v", env)
	}
}
