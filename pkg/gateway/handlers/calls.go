package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kindline-ai/kindline/pkg/gateway/apierror"
	"github.com/kindline-ai/kindline/pkg/gateway/auth"
	"github.com/kindline-ai/kindline/pkg/gateway/config"
	"github.com/kindline-ai/kindline/pkg/gateway/convert"
	"github.com/kindline-ai/kindline/pkg/gateway/enrichment"
	"github.com/kindline-ai/kindline/pkg/gateway/lifecycle"
	"github.com/kindline-ai/kindline/pkg/gateway/live/session"
	"github.com/kindline-ai/kindline/pkg/gateway/live/sessions"
	"github.com/kindline-ai/kindline/pkg/gateway/mw"
	"github.com/kindline-ai/kindline/pkg/gateway/payment"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
	"github.com/kindline-ai/kindline/pkg/gateway/ratelimit"
	"github.com/kindline-ai/kindline/pkg/gateway/screening"
)

// CallsHandler upgrades /v1/calls to a websocket and runs one call session
// per connection. The telephony bridge speaks the live call protocol; all
// call semantics live in the session package.
type CallsHandler struct {
	Config     config.Config
	Logger     *slog.Logger
	Store      profile.Store
	Flow       *payment.Flow
	Trigger    *convert.Trigger
	Generator  session.Generator
	Screener   screening.Screener
	Enrichment *enrichment.Runner
	Sessions   *sessions.Tracker
	Limiter    *ratelimit.Limiter
	Lifecycle  *lifecycle.Lifecycle
}

func (h CallsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		apierror.Write(w, http.StatusMethodNotAllowed, &apierror.Error{
			Type:      apierror.TypeInvalidRequest,
			Message:   "method not allowed",
			Code:      "method_not_allowed",
			RequestID: reqID,
		})
		return
	}
	if h.Lifecycle.IsDraining() {
		apierror.Write(w, http.StatusServiceUnavailable, &apierror.Error{
			Type:      apierror.TypeAPI,
			Message:   "gateway is draining",
			Code:      "draining",
			RequestID: reqID,
		})
		return
	}

	principal := "anonymous"
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		principal = p.Fingerprint()
	}
	var callPermit *ratelimit.Permit
	if h.Limiter != nil && h.Config.MaxCallsPerPrincipal > 0 {
		dec := h.Limiter.AcquireCall(principal, time.Now())
		if !dec.Allowed {
			apierror.Write(w, http.StatusTooManyRequests, &apierror.Error{
				Type:      apierror.TypeRateLimit,
				Message:   "too many active calls",
				RequestID: reqID,
			})
			return
		}
		callPermit = dec.Permit
		defer callPermit.Release()
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.WSHandshakeTimeout,
		// The bridge is server-to-server; browser origin policy does not apply.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s, err := session.New(session.Dependencies{
		Conn:       conn,
		Logger:     h.Logger,
		Store:      h.Store,
		Flow:       h.Flow,
		Trigger:    h.Trigger,
		Generator:  h.Generator,
		Screener:   h.Screener,
		Enrichment: h.Enrichment,
		Tracker:    h.Sessions,
		Config: session.Config{
			MaxJSONMessageBytes: h.Config.WSMaxJSONMessageBytes,
			ReadTimeout:         h.Config.WSReadTimeout,
			WriteTimeout:        h.Config.WSWriteTimeout,
			PingInterval:        h.Config.WSPingInterval,
			TurnTimeout:         h.Config.TurnTimeout,
			MaxSessionDuration:  h.Config.MaxSessionDuration,
			MaxHistoryTurns:     h.Config.MaxHistoryTurns,
			ContextTokenBudget:  h.Config.ContextTokenBudget,
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("call session init failed", "request_id", reqID, "error", err)
		}
		return
	}

	if err := s.Run(); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("call session ended with error", "session_id", s.ID(), "request_id", reqID, "error", err)
		}
	}
}
