package server

import (
	"log/slog"
	"net/http"

	"github.com/kindline-ai/kindline/pkg/gateway/config"
	"github.com/kindline-ai/kindline/pkg/gateway/convert"
	"github.com/kindline-ai/kindline/pkg/gateway/enrichment"
	"github.com/kindline-ai/kindline/pkg/gateway/handlers"
	"github.com/kindline-ai/kindline/pkg/gateway/lifecycle"
	"github.com/kindline-ai/kindline/pkg/gateway/live/session"
	"github.com/kindline-ai/kindline/pkg/gateway/live/sessions"
	"github.com/kindline-ai/kindline/pkg/gateway/mw"
	"github.com/kindline-ai/kindline/pkg/gateway/payment"
	"github.com/kindline-ai/kindline/pkg/gateway/profile"
	"github.com/kindline-ai/kindline/pkg/gateway/ratelimit"
	"github.com/kindline-ai/kindline/pkg/gateway/screening"
)

// Dependencies are the domain collaborators the server routes calls into.
// main constructs them; the server only wires transport around them.
type Dependencies struct {
	Store      profile.Store
	Flow       *payment.Flow
	Trigger    *convert.Trigger
	Generator  session.Generator
	Screener   screening.Screener
	Enrichment *enrichment.Runner
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Dependencies

	limiter   *ratelimit.Limiter
	lifecycle *lifecycle.Lifecycle
	sessions  *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                cfg.LimitRPS,
			Burst:              cfg.LimitBurst,
			MaxConcurrentCalls: cfg.MaxCallsPerPrincipal,
		}),
		lifecycle: &lifecycle.Lifecycle{},
		sessions:  sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
	})

	s.mux.Handle("/v1/calls", handlers.CallsHandler{
		Config:     s.cfg,
		Logger:     s.logger,
		Store:      s.deps.Store,
		Flow:       s.deps.Flow,
		Trigger:    s.deps.Trigger,
		Generator:  s.deps.Generator,
		Screener:   s.deps.Screener,
		Enrichment: s.deps.Enrichment,
		Sessions:   s.sessions,
		Limiter:    s.limiter,
		Lifecycle:  s.lifecycle,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Lifecycle is shared with main so shutdown can flip readiness to draining.
func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.lifecycle }

// Sessions is the live call tracker, used by main to warn and drain calls
// during graceful shutdown.
func (s *Server) Sessions() *sessions.Tracker { return s.sessions }
