package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frontdesk-ai/frontdesk/pkg/gateway/config"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/handlers"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/lifecycle"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/mw"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/ratelimit"
	"github.com/frontdesk-ai/frontdesk/pkg/gateway/sessions"
	"github.com/frontdesk-ai/frontdesk/pkg/orchestrator"
	"github.com/frontdesk-ai/frontdesk/pkg/store"
	"github.com/frontdesk-ai/frontdesk/pkg/webquery"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store        store.Store
	orchestrator *orchestrator.Orchestrator
	limiter      *ratelimit.Limiter
	lifecycle    *lifecycle.Lifecycle
	webSessions  *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, st store.Store, avatar webquery.AvatarSink) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		store:  st,
		orchestrator: orchestrator.New(orchestrator.Config{
			Store:          st,
			Avatar:         avatar,
			Logger:         logger,
			Principal:      cfg.Principal,
			MaxCallerTurns: cfg.MaxCallerTurns,
			DecisionBudget: cfg.PolicyBudget,
			IdleTimeout:    cfg.SessionIdleTimeout,
		}),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:         cfg.LimitRPS,
			Burst:       cfg.LimitBurst,
			MaxSessions: cfg.WSMaxSessionsPerPrincipal,
		}),
		lifecycle:   &lifecycle.Lifecycle{},
		webSessions: sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	s.mux.Handle("POST /v1/calls", handlers.OpenCallHandler{
		Config:       s.cfg,
		Orchestrator: s.orchestrator,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
	})
	s.mux.Handle("POST /v1/calls/{id}/turns", handlers.TurnHandler{
		Config:       s.cfg,
		Orchestrator: s.orchestrator,
		Logger:       s.logger,
	})
	s.mux.Handle("POST /v1/calls/{id}/hangup", handlers.HangupHandler{
		Orchestrator: s.orchestrator,
		Logger:       s.logger,
	})
	s.mux.Handle("GET /v1/transcripts", handlers.TranscriptsHandler{
		Config: s.cfg,
		Store:  s.store,
		Logger: s.logger,
	})
	s.mux.Handle("GET /v1/web", handlers.WebHandler{
		Config:       s.cfg,
		Orchestrator: s.orchestrator,
		Logger:       s.logger,
		Limiter:      s.limiter,
		Lifecycle:    s.lifecycle,
		WebSessions:  s.webSessions,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Orchestrator exposes the session registry for the reap loop and for
// shutdown.
func (s *Server) Orchestrator() *orchestrator.Orchestrator { return s.orchestrator }

// SetDraining flips readiness so load balancers stop routing here.
func (s *Server) SetDraining() { s.lifecycle.SetDraining(true) }

// WarnWebSessionsDraining tells connected web clients the gateway is
// going away.
func (s *Server) WarnWebSessionsDraining() {
	s.webSessions.WarnAll("draining", "gateway is shutting down")
}

// WaitWebSessions blocks until every web session has unregistered or
// the context expires.
func (s *Server) WaitWebSessions(ctx context.Context) bool { return s.webSessions.Wait(ctx) }

// CancelWebSessions force-closes any web session that outlived the
// grace period.
func (s *Server) CancelWebSessions() { s.webSessions.CancelAll() }
