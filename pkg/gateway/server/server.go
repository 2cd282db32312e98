// Package server assembles the gateway: routes, middleware, and the wiring
// of collaborators into handlers.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vigil-live/vigil/pkg/core/brain"
	"github.com/vigil-live/vigil/pkg/core/relay"
	"github.com/vigil-live/vigil/pkg/core/report"
	"github.com/vigil-live/vigil/pkg/core/voice/stt"
	"github.com/vigil-live/vigil/pkg/core/voice/tts"
	"github.com/vigil-live/vigil/pkg/gateway/config"
	"github.com/vigil-live/vigil/pkg/gateway/handlers"
	"github.com/vigil-live/vigil/pkg/gateway/lifecycle"
	"github.com/vigil-live/vigil/pkg/gateway/live/sessions"
	"github.com/vigil-live/vigil/pkg/gateway/metrics"
	"github.com/vigil-live/vigil/pkg/gateway/mw"
)

// Collaborators are the external service clients the server hands to its
// handlers. Tests substitute fakes here.
type Collaborators struct {
	STT      stt.Provider
	Brain    brain.Responder
	TTS      tts.Synthesizer
	Relay    *relay.Relay
	Registry *relay.Registry
	Reporter report.Reporter

	// NewBridgeResponder builds an intelligence backend with the phone
	// persona for one bridge call.
	NewBridgeResponder handlers.ResponderFactory
}

type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	mux       *http.ServeMux
	metrics   *metrics.Metrics
	lifecycle *lifecycle.Lifecycle
	sessions  *sessions.Tracker
	collab    Collaborators
}

func New(cfg config.Config, logger *slog.Logger, m *metrics.Metrics, lc *lifecycle.Lifecycle, tracker *sessions.Tracker, collab Collaborators) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New("vigil")
	}
	if lc == nil {
		lc = &lifecycle.Lifecycle{}
	}
	if tracker == nil {
		tracker = sessions.NewTracker()
	}
	if collab.Reporter == nil {
		collab.Reporter = report.Discard{}
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		metrics:   m,
		lifecycle: lc,
		sessions:  tracker,
		collab:    collab,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/v1/session", handlers.LiveHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		Metrics:   s.metrics,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
		STT:       s.collab.STT,
		Brain:     s.collab.Brain,
		TTS:       s.collab.TTS,
		Relay:     s.collab.Relay,
		Reporter:  s.collab.Reporter,
	})

	if s.collab.Registry != nil && s.collab.NewBridgeResponder != nil {
		s.mux.Handle("/v1/bridge", handlers.BridgeHandler{
			Config:       s.cfg,
			Logger:       s.logger,
			Metrics:      s.metrics,
			Registry:     s.collab.Registry,
			STT:          s.collab.STT,
			TTS:          s.collab.TTS,
			NewResponder: s.collab.NewBridgeResponder,
		})
	}

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// SetDraining flips readiness so load balancers stop routing new sessions.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WarnSessionsDraining tells every live session the gateway is going away.
func (s *Server) WarnSessionsDraining() int {
	return s.sessions.WarnAll("draining", "gateway is shutting down")
}

// WaitSessions blocks until live sessions drain or ctx expires.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

// CancelSessions force-cancels any sessions still running.
func (s *Server) CancelSessions() int {
	return s.sessions.CancelAll()
}

// Handler returns the full middleware chain around the mux.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
