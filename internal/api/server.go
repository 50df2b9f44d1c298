package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"tracklight/internal/activestate"
	"tracklight/internal/audit"
	"tracklight/internal/auth"
	"tracklight/internal/broadcast"
	"tracklight/internal/engine"
	"tracklight/internal/geo"
	"tracklight/internal/store"
	"tracklight/internal/telemetry"
	"tracklight/internal/tracker"
)

// Config carries the HTTP-level knobs that are not collaborator objects.
type Config struct {
	// RateLimitPerIP caps requests per IP per minute on the public beacon
	// endpoints. Zero disables the limiter.
	RateLimitPerIP int
	// CORSOrigins lists allowed origins for the admin panel. Empty allows
	// any origin, which the beacon endpoints need anyway since the tracking
	// script runs on third-party pages.
	CORSOrigins []string
}

// Server wires the HTTP surface: public beacon endpoints, the realtime
// websocket, and the JWT-guarded admin API.
type Server struct {
	store   store.Store
	tracker *tracker.Tracker
	engine  *engine.Engine
	auth    *auth.Service
	hub     *broadcast.Hub
	active  activestate.State
	audit   *audit.Service
	geo     geo.Resolver
	log     zerolog.Logger
	cfg     Config
}

func NewServer(
	st store.Store,
	tr *tracker.Tracker,
	eng *engine.Engine,
	authSvc *auth.Service,
	hub *broadcast.Hub,
	active activestate.State,
	auditSvc *audit.Service,
	g geo.Resolver,
	log zerolog.Logger,
	cfg Config,
) *Server {
	if g == nil {
		g = geo.NopResolver{}
	}
	return &Server{
		store:   st,
		tracker: tr,
		engine:  eng,
		auth:    authSvc,
		hub:     hub,
		active:  active,
		audit:   auditSvc,
		geo:     g,
		log:     log,
		cfg:     cfg,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(telemetry.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Public beacon endpoints, hit by the tracking script on every page.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		if s.cfg.RateLimitPerIP > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitPerIP, time.Minute))
		}
		r.Post("/visitors/track", s.handleTrack)
		r.Post("/visitors/ping", s.handlePing)
		r.Get("/rules/matching", s.handleMatching)
		r.Get("/js-snippets/latest", s.handleLatestSnippet)
		r.Get("/js-snippets/latest-script.js", s.handleLatestScript)
	})

	// Websocket push channel. No timeout middleware; connections are long-lived.
	r.Get("/realtime", s.hub.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Post("/auth/login", s.handleLogin)
	})

	// Admin API, JWT-guarded.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Use(s.auth.Middleware)

		r.Get("/rules", s.handleListRules)
		r.Post("/rules", s.handleCreateRule)
		r.Get("/rules/{id}", s.handleGetRule)
		r.Put("/rules/{id}", s.handleUpdateRule)
		r.Delete("/rules/{id}", s.handleDeleteRule)

		r.Get("/js-snippets", s.handleListSnippets)
		r.Post("/js-snippets", s.handleCreateSnippet)
		r.Get("/js-snippets/{id}", s.handleGetSnippet)
		r.Put("/js-snippets/{id}", s.handleUpdateSnippet)
		r.Delete("/js-snippets/{id}", s.handleDeleteSnippet)
		r.Post("/js-snippets/execute", s.handleExecuteSnippet)
		r.Post("/js-snippets/deactivate", s.handleDeactivateSnippet)

		r.Get("/visitors/dashboard-stats", s.handleDashboardStats)
		r.Get("/visitors/user-activities", s.handleUserActivities)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}
