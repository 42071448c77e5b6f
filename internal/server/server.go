// Package server provides the HTTP server and routing for the dashboard.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/config"
	"github.com/aristath/tradedesk/internal/database"
	"github.com/aristath/tradedesk/internal/domain"
	"github.com/aristath/tradedesk/internal/events"
	"github.com/aristath/tradedesk/internal/market"
	"github.com/aristath/tradedesk/internal/refresh"
	"github.com/aristath/tradedesk/internal/session"
	"github.com/aristath/tradedesk/internal/trading"
)

// Config holds everything the HTTP layer needs
type Config struct {
	Log       zerolog.Logger
	Cfg       *config.Config
	Guard     *session.Guard
	Client    domain.ExchangeClient
	Quotes    *market.QuoteCache
	Wallet    *market.WalletCache
	Trading   *trading.Service
	Scheduler *refresh.Scheduler
	Bus       *events.Bus
	SessionDB *database.DB
	CacheDB   *database.DB
}

// Server is the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	guard     *session.Guard
	client    domain.ExchangeClient
	quotes    *market.QuoteCache
	wallet    *market.WalletCache
	trading   *trading.Service
	scheduler *refresh.Scheduler
	bus       *events.Bus
	sessionDB *database.DB
	cacheDB   *database.DB
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Cfg,
		guard:     cfg.Guard,
		client:    cfg.Client,
		quotes:    cfg.Quotes,
		wallet:    cfg.Wallet,
		trading:   cfg.Trading,
		scheduler: cfg.Scheduler,
		bus:       cfg.Bus,
		sessionDB: cfg.SessionDB,
		cacheDB:   cfg.CacheDB,
	}

	s.setupMiddleware(cfg.Cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the SSE stream is a long-lived response.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// SSE event stream. Connecting for a view also starts that view's
		// refresh schedule; disconnect stops it.
		streamHandler := NewEventsStreamHandler(s.bus, s.scheduler, s.viewRefresher, s.cfg.PollInterval, s.log)
		r.Get("/events/stream", streamHandler.ServeHTTP)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Get("/session", s.handleSession)
		})

		// Everything below requires a valid session.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/dashboard", s.handleDashboard)
			r.Get("/quotes", s.handleQuotes)
			r.Get("/wallet", s.handleWallet)

			r.Post("/trade", s.handleSubmitTrade)
			r.Post("/trade/estimate", s.handleEstimateTrade)
			r.Get("/trades", s.handleTradeHistory)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})
	})
}

// requireAuth gates protected routes on the auth guard. The guard performs
// its redirect side effect (NavigateLogin on the bus) exactly once per
// failed check; the HTTP answer is a plain 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.guard.RequireLogin(); err != nil {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleUpstreamError maps exchange client failures to HTTP responses.
// A 401 from upstream invalidates the local session on its way out.
func (s *Server) handleUpstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrUnauthenticated) {
		s.guard.InvalidateUpstream()
		respondError(w, http.StatusUnauthorized, "session expired")
		return
	}
	respondError(w, http.StatusBadGateway, err.Error())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes JSON from request body
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
