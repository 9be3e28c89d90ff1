// Package api serves the player and admin HTTP endpoints and mounts the
// live event socket.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mindtrap/maze-server/internal/adminauth"
	"github.com/mindtrap/maze-server/internal/config"
	"github.com/mindtrap/maze-server/internal/events"
	"github.com/mindtrap/maze-server/internal/game"
	"github.com/mindtrap/maze-server/internal/store"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 5 << 20
)

// Deps are the components the server routes to.
type Deps struct {
	Game *game.Service
	Auth *adminauth.Authenticator
	DB   store.DB
	Hub  *events.Hub
	// Events serves /ws; nil leaves the route unmounted.
	Events http.Handler
	// Sessions reports live answer keys for health checks; optional.
	Sessions interface{ Len() int }
}

// Options tune middleware.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	Limits         config.Limits
	// QuestionCount is the number of active questions one maze needs.
	QuestionCount int
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []string
}

// OptionsFromConfig picks the server options out of the full configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Limits:         cfg.Limits,
		QuestionCount:  cfg.Game.QuestionCount,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
}

// Server handles HTTP requests
type Server struct {
	game     *game.Service
	auth     *adminauth.Authenticator
	db       store.DB
	hub      *events.Hub
	events   http.Handler
	sessions interface{ Len() int }

	opts           Options
	errorHandler   *ErrorHandler
	logger         *log.Logger
	securityLogger *SecurityLogger
	startTime      time.Time
	now            func() time.Time
	trusted        []netip.Prefix

	generalLimit *ipLimiter
	answerLimit  *ipLimiter
	authLimit    *ipLimiter
}

// NewServer creates a new API server
func NewServer(deps Deps, opts Options) *Server {
	logger := log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	securityLogger := NewSecurityLogger()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	trusted, err := config.ParsePrefixes(opts.TrustedProxies)
	if err != nil {
		logger.Printf("trusted_proxies_ignored error=%v", err)
		trusted = nil
	}

	return &Server{
		game:           deps.Game,
		auth:           deps.Auth,
		db:             deps.DB,
		hub:            deps.Hub,
		events:         deps.Events,
		sessions:       deps.Sessions,
		opts:           opts,
		errorHandler:   NewErrorHandler(logger, securityLogger),
		logger:         logger,
		securityLogger: securityLogger,
		startTime:      time.Now(),
		now:            time.Now,
		trusted:        trusted,
		generalLimit:   newIPLimiter("general", opts.Limits.General),
		answerLimit:    newIPLimiter("answer", opts.Limits.Answer),
		authLimit:      newIPLimiter("auth", opts.Limits.Auth),
	}
}

// Uptime is how long the server has existed.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// SecurityLogger exposes the audit logger for process lifecycle events.
func (s *Server) SecurityLogger() *SecurityLogger {
	return s.securityLogger
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.TrustedRealIP)
	r.Use(s.SecurityLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(s.CORSMiddleware)
	r.Use(s.RateLimit(s.generalLimit))

	// The socket outlives any request timeout.
	if s.events != nil {
		r.Handle("/ws", s.events)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		r.Get("/health", s.handleHealthCheck)
		r.Get("/health/ready", s.handleReadiness)
		r.Get("/health/live", s.handleLiveness)
		r.Get("/api/health", s.handlePing)
		r.Get("/api/version", s.handleVersion)

		r.Route("/api/player", func(r chi.Router) {
			r.Post("/join", s.handleJoin)
			r.Get("/state/{sessionID}", s.handleState)
			r.With(s.RateLimit(s.answerLimit)).Post("/answer", s.handleAnswer)
			r.Post("/tabswitch", s.handleTabSwitch)
			r.Get("/leaderboard", s.handleLeaderboard)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.With(s.RateLimit(s.authLimit)).Post("/login", s.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(s.RequireAdmin)

				r.Get("/players", s.handlePlayers)
				r.Post("/kick", s.handleKick)
				r.Post("/pause", s.handlePause)
				r.Post("/reset", s.handleReset)
				r.Post("/declare-winner", s.handleDeclareWinner)
				r.Get("/stats", s.handleStats)
				r.Get("/maze/{seed}", s.handleMazePreview)

				r.Get("/questions", s.handleListQuestions)
				r.Post("/questions", s.handleCreateQuestion)
				r.Post("/questions/upload", s.handleUploadQuestions)
				r.Put("/questions/{id}", s.handleUpdateQuestion)
				r.Delete("/questions/{id}", s.handleDeleteQuestion)
			})
		})
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Server-Version", Version)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d error=%v", status, err)
	}
}

// decodeJSON reads a bounded JSON body into v and reports a validation
// error itself when the body is malformed.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", "Invalid JSON: "+err.Error())
		return false
	}
	return true
}
