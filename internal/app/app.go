// Package app assembles the server from its configuration and owns the
// lifecycle of the database, the event hub and the HTTP listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/mindtrap/maze-server/internal/adminauth"
	"github.com/mindtrap/maze-server/internal/api"
	"github.com/mindtrap/maze-server/internal/config"
	"github.com/mindtrap/maze-server/internal/events"
	"github.com/mindtrap/maze-server/internal/game"
	"github.com/mindtrap/maze-server/internal/maze"
	"github.com/mindtrap/maze-server/internal/questions"
	"github.com/mindtrap/maze-server/internal/scoring"
	"github.com/mindtrap/maze-server/internal/session"
	"github.com/mindtrap/maze-server/internal/store"
)

const (
	leaderboardSize   = 50
	readHeaderTimeout = 10 * time.Second
)

// App owns every long-lived component of a running server.
type App struct {
	cfg    config.Config
	logger *log.Logger

	db         *store.SQLiteDB
	mazes      *maze.Cache
	sessions   *session.MemoryStore
	hub        *events.Hub
	game       *game.Service
	api        *api.Server
	httpServer *http.Server
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger      *log.Logger
	secretStore *adminauth.SecretStore
}

// WithLogger sets the logger every component logs through.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSecretStore replaces the keyring-backed store of the signing secret.
func WithSecretStore(s *adminauth.SecretStore) Option {
	return func(o *options) { o.secretStore = s }
}

// New opens and migrates the database and wires the game, the event hub and
// the HTTP API. It does not listen yet.
func New(ctx context.Context, cfg config.Config, opts ...Option) (a *App, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = log.New(os.Stdout, "[APP] ", log.LstdFlags|log.LUTC)
	}
	if o.secretStore == nil {
		o.secretStore = adminauth.NewSecretStore(cfg.Admin.KeyringService, cfg.Admin.SecretsFile)
	}

	db, err := store.NewSQLiteDB(cfg.Database.Path, store.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, db.Close())
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	secret, source, err := adminauth.ResolveSecret(cfg.Admin.JWTSecret, o.secretStore)
	if err != nil {
		return nil, fmt.Errorf("resolve jwt secret: %w", err)
	}
	if source == adminauth.SourceEphemeral {
		logger.Printf("jwt_secret source=%s warning=%q", source, "admin tokens will not survive a restart")
	} else {
		logger.Printf("jwt_secret source=%s", source)
	}
	auth, err := adminauth.NewAuthenticator(cfg.Admin.Username, cfg.Admin.Password, secret, cfg.Admin.TokenTTL)
	if err != nil {
		return nil, err
	}

	scorer, err := newScorer(cfg.Scoring.Formula, o.logger)
	if err != nil {
		return nil, err
	}

	mazes, err := maze.NewCache(cfg.Game.MazeCacheSize, cfg.Game.QuestionCount)
	if err != nil {
		return nil, err
	}
	sessions := session.NewMemoryStore(db, mazes, o.logger)
	hub := events.NewHub(o.logger)

	svc := game.NewService(db, sessions, mazes, scorer, hub, game.Options{
		SuspiciousAnswer: time.Duration(cfg.Game.SuspiciousAnswerMs) * time.Millisecond,
		MaxTabSwitches:   cfg.Game.MaxTabSwitches,
		LeaderboardSize:  leaderboardSize,
	}, serviceOptions(o.logger)...)

	ws := events.NewHandler(hub, events.HandlerConfig{
		VerifyAdmin: func(token string) error {
			_, err := auth.Verify(token)
			return err
		},
		KnownSession:   svc.KnownSession,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         o.logger,
	})

	server := api.NewServer(api.Deps{
		Game:     svc,
		Auth:     auth,
		DB:       db,
		Hub:      hub,
		Events:   ws,
		Sessions: sessions,
	}, api.OptionsFromConfig(cfg))

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		mazes:    mazes,
		sessions: sessions,
		hub:      hub,
		game:     svc,
		api:      server,
		httpServer: &http.Server{
			Handler:           server.Routes(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// newScorer compiles the configured formula. A formula that does not compile
// is a configuration error; one that fails while scoring falls back to the
// standard rule.
func newScorer(formula string, logger *log.Logger) (scoring.Scorer, error) {
	if formula == "" {
		return scoring.Standard{}, nil
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[SCORING] ", log.LstdFlags|log.LUTC)
	}
	s, err := scoring.NewScript(formula, scoring.Standard{}, logger)
	if err != nil {
		return nil, fmt.Errorf("scoring formula: %w", err)
	}
	return s, nil
}

func serviceOptions(logger *log.Logger) []game.Option {
	if logger == nil {
		return nil
	}
	return []game.Option{game.WithLogger(logger)}
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.api.Routes()
}

// Game exposes the game service.
func (a *App) Game() *game.Service {
	return a.game
}

// SeedQuestions stores the built-in bank when the database has no questions.
// It returns how many questions were added.
func (a *App) SeedQuestions(ctx context.Context) (int, error) {
	existing, err := a.db.ListQuestions(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		a.logger.Printf("seed_questions skipped=true existing=%d", len(existing))
		return 0, nil
	}
	bank, err := questions.DefaultBank()
	if err != nil {
		return 0, err
	}
	n, err := a.db.ImportQuestions(ctx, bank)
	if err != nil {
		return 0, err
	}
	a.logger.Printf("seed_questions imported=%d", n)
	return n, nil
}

// Listen binds the configured address. The returned listener is passed to
// Serve; binding first lets callers learn the port before serving.
func (a *App) Listen() (net.Listener, error) {
	return net.Listen("tcp", a.cfg.Server.Addr)
}

// Serve handles HTTP on ln until Shutdown. A clean shutdown returns nil.
func (a *App) Serve(ln net.Listener) error {
	a.api.SecurityLogger().LogSystemStartup(ln.Addr().String(), map[string]interface{}{
		"database":       a.cfg.Database.Path,
		"question_count": a.cfg.Game.QuestionCount,
		"scoring":        scorerName(a.cfg.Scoring.Formula),
		"origins":        a.cfg.Server.AllowedOrigins,
	})

	err := a.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func scorerName(formula string) string {
	if formula == "" {
		return "standard"
	}
	return "script"
}

// Shutdown stops accepting requests, waits for in-flight ones, closes every
// socket and then the database.
func (a *App) Shutdown(ctx context.Context, reason string) error {
	err := a.httpServer.Shutdown(ctx)
	a.hub.Close()
	a.mazes.Purge()
	err = multierr.Append(err, a.db.Close())

	a.api.SecurityLogger().LogSystemShutdown(reason, a.api.Uptime())
	return err
}
