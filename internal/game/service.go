// Package game runs the quiz rules on top of the session store and the
// database: joining, answering, anti-cheat flags and the admin controls.
package game

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mindtrap/maze-server/internal/events"
	"github.com/mindtrap/maze-server/internal/maze"
	"github.com/mindtrap/maze-server/internal/scoring"
	"github.com/mindtrap/maze-server/internal/session"
	"github.com/mindtrap/maze-server/internal/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotActive       = errors.New("game is not active")
	ErrWrongJunction   = errors.New("node is not the player's next junction")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoPlayers       = errors.New("no player found")
)

const (
	reasonFastAnswer = "Suspiciously fast answer"
	reasonTabSwitch  = "Excessive tab switching"

	lockStripes = 64
)

// Options tune the anti-cheat thresholds and leaderboard size.
type Options struct {
	SuspiciousAnswer time.Duration
	MaxTabSwitches   int
	LeaderboardSize  int
}

// DefaultOptions match the built-in configuration.
func DefaultOptions() Options {
	return Options{
		SuspiciousAnswer: 1500 * time.Millisecond,
		MaxTabSwitches:   10,
		LeaderboardSize:  50,
	}
}

// Service is the game API used by the HTTP layer.
type Service struct {
	db       store.DB
	sessions session.Store
	mazes    *maze.Cache
	scorer   scoring.Scorer
	events   events.Publisher
	opts     Options
	logger   *log.Logger
	now      func() time.Time

	// bulk is held exclusively by operations touching every player.
	bulk    sync.RWMutex
	stripes [lockStripes]sync.Mutex
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the game together. A nil scorer uses the standard rule
// and a nil publisher drops events.
func NewService(db store.DB, sessions session.Store, mazes *maze.Cache, scorer scoring.Scorer,
	pub events.Publisher, opts Options, options ...Option) *Service {
	if scorer == nil {
		scorer = scoring.Standard{}
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = 50
	}
	s := &Service{
		db:       db,
		sessions: sessions,
		mazes:    mazes,
		scorer:   scorer,
		events:   pub,
		opts:     opts,
		logger:   log.New(os.Stdout, "[GAME] ", log.LstdFlags|log.LUTC),
		now:      time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Scorer returns the scoring rule in use.
func (s *Service) Scorer() scoring.Scorer {
	return s.scorer
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Room, string, any) {}
func (nopPublisher) Broadcast(string, any)            {}

// lockSession serializes writes to one player and keeps bulk operations out.
func (s *Service) lockSession(sessionID string) func() {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	m := &s.stripes[h.Sum32()%lockStripes]

	s.bulk.RLock()
	m.Lock()
	return func() {
		m.Unlock()
		s.bulk.RUnlock()
	}
}

func (s *Service) lockAll() func() {
	s.bulk.Lock()
	return s.bulk.Unlock
}

func (s *Service) player(ctx context.Context, sessionID string) (*store.Player, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	p, err := s.db.GetPlayer(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return p, err
}

// mapping returns the player's answer key, rebuilding it after a restart.
// mapping never rebuilds the answer key of a kicked player.
func (s *Service) mapping(ctx context.Context, p *store.Player) (*session.Mapping, error) {
	if p.Status == store.StatusKicked {
		return nil, ErrNotActive
	}
	return s.sessions.Assign(ctx, p.SessionID, p.Seed)
}

func (s *Service) score(p *store.Player, now time.Time) int {
	return s.scorer.Score(scoring.Inputs{
		Depth:             p.Depth,
		Mistakes:          p.Mistakes,
		QuestionsAnswered: p.QuestionsAnswered,
		Elapsed:           p.Elapsed(now),
	})
}

// nextQuestion returns the question ahead of the player's current node, or
// nil when the next stop is not a junction.
func nextQuestion(m *session.Mapping, current string) *session.QuestionView {
	g := m.Graph()
	next := g.NextStop(current)
	n, ok := g.Node(next)
	if !ok || n.Kind != maze.KindJunction {
		return nil
	}
	q, _ := m.QuestionView(next)
	return q
}
