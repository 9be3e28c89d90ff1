package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mindtrap/maze-server/internal/engine"
	"github.com/mindtrap/maze-server/internal/maze"
	"github.com/mindtrap/maze-server/internal/questions"
)

// MemoryStore keeps mappings in process memory. Mappings are lost on
// restart and rebuilt on the next join, which gives the same result because
// they depend only on the seed and the question bank.
type MemoryStore struct {
	source QuestionSource
	mazes  *maze.Cache
	logger *log.Logger

	flights singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Mapping
	// pending holds a token per in-flight Assign. Clear removes it so a
	// build that finishes afterwards is not stored.
	pending map[string]uint64
	nextTok uint64
}

// NewMemoryStore creates a store drawing questions from source and mazes
// from cache. A nil logger logs to stdout.
func NewMemoryStore(source QuestionSource, cache *maze.Cache, logger *log.Logger) *MemoryStore {
	if logger == nil {
		logger = log.New(os.Stdout, "[SESSION] ", log.LstdFlags|log.LUTC)
	}
	return &MemoryStore{
		source:   source,
		mazes:    cache,
		logger:   logger,
		sessions: make(map[string]*Mapping),
		pending:  make(map[string]uint64),
	}
}

var _ Store = (*MemoryStore)(nil)

// Assign returns the session's mapping, building it on first use.
func (s *MemoryStore) Assign(ctx context.Context, sessionID string, seed int32) (*Mapping, error) {
	if m, ok := s.lookup(sessionID); ok {
		return m, nil
	}

	ch := s.flights.DoChan(sessionID, func() (interface{}, error) {
		if m, ok := s.lookup(sessionID); ok {
			return m, nil
		}

		s.mu.Lock()
		s.nextTok++
		tok := s.nextTok
		s.pending[sessionID] = tok
		s.mu.Unlock()

		// The build must not be cancelled by whichever caller started it.
		m, err := s.build(context.WithoutCancel(ctx), sessionID, seed)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.pending[sessionID] != tok {
			return nil, ErrCleared
		}
		delete(s.pending, sessionID)
		if err != nil {
			return nil, err
		}
		s.sessions[sessionID] = m
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Mapping), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// build runs the whole pipeline on one stream: maze, question shuffle, then
// answer mapping per junction in the order the maze produced them.
func (s *MemoryStore) build(ctx context.Context, sessionID string, seed int32) (*Mapping, error) {
	start := time.Now()

	b := s.mazes.Build(seed)
	r := b.Stream()

	pool, err := s.source.ActiveQuestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}

	junctions := b.Graph.Junctions()
	picks, err := questions.Select(r, junctions, pool)
	if err != nil {
		return nil, err
	}

	m := &Mapping{
		sessionID: sessionID,
		seed:      seed,
		graph:     b.Graph,
		junctions: make(map[string]*Junction, len(junctions)),
	}
	for _, id := range junctions {
		correct, _ := b.Graph.CorrectPath(id)
		j, err := MapAnswers(r, correct, picks[id])
		if err != nil {
			return nil, fmt.Errorf("map junction %s: %w", id, err)
		}
		m.junctions[id] = &j
	}

	s.logger.Printf("assign session_id=%s seed_hash=%s junctions=%d pool=%d draws=%d duration=%v",
		sessionID, engine.Fingerprint(seed), len(junctions), len(pool), r.Draws(), time.Since(start))
	return m, nil
}

func (s *MemoryStore) lookup(sessionID string) (*Mapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.sessions[sessionID]
	return m, ok
}

// QuestionView returns the question at nodeID without any answer data.
func (s *MemoryStore) QuestionView(sessionID, nodeID string) (*QuestionView, bool) {
	m, ok := s.lookup(sessionID)
	if !ok {
		return nil, false
	}
	return m.QuestionView(nodeID)
}

// Validate reports whether chosenPath is the correct path at nodeID.
func (s *MemoryStore) Validate(sessionID, nodeID string, chosenPath int) ValidationResult {
	m, ok := s.lookup(sessionID)
	if !ok {
		return ValidationResult{}
	}
	return m.Validate(nodeID, chosenPath)
}

// Maze returns the session's graph.
func (s *MemoryStore) Maze(sessionID string) (*maze.Graph, bool) {
	m, ok := s.lookup(sessionID)
	if !ok {
		return nil, false
	}
	return m.graph, true
}

// Clear forgets one session.
func (s *MemoryStore) Clear(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	delete(s.pending, sessionID)
	s.mu.Unlock()
	s.flights.Forget(sessionID)
}

// ClearAll forgets every session.
func (s *MemoryStore) ClearAll() {
	s.mu.Lock()
	n := len(s.sessions)
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.sessions = make(map[string]*Mapping)
	s.pending = make(map[string]uint64)
	s.mu.Unlock()

	for _, id := range ids {
		s.flights.Forget(id)
	}
	s.logger.Printf("clear_all sessions=%d in_flight=%d", n, len(ids))
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
