package game

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/mindtrap/maze-server/internal/engine"
	"github.com/mindtrap/maze-server/internal/events"
	"github.com/mindtrap/maze-server/internal/maze"
	"github.com/mindtrap/maze-server/internal/questions"
	"github.com/mindtrap/maze-server/internal/store"
)

// Players returns every player for the admin console, best first.
func (s *Service) Players(ctx context.Context) ([]AdminPlayer, error) {
	players, err := s.db.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]AdminPlayer, len(players))
	for i := range players {
		out[i] = adminPlayer(&players[i], now)
	}
	return out, nil
}

// Kick removes a player from the game and drops their answer key.
func (s *Service) Kick(ctx context.Context, sessionID string) error {
	unlock := s.lockSession(sessionID)
	defer unlock()

	p, err := s.player(ctx, sessionID)
	if err != nil {
		return err
	}
	p.Status = store.StatusKicked
	if err := s.db.UpdatePlayer(ctx, p); err != nil {
		return err
	}
	s.sessions.Clear(sessionID)

	s.logger.Printf("kick session_id=%s roll=%s", p.SessionID, p.RollNumber)
	s.events.Broadcast(events.PlayerKicked, map[string]string{"sessionId": sessionID})
	s.publishLeaderboard(ctx)
	return nil
}

// Pause moves every active player to paused, or back.
func (s *Service) Pause(ctx context.Context, paused bool) (int64, error) {
	unlock := s.lockAll()
	defer unlock()

	to := store.StatusActive
	if paused {
		to = store.StatusPaused
	}
	n, err := s.db.SetAllStatus(ctx, []store.Status{store.StatusActive, store.StatusPaused}, to)
	if err != nil {
		return 0, err
	}
	s.logger.Printf("pause paused=%t players=%d", paused, n)
	s.events.Broadcast(events.GamePaused, map[string]bool{"paused": paused})
	return n, nil
}

// Reset deletes every player and answer key.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	unlock := s.lockAll()
	defer unlock()

	n, err := s.db.DeleteAllPlayers(ctx)
	if err != nil {
		return 0, err
	}
	s.sessions.ClearAll()
	s.logger.Printf("reset players=%d", n)
	s.events.Broadcast(events.GameReset, nil)
	return n, nil
}

// DeclareWinner announces a player, or the leader when sessionID is empty.
func (s *Service) DeclareWinner(ctx context.Context, sessionID string) (*Winner, error) {
	var p *store.Player
	if sessionID != "" {
		found, err := s.player(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		p = found
	} else {
		top, err := s.db.Leaderboard(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(top) == 0 {
			return nil, ErrNoPlayers
		}
		p = &top[0]
	}

	w := winner(p, s.now())
	s.logger.Printf("winner session_id=%s score=%d", w.SessionID, w.Score)
	s.events.Broadcast(events.GameWinner, w)
	return &w, nil
}

// Stats are the admin dashboard counters.
type Stats struct {
	store.Stats
	// Accuracy is the percentage of correct answers with two decimals.
	Accuracy string `json:"accuracy"`
}

// Stats aggregates player and question counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.db.PlayerStats(ctx)
	if err != nil {
		return nil, err
	}
	accuracy := decimal.Zero
	if st.AnswersTotal > 0 {
		accuracy = decimal.NewFromInt(int64(st.AnswersCorrect)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(st.AnswersTotal)))
	}
	return &Stats{Stats: *st, Accuracy: accuracy.StringFixed(2)}, nil
}

// Questions lists the bank by difficulty.
func (s *Service) Questions(ctx context.Context) ([]questions.Record, error) {
	return s.db.ListQuestions(ctx)
}

// CreateQuestion validates and stores a question.
func (s *Service) CreateQuestion(ctx context.Context, q questions.Record) (*questions.Record, error) {
	q.ID = ""
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.db.CreateQuestion(ctx, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// UpdateQuestion replaces a question. Sessions already assigned keep the
// text they were given.
func (s *Service) UpdateQuestion(ctx context.Context, id string, q questions.Record) (*questions.Record, error) {
	q.ID = id
	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.db.UpdateQuestion(ctx, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// DeleteQuestion removes a question from the bank.
func (s *Service) DeleteQuestion(ctx context.Context, id string) error {
	return s.db.DeleteQuestion(ctx, id)
}

// ImportCSV parses an uploaded CSV and stores its valid rows.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (*questions.ImportResult, error) {
	res, err := questions.ParseCSV(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", questions.ErrInvalidQuestion, err)
	}
	if len(res.Records) == 0 {
		return res, nil
	}
	n, err := s.db.ImportQuestions(ctx, res.Records)
	if err != nil {
		return nil, err
	}
	res.Imported = n
	s.logger.Printf("import_questions imported=%d skipped=%d", n, res.Skipped)
	return res, nil
}

// MazePreview returns the full graph, answer key included, for a seed.
func (s *Service) MazePreview(seed int32) maze.Snapshot {
	s.logger.Printf("maze_preview seed_hash=%s", engine.Fingerprint(seed))
	return s.mazes.Build(seed).Graph.Snapshot()
}

// IsNotFound reports whether err means a missing player or question.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, store.ErrNotFound)
}
