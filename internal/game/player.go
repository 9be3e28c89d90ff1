package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindtrap/maze-server/internal/engine"
	"github.com/mindtrap/maze-server/internal/events"
	"github.com/mindtrap/maze-server/internal/maze"
	"github.com/mindtrap/maze-server/internal/session"
	"github.com/mindtrap/maze-server/internal/store"
)

const (
	maxNameLength = 100
	// maxTimeTaken caps a reported answer time before it is stored.
	maxTimeTaken = 24 * time.Hour
)

// JoinResult is returned to a joining player.
type JoinResult struct {
	SessionID       string                `json:"sessionId"`
	Player          PlayerView            `json:"player"`
	Maze            maze.ClientMaze       `json:"maze"`
	CurrentQuestion *session.QuestionView `json:"currentQuestion"`
	Resumed         bool                  `json:"resumed"`
}

// Join resumes the active or paused session of a roll number, or starts a
// new one with a fresh seed.
func (s *Service) Join(ctx context.Context, name, rollNumber string) (*JoinResult, error) {
	name, rollNumber = strings.TrimSpace(name), strings.TrimSpace(rollNumber)
	if name == "" || rollNumber == "" {
		return nil, fmt.Errorf("%w: name and roll number required", ErrInvalidInput)
	}
	if len(name) > maxNameLength || len(rollNumber) > maxNameLength {
		return nil, fmt.Errorf("%w: name or roll number too long", ErrInvalidInput)
	}

	unlock := s.lockSession("roll:" + rollNumber)
	defer unlock()

	existing, err := s.db.FindResumable(ctx, rollNumber)
	if err == nil {
		m, err := s.mapping(ctx, existing)
		if err != nil {
			return nil, err
		}
		s.logger.Printf("resume session_id=%s roll=%s", existing.SessionID, existing.RollNumber)
		return &JoinResult{
			SessionID:       existing.SessionID,
			Player:          playerView(existing),
			Maze:            m.Graph().ClientView(),
			CurrentQuestion: nextQuestion(m, existing.CurrentNode),
			Resumed:         true,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	p := &store.Player{
		SessionID:      uuid.New().String(),
		Name:           name,
		RollNumber:     rollNumber,
		CurrentNode:    maze.StartID,
		Status:         store.StatusActive,
		Seed:           engine.NewSeed(),
		StartTime:      now,
		LastActiveTime: now,
	}

	// The mapping is built first so an empty question bank leaves no row.
	m, err := s.sessions.Assign(ctx, p.SessionID, p.Seed)
	if err != nil {
		return nil, err
	}
	if err := s.db.CreatePlayer(ctx, p); err != nil {
		s.sessions.Clear(p.SessionID)
		return nil, err
	}

	s.logger.Printf("join session_id=%s roll=%s seed_hash=%s", p.SessionID, p.RollNumber, engine.Fingerprint(p.Seed))
	s.events.Publish(events.RoomAdmin, events.PlayerJoined, adminPlayer(p, now))

	return &JoinResult{
		SessionID:       p.SessionID,
		Player:          playerView(p),
		Maze:            m.Graph().ClientView(),
		CurrentQuestion: nextQuestion(m, p.CurrentNode),
	}, nil
}

// StateResult is a player's current view of the game.
type StateResult struct {
	Player          PlayerView            `json:"player"`
	Maze            maze.ClientMaze       `json:"maze"`
	CurrentQuestion *session.QuestionView `json:"currentQuestion"`
}

// State returns the player's progress and the question ahead of them.
func (s *Service) State(ctx context.Context, sessionID string) (*StateResult, error) {
	p, err := s.player(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// A kicked player's answer key stays dropped; only the layout is shown.
	if p.Status == store.StatusKicked {
		res := &StateResult{Player: playerView(p)}
		if s.mazes != nil {
			res.Maze = s.mazes.Build(p.Seed).Graph.ClientView()
		}
		return res, nil
	}
	m, err := s.mapping(ctx, p)
	if err != nil {
		return nil, err
	}
	res := &StateResult{
		Player: playerView(p),
		Maze:   m.Graph().ClientView(),
	}
	if p.Status != store.StatusFinished {
		res.CurrentQuestion = nextQuestion(m, p.CurrentNode)
	}
	return res, nil
}

// KnownSession reports whether a session belongs to a player who is still
// playing. It backs websocket authentication.
func (s *Service) KnownSession(ctx context.Context, sessionID string) bool {
	p, err := s.player(ctx, sessionID)
	return err == nil && p.Status != store.StatusKicked
}

// AnswerResult is the outcome of a submitted path.
type AnswerResult struct {
	Correct         bool                  `json:"correct"`
	AlreadyAnswered bool                  `json:"alreadyAnswered,omitempty"`
	Depth           int                   `json:"depth"`
	Mistakes        int                   `json:"mistakes"`
	Score           int                   `json:"score"`
	Finished        bool                  `json:"finished"`
	NextQuestion    *session.QuestionView `json:"nextQuestion"`
}

// Answer applies a player's choice at a junction.
func (s *Service) Answer(ctx context.Context, sessionID, nodeID string, chosenPath int, timeTakenMs int64) (*AnswerResult, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("%w: node id is required", ErrInvalidInput)
	}
	if chosenPath < 0 || chosenPath >= maze.BranchCount {
		return nil, fmt.Errorf("%w: chosen path must be 0-%d", ErrInvalidInput, maze.BranchCount-1)
	}
	if timeTakenMs < 0 {
		return nil, fmt.Errorf("%w: time taken must not be negative", ErrInvalidInput)
	}
	timeTakenMs = min(timeTakenMs, maxTimeTaken.Milliseconds())

	unlock := s.lockSession(sessionID)
	defer unlock()

	p, err := s.player(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if p.Status != store.StatusActive {
		return nil, ErrNotActive
	}
	if p.AnsweredCorrectly(nodeID) {
		return &AnswerResult{
			Correct:         true,
			AlreadyAnswered: true,
			Depth:           p.Depth,
			Mistakes:        p.Mistakes,
			Score:           p.Score,
		}, nil
	}

	m, err := s.mapping(ctx, p)
	if err != nil {
		return nil, err
	}
	g := m.Graph()
	node, ok := g.Node(nodeID)
	if !ok || node.Kind != maze.KindJunction || g.NextStop(p.CurrentNode) != nodeID {
		return nil, ErrWrongJunction
	}

	now := s.now()
	if time.Duration(timeTakenMs)*time.Millisecond < s.opts.SuspiciousAnswer {
		p.Flag(reasonFastAnswer)
		s.logger.Printf("suspicious session_id=%s reason=%q time_taken_ms=%d", p.SessionID, reasonFastAnswer, timeTakenMs)
	}

	result := s.sessions.Validate(p.SessionID, nodeID, chosenPath)
	if result.Correct {
		p.Depth = max(p.Depth, node.Depth+1)
		p.QuestionsAnswered++
		if edge, ok := g.Branch(nodeID, chosenPath); ok {
			p.CurrentNode = g.NextStop(edge.To)
		}
		if n, _ := g.Node(p.CurrentNode); n.Kind == maze.KindVictory {
			p.Status = store.StatusFinished
			p.CompletedAt = &now
		}
	} else {
		p.Mistakes++
	}
	p.LastActiveTime = now
	p.Score = s.score(p, now)

	if err := s.db.SaveAnswer(ctx, p, store.Answer{
		NodeID:      nodeID,
		Correct:     result.Correct,
		AnsweredAt:  now,
		TimeTakenMs: timeTakenMs,
	}); err != nil {
		return nil, err
	}

	s.events.Publish(events.RoomAdmin, events.PlayerUpdated, adminPlayer(p, now))
	s.publishLeaderboard(ctx)

	res := &AnswerResult{
		Correct:  result.Correct,
		Depth:    p.Depth,
		Mistakes: p.Mistakes,
		Score:    p.Score,
		Finished: p.Status == store.StatusFinished,
	}
	if result.Correct && !res.Finished {
		res.NextQuestion = nextQuestion(m, p.CurrentNode)
	}
	return res, nil
}

// TabSwitch counts a player leaving the game tab and flags repeat offenders.
// Unknown sessions are ignored.
func (s *Service) TabSwitch(ctx context.Context, sessionID string) error {
	unlock := s.lockSession(sessionID)
	defer unlock()

	p, err := s.player(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	p.TabSwitchCount++
	if p.TabSwitchCount > s.opts.MaxTabSwitches {
		p.Flag(reasonTabSwitch)
	}
	return s.db.UpdatePlayer(ctx, p)
}

// Leaderboard returns the ranked active and finished players.
func (s *Service) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	players, err := s.db.Leaderboard(ctx, s.opts.LeaderboardSize)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]LeaderboardEntry, len(players))
	for i := range players {
		p := &players[i]
		out[i] = LeaderboardEntry{
			Rank:              i + 1,
			Name:              p.Name,
			RollNumber:        p.RollNumber,
			Depth:             p.Depth,
			Mistakes:          p.Mistakes,
			Score:             p.Score,
			Status:            p.Status,
			QuestionsAnswered: p.QuestionsAnswered,
			TimeElapsed:       int64(p.Elapsed(now) / time.Second),
		}
	}
	return out, nil
}

func (s *Service) publishLeaderboard(ctx context.Context) {
	board, err := s.Leaderboard(ctx)
	if err != nil {
		s.logger.Printf("leaderboard_failed error=%v", err)
		return
	}
	s.events.Broadcast(events.LeaderboardUpdate, board)
}
