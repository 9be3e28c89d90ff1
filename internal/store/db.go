package store

import (
	"context"
	"errors"
	"time"

	"github.com/mindtrap/maze-server/internal/questions"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB represents the database interface
type DB interface {
	Close() error
	Migrate(ctx context.Context) error

	CreateQuestion(ctx context.Context, q *questions.Record) error
	UpdateQuestion(ctx context.Context, q *questions.Record) error
	DeleteQuestion(ctx context.Context, id string) error
	GetQuestion(ctx context.Context, id string) (*questions.Record, error)
	ListQuestions(ctx context.Context) ([]questions.Record, error)
	ActiveQuestions(ctx context.Context) ([]questions.Record, error)
	CountActiveQuestions(ctx context.Context) (int, error)
	ImportQuestions(ctx context.Context, recs []questions.Record) (int, error)

	CreatePlayer(ctx context.Context, p *Player) error
	UpdatePlayer(ctx context.Context, p *Player) error
	GetPlayer(ctx context.Context, sessionID string) (*Player, error)
	FindResumable(ctx context.Context, rollNumber string) (*Player, error)
	ListPlayers(ctx context.Context) ([]Player, error)
	Leaderboard(ctx context.Context, limit int) ([]Player, error)
	SetAllStatus(ctx context.Context, from []Status, to Status) (int64, error)
	DeletePlayer(ctx context.Context, sessionID string) error
	DeleteAllPlayers(ctx context.Context) (int64, error)
	RecordAnswer(ctx context.Context, sessionID string, a Answer) error
	// SaveAnswer updates the player and appends the answer atomically.
	SaveAnswer(ctx context.Context, p *Player, a Answer) error
	PlayerStats(ctx context.Context) (*Stats, error)
}

// Status is the lifecycle state of a player.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
	StatusKicked   Status = "kicked"
)

// Player is a participant and their progress through the maze.
type Player struct {
	SessionID         string     `json:"sessionId"`
	Name              string     `json:"name"`
	RollNumber        string     `json:"rollNumber"`
	CurrentNode       string     `json:"currentNode"`
	Depth             int        `json:"depth"`
	Mistakes          int        `json:"mistakes"`
	Score             int        `json:"score"`
	Status            Status     `json:"status"`
	QuestionsAnswered int        `json:"questionsAnswered"`
	Seed              int32      `json:"-"`
	StartTime         time.Time  `json:"startTime"`
	LastActiveTime    time.Time  `json:"lastActiveTime"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	Suspicious        bool       `json:"suspicious"`
	SuspiciousReasons []string   `json:"suspiciousReasons"`
	TabSwitchCount    int        `json:"tabSwitchCount"`

	// Answers is only loaded by GetPlayer and FindResumable.
	Answers []Answer `json:"-"`
}

// Elapsed is the play time so far, or the total once finished.
func (p *Player) Elapsed(now time.Time) time.Duration {
	end := now
	if p.CompletedAt != nil {
		end = *p.CompletedAt
	}
	if end.Before(p.StartTime) {
		return 0
	}
	return end.Sub(p.StartTime)
}

// AnsweredCorrectly reports whether the player already solved a junction.
func (p *Player) AnsweredCorrectly(nodeID string) bool {
	for _, a := range p.Answers {
		if a.NodeID == nodeID && a.Correct {
			return true
		}
	}
	return false
}

// Flag marks the player suspicious, recording each reason once.
func (p *Player) Flag(reason string) {
	p.Suspicious = true
	for _, r := range p.SuspiciousReasons {
		if r == reason {
			return
		}
	}
	p.SuspiciousReasons = append(p.SuspiciousReasons, reason)
}

// Answer is one submitted path choice.
type Answer struct {
	NodeID      string    `json:"nodeId"`
	Correct     bool      `json:"correct"`
	AnsweredAt  time.Time `json:"answeredAt"`
	TimeTakenMs int64     `json:"timeTakenMs"`
}

// Stats are aggregate counts for the admin console.
type Stats struct {
	Total          int `json:"total"`
	Active         int `json:"active"`
	Finished       int `json:"finished"`
	Suspicious     int `json:"suspicious"`
	QuestionCount  int `json:"questionCount"`
	AnswersTotal   int `json:"answersTotal"`
	AnswersCorrect int `json:"answersCorrect"`
}
