package game

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mindtrap/maze-server/internal/store"
)

// PlayerView is the part of a player the player themselves may see.
type PlayerView struct {
	Name              string       `json:"name"`
	RollNumber        string       `json:"rollNumber"`
	CurrentNode       string       `json:"currentNode"`
	Depth             int          `json:"depth"`
	Mistakes          int          `json:"mistakes"`
	Score             int          `json:"score"`
	Status            store.Status `json:"status"`
	QuestionsAnswered int          `json:"questionsAnswered"`
	StartTime         time.Time    `json:"startTime"`
}

func playerView(p *store.Player) PlayerView {
	return PlayerView{
		Name:              p.Name,
		RollNumber:        p.RollNumber,
		CurrentNode:       p.CurrentNode,
		Depth:             p.Depth,
		Mistakes:          p.Mistakes,
		Score:             p.Score,
		Status:            p.Status,
		QuestionsAnswered: p.QuestionsAnswered,
		StartTime:         p.StartTime,
	}
}

// AdminPlayer is the admin console row of a player.
type AdminPlayer struct {
	store.Player
	TimeElapsed int64  `json:"timeElapsed"`
	LastSeen    string `json:"lastSeen"`
}

func adminPlayer(p *store.Player, now time.Time) AdminPlayer {
	return AdminPlayer{
		Player:      *p,
		TimeElapsed: int64(p.Elapsed(now) / time.Second),
		LastSeen:    humanize.RelTime(p.LastActiveTime, now, "ago", "from now"),
	}
}

// LeaderboardEntry is one ranked row of the public leaderboard.
type LeaderboardEntry struct {
	Rank              int          `json:"rank"`
	Name              string       `json:"name"`
	RollNumber        string       `json:"rollNumber"`
	Depth             int          `json:"depth"`
	Mistakes          int          `json:"mistakes"`
	Score             int          `json:"score"`
	Status            store.Status `json:"status"`
	QuestionsAnswered int          `json:"questionsAnswered"`
	TimeElapsed       int64        `json:"timeElapsed"`
}

// Winner is the payload of a game:winner event.
type Winner struct {
	SessionID   string `json:"sessionId"`
	Name        string `json:"name"`
	RollNumber  string `json:"rollNumber"`
	Score       int    `json:"score"`
	Depth       int    `json:"depth"`
	Mistakes    int    `json:"mistakes"`
	TimeElapsed int64  `json:"timeElapsed"`
	// Duration is TimeElapsed in words, e.g. "12 minutes".
	Duration string `json:"duration"`
}

func winner(p *store.Player, now time.Time) Winner {
	elapsed := p.Elapsed(now)
	return Winner{
		SessionID:   p.SessionID,
		Name:        p.Name,
		RollNumber:  p.RollNumber,
		Score:       p.Score,
		Depth:       p.Depth,
		Mistakes:    p.Mistakes,
		TimeElapsed: int64(elapsed / time.Second),
		Duration:    strings.TrimSpace(humanize.RelTime(now.Add(-elapsed), now, "", "")),
	}
}
