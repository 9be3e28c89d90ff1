// Package scoring turns a player's progress into a score.
package scoring

import (
	"math"
	"time"
)

// Inputs are the progress values a score is computed from.
type Inputs struct {
	Depth             int
	Mistakes          int
	QuestionsAnswered int
	Elapsed           time.Duration
}

// Scorer computes a score. Implementations must be safe for concurrent use.
type Scorer interface {
	Score(in Inputs) int
}

// Standard points: ten per level reached, minus five per wrong path and two
// per full minute played. Scores never go below zero.
const (
	PointsPerDepth   = 10
	PenaltyPerMiss   = 5
	PenaltyPerMinute = 2
)

// Standard is the default scoring rule.
type Standard struct{}

// Score implements Scorer.
func (Standard) Score(in Inputs) int {
	minutes := int(math.Floor(in.Elapsed.Seconds() / 60))
	score := in.Depth*PointsPerDepth - in.Mistakes*PenaltyPerMiss - minutes*PenaltyPerMinute
	if score < 0 {
		return 0
	}
	return score
}
