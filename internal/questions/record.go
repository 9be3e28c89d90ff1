package questions

import (
	"errors"
	"fmt"
	"strings"
)

// Category groups riddles by the kind of trick they play.
type Category string

const (
	BrainTeaser       Category = "brain-teaser"
	LogicalIllusion   Category = "logical-illusion"
	PsychologicalTrap Category = "psychological-trap"
	Wordplay          Category = "wordplay"
	LateralThinking   Category = "lateral-thinking"
)

// Categories lists every known category.
var Categories = []Category{BrainTeaser, LogicalIllusion, PsychologicalTrap, Wordplay, LateralThinking}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Limits on a question's shape.
const (
	MinOptions    = 3
	MaxOptions    = 6
	MinDifficulty = 1
	MaxDifficulty = 5
)

// ErrInvalidQuestion is wrapped by every Validate failure.
var ErrInvalidQuestion = errors.New("invalid question")

// Option is one possible answer. Obfuscated is the phrasing shown on a path
// sign so the label does not give the answer away by wording.
type Option struct {
	Text       string `json:"text"`
	Obfuscated string `json:"obfuscated,omitempty"`
}

// Record is a question in the bank.
type Record struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []Option `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Difficulty   int      `json:"difficulty"`
	Category     Category `json:"category"`
	Active       bool     `json:"active"`
}

// Usable reports whether the record can be placed at a junction: it must be
// active, offer at least one option per path, and point at a real option.
func (r Record) Usable() bool {
	return r.Active &&
		len(r.Options) >= MinOptions &&
		r.CorrectIndex >= 0 && r.CorrectIndex < len(r.Options)
}

// Validate checks a record before it is stored.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidQuestion)
	}
	if len(r.Options) < MinOptions || len(r.Options) > MaxOptions {
		return fmt.Errorf("%w: need %d-%d options, got %d", ErrInvalidQuestion, MinOptions, MaxOptions, len(r.Options))
	}
	for i, o := range r.Options {
		if strings.TrimSpace(o.Text) == "" {
			return fmt.Errorf("%w: option %d has no text", ErrInvalidQuestion, i+1)
		}
	}
	if r.CorrectIndex < 0 || r.CorrectIndex >= len(r.Options) {
		return fmt.Errorf("%w: correct index %d out of range", ErrInvalidQuestion, r.CorrectIndex)
	}
	if r.Difficulty < MinDifficulty || r.Difficulty > MaxDifficulty {
		return fmt.Errorf("%w: difficulty must be %d-%d, got %d", ErrInvalidQuestion, MinDifficulty, MaxDifficulty, r.Difficulty)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidQuestion, r.Category)
	}
	return nil
}

// Normalize fills defaults the way the bank stores them: difficulty 1,
// category brain-teaser, and obfuscated text trimmed.
func (r *Record) Normalize() {
	r.Text = strings.TrimSpace(r.Text)
	if r.Difficulty == 0 {
		r.Difficulty = MinDifficulty
	}
	if r.Category == "" {
		r.Category = BrainTeaser
	}
	for i := range r.Options {
		r.Options[i].Text = strings.TrimSpace(r.Options[i].Text)
		r.Options[i].Obfuscated = strings.TrimSpace(r.Options[i].Obfuscated)
	}
}
