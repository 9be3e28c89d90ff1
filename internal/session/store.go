package session

import (
	"context"
	"errors"

	"github.com/mindtrap/maze-server/internal/maze"
	"github.com/mindtrap/maze-server/internal/questions"
)

// ErrCleared is returned by Assign when the session was cleared while its
// mapping was being built.
var ErrCleared = errors.New("session cleared during assignment")

// Store owns the secret answer key of every live session.
type Store interface {
	// Assign builds the mapping for a session, or returns the existing one.
	// Concurrent calls for the same id all receive the same *Mapping.
	Assign(ctx context.Context, sessionID string, seed int32) (*Mapping, error)

	// QuestionView returns the client-safe question at a junction, or false
	// when the session or node is unknown.
	QuestionView(sessionID, nodeID string) (*QuestionView, bool)

	// Validate checks a chosen path. Unknown sessions and nodes are incorrect.
	Validate(sessionID, nodeID string, chosenPath int) ValidationResult

	// Maze returns the graph a session was assigned.
	Maze(sessionID string) (*maze.Graph, bool)

	Clear(sessionID string)
	ClearAll()
}

// QuestionSource supplies the active question pool. The pool must come back
// in a stable order for a given bank.
type QuestionSource interface {
	ActiveQuestions(ctx context.Context) ([]questions.Record, error)
}

// SourceFunc adapts a function to QuestionSource.
type SourceFunc func(ctx context.Context) ([]questions.Record, error)

// ActiveQuestions calls f.
func (f SourceFunc) ActiveQuestions(ctx context.Context) ([]questions.Record, error) {
	return f(ctx)
}

// Mapping is the resolved answer key of one session. It is immutable.
type Mapping struct {
	sessionID string
	seed      int32
	graph     *maze.Graph
	junctions map[string]*Junction
}

// SessionID returns the session the mapping belongs to.
func (m *Mapping) SessionID() string { return m.sessionID }

// Seed returns the seed the mapping was built from.
func (m *Mapping) Seed() int32 { return m.seed }

// Graph returns the session's maze.
func (m *Mapping) Graph() *maze.Graph { return m.graph }

// Junction returns a copy of the binding at a junction.
func (m *Mapping) Junction(nodeID string) (Junction, bool) {
	j, ok := m.junctions[nodeID]
	if !ok {
		return Junction{}, false
	}
	return *j, true
}

// Len returns the number of mapped junctions.
func (m *Mapping) Len() int { return len(m.junctions) }

// QuestionView returns the client-safe view of a junction.
func (m *Mapping) QuestionView(nodeID string) (*QuestionView, bool) {
	j, ok := m.junctions[nodeID]
	if !ok {
		return nil, false
	}
	return j.view(nodeID), true
}

// Validate compares a chosen path against the answer key.
func (m *Mapping) Validate(nodeID string, chosenPath int) ValidationResult {
	j, ok := m.junctions[nodeID]
	if !ok {
		return ValidationResult{}
	}
	return ValidationResult{Correct: chosenPath == j.CorrectPath}
}
