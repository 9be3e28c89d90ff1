package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindtrap/maze-server/internal/engine"
	"github.com/mindtrap/maze-server/internal/maze"
	"github.com/mindtrap/maze-server/internal/questions"
)

func staticPool(n int) SourceFunc {
	pool := make([]questions.Record, n)
	for i := range pool {
		pool[i] = riddle(fmt.Sprintf("r%02d", i), 4, i%4)
	}
	return func(context.Context) ([]questions.Record, error) {
		return pool, nil
	}
}

func newStore(t *testing.T, source QuestionSource, questionCount int) *MemoryStore {
	t.Helper()
	cache, err := maze.NewCache(16, questionCount)
	require.NoError(t, err)
	return NewMemoryStore(source, cache, log.New(io.Discard, "", 0))
}

func TestAssignExampleScenario(t *testing.T) {
	s := newStore(t, staticPool(5), 3)

	m, err := s.Assign(context.Background(), "sess-1", 12345)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())

	g := maze.Generate(12345, 3)
	correct, ok := g.CorrectPath("q2")
	require.True(t, ok)

	j, ok := m.Junction("q2")
	require.True(t, ok)
	assert.Equal(t, correct, j.CorrectPath)
	assert.Equal(t, j.PathMapping[correct], questionCorrect(t, j))

	view, ok := s.QuestionView("sess-1", "q2")
	require.True(t, ok)
	for p, label := range view.PathLabels {
		assert.True(t, strings.HasPrefix(label, "sign "), "path %d label %q", p, label)
	}

	assert.True(t, s.Validate("sess-1", "q2", correct).Correct)
}

// questionCorrect recovers the correct option index from the pool question.
func questionCorrect(t *testing.T, j Junction) int {
	t.Helper()
	id, err := strconv.Atoi(strings.TrimPrefix(j.QuestionID, "r"))
	require.NoError(t, err)
	return id % 4
}

func TestAssignDeterministic(t *testing.T) {
	a := newStore(t, staticPool(12), maze.DefaultQuestionCount)
	b := newStore(t, staticPool(12), maze.DefaultQuestionCount)

	ma, err := a.Assign(context.Background(), "x", 424242)
	require.NoError(t, err)
	mb, err := b.Assign(context.Background(), "y", 424242)
	require.NoError(t, err)

	for _, id := range ma.Graph().Junctions() {
		ja, _ := ma.Junction(id)
		jb, _ := mb.Junction(id)
		assert.Equal(t, ja, jb, id)
	}
}

func TestAssignIdempotent(t *testing.T) {
	var calls atomic.Int32
	pool := staticPool(8)
	source := SourceFunc(func(ctx context.Context) ([]questions.Record, error) {
		calls.Add(1)
		return pool(ctx)
	})
	s := newStore(t, source, 10)

	first, err := s.Assign(context.Background(), "sess", 1)
	require.NoError(t, err)
	second, err := s.Assign(context.Background(), "sess", 999)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), second.Seed(), "a second seed never overwrites")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAssignConcurrent(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	pool := staticPool(8)
	source := SourceFunc(func(ctx context.Context) ([]questions.Record, error) {
		calls.Add(1)
		<-release
		return pool(ctx)
	})
	s := newStore(t, source, maze.DefaultQuestionCount)

	const n = 32
	results := make([]*Mapping, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := s.Assign(context.Background(), "race", 31337)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, s.Len())
}

func TestAssignEmptyPool(t *testing.T) {
	s := newStore(t, staticPool(0), 3)

	_, err := s.Assign(context.Background(), "sess", 1)
	assert.ErrorIs(t, err, questions.ErrEmptyPool)
	assert.Zero(t, s.Len())

	_, ok := s.QuestionView("sess", "q1")
	assert.False(t, ok)
}

func TestAssignSourceError(t *testing.T) {
	boom := errors.New("database locked")
	s := newStore(t, SourceFunc(func(context.Context) ([]questions.Record, error) {
		return nil, boom
	}), 3)

	_, err := s.Assign(context.Background(), "sess", 1)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.Len())
}

func TestAssignCancelledCaller(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newStore(t, SourceFunc(func(ctx context.Context) ([]questions.Record, error) {
		<-release
		return staticPool(3)(ctx)
	}), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Assign(ctx, "slow", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClearDuringAssign(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	s := newStore(t, SourceFunc(func(ctx context.Context) ([]questions.Record, error) {
		close(entered)
		<-release
		return staticPool(3)(ctx)
	}), 3)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Assign(context.Background(), "kicked", 7)
		errc <- err
	}()

	<-entered
	s.Clear("kicked")
	close(release)

	assert.ErrorIs(t, <-errc, ErrCleared)
	assert.Zero(t, s.Len())
	assert.False(t, s.Validate("kicked", "q1", 0).Correct)
}

func TestValidateSemantics(t *testing.T) {
	s := newStore(t, staticPool(6), 5)
	m, err := s.Assign(context.Background(), "sess", 2024)
	require.NoError(t, err)

	for _, id := range m.Graph().Junctions() {
		correct, _ := m.Graph().CorrectPath(id)
		for p := 0; p < maze.BranchCount; p++ {
			assert.Equal(t, p == correct, s.Validate("sess", id, p).Correct, "%s path %d", id, p)
		}
		assert.False(t, s.Validate("sess", id, -1).Correct)
		assert.False(t, s.Validate("sess", id, 3).Correct)
	}

	assert.False(t, s.Validate("unknown", "q1", 0).Correct)
	assert.False(t, s.Validate("sess", "not-a-node", 0).Correct)
	assert.False(t, s.Validate("sess", maze.StartID, 0).Correct)
}

func TestQuestionViewSecrecy(t *testing.T) {
	s := newStore(t, staticPool(6), maze.DefaultQuestionCount)
	m, err := s.Assign(context.Background(), "sess", 99)
	require.NoError(t, err)

	for _, id := range m.Graph().Junctions() {
		view, ok := s.QuestionView("sess", id)
		require.True(t, ok)
		require.Len(t, view.PathLabels, maze.BranchCount)

		var fields map[string]json.RawMessage
		data, err := json.Marshal(view)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &fields))
		assert.ElementsMatch(t, []string{"nodeId", "questionText", "pathLabels", "difficulty"}, keysOf(fields))
	}

	_, ok := s.QuestionView("sess", "nope")
	assert.False(t, ok)
	_, ok = s.QuestionView("nobody", "q1")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	s := newStore(t, staticPool(6), 3)
	ctx := context.Background()
	_, err := s.Assign(ctx, "a", 1)
	require.NoError(t, err)
	_, err = s.Assign(ctx, "b", 2)
	require.NoError(t, err)

	s.Clear("a")
	_, ok := s.QuestionView("a", "q1")
	assert.False(t, ok)
	_, ok = s.Maze("a")
	assert.False(t, ok)
	_, ok = s.QuestionView("b", "q1")
	assert.True(t, ok)

	s.ClearAll()
	assert.Zero(t, s.Len())
	_, ok = s.QuestionView("b", "q1")
	assert.False(t, ok)

	// A cleared session can be assigned again and gets the same key.
	m, err := s.Assign(ctx, "a", 1)
	require.NoError(t, err)
	g, ok := s.Maze("a")
	require.True(t, ok)
	assert.Same(t, m.Graph(), g)
}

func TestMappingUsesSharedStream(t *testing.T) {
	s := newStore(t, staticPool(5), 3)
	m, err := s.Assign(context.Background(), "sess", 12345)
	require.NoError(t, err)

	// Rebuild by hand: maze, shuffle, then answers in junction order.
	r := engine.NewRand(12345)
	g := maze.GenerateWith(r, 3)
	pool, _ := staticPool(5)(context.Background())
	picks, err := questions.Select(r, g.Junctions(), pool)
	require.NoError(t, err)
	for _, id := range g.Junctions() {
		correct, _ := g.CorrectPath(id)
		want, err := MapAnswers(r, correct, picks[id])
		require.NoError(t, err)
		got, _ := m.Junction(id)
		assert.Equal(t, want, got, id)
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
