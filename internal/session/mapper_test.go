package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindtrap/maze-server/internal/engine"
	"github.com/mindtrap/maze-server/internal/questions"
)

func riddle(id string, options, correct int) questions.Record {
	r := questions.Record{
		ID:           id,
		Text:         "riddle " + id,
		CorrectIndex: correct,
		Difficulty:   3,
		Category:     questions.Wordplay,
		Active:       true,
	}
	for i := 0; i < options; i++ {
		r.Options = append(r.Options, questions.Option{
			Text:       string(rune('A' + i)),
			Obfuscated: "sign " + string(rune('A'+i)),
		})
	}
	return r
}

func TestMapAnswersSoundness(t *testing.T) {
	for seed := int32(0); seed < 500; seed++ {
		r := engine.NewRand(seed)
		for _, opts := range []int{3, 4, 6} {
			for correctPath := 0; correctPath < 3; correctPath++ {
				q := riddle("q", opts, int(seed)%opts)
				j, err := MapAnswers(r, correctPath, q)
				require.NoError(t, err)

				assert.Equal(t, correctPath, j.CorrectPath)
				assert.Equal(t, q.CorrectIndex, j.PathMapping[correctPath])

				seen := map[int]bool{}
				for p, opt := range j.PathMapping {
					require.GreaterOrEqual(t, opt, 0)
					require.Less(t, opt, opts)
					if p != correctPath {
						require.NotEqual(t, q.CorrectIndex, opt, "seed %d", seed)
					}
					seen[opt] = true
				}
				require.Len(t, seen, 3, "seed %d: options must be distinct", seed)
			}
		}
	}
}

func TestMapAnswersDrawOrder(t *testing.T) {
	q := riddle("q", 4, 2)

	// Shuffle the wrong options, keep two, shuffle those.
	ref := engine.NewRand(77)
	picked := engine.Shuffle(engine.Shuffle([]int{0, 1, 3}, ref)[:2], ref)

	r := engine.NewRand(77)
	j, err := MapAnswers(r, 1, q)
	require.NoError(t, err)
	assert.Equal(t, [3]int{picked[0], 2, picked[1]}, j.PathMapping)
	assert.Equal(t, ref.Draws(), r.Draws())
	assert.Equal(t, uint64(3), r.Draws())
}

func TestMapAnswersRejects(t *testing.T) {
	r := engine.NewRand(1)

	_, err := MapAnswers(r, 3, riddle("q", 4, 0))
	assert.ErrorIs(t, err, ErrUnusableQuestion)
	_, err = MapAnswers(r, 0, riddle("q", 2, 0))
	assert.ErrorIs(t, err, ErrUnusableQuestion)
	_, err = MapAnswers(r, 0, riddle("q", 4, 4))
	assert.ErrorIs(t, err, ErrUnusableQuestion)
	assert.Zero(t, r.Draws())
}

func TestLabelFallback(t *testing.T) {
	j := Junction{
		Options: []questions.Option{
			{Text: "Towel", Obfuscated: "Fabric absorption tool"},
			{Text: "Cloud"},
			{},
		},
		PathMapping: [3]int{0, 1, 2},
	}
	assert.Equal(t, "Fabric absorption tool", j.Label(0))
	assert.Equal(t, "Cloud", j.Label(1))
	assert.Equal(t, "Path 3", j.Label(2))
	assert.Equal(t, "Path 5", j.Label(4))
}

func TestJunctionJSONHidesAnswerKey(t *testing.T) {
	j, err := MapAnswers(engine.NewRand(5), 2, riddle("q", 4, 1))
	require.NoError(t, err)

	data, err := json.Marshal(j)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "correctPath")
	assert.NotContains(t, string(data), "pathMapping")
	assert.NotContains(t, string(data), "CorrectPath")
	assert.NotContains(t, string(data), "PathMapping")
}
