package session

import (
	"errors"
	"fmt"

	"github.com/mindtrap/maze-server/internal/engine"
	"github.com/mindtrap/maze-server/internal/maze"
	"github.com/mindtrap/maze-server/internal/questions"
)

// ErrUnusableQuestion is returned by MapAnswers for a question that cannot
// fill three paths.
var ErrUnusableQuestion = errors.New("question cannot be mapped to paths")

// Junction binds one question to the three paths of a junction.
// PathMapping and CorrectPath are the answer key and never leave the server.
type Junction struct {
	QuestionID   string             `json:"questionId"`
	QuestionText string             `json:"questionText"`
	Options      []questions.Option `json:"options"`
	Difficulty   int                `json:"difficulty"`

	// PathMapping[p] is the option shown on path p.
	PathMapping [maze.BranchCount]int `json:"-"`
	CorrectPath int                   `json:"-"`
}

// MapAnswers places the correct option of q on correctPath and two wrong
// options on the other paths. It draws from r in a fixed order: one shuffle
// of the wrong option indices, then one shuffle of the two chosen ones.
func MapAnswers(r *engine.Rand, correctPath int, q questions.Record) (Junction, error) {
	if correctPath < 0 || correctPath >= maze.BranchCount {
		return Junction{}, fmt.Errorf("%w: path %d out of range", ErrUnusableQuestion, correctPath)
	}
	if len(q.Options) < maze.BranchCount || q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return Junction{}, fmt.Errorf("%w: %s", ErrUnusableQuestion, q.ID)
	}

	wrong := make([]int, 0, len(q.Options)-1)
	for i := range q.Options {
		if i != q.CorrectIndex {
			wrong = append(wrong, i)
		}
	}
	picked := engine.Shuffle(engine.Shuffle(wrong, r)[:maze.BranchCount-1], r)

	j := Junction{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		Options:      append([]questions.Option(nil), q.Options...),
		Difficulty:   q.Difficulty,
		CorrectPath:  correctPath,
	}
	j.PathMapping[correctPath] = q.CorrectIndex
	k := 0
	for p := 0; p < maze.BranchCount; p++ {
		if p == correctPath {
			continue
		}
		j.PathMapping[p] = picked[k]
		k++
	}
	return j, nil
}

// Label returns the sign text for path p: the obfuscated phrasing of the
// option, its plain text, or a generic name.
func (j *Junction) Label(p int) string {
	if p >= 0 && p < maze.BranchCount {
		if opt := j.PathMapping[p]; opt >= 0 && opt < len(j.Options) {
			if o := j.Options[opt]; o.Obfuscated != "" {
				return o.Obfuscated
			} else if o.Text != "" {
				return o.Text
			}
		}
	}
	return fmt.Sprintf("Path %d", p+1)
}

// QuestionView is what a player sees at a junction.
type QuestionView struct {
	NodeID       string   `json:"nodeId"`
	QuestionText string   `json:"questionText"`
	PathLabels   []string `json:"pathLabels"`
	Difficulty   int      `json:"difficulty"`
}

func (j *Junction) view(nodeID string) *QuestionView {
	labels := make([]string, maze.BranchCount)
	for p := range labels {
		labels[p] = j.Label(p)
	}
	return &QuestionView{
		NodeID:       nodeID,
		QuestionText: j.QuestionText,
		PathLabels:   labels,
		Difficulty:   j.Difficulty,
	}
}

// ValidationResult is the outcome of checking a chosen path.
type ValidationResult struct {
	Correct bool `json:"correct"`
}
