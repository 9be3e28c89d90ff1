package questions

import (
	"errors"

	"github.com/mindtrap/maze-server/internal/engine"
)

// ErrEmptyPool is returned when no usable question is available, so a game
// cannot be started.
var ErrEmptyPool = errors.New("no active questions available")

// Select assigns a question to every junction. The usable part of the pool
// is shuffled with r and handed out by position, wrapping around when there
// are more junctions than questions.
//
// The pool order matters: callers must pass it in a stable order (the store
// returns it sorted by id) or the same seed will pick different questions.
func Select(r *engine.Rand, junctions []string, pool []Record) (map[string]Record, error) {
	usable := make([]Record, 0, len(pool))
	for _, q := range pool {
		if q.Usable() {
			usable = append(usable, q)
		}
	}
	if len(usable) == 0 {
		return nil, ErrEmptyPool
	}

	shuffled := engine.Shuffle(usable, r)
	out := make(map[string]Record, len(junctions))
	for i, j := range junctions {
		out[j] = shuffled[i%len(shuffled)]
	}
	return out, nil
}
