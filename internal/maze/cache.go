package maze

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mindtrap/maze-server/internal/engine"
)

// DefaultCacheSize bounds the number of generated mazes kept in memory.
const DefaultCacheSize = 1024

// Build is a generated maze plus the state of the seed's stream right after
// generation, so later steps can continue the stream without regenerating.
type Build struct {
	Graph *Graph
	Tail  uint32
}

// Stream returns a fresh generator positioned after the maze draws.
func (b Build) Stream() *engine.Rand {
	return engine.Resume(b.Tail)
}

// Cache memoises Generate for a fixed question count. Graphs are immutable,
// so a cached graph can be shared between sessions with the same seed.
type Cache struct {
	questionCount int
	c             *lru.Cache[int32, Build]
}

// NewCache creates a cache holding up to size mazes.
func NewCache(size, questionCount int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[int32, Build](size)
	if err != nil {
		return nil, fmt.Errorf("maze cache: %w", err)
	}
	return &Cache{questionCount: questionCount, c: c}, nil
}

// QuestionCount returns the number of junctions in every cached maze.
func (mc *Cache) QuestionCount() int {
	return mc.questionCount
}

// Build returns the maze for seed, generating it on a miss.
func (mc *Cache) Build(seed int32) Build {
	if b, ok := mc.c.Get(seed); ok {
		return b
	}
	r := engine.NewRand(seed)
	b := Build{Graph: GenerateWith(r, mc.questionCount), Tail: r.State()}
	mc.c.Add(seed, b)
	return b
}

// Len returns the number of cached mazes.
func (mc *Cache) Len() int {
	return mc.c.Len()
}

// Purge drops every cached maze.
func (mc *Cache) Purge() {
	mc.c.Purge()
}
