package maze

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindtrap/maze-server/internal/engine"
)

func TestGenerateDeterministic(t *testing.T) {
	for _, seed := range []int32{0, 1, 12345, -42, engine.MaxSeed - 1} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			a, err := json.Marshal(Generate(seed, DefaultQuestionCount).Snapshot())
			require.NoError(t, err)
			b, err := json.Marshal(Generate(seed, DefaultQuestionCount).Snapshot())
			require.NoError(t, err)
			assert.Equal(t, string(a), string(b))
		})
	}
}

func TestGenerateSeedsDiffer(t *testing.T) {
	a := Generate(100, DefaultQuestionCount).CorrectPaths()
	b := Generate(101, DefaultQuestionCount).CorrectPaths()
	assert.NotEqual(t, a, b)
}

// Known layouts guard the stream order of the generator. Any change to how
// draws are consumed changes every player's maze.
func TestGenerateGolden(t *testing.T) {
	tests := []struct {
		seed      int32
		questions int
		nodes     int
		draws     uint64
		victory   Node
	}{
		{seed: 12345, questions: 3, nodes: 64, draws: 35, victory: Node{ID: VictoryID, X: 76, Z: 0, Depth: 3, Kind: KindVictory}},
		{seed: 42, questions: 30, nodes: 529, draws: 322, victory: Node{ID: VictoryID, X: 724, Z: -16, Depth: 30, Kind: KindVictory}},
		{seed: 7, questions: 1, nodes: 23, draws: 11, victory: Node{ID: VictoryID, X: 28, Z: -8, Depth: 1, Kind: KindVictory}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("seed=%d/q=%d", tt.seed, tt.questions), func(t *testing.T) {
			r := engine.NewRand(tt.seed)
			g := GenerateWith(r, tt.questions)

			assert.Equal(t, tt.nodes, g.Len())
			assert.Len(t, g.Edges(), tt.nodes-1, "the maze is a tree")
			assert.Equal(t, tt.draws, r.Draws())

			v, ok := g.Node(VictoryID)
			require.True(t, ok)
			assert.Equal(t, tt.victory, v)
		})
	}

	assert.Equal(t, map[string]int{"q1": 1, "q2": 1, "q3": 1}, Generate(12345, 3).CorrectPaths())
}

func TestGenerateInvariants(t *testing.T) {
	for seed := int32(0); seed < 300; seed++ {
		for _, q := range []int{1, 3, DefaultQuestionCount} {
			g := Generate(seed, q)
			name := fmt.Sprintf("seed=%d q=%d", seed, q)

			checkNoOverlap(t, g, name)
			checkJunctions(t, g, name)
			checkVictoryReachable(t, g, name)
		}
	}
}

func checkNoOverlap(t *testing.T, g *Graph, name string) {
	t.Helper()
	cells := make(map[[2]int]string, g.Len())
	for _, id := range g.NodeIDs() {
		n, _ := g.Node(id)
		key := [2]int{n.X, n.Z}
		if other, taken := cells[key]; taken {
			t.Fatalf("%s: %s and %s share cell (%d,%d)", name, other, id, n.X, n.Z)
		}
		cells[key] = id
	}
}

func checkJunctions(t *testing.T, g *Graph, name string) {
	t.Helper()
	junctions := g.Junctions()
	require.Len(t, junctions, g.QuestionCount(), name)

	for i, j := range junctions {
		n, ok := g.Node(j)
		require.True(t, ok, name)
		require.Equal(t, KindJunction, n.Kind, name)
		require.True(t, n.IsQuestion, name)
		require.Equal(t, BranchCount, n.PathCount, name)
		require.Equal(t, i, n.Depth, name)

		out := g.Outgoing(j)
		require.Len(t, out, BranchCount, "%s: %s", name, j)
		seen := make(map[int]bool)
		for _, e := range out {
			p, ok := e.PathIndex()
			require.True(t, ok, "%s: %s edge without path index", name, j)
			seen[p] = true
		}
		require.Len(t, seen, BranchCount, name)

		correct, ok := g.CorrectPath(j)
		require.True(t, ok, name)

		for p := 0; p < BranchCount; p++ {
			e, ok := g.Branch(j, p)
			require.True(t, ok, name)
			stop := g.NextStop(e.To)
			kind := mustKind(t, g, stop)
			if p == correct {
				if i+1 < len(junctions) {
					require.Equal(t, junctions[i+1], stop, "%s: %s correct branch", name, j)
				} else {
					require.Equal(t, VictoryID, stop, "%s: %s correct branch", name, j)
				}
				continue
			}
			require.Equal(t, KindDeadEnd, kind, "%s: %s branch %d", name, j, p)
			require.Empty(t, g.Outgoing(stop), name)
		}
	}
}

func checkVictoryReachable(t *testing.T, g *Graph, name string) {
	t.Helper()
	id := g.NextStop(StartID)
	for steps := 0; id != VictoryID; steps++ {
		require.Less(t, steps, g.Len(), "%s: walk did not terminate", name)
		require.Equal(t, KindJunction, mustKind(t, g, id), "%s: stuck at %s", name, id)
		p, _ := g.CorrectPath(id)
		e, _ := g.Branch(id, p)
		id = g.NextStop(e.To)
	}
	victories := 0
	for _, nid := range g.NodeIDs() {
		if n, _ := g.Node(nid); n.Kind == KindVictory {
			victories++
		}
	}
	require.Equal(t, 1, victories, name)
}

func mustKind(t *testing.T, g *Graph, id string) Kind {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok, "missing node %s", id)
	return n.Kind
}

func TestGenerateNoQuestions(t *testing.T) {
	for _, q := range []int{0, -3} {
		g := Generate(9, q)
		assert.Equal(t, 0, g.QuestionCount())
		assert.Empty(t, g.Junctions())
		assert.Equal(t, 2, g.Len())
		assert.Equal(t, VictoryID, g.NextStop(StartID))
	}
}

func TestGenerateWithContinuesStream(t *testing.T) {
	r := engine.NewRand(2024)
	GenerateWith(r, 5)
	next := r.Float64()

	again := engine.NewRand(2024)
	GenerateWith(again, 5)
	assert.Equal(t, next, again.Float64())
}
