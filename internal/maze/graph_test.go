package maze

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeJSON(t *testing.T) {
	data, err := json.Marshal([]Edge{CorridorEdge("a", "b"), BranchEdge("q1", "q1_p0", 0)})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"from":"a","to":"b"},{"from":"q1","to":"q1_p0","pathIndex":0}]`, string(data))

	var back []Edge
	require.NoError(t, json.Unmarshal(data, &back))
	_, ok := back[0].PathIndex()
	assert.False(t, ok)
	p, ok := back[1].PathIndex()
	assert.True(t, ok)
	assert.Equal(t, 0, p)

	var bad Edge
	assert.Error(t, json.Unmarshal([]byte(`{"from":"q","to":"x","pathIndex":3}`), &bad))
}

func TestClientViewHasNoSecrets(t *testing.T) {
	g := Generate(31337, DefaultQuestionCount)

	data, err := json.Marshal(g.ClientView())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "correct")

	var view map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &view))
	assert.ElementsMatch(t, []string{"nodes", "edges", "wallHeight", "corridorWidth", "segmentLength"}, keys(view))

	snap, err := json.Marshal(g.Snapshot())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(snap), `"correctPaths"`))
}

func TestAccessorsReturnCopies(t *testing.T) {
	g := Generate(5, 4)

	paths := g.CorrectPaths()
	paths["q1"] = 99
	p, _ := g.CorrectPath("q1")
	assert.NotEqual(t, 99, p)

	edges := g.Edges()
	edges[0].From = "mutated"
	assert.Equal(t, StartID, g.Edges()[0].From)

	junctions := g.Junctions()
	junctions[0] = "mutated"
	assert.Equal(t, "q1", g.Junctions()[0])

	view := g.ClientView()
	delete(view.Nodes, StartID)
	_, ok := g.Node(StartID)
	assert.True(t, ok)
}

func TestBranchAndNextStop(t *testing.T) {
	g := Generate(12345, 3)

	_, ok := g.Branch("q1", BranchCount)
	assert.False(t, ok)
	_, ok = g.Branch("c1_0", 0)
	assert.False(t, ok)

	assert.Equal(t, "q1", g.NextStop(StartID))
	assert.Equal(t, "q2", g.NextStop("q2"))
	assert.Equal(t, "nope", g.NextStop("nope"))
}

func TestNodeIDsSorted(t *testing.T) {
	ids := Generate(1, 2).NodeIDs()
	require.NotEmpty(t, ids)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
