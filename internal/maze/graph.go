package maze

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Geometry shared with the renderer. Grid cells are SegmentLength units apart.
const (
	SegmentLength = 4
	CorridorWidth = 4
	WallHeight    = 3.5
)

// Well-known node identifiers.
const (
	StartID   = "start"
	VictoryID = "victory"
)

// BranchCount is the number of physical paths leaving every junction.
const BranchCount = 3

// Kind classifies a maze node.
type Kind string

const (
	KindCorridor Kind = "corridor"
	KindJunction Kind = "junction"
	KindDeadEnd  Kind = "deadend"
	KindVictory  Kind = "victory"
)

// Node is a single grid cell of the maze. X and Z are world coordinates
// (grid cell times SegmentLength).
type Node struct {
	ID         string `json:"id"`
	X          int    `json:"x"`
	Z          int    `json:"z"`
	Depth      int    `json:"depth"`
	IsQuestion bool   `json:"isQuestion"`
	Kind       Kind   `json:"kind"`
	PathCount  int    `json:"pathCount,omitempty"`
}

// Edge connects two nodes. Edges leaving a junction carry a path index;
// every other edge is a plain corridor edge. The zero value is a corridor edge.
type Edge struct {
	From string
	To   string
	// path holds the branch index plus one, zero for corridor edges.
	path int8
}

// CorridorEdge returns an edge without a path index.
func CorridorEdge(from, to string) Edge {
	return Edge{From: from, To: to}
}

// BranchEdge returns an edge for branch p of a junction.
func BranchEdge(from, to string, p int) Edge {
	return Edge{From: from, To: to, path: int8(p + 1)}
}

// PathIndex reports the branch index of the edge, if it has one.
func (e Edge) PathIndex() (int, bool) {
	if e.path == 0 {
		return 0, false
	}
	return int(e.path) - 1, true
}

type edgeJSON struct {
	From      string `json:"from"`
	To        string `json:"to"`
	PathIndex *int   `json:"pathIndex,omitempty"`
}

// MarshalJSON encodes the path index only for branch edges.
func (e Edge) MarshalJSON() ([]byte, error) {
	out := edgeJSON{From: e.From, To: e.To}
	if p, ok := e.PathIndex(); ok {
		out.PathIndex = &p
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an edge written by MarshalJSON.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var in edgeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Edge{From: in.From, To: in.To}
	if in.PathIndex != nil {
		if *in.PathIndex < 0 || *in.PathIndex >= BranchCount {
			return fmt.Errorf("maze: path index %d out of range", *in.PathIndex)
		}
		e.path = int8(*in.PathIndex + 1)
	}
	return nil
}

// Graph is a generated maze. It is immutable once Generate returns and may
// be shared between sessions; accessors hand out copies.
type Graph struct {
	questionCount int
	nodes         map[string]Node
	edges         []Edge
	correctPaths  map[string]int
	junctions     []string
	outgoing      map[string][]int
}

// QuestionCount returns the number of junctions the graph was built for.
func (g *Graph) QuestionCount() int {
	return g.questionCount
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns all node ids in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Edges returns the edges in generation order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Junctions returns junction ids in the order a player reaches them.
func (g *Graph) Junctions() []string {
	out := make([]string, len(g.junctions))
	copy(out, g.junctions)
	return out
}

// CorrectPath returns the structurally correct branch of a junction.
func (g *Graph) CorrectPath(junction string) (int, bool) {
	p, ok := g.correctPaths[junction]
	return p, ok
}

// CorrectPaths returns a copy of the junction to correct branch table.
// It is secret and must only reach admin or server-side code.
func (g *Graph) CorrectPaths() map[string]int {
	out := make(map[string]int, len(g.correctPaths))
	for k, v := range g.correctPaths {
		out[k] = v
	}
	return out
}

// Outgoing returns the edges leaving a node in generation order.
func (g *Graph) Outgoing(id string) []Edge {
	idx := g.outgoing[id]
	out := make([]Edge, len(idx))
	for i, k := range idx {
		out[i] = g.edges[k]
	}
	return out
}

// Branch returns the edge for branch p of a junction.
func (g *Graph) Branch(junction string, p int) (Edge, bool) {
	for _, k := range g.outgoing[junction] {
		if idx, ok := g.edges[k].PathIndex(); ok && idx == p {
			return g.edges[k], true
		}
	}
	return Edge{}, false
}

// NextStop walks forward from a node through single-exit corridor cells and
// returns the first junction, victory or dead end it reaches. A junction
// returns itself.
func (g *Graph) NextStop(from string) string {
	id := from
	for steps := 0; steps <= len(g.nodes); steps++ {
		n, ok := g.nodes[id]
		if !ok {
			return from
		}
		if n.Kind != KindCorridor {
			return id
		}
		out := g.outgoing[id]
		if len(out) != 1 {
			return id
		}
		id = g.edges[out[0]].To
	}
	return id
}

// ClientMaze is the projection of a graph that is safe to send to players.
// It has no correct-path information.
type ClientMaze struct {
	Nodes         map[string]Node `json:"nodes"`
	Edges         []Edge          `json:"edges"`
	WallHeight    float64         `json:"wallHeight"`
	CorridorWidth int             `json:"corridorWidth"`
	SegmentLength int             `json:"segmentLength"`
}

// ClientView strips every secret from the graph.
func (g *Graph) ClientView() ClientMaze {
	nodes := make(map[string]Node, len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = n
	}
	return ClientMaze{
		Nodes:         nodes,
		Edges:         g.Edges(),
		WallHeight:    WallHeight,
		CorridorWidth: CorridorWidth,
		SegmentLength: SegmentLength,
	}
}

// Snapshot is the full graph including the answer key, for admin tooling.
type Snapshot struct {
	ClientMaze
	QuestionCount int            `json:"questionCount"`
	Junctions     []string       `json:"junctions"`
	CorrectPaths  map[string]int `json:"correctPaths"`
}

// Snapshot returns the admin view of the graph.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{
		ClientMaze:    g.ClientView(),
		QuestionCount: g.questionCount,
		Junctions:     g.Junctions(),
		CorrectPaths:  g.CorrectPaths(),
	}
}
