package maze

import (
	"fmt"

	"github.com/mindtrap/maze-server/internal/engine"
)

// DefaultQuestionCount is the number of junctions in a standard game.
const DefaultQuestionCount = 30

// BandWidth is the number of grid columns reserved for each question.
// Everything placed for question q lies in its own band, so branches of
// different questions can never overlap.
const BandWidth = 6

// Wrong branches wind through this many segments with a turn between each.
const wrongSegments = 3

type heading int

const (
	north heading = iota // -z
	east                 // +x
	south                // +z
	west                 // -x
)

var (
	headingDX = [4]int{0, 1, 0, -1}
	headingDZ = [4]int{-1, 0, 1, 0}
)

func (h heading) left() heading  { return (h + 3) % 4 }
func (h heading) right() heading { return (h + 1) % 4 }

type cell struct {
	x, z int
}

func (c cell) step(h heading) cell {
	return cell{x: c.x + headingDX[h], z: c.z + headingDZ[h]}
}

// builder is the arena for one Generate call: an occupancy set plus the
// nodes and edges placed so far. It is discarded once the Graph is built.
type builder struct {
	rng      *engine.Rand
	occupied map[cell]string
	nodes    map[string]Node
	edges    []Edge
	correct  map[string]int
	junction []string

	// bandMin and bandMax bound the columns of the question being laid out.
	bandMin, bandMax int
}

// Generate builds the maze for a seed.
func Generate(seed int32, questionCount int) *Graph {
	return GenerateWith(engine.NewRand(seed), questionCount)
}

// GenerateWith builds a maze by drawing from r. The stream is left
// positioned after the last draw the generator made, so callers can keep
// using it for later deterministic steps.
//
// The spine heads east. For each question: a one or two cell corridor, the
// junction, three branch heads (north, east, south relative to the
// approach), the correct branch laid out to the east edge of the band, then
// the two wrong branches winding until they are capped by a dead end.
func GenerateWith(r *engine.Rand, questionCount int) *Graph {
	b := &builder{
		rng:      r,
		occupied: make(map[cell]string),
		nodes:    make(map[string]Node),
		correct:  make(map[string]int),
	}
	if questionCount < 0 {
		questionCount = 0
	}

	at := cell{}
	b.place(StartID, at, Node{Kind: KindCorridor})
	last := StartID

	for q := 1; q <= questionCount; q++ {
		b.bandMin = 1 + (q-1)*BandWidth
		b.bandMax = b.bandMin + BandWidth - 1
		last, at = b.layQuestion(q, last, at)
	}

	// The victory cell is the first column of the next band, which is empty.
	b.place(VictoryID, at.step(east), Node{Depth: questionCount, Kind: KindVictory})
	b.edges = append(b.edges, CorridorEdge(last, VictoryID))

	return b.graph(questionCount)
}

// layQuestion places the approach corridor, the junction and its branches
// for question q. It returns the last node and cell of the correct branch.
func (b *builder) layQuestion(q int, last string, at cell) (string, cell) {
	depth := q - 1

	run := 1 + b.rng.Intn(2)
	for i := 0; i < run; i++ {
		id, next, ok := b.extend(fmt.Sprintf("c%d_%d", q, i), last, at, east, Node{Depth: depth, Kind: KindCorridor})
		if !ok {
			break
		}
		last, at = id, next
	}

	jid := fmt.Sprintf("q%d", q)
	jcell := at.step(east)
	b.place(jid, jcell, Node{Depth: depth, IsQuestion: true, Kind: KindJunction, PathCount: BranchCount})
	b.edges = append(b.edges, CorridorEdge(last, jid))
	b.junction = append(b.junction, jid)

	correct := b.rng.Intn(BranchCount)
	b.correct[jid] = correct

	// Branch p leaves in direction dirs[p]: left, forward, right of east.
	dirs := [BranchCount]heading{east.left(), east, east.right()}
	heads := [BranchCount]string{}
	headCells := [BranchCount]cell{}
	for p := 0; p < BranchCount; p++ {
		id := fmt.Sprintf("q%d_p%d", q, p)
		c := jcell.step(dirs[p])
		b.place(id, c, Node{Depth: q, Kind: KindCorridor})
		b.edges = append(b.edges, BranchEdge(jid, id, p))
		heads[p], headCells[p] = id, c
	}

	// The correct branch goes first so the wrong ones can only fill the
	// cells it left free.
	last, at = b.layCorrect(q, heads[correct], headCells[correct], dirs[correct])

	for p := 0; p < BranchCount; p++ {
		if p == correct {
			continue
		}
		b.layWrong(q, p, heads[p], headCells[p], dirs[p])
	}
	return last, at
}

// layCorrect runs the correct branch to the east edge of the band. A north
// or south branch takes one more step outward before turning east.
func (b *builder) layCorrect(q int, last string, at cell, dir heading) (string, cell) {
	n := 0
	next := func(h heading) bool {
		id, c, ok := b.extend(fmt.Sprintf("q%d_c%d", q, n), last, at, h, Node{Depth: q, Kind: KindCorridor})
		if !ok {
			return false
		}
		n++
		last, at = id, c
		return true
	}

	if dir != east {
		next(dir)
	}
	for at.x < b.bandMax {
		if !next(east) {
			break
		}
	}
	return last, at
}

// layWrong winds a wrong branch through short segments with seeded turns.
// Any blocked step ends the winding; the branch is then capped by a dead
// end cell, or the last placed cell becomes the dead end.
func (b *builder) layWrong(q, p int, last string, at cell, dir heading) {
	var lengths [wrongSegments]int
	for i := range lengths {
		lengths[i] = 1 + b.rng.Intn(2)
	}

	n := 0
	next := func(h heading) bool {
		id, c, ok := b.extend(fmt.Sprintf("q%d_w%d_%d", q, p, n), last, at, h, Node{Depth: q, Kind: KindCorridor})
		if !ok {
			return false
		}
		n++
		last, at, dir = id, c, h
		return true
	}

winding:
	for seg, length := range lengths {
		for i := 0; i < length; i++ {
			if !next(dir) {
				break winding
			}
		}
		if seg == wrongSegments-1 {
			break
		}
		turn := dir.right()
		if b.rng.Float64() > 0.5 {
			turn = dir.left()
		}
		if !next(turn) {
			break
		}
	}

	dead := fmt.Sprintf("q%d_dead%d", q, p)
	if _, _, ok := b.extend(dead, last, at, dir, Node{Depth: q, Kind: KindDeadEnd}); ok {
		return
	}
	tail := b.nodes[last]
	tail.Kind = KindDeadEnd
	b.nodes[last] = tail
}

// free reports whether c can take a node for the current question.
func (b *builder) free(c cell) bool {
	if c.x < b.bandMin || c.x > b.bandMax {
		return false
	}
	_, taken := b.occupied[c]
	return !taken
}

// extend places a node one step from `at` in direction h and links it from
// `from`. It reports false, placing nothing, if the cell is not free.
func (b *builder) extend(id, from string, at cell, h heading, n Node) (string, cell, bool) {
	c := at.step(h)
	if !b.free(c) {
		return "", at, false
	}
	b.place(id, c, n)
	b.edges = append(b.edges, CorridorEdge(from, id))
	return id, c, true
}

func (b *builder) place(id string, c cell, n Node) {
	n.ID = id
	n.X = c.x * SegmentLength
	n.Z = c.z * SegmentLength
	b.occupied[c] = id
	b.nodes[id] = n
}

func (b *builder) graph(questionCount int) *Graph {
	g := &Graph{
		questionCount: questionCount,
		nodes:         b.nodes,
		edges:         b.edges,
		correctPaths:  b.correct,
		junctions:     b.junction,
		outgoing:      make(map[string][]int, len(b.nodes)),
	}
	for i, e := range b.edges {
		g.outgoing[e.From] = append(g.outgoing[e.From], i)
	}
	return g
}
