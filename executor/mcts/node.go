package mcts

import (
	"github.com/brensch/gomokuzero/game"
)

// uniformThreshold is the legal prior mass below which the oracle's weights
// are ignored in favour of a uniform distribution.
const uniformThreshold = 1e-5

// Predictor defines the interface for inference.
// input is the game.State encoding and is only valid for the duration of the
// call. policy must hold game.PolicySize non-negative weights; value is the
// expected outcome in [-1, 1] for the side to move.
type Predictor interface {
	Predict(input []float32) (policy []float32, value float32, err error)
}

// Slot is one candidate move of a node. Node is nil until the move has been
// explored.
type Slot struct {
	Move  game.Move
	Prior float64
	Node  *Node
}

func (s *Slot) Expanded() bool {
	return s.Node != nil
}

// Node represents a position in the search tree.
// visits, total and value are from the perspective of the player who made
// move, so a parent picks the child with the best statistics for itself.
type Node struct {
	ply    int
	move   game.Move
	prior  float64
	visits int
	total  float64
	value  float64
	status game.Status

	// parent is a back-reference only. Subtrees are owned through slots.
	parent *Node
	slots  []Slot
}

func newNode(parent *Node, move game.Move, prior float64, ply int, status game.Status) *Node {
	return &Node{
		ply:    ply,
		move:   move,
		prior:  prior,
		status: status,
		parent: parent,
	}
}

func (n *Node) Ply() int            { return n.ply }
func (n *Node) Move() game.Move     { return n.move }
func (n *Node) Prior() float64      { return n.prior }
func (n *Node) Visits() int         { return n.visits }
func (n *Node) Value() float64      { return n.value }
func (n *Node) Status() game.Status { return n.status }
func (n *Node) Slots() []Slot       { return n.slots }

// Terminal reports whether the move into this node ended the game.
func (n *Node) Terminal() bool {
	return n.status != game.Ongoing
}

// Mean is the average backed-up evaluation, or zero before the first visit.
func (n *Node) Mean() float64 {
	if n.visits == 0 {
		return 0
	}
	return n.total / float64(n.visits)
}

// expand creates one slot per legal cell of state plus the pass slot, carrying
// the oracle weights renormalized over those moves.
func (n *Node) expand(policy []float32, state *game.State) {
	legal := state.LegalMoves()
	n.slots = make([]Slot, 0, len(legal)+1)

	mass := 0.0
	for _, m := range legal {
		w := float64(policy[m.Index()])
		n.slots = append(n.slots, Slot{Move: m, Prior: w})
		mass += w
	}
	w := float64(policy[game.PassIndex])
	n.slots = append(n.slots, Slot{Move: game.Pass, Prior: w})
	mass += w

	if mass < uniformThreshold {
		uniform := 1 / float64(len(n.slots))
		for i := range n.slots {
			n.slots[i].Prior = uniform
		}
		return
	}
	for i := range n.slots {
		n.slots[i].Prior /= mass
	}
}

// selectChild returns the slot index with the highest score
//
//	score = win + prior / (1 + visits)
//
// where win maps a visited child's mean onto [0, 1] and an unvisited child
// borrows 1 - n.value. The first slot wins ties.
func (n *Node) selectChild() int {
	best := -1
	bestScore := 0.0
	for i := range n.slots {
		s := &n.slots[i]

		win := 1 - n.value
		visits := 0
		if s.Node != nil && s.Node.visits > 0 {
			visits = s.Node.visits
			win = (float64(visits) + s.Node.total) / (2 * float64(visits))
		}

		score := win + s.Prior/float64(1+visits)
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

func (n *Node) update(v float64) {
	n.visits++
	n.total += v
}

// findSlot returns the index of the slot for m, or -1.
func (n *Node) findSlot(m game.Move) int {
	for i := range n.slots {
		if n.slots[i].Move == m {
			return i
		}
	}
	return -1
}
