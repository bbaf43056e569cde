package mcts

import (
	"fmt"
	"math"

	"github.com/brensch/gomokuzero/executor/convert"
	"github.com/brensch/gomokuzero/game"
)

type Option func(t *Tree)

// WithMetrics records per-batch statistics into c.
func WithMetrics(c Collector) Option {
	return func(t *Tree) {
		if c != nil {
			t.metrics = c
		}
	}
}

// Tree owns the committed game position and the search tree above it.
// A Tree is not safe for concurrent use.
type Tree struct {
	predictor Predictor
	metrics   Collector
	last      SearchMetrics

	state  *game.State
	status game.Status

	root *Node
	// current matches state. Simulations only descend from here.
	current *Node
}

// NewTree builds a tree on the empty board. It queries the predictor once.
func NewTree(p Predictor, opts ...Option) (*Tree, error) {
	t := &Tree{
		predictor: p,
		metrics:   NewNoMetricsCollector(),
		state:     game.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.Restart(); err != nil {
		return nil, err
	}
	return t, nil
}

// Restart clears the board and replaces the tree with a fresh root.
func (t *Tree) Restart() error {
	t.state.Clear()
	t.status = game.Ongoing
	t.root, t.current = nil, nil

	policy, value, err := t.evaluate(t.state)
	if err != nil {
		return err
	}
	root := newNode(nil, game.Pass, 1, t.state.Ply(), game.Ongoing)
	root.value = -value
	root.expand(policy, t.state)

	t.root, t.current = root, root
	return nil
}

// RunSimulations runs n select, expand and backpropagate passes from the
// current node. An error aborts the rest of the batch only.
func (t *Tree) RunSimulations(n int) error {
	if t.current == nil {
		return fmt.Errorf("%w: no root, restart required", ErrTreeConsistency)
	}
	if t.status != game.Ongoing {
		return ErrGameOver
	}

	t.metrics.Start()
	defer func() { t.last = t.metrics.Complete() }()

	scratch := t.state.Clone()
	for i := 0; i < n; i++ {
		if err := t.simulate(scratch); err != nil {
			return fmt.Errorf("simulation %d of %d: %w", i+1, n, err)
		}
		t.metrics.AddSimulation()
	}
	return nil
}

func (t *Tree) simulate(scratch *game.State) error {
	node := t.current
	for {
		idx := node.selectChild()
		if idx < 0 {
			t.unwind(scratch, node)
			return fmt.Errorf("%w: node at ply %d has no moves", ErrTreeConsistency, node.ply)
		}
		slot := &node.slots[idx]

		status, err := scratch.Play(slot.Move)
		if err != nil {
			t.unwind(scratch, node)
			return fmt.Errorf("%w: %v", ErrTreeConsistency, err)
		}

		if slot.Node == nil {
			child, err := t.materialize(node, slot, scratch, status)
			if err != nil {
				scratch.Unplay(slot.Move)
				t.unwind(scratch, node)
				return err
			}
			slot.Node = child
			t.backpropagate(scratch, child, child.value)
			return nil
		}

		if slot.Node.Terminal() {
			t.metrics.AddTerminal()
			t.backpropagate(scratch, slot.Node, slot.Node.value)
			return nil
		}
		node = slot.Node
	}
}

// materialize builds the node for slot once its move has been played on state.
// Terminal positions are scored directly without consulting the oracle.
func (t *Tree) materialize(parent *Node, slot *Slot, state *game.State, status game.Status) (*Node, error) {
	child := newNode(parent, slot.Move, slot.Prior, state.Ply(), status)
	switch status {
	case game.Win:
		t.metrics.AddTerminal()
		child.value = 1
		return child, nil
	case game.Tie:
		t.metrics.AddTerminal()
		child.value = 0
		return child, nil
	}

	policy, value, err := t.evaluate(state)
	if err != nil {
		return nil, err
	}
	// The oracle scores the side to move, which is the opponent of the mover.
	child.value = -value
	child.expand(policy, state)
	return child, nil
}

// backpropagate walks from leaf up to current, alternating the sign of v at
// each ply and undoing every move except the one that led to current.
func (t *Tree) backpropagate(scratch *game.State, leaf *Node, v float64) {
	for n := leaf; ; n = n.parent {
		n.update(v)
		if n == t.current {
			return
		}
		v = -v
		scratch.Unplay(n.move)
	}
}

// unwind undoes the moves from node back up to current.
func (t *Tree) unwind(scratch *game.State, node *Node) {
	for n := node; n != nil && n != t.current; n = n.parent {
		scratch.Unplay(n.move)
	}
}

func (t *Tree) evaluate(state *game.State) ([]float32, float64, error) {
	input := convert.StateToFloat32(state)
	policy, value, err := t.predictor.Predict(*input)
	convert.PutFloatBuffer(input)
	t.metrics.AddOracleCall()

	if err != nil {
		return nil, 0, &OracleError{Ply: state.Ply(), Err: err}
	}
	if len(policy) != game.PolicySize {
		return nil, 0, &OracleError{
			Ply: state.Ply(),
			Err: fmt.Errorf("policy has %d weights, want %d", len(policy), game.PolicySize),
		}
	}
	for i, w := range policy {
		if w < 0 || math.IsNaN(float64(w)) || math.IsInf(float64(w), 0) {
			return nil, 0, &OracleError{Ply: state.Ply(), Err: fmt.Errorf("policy weight %d is %v", i, w)}
		}
	}
	v := float64(value)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, 0, &OracleError{Ply: state.Ply(), Err: fmt.Errorf("value is %v", value)}
	}
	return policy, math.Max(-1, math.Min(1, v)), nil
}

// BestMove returns the most visited explored move from the current position.
// It returns game.Pass when nothing has been explored.
func (t *Tree) BestMove() game.Move {
	if t.current == nil {
		return game.Pass
	}
	best := -1
	for i := range t.current.slots {
		child := t.current.slots[i].Node
		if child == nil {
			continue
		}
		if best < 0 || child.visits > t.current.slots[best].Node.visits {
			best = i
		}
	}
	if best < 0 {
		return game.Pass
	}
	return t.current.slots[best].Move
}

// Commit plays (row, col) on the committed position and advances the tree,
// keeping the statistics already gathered below that move. (-1, -1) passes.
// A move that ends the game is applied and its status returned, leaving the
// tree where it was.
func (t *Tree) Commit(row, col int) (game.Status, error) {
	if t.current == nil {
		return game.Ongoing, fmt.Errorf("%w: no root, restart required", ErrTreeConsistency)
	}
	if t.status != game.Ongoing {
		return t.status, ErrGameOver
	}

	m := game.Move{Row: row, Col: col}
	status, err := t.state.Play(m)
	if err != nil {
		return game.Ongoing, err
	}
	if status != game.Ongoing {
		t.status = status
		return status, nil
	}

	idx := t.current.findSlot(m)
	if idx < 0 {
		t.state.Unplay(m)
		return game.Ongoing, fmt.Errorf("%w: no slot for %s at ply %d", ErrTreeConsistency, m, t.current.ply)
	}

	slot := &t.current.slots[idx]
	if slot.Node == nil {
		child, err := t.materialize(t.current, slot, t.state, status)
		if err != nil {
			t.state.Unplay(m)
			return game.Ongoing, err
		}
		slot.Node = child
	} else {
		t.metrics.ReusedTree()
	}

	releaseSiblings(t.current, idx)
	t.current = slot.Node
	return game.Ongoing, nil
}

// releaseSiblings drops every explored subtree of n except slots[keep]. The
// slots stay in place as unexplored moves.
func releaseSiblings(n *Node, keep int) {
	for i := range n.slots {
		if i != keep {
			n.slots[i].Node = nil
		}
	}
}

// Status is the status of the committed position.
func (t *Tree) Status() game.Status {
	return t.status
}

// Position returns a copy of the committed position.
func (t *Tree) Position() *game.State {
	return t.state.Clone()
}

// Current is the node matching the committed position.
func (t *Tree) Current() *Node {
	return t.current
}

// Root is the node for the empty board of the current game.
func (t *Tree) Root() *Node {
	return t.root
}

// LastMetrics returns the statistics of the most recent batch.
func (t *Tree) LastMetrics() SearchMetrics {
	return t.last
}
