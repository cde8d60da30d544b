// Package mcts implements the tree search that picks a move under a
// wall-clock deadline. A fixed pool of workers shares one tree; each
// worker loops selection, expansion, evaluation, and backpropagation
// until the deadline passes.
//
// Expansion is round-robin: every node belongs to one acting snake, its
// children are that snake's safe moves (or a single forced pass), and the
// round's collisions resolve when the acting index wraps back to zero.
package mcts

import (
	"sync"

	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/rules"
)

// Node is one state in the shared tree. State, Player, Move, NoMove, and
// Terminal are fixed at creation and safe to read concurrently. The
// mutable fields (visits, scores, children) are guarded by one mutex so
// that a node's statistics always change together.
type Node struct {
	State *game.GameState
	// Player is the index of the snake that acts at this node.
	Player int
	// Move is the edge that produced this node, meaningless on the root
	// and whenever NoMove is set.
	Move rules.Move
	// NoMove marks a forced pass: the acting snake of the parent was dead
	// or had no safe moves.
	NoMove bool
	// Terminal is fixed at creation: at most one snake left alive.
	Terminal bool

	parent *Node

	mu       sync.Mutex
	visits   int32
	scores   []float32
	children []*Node
	expanded bool
}

func newNode(state *game.GameState, parent *Node, player int, move rules.Move, noMove bool) *Node {
	return &Node{
		State:    state,
		Player:   player,
		Move:     move,
		NoMove:   noMove,
		Terminal: state.AliveCount() <= 1,
		parent:   parent,
		scores:   make([]float32, len(state.Snakes)),
	}
}

// Visits returns the node's visit count.
func (n *Node) Visits() int32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.visits
}

// Scores returns a copy of the accumulated per-snake score totals.
func (n *Node) Scores() []float32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]float32, len(n.scores))
	copy(out, n.scores)
	return out
}

// Children returns the child slice, empty until the node has expanded.
// The slice itself is never mutated after expansion.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.children
}

// snapshot reads the visit count and one score total in a single
// critical section, for UCB evaluation.
func (n *Node) snapshot(idx int) (int32, float32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	score := float32(0)
	if idx >= 0 && idx < len(n.scores) {
		score = n.scores[idx]
	}
	return n.visits, score
}

// record folds one evaluation into the node.
func (n *Node) record(values []float32) {
	n.mu.Lock()
	n.visits++
	for i := range values {
		if i < len(n.scores) {
			n.scores[i] += values[i]
		}
	}
	n.mu.Unlock()
}

// ensureChildren expands the node exactly once and returns its children.
// fresh reports whether this call did the expansion. Two workers racing
// here is expected: the second blocks on the lock and then reuses the
// first one's children.
func (n *Node) ensureChildren() (children []*Node, fresh bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.expanded {
		return n.children, false
	}
	n.children = n.buildChildren()
	n.expanded = true
	return n.children, true
}

// buildChildren clones the board once per safe move of the acting snake.
// A dead snake or one with nowhere to go yields a single pass child, so
// the round always advances. When the acting index wraps to zero the
// whole round has moved and the child resolves collisions and starts the
// next turn. Runs under the node lock; it touches no other node.
func (n *Node) buildChildren() []*Node {
	nextPlayer := n.Player + 1
	wrap := false
	if nextPlayer >= len(n.State.Snakes) {
		nextPlayer = 0
		wrap = true
	}

	moves := rules.SafeMoves(n.State, n.Player)
	if len(moves) == 0 {
		st := n.State.Clone()
		if wrap {
			rules.Resolve(st)
			st.Turn++
		}
		return []*Node{newNode(st, n, nextPlayer, 0, true)}
	}

	children := make([]*Node, 0, len(moves))
	for _, m := range moves {
		st := n.State.Clone()
		rules.ApplyMove(st, n.Player, m)
		if wrap {
			rules.Resolve(st)
			st.Turn++
		}
		children = append(children, newNode(st, n, nextPlayer, m, false))
	}
	return children
}
