package mcts

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"

	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/heuristic"
	"github.com/brensch/mamba/rules"
)

// DefaultExploration is the UCB1 exploration constant, roughly sqrt(2).
const DefaultExploration = 1.414

// Config holds the search knobs.
type Config struct {
	// Workers is the number of goroutines racing the deadline. Zero or
	// negative means one per CPU.
	Workers int
	// Exploration is the UCB1 constant. Zero or negative means
	// DefaultExploration.
	Exploration float32
}

// MCTS is one search over one root position. The search always decides
// for the snake at index zero, so callers rotate their snake to the
// front before constructing it. Safe for concurrent use by Run's
// workers; BestMove and ExportTree expect Run to have returned.
type MCTS struct {
	Config Config

	root       *Node
	iterations atomic.Int64
}

// New builds a search over a private clone of state.
func New(state *game.GameState, cfg Config) *MCTS {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Exploration <= 0 {
		cfg.Exploration = DefaultExploration
	}
	return &MCTS{
		Config: cfg,
		root:   newNode(state.Clone(), nil, 0, 0, false),
	}
}

// Root returns the root of the search tree.
func (m *MCTS) Root() *Node {
	return m.root
}

// Iterations returns the number of completed passes.
func (m *MCTS) Iterations() int64 {
	return m.iterations.Load()
}

// Run races the configured workers against the deadline. The deadline
// only stops new passes; a pass in flight always completes, so Run
// overshoots by at most one evaluation per worker. Run returns once
// every worker has joined, after which the tree is quiescent.
func (m *MCTS) Run(deadline time.Time) {
	var wg sync.WaitGroup
	for w := 0; w < m.Config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				m.iterate()
				m.iterations.Add(1)
			}
		}()
	}
	wg.Wait()
}

// iterate runs one pass: descend by UCB until hitting a terminal node, a
// freshly expanded frontier, or an unvisited child, then evaluate that
// node and add the result to every node on the path back to the root.
func (m *MCTS) iterate() {
	node := m.root
	for {
		if node.Terminal {
			break
		}
		children, fresh := node.ensureChildren()
		if len(children) == 0 {
			break
		}
		node = m.selectChild(node, children)
		if fresh || node.Visits() == 0 {
			break
		}
	}

	values := evaluate(node)
	for cur := node; cur != nil; cur = cur.parent {
		cur.record(values)
	}
}

// selectChild picks the next child under the parent. Unvisited children
// win outright; otherwise UCB1, with exploitation read from the parent's
// acting snake since that snake owns the choice between these children.
func (m *MCTS) selectChild(parent *Node, children []*Node) *Node {
	parentVisits := parent.Visits()
	if parentVisits < 1 {
		parentVisits = 1
	}
	logParent := math32.Log(float32(parentVisits))

	var best *Node
	var bestScore float32
	for _, child := range children {
		visits, score := child.snapshot(parent.Player)
		if visits == 0 {
			return child
		}
		u := score/float32(visits) + m.Config.Exploration*math32.Sqrt(logParent/float32(visits))
		if best == nil || u > bestScore {
			best, bestScore = child, u
		}
	}
	return best
}

// evaluate scores a leaf for every snake. Terminal boards pay 1 to each
// survivor and 0 to the dead; everything else is the board-control
// estimate.
func evaluate(n *Node) []float32 {
	if n.Terminal {
		values := make([]float32, len(n.State.Snakes))
		for i := range n.State.Snakes {
			if n.State.Snakes[i].Alive() {
				values[i] = 1
			}
		}
		return values
	}
	return heuristic.ControlPercentages(n.State)
}

// BestMove reports the most-visited root move for the snake with the
// given id. ok is false when there is nothing usable: the root never
// expanded, the winning edge is a forced pass, or the snake is missing
// or dead at the front of that child's board. Callers treat that as "no
// move" and fall back to any safe move.
func (m *MCTS) BestMove(snakeId string) (rules.Move, bool) {
	children := m.root.Children()
	if len(children) == 0 {
		return 0, false
	}

	var best *Node
	bestVisits := int32(-1)
	for _, child := range children {
		if v := child.Visits(); v > bestVisits {
			best, bestVisits = child, v
		}
	}
	if best == nil || best.NoMove {
		return 0, false
	}

	idx := m.root.Player
	if idx >= len(best.State.Snakes) {
		return 0, false
	}
	snake := &best.State.Snakes[idx]
	if snake.Id != snakeId || !snake.Alive() {
		return 0, false
	}
	return best.Move, true
}
