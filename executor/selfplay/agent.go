package selfplay

import (
	"time"

	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/heuristic"
	"github.com/brensch/mamba/mcts"
	"github.com/brensch/mamba/rules"
)

// Agent picks one move for one snake. ok=false means the agent has
// nothing to offer (dead or trapped) and the round records a pass.
// ChooseMove must treat state as read-only; agents that need to mutate
// work on a clone.
type Agent interface {
	Kind() string
	ChooseMove(state *game.GameState, snakeIdx int) (rules.Move, bool)
}

// SearchAgent runs the full tree search for every move.
type SearchAgent struct {
	Budget  time.Duration
	Workers int
}

func (a *SearchAgent) Kind() string { return "mcts" }

// ChooseMove searches a copy of the board with the deciding snake rotated
// to the front, since the tree decides for index zero. When the search
// comes back empty it falls through to the first safe move.
func (a *SearchAgent) ChooseMove(state *game.GameState, snakeIdx int) (rules.Move, bool) {
	if snakeIdx < 0 || snakeIdx >= len(state.Snakes) {
		return 0, false
	}

	rotated := state.Clone()
	rotated.Snakes[0], rotated.Snakes[snakeIdx] = rotated.Snakes[snakeIdx], rotated.Snakes[0]

	search := mcts.New(rotated, mcts.Config{Workers: a.Workers})
	search.Run(time.Now().Add(a.Budget))

	if move, ok := search.BestMove(state.Snakes[snakeIdx].Id); ok {
		return move, true
	}
	if safe := rules.SafeMoves(state, snakeIdx); len(safe) > 0 {
		return safe[0], true
	}
	return 0, false
}

// GreedyAgent takes whichever move wins the most immediate board
// control. It is the fixed baseline the search gets measured against.
type GreedyAgent struct{}

func (GreedyAgent) Kind() string { return "greedy" }

func (GreedyAgent) ChooseMove(state *game.GameState, snakeIdx int) (rules.Move, bool) {
	best := rules.Move(0)
	bestScore := float32(-1)
	for _, m := range rules.SafeMoves(state, snakeIdx) {
		if score := heuristic.MoveControl(state, snakeIdx, m); score > bestScore {
			best, bestScore = m, score
		}
	}
	if bestScore < 0 {
		return 0, false
	}
	return best, true
}
