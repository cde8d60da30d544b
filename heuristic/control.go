// Package heuristic estimates territory control: which snake would reach
// each cell first if every living snake fanned out simultaneously, with
// body segments blocking cells until the tick they vacate.
package heuristic

import (
	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/rules"
)

// Unclaimed marks a cell no living snake reaches.
const Unclaimed int8 = -1

// SnakeControl returns one entry per cell: the index of the snake that
// reaches the cell first, or Unclaimed. A segment at body position i
// occupies its cell through tick i+1, so the frontier may only enter a
// cell once the occupying tail has had time to move past. Ties at the
// same tick go to the lower snake index. Dead and off-board snakes
// neither claim nor block anything.
//
// The expansion does not model waiting: a cell whose blockers outlast
// every approach of the frontier stays Unclaimed even though the game
// itself might reach it later. That pessimism is deliberate; control is a
// first-arrival estimate, not a reachability proof.
func SnakeControl(state *game.GameState) []int8 {
	total := int(state.Cells())
	control := make([]int8, total)
	for i := range control {
		control[i] = Unclaimed
	}
	if total == 0 {
		return control
	}

	vacate := make([]int32, total)
	for si := range state.Snakes {
		s := &state.Snakes[si]
		if !s.Alive() || s.Head() == game.OffBoard {
			continue
		}
		for i, c := range s.Body {
			if !state.InBounds(c) {
				continue
			}
			if t := int32(i + 1); t > vacate[c] {
				vacate[c] = t
			}
		}
	}

	type frontier struct {
		cell  int32
		snake int8
		tick  int32
	}
	queue := make([]frontier, 0, total)

	// Seeding in index order makes the lower snake win every same-tick
	// race below: its claims always enter the queue first.
	for si := range state.Snakes {
		s := &state.Snakes[si]
		if !s.Alive() || s.Head() == game.OffBoard {
			continue
		}
		h := s.Body[0]
		if !state.InBounds(h) || control[h] != Unclaimed {
			continue
		}
		control[h] = int8(si)
		queue = append(queue, frontier{cell: h, snake: int8(si), tick: 0})
	}

	for qi := 0; qi < len(queue); qi++ {
		cur := queue[qi]
		next := cur.tick + 1
		row, col := state.RowCol(cur.cell)

		tryClaim := func(r, c int32) {
			if r < 0 || r >= state.Height || c < 0 || c >= state.Width {
				return
			}
			n := state.Cell(r, c)
			if vacate[n] > next || control[n] != Unclaimed {
				return
			}
			control[n] = cur.snake
			queue = append(queue, frontier{cell: n, snake: cur.snake, tick: next})
		}

		tryClaim(row-1, col)
		tryClaim(row+1, col)
		tryClaim(row, col-1)
		tryClaim(row, col+1)
	}

	return control
}

// ControlPercentages maps SnakeControl to per-snake fractions of the
// board in [0,1]. Dead snakes score 0.
func ControlPercentages(state *game.GameState) []float32 {
	out := make([]float32, len(state.Snakes))
	control := SnakeControl(state)
	if len(control) == 0 {
		return out
	}
	total := float32(len(control))
	for _, c := range control {
		if c >= 0 && int(c) < len(out) {
			out[c] += 1
		}
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// MoveControl scores one tentative move: the fraction of the board the
// snake controls after the move resolves, 0 when the move kills it or the
// index is invalid. This is the single-step lookahead used by greedy
// baseline players; the tree search evaluates whole states instead.
func MoveControl(state *game.GameState, snakeIdx int, m rules.Move) float32 {
	if snakeIdx < 0 || snakeIdx >= len(state.Snakes) {
		return 0
	}
	next := state.Clone()
	rules.ApplyMove(next, snakeIdx, m)
	rules.Resolve(next)
	if !next.Snakes[snakeIdx].Alive() {
		return 0
	}
	return ControlPercentages(next)[snakeIdx]
}
