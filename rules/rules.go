// Package rules implements the state transitions of the game: per-snake
// moves, round resolution, legality, and food spawning.
//
// A round is: ApplyMove once for every snake, then Resolve exactly once.
// ApplyMove never inspects other snakes; all interaction happens in
// Resolve. None of these functions return errors; invalid indices and dead
// snakes degrade to no-ops so search iterations can run unattended.
package rules

import (
	"github.com/brensch/mamba/game"
)

type Move int32

const (
	MoveUp Move = iota
	MoveDown
	MoveLeft
	MoveRight
)

// AllMoves lists the four directions in their canonical order.
var AllMoves = [4]Move{MoveUp, MoveDown, MoveLeft, MoveRight}

func (m Move) String() string {
	switch m {
	case MoveUp:
		return "up"
	case MoveDown:
		return "down"
	case MoveLeft:
		return "left"
	case MoveRight:
		return "right"
	}
	return "unknown"
}

// ParseMove is the inverse of Move.String. ok is false for anything else.
func ParseMove(s string) (Move, bool) {
	switch s {
	case "up":
		return MoveUp, true
	case "down":
		return MoveDown, true
	case "left":
		return MoveLeft, true
	case "right":
		return MoveRight, true
	}
	return 0, false
}

// Step returns the cell reached by moving m from cell c, or game.OffBoard
// when the step leaves the grid. Row 0 is the top of the board, so up
// decreases the row.
func Step(state *game.GameState, c int32, m Move) int32 {
	if c == game.OffBoard {
		return game.OffBoard
	}
	row, col := state.RowCol(c)
	switch m {
	case MoveUp:
		row--
	case MoveDown:
		row++
	case MoveLeft:
		col--
	case MoveRight:
		col++
	}
	if row < 0 || row >= state.Height || col < 0 || col >= state.Width {
		return game.OffBoard
	}
	return state.Cell(row, col)
}

// ApplyMove advances one snake a single step: the new head is pushed, the
// tail dropped, and health decremented by 1, or by game.HazardDamage
// instead when the destination is a hazard cell. Growth belongs to
// Resolve. Dead snakes and out-of-range indices do not move.
func ApplyMove(state *game.GameState, snakeIdx int, m Move) {
	if snakeIdx < 0 || snakeIdx >= len(state.Snakes) {
		return
	}
	s := &state.Snakes[snakeIdx]
	if !s.Alive() || len(s.Body) == 0 || s.Body[0] == game.OffBoard {
		return
	}

	newHead := Step(state, s.Body[0], m)

	damage := int32(1)
	if newHead != game.OffBoard && containsCell(state.Hazards, newHead) {
		damage = game.HazardDamage
	}

	copy(s.Body[1:], s.Body) // shift toward the tail, dropping the last segment
	s.Body[0] = newHead

	s.Health -= damage
	if s.Health < 0 {
		s.Health = 0
	}
}

// Resolve settles a completed round of moves, in this order: snakes that
// left the board or ran out of health are marked dead; living snakes eat
// (lowest index wins a contested food cell, eating grows the tail by one
// duplicated segment and restores full health); head-to-head groups kill
// every member shorter than the group's longest, or everyone on a full
// tie; any remaining head overlapping a living body segment dies. The
// collision deaths are computed from a pre-death snapshot and applied
// together, so simultaneous outcomes never cascade within one call.
//
// Resolve is idempotent when no moves have been applied since the last
// call. It does not advance state.Turn; that is the round driver's job.
func Resolve(state *game.GameState) {
	// Off-board or starved.
	for i := range state.Snakes {
		s := &state.Snakes[i]
		if len(s.Body) == 0 || s.Body[0] == game.OffBoard || s.Health <= 0 {
			s.Health = 0
		}
	}

	// Food, scanned in snake index order so a contested cell feeds
	// exactly one snake deterministically.
	for i := range state.Snakes {
		s := &state.Snakes[i]
		if !s.Alive() {
			continue
		}
		head := s.Body[0]
		for fi, f := range state.Food {
			if f != head {
				continue
			}
			state.Food = append(state.Food[:fi], state.Food[fi+1:]...)
			s.Body = append(s.Body, s.Body[len(s.Body)-1])
			s.Health = game.MaxHealth
			break
		}
	}

	dead := make([]bool, len(state.Snakes))

	// Head-to-head. Grown bodies from the food step count toward length.
	headGroups := make(map[int32][]int)
	for i := range state.Snakes {
		if state.Snakes[i].Alive() {
			h := state.Snakes[i].Body[0]
			headGroups[h] = append(headGroups[h], i)
		}
	}
	for _, group := range headGroups {
		if len(group) < 2 {
			continue
		}
		longest := 0
		for _, i := range group {
			if l := len(state.Snakes[i].Body); l > longest {
				longest = l
			}
		}
		atMax := 0
		for _, i := range group {
			if len(state.Snakes[i].Body) == longest {
				atMax++
			}
		}
		for _, i := range group {
			if len(state.Snakes[i].Body) < longest || atMax == len(group) {
				dead[i] = true
			}
		}
	}

	// Body collisions, self included, against the same pre-death
	// snapshot: snakes sentenced above still count as obstacles and are
	// still checked themselves.
	for i := range state.Snakes {
		s := &state.Snakes[i]
		if !s.Alive() {
			continue
		}
		head := s.Body[0]
		for j := range state.Snakes {
			o := &state.Snakes[j]
			if !o.Alive() {
				continue
			}
			for bi := 1; bi < len(o.Body); bi++ {
				if o.Body[bi] == head {
					dead[i] = true
				}
			}
		}
	}

	for i := range state.Snakes {
		if dead[i] {
			state.Snakes[i].Health = 0
		}
	}
}

// SafeMoves returns the moves that keep the snake's head on the board and
// off its own neck. Cells occupied by other bodies are deliberately not
// excluded: the occupant may die or vacate in the same round, so pruning
// them here would hide legitimate futures from the search. Out-of-range
// indices and dead or off-board snakes get an empty set.
func SafeMoves(state *game.GameState, snakeIdx int) []Move {
	if snakeIdx < 0 || snakeIdx >= len(state.Snakes) {
		return nil
	}
	s := &state.Snakes[snakeIdx]
	if !s.Alive() || len(s.Body) == 0 || s.Body[0] == game.OffBoard {
		return nil
	}

	neck := game.OffBoard
	if len(s.Body) > 1 {
		neck = s.Body[1]
	}

	var moves []Move
	for _, m := range AllMoves {
		next := Step(state, s.Body[0], m)
		if next == game.OffBoard || next == neck {
			continue
		}
		moves = append(moves, m)
	}
	return moves
}

// NextRound applies one move per snake (moves is indexed like
// state.Snakes; entries for dead snakes are ignored) and resolves. The
// input state is left untouched.
func NextRound(state *game.GameState, moves []Move) *game.GameState {
	next := state.Clone()
	for i := range next.Snakes {
		if i < len(moves) {
			ApplyMove(next, i, moves[i])
		}
	}
	Resolve(next)
	next.Turn++
	return next
}

// IsGameOver reports whether at most one snake is still alive.
func IsGameOver(state *game.GameState) bool {
	return state.AliveCount() <= 1
}

// Winner returns the index of the sole living snake, or -1 when none or
// several are alive.
func Winner(state *game.GameState) int {
	winner := -1
	for i := range state.Snakes {
		if state.Snakes[i].Alive() {
			if winner >= 0 {
				return -1
			}
			winner = i
		}
	}
	return winner
}

func containsCell(cells []int32, c int32) bool {
	for _, v := range cells {
		if v == c {
			return true
		}
	}
	return false
}
