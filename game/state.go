// Package game defines the core board state types.
//
// Cells are row-major indices with row 0 at the top of the board, so moving
// up from cell i lands on i-Width. The state is designed to be cheaply
// clonable for search tree expansion.
package game

const (
	// OffBoard is the head cell of a snake that stepped outside the grid.
	// It is never a valid cell index.
	OffBoard int32 = -1

	// MaxHealth is the health a snake is restored to when it eats.
	MaxHealth int32 = 100

	// HazardDamage replaces the usual per-move health cost when a snake
	// moves onto a hazard cell.
	HazardDamage int32 = 15
)

// Snake is one agent on the board. Dead snakes keep their final body so
// that snake indices stay stable for the rest of the turn; code that walks
// state.Snakes addresses snakes by position, not by id.
type Snake struct {
	Id     string
	Health int32
	Body   []int32 // cell indices, head first
}

// Alive reports whether the snake is still in the game.
func (s *Snake) Alive() bool {
	return s.Health > 0
}

// Head returns the snake's head cell, or OffBoard for an empty body.
func (s *Snake) Head() int32 {
	if len(s.Body) == 0 {
		return OffBoard
	}
	return s.Body[0]
}

// GameState is the complete simulation state for one turn.
type GameState struct {
	Width   int32
	Height  int32
	Turn    int32
	Snakes  []Snake
	Food    []int32 // cell indices
	Hazards []int32 // cell indices
}

// Cells returns the number of cells on the board.
func (s *GameState) Cells() int32 {
	return s.Width * s.Height
}

// Cell converts a row/column pair to a cell index. It does not bounds-check.
func (s *GameState) Cell(row, col int32) int32 {
	return row*s.Width + col
}

// RowCol converts a cell index back to its row/column pair.
func (s *GameState) RowCol(cell int32) (int32, int32) {
	return cell / s.Width, cell % s.Width
}

// InBounds reports whether cell is a valid index on this board.
func (s *GameState) InBounds(cell int32) bool {
	return cell >= 0 && cell < s.Cells()
}

// AliveCount returns the number of living snakes.
func (s *GameState) AliveCount() int {
	n := 0
	for i := range s.Snakes {
		if s.Snakes[i].Alive() {
			n++
		}
	}
	return n
}

// AddSnake appends a snake to the roster and returns its index.
// Construction only; never call mid-turn.
func (s *GameState) AddSnake(id string, health int32, body []int32) int {
	b := make([]int32, len(body))
	copy(b, body)
	s.Snakes = append(s.Snakes, Snake{Id: id, Health: health, Body: b})
	return len(s.Snakes) - 1
}

// AddFood places a food cell.
func (s *GameState) AddFood(cell int32) {
	s.Food = append(s.Food, cell)
}

// AddHazard places a hazard cell.
func (s *GameState) AddHazard(cell int32) {
	s.Hazards = append(s.Hazards, cell)
}

// Clone performs a deep copy of the game state. Clones never share body,
// food, or hazard storage with their source.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}

	out := &GameState{
		Width:  s.Width,
		Height: s.Height,
		Turn:   s.Turn,
	}

	if len(s.Food) > 0 {
		out.Food = make([]int32, len(s.Food))
		copy(out.Food, s.Food)
	}

	if len(s.Hazards) > 0 {
		out.Hazards = make([]int32, len(s.Hazards))
		copy(out.Hazards, s.Hazards)
	}

	if len(s.Snakes) > 0 {
		out.Snakes = make([]Snake, len(s.Snakes))
		for i := range s.Snakes {
			out.Snakes[i] = Snake{Id: s.Snakes[i].Id, Health: s.Snakes[i].Health}
			if len(s.Snakes[i].Body) > 0 {
				out.Snakes[i].Body = make([]int32, len(s.Snakes[i].Body))
				copy(out.Snakes[i].Body, s.Snakes[i].Body)
			}
		}
	}

	return out
}
