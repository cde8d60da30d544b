// Package archive persists finished games as Parquet for offline analysis.
//
// One row per (game, turn, snake), using the internal cell-index board
// representation so readers share coordinate conventions with the
// simulator. Board-level columns (food, hazards, dimensions) repeat per
// snake; column compression makes that cheap, and flat rows keep the
// DuckDB queries on the other end trivial.
package archive

import (
	"github.com/brensch/mamba/game"
)

// MoveUnknown is the Move value for a snake that had no action this turn:
// dead, trapped, or simply not recorded by the producer.
const MoveUnknown int32 = -1

// TurnRow is one snake's view of one turn.
//
// Move is the action taken leaving this turn: 0=Up, 1=Down, 2=Left,
// 3=Right, MoveUnknown otherwise. ControlPct is the share of the board
// the snake was projected to reach first on this turn. Winner is set on
// every row of the snake that survived the game.
type TurnRow struct {
	GameID string `parquet:"game_id,dict"`
	Source string `parquet:"source,dict"`
	Turn   int32  `parquet:"turn,delta"`
	Width  int32  `parquet:"width"`
	Height int32  `parquet:"height"`

	SnakeIdx int32  `parquet:"snake_idx"`
	SnakeID  string `parquet:"snake_id,dict"`
	Health   int32  `parquet:"health"`
	Alive    bool   `parquet:"alive"`

	Body     []int32 `parquet:"body"`
	HeadCell int32   `parquet:"head_cell"`

	Food    []int32 `parquet:"food"`
	Hazards []int32 `parquet:"hazards"`

	Move       int32   `parquet:"move"`
	ControlPct float32 `parquet:"control_pct"`
	Winner     bool    `parquet:"winner"`
}

// SnapshotTurn captures one row per snake, dead ones included so the
// roster stays visible for the whole game. Move, ControlPct, and Winner
// start at their unknown defaults; callers fill them in once the turn's
// actions and the game's outcome are known.
func SnapshotTurn(gameID, source string, state *game.GameState) []TurnRow {
	rows := make([]TurnRow, len(state.Snakes))
	for i := range state.Snakes {
		s := &state.Snakes[i]
		row := TurnRow{
			GameID:   gameID,
			Source:   source,
			Turn:     state.Turn,
			Width:    state.Width,
			Height:   state.Height,
			SnakeIdx: int32(i),
			SnakeID:  s.Id,
			Health:   s.Health,
			Alive:    s.Alive(),
			HeadCell: s.Head(),
			Move:     MoveUnknown,
		}
		row.Body = append(row.Body, s.Body...)
		row.Food = append(row.Food, state.Food...)
		row.Hazards = append(row.Hazards, state.Hazards...)
		rows[i] = row
	}
	return rows
}
