// Debuggame replays one archived game in the terminal: board, territory
// map, and per-snake moves turn by turn. -turn jumps to a single position
// and adds safe-move analysis. Used when a lost game needs a post-mortem.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"k8s.io/klog/v2"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/heuristic"
	"github.com/brensch/mamba/rules"
)

func main() {
	klog.InitFlags(nil)
	gameID := flag.String("game", "", "Game id to replay (required)")
	archiveDir := flag.String("archive-dir", "data", "Root directory of parquet archives")
	delay := flag.Duration("delay", 150*time.Millisecond, "Pause between frames")
	turn := flag.Int("turn", -1, "Show only this turn, with safe-move analysis")
	flag.Parse()

	if *gameID == "" {
		klog.Fatal("-game is required")
	}

	states, moves, err := loadGame(*archiveDir, *gameID)
	if err != nil {
		klog.Fatalf("loading %s: %v", *gameID, err)
	}
	if len(states) == 0 {
		klog.Fatalf("game %s not found under %s", *gameID, *archiveDir)
	}

	if *turn >= 0 {
		for i, st := range states {
			if st.Turn == int32(*turn) {
				printTurn(st, moves[i])
				analyzeTurn(st)
				return
			}
		}
		klog.Fatalf("turn %d not in game (have %d..%d)",
			*turn, states[0].Turn, states[len(states)-1].Turn)
	}

	for i, st := range states {
		printTurn(st, moves[i])
		time.Sleep(*delay)
	}
}

// loadGame reads one game's rows back through DuckDB and rebuilds the
// state plus the recorded move per snake for every turn.
func loadGame(dir, gameID string) ([]*game.GameState, [][]int32, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	glob := filepath.Join(dir, "**", "*.parquet")
	query := `SELECT turn, width, height, snake_idx, snake_id, health, body, food, hazards, move
		FROM read_parquet(['` + strings.ReplaceAll(glob, "'", "''") + `'], union_by_name=true)
		WHERE game_id = ?
		ORDER BY turn, snake_idx`
	rows, err := db.Query(query, gameID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var states []*game.GameState
	var moves [][]int32
	var cur *game.GameState
	for rows.Next() {
		var turn, width, height, idx, health, move int32
		var id string
		var bodyAny, foodAny, hazardsAny any
		if err := rows.Scan(&turn, &width, &height, &idx, &id, &health, &bodyAny, &foodAny, &hazardsAny, &move); err != nil {
			return nil, nil, err
		}
		if cur == nil || cur.Turn != turn {
			cur = &game.GameState{Width: width, Height: height, Turn: turn}
			for _, f := range asInt32Slice(foodAny) {
				cur.AddFood(f)
			}
			for _, h := range asInt32Slice(hazardsAny) {
				cur.AddHazard(h)
			}
			states = append(states, cur)
			moves = append(moves, nil)
		}
		if int(idx) != len(cur.Snakes) {
			klog.Warningf("turn %d: snake_idx %d out of order", turn, idx)
		}
		cur.AddSnake(id, health, asInt32Slice(bodyAny))
		moves[len(moves)-1] = append(moves[len(moves)-1], move)
	}
	return states, moves, rows.Err()
}

func printTurn(st *game.GameState, moves []int32) {
	control := heuristic.SnakeControl(st)
	shares := heuristic.ControlPercentages(st)

	fmt.Print(game.RenderBoard(st))
	fmt.Print(renderControl(st, control))

	parts := make([]string, 0, len(st.Snakes))
	for i := range st.Snakes {
		if !st.Snakes[i].Alive() {
			continue
		}
		mv := "-"
		if i < len(moves) && moves[i] != archive.MoveUnknown {
			mv = rules.Move(moves[i]).String()
		}
		parts = append(parts, fmt.Sprintf("%d:%s %.0f%%", i, mv, shares[i]*100))
	}
	fmt.Printf("moves/control: %s\n\n", strings.Join(parts, "  "))
}

// renderControl draws the territory map: the owning snake's digit per
// cell, '.' where nobody reaches first.
func renderControl(st *game.GameState, control []int8) string {
	var b strings.Builder
	b.WriteString("control\n")
	for row := int32(0); row < st.Height; row++ {
		for col := int32(0); col < st.Width; col++ {
			owner := control[st.Cell(row, col)]
			if owner == heuristic.Unclaimed {
				b.WriteByte('.')
			} else {
				b.WriteByte(byte('0' + owner))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// analyzeTurn prints each living snake's safe moves with the control
// share each would lead to.
func analyzeTurn(st *game.GameState) {
	for i := range st.Snakes {
		if !st.Snakes[i].Alive() {
			continue
		}
		safe := rules.SafeMoves(st, i)
		if len(safe) == 0 {
			fmt.Printf("snake %d %q: no safe moves\n", i, st.Snakes[i].Id)
			continue
		}
		fmt.Printf("snake %d %q:\n", i, st.Snakes[i].Id)
		for _, m := range safe {
			fmt.Printf("  %-5s -> control %.3f\n", m, heuristic.MoveControl(st, i, m))
		}
	}
}

func asInt32Slice(v any) []int32 {
	switch vv := v.(type) {
	case nil:
		return nil
	case []int32:
		return vv
	case []int64:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			out = append(out, int32(x))
		}
		return out
	case []any:
		out := make([]int32, 0, len(vv))
		for _, x := range vv {
			switch n := x.(type) {
			case int32:
				out = append(out, n)
			case int64:
				out = append(out, int32(n))
			case float64:
				out = append(out, int32(n))
			}
		}
		return out
	}
	return nil
}
