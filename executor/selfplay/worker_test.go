package selfplay

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/rules"
)

func TestGreedyAgentAvoidsLethalMove(t *testing.T) {
	// down lands on a hazard and drains the last 10 health
	state := &game.GameState{
		Width: 5, Height: 5,
		Snakes: []game.Snake{
			{Id: "g", Health: 10, Body: []int32{1, 0}},
		},
		Hazards: []int32{6},
	}

	move, ok := GreedyAgent{}.ChooseMove(state, 0)
	if !ok {
		t.Fatalf("expected a move")
	}
	if move != rules.MoveRight {
		t.Fatalf("greedy chose %s, want right:\n%s", move, game.RenderBoard(state))
	}
}

func TestGreedyAgentTrappedReturnsNoMove(t *testing.T) {
	state := &game.GameState{
		Width: 3, Height: 1,
		Snakes: []game.Snake{
			{Id: "g", Health: 100, Body: []int32{0, 1}},
		},
	}

	if _, ok := (GreedyAgent{}).ChooseMove(state, 0); ok {
		t.Fatalf("trapped snake should have no move")
	}
}

func TestSearchAgentDecidesForItsOwnSnake(t *testing.T) {
	// snake 1 sits in the top-left corner with only down available
	state := &game.GameState{
		Width: 5, Height: 5,
		Snakes: []game.Snake{
			{Id: "s0", Health: 100, Body: []int32{24, 23}},
			{Id: "s1", Health: 100, Body: []int32{0, 1}},
		},
	}

	agent := &SearchAgent{Budget: 20 * time.Millisecond, Workers: 1}
	move, ok := agent.ChooseMove(state, 1)
	if !ok {
		t.Fatalf("expected a move for snake 1")
	}
	if move != rules.MoveDown {
		t.Fatalf("agent chose %s, want down:\n%s", move, game.RenderBoard(state))
	}
	// the shared state must come through untouched
	if state.Snakes[0].Id != "s0" || state.Snakes[1].Id != "s1" {
		t.Fatalf("agent reordered the caller's snakes")
	}
}

func TestPlayGameGreedyOnlyCompletes(t *testing.T) {
	cfg := Config{
		Agents:      []Agent{GreedyAgent{}, GreedyAgent{}},
		BoardWidth:  7,
		BoardHeight: 7,
		MaxTurns:    60,
		Source:      "test",
	}
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(42))

	result, rows, completed := playGame(context.Background(), &cfg, rng)
	if !completed {
		t.Fatalf("game did not complete")
	}
	if result.GameID == "" {
		t.Fatalf("missing game id")
	}
	if result.Turns > 60 {
		t.Fatalf("turn cap ignored: %d", result.Turns)
	}

	// one snapshot per snake per turn, plus the final position
	want := int(result.Turns+1) * 2
	if len(rows) != want {
		t.Fatalf("rows=%d want=%d (turns=%d)", len(rows), want, result.Turns)
	}

	if result.Winner == "" {
		if result.WinnerKind != "" {
			t.Fatalf("draw with winner kind %q", result.WinnerKind)
		}
		for _, row := range rows {
			if row.Winner {
				t.Fatalf("draw marked a winner row: %+v", row)
			}
		}
	} else {
		if result.WinnerKind != "greedy" {
			t.Fatalf("winner kind=%q want=greedy", result.WinnerKind)
		}
		for _, row := range rows {
			if (row.SnakeID == result.Winner) != row.Winner {
				t.Fatalf("winner flag wrong on %+v", row)
			}
		}
	}
}

func TestPlayGameCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{Agents: []Agent{GreedyAgent{}, GreedyAgent{}}}
	cfg = cfg.withDefaults()

	_, rows, completed := playGame(ctx, &cfg, rand.New(rand.NewSource(1)))
	if completed {
		t.Fatalf("cancelled game reported completion")
	}
	if rows != nil {
		t.Fatalf("cancelled game leaked %d rows", len(rows))
	}
}

func TestWorkerArchivesFinishedGames(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{
		Agents:      []Agent{GreedyAgent{}, GreedyAgent{}},
		BoardWidth:  7,
		BoardHeight: 7,
		MaxTurns:    40,
		Seed:        7,
		Archive:     archive.NewBatchWriter(dir, 1),
	}

	results := make(chan GameResult, 1)
	done := make(chan struct{})
	go func() {
		Worker(ctx, cfg, results)
		close(done)
	}()

	select {
	case result := <-results:
		if result.Turns == 0 {
			t.Fatalf("empty result: %+v", result)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("worker produced no result")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}

	batches, _ := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if len(batches) == 0 {
		t.Fatalf("no batch written to %s", dir)
	}
}

func TestControlShares(t *testing.T) {
	shares := controlShares([]int8{0, 0, 1, -1}, 2, 4)
	if shares[0] != 0.5 || shares[1] != 0.25 {
		t.Fatalf("shares=%v want=[0.5 0.25]", shares)
	}
}

func TestInitialStateSpawns(t *testing.T) {
	cfg := Config{Agents: []Agent{&SearchAgent{}, GreedyAgent{}, GreedyAgent{}, GreedyAgent{}}}
	cfg = cfg.withDefaults()

	state := initialState(&cfg, rand.New(rand.NewSource(3)))
	if len(state.Snakes) != 4 {
		t.Fatalf("snakes=%d want=4", len(state.Snakes))
	}
	seen := map[int32]bool{}
	for i := range state.Snakes {
		s := &state.Snakes[i]
		if len(s.Body) != 3 || s.Body[0] != s.Body[1] || s.Body[1] != s.Body[2] {
			t.Fatalf("snake %d not stacked: %v", i, s.Body)
		}
		if !state.InBounds(s.Head()) {
			t.Fatalf("snake %d spawned off board at %d", i, s.Head())
		}
		if seen[s.Head()] {
			t.Fatalf("two snakes share spawn cell %d", s.Head())
		}
		seen[s.Head()] = true
	}
	if len(state.Food) < 4 {
		t.Fatalf("food=%d want at least one per snake", len(state.Food))
	}
}
