package main

import (
	"strings"
	"testing"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/rules"
)

// recordedGame plays two rounds on a 7x7 board and snapshots every turn
// the way the selfplay worker does, recorded moves included.
func recordedGame(t *testing.T) []archive.TurnRow {
	t.Helper()
	state := &game.GameState{Width: 7, Height: 7, Turn: 0}
	state.AddSnake("a", game.MaxHealth, []int32{24, 25, 26})
	state.AddSnake("b", game.MaxHealth, []int32{10, 9, 8})
	state.AddFood(23)

	var rows []archive.TurnRow
	rounds := [][]rules.Move{
		{rules.MoveLeft, rules.MoveDown},
		{rules.MoveUp, rules.MoveRight},
	}
	for _, mv := range rounds {
		turn := archive.SnapshotTurn("g1", "selfplay", state)
		for i := range turn {
			turn[i].Move = int32(mv[turn[i].SnakeIdx])
		}
		rows = append(rows, turn...)
		state = rules.NextRound(state, mv)
	}
	rows = append(rows, archive.SnapshotTurn("g1", "selfplay", state)...)
	return rows
}

func TestVerifyGameRoundTrip(t *testing.T) {
	rows := recordedGame(t)

	var st stats
	verifyGame("g1", rows, &st, 0)
	if st.divergences != 0 {
		t.Fatalf("divergences = %d, want 0", st.divergences)
	}
	if st.turnPairs != 2 {
		t.Fatalf("turnPairs = %d, want 2", st.turnPairs)
	}
	if st.verified != 1 {
		t.Fatalf("verified = %d, want 1", st.verified)
	}
}

func TestVerifyGameFlagsTamperedHealth(t *testing.T) {
	rows := recordedGame(t)
	for i := range rows {
		if rows[i].Turn == 2 && rows[i].SnakeIdx == 0 {
			rows[i].Health -= 5
		}
	}

	var st stats
	verifyGame("g1", rows, &st, 0)
	if st.divergences == 0 {
		t.Fatal("tampered health not reported")
	}
	if st.verified != 0 {
		t.Fatalf("verified = %d, want 0", st.verified)
	}
}

func TestVerifyGameSkipsUnknownMoves(t *testing.T) {
	rows := recordedGame(t)
	for i := range rows {
		if rows[i].Turn == 0 && rows[i].SnakeIdx == 1 {
			rows[i].Move = archive.MoveUnknown
		}
	}

	var st stats
	verifyGame("g1", rows, &st, 0)
	if st.turnPairs != 1 {
		t.Fatalf("turnPairs = %d, want 1", st.turnPairs)
	}
	if st.unverifiable != 1 {
		t.Fatalf("unverifiable = %d, want 1", st.unverifiable)
	}
}

func TestDiffStatesAllowsExtraRecordedFood(t *testing.T) {
	sim := &game.GameState{Width: 5, Height: 5}
	sim.AddSnake("a", 50, []int32{12, 11})
	rec := sim.Clone()
	rec.AddFood(3)

	if msg := diffStates(sim, rec); msg != "" {
		t.Fatalf("extra recorded food reported as divergence: %s", msg)
	}

	sim.AddFood(7)
	if msg := diffStates(sim, rec); msg == "" || !strings.Contains(msg, "food") {
		t.Fatalf("missing simulated food not reported, got %q", msg)
	}
}

func TestDiffStatesIgnoresDeadBodies(t *testing.T) {
	sim := &game.GameState{Width: 5, Height: 5}
	sim.AddSnake("a", 0, []int32{12, 11})
	sim.AddSnake("b", 80, []int32{20, 21})
	rec := sim.Clone()
	rec.Snakes[0].Body = nil

	if msg := diffStates(sim, rec); msg != "" {
		t.Fatalf("dead body mismatch reported as divergence: %s", msg)
	}

	rec.Snakes[1].Body = []int32{20, 15}
	if msg := diffStates(sim, rec); msg == "" || !strings.Contains(msg, "body") {
		t.Fatalf("living body mismatch not reported, got %q", msg)
	}
}
