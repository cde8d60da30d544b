package main

import (
	"testing"
	"time"
)

func TestConvertRequestFlipsAndReorders(t *testing.T) {
	req := &GameRequest{
		Turn: 17,
		Board: Board{
			Width: 5, Height: 5,
			Food:    []Coord{{X: 0, Y: 4}, {X: 2, Y: 2}},
			Hazards: []Coord{{X: 3, Y: 1}},
			Snakes: []Battlesnake{
				{ID: "opp", Health: 100, Body: []Coord{{X: 4, Y: 4}, {X: 4, Y: 3}}},
				{ID: "me", Health: 73, Body: []Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}},
			},
		},
		You: Battlesnake{ID: "me"},
	}

	state := convertRequest(req)

	if state.Turn != 17 {
		t.Fatalf("turn=%d want=17", state.Turn)
	}
	if len(state.Snakes) != 2 {
		t.Fatalf("snakes=%d want=2", len(state.Snakes))
	}
	if state.Snakes[0].Id != "me" {
		t.Fatalf("snake 0 is %q, requesting snake must come first", state.Snakes[0].Id)
	}
	if state.Snakes[0].Health != 73 {
		t.Fatalf("health=%d want=73", state.Snakes[0].Health)
	}

	// y=0 is the bottom row of the API board, row 4 internally
	wantMe := []int32{20, 21, 22}
	for i, cell := range wantMe {
		if state.Snakes[0].Body[i] != cell {
			t.Fatalf("me body[%d]=%d want=%d", i, state.Snakes[0].Body[i], cell)
		}
	}
	wantOpp := []int32{4, 9}
	for i, cell := range wantOpp {
		if state.Snakes[1].Body[i] != cell {
			t.Fatalf("opp body[%d]=%d want=%d", i, state.Snakes[1].Body[i], cell)
		}
	}

	if len(state.Food) != 2 || state.Food[0] != 0 || state.Food[1] != 12 {
		t.Fatalf("food=%v want=[0 12]", state.Food)
	}
	if len(state.Hazards) != 1 || state.Hazards[0] != 18 {
		t.Fatalf("hazards=%v want=[18]", state.Hazards)
	}
}

func TestOrderedSnakesWithoutYou(t *testing.T) {
	board := &Board{
		Snakes: []Battlesnake{{ID: "a"}, {ID: "b"}},
	}

	out := orderedSnakes(board, "ghost")
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("order changed for an absent id: %v", out)
	}
}

func TestMoveBudget(t *testing.T) {
	cases := []struct {
		name      string
		timeoutMs int
		buffer    time.Duration
		fallback  time.Duration
		want      time.Duration
	}{
		{"standard", 500, 200 * time.Millisecond, 500 * time.Millisecond, 300 * time.Millisecond},
		{"no request timeout", 0, 200 * time.Millisecond, 500 * time.Millisecond, 300 * time.Millisecond},
		{"tiny timeout clamps", 220, 200 * time.Millisecond, 500 * time.Millisecond, 50 * time.Millisecond},
		{"generous timeout", 10000, 200 * time.Millisecond, 500 * time.Millisecond, 9800 * time.Millisecond},
		{"zero buffer", 100, 0, 500 * time.Millisecond, 100 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := moveBudget(tc.timeoutMs, tc.buffer, tc.fallback); got != tc.want {
				t.Fatalf("budget=%s want=%s", got, tc.want)
			}
		})
	}
}
