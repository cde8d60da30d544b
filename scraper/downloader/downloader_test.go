package downloader

import (
	"testing"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/rules"
)

// Two turns on a 7x7 board. Snake a moves right, snake b moves down (in
// wire coordinates, toward y=0) and dies to a wall on arrival.
func testFrames() []FrameData {
	return []FrameData{
		{
			Turn:  0,
			Board: BoardData{Width: 7, Height: 7},
			Snakes: []SnakeData{
				{ID: "a", Name: "alpha", Health: 100, Body: []Coord{{X: 1, Y: 1}, {X: 1, Y: 0}}},
				{ID: "b", Name: "beta", Health: 90, Body: []Coord{{X: 5, Y: 5}, {X: 5, Y: 6}}},
			},
			Food: []Coord{{X: 0, Y: 0}},
		},
		{
			Turn:  1,
			Board: BoardData{Width: 7, Height: 7},
			Snakes: []SnakeData{
				{ID: "a", Name: "alpha", Health: 99, Body: []Coord{{X: 2, Y: 1}, {X: 1, Y: 1}}},
				{ID: "b", Name: "beta", Health: 0, Body: []Coord{{X: 5, Y: 4}, {X: 5, Y: 5}}, Death: &Death{Cause: "wall-collision", Turn: 1}},
			},
			Food: []Coord{{X: 0, Y: 0}},
		},
	}
}

func TestBuildRowsInfersMovesAndWinner(t *testing.T) {
	rows := BuildRows("game-1", testFrames())
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows (2 turns x 2 snakes), got %d", len(rows))
	}

	// rows come out turn-major, then snake index
	a0, b0, a1, b1 := rows[0], rows[1], rows[2], rows[3]

	if a0.SnakeID != "a" || b0.SnakeID != "b" {
		t.Fatalf("snake order wrong: %q, %q", a0.SnakeID, b0.SnakeID)
	}
	if a0.Width != 7 || a0.Height != 7 {
		t.Fatalf("board dims %dx%d", a0.Width, a0.Height)
	}

	// wire (1,1) on 7x7 flips to row 5 -> cell 36
	if a0.HeadCell != 36 {
		t.Fatalf("head cell %d, want 36", a0.HeadCell)
	}
	if len(a0.Food) != 1 || a0.Food[0] != 42 {
		t.Fatalf("food %v, want [42]", a0.Food)
	}

	if a0.Move != int32(rules.MoveRight) {
		t.Errorf("a turn 0 move %d, want right", a0.Move)
	}
	if b0.Move != archive.MoveUnknown {
		t.Errorf("b died on its move; want unknown, got %d", b0.Move)
	}
	if a1.Move != archive.MoveUnknown || b1.Move != archive.MoveUnknown {
		t.Errorf("last frame moves should be unknown, got %d and %d", a1.Move, b1.Move)
	}

	if a0.ControlPct <= 0 || b0.ControlPct <= 0 {
		t.Errorf("living snakes should control territory on turn 0: %f, %f", a0.ControlPct, b0.ControlPct)
	}
	if b1.ControlPct != 0 {
		t.Errorf("dead snake controls %f, want 0", b1.ControlPct)
	}
	if b1.Alive || b1.Health != 0 {
		t.Errorf("b should be dead on turn 1: alive=%v health=%d", b1.Alive, b1.Health)
	}

	for _, r := range rows {
		want := r.SnakeID == "a"
		if r.Winner != want {
			t.Errorf("winner flag on %s turn %d: %v, want %v", r.SnakeID, r.Turn, r.Winner, want)
		}
	}
}

func TestBuildRowsBothAliveNoWinner(t *testing.T) {
	frames := testFrames()
	frames[1].Snakes[1].Health = 50
	frames[1].Snakes[1].Death = nil

	rows := BuildRows("game-2", frames)
	for _, r := range rows {
		if r.Winner {
			t.Fatalf("no winner expected, but %s flagged", r.SnakeID)
		}
	}
	// b survived its move down, so it is inferable now
	if rows[1].Move != int32(rules.MoveDown) {
		t.Errorf("b turn 0 move %d, want down", rows[1].Move)
	}
}

func TestCellOrOff(t *testing.T) {
	cases := []struct {
		c    Coord
		want int32
	}{
		{Coord{X: 0, Y: 0}, 42},
		{Coord{X: 6, Y: 6}, 6},
		{Coord{X: 3, Y: 2}, 31},
		{Coord{X: -1, Y: 0}, game.OffBoard},
		{Coord{X: 7, Y: 0}, game.OffBoard},
		{Coord{X: 0, Y: 7}, game.OffBoard},
	}
	for _, tc := range cases {
		if got := cellOrOff(tc.c, 7, 7); got != tc.want {
			t.Errorf("cellOrOff(%v) = %d, want %d", tc.c, got, tc.want)
		}
	}
}

func TestBoardSizeFallsBackToCoords(t *testing.T) {
	frames := testFrames()
	frames[0].Board = BoardData{}
	frames[1].Board = BoardData{}

	w, h := boardSize(frames)
	// largest x is 5, largest y is 6
	if w != 6 || h != 7 {
		t.Fatalf("inferred %dx%d, want 6x7", w, h)
	}
}

func TestFrameStateKeepsRosterSlots(t *testing.T) {
	frames := testFrames()
	// some feeds drop dead snakes from later frames entirely
	frames[1].Snakes = frames[1].Snakes[:1]

	rows := BuildRows("game-3", frames)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	b1 := rows[3]
	if b1.SnakeID != "b" || b1.SnakeIdx != 1 {
		t.Fatalf("placeholder row lost identity: id=%q idx=%d", b1.SnakeID, b1.SnakeIdx)
	}
	if b1.Alive || len(b1.Body) != 0 {
		t.Fatalf("placeholder should be dead and bodiless: alive=%v body=%v", b1.Alive, b1.Body)
	}
}
