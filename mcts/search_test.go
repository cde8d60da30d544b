package mcts

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/rules"
)

func containsMove(moves []rules.Move, m rules.Move) bool {
	for _, have := range moves {
		if have == m {
			return true
		}
	}
	return false
}

// runIterations drives the search single-threaded so tests are
// deterministic and never depend on the wall clock.
func runIterations(m *MCTS, n int) {
	for i := 0; i < n; i++ {
		m.iterate()
		m.iterations.Add(1)
	}
}

func logRootChildren(t *testing.T, m *MCTS) {
	t.Helper()
	for _, c := range m.Root().Children() {
		t.Logf("child move=%s noMove=%v visits=%d scores=%v", c.Move, c.NoMove, c.Visits(), c.Scores())
	}
}

func TestBestMoveSafeOrNone(t *testing.T) {
	scenarios := []struct {
		name  string
		state *game.GameState
	}{
		{
			name: "open",
			state: &game.GameState{
				Width: 7, Height: 7,
				Snakes: []game.Snake{
					{Id: "s0", Health: 100, Body: []int32{24, 25, 26}},
					{Id: "s1", Health: 100, Body: []int32{10, 9, 8}},
				},
				Food: []int32{30},
			},
		},
		{
			name: "corner",
			state: &game.GameState{
				Width: 5, Height: 5,
				Snakes: []game.Snake{
					{Id: "s0", Health: 50, Body: []int32{0, 1, 2}},
					{Id: "s1", Health: 80, Body: []int32{24, 23}},
				},
			},
		},
		{
			name: "trapped",
			state: &game.GameState{
				Width: 3, Height: 1,
				Snakes: []game.Snake{
					{Id: "s0", Health: 100, Body: []int32{0, 1}},
					{Id: "s1", Health: 100, Body: []int32{2}},
				},
			},
		},
		{
			name: "hazard",
			state: &game.GameState{
				Width: 5, Height: 5,
				Snakes: []game.Snake{
					{Id: "s0", Health: 10, Body: []int32{12, 13, 14}},
					{Id: "s1", Health: 100, Body: []int32{24}},
				},
				Hazards: []int32{7},
			},
		},
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			m := New(sc.state, Config{Workers: 1})
			runIterations(m, 200)

			best, ok := m.BestMove("s0")
			if !ok {
				t.Logf("no move chosen:\n%s", game.RenderBoard(sc.state))
				return
			}
			safe := rules.SafeMoves(sc.state, 0)
			if !containsMove(safe, best) {
				t.Fatalf("best move %s not in safe moves %v:\n%s", best, safe, game.RenderBoard(sc.state))
			}
		})
	}
}

func TestTrappedSnakeReturnsNoMove(t *testing.T) {
	state := &game.GameState{
		Width: 3, Height: 1,
		Snakes: []game.Snake{
			{Id: "s0", Health: 100, Body: []int32{0, 1}},
			{Id: "s1", Health: 100, Body: []int32{2}},
		},
	}

	m := New(state, Config{Workers: 1})
	runIterations(m, 100)

	children := m.Root().Children()
	if len(children) != 1 {
		t.Fatalf("root children=%d want=1", len(children))
	}
	if !children[0].NoMove {
		t.Fatalf("expected a pass child for a snake with no safe moves")
	}
	if _, ok := m.BestMove("s0"); ok {
		t.Fatalf("expected no best move when only a pass exists")
	}
}

func TestDeadSnakeGetsPassChild(t *testing.T) {
	state := &game.GameState{
		Width: 5, Height: 5,
		Snakes: []game.Snake{
			{Id: "s0", Health: 100, Body: []int32{12, 13}},
			{Id: "s1", Health: 0, Body: []int32{0}},
			{Id: "s2", Health: 100, Body: []int32{24, 23}},
		},
	}

	m := New(state, Config{Workers: 1})
	runIterations(m, 300)

	children := m.Root().Children()
	if len(children) == 0 {
		t.Fatalf("root never expanded")
	}
	for _, child := range children {
		if child.Player != 1 {
			t.Fatalf("root child player=%d want=1", child.Player)
		}
		grandchildren := child.Children()
		if len(grandchildren) != 1 {
			t.Fatalf("dead snake produced %d children, want a single pass", len(grandchildren))
		}
		if !grandchildren[0].NoMove {
			t.Fatalf("dead snake's child is not a pass")
		}
		if grandchildren[0].Player != 2 {
			t.Fatalf("pass child player=%d want=2", grandchildren[0].Player)
		}
	}
}

func TestTerminalRootNeverExpands(t *testing.T) {
	state := &game.GameState{
		Width: 5, Height: 5,
		Snakes: []game.Snake{
			{Id: "s0", Health: 100, Body: []int32{12, 13, 14}},
			{Id: "s1", Health: 0, Body: []int32{4}},
		},
	}

	m := New(state, Config{Workers: 1})
	runIterations(m, 50)

	root := m.Root()
	if !root.Terminal {
		t.Fatalf("root with one living snake should be terminal")
	}
	if len(root.Children()) != 0 {
		t.Fatalf("terminal root expanded to %d children", len(root.Children()))
	}
	if got := root.Visits(); got != 50 {
		t.Fatalf("root visits=%d want=50", got)
	}
	if got := root.Scores()[0]; got != 50 {
		t.Fatalf("survivor score=%v want=50", got)
	}
	if _, ok := m.BestMove("s0"); ok {
		t.Fatalf("expected no best move from a terminal root")
	}
}

func TestVisitCountsFlowToRoot(t *testing.T) {
	state := &game.GameState{
		Width: 7, Height: 7,
		Snakes: []game.Snake{
			{Id: "s0", Health: 100, Body: []int32{24, 25, 26}},
			{Id: "s1", Health: 100, Body: []int32{10, 9, 8}},
		},
	}

	m := New(state, Config{Workers: 1})
	runIterations(m, 150)

	root := m.Root()
	if got := root.Visits(); got != 150 {
		t.Fatalf("root visits=%d want=150", got)
	}
	var sum int32
	for _, c := range root.Children() {
		sum += c.Visits()
	}
	if sum != 150 {
		t.Fatalf("child visit sum=%d want=150", sum)
	}
}

func TestRoundResolvesWhenLastSnakeActs(t *testing.T) {
	state := &game.GameState{
		Width: 7, Height: 7, Turn: 5,
		Snakes: []game.Snake{
			{Id: "s0", Health: 100, Body: []int32{24, 25}},
			{Id: "s1", Health: 100, Body: []int32{10, 9}},
		},
	}

	m := New(state, Config{Workers: 1})
	runIterations(m, 100)

	child := m.Root().Children()[0]
	if child.Player != 1 {
		t.Fatalf("first child player=%d want=1", child.Player)
	}
	// mid-round: first snake has moved, second has not, turn untouched
	if child.State.Turn != 5 {
		t.Fatalf("mid-round turn=%d want=5", child.State.Turn)
	}
	if child.State.Snakes[0].Health != 99 {
		t.Fatalf("mover health=%d want=99", child.State.Snakes[0].Health)
	}
	if child.State.Snakes[1].Head() != 10 {
		t.Fatalf("waiting snake moved early to %d", child.State.Snakes[1].Head())
	}

	grandchild := child.Children()[0]
	if grandchild.Player != 0 {
		t.Fatalf("grandchild player=%d want=0", grandchild.Player)
	}
	if grandchild.State.Turn != 6 {
		t.Fatalf("post-round turn=%d want=6", grandchild.State.Turn)
	}
}

func TestAvoidsLethalHazard(t *testing.T) {
	// moving up onto the hazard drops s0 from 10 health to zero
	state := &game.GameState{
		Width: 5, Height: 5,
		Snakes: []game.Snake{
			{Id: "s0", Health: 10, Body: []int32{12, 13, 14}},
			{Id: "s1", Health: 100, Body: []int32{24}},
		},
		Hazards: []int32{7},
	}

	m := New(state, Config{Workers: 1})
	runIterations(m, 600)
	logRootChildren(t, m)

	best, ok := m.BestMove("s0")
	if !ok {
		t.Fatalf("expected a best move:\n%s", game.RenderBoard(state))
	}
	if best == rules.MoveUp {
		t.Fatalf("search chose the lethal hazard:\n%s", game.RenderBoard(state))
	}
}

func TestRunStopsAtDeadline(t *testing.T) {
	state := &game.GameState{
		Width: 7, Height: 7,
		Snakes: []game.Snake{
			{Id: "s0", Health: 100, Body: []int32{24, 25, 26}},
			{Id: "s1", Health: 100, Body: []int32{10, 9, 8}},
		},
		Food: []int32{30},
	}

	m := New(state, Config{Workers: 4})
	m.Run(time.Now().Add(30 * time.Millisecond))

	iterations := m.Iterations()
	if iterations == 0 {
		t.Fatalf("no iterations completed")
	}
	if got := int64(m.Root().Visits()); got != iterations {
		t.Fatalf("root visits=%d iterations=%d, want equal", got, iterations)
	}
	t.Logf("completed %d iterations across 4 workers", iterations)

	best, ok := m.BestMove("s0")
	if ok && !containsMove(rules.SafeMoves(state, 0), best) {
		t.Fatalf("best move %s not safe", best)
	}
}

func TestExportTreeWritesFile(t *testing.T) {
	state := &game.GameState{
		Width: 5, Height: 5,
		Snakes: []game.Snake{
			{Id: "s0", Health: 100, Body: []int32{12, 13}},
			{Id: "s1", Health: 100, Body: []int32{24, 23}},
		},
	}

	m := New(state, Config{Workers: 1})
	runIterations(m, 120)

	path, err := m.ExportTree(t.TempDir(), 50)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var root ExportNode
	if err := json.Unmarshal(payload, &root); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if root.Move != "" {
		t.Fatalf("root move=%q want empty", root.Move)
	}
	if root.Visits != 120 {
		t.Fatalf("root visits=%d want=120", root.Visits)
	}
	if !root.MostVisited {
		t.Fatalf("root should be on the principal line")
	}
	if len(root.Children) == 0 {
		t.Fatalf("export dropped the root's children")
	}
}
