// Package selfplay runs arena games between configured agents and feeds
// the results to the archive. Each worker plays complete games in a loop
// until its context is cancelled.
package selfplay

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/heuristic"
	"github.com/brensch/mamba/rules"
)

// Config describes one worker's games. Zero values get standard-game
// defaults from withDefaults.
type Config struct {
	// Agents play the snakes, index for index. At most four; defaults to
	// one search agent against three greedy baselines.
	Agents      []Agent
	BoardWidth  int32
	BoardHeight int32
	// MaxTurns caps runaway games; hitting it scores a draw.
	MaxTurns int32
	// Seed of 0 picks a time-based seed.
	Seed   int64
	Source string
	Food   rules.FoodSettings

	// Archive receives every finished game when non-nil.
	Archive *archive.BatchWriter

	// OnTurn observes each position before moves are chosen, with the
	// board-control map for the TUI. Called from the worker goroutine.
	OnTurn func(state *game.GameState, control []int8)
	// OnStep is called once per completed turn, for move-rate counters.
	OnStep func()
}

// GameResult summarizes one finished game. Winner is the surviving
// snake's id, empty on a draw.
type GameResult struct {
	GameID     string
	Winner     string
	WinnerKind string
	Turns      int32
	Duration   time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.Agents) == 0 {
		c.Agents = []Agent{
			&SearchAgent{Budget: 50 * time.Millisecond, Workers: 2},
			GreedyAgent{}, GreedyAgent{}, GreedyAgent{},
		}
	}
	if len(c.Agents) > 4 {
		klog.Warningf("truncating %d agents to the four spawn corners", len(c.Agents))
		c.Agents = c.Agents[:4]
	}
	if c.BoardWidth <= 0 {
		c.BoardWidth = 11
	}
	if c.BoardHeight <= 0 {
		c.BoardHeight = 11
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 500
	}
	if c.Source == "" {
		c.Source = "selfplay"
	}
	if c.Food == (rules.FoodSettings{}) {
		c.Food = rules.DefaultFoodSettings
	}
	return c
}

// Worker plays games until ctx is cancelled, archiving each finished game
// and reporting results. Incomplete games are discarded, never archived.
func Worker(ctx context.Context, cfg Config, results chan<- GameResult) {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, rows, completed := playGame(ctx, &cfg, rng)
		if !completed {
			return
		}

		if cfg.Archive != nil {
			path, err := cfg.Archive.AddGame(rows)
			if err != nil {
				klog.Errorf("archive flush failed: %v", err)
			} else if path != "" {
				klog.V(1).Infof("archived batch %s", path)
			}
		}

		select {
		case results <- result:
		case <-ctx.Done():
			return
		}
	}
}

// playGame runs one game to the end. completed is false only when ctx
// was cancelled mid-game, in which case the partial rows are dropped.
func playGame(ctx context.Context, cfg *Config, rng *rand.Rand) (GameResult, []archive.TurnRow, bool) {
	start := time.Now()
	gameID := uuid.NewString()
	state := initialState(cfg, rng)
	rows := make([]archive.TurnRow, 0, 256)

	for state.Turn < cfg.MaxTurns && !rules.IsGameOver(state) {
		select {
		case <-ctx.Done():
			return GameResult{}, nil, false
		default:
		}

		control := heuristic.SnakeControl(state)
		if cfg.OnTurn != nil {
			cfg.OnTurn(state, control)
		}

		// one goroutine per living snake; disjoint indices, no locking
		moves := make([]rules.Move, len(state.Snakes))
		chosen := make([]bool, len(state.Snakes))
		var wg sync.WaitGroup
		for i := range state.Snakes {
			if !state.Snakes[i].Alive() {
				continue
			}
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				moves[idx], chosen[idx] = cfg.Agents[idx].ChooseMove(state, idx)
			}(i)
		}
		wg.Wait()

		turnRows := archive.SnapshotTurn(gameID, cfg.Source, state)
		shares := controlShares(control, len(state.Snakes), state.Cells())
		for i := range turnRows {
			if chosen[i] {
				turnRows[i].Move = int32(moves[i])
			}
			turnRows[i].ControlPct = shares[i]
		}
		rows = append(rows, turnRows...)

		if cfg.OnStep != nil {
			cfg.OnStep()
		}

		state = rules.NextRound(state, moves)
		rules.SpawnFood(state, rng, cfg.Food)
	}

	// record the final position so archived games end where they ended
	control := heuristic.SnakeControl(state)
	if cfg.OnTurn != nil {
		cfg.OnTurn(state, control)
	}
	turnRows := archive.SnapshotTurn(gameID, cfg.Source, state)
	shares := controlShares(control, len(state.Snakes), state.Cells())
	for i := range turnRows {
		turnRows[i].ControlPct = shares[i]
	}
	rows = append(rows, turnRows...)

	result := GameResult{
		GameID:   gameID,
		Turns:    state.Turn,
		Duration: time.Since(start),
	}
	if winnerIdx := rules.Winner(state); winnerIdx >= 0 {
		result.Winner = state.Snakes[winnerIdx].Id
		result.WinnerKind = cfg.Agents[winnerIdx].Kind()
		for i := range rows {
			if rows[i].SnakeID == result.Winner {
				rows[i].Winner = true
			}
		}
	}
	return result, rows, true
}

// initialState builds a standard opening: snakes stacked three deep on
// inset corners, one food per snake.
func initialState(cfg *Config, rng *rand.Rand) *game.GameState {
	state := &game.GameState{Width: cfg.BoardWidth, Height: cfg.BoardHeight}

	spots := spawnCells(state)
	for i, agent := range cfg.Agents {
		id := fmt.Sprintf("%s-%d", agent.Kind(), i)
		spot := spots[i%len(spots)]
		state.AddSnake(id, game.MaxHealth, []int32{spot, spot, spot})
	}

	rules.SpawnFood(state, rng, rules.FoodSettings{MinimumFood: len(cfg.Agents), FoodSpawnChance: 0})
	return state
}

func spawnCells(state *game.GameState) []int32 {
	top, bottom := int32(1), state.Height-2
	left, right := int32(1), state.Width-2
	return []int32{
		state.Cell(bottom, left),
		state.Cell(top, right),
		state.Cell(top, left),
		state.Cell(bottom, right),
	}
}

// controlShares folds the per-cell control map into one fraction per
// snake.
func controlShares(control []int8, snakes int, cells int32) []float32 {
	shares := make([]float32, snakes)
	if cells <= 0 {
		return shares
	}
	for _, owner := range control {
		if owner >= 0 && int(owner) < snakes {
			shares[owner]++
		}
	}
	for i := range shares {
		shares[i] /= float32(cells)
	}
	return shares
}
