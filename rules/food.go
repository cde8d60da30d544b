package rules

import (
	"math/rand"

	"github.com/brensch/mamba/game"
)

// FoodSettings matches the common Battlesnake server knobs:
// MinimumFood keeps at least that many food cells on the board after each
// round; FoodSpawnChance is a percentage (0-100) chance of one extra food
// per round. Engine defaults are MinimumFood=1, FoodSpawnChance=15.
type FoodSettings struct {
	MinimumFood     int
	FoodSpawnChance int
}

var DefaultFoodSettings = FoodSettings{MinimumFood: 1, FoodSpawnChance: 15}

// SpawnFood tops the board up per settings, placing food only on cells
// free of living bodies and existing food. Only the self-play driver calls
// this; the search never spawns food inside its lookahead. A nil rng gets
// a deterministic source seeded from the state, which keeps tests and
// replays stable.
func SpawnFood(state *game.GameState, rng *rand.Rand, settings FoodSettings) {
	if state == nil || state.Width <= 0 || state.Height <= 0 {
		return
	}
	if settings.MinimumFood < 0 {
		settings.MinimumFood = 0
	}
	if settings.FoodSpawnChance < 0 {
		settings.FoodSpawnChance = 0
	}
	if settings.FoodSpawnChance > 100 {
		settings.FoodSpawnChance = 100
	}

	if rng == nil {
		seed := int64(state.Turn)<<32 | int64(state.Width)<<16 | int64(state.Height)<<8 | int64(len(state.Food)+1)
		rng = rand.New(rand.NewSource(seed))
	}

	deficit := settings.MinimumFood - len(state.Food)
	if deficit < 0 {
		deficit = 0
	}
	extra := 0
	if settings.FoodSpawnChance > 0 && rng.Intn(100) < settings.FoodSpawnChance {
		extra = 1
	}
	if deficit+extra == 0 {
		return
	}

	occupied := make(map[int32]struct{}, int(state.Cells()))
	for i := range state.Snakes {
		s := &state.Snakes[i]
		if !s.Alive() {
			continue
		}
		for _, c := range s.Body {
			if state.InBounds(c) {
				occupied[c] = struct{}{}
			}
		}
	}
	for _, f := range state.Food {
		occupied[f] = struct{}{}
	}

	available := make([]int32, 0, int(state.Cells())-len(occupied))
	for c := int32(0); c < state.Cells(); c++ {
		if _, ok := occupied[c]; !ok {
			available = append(available, c)
		}
	}

	for n := deficit + extra; n > 0 && len(available) > 0; n-- {
		i := rng.Intn(len(available))
		state.AddFood(available[i])
		available[i] = available[len(available)-1]
		available = available[:len(available)-1]
	}
}
