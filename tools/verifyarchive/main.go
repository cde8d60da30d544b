// Verifyarchive re-simulates archived games and reports where the
// recording and this engine disagree. Selfplay recordings must replay
// exactly. Scraped games ran on the public engine, whose food spawning
// and hazard rules drift from ours, so they stay filtered out unless
// -source asks for them; expect reported drift when it does.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"k8s.io/klog/v2"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/rules"
)

type stats struct {
	files        int
	games        int
	verified     int
	filtered     int
	turnPairs    int
	unverifiable int
	divergences  int
}

func main() {
	klog.InitFlags(nil)
	archiveDir := flag.String("archive-dir", "data", "Root directory of parquet archives")
	source := flag.String("source", "selfplay", "Only verify games with this source column; empty means all")
	maxReport := flag.Int("max-report", 10, "Stop printing divergences after this many; counting continues")
	flag.Parse()
	defer klog.Flush()

	files, err := parquetFiles(*archiveDir)
	if err != nil {
		klog.Fatalf("scanning %s: %v", *archiveDir, err)
	}
	if len(files) == 0 {
		klog.Fatalf("no parquet files under %s", *archiveDir)
	}

	var st stats
	for _, path := range files {
		rows, err := parquet.ReadFile[archive.TurnRow](path)
		if err != nil {
			klog.Errorf("reading %s: %v", path, err)
			continue
		}
		st.files++

		// games never span files: the batch writer flushes whole games
		// and the scraper writes one file per game
		games := groupByGame(rows)
		ids := make([]string, 0, len(games))
		for id := range games {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			gameRows := games[id]
			st.games++
			if *source != "" && gameRows[0].Source != *source {
				st.filtered++
				continue
			}
			verifyGame(id, gameRows, &st, *maxReport)
		}
	}

	klog.Infof("files=%d games=%d verified=%d filtered=%d turn_pairs=%d unverifiable_pairs=%d divergences=%d",
		st.files, st.games, st.verified, st.filtered, st.turnPairs, st.unverifiable, st.divergences)
	if st.divergences > 0 {
		os.Exit(1)
	}
}

func parquetFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func groupByGame(rows []archive.TurnRow) map[string][]archive.TurnRow {
	games := make(map[string][]archive.TurnRow)
	for _, r := range rows {
		games[r.GameID] = append(games[r.GameID], r)
	}
	return games
}

type turnData struct {
	state *game.GameState
	moves []int32
}

// turnStates rebuilds the per-turn simulator states of one game, sorted
// by turn, snakes in index order.
func turnStates(rows []archive.TurnRow) []turnData {
	byTurn := make(map[int32][]archive.TurnRow)
	for _, r := range rows {
		byTurn[r.Turn] = append(byTurn[r.Turn], r)
	}
	turns := make([]int32, 0, len(byTurn))
	for t := range byTurn {
		turns = append(turns, t)
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i] < turns[j] })

	out := make([]turnData, 0, len(turns))
	for _, t := range turns {
		trs := byTurn[t]
		sort.Slice(trs, func(i, j int) bool { return trs[i].SnakeIdx < trs[j].SnakeIdx })
		st := &game.GameState{Width: trs[0].Width, Height: trs[0].Height, Turn: t}
		st.Food = append(st.Food, trs[0].Food...)
		st.Hazards = append(st.Hazards, trs[0].Hazards...)
		moves := make([]int32, 0, len(trs))
		for _, r := range trs {
			st.AddSnake(r.SnakeID, r.Health, r.Body)
			moves = append(moves, r.Move)
		}
		out = append(out, turnData{state: st, moves: moves})
	}
	return out
}

func verifyGame(gameID string, rows []archive.TurnRow, st *stats, maxReport int) {
	turns := turnStates(rows)

	checked := false
	diverged := false
	for i := 0; i+1 < len(turns); i++ {
		cur, next := turns[i], turns[i+1]
		if next.state.Turn != cur.state.Turn+1 {
			st.unverifiable++
			continue
		}
		moves, ok := recordedMoves(cur)
		if !ok {
			st.unverifiable++
			continue
		}

		st.turnPairs++
		checked = true
		sim := rules.NextRound(cur.state, moves)
		if msg := diffStates(sim, next.state); msg != "" {
			st.divergences++
			diverged = true
			if st.divergences <= maxReport {
				klog.Errorf("game %s turn %d: %s", gameID, cur.state.Turn, msg)
			}
		}
	}
	if checked && !diverged {
		st.verified++
	}
}

// recordedMoves returns the move per snake for one turn. Dead snakes get
// a placeholder the simulator ignores; a living snake without a recorded
// move makes the pair unverifiable.
func recordedMoves(t turnData) ([]rules.Move, bool) {
	moves := make([]rules.Move, len(t.state.Snakes))
	for i := range t.state.Snakes {
		if !t.state.Snakes[i].Alive() {
			continue
		}
		if i >= len(t.moves) || t.moves[i] == archive.MoveUnknown {
			return nil, false
		}
		moves[i] = rules.Move(t.moves[i])
	}
	return moves, true
}

// diffStates reports the first field where the simulated state disagrees
// with the recorded one, or "". Food is a subset check: the recorder
// spawns food after resolving, so the recorded turn may hold cells the
// simulation cannot predict. Dead snakes only have their deadness
// compared; their final bodies are not load-bearing.
func diffStates(sim, rec *game.GameState) string {
	if len(sim.Snakes) != len(rec.Snakes) {
		return fmt.Sprintf("snake count %d, recorded %d", len(sim.Snakes), len(rec.Snakes))
	}
	for i := range sim.Snakes {
		s, r := &sim.Snakes[i], &rec.Snakes[i]
		if s.Alive() != r.Alive() {
			return fmt.Sprintf("snake %d alive=%v, recorded %v", i, s.Alive(), r.Alive())
		}
		if !s.Alive() {
			continue
		}
		if s.Health != r.Health {
			return fmt.Sprintf("snake %d health %d, recorded %d", i, s.Health, r.Health)
		}
		if !int32SlicesEqual(s.Body, r.Body) {
			return fmt.Sprintf("snake %d body %v, recorded %v", i, s.Body, r.Body)
		}
	}
	for _, f := range sim.Food {
		if !containsCell(rec.Food, f) {
			return fmt.Sprintf("food cell %d missing from recording", f)
		}
	}
	if !sameCellSet(sim.Hazards, rec.Hazards) {
		return fmt.Sprintf("hazards %v, recorded %v", sim.Hazards, rec.Hazards)
	}
	return ""
}

func int32SlicesEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsCell(cells []int32, c int32) bool {
	for _, v := range cells {
		if v == c {
			return true
		}
	}
	return false
}

func sameCellSet(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]int32(nil), a...)
	bs := append([]int32(nil), b...)
	sort.Slice(as, func(i, j int) bool { return as[i] < as[j] })
	sort.Slice(bs, func(i, j int) bool { return bs[i] < bs[j] })
	return int32SlicesEqual(as, bs)
}
