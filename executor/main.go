// Package main runs the self-play arena: configured agents play full
// games against each other, results land in the parquet archive, and a
// terminal UI (or plain logs with -headless) shows live win rates and
// the board of worker 0.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/executor/selfplay"
	"github.com/brensch/mamba/game"
)

var totalMoves atomic.Int64
var totalGames atomic.Int64

// liveBoard holds the most recent position of worker 0 for the TUI.
type liveBoard struct {
	mu      sync.Mutex
	state   *game.GameState
	control []int8
}

func (l *liveBoard) set(state *game.GameState, control []int8) {
	clone := state.Clone()
	ctl := append([]int8(nil), control...)
	l.mu.Lock()
	l.state, l.control = clone, ctl
	l.mu.Unlock()
}

func (l *liveBoard) view() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return "waiting for the first game..."
	}
	return selfplay.Visualize(l.state, l.control)
}

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

type model struct {
	startTime time.Time
	games     int
	draws     int
	wins      map[string]int
	recent    []string
	moves     int64

	results chan selfplay.GameResult
	live    *liveBoard
	onGame  func()
}

func initialModel(results chan selfplay.GameResult, live *liveBoard, onGame func()) model {
	return model{
		startTime: time.Now(),
		wins:      map[string]int{},
		results:   results,
		live:      live,
		onGame:    onGame,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForResult(results chan selfplay.GameResult) tea.Cmd {
	return func() tea.Msg {
		return <-results
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForResult(m.results), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.moves = totalMoves.Load()
		return m, tickCmd()
	case selfplay.GameResult:
		m.games++
		if msg.WinnerKind == "" {
			m.draws++
		} else {
			m.wins[msg.WinnerKind]++
		}
		line := fmt.Sprintf("%s  winner=%-10s turns=%-4d %s",
			time.Now().Format("15:04:05"), orDash(msg.Winner), msg.Turns, msg.Duration.Round(time.Millisecond))
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > 8 {
			m.recent = m.recent[:8]
		}
		if m.onGame != nil {
			m.onGame()
		}
		return m, waitForResult(m.results)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerMin := float64(0)
	movesPerSec := float64(0)
	if duration.Seconds() >= 1 {
		gamesPerMin = float64(m.games) / duration.Minutes()
		movesPerSec = float64(m.moves) / duration.Seconds()
	}

	s := titleStyle.Render("mamba arena") + "\n\n"
	s += m.live.view() + "\n\n"
	s += fmt.Sprintf("games %d  draws %d  games/min %.1f  moves/s %.0f  up %s\n",
		m.games, m.draws, gamesPerMin, movesPerSec, duration.Round(time.Second))
	s += winSummary(m.wins, m.games) + "\n\n"

	s += "recent games:\n"
	for _, line := range m.recent {
		s += "  " + line + "\n"
	}
	s += "\npress q to quit\n"
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func winSummary(wins map[string]int, games int) string {
	if games == 0 {
		return "no finished games yet"
	}
	kinds := make([]string, 0, len(wins))
	for k := range wins {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d (%.0f%%)", k, wins[k], float64(wins[k])*100/float64(games)))
	}
	return "wins: " + strings.Join(parts, "  ")
}

func parseAgents(spec string, budget time.Duration, searchWorkers int) ([]selfplay.Agent, error) {
	agents := make([]selfplay.Agent, 0, 4)
	for _, part := range strings.Split(spec, ",") {
		switch strings.TrimSpace(part) {
		case "mcts":
			agents = append(agents, &selfplay.SearchAgent{Budget: budget, Workers: searchWorkers})
		case "greedy":
			agents = append(agents, selfplay.GreedyAgent{})
		case "":
		default:
			return nil, fmt.Errorf("unknown agent kind %q", part)
		}
	}
	if len(agents) < 2 {
		return nil, fmt.Errorf("need at least two agents, got %d", len(agents))
	}
	return agents, nil
}

func noteGame(maxGames int64, cancel context.CancelFunc) {
	if n := totalGames.Add(1); maxGames > 0 && n >= maxGames {
		cancel()
	}
}

func runHeadless(ctx context.Context, results <-chan selfplay.GameResult, onGame func()) {
	startTime := time.Now()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	wins := map[string]int{}
	draws := 0
	games := 0

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-results:
			games++
			if r.WinnerKind == "" {
				draws++
			} else {
				wins[r.WinnerKind]++
			}
			onGame()
			klog.V(1).Infof("game %s: winner=%s turns=%d duration=%s",
				r.GameID, orDash(r.Winner), r.Turns, r.Duration.Round(time.Millisecond))
		case <-ticker.C:
			duration := time.Since(startTime)
			klog.Infof("games=%d draws=%d %s moves/s=%.1f",
				games, draws, winSummary(wins, games), float64(totalMoves.Load())/duration.Seconds())
		}
	}
}

func main() {
	klog.InitFlags(nil)
	outDir := flag.String("out-dir", "data/selfplay", "Directory for archived game batches")
	workers := flag.Int("workers", 4, "Concurrent games")
	gamesPerFlush := flag.Int("games-per-flush", 50, "Games buffered per parquet batch")
	maxGames := flag.Int64("max-games", 0, "Stop after this many games (0 = run until interrupted)")
	budget := flag.Duration("budget", 50*time.Millisecond, "Per-move search budget for mcts agents")
	searchWorkers := flag.Int("search-workers", 2, "Goroutines per mcts agent's search")
	boardSize := flag.Int("board", 11, "Board width and height")
	maxTurns := flag.Int("max-turns", 500, "Turn cap per game; hitting it is a draw")
	agentSpec := flag.String("agents", "mcts,greedy,greedy,greedy", "Comma-separated agent kinds (mcts, greedy)")
	headless := flag.Bool("headless", false, "Log win rates instead of running the TUI")
	flag.Parse()

	agents, err := parseAgents(*agentSpec, *budget, *searchWorkers)
	if err != nil {
		klog.Fatalf("bad -agents: %v", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	writer := archive.NewBatchWriter(*outDir, *gamesPerFlush)
	live := &liveBoard{}
	results := make(chan selfplay.GameResult, *workers)

	klog.Infof("starting %d workers: agents=%s board=%dx%d budget=%s out=%s",
		*workers, *agentSpec, *boardSize, *boardSize, *budget, *outDir)

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			cfg := selfplay.Config{
				Agents:      agents,
				BoardWidth:  int32(*boardSize),
				BoardHeight: int32(*boardSize),
				MaxTurns:    int32(*maxTurns),
				Seed:        time.Now().UnixNano() + int64(workerID),
				Source:      "selfplay",
				Archive:     writer,
				OnStep:      func() { totalMoves.Add(1) },
			}
			if workerID == 0 {
				cfg.OnTurn = live.set
			}
			selfplay.Worker(ctx, cfg, results)
		}(i)
	}

	onGame := func() { noteGame(*maxGames, cancel) }
	if *headless {
		runHeadless(ctx, results, onGame)
	} else {
		p := tea.NewProgram(initialModel(results, live, onGame), tea.WithAltScreen())
		go func() {
			<-ctx.Done()
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			klog.Errorf("tui failed: %v", err)
		}
	}

	klog.Infof("shutdown requested; draining workers")
	cancel()
	wg.Wait()
	if _, err := writer.Close(); err != nil {
		klog.Errorf("final archive flush failed: %v", err)
	}
	batches, rows, games := writer.Totals()
	klog.Infof("shutdown complete: %d games archived in %d batches (%d rows)", games, batches, rows)
}
