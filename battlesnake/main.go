// Package main implements the Battlesnake API server.
//
// Each /move request is converted to the internal board representation,
// searched with MCTS until just before the engine's deadline, and answered
// with the most visited root move. The engine's coordinates put y=0 at the
// bottom; internally row 0 is the top, so conversion flips the y axis.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/mcts"
	"github.com/brensch/mamba/rules"
)

// Battlesnake API request/response types

type BattlesnakeInfoResponse struct {
	APIVersion string `json:"apiversion"`
	Author     string `json:"author"`
	Color      string `json:"color"`
	Head       string `json:"head"`
	Tail       string `json:"tail"`
	Version    string `json:"version"`
}

type GameRequest struct {
	Game  Game        `json:"game"`
	Turn  int         `json:"turn"`
	Board Board       `json:"board"`
	You   Battlesnake `json:"you"`
}

type Game struct {
	ID      string  `json:"id"`
	Ruleset Ruleset `json:"ruleset"`
	Map     string  `json:"map"`
	Timeout int     `json:"timeout"`
	Source  string  `json:"source"`
}

type Ruleset struct {
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	Settings RulesetSettings `json:"settings"`
}

type RulesetSettings struct {
	FoodSpawnChance     int `json:"foodSpawnChance"`
	MinimumFood         int `json:"minimumFood"`
	HazardDamagePerTurn int `json:"hazardDamagePerTurn"`
}

type Board struct {
	Height  int           `json:"height"`
	Width   int           `json:"width"`
	Food    []Coord       `json:"food"`
	Hazards []Coord       `json:"hazards"`
	Snakes  []Battlesnake `json:"snakes"`
}

type Battlesnake struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Health  int     `json:"health"`
	Body    []Coord `json:"body"`
	Latency string  `json:"latency"`
	Head    Coord   `json:"head"`
	Length  int     `json:"length"`
	Shout   string  `json:"shout"`
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type MoveResponse struct {
	Move  string `json:"move"`
	Shout string `json:"shout,omitempty"`
}

// Server answers the four Battlesnake endpoints. It keeps no per-game
// state; every move request carries the full board.
type Server struct {
	workers        int
	moveTimeout    time.Duration
	responseBuffer time.Duration
	exportDir      string
	exportNodes    int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	response := BattlesnakeInfoResponse{
		APIVersion: "1",
		Author:     "brensch",
		Color:      "#3f826d",
		Head:       "default",
		Tail:       "default",
		Version:    "1.0.0",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req GameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	klog.Infof("game %s started: %dx%d board, %d snakes, timeout %dms",
		req.Game.ID, req.Board.Width, req.Board.Height, len(req.Board.Snakes), req.Game.Timeout)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	received := time.Now()

	var req GameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state := convertRequest(&req)
	budget := moveBudget(req.Game.Timeout, s.responseBuffer, s.moveTimeout)

	search := mcts.New(state, mcts.Config{Workers: s.workers})
	search.Run(received.Add(budget))

	moveStr := "up"
	move, ok := search.BestMove(req.You.ID)
	switch {
	case ok:
		moveStr = move.String()
	default:
		// the tree had nothing usable; any legal move beats a wall
		if safe := rules.SafeMoves(state, 0); len(safe) > 0 {
			moveStr = safe[0].String()
		}
	}

	response := MoveResponse{
		Move:  moveStr,
		Shout: fmt.Sprintf("%d iterations", search.Iterations()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	klog.Infof("game %s turn %d: move=%s fallback=%v iterations=%d elapsed=%s",
		req.Game.ID, req.Turn, moveStr, !ok, search.Iterations(), time.Since(received).Round(time.Millisecond))

	// after the response is on the wire, so the dump never eats budget
	if s.exportDir != "" {
		path, err := search.ExportTree(s.exportDir, s.exportNodes)
		if err != nil {
			klog.Errorf("tree export failed: %v", err)
		} else {
			klog.V(1).Infof("exported search tree to %s", path)
		}
	}
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req GameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	youAlive := false
	for _, snake := range req.Board.Snakes {
		if snake.ID == req.You.ID {
			youAlive = true
			break
		}
	}

	result := "lost"
	if youAlive {
		result = "won"
	} else if len(req.Board.Snakes) == 0 {
		result = "draw"
	}

	klog.Infof("game %s ended on turn %d: %s", req.Game.ID, req.Turn, result)
	w.WriteHeader(http.StatusOK)
}

// moveBudget returns how long the search may run. The request's timeout
// wins when present, the buffer covers encoding and network overhead, and
// the floor keeps the search alive even when the engine leaves almost
// nothing.
func moveBudget(timeoutMs int, buffer, fallback time.Duration) time.Duration {
	budget := fallback
	if timeoutMs > 0 {
		budget = time.Duration(timeoutMs) * time.Millisecond
	}
	budget -= buffer
	if budget < 50*time.Millisecond {
		budget = 50 * time.Millisecond
	}
	return budget
}

// convertRequest builds the internal state from an API request. The
// requesting snake always lands at index zero, which is where the search
// makes its decision.
func convertRequest(req *GameRequest) *game.GameState {
	state := &game.GameState{
		Width:  int32(req.Board.Width),
		Height: int32(req.Board.Height),
		Turn:   int32(req.Turn),
	}

	for _, f := range req.Board.Food {
		state.AddFood(coordCell(&req.Board, f))
	}
	for _, h := range req.Board.Hazards {
		state.AddHazard(coordCell(&req.Board, h))
	}

	for _, s := range orderedSnakes(&req.Board, req.You.ID) {
		body := make([]int32, len(s.Body))
		for j, c := range s.Body {
			body[j] = coordCell(&req.Board, c)
		}
		state.AddSnake(s.ID, int32(s.Health), body)
	}

	return state
}

// coordCell maps an API coordinate, y counted up from the bottom, to a
// cell index with row zero at the top.
func coordCell(b *Board, c Coord) int32 {
	row := int32(b.Height - 1 - c.Y)
	return row*int32(b.Width) + int32(c.X)
}

// orderedSnakes returns the board's snakes with the requesting snake
// first and everyone else in board order.
func orderedSnakes(b *Board, youId string) []Battlesnake {
	out := make([]Battlesnake, 0, len(b.Snakes))
	for _, s := range b.Snakes {
		if s.ID == youId {
			out = append(out, s)
		}
	}
	for _, s := range b.Snakes {
		if s.ID != youId {
			out = append(out, s)
		}
	}
	return out
}

func main() {
	klog.InitFlags(nil)
	listen := flag.String("listen", ":8080", "HTTP listen address")
	workers := flag.Int("workers", 0, "Search goroutines per move (0 = one per CPU)")
	moveTimeout := flag.Duration("move-timeout", 500*time.Millisecond, "Move budget when the request does not carry a timeout")
	responseBuffer := flag.Duration("response-buffer", 200*time.Millisecond, "Slice of the budget reserved for encoding and network overhead")
	exportDir := flag.String("export-trees", "", "Directory to dump a search tree per move (empty disables)")
	exportNodes := flag.Int("export-nodes", 2000, "Node cap per exported tree (0 = unlimited)")
	flag.Parse()

	server := &Server{
		workers:        *workers,
		moveTimeout:    *moveTimeout,
		responseBuffer: *responseBuffer,
		exportDir:      *exportDir,
		exportNodes:    *exportNodes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", server.handleIndex)
	mux.HandleFunc("/start", server.handleStart)
	mux.HandleFunc("/move", server.handleMove)
	mux.HandleFunc("/end", server.handleEnd)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	klog.Infof("battlesnake server listening on %s", *listen)
	klog.Fatal(srv.ListenAndServe())
}
