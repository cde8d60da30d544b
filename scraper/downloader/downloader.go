// Package downloader pulls finished games off the public engine's
// websocket event feed and converts them into archive rows.
package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/brensch/mamba/archive"
	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/heuristic"
	"github.com/brensch/mamba/rules"
)

// Config holds download configuration.
type Config struct {
	// EngineURL is a format string taking the game id.
	EngineURL      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// FrameLog, when non-nil, receives every raw frame event. Wired to the
	// pretty-JSON slog handler at high verbosity.
	FrameLog *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		EngineURL:      "wss://engine.battlesnake.com/games/%s/events",
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
	}
}

// GameEvent is one message on the event stream.
type GameEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// FrameData is one turn as the engine serialized it: x/y coordinates with
// y growing upward, origin bottom-left.
type FrameData struct {
	Turn    int         `json:"turn"`
	Snakes  []SnakeData `json:"snakes"`
	Food    []Coord     `json:"food"`
	Hazards []Coord     `json:"hazards"`
	Board   BoardData   `json:"board,omitempty"`
}

type SnakeData struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Health int     `json:"health"`
	Body   []Coord `json:"body"`
	Death  *Death  `json:"death,omitempty"`
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BoardData carries dimensions and, on some feeds, the hazard list.
type BoardData struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Hazards []Coord `json:"hazards,omitempty"`
}

type Death struct {
	Cause string `json:"cause"`
	Turn  int    `json:"turn"`
}

// DownloadGame reads a game's full event stream and returns its frames
// sorted by turn. A partial game is kept when the server hangs up after
// at least one frame arrived.
func DownloadGame(ctx context.Context, gameID string, cfg Config) ([]FrameData, error) {
	url := fmt.Sprintf(cfg.EngineURL, gameID)
	dialer := websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", url)
	}
	defer conn.Close()

	var frames []FrameData
	done := false
	for !done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			if len(frames) > 0 {
				break
			}
			return nil, errors.Wrap(err, "reading event")
		}

		var event GameEvent
		if err := json.Unmarshal(message, &event); err != nil {
			klog.Warningf("game %s: unparseable event: %v", gameID, err)
			continue
		}

		switch event.Type {
		case "frame":
			var frame FrameData
			if err := json.Unmarshal(event.Data, &frame); err != nil {
				klog.Warningf("game %s: bad frame: %v", gameID, err)
				continue
			}
			if cfg.FrameLog != nil {
				cfg.FrameLog.Info("frame", "game", gameID, "turn", frame.Turn, "event", event.Data)
			}
			frames = append(frames, frame)
		case "game_end":
			done = true
		}
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].Turn < frames[j].Turn })
	return frames, nil
}

// BuildRows converts a frame sequence into archive rows, one per snake per
// turn. Each snake's move is inferred from its head cells on consecutive
// frames, control is evaluated on every reconstructed position, and the
// winner's rows are flagged from the final frame.
func BuildRows(gameID string, frames []FrameData) []archive.TurnRow {
	if len(frames) == 0 {
		return nil
	}
	width, height := boardSize(frames)

	// snake index is fixed by first appearance so rows line up across turns
	order := make(map[string]int)
	ids := []string{}
	for i := range frames {
		for _, s := range frames[i].Snakes {
			if _, ok := order[s.ID]; !ok {
				order[s.ID] = len(ids)
				ids = append(ids, s.ID)
			}
		}
	}

	states := make([]*game.GameState, len(frames))
	for i := range frames {
		states[i] = frameState(&frames[i], width, height, order, ids)
	}

	var rows []archive.TurnRow
	for i, st := range states {
		turnRows := archive.SnapshotTurn(gameID, "scraped", st)
		shares := heuristic.ControlPercentages(st)
		for j := range turnRows {
			idx := int(turnRows[j].SnakeIdx)
			if idx < len(shares) {
				turnRows[j].ControlPct = shares[idx]
			}
			if i+1 < len(states) {
				turnRows[j].Move = inferMove(st, states[i+1], idx, width)
			}
		}
		rows = append(rows, turnRows...)
	}

	if winner := winnerID(&frames[len(frames)-1]); winner != "" {
		for i := range rows {
			if rows[i].SnakeID == winner {
				rows[i].Winner = true
			}
		}
	}
	return rows
}

// frameState rebuilds the simulator state for one frame, flipping wire
// coordinates into top-origin cell indices. Snakes absent from the frame
// keep their roster slot as dead placeholders.
func frameState(f *FrameData, width, height int32, order map[string]int, ids []string) *game.GameState {
	st := &game.GameState{
		Width:  width,
		Height: height,
		Turn:   int32(f.Turn),
	}

	for _, c := range f.Food {
		if cell := cellOrOff(c, width, height); cell != game.OffBoard {
			st.AddFood(cell)
		}
	}
	// some feeds put hazards on the frame, some under board
	hazards := f.Hazards
	if len(hazards) == 0 {
		hazards = f.Board.Hazards
	}
	for _, c := range hazards {
		if cell := cellOrOff(c, width, height); cell != game.OffBoard {
			st.AddHazard(cell)
		}
	}

	bySlot := make([]*SnakeData, len(ids))
	for i := range f.Snakes {
		if slot, ok := order[f.Snakes[i].ID]; ok {
			bySlot[slot] = &f.Snakes[i]
		}
	}
	for slot, s := range bySlot {
		if s == nil {
			st.AddSnake(ids[slot], 0, nil)
			continue
		}
		health := int32(s.Health)
		if s.Death != nil {
			health = 0
		}
		body := make([]int32, 0, len(s.Body))
		for _, c := range s.Body {
			body = append(body, cellOrOff(c, width, height))
		}
		st.AddSnake(s.ID, health, body)
	}
	return st
}

func cellOrOff(c Coord, width, height int32) int32 {
	x, y := int32(c.X), int32(c.Y)
	if x < 0 || x >= width || y < 0 || y >= height {
		return game.OffBoard
	}
	return (height-1-y)*width + x
}

// boardSize prefers the dimensions on the wire; old feeds omit them, in
// which case the largest coordinate seen has to stand in.
func boardSize(frames []FrameData) (int32, int32) {
	for i := range frames {
		if frames[i].Board.Width > 0 && frames[i].Board.Height > 0 {
			return int32(frames[i].Board.Width), int32(frames[i].Board.Height)
		}
	}
	maxX, maxY := 0, 0
	note := func(cs []Coord) {
		for _, c := range cs {
			if c.X > maxX {
				maxX = c.X
			}
			if c.Y > maxY {
				maxY = c.Y
			}
		}
	}
	for i := range frames {
		note(frames[i].Food)
		note(frames[i].Hazards)
		for _, s := range frames[i].Snakes {
			note(s.Body)
		}
	}
	return int32(maxX + 1), int32(maxY + 1)
}

// inferMove reads the move a snake made leaving turn cur from where its
// head landed on the next turn. Unknowable for snakes that died on the
// way: their final head cell is not on the next frame.
func inferMove(cur, next *game.GameState, idx int, width int32) int32 {
	if idx >= len(cur.Snakes) || idx >= len(next.Snakes) {
		return archive.MoveUnknown
	}
	a, b := &cur.Snakes[idx], &next.Snakes[idx]
	if !a.Alive() || !b.Alive() || a.Head() == game.OffBoard || b.Head() == game.OffBoard {
		return archive.MoveUnknown
	}
	switch b.Head() - a.Head() {
	case -width:
		return int32(rules.MoveUp)
	case width:
		return int32(rules.MoveDown)
	case -1:
		return int32(rules.MoveLeft)
	case 1:
		return int32(rules.MoveRight)
	}
	return archive.MoveUnknown
}

func winnerID(last *FrameData) string {
	winner := ""
	alive := 0
	for i := range last.Snakes {
		s := &last.Snakes[i]
		if s.Death == nil && s.Health > 0 && len(s.Body) > 0 {
			alive++
			winner = s.ID
		}
	}
	if alive == 1 {
		return winner
	}
	return ""
}
