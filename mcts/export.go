package mcts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/brensch/mamba/game"
)

// ExportNode is the JSON shape consumed by the offline tree viewer.
type ExportNode struct {
	Id          string        `json:"id"`
	Move        string        `json:"move"`
	Player      int           `json:"player"`
	Visits      int32         `json:"visits"`
	Scores      []float32     `json:"scores"`
	Ucb         float32       `json:"ucb"`
	MostVisited bool          `json:"most_visited"`
	Board       string        `json:"board"`
	Children    []*ExportNode `json:"children,omitempty"`
}

// ExportTree writes the finished tree to dir as indented JSON and
// returns the file path. maxNodes caps the dump to roughly the most
// visited nodes; zero keeps everything. Call only after Run has
// returned.
func (m *MCTS) ExportTree(dir string, maxNodes int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating export dir")
	}

	// Keeping every node at or above the visit count of the maxNodes-th
	// most visited node keeps the exported subgraph connected, since a
	// parent is visited at least as often as any child.
	minVisits := int32(0)
	if maxNodes > 0 {
		visits := collectVisits(m.root, nil)
		if len(visits) > maxNodes {
			sort.Slice(visits, func(i, j int) bool { return visits[i] > visits[j] })
			minVisits = visits[maxNodes-1]
		}
	}

	payload, err := json.MarshalIndent(m.exportNode(m.root, minVisits, true), "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encoding tree")
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s.json", time.Now().UnixMilli(), uuid.NewString()))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", errors.Wrap(err, "writing tree")
	}
	return path, nil
}

func collectVisits(n *Node, visits []int32) []int32 {
	visits = append(visits, n.Visits())
	for _, c := range n.Children() {
		visits = collectVisits(c, visits)
	}
	return visits
}

// exportNode renders one node and its surviving children. onPath marks
// the chain of most-visited children down from the root so the viewer
// can highlight the principal line.
func (m *MCTS) exportNode(n *Node, minVisits int32, onPath bool) *ExportNode {
	out := &ExportNode{
		Id:          uuid.NewString(),
		Move:        edgeLabel(n),
		Player:      n.Player,
		Visits:      n.Visits(),
		Scores:      n.Scores(),
		Ucb:         m.ucb(n),
		MostVisited: onPath,
		Board:       game.RenderBoard(n.State),
	}

	children := n.Children()
	var favourite *Node
	bestVisits := int32(-1)
	for _, c := range children {
		if v := c.Visits(); v > bestVisits {
			favourite, bestVisits = c, v
		}
	}
	for _, c := range children {
		if c.Visits() < minVisits {
			continue
		}
		out.Children = append(out.Children, m.exportNode(c, minVisits, onPath && c == favourite))
	}
	return out
}

func edgeLabel(n *Node) string {
	if n.parent == nil {
		return ""
	}
	if n.NoMove {
		return "none"
	}
	return n.Move.String()
}

// ucb recomputes the selection score the node last competed with. Zero
// for the root and for unvisited nodes, since JSON has no infinity.
func (m *MCTS) ucb(n *Node) float32 {
	if n.parent == nil {
		return 0
	}
	visits, score := n.snapshot(n.parent.Player)
	if visits == 0 {
		return 0
	}
	parentVisits := n.parent.Visits()
	if parentVisits < 1 {
		parentVisits = 1
	}
	return score/float32(visits) +
		m.Config.Exploration*math32.Sqrt(math32.Log(float32(parentVisits))/float32(visits))
}
