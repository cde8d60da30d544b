package selfplay

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/mamba/game"
	"github.com/brensch/mamba/heuristic"
)

var (
	agentColors = [4]lipgloss.Color{"10", "12", "11", "13"}
	agentTints  = [4]lipgloss.Color{"22", "17", "58", "53"}

	headStyles [4]lipgloss.Style
	bodyStyles [4]lipgloss.Style
	tintStyles [4]lipgloss.Style

	deadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	foodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	hazardStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	boardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func init() {
	for i := range agentColors {
		headStyles[i] = lipgloss.NewStyle().Foreground(agentColors[i]).Bold(true)
		bodyStyles[i] = lipgloss.NewStyle().Foreground(agentColors[i])
		tintStyles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(agentTints[i])
	}
}

// Visualize renders a live board for the TUI: snakes in their agent
// color, empty cells tinted by whoever is projected to reach them first,
// and a per-snake sidebar. control comes from heuristic.SnakeControl on
// the same state.
func Visualize(state *game.GameState, control []int8) string {
	cells := make([]string, state.Cells())
	for c := range cells {
		glyph := emptyStyle.Render("·")
		if int(state.Cells()) == len(control) && control[c] != heuristic.Unclaimed {
			idx := int(control[c]) % len(tintStyles)
			glyph = tintStyles[idx].Render("·")
		}
		cells[c] = glyph
	}

	for _, f := range state.Food {
		if state.InBounds(f) {
			cells[f] = foodStyle.Render("F")
		}
	}
	for _, h := range state.Hazards {
		if state.InBounds(h) {
			cells[h] = hazardStyle.Render("!")
		}
	}

	for i := range state.Snakes {
		s := &state.Snakes[i]
		head := headStyles[i%len(headStyles)]
		body := bodyStyles[i%len(bodyStyles)]
		if !s.Alive() {
			head, body = deadStyle, deadStyle
		}
		for bi := len(s.Body) - 1; bi >= 0; bi-- {
			cell := s.Body[bi]
			if !state.InBounds(cell) {
				continue
			}
			if bi == 0 {
				cells[cell] = head.Render(string(rune('0' + i)))
			} else {
				cells[cell] = body.Render(string(rune('a' + i)))
			}
		}
	}

	var board strings.Builder
	for row := int32(0); row < state.Height; row++ {
		if row > 0 {
			board.WriteByte('\n')
		}
		for col := int32(0); col < state.Width; col++ {
			if col > 0 {
				board.WriteByte(' ')
			}
			board.WriteString(cells[state.Cell(row, col)])
		}
	}

	shares := controlShares(control, len(state.Snakes), state.Cells())
	var side strings.Builder
	fmt.Fprintf(&side, "turn %d\n\n", state.Turn)
	for i := range state.Snakes {
		s := &state.Snakes[i]
		style := bodyStyles[i%len(bodyStyles)]
		status := fmt.Sprintf("hp=%3d len=%2d control=%3.0f%%", s.Health, len(s.Body), shares[i]*100)
		if !s.Alive() {
			style = deadStyle
			status = "dead"
		}
		fmt.Fprintf(&side, "%s %-10s %s\n", style.Render("■"), s.Id, status)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, boardStyle.Render(board.String()), "  ", side.String())
}
