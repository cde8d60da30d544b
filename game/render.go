package game

import (
	"fmt"
	"strings"
)

// RenderBoard draws the state as an ASCII grid, row 0 first. Heads are the
// snake's index digit, bodies the matching letter ('a' for snake 0), food
// 'F', hazards '!', empty cells '.'. Dead snakes are drawn too; their
// bodies still block nothing but the picture should show what the state
// holds. Intended for logs, test failures, and the tree exporter.
func RenderBoard(s *GameState) string {
	if s == nil {
		return "<nil state>"
	}

	total := int(s.Cells())
	if total <= 0 {
		return "<empty board>"
	}

	grid := make([]byte, total)
	for i := range grid {
		grid[i] = '.'
	}
	for _, h := range s.Hazards {
		if s.InBounds(h) {
			grid[h] = '!'
		}
	}
	for _, f := range s.Food {
		if s.InBounds(f) {
			grid[f] = 'F'
		}
	}
	for i := range s.Snakes {
		body := s.Snakes[i].Body
		for bi := len(body) - 1; bi >= 1; bi-- {
			if s.InBounds(body[bi]) {
				grid[body[bi]] = bodyRune(i)
			}
		}
		if len(body) > 0 && s.InBounds(body[0]) {
			grid[body[0]] = headRune(i)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "turn %d %dx%d\n", s.Turn, s.Width, s.Height)
	for row := int32(0); row < s.Height; row++ {
		b.Write(grid[row*s.Width : (row+1)*s.Width])
		b.WriteByte('\n')
	}
	for i := range s.Snakes {
		sn := &s.Snakes[i]
		status := "alive"
		if !sn.Alive() {
			status = "dead"
		}
		fmt.Fprintf(&b, "snake %d %q health=%d len=%d head=%d %s\n",
			i, sn.Id, sn.Health, len(sn.Body), sn.Head(), status)
	}
	return b.String()
}

func headRune(idx int) byte {
	if idx < 10 {
		return byte('0' + idx)
	}
	return '#'
}

func bodyRune(idx int) byte {
	if idx < 26 {
		return byte('a' + idx)
	}
	return '#'
}
