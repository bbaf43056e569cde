package selfplay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/game"
)

// RenderBoard draws the position with column letters and 1-based row numbers.
// Black is X and White is O; the stone at last is drawn in lower case.
func RenderBoard(state *game.State, last game.Move) string {
	var sb strings.Builder
	sb.WriteString("   ")
	for col := 0; col < game.Dimension; col++ {
		sb.WriteString(fmt.Sprintf(" %c", 'A'+col))
	}
	sb.WriteString("\n")

	for row := 0; row < game.Dimension; row++ {
		sb.WriteString(fmt.Sprintf("%3d", row+1))
		for col := 0; col < game.Dimension; col++ {
			ch := "."
			switch state.At(row, col) {
			case game.Black:
				ch = "X"
			case game.White:
				ch = "O"
			}
			if last.Row == row && last.Col == col {
				ch = strings.ToLower(ch)
			}
			sb.WriteString(" " + ch)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderStats lists the top most visited root children.
func RenderStats(stats mcts.RootStats, top int) string {
	children := append([]mcts.ChildStats(nil), stats.Children...)
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Visits > children[j].Visits
	})
	if top > 0 && len(children) > top {
		children = children[:top]
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ply %d  visits %d  value %+.3f\n", stats.Ply, stats.Visits, stats.Value))
	for _, c := range children {
		sb.WriteString(fmt.Sprintf("  %-4s n=%-5d q=%+.3f p=%.4f\n", c.Move, c.Visits, c.Value, c.Prior))
	}
	return sb.String()
}
