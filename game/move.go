package game

import "fmt"

// Move is a board coordinate. Pass is encoded as (-1, -1).
type Move struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

var Pass = Move{Row: -1, Col: -1}

func (m Move) IsPass() bool {
	return m.Row == Pass.Row && m.Col == Pass.Col
}

// Index maps the move onto its policy slot.
func (m Move) Index() int {
	if m.IsPass() {
		return PassIndex
	}
	return m.Row*Dimension + m.Col
}

// MoveFromIndex is the inverse of Index.
func MoveFromIndex(idx int) Move {
	if idx == PassIndex {
		return Pass
	}
	return Move{Row: idx / Dimension, Col: idx % Dimension}
}

// String renders the move with a column letter and a 1-based row, e.g. "H8".
func (m Move) String() string {
	if m.IsPass() {
		return "pass"
	}
	if !InBounds(m.Row, m.Col) {
		return fmt.Sprintf("(%d,%d)", m.Row, m.Col)
	}
	return fmt.Sprintf("%c%d", 'A'+m.Col, m.Row+1)
}
