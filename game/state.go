// Package game defines the Gomoku position used by search and self-play.
//
// A State is a 15x15 board plus a ply counter. Stones are placed with Apply and
// removed with Undo in strict stack order, which lets MCTS walk a single scratch
// copy up and down the tree instead of cloning it for every simulation.
package game

import (
	"errors"
	"fmt"
)

const (
	Dimension = 15
	Cells     = Dimension * Dimension

	// PassIndex is the policy slot reserved for the pass move.
	PassIndex  = Cells
	PolicySize = Cells + 1

	// WinLength is the number of contiguous stones that wins the game.
	WinLength = 5
)

// ErrIllegalMove is returned when a stone is placed out of bounds or on an
// occupied cell. The state is never mutated when it is returned.
var ErrIllegalMove = errors.New("illegal move")

type Cell int8

const (
	Empty Cell = iota
	Black
	White
)

func (c Cell) String() string {
	switch c {
	case Black:
		return "Black"
	case White:
		return "White"
	default:
		return "Empty"
	}
}

// Opponent returns the other stone colour. Empty has no opponent.
func (c Cell) Opponent() Cell {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

type Status int

const (
	Ongoing Status = iota
	Win
	Tie
)

func (s Status) String() string {
	switch s {
	case Win:
		return "Win"
	case Tie:
		return "Tie"
	default:
		return "Ongoing"
	}
}

// State is the complete Gomoku position. Black moves on even plies.
type State struct {
	board [Cells]Cell
	ply   int
}

// New returns an empty board with Black to move.
func New() *State {
	return &State{}
}

// Clear resets the board to the starting position.
func (s *State) Clear() {
	s.board = [Cells]Cell{}
	s.ply = 0
}

// Clone returns an independent copy of the position.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func (s *State) Ply() int {
	return s.ply
}

// ToMove returns the colour of the side to move.
func (s *State) ToMove() Cell {
	if s.ply%2 == 0 {
		return Black
	}
	return White
}

func InBounds(row, col int) bool {
	return row >= 0 && row < Dimension && col >= 0 && col < Dimension
}

// At returns the content of a cell. Out of bounds cells read as Empty.
func (s *State) At(row, col int) Cell {
	if !InBounds(row, col) {
		return Empty
	}
	return s.board[row*Dimension+col]
}

func (s *State) IsLegal(row, col int) bool {
	return InBounds(row, col) && s.board[row*Dimension+col] == Empty
}

// Full reports whether every cell is occupied.
func (s *State) Full() bool {
	for _, c := range s.board {
		if c == Empty {
			return false
		}
	}
	return true
}

// LegalMoves lists every empty cell in row-major order.
func (s *State) LegalMoves() []Move {
	moves := make([]Move, 0, Cells)
	for i, c := range s.board {
		if c == Empty {
			moves = append(moves, MoveFromIndex(i))
		}
	}
	return moves
}

// Apply places the mover's stone at (row, col) and reports the resulting status.
func (s *State) Apply(row, col int) (Status, error) {
	if !s.IsLegal(row, col) {
		return Ongoing, fmt.Errorf("%w: (%d,%d)", ErrIllegalMove, row, col)
	}

	s.board[row*Dimension+col] = s.ToMove()
	s.ply++

	if s.completesLine(row, col) {
		return Win, nil
	}
	if s.ply >= Cells && s.Full() {
		return Tie, nil
	}
	return Ongoing, nil
}

// Undo clears (row, col) and steps the ply counter back. Callers must undo in
// the exact reverse order of Apply; nothing is validated.
func (s *State) Undo(row, col int) {
	s.board[row*Dimension+col] = Empty
	s.ply--
}

// Pass hands the turn to the opponent without placing a stone. It only exists
// for the search, where the pass slot can be explored like any other move.
func (s *State) Pass() {
	s.ply++
}

// UndoPass reverts Pass.
func (s *State) UndoPass() {
	s.ply--
}

// Play applies any move including pass.
func (s *State) Play(m Move) (Status, error) {
	if m.IsPass() {
		s.Pass()
		return Ongoing, nil
	}
	return s.Apply(m.Row, m.Col)
}

// Unplay reverts Play.
func (s *State) Unplay(m Move) {
	if m.IsPass() {
		s.UndoPass()
		return
	}
	s.Undo(m.Row, m.Col)
}

var axes = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// completesLine scans the four axes through (row, col) for a run of five.
func (s *State) completesLine(row, col int) bool {
	colour := s.board[row*Dimension+col]
	for _, axis := range axes {
		count := 0
		for _, sign := range [2]int{1, -1} {
			for step := 1; step < WinLength; step++ {
				r := row + sign*axis[0]*step
				c := col + sign*axis[1]*step
				if !InBounds(r, c) || s.board[r*Dimension+c] != colour {
					break
				}
				count++
			}
		}
		if count >= WinLength-1 {
			return true
		}
	}
	return false
}

// Board returns a copy of the cells in row-major order.
func (s *State) Board() [Cells]Cell {
	return s.board
}
