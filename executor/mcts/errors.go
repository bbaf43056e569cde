package mcts

import (
	"errors"
	"fmt"
)

var (
	// ErrTreeConsistency means the tree and the committed position disagree.
	// It indicates a bug, not bad input, and should not be retried.
	ErrTreeConsistency = errors.New("search tree out of sync with game state")

	// ErrGameOver is returned by RunSimulations and Commit once the committed
	// position is terminal. Call Restart to begin a new game.
	ErrGameOver = errors.New("game is over")
)

// OracleError reports a failed or malformed oracle evaluation. Statistics from
// simulations that completed before the failure remain valid.
type OracleError struct {
	Ply int
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle evaluation at ply %d: %v", e.Ply, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}
