package selfplay

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/game"
	"github.com/brensch/gomokuzero/store"
)

type GameResult struct {
	GameID string
	Status game.Status
	// Winner is game.Empty for a tie.
	Winner      game.Cell
	Plies       int
	Simulations int64
	OracleCalls int64
	Duration    time.Duration
}

type Options struct {
	GameID      string
	Simulations int
	// SampleMoves opening plies are sampled from the visit distribution
	// sharpened by Temperature. Later plies play the most visited move.
	SampleMoves int
	Temperature float64
	Source      string
	ModelPath   string
	Rand        *rand.Rand
	// OnMove is called after every committed move.
	OnMove func(state *game.State, move game.Move, stats mcts.RootStats)
}

// PlayGame plays one game against itself on tree, starting from an empty
// board, and returns one record per ply. The context is checked between
// search batches; a cancelled game returns no records.
func PlayGame(ctx context.Context, tree *mcts.Tree, opts Options) ([]store.MoveRecord, GameResult, error) {
	if opts.Simulations <= 0 {
		return nil, GameResult{}, fmt.Errorf("simulations must be positive, got %d", opts.Simulations)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	gameID := opts.GameID
	if gameID == "" {
		gameID = fmt.Sprintf("selfplay_%d", time.Now().UnixNano())
	}

	start := time.Now()
	result := GameResult{GameID: gameID}

	if err := tree.Restart(); err != nil {
		return nil, result, fmt.Errorf("restart: %w", err)
	}

	rows := make([]store.MoveRecord, 0, 64)
	for {
		select {
		case <-ctx.Done():
			return nil, result, ctx.Err()
		default:
		}

		state := tree.Position()
		if err := tree.RunSimulations(opts.Simulations); err != nil {
			return nil, result, fmt.Errorf("search at ply %d: %w", state.Ply(), err)
		}
		m := tree.LastMetrics()
		result.Simulations += m.Simulations
		result.OracleCalls += m.OracleCalls

		stats := tree.RootStats()
		dist := tree.VisitDistribution()
		move := chooseMove(state, dist, opts, rng)

		rows = append(rows, store.MoveRecord{
			GameID:      gameID,
			Ply:         int32(state.Ply()),
			Player:      int32(state.ToMove()),
			Row:         int32(move.Row),
			Col:         int32(move.Col),
			Board:       store.BoardBytes(state),
			Policy:      dist,
			Visits:      int32(stats.Visits),
			RootValue:   float32(stats.Value),
			Simulations: int32(opts.Simulations),
			Source:      opts.Source,
			ModelPath:   opts.ModelPath,
		})

		status, err := tree.Commit(move.Row, move.Col)
		if err != nil {
			return nil, result, fmt.Errorf("commit %s at ply %d: %w", move, state.Ply(), err)
		}
		if opts.OnMove != nil {
			opts.OnMove(tree.Position(), move, stats)
		}
		if status == game.Ongoing {
			continue
		}

		result.Status = status
		result.Plies = len(rows)
		result.Duration = time.Since(start)
		if status == game.Win {
			result.Winner = state.ToMove()
		}
		assignOutcomes(rows, result.Winner)
		return rows, result, nil
	}
}

func assignOutcomes(rows []store.MoveRecord, winner game.Cell) {
	for i := range rows {
		switch {
		case winner == game.Empty:
			rows[i].Outcome = 0
		case rows[i].Player == int32(winner):
			rows[i].Outcome = 1
		default:
			rows[i].Outcome = -1
		}
		rows[i].Winner = int32(winner)
	}
}

// chooseMove picks a board move from the root visit distribution. Pass is
// never played in self-play so every game ends within game.Cells plies.
func chooseMove(state *game.State, dist []float32, opts Options, rng *rand.Rand) game.Move {
	board := dist[:game.Cells]

	var idx int
	if state.Ply() < opts.SampleMoves {
		idx = sampleMove(rng, temperatureWeights(board, opts.Temperature))
	} else {
		idx = argmax(board)
	}
	if idx >= 0 && board[idx] > 0 {
		return game.MoveFromIndex(idx)
	}

	// Only pass was explored.
	legal := state.LegalMoves()
	return legal[rng.Intn(len(legal))]
}

func temperatureWeights(dist []float32, temperature float64) []float32 {
	if temperature <= 0 {
		temperature = 1
	}
	out := make([]float32, len(dist))
	sum := float32(0)
	for i, p := range dist {
		if p <= 0 {
			continue
		}
		out[i] = float32(math.Pow(float64(p), 1/temperature))
		sum += out[i]
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

// sampleMove returns an index drawn from probs, or -1 if probs is all zero.
func sampleMove(rng *rand.Rand, probs []float32) int {
	r := rng.Float32()
	sum := float32(0)
	last := -1
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		sum += p
		last = i
		if r < sum {
			return i
		}
	}
	return last
}

// argmax returns the first index of the largest value, or -1 for an empty slice.
func argmax(policy []float32) int {
	bestIdx := -1
	bestVal := float32(-1)
	for i, p := range policy {
		if p > bestVal {
			bestVal = p
			bestIdx = i
		}
	}
	return bestIdx
}
