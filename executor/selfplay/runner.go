package selfplay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/store"
)

// Game is a finished self-play game.
type Game struct {
	WorkerID int
	Rows     []store.MoveRecord
	Result   GameResult
}

type RunOptions struct {
	Workers int
	// Games stops the run after this many games. Zero plays until ctx is done.
	Games int64
	Seed  uint64
	Game  Options
}

// Run plays games on opts.Workers goroutines, each with its own search tree,
// and sends every finished game to out. It returns nil when ctx is cancelled
// or the game budget is spent, and the first worker error otherwise.
func Run(ctx context.Context, p mcts.Predictor, opts RunOptions, out chan<- Game) error {
	if opts.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", opts.Workers)
	}

	var started atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Workers; w++ {
		workerID := w
		g.Go(func() error {
			tree, err := mcts.NewTree(p, mcts.WithMetrics(mcts.NewCollector()))
			if err != nil {
				return fmt.Errorf("worker %d: %w", workerID, err)
			}

			gameOpts := opts.Game
			gameOpts.Rand = rand.New(rand.NewSource(opts.Seed + uint64(workerID)*1000003))

			for {
				n := started.Add(1)
				if opts.Games > 0 && n > opts.Games {
					return nil
				}
				gameOpts.GameID = fmt.Sprintf("selfplay_%d_%d_%d", opts.Seed, workerID, n)

				rows, result, err := PlayGame(ctx, tree, gameOpts)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return nil
					}
					return fmt.Errorf("worker %d: %w", workerID, err)
				}
				log.Debug().
					Int("worker", workerID).
					Str("game", result.GameID).
					Stringer("winner", result.Winner).
					Int("plies", result.Plies).
					Dur("took", result.Duration).
					Msg("game finished")

				select {
				case out <- Game{WorkerID: workerID, Rows: rows, Result: result}:
				case <-ctx.Done():
					return nil
				}
			}
		})
	}
	return g.Wait()
}
