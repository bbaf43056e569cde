// Command debuggame plays a single self-play game and prints the board and
// root statistics after every move.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"github.com/brensch/gomokuzero/config"
	"github.com/brensch/gomokuzero/executor/inference"
	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/executor/selfplay"
	"github.com/brensch/gomokuzero/game"
	"github.com/brensch/gomokuzero/logging"
	"github.com/brensch/gomokuzero/store"
)

func main() {
	modelPath := flag.String("model", "", "ONNX model path; empty uses the uniform oracle")
	outDir := flag.String("out-dir", "", "If set, write the game records to a parquet file here")
	sims := flag.Int("sims", 400, "Number of MCTS simulations per move")
	sampleMoves := flag.Int("sample-moves", 0, "Opening plies sampled from the visit distribution")
	top := flag.Int("top", 5, "Children shown per move")
	seed := flag.Uint64("seed", 1, "Random seed")
	cuda := flag.Bool("cuda", true, "Enable CUDA for inference")
	timeout := flag.Duration("timeout", 5*time.Minute, "Abort the game after this long")
	flag.Parse()

	if err := logging.Setup(logging.Options{Level: "info", Format: logging.FormatConsole}); err != nil {
		log.Fatal().Err(err).Msg("configure logging")
	}

	oracleCfg := config.Default().Oracle
	oracleCfg.ModelPath = *modelPath
	oracleCfg.DisableCUDA = !*cuda
	oracle, closeOracle, err := inference.Open(oracleCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open oracle")
	}
	defer closeOracle()

	tree, err := mcts.NewTree(oracle, mcts.WithMetrics(mcts.NewCollector()))
	if err != nil {
		log.Fatal().Err(err).Msg("create tree")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Info().Int("sims", *sims).Str("model", *modelPath).Msg("generating debug game")

	gameID := fmt.Sprintf("debug_%d", time.Now().UnixNano())
	rows, result, err := selfplay.PlayGame(ctx, tree, selfplay.Options{
		GameID:      gameID,
		Simulations: *sims,
		SampleMoves: *sampleMoves,
		Temperature: 1,
		Source:      "debug",
		ModelPath:   inference.ResolveModelPath(*modelPath),
		Rand:        rand.New(rand.NewSource(*seed)),
		OnMove: func(state *game.State, move game.Move, stats mcts.RootStats) {
			fmt.Printf("Ply %d: %s plays %s\n", state.Ply(), state.ToMove().Opponent(), move)
			fmt.Print(selfplay.RenderStats(stats, *top))
			fmt.Println(selfplay.RenderBoard(state, move))
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("play game")
	}

	log.Info().
		Str("game", result.GameID).
		Stringer("status", result.Status).
		Stringer("winner", result.Winner).
		Int("plies", result.Plies).
		Int64("oracle_calls", result.OracleCalls).
		Dur("duration", result.Duration).
		Msg("game complete")

	if *outDir == "" {
		return
	}
	path, err := store.WriteBatchParquetAtomic(*outDir, rows)
	if err != nil {
		log.Error().Err(err).Msg("write debug game")
		os.Exit(1)
	}
	log.Info().Str("path", path).Msg("debug game written")
}
