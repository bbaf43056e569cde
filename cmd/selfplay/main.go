// Command selfplay generates game records by playing the search against itself.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/brensch/gomokuzero/config"
	"github.com/brensch/gomokuzero/executor/inference"
	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/executor/selfplay"
	"github.com/brensch/gomokuzero/game"
	"github.com/brensch/gomokuzero/logging"
)

func main() {
	configPath := flag.String("config", "", "YAML config file; flags override it")
	workers := flag.Int("workers", 0, "Number of self-play workers")
	games := flag.Int64("games", 0, "If > 0, stop after generating this many games (across all workers)")
	sims := flag.Int("sims", 0, "Simulations per move")
	sampleMoves := flag.Int("sample-moves", 0, "Opening plies sampled from the visit distribution")
	outDir := flag.String("out-dir", "", "Output directory for parquet batches")
	gamesPerFlush := flag.Int("games-per-flush", 0, "Number of games to buffer per parquet file")
	modelPath := flag.String("model", "", "ONNX model path; empty uses the uniform oracle")
	onnxSessions := flag.Int("onnx-sessions", 0, "Number of ONNX Runtime sessions to run in parallel")
	onnxBatchSize := flag.Int("onnx-batch-size", 0, "ONNX inference batch size")
	onnxBatchTimeout := flag.Duration("onnx-batch-timeout", 0, "Max time to wait for filling an ONNX batch")
	seed := flag.Uint64("seed", 0, "Random seed; 0 uses the clock")
	useTUI := flag.Bool("tui", false, "Show a live progress view")
	logLevel := flag.String("log-level", "", "Log level")
	logFormat := flag.String("log-format", "", "Log format: console, json or pretty")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.SelfPlay.Workers = *workers
		case "games":
			cfg.SelfPlay.Games = *games
		case "sims":
			cfg.Search.Simulations = *sims
		case "sample-moves":
			cfg.SelfPlay.SampleMoves = *sampleMoves
		case "out-dir":
			cfg.SelfPlay.OutDir = *outDir
		case "games-per-flush":
			cfg.SelfPlay.GamesPerFlush = *gamesPerFlush
		case "model":
			cfg.Oracle.ModelPath = *modelPath
		case "onnx-sessions":
			cfg.Oracle.Sessions = *onnxSessions
		case "onnx-batch-size":
			cfg.Oracle.BatchSize = *onnxBatchSize
		case "onnx-batch-timeout":
			cfg.Oracle.BatchTimeout = *onnxBatchTimeout
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	var logFile *os.File
	if *useTUI {
		// Keep log lines from tearing the TUI.
		logFile, err = os.OpenFile("selfplay.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatal().Err(err).Msg("open log file")
		}
		defer logFile.Close()
		logOpts.Output = logFile
	}
	if err := logging.Setup(logOpts); err != nil {
		log.Fatal().Err(err).Msg("configure logging")
	}

	runSeed := *seed
	if runSeed == 0 {
		runSeed = uint64(time.Now().UnixNano())
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	oracle, closeOracle, err := inference.Open(cfg.Oracle)
	if err != nil {
		log.Fatal().Err(err).Msg("open oracle")
	}
	defer func() {
		if err := closeOracle(); err != nil {
			log.Warn().Err(err).Msg("close oracle")
		}
	}()
	counting := inference.NewCounting(oracle)

	// Each worker has at most one oracle request in flight.
	if cfg.Oracle.ModelPath != "" && cfg.Oracle.BatchSize > cfg.SelfPlay.Workers*cfg.Oracle.Sessions {
		log.Warn().
			Int("batch_size", cfg.Oracle.BatchSize).
			Int("workers", cfg.SelfPlay.Workers).
			Msg("batch size exceeds in-flight requests; batches will only fill on timeout")
	}

	var moves atomic.Int64
	gamesOut := make(chan selfplay.Game, cfg.SelfPlay.Workers)
	writeReqs := make(chan selfplay.Game, cfg.SelfPlay.Workers*4)
	updates := make(chan GameUpdate, cfg.SelfPlay.Workers)

	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(cfg.SelfPlay.OutDir, cfg.SelfPlay.GamesPerFlush, writeReqs)
		close(writerDone)
	}()

	runDone := make(chan error, 1)
	go func() {
		runDone <- selfplay.Run(ctx, counting, selfplay.RunOptions{
			Workers: cfg.SelfPlay.Workers,
			Games:   cfg.SelfPlay.Games,
			Seed:    runSeed,
			Game: selfplay.Options{
				Simulations: cfg.Search.Simulations,
				SampleMoves: cfg.SelfPlay.SampleMoves,
				Temperature: cfg.SelfPlay.Temperature,
				Source:      "selfplay",
				ModelPath:   inference.ResolveModelPath(cfg.Oracle.ModelPath),
				OnMove: func(*game.State, game.Move, mcts.RootStats) {
					moves.Add(1)
				},
			},
		}, gamesOut)
		close(gamesOut)
	}()

	log.Info().
		Int("workers", cfg.SelfPlay.Workers).
		Int("sims", cfg.Search.Simulations).
		Str("out_dir", cfg.SelfPlay.OutDir).
		Uint64("seed", runSeed).
		Msg("starting self-play")

	go func() {
		for g := range gamesOut {
			writeReqs <- g
			select {
			case updates <- GameUpdate{WorkerID: g.WorkerID, Result: g.Result}:
			default:
			}
		}
		close(writeReqs)
	}()

	stats := func() progress {
		p := progress{moves: moves.Load(), inferences: counting.Calls()}
		if sp, ok := oracle.(interface{ Stats() inference.RuntimeStats }); ok {
			st := sp.Stats()
			p.batch = &st
		}
		return p
	}

	if *useTUI {
		prog := tea.NewProgram(initialModel(updates, stats), tea.WithAltScreen())
		go func() {
			<-writerDone
			prog.Quit()
		}()
		if _, err := prog.Run(); err != nil {
			log.Error().Err(err).Msg("tui failed")
		}
		cancel()
	} else {
		logProgress(ctx, updates, stats, writerDone)
	}

	<-writerDone
	if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("self-play failed")
	}
	log.Info().Int64("moves", moves.Load()).Msg("shutdown complete")
}

func logProgress(ctx context.Context, updates <-chan GameUpdate, stats func() progress, done <-chan struct{}) {
	start := time.Now()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	played := 0
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			log.Info().Msg("shutdown requested; waiting for workers to finish current games")
			<-done
			return
		case u := <-updates:
			played++
			log.Info().
				Int("worker", u.WorkerID).
				Str("game", u.Result.GameID).
				Stringer("winner", u.Result.Winner).
				Int("plies", u.Result.Plies).
				Int("played", played).
				Msg("game finished")
		case <-ticker.C:
			p := stats()
			secs := time.Since(start).Seconds()
			ev := log.Info().
				Float64("moves_per_sec", float64(p.moves)/secs).
				Float64("inf_per_sec", float64(p.inferences)/secs)
			if p.batch != nil {
				ev = ev.Float64("batch_avg", p.batch.AvgBatchSize).
					Int("queue", p.batch.QueueLen).
					Float64("run_avg_ms", p.batch.AvgRunMs)
			}
			ev.Msg("stats")
		}
	}
}
