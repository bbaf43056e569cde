// Command server exposes a single search tree over HTTP with a websocket
// feed of every position change.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brensch/gomokuzero/config"
	"github.com/brensch/gomokuzero/executor/inference"
	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/logging"
	"github.com/brensch/gomokuzero/server"
)

func main() {
	configPath := flag.String("config", "", "YAML config file; flags override it")
	listen := flag.String("listen", "", "Listen address")
	modelPath := flag.String("model", "", "ONNX model path; empty uses the uniform oracle")
	sims := flag.Int("sims", 0, "Default simulations per /api/simulate call")
	maxSims := flag.Int("max-sims", server.DefaultMaxSimulations, "Largest accepted simulation count")
	disableCUDA := flag.Bool("disable-cuda", false, "Run inference on CPU only")
	logLevel := flag.String("log-level", "", "Log level")
	logFormat := flag.String("log-format", "", "Log format: console, json or pretty")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.Addr = *listen
		case "model":
			cfg.Oracle.ModelPath = *modelPath
		case "sims":
			cfg.Search.Simulations = *sims
		case "disable-cuda":
			cfg.Oracle.DisableCUDA = *disableCUDA
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if err := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		log.Fatal().Err(err).Msg("configure logging")
	}

	oracle, closeOracle, err := inference.Open(cfg.Oracle)
	if err != nil {
		log.Fatal().Err(err).Msg("open oracle")
	}
	defer closeOracle()

	tree, err := mcts.NewTree(oracle, mcts.WithMetrics(mcts.NewCollector()))
	if err != nil {
		log.Fatal().Err(err).Msg("create tree")
	}

	api := server.New(tree, server.Config{
		Simulations:    cfg.Search.Simulations,
		MaxSimulations: *maxSims,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Int("sims", cfg.Search.Simulations).
		Str("model", cfg.Oracle.ModelPath).
		Msg("gomoku server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("serve")
	}
	log.Info().Msg("server stopped")
}
