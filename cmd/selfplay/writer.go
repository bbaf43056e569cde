package main

import (
	"github.com/rs/zerolog/log"

	"github.com/brensch/gomokuzero/executor/selfplay"
	"github.com/brensch/gomokuzero/store"
)

// parquetWriterLoop streams games into batch files of gamesPerFlush games
// until in is closed, then publishes whatever is left.
func parquetWriterLoop(outDir string, gamesPerFlush int, in <-chan selfplay.Game) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	w, err := store.NewBatchWriter(outDir)
	if err != nil {
		log.Error().Err(err).Str("out_dir", outDir).Msg("open batch writer; games will not be saved")
		for range in {
		}
		return
	}

	logBatch := func(batch store.Batch, err error, final bool) {
		if err != nil {
			log.Error().Err(err).Bool("final", final).Msg("parquet flush")
			return
		}
		if batch.Games == 0 {
			return
		}
		log.Info().Str("path", batch.Path).Int("games", batch.Games).Int("rows", batch.Rows).Bool("final", final).Msg("parquet flush")
	}

	for g := range in {
		if err := w.WriteGame(g.Rows); err != nil {
			log.Error().Err(err).Str("game", g.Result.GameID).Msg("write game")
			continue
		}
		if w.BufferedGames() >= gamesPerFlush {
			batch, err := w.Flush()
			logBatch(batch, err, false)
		}
	}
	batch, err := w.Close()
	logBatch(batch, err, true)
}
