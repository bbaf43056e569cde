package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/brensch/gomokuzero/executor/inference"
	"github.com/brensch/gomokuzero/executor/selfplay"
	"github.com/brensch/gomokuzero/game"
	"github.com/brensch/gomokuzero/store"
)

func fakeGame(id string, plies int) selfplay.Game {
	state := game.New()
	rows := make([]store.MoveRecord, 0, plies)
	for ply := 0; ply < plies; ply++ {
		rows = append(rows, store.MoveRecord{
			GameID:      id,
			Ply:         int32(ply),
			Player:      int32(state.ToMove()),
			Row:         0,
			Col:         int32(ply),
			Board:       store.BoardBytes(state),
			Policy:      make([]float32, game.PolicySize),
			Simulations: 10,
			Source:      "test",
		})
		_, err := state.Apply(0, ply)
		if err != nil {
			panic(err)
		}
	}
	return selfplay.Game{
		Rows:   rows,
		Result: selfplay.GameResult{GameID: id, Plies: plies, Winner: game.Empty},
	}
}

func TestParquetWriterLoop(t *testing.T) {
	dir := t.TempDir()
	in := make(chan selfplay.Game)
	done := make(chan struct{})
	go func() {
		parquetWriterLoop(dir, 2, in)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		in <- fakeGame(fmt.Sprintf("g%d", i), 3)
	}
	in <- selfplay.Game{}
	close(in)
	<-done

	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 3)

	total := 0
	for _, f := range files {
		rows, err := store.ReadParquet(f)
		require.NoError(t, err)
		total += len(rows)
	}
	require.Equal(t, 15, total)

	tmp, err := os.ReadDir(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	require.Empty(t, tmp)
}

func TestParquetWriterLoopNoGames(t *testing.T) {
	dir := t.TempDir()
	in := make(chan selfplay.Game)
	close(in)
	parquetWriterLoop(dir, 2, in)

	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestModelUpdate(t *testing.T) {
	updates := make(chan GameUpdate)
	stats := func() progress {
		return progress{moves: 42, inferences: 420, batch: &inference.RuntimeStats{TotalBatches: 3, AvgBatchSize: 2.5}}
	}
	m := initialModel(updates, stats)

	t.Run("game updates", func(t *testing.T) {
		var next tea.Model = m
		for i, winner := range []game.Cell{game.Black, game.White, game.Empty, game.Black} {
			var cmd tea.Cmd
			next, cmd = next.Update(GameUpdate{
				WorkerID: i,
				Result:   selfplay.GameResult{GameID: fmt.Sprintf("g%d", i), Winner: winner, Plies: 10, Duration: time.Second},
			})
			require.NotNil(t, cmd)
		}
		got := next.(model)
		require.Equal(t, 4, got.gamesPlayed)
		require.Equal(t, 2, got.blackWins)
		require.Equal(t, 1, got.whiteWins)
		require.Equal(t, 1, got.ties)
		require.Len(t, got.recentGames, 4)
		require.Contains(t, got.recentGames[0], "g3")
		require.Contains(t, got.View(), "Black 2 / White 1 / Tie 1")
	})

	t.Run("recent games capped", func(t *testing.T) {
		var next tea.Model = m
		for i := 0; i < recentGamesShown+5; i++ {
			next, _ = next.Update(GameUpdate{Result: selfplay.GameResult{GameID: fmt.Sprintf("g%d", i)}})
		}
		require.Len(t, next.(model).recentGames, recentGamesShown)
	})

	t.Run("tick refreshes counters", func(t *testing.T) {
		next, cmd := m.Update(TickMsg(time.Now()))
		require.NotNil(t, cmd)
		got := next.(model)
		require.Equal(t, int64(42), got.progress.moves)
		require.Equal(t, int64(420), got.progress.inferences)
		require.Contains(t, got.View(), "ONNX Batches:     3")
	})

	t.Run("quit", func(t *testing.T) {
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
		require.NotNil(t, cmd)
		require.IsType(t, tea.QuitMsg{}, cmd())
	})
}
