package records

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brensch/gomokuzero/game"
	"github.com/brensch/gomokuzero/store"
	"github.com/stretchr/testify/require"
)

func gameRecords(id string, plies int, winner game.Cell) []store.MoveRecord {
	rows := make([]store.MoveRecord, plies)
	for i := range rows {
		rows[i] = store.MoveRecord{
			GameID: id,
			Ply:    int32(i),
			Player: int32(1 + i%2),
			Row:    int32(i / game.Dimension),
			Col:    int32(i % game.Dimension),
			Board:  make([]byte, game.Cells),
			Policy: make([]float32, game.PolicySize),
			Winner: int32(winner),
			Source: "test",
		}
	}
	return rows
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()

	t.Run("empty archive", func(t *testing.T) {
		db, err := Open(t.TempDir())
		require.NoError(t, err)
		defer db.Close()

		s, err := db.Summarize(ctx)
		require.NoError(t, err)
		require.Equal(t, Summary{}, s)

		games, err := db.ListGames(ctx, 0)
		require.NoError(t, err)
		require.Empty(t, games)
	})

	t.Run("counts games across batches", func(t *testing.T) {
		dir := t.TempDir()

		first := append(gameRecords("g1", 9, game.Black), gameRecords("g2", 10, game.White)...)
		_, err := store.WriteBatchParquetAtomic(dir, first)
		require.NoError(t, err)
		_, err = store.WriteBatchParquetAtomic(filepath.Join(dir, "nested"), gameRecords("g3", 5, game.Empty))
		require.NoError(t, err)

		// A half-written batch must be ignored.
		tmpDir := filepath.Join(dir, "tmp")
		stray, err := store.WriteBatchParquetAtomic(tmpDir, gameRecords("g4", 7, game.Black))
		require.NoError(t, err)
		require.NoError(t, os.Rename(stray, filepath.Join(tmpDir, "tmp", "partial.parquet")))

		db, err := Open(dir)
		require.NoError(t, err)
		defer db.Close()
		require.Len(t, db.Files(), 2)

		s, err := db.Summarize(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(3), s.Games)
		require.Equal(t, int64(24), s.Plies)
		require.Equal(t, int64(1), s.BlackWins)
		require.Equal(t, int64(1), s.WhiteWins)
		require.Equal(t, int64(1), s.Ties)
		require.InDelta(t, 8.0, s.AvgLength, 1e-9)

		games, err := db.ListGames(ctx, 2)
		require.NoError(t, err)
		require.Len(t, games, 2)
		require.Equal(t, "g1", games[0].GameID)
		require.Equal(t, int64(9), games[0].Plies)
		require.Equal(t, int32(game.Black), games[0].Winner)
		require.Equal(t, "test", games[0].Source)
		require.Equal(t, "g2", games[1].GameID)
	})
}
