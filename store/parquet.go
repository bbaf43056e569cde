// Package store persists game records as zstd-compressed parquet batches.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/gomokuzero/game"
)

const SchemaVersion = "gomoku_move_v1"

var batchSeq atomic.Int64

// batchName is unique within the process even when the clock is coarse.
func batchName() string {
	return fmt.Sprintf("batch_%d_%d.parquet", time.Now().UnixNano(), batchSeq.Add(1))
}

// MoveRecord is one ply of a finished game.
//
// Board is the position before the move, one byte per cell in row-major order
// (0 empty, 1 black, 2 white). Policy is the normalized root visit
// distribution indexed like game.Move.Index, pass last.
// Outcome is the final result from the mover's perspective: 1 win, 0 tie, -1 loss.
type MoveRecord struct {
	GameID string `parquet:"game_id,dict"`
	Ply    int32  `parquet:"ply"`
	Player int32  `parquet:"player"`
	Row    int32  `parquet:"row"`
	Col    int32  `parquet:"col"`

	Board  []byte    `parquet:"board"`
	Policy []float32 `parquet:"policy"`

	Visits      int32   `parquet:"visits"`
	RootValue   float32 `parquet:"root_value"`
	Simulations int32   `parquet:"simulations"`

	Outcome float32 `parquet:"outcome"`
	// Winner is 0 for a tie, otherwise the game.Cell of the winner.
	Winner int32 `parquet:"winner"`

	Source string `parquet:"source,dict"`
	// ModelPath is the resolved ONNX model used to generate the game, if any.
	ModelPath string `parquet:"model_path,dict,optional"`
}

// Move returns the recorded move.
func (r MoveRecord) Move() game.Move {
	return game.Move{Row: int(r.Row), Col: int(r.Col)}
}

// BoardBytes packs the cells of state for MoveRecord.Board.
func BoardBytes(state *game.State) []byte {
	cells := state.Board()
	out := make([]byte, len(cells))
	for i, c := range cells {
		out[i] = byte(c)
	}
	return out
}

func writeOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("board"),
		parquet.KeyValueMetadata("schema", SchemaVersion),
	}
}

// WriteBatchParquetAtomic writes a Parquet file into outDir/tmp and then
// atomically moves it into outDir, so readers never observe partial files.
func WriteBatchParquetAtomic(outDir string, rows []MoveRecord) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := batchName()
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows, writeOptions()...); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadParquet loads every record of one batch file.
func ReadParquet(path string) ([]MoveRecord, error) {
	rows, err := parquet.ReadFile[MoveRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
