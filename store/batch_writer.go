package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

var ErrWriterClosed = errors.New("batch writer closed")

// Batch describes one parquet file published by BatchWriter.Flush.
type Batch struct {
	Path  string
	Rows  int
	Games int
}

// BatchWriter streams whole games into parquet files under dir. Rows go to a
// file in dir/tmp that Flush renames into dir, so readers of dir only see
// complete batches. The writer opens a new file on the next write after each
// flush. It is not safe for concurrent use.
type BatchWriter struct {
	dir    string
	tmpDir string
	closed bool

	open  *openBatch
	games int
	rows  int
}

type openBatch struct {
	name   string
	file   *os.File
	writer *parquet.GenericWriter[MoveRecord]
}

func NewBatchWriter(dir string) (*BatchWriter, error) {
	if dir == "" {
		return nil, errors.New("batch writer needs an output directory")
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", tmpDir, err)
	}
	return &BatchWriter{dir: dir, tmpDir: tmpDir}, nil
}

func (b *BatchWriter) BufferedGames() int { return b.games }
func (b *BatchWriter) BufferedRows() int  { return b.rows }

// WriteGame appends every record of one game to the open batch. Empty games
// are ignored.
func (b *BatchWriter) WriteGame(rows []MoveRecord) error {
	if b.closed {
		return ErrWriterClosed
	}
	if len(rows) == 0 {
		return nil
	}
	if b.open == nil {
		ob, err := b.openBatch()
		if err != nil {
			return err
		}
		b.open = ob
	}
	if _, err := b.open.writer.Write(rows); err != nil {
		return fmt.Errorf("write game %s: %w", rows[0].GameID, err)
	}
	b.games++
	b.rows += len(rows)
	return nil
}

func (b *BatchWriter) openBatch() (*openBatch, error) {
	name := batchName()
	f, err := os.Create(filepath.Join(b.tmpDir, name))
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return &openBatch{
		name:   name,
		file:   f,
		writer: parquet.NewGenericWriter[MoveRecord](f, writeOptions()...),
	}, nil
}

// Flush publishes the open batch. With nothing buffered it returns a zero
// Batch and no error. On failure the partial file is removed and the buffered
// games are lost.
func (b *BatchWriter) Flush() (Batch, error) {
	ob := b.open
	if ob == nil {
		return Batch{}, nil
	}
	batch := Batch{Path: filepath.Join(b.dir, ob.name), Rows: b.rows, Games: b.games}
	b.open, b.games, b.rows = nil, 0, 0

	tmpPath := ob.file.Name()
	err := errors.Join(ob.writer.Close(), ob.file.Sync(), ob.file.Close())
	if err == nil {
		err = os.Rename(tmpPath, batch.Path)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return Batch{}, fmt.Errorf("publish %s: %w", ob.name, err)
	}
	return batch, nil
}

// Close flushes the open batch and rejects further writes.
func (b *BatchWriter) Close() (Batch, error) {
	if b.closed {
		return Batch{}, nil
	}
	b.closed = true
	return b.Flush()
}
