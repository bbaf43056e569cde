// Package records queries game archives written by the store package.
package records

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog/log"
)

// DB is an in-memory DuckDB connection with a `moves` view over every parquet
// batch found under its roots. Files still under a tmp/ directory are skipped.
type DB struct {
	db    *sql.DB
	roots []string
	files []string
}

func Open(roots ...string) (*DB, error) {
	files, err := parquetFiles(roots)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// Basic pragmas; ignore errors for compatibility across versions.
	_, _ = db.Exec("PRAGMA threads=4")

	start := time.Now()
	if err := createMovesView(db, files); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create moves view: %w", err)
	}
	log.Debug().Int("files", len(files)).Dur("took", time.Since(start)).Msg("opened archive")

	return &DB{db: db, roots: roots, files: files}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Files lists the parquet batches behind the view.
func (d *DB) Files() []string {
	return d.files
}

func parquetFiles(roots []string) ([]string, error) {
	var files []string
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				if entry.Name() == "tmp" && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(entry.Name(), ".parquet") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func createMovesView(db *sql.DB, files []string) error {
	if len(files) == 0 {
		_, err := db.Exec(`CREATE OR REPLACE VIEW moves AS
			SELECT * FROM (
				SELECT
					NULL::VARCHAR AS game_id,
					NULL::INTEGER AS ply,
					NULL::INTEGER AS player,
					NULL::INTEGER AS "row",
					NULL::INTEGER AS "col",
					NULL::REAL AS root_value,
					NULL::INTEGER AS simulations,
					NULL::REAL AS outcome,
					NULL::INTEGER AS winner,
					NULL::VARCHAR AS source,
					NULL::VARCHAR AS filename
			) WHERE 1=0`)
		return err
	}

	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = "'" + escapeSQLString(f) + "'"
	}
	// union_by_name tolerates batches written with and without model_path.
	_, err := db.Exec(`CREATE OR REPLACE VIEW moves AS
		SELECT * FROM read_parquet([` + strings.Join(quoted, ",") + `], filename=true, union_by_name=true)`)
	return err
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Summary aggregates finished games.
type Summary struct {
	Games     int64   `json:"games"`
	Plies     int64   `json:"plies"`
	BlackWins int64   `json:"black_wins"`
	WhiteWins int64   `json:"white_wins"`
	Ties      int64   `json:"ties"`
	AvgLength float64 `json:"avg_length"`
}

func (d *DB) Summarize(ctx context.Context) (Summary, error) {
	query := `WITH games AS (
		SELECT game_id, COUNT(*) AS plies, MAX(winner) AS winner
		FROM moves
		GROUP BY game_id
	)
	SELECT
		COUNT(*)::BIGINT,
		COALESCE(SUM(plies), 0)::BIGINT,
		COUNT(*) FILTER (WHERE winner = 1)::BIGINT,
		COUNT(*) FILTER (WHERE winner = 2)::BIGINT,
		COUNT(*) FILTER (WHERE winner = 0)::BIGINT,
		COALESCE(AVG(plies), 0)::DOUBLE
	FROM games`

	var s Summary
	err := d.db.QueryRowContext(ctx, query).Scan(&s.Games, &s.Plies, &s.BlackWins, &s.WhiteWins, &s.Ties, &s.AvgLength)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}
	return s, nil
}

type GameSummary struct {
	GameID string `json:"game_id"`
	Plies  int64  `json:"plies"`
	Winner int32  `json:"winner"`
	Source string `json:"source"`
	File   string `json:"file"`
}

// ListGames returns up to limit games ordered by id. limit <= 0 returns all.
func (d *DB) ListGames(ctx context.Context, limit int) ([]GameSummary, error) {
	query := `SELECT
			game_id,
			COUNT(*)::BIGINT AS plies,
			MAX(winner)::INTEGER AS winner,
			MIN(source)::VARCHAR AS source,
			MIN(filename)::VARCHAR AS file
		FROM moves
		GROUP BY game_id
		ORDER BY game_id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []GameSummary
	for rows.Next() {
		var g GameSummary
		if err := rows.Scan(&g.GameID, &g.Plies, &g.Winner, &g.Source, &g.File); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
