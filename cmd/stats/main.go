// Command stats summarises self-play parquet archives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/brensch/gomokuzero/logging"
	"github.com/brensch/gomokuzero/records"
)

func main() {
	games := flag.Int("games", 0, "Also list up to this many games")
	asJSON := flag.Bool("json", false, "Print JSON instead of a table")
	flag.Parse()

	if err := logging.Setup(logging.Options{Level: "warn"}); err != nil {
		log.Fatal().Err(err).Msg("configure logging")
	}

	roots := flag.Args()
	if len(roots) == 0 {
		roots = []string{"data/selfplay"}
	}

	db, err := records.Open(roots...)
	if err != nil {
		log.Fatal().Err(err).Strs("roots", roots).Msg("open archive")
	}
	defer db.Close()

	if err := report(context.Background(), os.Stdout, db, *games, *asJSON); err != nil {
		log.Fatal().Err(err).Msg("report")
	}
}

type reportJSON struct {
	Files   int                   `json:"files"`
	Summary records.Summary       `json:"summary"`
	Games   []records.GameSummary `json:"games,omitempty"`
}

func report(ctx context.Context, w io.Writer, db *records.DB, limit int, asJSON bool) error {
	summary, err := db.Summarize(ctx)
	if err != nil {
		return err
	}
	var games []records.GameSummary
	if limit > 0 {
		games, err = db.ListGames(ctx, limit)
		if err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reportJSON{Files: len(db.Files()), Summary: summary, Games: games})
	}

	fmt.Fprintf(w, "files       %d\n", len(db.Files()))
	fmt.Fprintf(w, "games       %d\n", summary.Games)
	fmt.Fprintf(w, "plies       %d\n", summary.Plies)
	fmt.Fprintf(w, "black wins  %d\n", summary.BlackWins)
	fmt.Fprintf(w, "white wins  %d\n", summary.WhiteWins)
	fmt.Fprintf(w, "ties        %d\n", summary.Ties)
	fmt.Fprintf(w, "avg length  %.1f\n", summary.AvgLength)
	if len(games) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GAME\tPLIES\tWINNER\tSOURCE")
	for _, g := range games {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", g.GameID, g.Plies, g.Winner, g.Source)
	}
	return tw.Flush()
}
