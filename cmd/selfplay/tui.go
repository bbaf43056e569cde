package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/gomokuzero/executor/inference"
	"github.com/brensch/gomokuzero/executor/selfplay"
	"github.com/brensch/gomokuzero/game"
)

const recentGamesShown = 10

type GameUpdate struct {
	WorkerID int
	Result   selfplay.GameResult
}

// progress is a snapshot of the shared counters.
type progress struct {
	moves      int64
	inferences int64
	// batch is nil for oracles that do not batch.
	batch *inference.RuntimeStats
}

type model struct {
	gamesPlayed int
	blackWins   int
	whiteWins   int
	ties        int
	plies       int
	progress    progress
	startTime   time.Time
	recentGames []string
	updates     <-chan GameUpdate
	stats       func() progress
}

func initialModel(updates <-chan GameUpdate, stats func() progress) model {
	return model{
		startTime: time.Now(),
		updates:   updates,
		stats:     stats,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates <-chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		if m.stats != nil {
			m.progress = m.stats()
		}
		return m, tickCmd()
	case GameUpdate:
		m.gamesPlayed++
		m.plies += msg.Result.Plies
		switch msg.Result.Winner {
		case game.Black:
			m.blackWins++
		case game.White:
			m.whiteWins++
		default:
			m.ties++
		}
		line := fmt.Sprintf("Worker %d: %s, winner %s, %d plies, %s",
			msg.WorkerID, msg.Result.GameID, msg.Result.Winner, msg.Result.Plies, msg.Result.Duration.Round(time.Millisecond))
		m.recentGames = append([]string{line}, m.recentGames...)
		if len(m.recentGames) > recentGamesShown {
			m.recentGames = m.recentGames[:recentGamesShown]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	var gamesPerSec, movesPerSec, inferencesPerSec float64
	if secs := duration.Seconds(); secs >= 1 {
		gamesPerSec = float64(m.gamesPlayed) / secs
		movesPerSec = float64(m.progress.moves) / secs
		inferencesPerSec = float64(m.progress.inferences) / secs
	}
	avgLength := 0.0
	if m.gamesPlayed > 0 {
		avgLength = float64(m.plies) / float64(m.gamesPlayed)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Games Played:     %d (Black %d / White %d / Tie %d)\n", m.gamesPlayed, m.blackWins, m.whiteWins, m.ties)
	fmt.Fprintf(&b, "Avg Game Length:  %.1f\n", avgLength)
	fmt.Fprintf(&b, "Total Moves:      %d\n", m.progress.moves)
	fmt.Fprintf(&b, "Total Inferences: %d\n", m.progress.inferences)
	fmt.Fprintf(&b, "Duration:         %s\n", duration.Round(time.Second))
	fmt.Fprintf(&b, "Games/Sec:        %.2f\n", gamesPerSec)
	fmt.Fprintf(&b, "Moves/Sec:        %.2f\n", movesPerSec)
	fmt.Fprintf(&b, "Inferences/Sec:   %.2f\n", inferencesPerSec)
	if st := m.progress.batch; st != nil {
		fmt.Fprintf(&b, "ONNX Batches:     %d (avg %.1f, last %d, queue %d, run %.2fms)\n",
			st.TotalBatches, st.AvgBatchSize, st.LastBatchSize, st.QueueLen, st.AvgRunMs)
	}

	b.WriteString("\nRecent Games:\n")
	for _, g := range m.recentGames {
		b.WriteString(g + "\n")
	}

	b.WriteString("\nPress q to quit.\n")
	return b.String()
}
