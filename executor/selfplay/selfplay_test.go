package selfplay

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/brensch/gomokuzero/executor/inference"
	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/game"
	"github.com/brensch/gomokuzero/store"
)

func replay(t *testing.T, rows []store.MoveRecord) game.Status {
	t.Helper()
	state := game.New()
	status := game.Ongoing
	for i, r := range rows {
		require.Equal(t, game.Ongoing, status, "row %d after the game ended", i)
		require.Equal(t, store.BoardBytes(state), r.Board, "board snapshot at ply %d", i)
		require.Equal(t, int32(state.ToMove()), r.Player)

		var err error
		status, err = state.Apply(int(r.Row), int(r.Col))
		require.NoError(t, err, "ply %d", i)
	}
	return status
}

func TestPlayGame(t *testing.T) {
	tree, err := mcts.NewTree(inference.Uniform{}, mcts.WithMetrics(mcts.NewCollector()))
	require.NoError(t, err)

	var moves int
	rows, result, err := PlayGame(context.Background(), tree, Options{
		GameID:      "g",
		Simulations: 20,
		SampleMoves: 4,
		Temperature: 1,
		Source:      "test",
		Rand:        rand.New(rand.NewSource(11)),
		OnMove: func(state *game.State, move game.Move, stats mcts.RootStats) {
			moves++
			require.Equal(t, moves, state.Ply())
			require.GreaterOrEqual(t, stats.Visits, 20)
		},
	})
	require.NoError(t, err)
	require.NotEqual(t, game.Ongoing, result.Status)
	require.Equal(t, len(rows), result.Plies)
	require.Equal(t, len(rows), moves)
	require.Equal(t, int64(20*len(rows)), result.Simulations)
	require.Positive(t, result.OracleCalls)

	require.Equal(t, result.Status, replay(t, rows))
	require.Equal(t, result.Status, tree.Status())

	for i, r := range rows {
		require.Equal(t, "g", r.GameID)
		require.Equal(t, int32(i), r.Ply)
		require.Equal(t, "test", r.Source)
		require.Len(t, r.Policy, game.PolicySize)
		require.Equal(t, int32(result.Winner), r.Winner)

		sum := float32(0)
		for _, p := range r.Policy {
			sum += p
		}
		require.InDelta(t, 1.0, sum, 1e-4)

		switch {
		case result.Winner == game.Empty:
			require.Zero(t, r.Outcome)
		case r.Player == int32(result.Winner):
			require.Equal(t, float32(1), r.Outcome)
		default:
			require.Equal(t, float32(-1), r.Outcome)
		}
	}
}

func TestPlayGameCancelled(t *testing.T) {
	tree, err := mcts.NewTree(inference.Uniform{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows, _, err := PlayGame(ctx, tree, Options{Simulations: 10})
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, rows)

	_, _, err = PlayGame(context.Background(), tree, Options{})
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	out := make(chan Game)
	var games []Game
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for g := range out {
			games = append(games, g)
		}
	}()

	err := Run(context.Background(), inference.Uniform{}, RunOptions{
		Workers: 3,
		Games:   5,
		Seed:    1,
		Game:    Options{Simulations: 8, SampleMoves: 2, Temperature: 1},
	}, out)
	close(out)
	wg.Wait()

	require.NoError(t, err)
	require.Len(t, games, 5)
	ids := make(map[string]bool)
	for _, g := range games {
		require.False(t, ids[g.Result.GameID], "duplicate game id %s", g.Result.GameID)
		ids[g.Result.GameID] = true
		require.Len(t, g.Rows, g.Result.Plies)
		require.Equal(t, g.Result.GameID, g.Rows[0].GameID)
	}

	require.Error(t, Run(context.Background(), inference.Uniform{}, RunOptions{}, out))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Game)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, inference.Uniform{}, RunOptions{
			Workers: 2,
			Game:    Options{Simulations: 4},
		}, out)
	}()

	<-out
	cancel()
	require.NoError(t, <-done)
}

func TestChooseMove(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	state := game.New()

	t.Run("most visited after the opening", func(t *testing.T) {
		dist := make([]float32, game.PolicySize)
		dist[10] = 0.2
		dist[40] = 0.5
		dist[41] = 0.5
		dist[game.PassIndex] = 0.9
		m := chooseMove(state, dist, Options{}, rng)
		require.Equal(t, game.MoveFromIndex(40), m)
	})

	t.Run("sampling only picks visited moves", func(t *testing.T) {
		dist := make([]float32, game.PolicySize)
		dist[7] = 0.25
		dist[100] = 0.75
		for i := 0; i < 50; i++ {
			m := chooseMove(state, dist, Options{SampleMoves: 1, Temperature: 0.5}, rng)
			require.Contains(t, []int{7, 100}, m.Index())
		}
	})

	t.Run("pass only falls back to a legal move", func(t *testing.T) {
		dist := make([]float32, game.PolicySize)
		dist[game.PassIndex] = 1
		for _, opts := range []Options{{}, {SampleMoves: 1}} {
			m := chooseMove(state, dist, opts, rng)
			require.False(t, m.IsPass())
			require.True(t, state.IsLegal(m.Row, m.Col))
		}
	})
}

func TestTemperatureWeights(t *testing.T) {
	w := temperatureWeights([]float32{0.2, 0, 0.8}, 0.5)
	require.InDelta(t, 0.04/0.68, w[0], 1e-6)
	require.Zero(t, w[1])
	require.InDelta(t, 0.64/0.68, w[2], 1e-6)
}

func TestRenderBoard(t *testing.T) {
	state := game.New()
	_, err := state.Apply(0, 0)
	require.NoError(t, err)
	_, err = state.Apply(14, 14)
	require.NoError(t, err)

	out := RenderBoard(state, game.Move{Row: 14, Col: 14})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, game.Dimension+1)
	require.True(t, strings.HasPrefix(strings.TrimSpace(lines[0]), "A B C"))
	require.Equal(t, "  1 X", lines[1][:5])
	require.True(t, strings.HasSuffix(lines[15], " o"))
}

func TestRenderStats(t *testing.T) {
	out := RenderStats(mcts.RootStats{Ply: 2, Visits: 10, Children: []mcts.ChildStats{
		{Move: game.Move{Row: 0, Col: 0}, Visits: 3},
		{Move: game.Move{Row: 7, Col: 7}, Visits: 7},
	}}, 1)
	require.Contains(t, out, "H8")
	require.NotContains(t, out, "A1")
}
