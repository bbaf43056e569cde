package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/brensch/gomokuzero/executor/inference"
	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/game"
)

func newTestServer(t *testing.T, p mcts.Predictor) (*Server, *httptest.Server) {
	t.Helper()
	tree, err := mcts.NewTree(p, mcts.WithMetrics(mcts.NewCollector()))
	require.NoError(t, err)
	s := New(tree, Config{Simulations: 50, MaxSimulations: 1000})
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestGameFlow(t *testing.T) {
	_, ts := newTestServer(t, inference.Uniform{})

	var state statePayload
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/state", nil, &state))
	require.Equal(t, 0, state.Ply)
	require.Equal(t, "Black", state.ToMove)
	require.Equal(t, "Ongoing", state.Status)
	require.Len(t, state.Board, game.Dimension)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/simulate", simulateRequest{Count: 30}, &state))
	require.Equal(t, 30, state.Search.Visits)
	require.NotNil(t, state.Metrics)
	require.EqualValues(t, 30, state.Metrics.Simulations)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/simulate", nil, &state))
	require.Equal(t, 80, state.Search.Visits, "empty body uses the configured count")

	var best bestPayload
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/best", nil, &best))
	require.False(t, best.Pass)
	require.Positive(t, best.Visits)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/move", apiMove{Row: best.Move.Row, Col: best.Move.Col}, &state))
	require.Equal(t, 1, state.Ply)
	require.Equal(t, "White", state.ToMove)
	require.Equal(t, int(game.Black), state.Board[best.Move.Row][best.Move.Col])
	require.Equal(t, best.Move, *state.LastMove)

	var errBody map[string]string
	require.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/api/move", apiMove{Row: best.Move.Row, Col: best.Move.Col}, &errBody))
	require.Contains(t, errBody["error"], "illegal move")
	require.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/api/move", apiMove{Row: 20, Col: 0}, nil))
	require.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/api/simulate", simulateRequest{Count: 5000}, nil))

	var restarted statePayload
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/restart", nil, &restarted))
	require.Equal(t, 0, restarted.Ply)
	require.Nil(t, restarted.LastMove)
}

func TestGameOver(t *testing.T) {
	_, ts := newTestServer(t, inference.Uniform{})

	moves := []apiMove{
		{7, 3}, {0, 0}, {7, 4}, {0, 2}, {7, 5}, {0, 4}, {7, 6}, {0, 6}, {7, 7},
	}
	var state statePayload
	for _, m := range moves {
		require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/move", m, &state))
	}
	require.Equal(t, "Win", state.Status)

	require.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/api/simulate", simulateRequest{Count: 1}, nil))
	require.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/api/move", apiMove{Row: 1, Col: 1}, nil))
}

func TestOracleFailure(t *testing.T) {
	var fail atomic.Bool
	_, ts := newTestServer(t, predictorFunc(func(input []float32) ([]float32, float32, error) {
		if fail.Load() {
			return nil, 0, errors.New("gpu on fire")
		}
		return inference.Uniform{}.Predict(input)
	}))

	fail.Store(true)
	var errBody map[string]string
	require.Equal(t, http.StatusInternalServerError, do(t, http.MethodPost, ts.URL+"/api/simulate", simulateRequest{Count: 3}, &errBody))
	require.Contains(t, errBody["error"], "gpu on fire")
}

type predictorFunc func(input []float32) ([]float32, float32, error)

func (f predictorFunc) Predict(input []float32) ([]float32, float32, error) {
	return f(input)
}

func TestWebsocketFeed(t *testing.T) {
	s, ts := newTestServer(t, inference.Uniform{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() (wsMessage, statePayload) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		var state statePayload
		require.NoError(t, json.Unmarshal(msg.Payload, &state))
		return msg, state
	}

	msg, state := read()
	require.Equal(t, "state", msg.Type)
	require.Equal(t, 0, state.Ply)
	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/move", apiMove{Row: 7, Col: 7}, nil))
	msg, state = read()
	require.Equal(t, "state", msg.Type)
	require.Equal(t, 1, state.Ply)
	require.Equal(t, game.Move{Row: 7, Col: 7}, *state.LastMove)
}
