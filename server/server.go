// Package server exposes a search tree over HTTP and streams the game to
// websocket clients.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/brensch/gomokuzero/executor/mcts"
	"github.com/brensch/gomokuzero/game"
)

const DefaultMaxSimulations = 100000

type Config struct {
	// Simulations is used when /api/simulate is called without a count.
	Simulations    int
	MaxSimulations int
}

type Server struct {
	cfg Config
	hub *Hub

	mu       sync.Mutex
	tree     *mcts.Tree
	lastMove *game.Move

	done      chan struct{}
	closeOnce sync.Once
}

func New(tree *mcts.Tree, cfg Config) *Server {
	if cfg.Simulations <= 0 {
		cfg.Simulations = 800
	}
	if cfg.MaxSimulations <= 0 {
		cfg.MaxSimulations = DefaultMaxSimulations
	}
	s := &Server{
		cfg:  cfg,
		hub:  NewHub(),
		tree: tree,
		done: make(chan struct{}),
	}
	go s.hub.Run(s.done)
	return s
}

// Close disconnects websocket clients.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

type apiMove struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type simulateRequest struct {
	Count int `json:"count"`
}

type statePayload struct {
	Board    [][]int        `json:"board"`
	Ply      int            `json:"ply"`
	ToMove   string         `json:"to_move"`
	Status   string         `json:"status"`
	LastMove *game.Move     `json:"last_move,omitempty"`
	Search   mcts.RootStats `json:"search"`
	Metrics  *searchMetrics `json:"metrics,omitempty"`
}

type searchMetrics struct {
	Simulations int64   `json:"simulations"`
	OracleCalls int64   `json:"oracle_calls"`
	Terminals   int64   `json:"terminals"`
	TreeReused  bool    `json:"tree_reused"`
	DurationMs  float64 `json:"duration_ms"`
}

type bestPayload struct {
	Move   game.Move `json:"move"`
	Pass   bool      `json:"pass"`
	Label  string    `json:"label"`
	Visits int       `json:"visits"`
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Get("/api/state", s.handleState)
	r.Post("/api/restart", s.handleRestart)
	r.Post("/api/simulate", s.handleSimulate)
	r.Get("/api/best", s.handleBest)
	r.Post("/api/move", s.handleMove)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		initial := wsMessage{Type: "state", Payload: mustMarshal(s.stateLocked(nil))}
		s.mu.Unlock()
		s.hub.serveWS(w, r, initial)
	})
	return r
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.stateLocked(nil))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tree.Restart(); err != nil {
		writeError(w, err)
		return
	}
	s.lastMove = nil
	s.publishLocked(nil)
	writeJSON(w, http.StatusOK, s.stateLocked(nil))
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var payload simulateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
	}
	count := payload.Count
	if count == 0 {
		count = s.cfg.Simulations
	}
	if count < 0 || count > s.cfg.MaxSimulations {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("count must be between 1 and %d", s.cfg.MaxSimulations),
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.tree.RunSimulations(count)
	m := s.tree.LastMetrics()
	if err != nil {
		writeError(w, err)
		return
	}
	s.publishLocked(&m)
	writeJSON(w, http.StatusOK, s.stateLocked(&m))
}

func (s *Server) handleBest(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := s.tree.BestMove()
	visits := 0
	for _, c := range s.tree.RootStats().Children {
		if c.Move == best {
			visits = c.Visits
			break
		}
	}
	writeJSON(w, http.StatusOK, bestPayload{Move: best, Pass: best.IsPass(), Label: best.String(), Visits: visits})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var payload apiMove
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	move := game.Move{Row: payload.Row, Col: payload.Col}
	if _, err := s.tree.Commit(move.Row, move.Col); err != nil {
		writeError(w, err)
		return
	}
	s.lastMove = &move
	log.Info().Stringer("move", move).Stringer("status", s.tree.Status()).Msg("move committed")
	s.publishLocked(nil)
	writeJSON(w, http.StatusOK, s.stateLocked(nil))
}

func (s *Server) stateLocked(m *mcts.SearchMetrics) statePayload {
	state := s.tree.Position()
	board := make([][]int, game.Dimension)
	for row := range board {
		board[row] = make([]int, game.Dimension)
		for col := range board[row] {
			board[row][col] = int(state.At(row, col))
		}
	}

	payload := statePayload{
		Board:    board,
		Ply:      state.Ply(),
		ToMove:   state.ToMove().String(),
		Status:   s.tree.Status().String(),
		LastMove: s.lastMove,
		Search:   s.tree.RootStats(),
	}
	if m != nil {
		payload.Metrics = &searchMetrics{
			Simulations: m.Simulations,
			OracleCalls: m.OracleCalls,
			Terminals:   m.Terminals,
			TreeReused:  m.TreeReused,
			DurationMs:  float64(m.Duration) / float64(time.Millisecond),
		}
	}
	return payload
}

func (s *Server) publishLocked(m *mcts.SearchMetrics) {
	s.hub.Publish("state", s.stateLocked(m))
}

// writeError maps search errors onto status codes. Illegal moves are the
// caller's fault; everything else is ours.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var oerr *mcts.OracleError
	switch {
	case errors.Is(err, game.ErrIllegalMove):
		status = http.StatusBadRequest
	case errors.Is(err, mcts.ErrGameOver):
		status = http.StatusConflict
	case errors.As(err, &oerr):
		log.Error().Err(err).Int("ply", oerr.Ply).Msg("oracle failed")
	default:
		log.Error().Err(err).Msg("search failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
