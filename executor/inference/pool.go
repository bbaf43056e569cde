package inference

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var errNoSessions = errors.New("session pool is empty")

// session is one independently batching oracle, normally an *OnnxClient.
type session interface {
	Predict(input []float32) ([]float32, float32, error)
	Stats() RuntimeStats
	Close() error
}

type pooledSession struct {
	session
	inFlight atomic.Int64
}

// SessionPool spreads oracle requests over several sessions, sending each one
// to the session with the fewest requests in flight so that a slow GPU batch
// on one session does not stall workers that could use another.
type SessionPool struct {
	sessions []*pooledSession
}

func newSessionPool(sessions []session) *SessionPool {
	p := &SessionPool{sessions: make([]*pooledSession, len(sessions))}
	for i, s := range sessions {
		p.sessions[i] = &pooledSession{session: s}
	}
	return p
}

// NewSessionPool opens n ONNX sessions of the same model.
func NewSessionPool(modelPath string, n int, cfg OnnxClientConfig) (*SessionPool, error) {
	if n <= 0 {
		n = 1
	}
	opened := make([]session, 0, n)
	for i := 0; i < n; i++ {
		c, err := NewOnnxClientWithConfig(modelPath, cfg)
		if err != nil {
			for _, s := range opened {
				_ = s.Close()
			}
			return nil, fmt.Errorf("open session %d of %d: %w", i+1, n, err)
		}
		opened = append(opened, c)
	}
	return newSessionPool(opened), nil
}

func (p *SessionPool) Predict(input []float32) ([]float32, float32, error) {
	s := p.leastBusy()
	if s == nil {
		return nil, 0, errNoSessions
	}
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	return s.Predict(input)
}

// leastBusy picks the first session with the smallest in-flight count.
func (p *SessionPool) leastBusy() *pooledSession {
	var best *pooledSession
	bestLoad := int64(0)
	for _, s := range p.sessions {
		if load := s.inFlight.Load(); best == nil || load < bestLoad {
			best, bestLoad = s, load
		}
	}
	return best
}

// Stats sums the counters of every session. LastBatchSize is the largest
// last batch across sessions.
func (p *SessionPool) Stats() RuntimeStats {
	var total RuntimeStats
	for _, s := range p.sessions {
		st := s.Stats()
		total.TotalBatches += st.TotalBatches
		total.TotalItems += st.TotalItems
		total.TotalRunNanos += st.TotalRunNanos
		total.QueueLen += st.QueueLen
		total.LastBatchSize = max(total.LastBatchSize, st.LastBatchSize)
	}
	return total.withAverages()
}

func (p *SessionPool) Close() error {
	var errs []error
	for i, s := range p.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
