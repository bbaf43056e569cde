package inference

import (
	"sync/atomic"
)

// Uniform is the oracle of an untrained network: equal weight on every slot
// and a constant value. It stands in when no model is configured.
type Uniform struct {
	Value float32
}

func (u Uniform) Predict(input []float32) ([]float32, float32, error) {
	policy := make([]float32, PolicySize)
	for i := range policy {
		policy[i] = 1
	}
	return policy, u.Value, nil
}

// Predictor matches mcts.Predictor without importing the search package.
type Predictor interface {
	Predict(input []float32) ([]float32, float32, error)
}

// Counting wraps a Predictor and counts calls for progress reporting.
type Counting struct {
	Predictor
	calls atomic.Int64
}

func NewCounting(p Predictor) *Counting {
	return &Counting{Predictor: p}
}

func (c *Counting) Predict(input []float32) ([]float32, float32, error) {
	c.calls.Add(1)
	return c.Predictor.Predict(input)
}

func (c *Counting) Calls() int64 {
	return c.calls.Load()
}
