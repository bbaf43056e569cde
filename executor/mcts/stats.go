package mcts

import (
	"github.com/brensch/gomokuzero/game"
)

type ChildStats struct {
	Move   game.Move `json:"move"`
	Visits int       `json:"visits"`
	// Value is the mean evaluation for the player making Move.
	Value float64 `json:"value"`
	Prior float64 `json:"prior"`
}

type RootStats struct {
	Ply    int `json:"ply"`
	Visits int `json:"visits"`
	// Value is the mean evaluation for the side to move.
	Value    float64      `json:"value"`
	Children []ChildStats `json:"children"`
}

// RootStats summarises the explored children of the current node in slot order.
func (t *Tree) RootStats() RootStats {
	if t.current == nil {
		return RootStats{}
	}
	stats := RootStats{
		Ply:    t.current.ply,
		Visits: t.current.visits,
		Value:  -t.current.Mean(),
	}
	for _, s := range t.current.slots {
		if s.Node == nil {
			continue
		}
		stats.Children = append(stats.Children, ChildStats{
			Move:   s.Move,
			Visits: s.Node.visits,
			Value:  s.Node.Mean(),
			Prior:  s.Prior,
		})
	}
	return stats
}

// VisitDistribution returns child visit shares indexed by game.Move.Index.
// It is all zeros before any simulation.
func (t *Tree) VisitDistribution() []float32 {
	dist := make([]float32, game.PolicySize)
	if t.current == nil {
		return dist
	}
	total := 0
	for _, s := range t.current.slots {
		if s.Node != nil {
			total += s.Node.visits
		}
	}
	if total == 0 {
		return dist
	}
	for _, s := range t.current.slots {
		if s.Node != nil {
			dist[s.Move.Index()] = float32(s.Node.visits) / float32(total)
		}
	}
	return dist
}
