package mcts

import (
	"sync/atomic"
	"time"
)

// SearchMetrics describes one RunSimulations batch.
type SearchMetrics struct {
	StartTime   time.Time
	Duration    time.Duration
	Simulations int64
	OracleCalls int64
	Terminals   int64
	TreeReused  bool
}

type Collector interface {
	Start()
	AddSimulation()
	AddOracleCall()
	AddTerminal()
	ReusedTree()
	Complete() SearchMetrics
}

type metricsCollector struct {
	startTime   time.Time
	simulations atomic.Int64
	oracleCalls atomic.Int64
	terminals   atomic.Int64
	treeReused  atomic.Bool
}

func NewCollector() Collector {
	return &metricsCollector{}
}

// Start resets the counters. Tree reuse is reported by Commit before the
// batch begins, so it is cleared by Complete instead.
func (m *metricsCollector) Start() {
	m.startTime = time.Now()
	m.simulations.Store(0)
	m.oracleCalls.Store(0)
	m.terminals.Store(0)
}

func (m *metricsCollector) AddSimulation() {
	m.simulations.Add(1)
}

func (m *metricsCollector) AddOracleCall() {
	m.oracleCalls.Add(1)
}

func (m *metricsCollector) AddTerminal() {
	m.terminals.Add(1)
}

func (m *metricsCollector) ReusedTree() {
	m.treeReused.Store(true)
}

func (m *metricsCollector) Complete() SearchMetrics {
	return SearchMetrics{
		StartTime:   m.startTime,
		Duration:    time.Since(m.startTime),
		Simulations: m.simulations.Load(),
		OracleCalls: m.oracleCalls.Load(),
		Terminals:   m.terminals.Load(),
		TreeReused:  m.treeReused.Swap(false),
	}
}

type noMetricsCollector struct{}

func NewNoMetricsCollector() Collector {
	return &noMetricsCollector{}
}

func (m *noMetricsCollector) Start()                  {}
func (m *noMetricsCollector) AddSimulation()          {}
func (m *noMetricsCollector) AddOracleCall()          {}
func (m *noMetricsCollector) AddTerminal()            {}
func (m *noMetricsCollector) ReusedTree()             {}
func (m *noMetricsCollector) Complete() SearchMetrics { return SearchMetrics{} }
