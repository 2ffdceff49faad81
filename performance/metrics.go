package performance

import "sync/atomic"

// Metrics are the orchestrator's hot-path counters. Every field is an
// atomic so recording never takes a lock.
type Metrics struct {
	unitsProcessed   atomic.Uint64
	signalsSent      atomic.Uint64
	connectionsMade  atomic.Uint64
	discoveryCycles  atomic.Uint64
	gradientsApplied atomic.Uint64
	processingTimeUs atomic.Uint64
}

// NewMetrics creates zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncUnits adds processed unit activations.
func (m *Metrics) IncUnits(n uint64) { m.unitsProcessed.Add(n) }

// IncSignals adds sent signals.
func (m *Metrics) IncSignals(n uint64) { m.signalsSent.Add(n) }

// IncConnections adds created connections.
func (m *Metrics) IncConnections(n uint64) { m.connectionsMade.Add(n) }

// IncDiscoveryCycles counts one completed discovery pass.
func (m *Metrics) IncDiscoveryCycles() { m.discoveryCycles.Add(1) }

// IncGradients adds applied gradients.
func (m *Metrics) IncGradients(n uint64) { m.gradientsApplied.Add(n) }

// AddProcessingTime accumulates processing time in microseconds.
func (m *Metrics) AddProcessingTime(us uint64) { m.processingTimeUs.Add(us) }

// MetricsSnapshot is a point-in-time copy with derived averages.
type MetricsSnapshot struct {
	UnitsProcessed   uint64 `json:"units_processed"`
	SignalsSent      uint64 `json:"signals_sent"`
	ConnectionsMade  uint64 `json:"connections_made"`
	DiscoveryCycles  uint64 `json:"discovery_cycles"`
	GradientsApplied uint64 `json:"gradients_applied"`
	ProcessingTimeUs uint64 `json:"processing_time_us"`
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UnitsProcessed:   m.unitsProcessed.Load(),
		SignalsSent:      m.signalsSent.Load(),
		ConnectionsMade:  m.connectionsMade.Load(),
		DiscoveryCycles:  m.discoveryCycles.Load(),
		GradientsApplied: m.gradientsApplied.Load(),
		ProcessingTimeUs: m.processingTimeUs.Load(),
	}
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.unitsProcessed.Store(0)
	m.signalsSent.Store(0)
	m.connectionsMade.Store(0)
	m.discoveryCycles.Store(0)
	m.gradientsApplied.Store(0)
	m.processingTimeUs.Store(0)
}

// AvgTimePerUnitUs is the mean processing time per activation.
func (s MetricsSnapshot) AvgTimePerUnitUs() float64 {
	if s.UnitsProcessed == 0 {
		return 0
	}
	return float64(s.ProcessingTimeUs) / float64(s.UnitsProcessed)
}

// SignalsPerUnit is the mean fan-out per activation.
func (s MetricsSnapshot) SignalsPerUnit() float64 {
	if s.UnitsProcessed == 0 {
		return 0
	}
	return float64(s.SignalsSent) / float64(s.UnitsProcessed)
}
