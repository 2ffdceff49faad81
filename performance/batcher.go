package performance

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/v2/queues/linkedlistqueue"

	"github.com/2lab-ai/hal9go/core"
)

// BatchConfig controls when a batcher flushes.
type BatchConfig struct {
	// MaxBatchSize flushes once this many signals are queued.
	MaxBatchSize int
	// MaxWait flushes once the oldest queued signal has waited this long.
	MaxWait time.Duration
	// UrgentThreshold flushes immediately once the queue backs up this far.
	UrgentThreshold int
}

// DefaultBatchConfig balances latency against throughput.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:    100,
		MaxWait:         10 * time.Millisecond,
		UrgentThreshold: 1000,
	}
}

// LowLatencyBatchConfig flushes small batches fast.
func LowLatencyBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:    10,
		MaxWait:         time.Millisecond,
		UrgentThreshold: 50,
	}
}

// HighThroughputBatchConfig accumulates large batches.
func HighThroughputBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:    1000,
		MaxWait:         50 * time.Millisecond,
		UrgentThreshold: 10000,
	}
}

// ConfigsForProfile maps the configured batcher profile onto the three
// per-priority configs. The high priority queue runs one notch more
// aggressive than the normal queue, except under low_latency where both
// use the low-latency config.
func ConfigsForProfile(profile core.BatcherProfile) (high, normal, low BatchConfig) {
	switch profile {
	case core.BatcherProfileLowLatency:
		return LowLatencyBatchConfig(), LowLatencyBatchConfig(), DefaultBatchConfig()
	case core.BatcherProfileHighThroughput:
		return DefaultBatchConfig(), HighThroughputBatchConfig(), HighThroughputBatchConfig()
	default:
		return LowLatencyBatchConfig(), DefaultBatchConfig(), HighThroughputBatchConfig()
	}
}

// BatchedSignal is one queued delivery.
type BatchedSignal struct {
	From     core.UnitID
	To       core.UnitID
	Signal   *core.Signal
	QueuedAt time.Time
}

// BatcherStats accumulates per-batcher throughput numbers.
type BatcherStats struct {
	TotalSignals  uint64  `json:"total_signals"`
	TotalBatches  uint64  `json:"total_batches"`
	AvgBatchSize  float64 `json:"avg_batch_size"`
	AvgWaitTimeMs float64 `json:"avg_wait_time_ms"`
}

// SignalBatcher accumulates signals and flushes them in insertion order
// when size, age or backlog demands it. It is safe for concurrent use.
type SignalBatcher struct {
	mu         sync.Mutex
	config     BatchConfig
	queue      *linkedlistqueue.Queue[BatchedSignal]
	batchStart time.Time
	stats      BatcherStats
}

// NewSignalBatcher creates a batcher with the given flush config.
func NewSignalBatcher(config BatchConfig) *SignalBatcher {
	if config.MaxBatchSize <= 0 {
		config = DefaultBatchConfig()
	}
	return &SignalBatcher{
		config: config,
		queue:  linkedlistqueue.New[BatchedSignal](),
	}
}

// Add queues a signal and reports whether the batch should flush now.
func (b *SignalBatcher) Add(from, to core.UnitID, signal *core.Signal) bool {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queue.Empty() {
		b.batchStart = now
	}
	b.queue.Enqueue(BatchedSignal{From: from, To: to, Signal: signal, QueuedAt: now})
	return b.shouldFlushLocked(now)
}

// ShouldFlush reports whether any flush condition currently holds.
func (b *SignalBatcher) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shouldFlushLocked(time.Now())
}

func (b *SignalBatcher) shouldFlushLocked(now time.Time) bool {
	size := b.queue.Size()
	if size == 0 {
		return false
	}
	if size >= b.config.UrgentThreshold {
		return true
	}
	if size >= b.config.MaxBatchSize {
		return true
	}
	return now.Sub(b.batchStart) >= b.config.MaxWait
}

// TakeBatch drains up to MaxBatchSize signals in insertion order and
// updates the stats. Remaining signals start a fresh batch window.
func (b *SignalBatcher) TakeBatch() []BatchedSignal {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.queue.Size()
	if n > b.config.MaxBatchSize {
		n = b.config.MaxBatchSize
	}
	batch := make([]BatchedSignal, 0, n)
	for i := 0; i < n; i++ {
		item, ok := b.queue.Dequeue()
		if !ok {
			break
		}
		batch = append(batch, item)
	}

	if len(batch) > 0 {
		b.stats.TotalSignals += uint64(len(batch))
		b.stats.TotalBatches++
		b.stats.AvgBatchSize = float64(b.stats.TotalSignals) / float64(b.stats.TotalBatches)

		waitMs := float64(time.Since(b.batchStart).Microseconds()) / 1000.0
		prior := float64(b.stats.TotalBatches - 1)
		b.stats.AvgWaitTimeMs = (b.stats.AvgWaitTimeMs*prior + waitMs) / float64(b.stats.TotalBatches)
	}

	if b.queue.Empty() {
		b.batchStart = time.Time{}
	} else {
		b.batchStart = time.Now()
	}
	return batch
}

// QueueSize reports how many signals are waiting.
func (b *SignalBatcher) QueueSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Size()
}

// Stats returns a copy of the accumulated stats.
func (b *SignalBatcher) Stats() BatcherStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Clear discards queued signals without counting them as delivered.
func (b *SignalBatcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.Clear()
	b.batchStart = time.Time{}
}

// ReadyBatch pairs a priority with one drained batch.
type ReadyBatch struct {
	Priority core.SignalPriority
	Signals  []BatchedSignal
}

// PriorityBatcher partitions signals across three priority queues, each
// with its own flush profile. Draining always serves high before normal
// before low.
type PriorityBatcher struct {
	high   *SignalBatcher
	normal *SignalBatcher
	low    *SignalBatcher
}

// NewPriorityBatcher creates the three-queue batcher for a profile.
func NewPriorityBatcher(profile core.BatcherProfile) *PriorityBatcher {
	high, normal, low := ConfigsForProfile(profile)
	return &PriorityBatcher{
		high:   NewSignalBatcher(high),
		normal: NewSignalBatcher(normal),
		low:    NewSignalBatcher(low),
	}
}

func (p *PriorityBatcher) batcherFor(priority core.SignalPriority) *SignalBatcher {
	switch priority {
	case core.PriorityHigh:
		return p.high
	case core.PriorityLow:
		return p.low
	default:
		return p.normal
	}
}

// Add queues a signal under its priority and reports whether that queue
// should flush.
func (p *PriorityBatcher) Add(from, to core.UnitID, signal *core.Signal, priority core.SignalPriority) bool {
	return p.batcherFor(priority).Add(from, to, signal)
}

// TakeReadyBatches drains every queue whose flush condition holds, high
// priority first.
func (p *PriorityBatcher) TakeReadyBatches() []ReadyBatch {
	var ready []ReadyBatch
	for _, entry := range []struct {
		priority core.SignalPriority
		batcher  *SignalBatcher
	}{
		{core.PriorityHigh, p.high},
		{core.PriorityNormal, p.normal},
		{core.PriorityLow, p.low},
	} {
		if entry.batcher.ShouldFlush() {
			if batch := entry.batcher.TakeBatch(); len(batch) > 0 {
				ready = append(ready, ReadyBatch{Priority: entry.priority, Signals: batch})
			}
		}
	}
	return ready
}

// DrainAll empties every queue regardless of flush conditions, high
// priority first. Used by shutdown.
func (p *PriorityBatcher) DrainAll() []ReadyBatch {
	var ready []ReadyBatch
	for _, entry := range []struct {
		priority core.SignalPriority
		batcher  *SignalBatcher
	}{
		{core.PriorityHigh, p.high},
		{core.PriorityNormal, p.normal},
		{core.PriorityLow, p.low},
	} {
		for entry.batcher.QueueSize() > 0 {
			if batch := entry.batcher.TakeBatch(); len(batch) > 0 {
				ready = append(ready, ReadyBatch{Priority: entry.priority, Signals: batch})
			} else {
				break
			}
		}
	}
	return ready
}

// Stats returns the per-priority stats keyed by priority name.
func (p *PriorityBatcher) Stats() map[string]BatcherStats {
	return map[string]BatcherStats{
		core.PriorityHigh.String():   p.high.Stats(),
		core.PriorityNormal.String(): p.normal.Stats(),
		core.PriorityLow.String():    p.low.Stats(),
	}
}

// QueueSizes reports backlog per priority.
func (p *PriorityBatcher) QueueSizes() map[string]int {
	return map[string]int{
		core.PriorityHigh.String():   p.high.QueueSize(),
		core.PriorityNormal.String(): p.normal.QueueSize(),
		core.PriorityLow.String():    p.low.QueueSize(),
	}
}
