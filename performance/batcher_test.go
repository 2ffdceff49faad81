package performance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2lab-ai/hal9go/core"
)

func testSignal(v uint32) (*core.Signal, core.UnitID, core.UnitID) {
	from := core.NewUnitID(v)
	to := core.NewUnitID(v + 1)
	return core.NewSignal(from, to, core.TextPayload("s")), from, to
}

func TestBatcherFlushOnSize(t *testing.T) {
	b := NewSignalBatcher(BatchConfig{
		MaxBatchSize:    3,
		MaxWait:         10 * time.Second,
		UrgentThreshold: 100,
	})

	s1, f1, t1 := testSignal(1)
	s2, f2, t2 := testSignal(2)
	s3, f3, t3 := testSignal(3)
	assert.False(t, b.Add(f1, t1, s1))
	assert.False(t, b.Add(f2, t2, s2))
	assert.True(t, b.Add(f3, t3, s3), "third add reaches max_batch and must flush")

	batch := b.TakeBatch()
	require.Len(t, batch, 3)
	assert.Equal(t, 0, b.QueueSize())

	// Insertion order preserved.
	assert.Equal(t, s1.ID, batch[0].Signal.ID)
	assert.Equal(t, s2.ID, batch[1].Signal.ID)
	assert.Equal(t, s3.ID, batch[2].Signal.ID)
}

func TestBatcherFlushOnAge(t *testing.T) {
	b := NewSignalBatcher(BatchConfig{
		MaxBatchSize:    100,
		MaxWait:         5 * time.Millisecond,
		UrgentThreshold: 1000,
	})
	s, f, to := testSignal(1)
	assert.False(t, b.Add(f, to, s))

	time.Sleep(10 * time.Millisecond)
	assert.True(t, b.ShouldFlush(), "aged batch must flush")
}

func TestBatcherFlushOnUrgentThreshold(t *testing.T) {
	b := NewSignalBatcher(BatchConfig{
		MaxBatchSize:    1000,
		MaxWait:         10 * time.Second,
		UrgentThreshold: 5,
	})
	var flushed bool
	for i := uint32(1); i <= 5; i++ {
		s, f, to := testSignal(i)
		flushed = b.Add(f, to, s)
	}
	assert.True(t, flushed, "urgent threshold must force a flush")
}

func TestBatcherStatsAccounting(t *testing.T) {
	b := NewSignalBatcher(BatchConfig{
		MaxBatchSize:    2,
		MaxWait:         time.Second,
		UrgentThreshold: 100,
	})

	total := 0
	for i := uint32(1); i <= 7; i++ {
		s, f, to := testSignal(i)
		b.Add(f, to, s)
	}
	for b.QueueSize() > 0 {
		total += len(b.TakeBatch())
	}

	stats := b.Stats()
	assert.Equal(t, uint64(7), stats.TotalSignals)
	assert.Equal(t, uint64(total), stats.TotalSignals, "emitted total equals sum of batch sizes")
	assert.Equal(t, uint64(4), stats.TotalBatches)
	assert.InDelta(t, 7.0/4.0, stats.AvgBatchSize, 1e-9)
}

func TestPriorityBatcherDrainOrder(t *testing.T) {
	p := NewPriorityBatcher(core.BatcherProfileDefault)

	// Fill each priority queue past its batch size so all three flush.
	for i := uint32(0); i < 1000; i++ {
		s, f, to := testSignal(i + 1)
		p.Add(f, to, s, core.PriorityLow)
	}
	for i := uint32(0); i < 100; i++ {
		s, f, to := testSignal(i + 2000)
		p.Add(f, to, s, core.PriorityNormal)
	}
	for i := uint32(0); i < 10; i++ {
		s, f, to := testSignal(i + 3000)
		p.Add(f, to, s, core.PriorityHigh)
	}

	batches := p.TakeReadyBatches()
	require.NotEmpty(t, batches)
	assert.Equal(t, core.PriorityHigh, batches[0].Priority)
	for i := 1; i < len(batches); i++ {
		assert.GreaterOrEqual(t, int(batches[i-1].Priority), int(batches[i].Priority),
			"high priority batches drain before lower ones")
	}
}

func TestPriorityBatcherScenarioNormalSizeThree(t *testing.T) {
	// A normal-priority batcher with max_batch 3 and a very long wait:
	// the third add reports flush and exactly one normal batch of three
	// comes out.
	b := NewSignalBatcher(BatchConfig{
		MaxBatchSize:    3,
		MaxWait:         10 * time.Second,
		UrgentThreshold: 1000,
	})
	p := &PriorityBatcher{
		high:   NewSignalBatcher(LowLatencyBatchConfig()),
		normal: b,
		low:    NewSignalBatcher(HighThroughputBatchConfig()),
	}

	var shouldFlush bool
	for i := uint32(1); i <= 3; i++ {
		s, f, to := testSignal(i)
		shouldFlush = p.Add(f, to, s, core.PriorityNormal)
	}
	assert.True(t, shouldFlush)

	batches := p.TakeReadyBatches()
	require.Len(t, batches, 1)
	assert.Equal(t, core.PriorityNormal, batches[0].Priority)
	assert.Len(t, batches[0].Signals, 3)
}

func TestPriorityBatcherDrainAll(t *testing.T) {
	p := NewPriorityBatcher(core.BatcherProfileHighThroughput)
	for i := uint32(1); i <= 5; i++ {
		s, f, to := testSignal(i)
		p.Add(f, to, s, core.PriorityLow)
	}

	// Nothing is ready (small count, fresh batch), but DrainAll empties it.
	drained := p.DrainAll()
	total := 0
	for _, batch := range drained {
		total += len(batch.Signals)
	}
	assert.Equal(t, 5, total)
	assert.Equal(t, 0, p.QueueSizes()[core.PriorityLow.String()])
}

func TestConfigsForProfile(t *testing.T) {
	high, normal, low := ConfigsForProfile(core.BatcherProfileDefault)
	assert.Equal(t, 10, high.MaxBatchSize)
	assert.Equal(t, time.Millisecond, high.MaxWait)
	assert.Equal(t, 50, high.UrgentThreshold)
	assert.Equal(t, 100, normal.MaxBatchSize)
	assert.Equal(t, 10*time.Millisecond, normal.MaxWait)
	assert.Equal(t, 1000, normal.UrgentThreshold)
	assert.Equal(t, 1000, low.MaxBatchSize)
	assert.Equal(t, 50*time.Millisecond, low.MaxWait)
	assert.Equal(t, 10000, low.UrgentThreshold)
}
