package performance

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2lab-ai/hal9go/core"
)

func TestShardedMapInsertGetRemove(t *testing.T) {
	m := NewShardedMap[string](64)

	id1, id2 := core.NewUnitID(1), core.NewUnitID(2)
	_, replaced := m.Insert(id1, "one")
	assert.False(t, replaced)
	m.Insert(id2, "two")

	assert.Equal(t, 2, m.Len())
	v, ok := m.Get(id1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	removed, ok := m.Remove(id1)
	assert.True(t, ok)
	assert.Equal(t, "one", removed)
	assert.Equal(t, 1, m.Len())
	assert.False(t, m.Contains(id1))
}

func TestShardedMapLenAfterInsertsAndRemoves(t *testing.T) {
	m := NewShardedMap[int](64)
	const n = 1000
	const removals = 400

	for i := 1; i <= n; i++ {
		m.Insert(core.NewUnitID(uint32(i)), i)
	}
	for i := 1; i <= removals; i++ {
		m.Remove(core.NewUnitID(uint32(i)))
	}
	assert.Equal(t, n-removals, m.Len())
}

func TestShardedMapReplaceDoesNotGrow(t *testing.T) {
	m := NewShardedMap[int](8)
	id := core.NewUnitID(7)
	m.Insert(id, 1)
	prev, replaced := m.Insert(id, 2)
	assert.True(t, replaced)
	assert.Equal(t, 1, prev)
	assert.Equal(t, 1, m.Len())
}

func TestShardedMapConcurrentAccess(t *testing.T) {
	m := NewShardedMap[uint32](1024)
	const writers = 8
	const perWriter = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base uint32) {
			defer wg.Done()
			for i := uint32(0); i < perWriter; i++ {
				id := core.NewUnitID(base*perWriter + i + 1)
				m.Insert(id, i)
				m.Get(id)
			}
		}(uint32(w))
	}
	wg.Wait()
	assert.Equal(t, writers*perWriter, m.Len())
}

func TestShardedMapRange(t *testing.T) {
	m := NewShardedMap[int](16)
	for i := 1; i <= 20; i++ {
		m.Insert(core.NewUnitID(uint32(i)), i)
	}

	visited := 0
	m.Range(func(id core.UnitID, v int) bool {
		visited++
		return true
	})
	assert.Equal(t, 20, visited)

	// Early exit stops iteration.
	visited = 0
	m.Range(func(id core.UnitID, v int) bool {
		visited++
		return visited < 5
	})
	assert.Equal(t, 5, visited)
}

func TestShardedMapClear(t *testing.T) {
	m := NewShardedMap[int](16)
	for i := 1; i <= 10; i++ {
		m.Insert(core.NewUnitID(uint32(i)), i)
	}
	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestMetricsSnapshot(t *testing.T) {
	metrics := NewMetrics()
	metrics.IncUnits(10)
	metrics.IncSignals(50)
	metrics.AddProcessingTime(1000)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(10), snap.UnitsProcessed)
	assert.Equal(t, uint64(50), snap.SignalsSent)
	assert.InDelta(t, 100.0, snap.AvgTimePerUnitUs(), 1e-9)
	assert.InDelta(t, 5.0, snap.SignalsPerUnit(), 1e-9)

	metrics.Reset()
	assert.Equal(t, uint64(0), metrics.Snapshot().UnitsProcessed)
	assert.Equal(t, 0.0, metrics.Snapshot().AvgTimePerUnitUs())
}
