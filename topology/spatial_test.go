package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2lab-ai/hal9go/core"
)

func TestFindWithinRadiusContainsSelfAtZero(t *testing.T) {
	index := NewSpatialIndex(1.0)
	positions := []Position{
		{0, 0, 0}, {0.5, 0.5, 0.5}, {5, 5, 5}, {-3, 2, 8},
	}
	for i, pos := range positions {
		index.Insert(core.NewUnitID(uint32(i+1)), pos)
	}

	// Radius zero around every unit's own position must include the unit.
	for i, pos := range positions {
		found := index.FindWithinRadius(pos, 0)
		assert.Contains(t, found, core.NewUnitID(uint32(i+1)))
	}
}

func TestFindWithinRadius(t *testing.T) {
	index := NewSpatialIndex(1.0)
	near1 := core.NewUnitID(1)
	near2 := core.NewUnitID(2)
	far := core.NewUnitID(3)
	index.Insert(near1, Position{0, 0, 0})
	index.Insert(near2, Position{0.5, 0.5, 0.5})
	index.Insert(far, Position{5, 5, 5})

	found := index.FindWithinRadius(Position{0, 0, 0}, 1.0)
	assert.Contains(t, found, near1)
	assert.Contains(t, found, near2)
	assert.NotContains(t, found, far)
}

func TestFindKNearestOrdered(t *testing.T) {
	index := NewSpatialIndex(1.0)
	index.Insert(core.NewUnitID(1), Position{0, 0, 0})
	index.Insert(core.NewUnitID(2), Position{0.5, 0.5, 0.5})
	index.Insert(core.NewUnitID(3), Position{5, 5, 5})

	nearest := index.FindKNearest(Position{0, 0, 0}, 2)
	require.Len(t, nearest, 2)
	assert.Equal(t, core.NewUnitID(1), nearest[0].ID)
	assert.Equal(t, core.NewUnitID(2), nearest[1].ID)
	assert.LessOrEqual(t, nearest[0].Distance, nearest[1].Distance)
}

func TestFindKNearestExpandsToFarPoints(t *testing.T) {
	index := NewSpatialIndex(1.0)
	index.Insert(core.NewUnitID(1), Position{0, 0, 0})
	index.Insert(core.NewUnitID(2), Position{50, 50, 50})

	nearest := index.FindKNearest(Position{0, 0, 0}, 2)
	require.Len(t, nearest, 2, "radius doubling must eventually reach distant units")
}

func TestInsertMovesUnit(t *testing.T) {
	index := NewSpatialIndex(1.0)
	id := core.NewUnitID(1)
	index.Insert(id, Position{0, 0, 0})
	index.Insert(id, Position{9, 9, 9})

	assert.Equal(t, 1, index.Len())
	assert.Empty(t, index.FindWithinRadius(Position{0, 0, 0}, 1.0))
	assert.Contains(t, index.FindWithinRadius(Position{9, 9, 9}, 0.1), id)
}

func TestRemoveKeepsIndexConsistent(t *testing.T) {
	index := NewSpatialIndex(1.0)
	id := core.NewUnitID(1)
	index.Insert(id, Position{1, 1, 1})
	index.Remove(id)
	index.Remove(id) // second remove is a no-op

	assert.Equal(t, 0, index.Len())
	assert.Empty(t, index.FindWithinRadius(Position{1, 1, 1}, 1.0))
	_, ok := index.Position(id)
	assert.False(t, ok)
}

func TestBuilderVolumeHeuristic(t *testing.T) {
	builder := NewSpatialIndexBuilder(0)
	// 80 units in a 10×10×10 box: volume 1000, target cells 8, cell
	// volume 125, cell size 5.
	n := uint32(1)
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 5; z++ {
				builder.Add(core.NewUnitID(n), Position{
					X: float64(x) * 10 / 3, Y: float64(y) * 10 / 3, Z: float64(z) * 10 / 4,
				})
				n++
			}
		}
	}
	index := builder.Build()
	assert.Equal(t, 80, index.Len())
	assert.InDelta(t, 5.0, index.cellSize, 0.01)
}

func TestBuilderHonoursHint(t *testing.T) {
	builder := NewSpatialIndexBuilder(2.5)
	builder.Add(core.NewUnitID(1), Position{0, 0, 0})
	index := builder.Build()
	assert.Equal(t, 2.5, index.cellSize)
}
