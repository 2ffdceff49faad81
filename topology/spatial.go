package topology

import (
	"math"
	"sort"
	"sync"

	"github.com/2lab-ai/hal9go/core"
)

// Position is a point in the 3-dimensional space units are scattered
// through at insertion. Positions are not user-visible; they only index
// neighbour discovery.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceSquared avoids the square root when only comparing distances.
func (p Position) DistanceSquared(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// Distance is the Euclidean distance to another point.
func (p Position) Distance(other Position) float64 {
	return math.Sqrt(p.DistanceSquared(other))
}

// gridCell addresses one cube of the spatial grid.
type gridCell struct {
	x, y, z int32
}

// SpatialIndex is a grid-cell index over unit positions supporting
// radius queries in O(k) of the candidates touched, and k-nearest queries
// by radius-doubling expansion. It replaces the O(n²) all-pairs scan
// during discovery.
type SpatialIndex struct {
	mu        sync.RWMutex
	cellSize  float64
	grid      map[gridCell]map[core.UnitID]struct{}
	positions map[core.UnitID]Position
}

// NewSpatialIndex creates an index with a fixed cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = 1.0
	}
	return &SpatialIndex{
		cellSize:  cellSize,
		grid:      make(map[gridCell]map[core.UnitID]struct{}),
		positions: make(map[core.UnitID]Position),
	}
}

// Insert places a unit at a position, moving it if already present. The
// index stays consistent with the unit map under every insertion and
// removal; the orchestrator performs both under its unit bookkeeping.
func (s *SpatialIndex) Insert(id core.UnitID, pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.positions[id]; ok {
		s.removeFromCell(id, s.cellOf(old))
	}
	cell := s.cellOf(pos)
	if s.grid[cell] == nil {
		s.grid[cell] = make(map[core.UnitID]struct{})
	}
	s.grid[cell][id] = struct{}{}
	s.positions[id] = pos
}

// Remove drops a unit from the index.
func (s *SpatialIndex) Remove(id core.UnitID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return
	}
	delete(s.positions, id)
	s.removeFromCell(id, s.cellOf(pos))
}

func (s *SpatialIndex) removeFromCell(id core.UnitID, cell gridCell) {
	if members, ok := s.grid[cell]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(s.grid, cell)
		}
	}
}

// Position returns a unit's position.
func (s *SpatialIndex) Position(id core.UnitID) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	return pos, ok
}

// Len returns the number of indexed units.
func (s *SpatialIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// FindWithinRadius returns every unit within radius of center, inclusive
// of the boundary. A zero radius returns exactly the units sitting on the
// center point.
func (s *SpatialIndex) FindWithinRadius(center Position, radius float64) []core.UnitID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findWithinRadiusLocked(center, radius)
}

func (s *SpatialIndex) findWithinRadiusLocked(center Position, radius float64) []core.UnitID {
	if radius < 0 {
		return nil
	}
	radiusSquared := radius * radius

	minCell := s.cellOf(Position{center.X - radius, center.Y - radius, center.Z - radius})
	maxCell := s.cellOf(Position{center.X + radius, center.Y + radius, center.Z + radius})

	var results []core.UnitID
	for x := minCell.x; x <= maxCell.x; x++ {
		for y := minCell.y; y <= maxCell.y; y++ {
			for z := minCell.z; z <= maxCell.z; z++ {
				for id := range s.grid[gridCell{x, y, z}] {
					if s.positions[id].DistanceSquared(center) <= radiusSquared {
						results = append(results, id)
					}
				}
			}
		}
	}
	return results
}

// Neighbour pairs a unit with its distance from a query point.
type Neighbour struct {
	ID       core.UnitID
	Distance float64
}

// FindKNearest returns up to k nearest units ordered by distance, found by
// doubling the search radius until enough candidates turn up or the whole
// populated space has been covered.
func (s *SpatialIndex) FindKNearest(center Position, k int) []Neighbour {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.positions) == 0 {
		return nil
	}

	radius := s.cellSize
	limit := s.maxExtent(center)
	var ids []core.UnitID
	for {
		ids = s.findWithinRadiusLocked(center, radius)
		if len(ids) >= k || radius > limit {
			break
		}
		radius *= 2
	}

	neighbours := make([]Neighbour, 0, len(ids))
	for _, id := range ids {
		neighbours = append(neighbours, Neighbour{
			ID:       id,
			Distance: s.positions[id].Distance(center),
		})
	}
	sort.Slice(neighbours, func(i, j int) bool {
		if neighbours[i].Distance != neighbours[j].Distance {
			return neighbours[i].Distance < neighbours[j].Distance
		}
		return neighbours[i].ID.Value() < neighbours[j].ID.Value()
	})
	if len(neighbours) > k {
		neighbours = neighbours[:k]
	}
	return neighbours
}

// maxExtent bounds radius doubling: once the radius covers the farthest
// indexed point there is nothing more to find.
func (s *SpatialIndex) maxExtent(center Position) float64 {
	extent := s.cellSize
	for _, pos := range s.positions {
		if d := pos.Distance(center); d > extent {
			extent = d
		}
	}
	return extent
}

func (s *SpatialIndex) cellOf(pos Position) gridCell {
	return gridCell{
		x: int32(math.Floor(pos.X / s.cellSize)),
		y: int32(math.Floor(pos.Y / s.cellSize)),
		z: int32(math.Floor(pos.Z / s.cellSize)),
	}
}

// SpatialIndexBuilder accumulates positions and picks the cell size from
// the data: cell volume ≈ total bounding volume / (n/10), so an average
// cell holds about ten units.
type SpatialIndexBuilder struct {
	entries  []builderEntry
	sizeHint float64
}

type builderEntry struct {
	id  core.UnitID
	pos Position
}

// NewSpatialIndexBuilder creates a builder. A positive sizeHint overrides
// the volume heuristic.
func NewSpatialIndexBuilder(sizeHint float64) *SpatialIndexBuilder {
	return &SpatialIndexBuilder{sizeHint: sizeHint}
}

// Add records a unit position.
func (b *SpatialIndexBuilder) Add(id core.UnitID, pos Position) *SpatialIndexBuilder {
	b.entries = append(b.entries, builderEntry{id: id, pos: pos})
	return b
}

// Build constructs the index.
func (b *SpatialIndexBuilder) Build() *SpatialIndex {
	index := NewSpatialIndex(b.cellSize())
	for _, e := range b.entries {
		index.Insert(e.id, e.pos)
	}
	return index
}

func (b *SpatialIndexBuilder) cellSize() float64 {
	if b.sizeHint > 0 {
		return b.sizeHint
	}
	if len(b.entries) == 0 {
		return 1.0
	}

	min, max := b.entries[0].pos, b.entries[0].pos
	for _, e := range b.entries[1:] {
		min.X = math.Min(min.X, e.pos.X)
		min.Y = math.Min(min.Y, e.pos.Y)
		min.Z = math.Min(min.Z, e.pos.Z)
		max.X = math.Max(max.X, e.pos.X)
		max.Y = math.Max(max.Y, e.pos.Y)
		max.Z = math.Max(max.Z, e.pos.Z)
	}

	volume := (max.X - min.X) * (max.Y - min.Y) * (max.Z - min.Z)
	targetCells := float64(len(b.entries)) / 10.0
	if targetCells < 1 {
		targetCells = 1
	}
	size := math.Cbrt(volume / targetCells)
	if size < 0.1 {
		size = 0.1
	}
	return size
}
