// Package emergence turns an unassigned pool of units into a hierarchy.
// Units discover compatible peers pairwise, cluster under one of three
// strategies, and the resulting clusters - ordered fastest first - become
// the emergent layers. Everything is driven by a seeded source so the same
// seed, units and strategy always reproduce the same structure.
package emergence

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/2lab-ai/hal9go/core"
	"github.com/2lab-ai/hal9go/topology"
)

// UnitProfile is the intrinsic character of one unit entering discovery.
type UnitProfile struct {
	ID         core.UnitID `json:"id"`
	Speed      float64     `json:"speed"`
	Complexity float64     `json:"complexity"`
}

// Connection is a discovered peer relation with its compatibility score.
type Connection struct {
	A             core.UnitID `json:"a"`
	B             core.UnitID `json:"b"`
	Compatibility float64     `json:"compatibility"`
}

// Compatibility scores how well two units work together: identical speed
// and complexity score 1, with speed differences weighing harder than
// complexity differences.
func Compatibility(a, b UnitProfile) float64 {
	return core.Clamp01(1 - 0.5*math.Abs(a.Speed-b.Speed) - 0.3*math.Abs(a.Complexity-b.Complexity))
}

const (
	compatibilityFloor = 0.5
	discoveryChance    = 0.4
)

// GenerateProfiles produces n random unit profiles from ids and a seeded
// source. Used by experiments and tests that need reproducible pools.
func GenerateProfiles(ids []core.UnitID, rng *rand.Rand) []UnitProfile {
	profiles := make([]UnitProfile, 0, len(ids))
	for _, id := range ids {
		profiles = append(profiles, UnitProfile{
			ID:         id,
			Speed:      rng.Float64(),
			Complexity: rng.Float64(),
		})
	}
	return profiles
}

// Discover runs pairwise compatibility discovery over the pool. Two units
// become neighbours when their compatibility clears the floor AND the
// seeded discovery draw clears its threshold - discovery is probabilistic
// by design, so even perfectly compatible units sometimes miss each other.
// Pairs are visited in index order so the draw sequence is reproducible.
func Discover(profiles []UnitProfile, rng *rand.Rand) []Connection {
	var connections []Connection
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			compat := Compatibility(profiles[i], profiles[j])
			draw := rng.Float64()
			if compat > compatibilityFloor && draw > discoveryChance {
				connections = append(connections, Connection{
					A:             profiles[i].ID,
					B:             profiles[j].ID,
					Compatibility: compat,
				})
			}
		}
	}
	return connections
}

// DiscoverSpatial is Discover restricted to pairs within radius of each
// other in the spatial index, cutting the candidate set from all pairs to
// local neighbourhoods. The per-pair draw is made positionally (from the
// pair indices) rather than sequentially, so pruning does not shift the
// random sequence of surviving pairs.
func DiscoverSpatial(profiles []UnitProfile, index *topology.SpatialIndex, radius float64, seed int64) []Connection {
	byID := make(map[core.UnitID]int, len(profiles))
	for i, p := range profiles {
		byID[p.ID] = i
	}

	var connections []Connection
	for i, p := range profiles {
		pos, ok := index.Position(p.ID)
		if !ok {
			continue
		}
		for _, neighbour := range index.FindWithinRadius(pos, radius) {
			j, ok := byID[neighbour]
			if !ok || j <= i {
				continue
			}
			compat := Compatibility(profiles[i], profiles[j])
			draw := pairDraw(seed, i, j)
			if compat > compatibilityFloor && draw > discoveryChance {
				connections = append(connections, Connection{
					A:             profiles[i].ID,
					B:             profiles[j].ID,
					Compatibility: compat,
				})
			}
		}
	}
	return connections
}

// pairDraw derives a stable pseudo-random draw for one (i,j) pair.
func pairDraw(seed int64, i, j int) float64 {
	h := uint64(seed)*2654435761 ^ uint64(i)*0x9e3779b9 ^ uint64(j)*0x85ebca6b
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return float64(h%1000) / 1000.0
}

// Cluster is one emergent grouping of units.
type Cluster struct {
	Members  []core.UnitID `json:"members"`
	AvgSpeed float64       `json:"avg_speed"`
}

// Result is the outcome of one self-organisation run. Clusters are ordered
// by average speed descending: the fastest cluster becomes layer 1.
type Result struct {
	Strategy    core.ClusteringStrategy `json:"strategy"`
	Clusters    []Cluster               `json:"clusters"`
	Connections []Connection            `json:"connections"`
	// Assignment maps every unit to its cluster index. The partition is
	// total: every unit appears exactly once.
	Assignment map[core.UnitID]int `json:"assignment"`
}

// SelfOrganise runs discovery and clustering over the pool under the
// configured strategy and seed. Given identical inputs the result is
// identical, connection for connection and cluster for cluster.
func SelfOrganise(profiles []UnitProfile, cfg core.SelfOrganisationConfig) (*Result, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	connections := Discover(profiles, rng)

	var clusters [][]core.UnitID
	switch cfg.Strategy {
	case core.StrategyProperties:
		clusters = clusterByProperties(profiles)
	case core.StrategyConnectivity:
		clusters = clusterByConnectivity(profiles, connections)
	case core.StrategyHybrid:
		clusters = clusterByHybrid(profiles, connections)
	default:
		return nil, fmt.Errorf("clustering strategy %q: %w", cfg.Strategy, core.ErrRuleViolation)
	}

	clusters = splitSingleton(clusters, profiles)

	speedOf := make(map[core.UnitID]float64, len(profiles))
	for _, p := range profiles {
		speedOf[p.ID] = p.Speed
	}

	result := &Result{
		Strategy:    cfg.Strategy,
		Connections: connections,
		Assignment:  make(map[core.UnitID]int, len(profiles)),
	}
	for _, members := range clusters {
		total := 0.0
		for _, id := range members {
			total += speedOf[id]
		}
		result.Clusters = append(result.Clusters, Cluster{
			Members:  members,
			AvgSpeed: total / float64(len(members)),
		})
	}

	// Fastest cluster first; the stable sort keeps clusters with equal
	// average speed in their bucket order, so ties resolve deterministically.
	sort.SliceStable(result.Clusters, func(i, j int) bool {
		return result.Clusters[i].AvgSpeed > result.Clusters[j].AvgSpeed
	})

	for idx, cluster := range result.Clusters {
		for _, id := range cluster.Members {
			result.Assignment[id] = idx
		}
	}
	return result, nil
}

// clusterByProperties buckets on (speed, complexity) ranges into at most
// six clusters.
func clusterByProperties(profiles []UnitProfile) [][]core.UnitID {
	buckets := make([][]core.UnitID, 6)
	for _, p := range profiles {
		idx := 5
		switch {
		case p.Speed > 0.8 && p.Complexity < 0.2:
			idx = 0
		case p.Speed > 0.6 && p.Complexity < 0.4:
			idx = 1
		case p.Speed > 0.4 && p.Complexity < 0.6:
			idx = 2
		case p.Speed > 0.2 && p.Complexity > 0.6:
			idx = 3
		case p.Speed < 0.3 && p.Complexity > 0.7:
			idx = 4
		}
		buckets[idx] = append(buckets[idx], p.ID)
	}
	return dropEmpty(buckets)
}

// clusterByConnectivity buckets on discovered degree: isolated, sparse,
// connected, hub.
func clusterByConnectivity(profiles []UnitProfile, connections []Connection) [][]core.UnitID {
	degree := make(map[core.UnitID]int, len(profiles))
	for _, c := range connections {
		degree[c.A]++
		degree[c.B]++
	}

	buckets := make([][]core.UnitID, 4)
	for _, p := range profiles {
		var idx int
		switch d := degree[p.ID]; {
		case d <= 3:
			idx = 0
		case d <= 6:
			idx = 1
		case d <= 10:
			idx = 2
		default:
			idx = 3
		}
		buckets[idx] = append(buckets[idx], p.ID)
	}
	return dropEmpty(buckets)
}

// clusterByHybrid scores each unit on speed, complexity and normalised
// degree, sorts, and chunks the ordering into four clusters.
func clusterByHybrid(profiles []UnitProfile, connections []Connection) [][]core.UnitID {
	degree := make(map[core.UnitID]int, len(profiles))
	for _, c := range connections {
		degree[c.A]++
		degree[c.B]++
	}

	type scored struct {
		id    core.UnitID
		score float64
	}
	n := float64(len(profiles))
	scores := make([]scored, 0, len(profiles))
	for _, p := range profiles {
		scores = append(scores, scored{
			id:    p.ID,
			score: 0.3*p.Speed + 0.3*p.Complexity + 0.4*float64(degree[p.ID])/n,
		})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score < scores[j].score })

	chunkSize := len(scores) / 4
	if chunkSize < 1 {
		chunkSize = 1
	}
	var buckets [][]core.UnitID
	for start := 0; start < len(scores); start += chunkSize {
		end := start + chunkSize
		if end > len(scores) {
			end = len(scores)
		}
		chunk := make([]core.UnitID, 0, end-start)
		for _, s := range scores[start:end] {
			chunk = append(chunk, s.id)
		}
		buckets = append(buckets, chunk)
	}
	// Fold remainder chunks into the fourth so there are never more than four.
	for len(buckets) > 4 {
		last := len(buckets) - 1
		buckets[last-1] = append(buckets[last-1], buckets[last]...)
		buckets = buckets[:last]
	}
	return buckets
}

// splitSingleton keeps the layer count at two or more: a pool that
// collapsed into one cluster is cut at its speed median.
func splitSingleton(clusters [][]core.UnitID, profiles []UnitProfile) [][]core.UnitID {
	if len(clusters) != 1 || len(clusters[0]) < 2 {
		return clusters
	}
	speedOf := make(map[core.UnitID]float64, len(profiles))
	for _, p := range profiles {
		speedOf[p.ID] = p.Speed
	}
	members := append([]core.UnitID(nil), clusters[0]...)
	sort.SliceStable(members, func(i, j int) bool {
		return speedOf[members[i]] > speedOf[members[j]]
	})
	mid := len(members) / 2
	return [][]core.UnitID{members[:mid], members[mid:]}
}

func dropEmpty(buckets [][]core.UnitID) [][]core.UnitID {
	result := buckets[:0:0]
	for _, b := range buckets {
		if len(b) > 0 {
			result = append(result, b)
		}
	}
	return result
}
