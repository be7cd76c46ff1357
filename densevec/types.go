// Package densevec is an embeddable approximate-nearest-neighbor index over
// dense fixed-dimensional vectors, built on a hierarchical navigable small
// world graph. An index supports concurrent insertion and search, logical
// deletion with compaction, and a platform-neutral single-file binary form
// that can be reloaded or viewed in place without copying.
package densevec

import (
	"github.com/xDarkicex/densevec/internal/graph"
	"github.com/xDarkicex/densevec/internal/metric"
	"github.com/xDarkicex/densevec/internal/scalar"
)

// MetricKind selects the distance metric of an index.
type MetricKind uint32

const (
	MetricInnerProduct MetricKind = MetricKind(metric.InnerProduct)
	MetricCosine       MetricKind = MetricKind(metric.Cosine)
	MetricL2Squared    MetricKind = MetricKind(metric.L2Squared)
	MetricHaversine    MetricKind = MetricKind(metric.Haversine)
	MetricDivergence   MetricKind = MetricKind(metric.Divergence)
	MetricPearson      MetricKind = MetricKind(metric.Pearson)
	MetricHamming      MetricKind = MetricKind(metric.Hamming)
	MetricTanimoto     MetricKind = MetricKind(metric.Tanimoto)
	MetricSorensen     MetricKind = MetricKind(metric.Sorensen)
	MetricJaccard      MetricKind = MetricKind(metric.Jaccard)
)

// String returns the canonical lowercase name of the metric.
func (k MetricKind) String() string { return metric.Kind(k).String() }

// ScalarKind selects a storage scalar type, a key width, or a slot width.
type ScalarKind uint32

const (
	ScalarF64  ScalarKind = ScalarKind(scalar.F64)
	ScalarF32  ScalarKind = ScalarKind(scalar.F32)
	ScalarF16  ScalarKind = ScalarKind(scalar.F16)
	ScalarBF16 ScalarKind = ScalarKind(scalar.BF16)
	ScalarI8   ScalarKind = ScalarKind(scalar.I8)
	ScalarB1x8 ScalarKind = ScalarKind(scalar.B1x8)
	ScalarU64  ScalarKind = ScalarKind(scalar.U64)
	ScalarU32  ScalarKind = ScalarKind(scalar.U32)
	ScalarU16  ScalarKind = ScalarKind(scalar.U16)
)

// String returns the canonical lowercase name of the scalar kind.
func (k ScalarKind) String() string { return scalar.Kind(k).String() }

// Prefetcher receives the slots a search loop is about to probe and may
// issue non-binding memory hints. It must not change observable behavior.
type Prefetcher func(slots []uint32)

// NullPrefetcher does nothing.
func NullPrefetcher(slots []uint32) {}

// Predicate filters search results by key. Returning false drops the
// candidate from the result set; the node is still traversed.
type Predicate func(key uint64) bool

// Match is one search result.
type Match struct {
	Key      uint64
	Distance float32
	Slot     uint32
}

// Matches is a search result set, ascending by (distance, key tie-break on
// slot order).
type Matches []Match

// Keys returns the matched keys in result order.
func (m Matches) Keys() []uint64 {
	out := make([]uint64, len(m))
	for i, r := range m {
		out[i] = r.Key
	}
	return out
}

// Distances returns the matched distances in result order.
func (m Matches) Distances() []float32 {
	out := make([]float32, len(m))
	for i, r := range m {
		out[i] = r.Distance
	}
	return out
}

// SearchOptions tune a single query.
type SearchOptions struct {
	// Expansion overrides the index's search expansion factor (ef) when
	// positive. The effective value is never below k.
	Expansion int
	// Predicate filters candidates by key at the base layer.
	Predicate Predicate
}

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Level int `json:"level"`
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Stats is a point-in-time snapshot of an index.
type Stats struct {
	Size        int          `json:"size"`
	Deleted     int          `json:"deleted"`
	Capacity    int          `json:"capacity"`
	Dimensions  int          `json:"dimensions"`
	MaxLevel    int          `json:"max_level"`
	MemoryUsage int64        `json:"memory_usage"`
	Levels      []LevelStats `json:"levels"`
}

func levelStats(in []graph.LevelStats) []LevelStats {
	out := make([]LevelStats, len(in))
	for i, l := range in {
		out[i] = LevelStats{Level: l.Level, Nodes: l.Nodes, Edges: l.Edges}
	}
	return out
}
