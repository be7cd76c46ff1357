package densevec

import (
	"runtime"
	"sync"
	"time"

	set3 "github.com/TomTonic/Set3"

	"github.com/xDarkicex/densevec/internal/graph"
	"github.com/xDarkicex/densevec/internal/memory"
	"github.com/xDarkicex/densevec/internal/metric"
	"github.com/xDarkicex/densevec/internal/obs"
	"github.com/xDarkicex/densevec/internal/scalar"
)

// Index is a single ANN index over vectors of one fixed dimensionality.
// Add, Search, and Remove are safe for concurrent use; concurrent callers
// pass distinct thread ids in [0, maxThreads) from Reserve.
type Index struct {
	cfg         Config
	graph       *graph.Graph
	vectors     *vectorStore
	keys        *keyMap
	kernel      metric.Func
	bytesPerVec int
	metrics     *obs.Metrics
	prefetch    Prefetcher

	viewMu   sync.Mutex
	viewMap  *memory.Map
	readOnly bool
}

// New creates an empty index from the given options.
func New(opts ...Option) (*Index, error) {
	var cfg Config
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, misconfigured("%v", err)
		}
	}
	cfg.defaults()
	if cfg.Dimensions <= 0 {
		return nil, misconfigured("dimensions not set")
	}
	if !scalar.Valid(scalar.Kind(cfg.Scalar)) {
		return nil, misconfigured("invalid storage scalar %s", cfg.Scalar)
	}
	if !scalar.ValidKey(scalar.Kind(cfg.KeyKind)) {
		return nil, misconfigured("invalid key kind %s", cfg.KeyKind)
	}
	if !scalar.ValidSlot(scalar.Kind(cfg.SlotKind)) {
		return nil, misconfigured("invalid slot kind %s", cfg.SlotKind)
	}
	if cfg.Multi && cfg.Overwrite {
		return nil, misconfigured("overwrite policy conflicts with multi-vector mode")
	}

	kernel, err := metric.Resolve(metric.Kind(cfg.Metric), scalar.Kind(cfg.Scalar), cfg.Dimensions)
	if err != nil {
		return nil, misconfigured("%v", err)
	}
	bpv, err := scalar.VectorBytes(scalar.Kind(cfg.Scalar), cfg.Dimensions)
	if err != nil {
		return nil, misconfigured("%v", err)
	}

	keyBytes, _ := scalar.Kind(cfg.KeyKind).Bytes()
	slotBytes, _ := scalar.Kind(cfg.SlotKind).Bytes()

	ix := &Index{
		cfg:         cfg,
		vectors:     newVectorStore(bpv),
		keys:        newKeyMap(cfg.Multi),
		kernel:      kernel,
		bytesPerVec: bpv,
	}
	ix.prefetch = ix.defaultPrefetch
	if cfg.Prefetcher != nil {
		ix.prefetch = cfg.Prefetcher
	}
	if cfg.MetricsEnabled {
		ix.metrics = obs.Shared()
	}

	g, err := graph.New(graph.Config{
		Connectivity:     cfg.Connectivity,
		ConnectivityBase: cfg.ConnectivityBase,
		ExpansionAdd:     cfg.ExpansionAdd,
		ExpansionSearch:  cfg.ExpansionSearch,
		KeyBytes:         keyBytes,
		SlotBytes:        slotBytes,
		MaxLevelCap:      cfg.MaxLevelCap,
		Seed:             cfg.Seed,
		CapacityLimit:    cfg.FixedCapacity,
	}, ix.distanceToSlot, ix.distanceBetween, func(slots []uint32) { ix.prefetch(slots) })
	if err != nil {
		return nil, misconfigured("%v", err)
	}
	ix.graph = g

	threads := runtime.GOMAXPROCS(0)
	capacity := cfg.FixedCapacity
	if err := g.Reserve(capacity, threads); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) distanceToSlot(q []byte, s uint32) float32 {
	return ix.kernel(q, ix.vectors.at(s), ix.cfg.Dimensions)
}

func (ix *Index) distanceBetween(a, b uint32) float32 {
	return ix.kernel(ix.vectors.at(a), ix.vectors.at(b), ix.cfg.Dimensions)
}

// defaultPrefetch touches the first byte of each upcoming payload, pulling
// its leading cache line without changing observable behavior.
func (ix *Index) defaultPrefetch(slots []uint32) {
	for _, s := range slots {
		b := ix.vectors.at(s)
		_ = b[0]
	}
}

// Reserve sizes the index for capacity vectors and maxThreads concurrent
// callers. It may be called again to raise either bound.
func (ix *Index) Reserve(capacity, maxThreads int) error {
	if ix.readOnly {
		return opErr("reserve", ErrImmutable)
	}
	if maxThreads <= 0 {
		return opErr("reserve", misconfigured("max threads must be positive"))
	}
	return ix.graph.Reserve(capacity, maxThreads)
}

// Add inserts a vector under key. In single-vector mode a duplicate key is
// rejected with ErrDuplicateKey, or tombstones the previous vector when the
// index was opened with WithOverwrite. In multi-vector mode every add
// appends. Returns the slot assigned to the new vector.
func (ix *Index) Add(thread int, key uint64, vector []float32) (uint32, error) {
	if ix.readOnly {
		return 0, opErr("add", ErrImmutable)
	}
	if len(vector) != ix.cfg.Dimensions {
		return 0, opErr("add", misconfigured("vector has %d dimensions, index has %d", len(vector), ix.cfg.Dimensions))
	}

	if !ix.cfg.Multi {
		if old, ok := ix.keys.get(key); ok {
			if !ix.cfg.Overwrite {
				return 0, opErr("add", ErrDuplicateKey)
			}
			ix.keys.removeOne(key, old)
			ix.graph.Tombstone(old)
		}
	}

	q := make([]byte, ix.bytesPerVec)
	scalar.FromF32(q, vector, scalar.Kind(ix.cfg.Scalar))

	slot, err := ix.graph.Add(thread, key, q, func(s uint32) error {
		copy(ix.vectors.ensure(s), q)
		return nil
	})
	if err != nil {
		return 0, opErr("add", err)
	}
	ix.keys.add(key, slot)
	if ix.metrics != nil {
		ix.metrics.VectorInserts.Inc()
	}
	return slot, nil
}

// Add64 is Add for float64 input; components are narrowed before storage.
func (ix *Index) Add64(thread int, key uint64, vector []float64) (uint32, error) {
	narrowed := make([]float32, len(vector))
	for i, v := range vector {
		narrowed[i] = float32(v)
	}
	return ix.Add(thread, key, narrowed)
}

// AddBatch inserts vectors[i] under keys[i] sequentially on one thread.
func (ix *Index) AddBatch(thread int, keys []uint64, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return opErr("add batch", misconfigured("%d keys for %d vectors", len(keys), len(vectors)))
	}
	for i, key := range keys {
		if _, err := ix.Add(thread, key, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// Remove tombstones every vector stored under key and reports whether any
// existed. Storage is reclaimed by Compact.
func (ix *Index) Remove(key uint64) (bool, error) {
	if ix.readOnly {
		return false, opErr("remove", ErrImmutable)
	}
	slots := ix.keys.removeAll(key)
	removed := false
	for _, s := range slots {
		if ix.graph.Tombstone(s) {
			removed = true
			if ix.metrics != nil {
				ix.metrics.VectorDeletes.Inc()
			}
		}
	}
	return removed, nil
}

// RemoveSlot tombstones a single slot and unmaps it from its key.
func (ix *Index) RemoveSlot(slot uint32) (bool, error) {
	if ix.readOnly {
		return false, opErr("remove slot", ErrImmutable)
	}
	if int(slot) >= ix.graph.Assigned() {
		return false, nil
	}
	if !ix.graph.Tombstone(slot) {
		return false, nil
	}
	ix.keys.removeOne(ix.graph.Key(slot), slot)
	if ix.metrics != nil {
		ix.metrics.VectorDeletes.Inc()
	}
	return true, nil
}

// Contains reports whether key has at least one live vector.
func (ix *Index) Contains(key uint64) bool { return ix.keys.contains(key) }

// Count returns the number of live vectors stored under key.
func (ix *Index) Count(key uint64) int { return ix.keys.count(key) }

// Get returns a copy of the vector stored under key, converted back to
// float32. In multi-vector mode it returns the first vector; use GetAll for
// the rest.
func (ix *Index) Get(key uint64) ([]float32, error) {
	slot, ok := ix.keys.get(key)
	if !ok {
		return nil, opErr("get", ErrNotFound)
	}
	out := make([]float32, ix.cfg.Dimensions)
	scalar.ToF32(out, ix.vectors.at(slot), scalar.Kind(ix.cfg.Scalar))
	return out, nil
}

// GetAll returns copies of every vector stored under key.
func (ix *Index) GetAll(key uint64) ([][]float32, error) {
	slots := ix.keys.all(key)
	if len(slots) == 0 {
		return nil, opErr("get", ErrNotFound)
	}
	out := make([][]float32, len(slots))
	for i, s := range slots {
		vec := make([]float32, ix.cfg.Dimensions)
		scalar.ToF32(vec, ix.vectors.at(s), scalar.Kind(ix.cfg.Scalar))
		out[i] = vec
	}
	return out, nil
}

// Search returns the k nearest live vectors to query, ascending by
// distance.
func (ix *Index) Search(thread int, query []float32, k int) (Matches, error) {
	return ix.SearchWith(thread, query, k, SearchOptions{})
}

// SearchWith is Search with per-query options.
func (ix *Index) SearchWith(thread int, query []float32, k int, opts SearchOptions) (Matches, error) {
	start := time.Now()
	if ix.metrics != nil {
		ix.metrics.SearchQueries.Inc()
	}
	out, err := ix.search(thread, query, k, opts)
	if ix.metrics != nil {
		if err != nil {
			ix.metrics.SearchErrors.Inc()
		}
		ix.metrics.SearchLatency.Observe(time.Since(start).Seconds())
	}
	return out, err
}

func (ix *Index) search(thread int, query []float32, k int, opts SearchOptions) (Matches, error) {
	if len(query) != ix.cfg.Dimensions {
		return nil, opErr("search", misconfigured("query has %d dimensions, index has %d", len(query), ix.cfg.Dimensions))
	}
	if k <= 0 {
		return nil, nil
	}

	q := make([]byte, ix.bytesPerVec)
	scalar.FromF32(q, query, scalar.Kind(ix.cfg.Scalar))

	ef := opts.Expansion
	if ef <= 0 {
		ef = ix.cfg.ExpansionSearch
	}
	internalK := k
	if ix.cfg.Multi {
		// Duplicate keys collapse below, so over-fetch to keep k distinct
		// keys likely in one pass.
		internalK = 2 * k
	}
	if ef < internalK {
		ef = internalK
	}

	var pred func(uint32) bool
	if opts.Predicate != nil {
		pred = func(s uint32) bool { return opts.Predicate(ix.graph.Key(s)) }
	}

	cands, err := ix.graph.Search(thread, q, internalK, ef, pred)
	if err != nil {
		return nil, opErr("search", err)
	}

	out := make(Matches, 0, min(k, len(cands)))
	if ix.cfg.Multi {
		seen := set3.Empty[uint64]()
		for _, c := range cands {
			key := ix.graph.Key(c.Slot)
			if seen.Contains(key) {
				continue
			}
			seen.Add(key)
			out = append(out, Match{Key: key, Distance: c.Distance, Slot: c.Slot})
			if len(out) == k {
				break
			}
		}
		return out, nil
	}
	for _, c := range cands {
		out = append(out, Match{Key: ix.graph.Key(c.Slot), Distance: c.Distance, Slot: c.Slot})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// SearchExact brute-forces the exact top-k over every live vector. It
// bypasses the graph and exists for calibration and correctness testing.
func (ix *Index) SearchExact(query []float32, k int, opts SearchOptions) (Matches, error) {
	if len(query) != ix.cfg.Dimensions {
		return nil, opErr("search exact", misconfigured("query has %d dimensions, index has %d", len(query), ix.cfg.Dimensions))
	}
	if k <= 0 {
		return nil, nil
	}
	q := make([]byte, ix.bytesPerVec)
	scalar.FromF32(q, query, scalar.Kind(ix.cfg.Scalar))

	var pred func(uint32) bool
	if opts.Predicate != nil {
		pred = func(s uint32) bool { return opts.Predicate(ix.graph.Key(s)) }
	}

	internalK := k
	if ix.cfg.Multi {
		internalK = k + ix.graph.CountPresent()
	}
	cands := ix.graph.SearchExact(q, internalK, pred)

	out := make(Matches, 0, min(k, len(cands)))
	seen := set3.Empty[uint64]()
	for _, c := range cands {
		key := ix.graph.Key(c.Slot)
		if ix.cfg.Multi {
			if seen.Contains(key) {
				continue
			}
			seen.Add(key)
		}
		out = append(out, Match{Key: key, Distance: c.Distance, Slot: c.Slot})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Len returns the number of live vectors.
func (ix *Index) Len() int { return ix.graph.CountPresent() }

// Deleted returns the number of tombstoned vectors awaiting compaction.
func (ix *Index) Deleted() int { return ix.graph.CountDeleted() }

// Capacity returns the number of reserved slots.
func (ix *Index) Capacity() int { return ix.graph.Capacity() }

// Dimensions returns the configured vector dimensionality.
func (ix *Index) Dimensions() int { return ix.cfg.Dimensions }

// MemoryUsage returns the approximate bytes held by the index.
func (ix *Index) MemoryUsage() int64 {
	return ix.graph.MemoryUsage() + ix.vectors.memoryUsage()
}

// Stats returns a point-in-time snapshot of the index.
func (ix *Index) Stats() *Stats {
	levels := levelStats(ix.graph.Levels())
	maxLevel := 0
	if _, l, ok := ix.graph.Entry(); ok {
		maxLevel = l
	}
	return &Stats{
		Size:        ix.graph.CountPresent(),
		Deleted:     ix.graph.CountDeleted(),
		Capacity:    ix.graph.Capacity(),
		Dimensions:  ix.cfg.Dimensions,
		MaxLevel:    maxLevel,
		MemoryUsage: ix.MemoryUsage(),
		Levels:      levels,
	}
}

// Close releases the file mapping of a viewed index. It is a no-op for
// owned indexes.
func (ix *Index) Close() error {
	ix.viewMu.Lock()
	defer ix.viewMu.Unlock()
	if ix.viewMap != nil {
		err := ix.viewMap.Close()
		ix.viewMap = nil
		return err
	}
	return nil
}
