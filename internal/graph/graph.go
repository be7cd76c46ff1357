// Package graph implements the layered proximity graph: a packed node tape,
// per-slot spinlocks, concurrent insertion with diversity-preserving neighbor
// selection, and bounded best-first search. It knows nothing about vector
// payloads; distances arrive through the closures the façade installs.
package graph

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/xDarkicex/densevec/internal/container"
)

// Engine-level sentinel errors. The façade re-exports these under the public
// package so errors.Is works across both.
var (
	ErrImmutable     = errors.New("index is immutable (view mode)")
	ErrFull          = errors.New("index capacity exhausted")
	ErrInvalidThread = errors.New("thread id out of range")
)

// DistanceQS computes the distance from query payload q to the vector of a
// stored slot.
type DistanceQS func(q []byte, slot uint32) float32

// DistanceSS computes the distance between the vectors of two stored slots.
type DistanceSS func(a, b uint32) float32

// Prefetcher receives the slots a search loop is about to probe and may
// issue non-binding memory hints. It must not change observable behavior.
type Prefetcher func(slots []uint32)

// NullPrefetcher does nothing.
func NullPrefetcher(slots []uint32) {}

// Config fixes the graph shape at creation time.
type Config struct {
	Connectivity     int // neighbors per node above the base layer (M)
	ConnectivityBase int // neighbors per node at the base layer (M0)
	ExpansionAdd     int
	ExpansionSearch  int
	KeyBytes         int // 4 or 8
	SlotBytes        int // 2 or 4
	MaxLevelCap      int
	Seed             int64
	CapacityLimit    int // 0 grows geometrically; otherwise adds past it fail with ErrFull
}

func (c *Config) validate() error {
	if c.Connectivity < 2 {
		return fmt.Errorf("connectivity must be at least 2, got %d", c.Connectivity)
	}
	if c.ConnectivityBase < c.Connectivity {
		return fmt.Errorf("base connectivity %d below connectivity %d", c.ConnectivityBase, c.Connectivity)
	}
	if c.ExpansionAdd <= 0 || c.ExpansionSearch <= 0 {
		return fmt.Errorf("expansion factors must be positive")
	}
	if c.KeyBytes != 4 && c.KeyBytes != 8 {
		return fmt.Errorf("key width must be 4 or 8 bytes, got %d", c.KeyBytes)
	}
	if c.SlotBytes != 2 && c.SlotBytes != 4 {
		return fmt.Errorf("slot width must be 2 or 4 bytes, got %d", c.SlotBytes)
	}
	if c.MaxLevelCap <= 0 || c.MaxLevelCap > levelMask {
		return fmt.Errorf("invalid level cap %d", c.MaxLevelCap)
	}
	return nil
}

// Graph is the HNSW engine. All exported methods are safe for concurrent
// use; concurrent callers must pass distinct thread ids.
type Graph struct {
	cfg      Config
	ml       float64 // level sampling factor, 1/ln(M)
	distQS   DistanceQS
	distSS   DistanceSS
	prefetch Prefetcher

	allocMu   sync.Mutex
	blocks    [][]byte
	blockFill int
	capacity  int
	viewData  []byte
	view      bool

	refs     atomic.Pointer[[]refSeg]
	lockSegs atomic.Pointer[[]lockSeg]

	// entry packs (present, level, slot); zero means no entry yet.
	entry        atomic.Uint64
	assigned     atomic.Uint64
	countPresent atomic.Uint64
	countDeleted atomic.Uint64

	threadMu sync.Mutex
	threads  []*threadCtx
}

type threadCtx struct {
	frontier    *container.Frontier
	top         *container.TopK
	visited     *container.Visited
	rng         *rand.Rand
	nbrBuf      []uint32
	scanBuf     []uint32
	prefetchBuf []uint32
	selBuf      []container.Candidate
	pruneBuf    []container.Candidate
	pruneSelBuf []container.Candidate
}

// New creates an empty graph.
func New(cfg Config, distQS DistanceQS, distSS DistanceSS, pf Prefetcher) (*Graph, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if pf == nil {
		pf = NullPrefetcher
	}
	g := &Graph{
		cfg:      cfg,
		ml:       1 / math.Log(float64(cfg.Connectivity)),
		distQS:   distQS,
		distSS:   distSS,
		prefetch: pf,
	}
	empty := make([]refSeg, 0)
	emptyLocks := make([]lockSeg, 0)
	g.refs.Store(&empty)
	g.lockSegs.Store(&emptyLocks)
	if err := g.Reserve(0, 1); err != nil {
		return nil, err
	}
	return g, nil
}

// Reserve sizes the slot arrays for capacity nodes and allocates per-thread
// scratch for maxThreads concurrent callers.
func (g *Graph) Reserve(capacity, maxThreads int) error {
	if g.view {
		return ErrImmutable
	}
	g.allocMu.Lock()
	if capacity > g.capacity {
		if err := g.ensureCapacity(capacity); err != nil {
			g.allocMu.Unlock()
			return err
		}
	}
	g.allocMu.Unlock()

	g.threadMu.Lock()
	defer g.threadMu.Unlock()
	for i := len(g.threads); i < maxThreads; i++ {
		ef := g.cfg.ExpansionAdd
		if g.cfg.ExpansionSearch > ef {
			ef = g.cfg.ExpansionSearch
		}
		g.threads = append(g.threads, &threadCtx{
			frontier: container.NewFrontier(ef * 2),
			top:      container.NewTopK(ef),
			visited:  container.NewVisited(ef * 4),
			rng:      rand.New(rand.NewSource(g.cfg.Seed + int64(i)*0x9e3779b9)),
			nbrBuf:   make([]uint32, 0, g.cfg.ConnectivityBase),
			scanBuf:  make([]uint32, 0, g.cfg.ConnectivityBase),
		})
	}
	return nil
}

func (g *Graph) threadCtx(thread int) (*threadCtx, error) {
	g.threadMu.Lock()
	defer g.threadMu.Unlock()
	if thread < 0 || thread >= len(g.threads) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidThread, thread, len(g.threads))
	}
	return g.threads[thread], nil
}

// sampleLevel draws a top level from the geometric distribution.
func (tc *threadCtx) sampleLevel(ml float64, levelCap int) int {
	u := tc.rng.Float64()
	for u == 0 {
		u = tc.rng.Float64()
	}
	l := int(-math.Log(u) * ml)
	if l > levelCap {
		l = levelCap
	}
	return l
}

const entryPresent = 1 << 63

func packEntry(slot uint32, level int) uint64 {
	return entryPresent | uint64(level)<<32 | uint64(slot)
}

func unpackEntry(e uint64) (uint32, int) {
	return uint32(e), int(e >> 32 & levelMask)
}

// Entry returns the current entry point, if any.
func (g *Graph) Entry() (slot uint32, level int, ok bool) {
	e := g.entry.Load()
	if e == 0 {
		return 0, 0, false
	}
	s, l := unpackEntry(e)
	return s, l, true
}

// Assigned returns the total number of slots ever assigned, live or dead.
func (g *Graph) Assigned() int { return int(g.assigned.Load()) }

// CountPresent returns the number of live nodes.
func (g *Graph) CountPresent() int { return int(g.countPresent.Load()) }

// CountDeleted returns the number of tombstoned nodes.
func (g *Graph) CountDeleted() int { return int(g.countDeleted.Load()) }

// Capacity returns the number of slots currently reserved.
func (g *Graph) Capacity() int { return g.capacity }

// Key returns the key stored on slot s.
func (g *Graph) Key(s uint32) uint64 { return g.nodeKey(g.nodeBytes(s)) }

// Level returns the top level of slot s.
func (g *Graph) Level(s uint32) int {
	l, _ := g.nodeLevel(g.nodeBytes(s))
	return l
}

// IsTombstoned reports whether slot s is logically deleted.
func (g *Graph) IsTombstoned(s uint32) bool {
	_, dead := g.nodeLevel(g.nodeBytes(s))
	return dead
}

// Tombstone marks slot s deleted, keeping its edges traversable. It reports
// whether the mark was newly set.
func (g *Graph) Tombstone(s uint32) bool {
	if g.view {
		return false
	}
	if uint64(s) >= g.assigned.Load() {
		return false
	}
	g.lock(s)
	defer g.unlock(s)
	run := g.nodeBytes(s)
	if _, dead := g.nodeLevel(run); dead {
		return false
	}
	g.markTombstone(run)
	g.countPresent.Add(^uint64(0))
	g.countDeleted.Add(1)
	return true
}

// MemoryUsage returns the approximate bytes held by the tape, slot arrays,
// and lock bitset.
func (g *Graph) MemoryUsage() int64 {
	var usage int64
	g.allocMu.Lock()
	usage += int64(len(g.blocks)) * arenaBlockLen
	g.allocMu.Unlock()
	segs := *g.refs.Load()
	usage += int64(len(segs)) * slotSegSize * 8
	usage += int64(len(segs)) * lockSegWords * 4
	return usage
}

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Level int
	Nodes int
	Edges int
}

// Levels walks the tape and aggregates per-level node and edge counts over
// live nodes.
func (g *Graph) Levels() []LevelStats {
	total := g.Assigned()
	var out []LevelStats
	buf := make([]uint32, 0, g.cfg.ConnectivityBase)
	for s := 0; s < total; s++ {
		run := g.nodeBytes(uint32(s))
		top, dead := g.nodeLevel(run)
		if dead {
			continue
		}
		for len(out) <= top {
			out = append(out, LevelStats{Level: len(out)})
		}
		for l := 0; l <= top; l++ {
			out[l].Nodes++
			out[l].Edges += len(g.neighbors(run, l, buf))
		}
	}
	return out
}
