package graph

import (
	"fmt"

	"github.com/xDarkicex/densevec/internal/scalar"
)

// The node tape packs every node into one contiguous byte run:
//
//	key (K bytes LE) | level word (2 bytes LE) | per-level neighbor blocks
//
// The level word keeps the node's top level in the low 15 bits and the
// tombstone flag in bit 15. Each per-level block is a 2-byte LE count
// followed by capacity slot fields of S bytes each; only the first count
// are meaningful. All fields are read and written unaligned.

const (
	levelMask     = 0x7fff
	tombstoneBit  = 0x8000
	arenaBlockLen = 1 << 18
)

// ref locates a node run: arena block index and byte offset. In view mode
// the block index is viewBlock and off indexes the mapped bytes directly.
type ref struct {
	block int32
	off   int32
}

const viewBlock = -1

type refSeg []ref

// nodeSize returns the tape footprint of a node at the given top level.
func (g *Graph) nodeSize(level int) int {
	base := g.cfg.KeyBytes + 2 + 2 + g.cfg.ConnectivityBase*g.cfg.SlotBytes
	return base + level*(2+g.cfg.Connectivity*g.cfg.SlotBytes)
}

// blockOff returns the offset of level l's neighbor block within a run.
func (g *Graph) blockOff(l int) int {
	head := g.cfg.KeyBytes + 2
	if l == 0 {
		return head
	}
	return head + 2 + g.cfg.ConnectivityBase*g.cfg.SlotBytes +
		(l-1)*(2+g.cfg.Connectivity*g.cfg.SlotBytes)
}

// capAt returns the neighbor capacity at level l.
func (g *Graph) capAt(l int) int {
	if l == 0 {
		return g.cfg.ConnectivityBase
	}
	return g.cfg.Connectivity
}

// nodeBytes returns the tape run of slot s. The run length is implied by
// the node's level word.
func (g *Graph) nodeBytes(s uint32) []byte {
	segs := *g.refs.Load()
	r := segs[s>>slotSegBits][s&slotSegMask]
	if r.block == viewBlock {
		return g.viewData[r.off:]
	}
	return g.blocks[r.block][r.off:]
}

// allocNode reserves the next slot and its zeroed tape run, writing the key
// and level word. Returns ErrFull when a fixed-capacity index is exhausted.
func (g *Graph) allocNode(key uint64, level int) (uint32, []byte, error) {
	s, run, err := g.allocRaw(g.nodeSize(level))
	if err != nil {
		return 0, nil, err
	}
	scalar.PutUint(run, key, g.cfg.KeyBytes)
	scalar.PutUint(run[g.cfg.KeyBytes:], uint64(level), 2)
	return s, run, nil
}

// allocRaw reserves the next slot with a zeroed run of the given size. The
// slot counter is bumped only after the run and its ref are in place, so
// concurrent readers never see a slot without backing bytes.
func (g *Graph) allocRaw(size int) (uint32, []byte, error) {
	g.allocMu.Lock()
	defer g.allocMu.Unlock()

	s := uint32(g.assigned.Load())
	if g.cfg.CapacityLimit > 0 && int(s) >= g.cfg.CapacityLimit {
		return 0, nil, ErrFull
	}
	if int(s) >= g.capacity {
		grow := g.capacity * 2
		if grow < slotSegSize {
			grow = slotSegSize
		}
		if err := g.ensureCapacity(grow); err != nil {
			return 0, nil, err
		}
	}

	if len(g.blocks) == 0 || g.blockFill+size > arenaBlockLen {
		g.blocks = append(g.blocks, make([]byte, arenaBlockLen))
		g.blockFill = 0
	}
	block := int32(len(g.blocks) - 1)
	off := int32(g.blockFill)
	g.blockFill += size

	run := g.blocks[block][off : int(off)+size]
	segs := *g.refs.Load()
	segs[s>>slotSegBits][s&slotSegMask] = ref{block: block, off: off}
	g.assigned.Add(1)
	return s, run, nil
}

// ensureCapacity extends the ref and lock segments to hold n slots. Existing
// segments are shared between the old and new headers, so readers holding an
// older header stay valid.
func (g *Graph) ensureCapacity(n int) error {
	segsNeeded := (n + slotSegSize - 1) / slotSegSize
	refs := *g.refs.Load()
	locks := *g.lockSegs.Load()
	if len(refs) >= segsNeeded {
		return nil
	}
	newRefs := make([]refSeg, segsNeeded)
	newLocks := make([]lockSeg, segsNeeded)
	copy(newRefs, refs)
	copy(newLocks, locks)
	for i := len(refs); i < segsNeeded; i++ {
		newRefs[i] = make(refSeg, slotSegSize)
		newLocks[i] = make(lockSeg, lockSegWords)
	}
	g.refs.Store(&newRefs)
	g.lockSegs.Store(&newLocks)
	g.capacity = segsNeeded * slotSegSize
	return nil
}

// nodeKey reads the key from a tape run.
func (g *Graph) nodeKey(run []byte) uint64 {
	return scalar.LoadUint(run, g.cfg.KeyBytes)
}

// nodeLevel reads the level word, returning the top level and the tombstone
// flag.
func (g *Graph) nodeLevel(run []byte) (int, bool) {
	w := scalar.LoadUint(run[g.cfg.KeyBytes:], 2)
	return int(w & levelMask), w&tombstoneBit != 0
}

// markTombstone sets the tombstone bit in the level word.
func (g *Graph) markTombstone(run []byte) {
	run[g.cfg.KeyBytes+1] |= tombstoneBit >> 8
}

// neighborCount reads the count field of level l. Torn reads from
// concurrent appends are clamped to the block capacity; out-of-range slot
// values are the reader's problem to skip, per the optimistic read protocol.
func (g *Graph) neighborCount(run []byte, l int) int {
	n := int(scalar.LoadUint(run[g.blockOff(l):], 2))
	if c := g.capAt(l); n > c {
		n = c
	}
	return n
}

// setNeighborCount publishes the count field of level l. Writers store it
// after the slot fields so readers never observe uninitialized entries.
func (g *Graph) setNeighborCount(run []byte, l, n int) {
	scalar.PutUint(run[g.blockOff(l):], uint64(n), 2)
}

// neighborAt reads slot field i of level l.
func (g *Graph) neighborAt(run []byte, l, i int) uint32 {
	off := g.blockOff(l) + 2 + i*g.cfg.SlotBytes
	return uint32(scalar.LoadUint(run[off:], g.cfg.SlotBytes))
}

// setNeighborAt writes slot field i of level l.
func (g *Graph) setNeighborAt(run []byte, l, i int, s uint32) {
	off := g.blockOff(l) + 2 + i*g.cfg.SlotBytes
	scalar.PutUint(run[off:], uint64(s), g.cfg.SlotBytes)
}

// neighbors copies level l's list into buf, skipping slots that were never
// assigned (dangling references from interrupted insertions).
func (g *Graph) neighbors(run []byte, l int, buf []uint32) []uint32 {
	n := g.neighborCount(run, l)
	buf = buf[:0]
	limit := uint32(g.assigned.Load())
	for i := 0; i < n; i++ {
		s := g.neighborAt(run, l, i)
		if s < limit {
			buf = append(buf, s)
		}
	}
	return buf
}

// Neighbors exposes the neighbor list of slot s at level l, primarily for
// stats, compaction, and tests.
func (g *Graph) Neighbors(s uint32, l int, buf []uint32) ([]uint32, error) {
	if uint64(s) >= g.assigned.Load() {
		return nil, fmt.Errorf("graph: slot %d out of range", s)
	}
	run := g.nodeBytes(s)
	top, _ := g.nodeLevel(run)
	if l > top {
		return buf[:0], nil
	}
	return g.neighbors(run, l, buf), nil
}
