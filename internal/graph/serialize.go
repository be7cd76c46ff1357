package graph

import (
	"fmt"
	"io"

	"github.com/xDarkicex/densevec/internal/scalar"
)

// SaveTape streams every node run to w in slot order, tombstones included.
// The byte layout on disk is identical to the in-memory layout.
func (g *Graph) SaveTape(w io.Writer) error {
	total := g.Assigned()
	for s := 0; s < total; s++ {
		run := g.nodeBytes(uint32(s))
		level, _ := g.nodeLevel(run)
		if _, err := w.Write(run[:g.nodeSize(level)]); err != nil {
			return fmt.Errorf("write node %d: %w", s, err)
		}
	}
	return nil
}

// LoadTape reads total node runs from r into an empty graph, rebuilding the
// counters and the entry point.
func (g *Graph) LoadTape(r io.Reader, total int) error {
	if g.view {
		return ErrImmutable
	}
	if g.Assigned() != 0 {
		return fmt.Errorf("graph: load into non-empty index")
	}
	head := make([]byte, g.cfg.KeyBytes+2)
	for i := 0; i < total; i++ {
		if _, err := io.ReadFull(r, head); err != nil {
			return fmt.Errorf("read node %d head: %w", i, err)
		}
		w := scalar.LoadUint(head[g.cfg.KeyBytes:], 2)
		level := int(w & levelMask)
		dead := w&tombstoneBit != 0
		_, run, err := g.allocRaw(g.nodeSize(level))
		if err != nil {
			return err
		}
		copy(run, head)
		if _, err := io.ReadFull(r, run[len(head):]); err != nil {
			return fmt.Errorf("read node %d body: %w", i, err)
		}
		if dead {
			g.countDeleted.Add(1)
		} else {
			g.countPresent.Add(1)
		}
	}
	g.recomputeEntry()
	return nil
}

// ViewTape aliases total node runs inside externally owned bytes. The graph
// becomes immutable; counters and the entry point are rebuilt by walking
// the tape once.
func (g *Graph) ViewTape(data []byte, total int) error {
	if g.Assigned() != 0 {
		return fmt.Errorf("graph: view into non-empty index")
	}
	if err := g.ensureCapacity(total); err != nil {
		return err
	}
	g.viewData = data
	g.view = true

	segs := *g.refs.Load()
	off := 0
	for i := 0; i < total; i++ {
		if off+g.cfg.KeyBytes+2 > len(data) {
			return fmt.Errorf("graph: node tape truncated at node %d", i)
		}
		w := scalar.LoadUint(data[off+g.cfg.KeyBytes:], 2)
		level := int(w & levelMask)
		size := g.nodeSize(level)
		if off+size > len(data) {
			return fmt.Errorf("graph: node tape truncated at node %d", i)
		}
		segs[i>>slotSegBits][i&slotSegMask] = ref{block: viewBlock, off: int32(off)}
		if w&tombstoneBit != 0 {
			g.countDeleted.Add(1)
		} else {
			g.countPresent.Add(1)
		}
		off += size
		g.assigned.Add(1)
	}
	g.recomputeEntry()
	return nil
}

// TapeBytes returns the serialized size of the node tape.
func (g *Graph) TapeBytes() int {
	total := g.Assigned()
	size := 0
	for s := 0; s < total; s++ {
		level, _ := g.nodeLevel(g.nodeBytes(uint32(s)))
		size += g.nodeSize(level)
	}
	return size
}

// recomputeEntry walks the tape and installs the highest-level node as the
// entry point, lowest slot first on ties. Tombstoned nodes qualify: they
// stay traversable until compaction.
func (g *Graph) recomputeEntry() {
	total := g.Assigned()
	best := -1
	var bestSlot uint32
	for s := 0; s < total; s++ {
		level, _ := g.nodeLevel(g.nodeBytes(uint32(s)))
		if level > best {
			best = level
			bestSlot = uint32(s)
		}
	}
	if best < 0 {
		g.entry.Store(0)
		return
	}
	g.entry.Store(packEntry(bestSlot, best))
}

// AppendNode allocates the next slot for a rebuild (compaction, relinking)
// without searching or linking. Neighbor lists are installed afterwards via
// SetNeighbors.
func (g *Graph) AppendNode(key uint64, level int) (uint32, error) {
	if g.view {
		return 0, ErrImmutable
	}
	s, _, err := g.allocNode(key, level)
	if err != nil {
		return 0, err
	}
	g.countPresent.Add(1)
	return s, nil
}

// SetNeighbors replaces slot s's layer-l list, truncating to the layer
// capacity.
func (g *Graph) SetNeighbors(s uint32, l int, ns []uint32) {
	run := g.nodeBytes(s)
	if top, _ := g.nodeLevel(run); l > top {
		return
	}
	capN := g.capAt(l)
	if len(ns) > capN {
		ns = ns[:capN]
	}
	for i, n := range ns {
		g.setNeighborAt(run, l, i, n)
	}
	g.setNeighborCount(run, l, len(ns))
}

// FinishRebuild recomputes the entry point after a sequence of AppendNode
// and SetNeighbors calls.
func (g *Graph) FinishRebuild() { g.recomputeEntry() }
