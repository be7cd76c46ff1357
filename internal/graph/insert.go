package graph

import "github.com/xDarkicex/densevec/internal/container"

// Add inserts a node for key with query payload q, linking it into every
// layer up to its sampled level. prepare, when non-nil, runs right after the
// slot is assigned and before any edge makes it reachable; the façade uses
// it to write the vector payload. Concurrent calls must use distinct thread
// ids. The returned slot is stable until compaction.
func (g *Graph) Add(thread int, key uint64, q []byte, prepare func(slot uint32) error) (uint32, error) {
	if g.view {
		return 0, ErrImmutable
	}
	tc, err := g.threadCtx(thread)
	if err != nil {
		return 0, err
	}

	level := tc.sampleLevel(g.ml, g.cfg.MaxLevelCap)
	s, _, err := g.allocNode(key, level)
	if err != nil {
		return 0, err
	}
	if prepare != nil {
		if err := prepare(s); err != nil {
			return s, err
		}
	}
	g.countPresent.Add(1)

	// First insertion short-circuits: no search, no linking.
	for {
		e := g.entry.Load()
		if e != 0 {
			break
		}
		if g.entry.CompareAndSwap(0, packEntry(s, level)) {
			return s, nil
		}
	}

	eSlot, eLevel := unpackEntry(g.entry.Load())
	cur := candidate(eSlot, g.distQS(q, eSlot))

	// Greedy descent through layers above the new node's top level.
	for l := eLevel; l > level; l-- {
		cur = g.searchOneInLevel(tc, q, cur, l)
	}

	// Link layer by layer, from the highest shared layer down to the base.
	top := level
	if eLevel < top {
		top = eLevel
	}
	for l := top; l >= 0; l-- {
		cands := g.searchLayer(tc, q, cur, l, g.cfg.ExpansionAdd, nil)
		// Edges installed at higher layers can already lead back to the new
		// node; it must not select itself.
		kept := cands[:0]
		for _, c := range cands {
			if c.Slot != s {
				kept = append(kept, c)
			}
		}
		tc.selBuf = g.selectNeighbors(kept, g.capAt(l), tc.selBuf[:0])
		for _, n := range tc.selBuf {
			g.connect(tc, s, n.Slot, l)
		}
		if len(tc.selBuf) > 0 {
			cur = tc.selBuf[0]
		}
	}

	// Raise the entry point if this node sampled a new highest level.
	for {
		e := g.entry.Load()
		_, curLevel := unpackEntry(e)
		if level <= curLevel {
			break
		}
		if g.entry.CompareAndSwap(e, packEntry(s, level)) {
			break
		}
	}
	return s, nil
}

// connect installs the bidirectional edge u↔v on layer l under an ordered
// pair of slot locks, pruning either side if its list overflows.
func (g *Graph) connect(tc *threadCtx, u, v uint32, l int) {
	g.lockPair(u, v)
	g.appendOrPrune(tc, u, l, v)
	g.appendOrPrune(tc, v, l, u)
	g.unlockPair(u, v)
}

// appendOrPrune appends y to x's layer-l list, re-running the selection
// heuristic on the overfull list when capacity is exceeded. The caller holds
// x's lock.
func (g *Graph) appendOrPrune(tc *threadCtx, x uint32, l int, y uint32) {
	run := g.nodeBytes(x)
	if top, _ := g.nodeLevel(run); l > top {
		return
	}
	n := g.neighborCount(run, l)
	capN := g.capAt(l)
	if n < capN {
		for i := 0; i < n; i++ {
			if g.neighborAt(run, l, i) == y {
				return
			}
		}
		g.setNeighborAt(run, l, n, y)
		g.setNeighborCount(run, l, n+1)
		return
	}

	// Overflow: rebuild the list from the current neighbors plus y, with x
	// as the query point of the heuristic.
	cands := tc.pruneBuf[:0]
	seen := false
	for i := 0; i < n; i++ {
		c := g.neighborAt(run, l, i)
		if c == y {
			seen = true
		}
		cands = append(cands, candidate(c, g.distSS(x, c)))
	}
	if !seen {
		cands = append(cands, candidate(y, g.distSS(x, y)))
	}
	tc.pruneBuf = cands
	sortCandidates(cands)
	tc.pruneSelBuf = g.selectNeighbors(cands, capN, tc.pruneSelBuf[:0])
	for i, c := range tc.pruneSelBuf {
		g.setNeighborAt(run, l, i, c.Slot)
	}
	g.setNeighborCount(run, l, len(tc.pruneSelBuf))
}

// selectNeighbors applies the diversity heuristic: walk candidates in
// ascending distance order and keep c only when it is farther from every
// kept neighbor than from the query. Remaining capacity is backfilled by
// distance so sparse neighborhoods stay fully connected.
func (g *Graph) selectNeighbors(cands []container.Candidate, capN int, out []container.Candidate) []container.Candidate {
	if len(cands) <= capN {
		return append(out, cands...)
	}
	for _, c := range cands {
		if len(out) == capN {
			return out
		}
		keep := true
		for _, s := range out {
			if g.distSS(c.Slot, s.Slot) <= c.Distance {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c)
		}
	}
	if len(out) < capN {
		for _, c := range cands {
			if len(out) == capN {
				break
			}
			if !containsSlot(out, c.Slot) {
				out = append(out, c)
			}
		}
	}
	return out
}

func containsSlot(cs []container.Candidate, s uint32) bool {
	for _, c := range cs {
		if c.Slot == s {
			return true
		}
	}
	return false
}
