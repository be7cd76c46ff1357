package graph

import (
	"sort"

	"github.com/xDarkicex/densevec/internal/container"
)

func candidate(s uint32, d float32) container.Candidate {
	return container.Candidate{Slot: s, Distance: d}
}

// sortCandidates orders ascending by (distance, slot).
func sortCandidates(cs []container.Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Distance != cs[j].Distance {
			return cs[i].Distance < cs[j].Distance
		}
		return cs[i].Slot < cs[j].Slot
	})
}

// searchOneInLevel performs greedy descent at one layer: move to the best
// strictly closer neighbor until no neighbor improves on the current node.
func (g *Graph) searchOneInLevel(tc *threadCtx, q []byte, start container.Candidate, l int) container.Candidate {
	cur := start
	for {
		run := g.nodeBytes(cur.Slot)
		if top, _ := g.nodeLevel(run); l > top {
			return cur
		}
		tc.scanBuf = g.neighbors(run, l, tc.scanBuf)
		g.prefetch(tc.scanBuf)
		improved := false
		for _, n := range tc.scanBuf {
			if d := g.distQS(q, n); d < cur.Distance {
				cur = candidate(n, d)
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer runs the bounded best-first expansion at layer l with frontier
// size ef, seeded from start. Nodes failing the allowed filter (tombstones,
// caller predicates) are traversed but kept out of the result buffer. The
// returned slice aliases the thread's top-k buffer and is valid until the
// next search on the same thread.
func (g *Graph) searchLayer(tc *threadCtx, q []byte, start container.Candidate, l, ef int, allowed func(uint32) bool) []container.Candidate {
	tc.visited.Reset()
	tc.visited.Reserve(ef * 4)
	tc.frontier.Reset()
	tc.top.Reset(ef)

	tc.visited.Set(start.Slot)
	tc.frontier.Push(start)
	if allowed == nil || allowed(start.Slot) {
		tc.top.Insert(start)
	}

	for tc.frontier.Len() > 0 {
		cur := tc.frontier.Pop()
		if tc.top.Full() && cur.Distance > tc.top.Worst().Distance {
			break
		}

		run := g.nodeBytes(cur.Slot)
		if top, _ := g.nodeLevel(run); l > top {
			continue
		}
		tc.nbrBuf = g.neighbors(run, l, tc.nbrBuf)

		tc.prefetchBuf = tc.prefetchBuf[:0]
		for _, n := range tc.nbrBuf {
			if !tc.visited.Has(n) {
				tc.prefetchBuf = append(tc.prefetchBuf, n)
			}
		}
		g.prefetch(tc.prefetchBuf)

		for _, n := range tc.prefetchBuf {
			if tc.visited.Set(n) {
				continue
			}
			d := g.distQS(q, n)
			if tc.top.Full() && d >= tc.top.Worst().Distance {
				continue
			}
			tc.frontier.Push(candidate(n, d))
			if allowed == nil || allowed(n) {
				tc.top.Insert(candidate(n, d))
			}
		}
	}
	return tc.top.Items()
}

// Search answers a top-k query: greedy descent from the entry point through
// the upper layers, then a bounded best-first pass at the base layer with
// ef raised to at least k. Tombstoned nodes are traversed but filtered from
// results; pred, when non-nil, additionally filters by slot. Results are
// ascending by (distance, slot).
func (g *Graph) Search(thread int, q []byte, k, ef int, pred func(uint32) bool) ([]container.Candidate, error) {
	if k <= 0 {
		return nil, nil
	}
	tc, err := g.threadCtx(thread)
	if err != nil {
		return nil, err
	}
	e := g.entry.Load()
	if e == 0 {
		return nil, nil
	}
	if ef < k {
		ef = k
	}

	eSlot, eLevel := unpackEntry(e)
	cur := candidate(eSlot, g.distQS(q, eSlot))
	for l := eLevel; l > 0; l-- {
		cur = g.searchOneInLevel(tc, q, cur, l)
	}

	allowed := func(s uint32) bool {
		if g.IsTombstoned(s) {
			return false
		}
		return pred == nil || pred(s)
	}
	found := g.searchLayer(tc, q, cur, 0, ef, allowed)
	if len(found) > k {
		found = found[:k]
	}
	out := make([]container.Candidate, len(found))
	copy(out, found)
	return out, nil
}

// SearchExact scans every live slot and returns the exact top-k. It bypasses
// the graph entirely and exists for calibration and correctness testing.
func (g *Graph) SearchExact(q []byte, k int, pred func(uint32) bool) []container.Candidate {
	if k <= 0 {
		return nil
	}
	top := container.NewTopK(k)
	total := uint32(g.assigned.Load())
	for s := uint32(0); s < total; s++ {
		if g.IsTombstoned(s) {
			continue
		}
		if pred != nil && !pred(s) {
			continue
		}
		top.Insert(candidate(s, g.distQS(q, s)))
	}
	out := make([]container.Candidate, top.Len())
	copy(out, top.Items())
	return out
}
