package densevec

// Compact builds a fresh index without tombstones. Live slots are walked in
// order and reassigned densely; neighbor lists are copied through the slot
// remap, minus edges to tombstoned slots, so the remaining graph structure
// carries over modulo renumbering. The
// receiver is left untouched, so Compact also works on viewed indexes.
func (ix *Index) Compact() (*Index, error) {
	out, err := New(configOptions(ix.cfg)...)
	if err != nil {
		return nil, opErr("compact", err)
	}

	total := ix.graph.Assigned()
	live := ix.graph.CountPresent()
	if err := out.Reserve(live, 1); err != nil {
		return nil, opErr("compact", err)
	}

	const unmapped = ^uint32(0)
	remap := make([]uint32, total)
	for s := 0; s < total; s++ {
		remap[s] = unmapped
	}

	// First pass: assign dense slots, copy payloads, rebuild the key map.
	for s := 0; s < total; s++ {
		slot := uint32(s)
		if ix.graph.IsTombstoned(slot) {
			continue
		}
		key := ix.graph.Key(slot)
		ns, err := out.graph.AppendNode(key, ix.graph.Level(slot))
		if err != nil {
			return nil, opErr("compact", err)
		}
		copy(out.vectors.ensure(ns), ix.vectors.at(slot))
		out.keys.add(key, ns)
		remap[slot] = ns
	}

	// Second pass: relink. Edges to tombstoned or dangling slots drop out
	// here; everything else carries over through the remap.
	buf := make([]uint32, 0, ix.cfg.ConnectivityBase)
	mapped := make([]uint32, 0, ix.cfg.ConnectivityBase)
	for s := 0; s < total; s++ {
		slot := uint32(s)
		if remap[slot] == unmapped {
			continue
		}
		top := ix.graph.Level(slot)
		for l := 0; l <= top; l++ {
			nbrs, err := ix.graph.Neighbors(slot, l, buf)
			if err != nil {
				return nil, opErr("compact", err)
			}
			mapped = mapped[:0]
			for _, n := range nbrs {
				if int(n) < total && remap[n] != unmapped {
					mapped = append(mapped, remap[n])
				}
			}
			out.graph.SetNeighbors(remap[slot], l, mapped)
		}
	}

	out.graph.FinishRebuild()
	return out, nil
}

// configOptions reconstructs the option list producing cfg, so derived
// indexes (compaction output) share the exact configuration.
func configOptions(cfg Config) []Option {
	opts := []Option{
		WithDimensions(cfg.Dimensions),
		WithMetric(cfg.Metric),
		WithScalar(cfg.Scalar),
		WithKeyKind(cfg.KeyKind),
		WithSlotKind(cfg.SlotKind),
		WithConnectivity(cfg.Connectivity),
		WithConnectivityBase(cfg.ConnectivityBase),
		WithExpansion(cfg.ExpansionAdd, cfg.ExpansionSearch),
		WithMulti(cfg.Multi),
		WithOverwrite(cfg.Overwrite),
		WithSeed(cfg.Seed),
		WithMetrics(cfg.MetricsEnabled),
	}
	if cfg.FixedCapacity > 0 {
		opts = append(opts, WithFixedCapacity(cfg.FixedCapacity))
	}
	if cfg.Prefetcher != nil {
		opts = append(opts, WithPrefetcher(cfg.Prefetcher))
	}
	return opts
}
