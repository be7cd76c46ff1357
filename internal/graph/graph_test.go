package graph

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/rand"
	"sync"
	"testing"
)

// testIndex wires a Graph to a plain float32 slice store so the engine can
// be exercised without the façade.
type testIndex struct {
	g    *Graph
	mu   sync.Mutex
	vecs [][]float32
}

func l2sq(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func encodeVec(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVec(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func newTestIndex(t *testing.T, capacity, threads int) *testIndex {
	t.Helper()
	ti := &testIndex{vecs: make([][]float32, capacity)}
	cfg := Config{
		Connectivity:     8,
		ConnectivityBase: 16,
		ExpansionAdd:     64,
		ExpansionSearch:  32,
		KeyBytes:         8,
		SlotBytes:        4,
		MaxLevelCap:      24,
		Seed:             42,
	}
	g, err := New(cfg,
		func(q []byte, s uint32) float32 { return l2sq(decodeVec(q), ti.vecs[s]) },
		func(a, b uint32) float32 { return l2sq(ti.vecs[a], ti.vecs[b]) },
		nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := g.Reserve(capacity, threads); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	ti.g = g
	return ti
}

func (ti *testIndex) add(t *testing.T, thread int, key uint64, v []float32) uint32 {
	t.Helper()
	s, err := ti.g.Add(thread, key, encodeVec(v), func(slot uint32) error {
		ti.mu.Lock()
		for int(slot) >= len(ti.vecs) {
			ti.vecs = append(ti.vecs, nil)
		}
		ti.vecs[slot] = v
		ti.mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Add(%d) failed: %v", key, err)
	}
	return s
}

func checkInvariants(t *testing.T, g *Graph) {
	t.Helper()
	total := g.Assigned()
	_, entryLevel, ok := g.Entry()
	if total > 0 && !ok {
		t.Fatal("non-empty graph has no entry point")
	}
	buf := make([]uint32, 0, 64)
	back := make([]uint32, 0, 64)
	for s := 0; s < total; s++ {
		slot := uint32(s)
		top := g.Level(slot)
		if !g.IsTombstoned(slot) && top > entryLevel {
			t.Errorf("slot %d level %d exceeds entry level %d", s, top, entryLevel)
		}
		for l := 0; l <= top; l++ {
			nbrs, err := g.Neighbors(slot, l, buf)
			if err != nil {
				t.Fatalf("Neighbors(%d, %d): %v", s, l, err)
			}
			if capN := g.capAt(l); len(nbrs) > capN {
				t.Errorf("slot %d level %d has %d neighbors, capacity %d", s, l, len(nbrs), capN)
			}
			for _, n := range nbrs {
				if g.Level(n) < l {
					t.Errorf("slot %d level %d links to %d above its top level", s, l, n)
				}
				rev, err := g.Neighbors(n, l, back)
				if err != nil {
					t.Fatalf("Neighbors(%d, %d): %v", n, l, err)
				}
				found := false
				for _, r := range rev {
					if r == slot {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("edge %d->%d at level %d has no back edge", s, n, l)
				}
			}
		}
	}
}

func TestFirstInsertBecomesEntry(t *testing.T) {
	ti := newTestIndex(t, 16, 1)
	s := ti.add(t, 0, 7, []float32{1, 2})
	if s != 0 {
		t.Fatalf("first slot = %d, want 0", s)
	}
	eSlot, _, ok := ti.g.Entry()
	if !ok || eSlot != 0 {
		t.Fatalf("entry = (%d, %v), want slot 0", eSlot, ok)
	}
	if ti.g.CountPresent() != 1 {
		t.Fatalf("count present = %d, want 1", ti.g.CountPresent())
	}
}

func TestInsertInvariants(t *testing.T) {
	ti := newTestIndex(t, 256, 1)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		v := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
		ti.add(t, 0, uint64(i), v)
		if i%50 == 49 {
			checkInvariants(t, ti.g)
		}
	}
	checkInvariants(t, ti.g)
}

func TestSearchFindsNearest(t *testing.T) {
	ti := newTestIndex(t, 64, 1)
	for i := 0; i < 30; i++ {
		ti.add(t, 0, uint64(i), []float32{float32(i), float32(i)})
	}
	got, err := ti.g.Search(0, encodeVec([]float32{10.1, 10.1}), 3, 32, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	if got[0].Slot != 10 {
		t.Errorf("nearest slot = %d, want 10", got[0].Slot)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Errorf("results not ascending at %d", i)
		}
	}
}

func TestSearchEmptyGraph(t *testing.T) {
	ti := newTestIndex(t, 16, 1)
	got, err := ti.g.Search(0, encodeVec([]float32{0, 0}), 5, 32, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d results from empty graph", len(got))
	}
}

func TestTombstonesFilteredButTraversable(t *testing.T) {
	ti := newTestIndex(t, 128, 1)
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 100; i++ {
		ti.add(t, 0, uint64(i), []float32{rng.Float32(), rng.Float32()})
	}
	for s := uint32(0); s < 100; s += 2 {
		if !ti.g.Tombstone(s) {
			t.Fatalf("Tombstone(%d) = false", s)
		}
	}
	if ti.g.Tombstone(0) {
		t.Error("double tombstone reported true")
	}
	if ti.g.CountPresent() != 50 || ti.g.CountDeleted() != 50 {
		t.Fatalf("counts = (%d, %d), want (50, 50)", ti.g.CountPresent(), ti.g.CountDeleted())
	}
	got, err := ti.g.Search(0, encodeVec([]float32{0.5, 0.5}), 10, 64, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, c := range got {
		if c.Slot%2 == 0 {
			t.Errorf("tombstoned slot %d in results", c.Slot)
		}
	}
	checkInvariants(t, ti.g)
}

func TestThreadIDValidation(t *testing.T) {
	ti := newTestIndex(t, 16, 2)
	if _, err := ti.g.Add(5, 1, encodeVec([]float32{0, 0}), nil); err == nil {
		t.Fatal("Add with out-of-range thread id succeeded")
	}
	ti.add(t, 1, 1, []float32{0, 0})
}

func TestFixedCapacityFull(t *testing.T) {
	ti := &testIndex{vecs: make([][]float32, 4)}
	cfg := Config{
		Connectivity: 4, ConnectivityBase: 8,
		ExpansionAdd: 16, ExpansionSearch: 16,
		KeyBytes: 8, SlotBytes: 4, MaxLevelCap: 24,
		CapacityLimit: 2,
	}
	g, err := New(cfg,
		func(q []byte, s uint32) float32 { return l2sq(decodeVec(q), ti.vecs[s]) },
		func(a, b uint32) float32 { return l2sq(ti.vecs[a], ti.vecs[b]) },
		nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ti.g = g
	ti.add(t, 0, 1, []float32{0, 0})
	ti.add(t, 0, 2, []float32{1, 1})
	if _, err := g.Add(0, 3, encodeVec([]float32{2, 2}), nil); err != ErrFull {
		t.Fatalf("Add past capacity = %v, want ErrFull", err)
	}
}

func TestConcurrentInserts(t *testing.T) {
	const threads = 8
	const perThread = 125
	const total = threads * perThread
	const dim = 8

	ti := newTestIndex(t, total, threads)
	rng := rand.New(rand.NewSource(3))
	vecs := make([][]float32, total)
	for i := range vecs {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()
		}
		vecs[i] = v
	}

	errCh := make(chan error, threads)
	var wg sync.WaitGroup
	for tid := 0; tid < threads; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				key := tid*perThread + i
				_, err := ti.g.Add(tid, uint64(key), encodeVec(vecs[key]), func(slot uint32) error {
					ti.mu.Lock()
					ti.vecs[slot] = vecs[key]
					ti.mu.Unlock()
					return nil
				})
				if err != nil {
					errCh <- err
					return
				}
			}
		}(tid)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent Add failed: %v", err)
	}

	if ti.g.CountPresent() != total {
		t.Fatalf("count present = %d, want %d", ti.g.CountPresent(), total)
	}
	checkInvariants(t, ti.g)

	// Every key is findable exactly, and near-findable through the graph.
	found := 0
	for i := 0; i < 200; i++ {
		key := rng.Intn(total)
		q := encodeVec(vecs[key])
		exact := ti.g.SearchExact(q, 1, nil)
		if len(exact) == 0 {
			t.Fatalf("exact search found nothing for key %d", key)
		}
		got, err := ti.g.Search(0, q, 1, 64, nil)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(got) == 1 && got[0].Distance == exact[0].Distance {
			found++
		}
	}
	if recall := float64(found) / 200; recall < 0.9 {
		t.Errorf("self-recall after concurrent build = %.3f, want >= 0.9", recall)
	}
}

func TestTapeSaveLoadRoundTrip(t *testing.T) {
	ti := newTestIndex(t, 64, 1)
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 40; i++ {
		ti.add(t, 0, uint64(i*3), []float32{rng.Float32(), rng.Float32()})
	}
	ti.g.Tombstone(5)
	ti.g.Tombstone(11)

	var buf bytes.Buffer
	if err := ti.g.SaveTape(&buf); err != nil {
		t.Fatalf("SaveTape failed: %v", err)
	}

	ti2 := newTestIndex(t, 64, 1)
	ti2.vecs = ti.vecs
	if err := ti2.g.LoadTape(bytes.NewReader(buf.Bytes()), 40); err != nil {
		t.Fatalf("LoadTape failed: %v", err)
	}
	if ti2.g.CountPresent() != 38 || ti2.g.CountDeleted() != 2 {
		t.Fatalf("loaded counts = (%d, %d), want (38, 2)", ti2.g.CountPresent(), ti2.g.CountDeleted())
	}
	for s := uint32(0); s < 40; s++ {
		if ti.g.Key(s) != ti2.g.Key(s) {
			t.Fatalf("slot %d key %d != %d", s, ti.g.Key(s), ti2.g.Key(s))
		}
		if ti.g.Level(s) != ti2.g.Level(s) {
			t.Fatalf("slot %d level differs", s)
		}
		if ti.g.IsTombstoned(s) != ti2.g.IsTombstoned(s) {
			t.Fatalf("slot %d tombstone differs", s)
		}
	}
	checkInvariants(t, ti2.g)

	// Viewing the same bytes yields the same structure without copying.
	ti3 := newTestIndex(t, 64, 1)
	ti3.vecs = ti.vecs
	if err := ti3.g.ViewTape(buf.Bytes(), 40); err != nil {
		t.Fatalf("ViewTape failed: %v", err)
	}
	if ti3.g.CountPresent() != 38 {
		t.Fatalf("view count present = %d, want 38", ti3.g.CountPresent())
	}
	if _, err := ti3.g.Add(0, 99, encodeVec([]float32{0, 0}), nil); err != ErrImmutable {
		t.Fatalf("Add on view = %v, want ErrImmutable", err)
	}
	if ti3.g.Tombstone(1) {
		t.Error("Tombstone mutated a view")
	}
}
