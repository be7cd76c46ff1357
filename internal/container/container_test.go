package container

import (
	"math/rand"
	"sort"
	"testing"
)

func TestFrontierOrdering(t *testing.T) {
	f := NewFrontier(8)
	rng := rand.New(rand.NewSource(1))
	want := make([]Candidate, 0, 100)
	for i := 0; i < 100; i++ {
		c := Candidate{Slot: uint32(i), Distance: rng.Float32()}
		want = append(want, c)
		f.Push(c)
	}
	sort.Slice(want, func(i, j int) bool { return less(want[i], want[j]) })
	for i := 0; f.Len() > 0; i++ {
		got := f.Pop()
		if got != want[i] {
			t.Fatalf("pop %d = %+v, want %+v", i, got, want[i])
		}
	}
}

func TestFrontierTieBreaksBySlot(t *testing.T) {
	f := NewFrontier(4)
	f.Push(Candidate{Slot: 9, Distance: 1})
	f.Push(Candidate{Slot: 2, Distance: 1})
	f.Push(Candidate{Slot: 5, Distance: 1})
	if got := f.Pop().Slot; got != 2 {
		t.Errorf("first pop slot = %d, want 2", got)
	}
	if got := f.Pop().Slot; got != 5 {
		t.Errorf("second pop slot = %d, want 5", got)
	}
}

func TestFrontierReset(t *testing.T) {
	f := NewFrontier(4)
	f.Push(Candidate{Slot: 1, Distance: 1})
	f.Reset()
	if f.Len() != 0 {
		t.Fatalf("len after reset = %d", f.Len())
	}
}

func TestTopKLimit(t *testing.T) {
	k := NewTopK(3)
	for i := 0; i < 10; i++ {
		k.Insert(Candidate{Slot: uint32(i), Distance: float32(10 - i)})
	}
	if k.Len() != 3 {
		t.Fatalf("len = %d, want 3", k.Len())
	}
	items := k.Items()
	if items[0].Slot != 9 || items[1].Slot != 8 || items[2].Slot != 7 {
		t.Fatalf("kept slots %d,%d,%d; want 9,8,7", items[0].Slot, items[1].Slot, items[2].Slot)
	}
	for i := 1; i < len(items); i++ {
		if less(items[i], items[i-1]) {
			t.Fatalf("items not ascending at %d", i)
		}
	}
	if k.Worst().Slot != 7 {
		t.Errorf("worst slot = %d, want 7", k.Worst().Slot)
	}
}

func TestTopKRejectsWorse(t *testing.T) {
	k := NewTopK(2)
	if !k.Insert(Candidate{Slot: 1, Distance: 1}) {
		t.Error("insert into empty buffer rejected")
	}
	if !k.Insert(Candidate{Slot: 2, Distance: 2}) {
		t.Error("insert below limit rejected")
	}
	if k.Insert(Candidate{Slot: 3, Distance: 3}) {
		t.Error("insert worse than worst accepted")
	}
	if !k.Insert(Candidate{Slot: 4, Distance: 0.5}) {
		t.Error("insert better than worst rejected")
	}
	items := k.Items()
	if items[0].Slot != 4 || items[1].Slot != 1 {
		t.Fatalf("kept slots %d,%d; want 4,1", items[0].Slot, items[1].Slot)
	}
}

func TestTopKResetReusesStorage(t *testing.T) {
	k := NewTopK(8)
	for i := 0; i < 8; i++ {
		k.Insert(Candidate{Slot: uint32(i), Distance: float32(i)})
	}
	k.Reset(4)
	if k.Len() != 0 {
		t.Fatalf("len after reset = %d", k.Len())
	}
	for i := 0; i < 8; i++ {
		k.Insert(Candidate{Slot: uint32(i), Distance: float32(i)})
	}
	if k.Len() != 4 {
		t.Fatalf("len = %d, want 4 after lowering limit", k.Len())
	}
}

func TestVisitedSetAndHas(t *testing.T) {
	v := NewVisited(4)
	if v.Set(7) {
		t.Error("first Set(7) reported already set")
	}
	if !v.Set(7) {
		t.Error("second Set(7) reported not set")
	}
	if !v.Has(7) {
		t.Error("Has(7) = false")
	}
	if v.Has(8) {
		t.Error("Has(8) = true")
	}
}

func TestVisitedZeroSlot(t *testing.T) {
	v := NewVisited(4)
	if v.Has(0) {
		t.Error("empty set contains slot 0")
	}
	if v.Set(0) {
		t.Error("first Set(0) reported already set")
	}
	if !v.Has(0) {
		t.Error("Has(0) = false after Set")
	}
}

func TestVisitedGrowKeepsMarks(t *testing.T) {
	v := NewVisited(4)
	for i := uint32(0); i < 1000; i++ {
		if v.Set(i) {
			t.Fatalf("Set(%d) reported already set", i)
		}
	}
	if v.Len() != 1000 {
		t.Fatalf("len = %d, want 1000", v.Len())
	}
	for i := uint32(0); i < 1000; i++ {
		if !v.Has(i) {
			t.Fatalf("mark %d lost during growth", i)
		}
	}
	v.Reset()
	if v.Len() != 0 {
		t.Fatalf("len after reset = %d", v.Len())
	}
	for i := uint32(0); i < 1000; i++ {
		if v.Has(i) {
			t.Fatalf("mark %d survived reset", i)
		}
	}
}
