package densevec

import (
	"errors"
	"testing"
)

func TestMultiVectorScenario(t *testing.T) {
	ix := newTestIndex(t,
		WithDimensions(3),
		WithMetric(MetricL2Squared),
		WithMulti(true),
	)
	query := []float32{1, 2, 3}
	v1 := []float32{1, 2, 3}
	v2 := []float32{10, 10, 10}
	v3 := []float32{2, 2, 3}

	if _, err := ix.Add(0, 7, v1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := ix.Add(0, 7, v2); err != nil {
		t.Fatalf("second Add under same key failed: %v", err)
	}
	if _, err := ix.Add(0, 8, v3); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if ix.Count(7) != 2 {
		t.Fatalf("Count(7) = %d, want 2", ix.Count(7))
	}
	if ix.Len() != 3 {
		t.Fatalf("len = %d, want 3", ix.Len())
	}

	got, err := ix.Search(0, query, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Key != 7 {
		t.Errorf("nearest key = %d, want 7", got[0].Key)
	}
	if got[1].Key != 8 {
		t.Errorf("second key = %d, want 8", got[1].Key)
	}
	if got[0].Key == got[1].Key {
		t.Error("duplicate keys in collapsed results")
	}

	all, err := ix.GetAll(7)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetAll returned %d vectors, want 2", len(all))
	}

	removed, err := ix.Remove(7)
	if err != nil || !removed {
		t.Fatalf("Remove(7) = (%v, %v)", removed, err)
	}
	if ix.Count(7) != 0 {
		t.Fatalf("Count(7) after remove = %d", ix.Count(7))
	}
	got, err = ix.Search(0, query, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, m := range got {
		if m.Key == 7 {
			t.Fatalf("removed key 7 surfaced in search")
		}
	}
	if len(got) != 1 || got[0].Key != 8 {
		t.Fatalf("post-remove results = %v, want only key 8", got)
	}
}

func TestMultiVectorExactCollapse(t *testing.T) {
	ix := newTestIndex(t,
		WithDimensions(2),
		WithMetric(MetricL2Squared),
		WithMulti(true),
	)
	for i := 0; i < 5; i++ {
		if _, err := ix.Add(0, 1, []float32{float32(i), 0}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if _, err := ix.Add(0, 2, []float32{100, 0}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	got, err := ix.SearchExact([]float32{0, 0}, 2, SearchOptions{})
	if err != nil {
		t.Fatalf("SearchExact failed: %v", err)
	}
	if len(got) != 2 || got[0].Key != 1 || got[1].Key != 2 {
		t.Fatalf("exact collapse = %v, want keys 1 then 2", got)
	}
	if got[0].Distance != 0 {
		t.Errorf("collapsed distance = %v, want the nearest vector's 0", got[0].Distance)
	}
}

func TestMultiGetFirstAndNotFound(t *testing.T) {
	ix := newTestIndex(t,
		WithDimensions(2),
		WithMetric(MetricL2Squared),
		WithMulti(true),
	)
	if _, err := ix.GetAll(5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAll unknown = %v, want ErrNotFound", err)
	}
	if _, err := ix.Add(0, 5, []float32{1, 1}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	vec, err := ix.Get(5)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if vec[0] != 1 || vec[1] != 1 {
		t.Errorf("Get = %v", vec)
	}
}
