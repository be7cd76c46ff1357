package container

import "sort"

// TopK is the k-limited ascending buffer holding the best candidates seen so
// far. It stays sorted, so Worst is O(1) and Insert is a binary search plus
// a bounded copy.
type TopK struct {
	items []Candidate
	limit int
}

// NewTopK creates a buffer limited to k entries.
func NewTopK(k int) *TopK {
	return &TopK{items: make([]Candidate, 0, k), limit: k}
}

// Reset empties the buffer and applies a new limit, growing storage only
// when the limit exceeds the previous capacity.
func (t *TopK) Reset(k int) {
	if cap(t.items) < k {
		t.items = make([]Candidate, 0, k)
	} else {
		t.items = t.items[:0]
	}
	t.limit = k
}

// Len returns the number of buffered candidates.
func (t *TopK) Len() int { return len(t.items) }

// Full reports whether the buffer holds its limit.
func (t *TopK) Full() bool { return len(t.items) == t.limit }

// Worst returns the current worst (largest-distance) entry. Callers check
// Len first.
func (t *TopK) Worst() Candidate { return t.items[len(t.items)-1] }

// Insert adds c if the buffer has room or c beats the current worst entry,
// and reports whether it was kept.
func (t *TopK) Insert(c Candidate) bool {
	n := len(t.items)
	if n == t.limit {
		if !less(c, t.items[n-1]) {
			return false
		}
		n-- // drop the worst to make room
	}
	at := sort.Search(n, func(i int) bool { return less(c, t.items[i]) })
	t.items = t.items[:n+1]
	copy(t.items[at+1:], t.items[at:n])
	t.items[at] = c
	return true
}

// Items returns the buffered candidates in ascending (distance, slot) order.
// The slice aliases internal storage and is valid until the next mutation.
func (t *TopK) Items() []Candidate { return t.items }
