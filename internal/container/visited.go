package container

import "github.com/dolthub/maphash"

// Visited is a growing open-addressed hash set of slots with linear probing,
// used to mark explored nodes during search. Zero means empty, so stored
// values are offset by one.
type Visited struct {
	table  []uint32
	count  int
	hasher maphash.Hasher[uint32]
}

// NewVisited creates a set sized for about capacity entries.
func NewVisited(capacity int) *Visited {
	v := &Visited{hasher: maphash.NewHasher[uint32]()}
	v.Reserve(capacity)
	return v
}

// Reserve grows the table so that n entries fit without rehashing. Existing
// marks are kept.
func (v *Visited) Reserve(n int) {
	need := tableSize(n)
	if len(v.table) >= need {
		return
	}
	old := v.table
	v.table = make([]uint32, need)
	v.count = 0
	for _, e := range old {
		if e != 0 {
			v.set(e - 1)
		}
	}
}

// Reset clears all marks, keeping the table.
func (v *Visited) Reset() {
	clear(v.table)
	v.count = 0
}

// Set marks slot x and reports whether it was already marked.
func (v *Visited) Set(x uint32) bool {
	if (v.count+1)*4 > len(v.table)*3 {
		v.Reserve(len(v.table)) // doubles via tableSize
	}
	return v.set(x)
}

// Has reports whether slot x is marked.
func (v *Visited) Has(x uint32) bool {
	mask := uint64(len(v.table) - 1)
	i := v.hasher.Hash(x) & mask
	for {
		e := v.table[i]
		if e == 0 {
			return false
		}
		if e == x+1 {
			return true
		}
		i = (i + 1) & mask
	}
}

// Len returns the number of marked slots.
func (v *Visited) Len() int { return v.count }

func (v *Visited) set(x uint32) bool {
	mask := uint64(len(v.table) - 1)
	i := v.hasher.Hash(x) & mask
	for {
		e := v.table[i]
		if e == 0 {
			v.table[i] = x + 1
			v.count++
			return false
		}
		if e == x+1 {
			return true
		}
		i = (i + 1) & mask
	}
}

// tableSize returns a power of two holding n entries below 3/4 load.
func tableSize(n int) int {
	size := 16
	for size*3 < n*4 {
		size <<= 1
	}
	return size
}
