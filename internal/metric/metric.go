// Package metric resolves a (kind, scalar, dimensions) triple into a concrete
// distance kernel at index creation time. All kernels return a signed float32
// where lower means closer; similarity-style kinds are flipped accordingly.
package metric

import (
	"fmt"

	"github.com/xDarkicex/densevec/internal/scalar"
)

// Kind identifies a distance metric. The numeric values are part of the
// on-disk format and must never be reordered.
type Kind uint32

const (
	Unknown Kind = iota
	InnerProduct
	Cosine
	L2Squared
	Haversine
	Divergence
	Pearson
	Hamming
	Tanimoto
	Sorensen
	Jaccard
)

// String returns the canonical lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case InnerProduct:
		return "ip"
	case Cosine:
		return "cos"
	case L2Squared:
		return "l2sq"
	case Haversine:
		return "haversine"
	case Divergence:
		return "divergence"
	case Pearson:
		return "pearson"
	case Hamming:
		return "hamming"
	case Tanimoto:
		return "tanimoto"
	case Sorensen:
		return "sorensen"
	case Jaccard:
		return "jaccard"
	default:
		return "unknown"
	}
}

// Func computes the distance between two stored vectors of dims components.
// Both arguments are raw payload bytes in the index's scalar kind.
type Func func(a, b []byte, dims int) float32

// Resolve returns the kernel for the configuration, or an error when no
// kernel exists for the (kind, scalar) pair.
func Resolve(kind Kind, sk scalar.Kind, dims int) (Func, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("metric: dimensions must be positive")
	}
	if kind == Haversine && dims != 2 {
		return nil, fmt.Errorf("metric: haversine requires 2 dimensions, got %d", dims)
	}

	switch sk {
	case scalar.F32:
		if fn := f32Kernel(kind); fn != nil {
			return fn, nil
		}
	case scalar.F64:
		if fn := f64Kernel(kind); fn != nil {
			return fn, nil
		}
	case scalar.F16:
		if fn := floatKernel(kind, loadF16); fn != nil {
			return fn, nil
		}
	case scalar.BF16:
		if fn := floatKernel(kind, loadBF16); fn != nil {
			return fn, nil
		}
	case scalar.I8:
		if fn := i8Kernel(kind); fn != nil {
			return fn, nil
		}
	case scalar.B1x8:
		if fn := bitKernel(kind); fn != nil {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("metric: no %s kernel for scalar kind %s", kind, sk)
}

// Batch computes distances from q to every vector in rows using fn. It is
// the fallback batch path; scalar-specific batch kernels can shadow it.
func Batch(fn Func, q []byte, rows [][]byte, dims int, out []float32) {
	for i, r := range rows {
		out[i] = fn(q, r, dims)
	}
}
