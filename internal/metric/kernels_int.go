package metric

import (
	"math"
	"math/bits"
)

// i8Kernel covers the quantized byte kinds. Accumulation runs in int32 and
// inner-product and squared-L2 results are rescaled by 1/127², the square of
// the fixed quantization step, so distances stay comparable with the float
// paths.
func i8Kernel(kind Kind) Func {
	const unit = 1.0 / (127.0 * 127.0)
	switch kind {
	case InnerProduct:
		return func(a, b []byte, dims int) float32 {
			var sum int32
			for i := 0; i < dims; i++ {
				sum += int32(int8(a[i])) * int32(int8(b[i]))
			}
			return -float32(sum) * unit
		}
	case Cosine:
		return func(a, b []byte, dims int) float32 {
			var dot, na, nb int32
			for i := 0; i < dims; i++ {
				x, y := int32(int8(a[i])), int32(int8(b[i]))
				dot += x * y
				na += x * x
				nb += y * y
			}
			if na == 0 || nb == 0 {
				return 1
			}
			return 1 - float32(float64(dot)/math.Sqrt(float64(na)*float64(nb)))
		}
	case L2Squared:
		return func(a, b []byte, dims int) float32 {
			var sum int32
			for i := 0; i < dims; i++ {
				d := int32(int8(a[i])) - int32(int8(b[i]))
				sum += d * d
			}
			return float32(sum) * unit
		}
	}
	return nil
}

// bitKernel covers the b1x8 packed-sign kind. dims counts bits; the payload
// holds ceil(dims/8) bytes with any trailing bits zeroed at conversion.
func bitKernel(kind Kind) Func {
	switch kind {
	case Hamming:
		return func(a, b []byte, dims int) float32 {
			n := (dims + 7) / 8
			var diff int
			for i := 0; i < n; i++ {
				diff += bits.OnesCount8(a[i] ^ b[i])
			}
			return float32(diff)
		}
	case Tanimoto, Jaccard:
		return func(a, b []byte, dims int) float32 {
			n := (dims + 7) / 8
			var and, or int
			for i := 0; i < n; i++ {
				and += bits.OnesCount8(a[i] & b[i])
				or += bits.OnesCount8(a[i] | b[i])
			}
			if or == 0 {
				return 0
			}
			return 1 - float32(and)/float32(or)
		}
	case Sorensen:
		return func(a, b []byte, dims int) float32 {
			n := (dims + 7) / 8
			var and, pa, pb int
			for i := 0; i < n; i++ {
				and += bits.OnesCount8(a[i] & b[i])
				pa += bits.OnesCount8(a[i])
				pb += bits.OnesCount8(b[i])
			}
			if pa+pb == 0 {
				return 0
			}
			return 1 - 2*float32(and)/float32(pa+pb)
		}
	}
	return nil
}
