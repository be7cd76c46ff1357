package metric

import (
	"math"
	"unsafe"

	"github.com/viterin/vek/vek32"

	"github.com/xDarkicex/densevec/internal/scalar"
)

// loader reads component i of a raw payload as float32.
type loader func(b []byte, i int) float32

func loadNativeF32(b []byte, i int) float32 {
	return math.Float32frombits(uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24)
}

func loadF16(b []byte, i int) float32 {
	return scalar.F16ToF32(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
}

func loadBF16(b []byte, i int) float32 {
	return scalar.BF16ToF32(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
}

// f32View reinterprets payload bytes as a float32 slice. Owned buffers are
// allocated with natural alignment; view-mode payloads are aliased wherever
// the file places them and may be unaligned, which relies on the target
// tolerating unaligned float32 loads.
func f32View(b []byte, dims int) []float32 {
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b))), dims)
}

// f32Kernel returns SIMD-backed kernels for inner product and cosine, a
// direct loop over the float32 view for squared L2, and falls back to the
// generic float path for the rest.
func f32Kernel(kind Kind) Func {
	switch kind {
	case InnerProduct:
		return func(a, b []byte, dims int) float32 {
			return -vek32.Dot(f32View(a, dims), f32View(b, dims))
		}
	case Cosine:
		return func(a, b []byte, dims int) float32 {
			av, bv := f32View(a, dims), f32View(b, dims)
			dot := vek32.Dot(av, bv)
			na := float32(math.Sqrt(float64(vek32.Dot(av, av))))
			nb := float32(math.Sqrt(float64(vek32.Dot(bv, bv))))
			if na == 0 || nb == 0 {
				return 1
			}
			return 1 - dot/(na*nb)
		}
	case L2Squared:
		return func(a, b []byte, dims int) float32 {
			av, bv := f32View(a, dims), f32View(b, dims)
			var sum float32
			for i := range av {
				d := av[i] - bv[i]
				sum += d * d
			}
			return sum
		}
	}
	return floatKernel(kind, loadNativeF32)
}

// floatKernel builds a kernel for any float-valued scalar via the loader.
func floatKernel(kind Kind, load loader) Func {
	switch kind {
	case InnerProduct:
		return func(a, b []byte, dims int) float32 {
			var sum float32
			for i := 0; i < dims; i++ {
				sum += load(a, i) * load(b, i)
			}
			return -sum
		}
	case Cosine:
		return func(a, b []byte, dims int) float32 {
			var dot, na, nb float32
			for i := 0; i < dims; i++ {
				x, y := load(a, i), load(b, i)
				dot += x * y
				na += x * x
				nb += y * y
			}
			if na == 0 || nb == 0 {
				return 1
			}
			return 1 - dot/float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
		}
	case L2Squared:
		return func(a, b []byte, dims int) float32 {
			var sum float32
			for i := 0; i < dims; i++ {
				d := load(a, i) - load(b, i)
				sum += d * d
			}
			return sum
		}
	case Haversine:
		return func(a, b []byte, dims int) float32 {
			return haversine(
				float64(load(a, 0)), float64(load(a, 1)),
				float64(load(b, 0)), float64(load(b, 1)))
		}
	case Divergence:
		return func(a, b []byte, dims int) float32 {
			var sum float64
			for i := 0; i < dims; i++ {
				p, q := float64(load(a, i)), float64(load(b, i))
				m := (p + q) / 2
				if p > 0 && m > 0 {
					sum += p * math.Log(p/m)
				}
				if q > 0 && m > 0 {
					sum += q * math.Log(q/m)
				}
			}
			return float32(sum / 2)
		}
	case Pearson:
		return func(a, b []byte, dims int) float32 {
			var sx, sy, sxx, syy, sxy float64
			for i := 0; i < dims; i++ {
				x, y := float64(load(a, i)), float64(load(b, i))
				sx += x
				sy += y
				sxx += x * x
				syy += y * y
				sxy += x * y
			}
			n := float64(dims)
			cov := sxy - sx*sy/n
			vx := sxx - sx*sx/n
			vy := syy - sy*sy/n
			if vx <= 0 || vy <= 0 {
				return 1
			}
			return float32(1 - cov/math.Sqrt(vx*vy))
		}
	}
	return nil
}

// f64Kernel accumulates in float64 to keep precision for wide vectors.
func f64Kernel(kind Kind) Func {
	load := func(b []byte, i int) float64 {
		return math.Float64frombits(scalar.LoadUint(b[i*8:], 8))
	}
	switch kind {
	case InnerProduct:
		return func(a, b []byte, dims int) float32 {
			var sum float64
			for i := 0; i < dims; i++ {
				sum += load(a, i) * load(b, i)
			}
			return float32(-sum)
		}
	case Cosine:
		return func(a, b []byte, dims int) float32 {
			var dot, na, nb float64
			for i := 0; i < dims; i++ {
				x, y := load(a, i), load(b, i)
				dot += x * y
				na += x * x
				nb += y * y
			}
			if na == 0 || nb == 0 {
				return 1
			}
			return float32(1 - dot/math.Sqrt(na*nb))
		}
	case L2Squared:
		return func(a, b []byte, dims int) float32 {
			var sum float64
			for i := 0; i < dims; i++ {
				d := load(a, i) - load(b, i)
				sum += d * d
			}
			return float32(sum)
		}
	case Haversine:
		return func(a, b []byte, dims int) float32 {
			return haversine(load(a, 0), load(a, 1), load(b, 0), load(b, 1))
		}
	case Divergence, Pearson:
		// Same math as the float32 path; precision of the working values
		// dominates, not the accumulator.
		return floatKernel(kind, func(b []byte, i int) float32 {
			return float32(load(b, i))
		})
	}
	return nil
}

// haversine returns the great-circle distance on the unit sphere between
// two (latitude, longitude) pairs given in radians.
func haversine(lat1, lon1, lat2, lon2 float64) float32 {
	dlat := lat2 - lat1
	dlon := lon2 - lon1
	s := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	if s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}
	return float32(2 * math.Asin(math.Sqrt(s)))
}
