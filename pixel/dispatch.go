package pixel

import (
	"os"
	"strconv"
	"sync/atomic"
)

// Kind names a kernel family with its own dispatch binding.
type Kind int

const (
	KindBGR24 Kind = iota
	KindBGR48
	KindGray16
	KindRestore
)

func (k Kind) String() string {
	switch k {
	case KindBGR24:
		return "bgr24-to-argb32"
	case KindBGR48:
		return "bgr48-to-argb32"
	case KindGray16:
		return "gray16-to-gray8"
	case KindRestore:
		return "restore-hilo"
	default:
		return "unknown"
	}
}

// features is the subset of CPU capabilities the kernels care about.
type features struct {
	ssse3  bool
	avx2   bool
	avx512 bool // F + BW, needed for byte shuffles on 512-bit registers
}

type (
	bgrFunc     func(src []byte, dst []uint32)
	gray16Func  func(src []byte, realBits int, dst []byte)
	restoreFunc func(src []byte, dst []byte)
)

type variant[F any] struct {
	name string
	fn   F
	// usable reports whether the CPU can run this variant.
	usable func(features) bool
}

func always(features) bool { return true }
func needSSSE3(f features) bool { return f.ssse3 }
func needAVX2(f features) bool { return f.avx2 }
func needAVX512(f features) bool { return f.avx512 }

// binding holds the published choice for one kernel kind. It starts empty;
// the first caller reads the CPU features, and the first CompareAndSwap wins.
// Every racer computes the same choice, so losing the race is harmless.
type binding[F any] struct {
	p        atomic.Pointer[variant[F]]
	variants []variant[F]
}

func (b *binding[F]) get() *variant[F] {
	if v := b.p.Load(); v != nil {
		return v
	}
	v := choose(b.variants, enabledFeatures())
	b.p.CompareAndSwap(nil, &v)
	return b.p.Load()
}

func choose[F any](variants []variant[F], f features) variant[F] {
	for _, v := range variants {
		if v.usable(f) {
			return v
		}
	}
	return variants[len(variants)-1]
}

var (
	bgr24Binding   = &binding[bgrFunc]{variants: bgr24Variants}
	bgr48Binding   = &binding[bgrFunc]{variants: bgr48Variants}
	gray16Binding  = &binding[gray16Func]{variants: gray16Variants}
	restoreBinding = &binding[restoreFunc]{variants: restoreVariants}
)

// enabledFeatures reports the CPU features, or none when OPENSLIDE_NO_SIMD is set.
func enabledFeatures() features {
	if noSIMD() {
		return features{}
	}
	return cpuFeatures()
}

func noSIMD() bool {
	val := os.Getenv("OPENSLIDE_NO_SIMD")
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}

// Implementation returns the name of the variant bound for kind, binding
// it first if no kernel of that kind has run yet.
func Implementation(kind Kind) string {
	switch kind {
	case KindBGR24:
		return bgr24Binding.get().name
	case KindBGR48:
		return bgr48Binding.get().name
	case KindGray16:
		return gray16Binding.get().name
	case KindRestore:
		return restoreBinding.get().name
	default:
		return "unknown"
	}
}
