//go:build amd64 && !noasm

package pixel

//go:noescape
func bgr24SSSE3(dst *uint32, src *byte, blocks int)

//go:noescape
func bgr24AVX2(dst *uint32, src *byte, blocks int)

//go:noescape
func bgr24AVX512(dst *uint32, src *byte, blocks int)

//go:noescape
func gray16SSSE3(dst *byte, src *byte, blocks int, shift uint64)

//go:noescape
func gray16AVX2(dst *byte, src *byte, blocks int, shift uint64)

//go:noescape
func gray16AVX512(dst *byte, src *byte, blocks int, shift uint64)

//go:noescape
func restoreSSSE3(dst *byte, lo *byte, hi *byte, blocks int)

//go:noescape
func restoreAVX2(dst *byte, lo *byte, hi *byte, blocks int)

//go:noescape
func restoreAVX512(dst *byte, lo *byte, hi *byte, blocks int)

// Variant tables in preference order, most capable first. The generic
// reference is always last.
var (
	bgr24Variants = []variant[bgrFunc]{
		{"avx512", bgr24V512, needAVX512},
		{"avx2", bgr24V256, needAVX2},
		{"ssse3", bgr24V128, needSSSE3},
		{"generic", bgr24Generic, always},
	}
	// Not enough 48-bit slides around to justify a vector path.
	bgr48Variants = []variant[bgrFunc]{
		{"generic", bgr48Generic, always},
	}
	gray16Variants = []variant[gray16Func]{
		{"avx512", gray16V512, needAVX512},
		{"avx2", gray16V256, needAVX2},
		{"ssse3", gray16V128, needSSSE3},
		{"generic", gray16Generic, always},
	}
	restoreVariants = []variant[restoreFunc]{
		{"avx512", restoreV512, needAVX512},
		{"avx2", restoreV256, needAVX2},
		{"ssse3", restoreV128, needSSSE3},
		{"generic", restoreGeneric, always},
	}
)

// blocks returns how many steps of step bytes fit in n bytes when every
// step loads load bytes, so no step reads past the end of the input.
func blocks(n, step, load int) int {
	if n < load {
		return 0
	}
	return (n-load)/step + 1
}

// The assembly handles whole blocks; the scalar reference finishes the tail.

func bgr24V128(src []byte, dst []uint32) {
	n := blocks(len(src), 12, 16)
	if n > 0 {
		bgr24SSSE3(&dst[0], &src[0], n)
	}
	bgr24Generic(src[12*n:], dst[4*n:])
}

func bgr24V256(src []byte, dst []uint32) {
	n := blocks(len(src), 24, 28)
	if n > 0 {
		bgr24AVX2(&dst[0], &src[0], n)
	}
	bgr24Generic(src[24*n:], dst[8*n:])
}

func bgr24V512(src []byte, dst []uint32) {
	n := blocks(len(src), 48, 52)
	if n > 0 {
		bgr24AVX512(&dst[0], &src[0], n)
	}
	bgr24Generic(src[48*n:], dst[16*n:])
}

func gray16V128(src []byte, realBits int, dst []byte) {
	n := len(src) / 16
	if n > 0 {
		gray16SSSE3(&dst[0], &src[0], n, uint64(realBits-8))
	}
	gray16Generic(src[16*n:], realBits, dst[8*n:])
}

func gray16V256(src []byte, realBits int, dst []byte) {
	n := len(src) / 32
	if n > 0 {
		gray16AVX2(&dst[0], &src[0], n, uint64(realBits-8))
	}
	gray16Generic(src[32*n:], realBits, dst[16*n:])
}

func gray16V512(src []byte, realBits int, dst []byte) {
	n := len(src) / 64
	if n > 0 {
		gray16AVX512(&dst[0], &src[0], n, uint64(realBits-8))
	}
	gray16Generic(src[64*n:], realBits, dst[32*n:])
}

func restoreV128(src []byte, dst []byte) {
	restoreBlocks(src, dst, 16, restoreSSSE3)
}

func restoreV256(src []byte, dst []byte) {
	restoreBlocks(src, dst, 32, restoreAVX2)
}

func restoreV512(src []byte, dst []byte) {
	restoreBlocks(src, dst, 64, restoreAVX512)
}

func restoreBlocks(src, dst []byte, step int, kernel func(dst, lo, hi *byte, blocks int)) {
	half := len(src) / 2
	lo, hi := src[:half], src[half:]
	n := half / step
	if n > 0 {
		kernel(&dst[0], &lo[0], &hi[0], n)
	}
	k := n * step
	interleave(lo[k:], hi[k:half], dst[2*k:])
}
