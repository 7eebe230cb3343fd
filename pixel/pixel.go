package pixel

import "fmt"

// BGR24ToARGB32 converts packed B,G,R triples into opaque ARGB32 words.
// len(src) must be a multiple of 3 and dst must hold len(src)/3 pixels.
func BGR24ToARGB32(src []byte, dst []uint32) {
	checkPacked("BGR24ToARGB32", len(src), 3, len(dst))
	bgr24Binding.get().fn(src, dst[:len(src)/3])
}

// BGR48ToARGB32 converts little-endian 16-bit B,G,R samples into opaque
// ARGB32 words, keeping the high byte of each sample.
func BGR48ToARGB32(src []byte, dst []uint32) {
	checkPacked("BGR48ToARGB32", len(src), 6, len(dst))
	bgr48Binding.get().fn(src, dst[:len(src)/6])
}

// Gray16ToGray8 narrows little-endian 16-bit gray samples holding realBits
// significant bits to 8 bits. Samples that still exceed 8 bits after the
// shift saturate to 255.
func Gray16ToGray8(src []byte, realBits int, dst []byte) {
	if realBits < 8 || realBits > 16 {
		panic(fmt.Sprintf("pixel: Gray16ToGray8: real bit depth %d outside [8, 16]", realBits))
	}
	checkPacked("Gray16ToGray8", len(src), 2, len(dst))
	gray16Binding.get().fn(src, realBits, dst[:len(src)/2])
}

// RestoreHiLo undoes hi/lo byte-plane packing: src holds the low bytes of
// all samples followed by all high bytes, dst receives the little-endian
// 16-bit stream. len(src) must be even and dst at least as long.
func RestoreHiLo(src, dst []byte) {
	checkPlanes("RestoreHiLo", len(src), len(dst))
	restoreBinding.get().fn(src, dst[:len(src)])
}

// SplitHiLo is the inverse of RestoreHiLo.
func SplitHiLo(src, dst []byte) {
	checkPlanes("SplitHiLo", len(src), len(dst))
	half := len(src) / 2
	for i := 0; i < half; i++ {
		dst[i] = src[2*i]
		dst[half+i] = src[2*i+1]
	}
}

func checkPacked(op string, srcLen, unit, dstLen int) {
	if srcLen%unit != 0 {
		panic(fmt.Sprintf("pixel: %s: source length %d not a multiple of %d", op, srcLen, unit))
	}
	if dstLen < srcLen/unit {
		panic(fmt.Sprintf("pixel: %s: destination holds %d pixels, need %d", op, dstLen, srcLen/unit))
	}
}

func checkPlanes(op string, srcLen, dstLen int) {
	if srcLen%2 != 0 {
		panic(fmt.Sprintf("pixel: %s: odd source length %d", op, srcLen))
	}
	if dstLen < srcLen {
		panic(fmt.Sprintf("pixel: %s: destination length %d shorter than source %d", op, dstLen, srcLen))
	}
}
