package pixel

// bgr24ToARGB32 packs one B,G,R triple into an opaque ARGB32 word.
func bgr24ToARGB32(p []byte) uint32 {
	return 0xFF000000 | uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16
}

// bgr48ToARGB32 keeps the high byte of each little-endian 16-bit sample.
func bgr48ToARGB32(p []byte) uint32 {
	return 0xFF000000 | uint32(p[1]) | uint32(p[3])<<8 | uint32(p[5])<<16
}

// gray16ToGray8 shifts one little-endian sample down by nshift bits.
// Zeiss Axioscan 14-bit data sometimes uses more than 14 bits; such
// samples saturate to white instead of wrapping to black.
func gray16ToGray8(p []byte, nshift uint) uint8 {
	v := (uint16(p[0]) | uint16(p[1])<<8) >> nshift
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func bgr24Generic(src []byte, dst []uint32) {
	for i, j := 0, 0; i+3 <= len(src); i, j = i+3, j+1 {
		dst[j] = bgr24ToARGB32(src[i:])
	}
}

func bgr48Generic(src []byte, dst []uint32) {
	for i, j := 0, 0; i+6 <= len(src); i, j = i+6, j+1 {
		dst[j] = bgr48ToARGB32(src[i:])
	}
}

func gray16Generic(src []byte, realBits int, dst []byte) {
	nshift := uint(realBits - 8)
	for i, j := 0, 0; i+2 <= len(src); i, j = i+2, j+1 {
		dst[j] = gray16ToGray8(src[i:], nshift)
	}
}

func restoreGeneric(src []byte, dst []byte) {
	half := len(src) / 2
	interleave(src[:half], src[half:], dst)
}

func interleave(lo, hi, dst []byte) {
	for i := range lo {
		dst[2*i] = lo[i]
		dst[2*i+1] = hi[i]
	}
}
