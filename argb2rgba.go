package gopenslide

import (
	"unsafe"

	"github.com/reiver/go-endian"
)

// byte positions of the channels inside a native-endian ARGB32 word
var (
	cb int
	cr int
	cg int
	ca int
)

// argbToRGBA converts premultiplied ARGB32 pixels to the byte layout of
// image.RGBA, which is premultiplied as well.
func argbToRGBA(src []uint32, dst []byte) {
	if len(src) == 0 {
		return
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&src[0])), 4*len(src))
	for i := 0; i+3 < len(raw) && i+3 < len(dst); i += 4 {
		px := raw[i : i+4]
		dst[i] = px[cr]
		dst[i+1] = px[cg]
		dst[i+2] = px[cb]
		dst[i+3] = px[ca]
	}
}

func init() {
	endianness := endian.NativeEndianness()
	switch endianness {
	case endian.Big():
		ca = 0
		cr = 1
		cg = 2
		cb = 3
	default:
		cb = 0
		cg = 1
		cr = 2
		ca = 3
	}
}
