package pixel

import "fmt"

// StrideAlignment is the row alignment, in bytes, of padded buffers.
const StrideAlignment = 4

// StrideForWidth returns the row stride in bytes for w pixels of
// pixelBytes each, rounded up to StrideAlignment.
func StrideForWidth(w, pixelBytes int) int {
	return (w*pixelBytes + StrideAlignment - 1) &^ (StrideAlignment - 1)
}

// AddRowPadding copies a tightly packed w x h image in src into dst with
// rows aligned to StrideForWidth.
func AddRowPadding(src, dst []byte, pixelBytes, w, h int) {
	stride := StrideForWidth(w, pixelBytes)
	rowBytes := w * pixelBytes
	checkRows("AddRowPadding", len(src), h*rowBytes, len(dst), h*stride)
	for row := 0; row < h; row++ {
		copy(dst[row*stride:row*stride+rowBytes], src[row*rowBytes:(row+1)*rowBytes])
	}
}

// DelRowPadding removes the alignment padding added by AddRowPadding.
func DelRowPadding(src, dst []byte, pixelBytes, w, h int) {
	stride := StrideForWidth(w, pixelBytes)
	rowBytes := w * pixelBytes
	checkRows("DelRowPadding", len(src), h*stride, len(dst), h*rowBytes)
	for row := 0; row < h; row++ {
		copy(dst[row*rowBytes:(row+1)*rowBytes], src[row*stride:row*stride+rowBytes])
	}
}

func checkRows(op string, srcLen, wantSrc, dstLen, wantDst int) {
	if srcLen != wantSrc || dstLen != wantDst {
		panic(fmt.Sprintf("pixel: %s: got src %d dst %d bytes, want %d and %d",
			op, srcLen, dstLen, wantSrc, wantDst))
	}
}
