//go:build libjxr && cgo

package jxr

// #cgo CFLAGS: -I/usr/include/jxrlib -D__ANSI__ -DDISABLE_PERF_MEASUREMENT
// #cgo LDFLAGS: -ljxrglue -ljpegxr
// #include <stdlib.h>
// #include <stdint.h>
// #include <JXRGlue.h>
//
// static ERR jxr_open(void *src, size_t len, struct WMPStream **stream, PKImageDecode **dec) {
//   ERR err = CreateWS_Memory(stream, src, len);
//   if (err < 0) return err;
//   err = PKCodecFactory_CreateCodec(&IID_PKImageWmpDecode, (void **) dec);
//   if (err < 0) return err;
//   return (*dec)->Initialize(*dec, *stream);
// }
//
// static void jxr_size(PKImageDecode *dec, I32 *w, I32 *h) {
//   dec->GetSize(dec, w, h);
// }
//
// static int jxr_format(PKImageDecode *dec) {
//   PKPixelFormatGUID f;
//   dec->GetPixelFormat(dec, &f);
//   if (IsEqualGUID(&f, &GUID_PKPixelFormat24bppBGR)) return 1;
//   if (IsEqualGUID(&f, &GUID_PKPixelFormat48bppRGB)) return 2;
//   if (IsEqualGUID(&f, &GUID_PKPixelFormat8bppGray)) return 3;
//   if (IsEqualGUID(&f, &GUID_PKPixelFormat16bppGray)) return 4;
//   if (IsEqualGUID(&f, &GUID_PKPixelFormat32bppBGRA)) return 5;
//   if (IsEqualGUID(&f, &GUID_PKPixelFormat64bppRGBA)) return 6;
//   if (IsEqualGUID(&f, &GUID_PKPixelFormat32bppGrayFloat)) return 7;
//   if (IsEqualGUID(&f, &GUID_PKPixelFormat128bppRGBAFloat)) return 8;
//   return 0;
// }
//
// static ERR jxr_copy(PKImageDecode *dec, int out, uint8_t *dst, U32 stride) {
//   const PKPixelFormatGUID *fmts[] = {NULL, &GUID_PKPixelFormat24bppBGR,
//     &GUID_PKPixelFormat48bppRGB, &GUID_PKPixelFormat8bppGray,
//     &GUID_PKPixelFormat16bppGray};
//   PKFormatConverter *conv = NULL;
//   PKRect rect = {0, 0, 0, 0};
//   ERR err;
//   if (out < 1 || out > 4) return WMP_errUnsupportedFormat;
//   dec->GetSize(dec, &rect.Width, &rect.Height);
//   err = PKCodecFactory_CreateFormatConverter(&conv);
//   if (err >= 0) err = conv->Initialize(conv, dec, NULL, *fmts[out]);
//   if (err >= 0) err = conv->Copy(conv, &rect, dst, stride);
//   if (conv) conv->Release(&conv);
//   return err;
// }
//
// static void jxr_close(struct WMPStream **stream, PKImageDecode **dec) {
//   if (*stream) CloseWS_Memory(stream);
//   if (*dec) (*dec)->Release(dec);
// }
import "C"
import "unsafe"

func init() { nativeCodec = libjxr{} }

type libjxr struct{}

type image struct {
	src    unsafe.Pointer // C copy of the stream; jxrlib holds it until close
	stream *C.struct_WMPStream
	dec    *C.PKImageDecode
}

func (libjxr) Open(src []byte) (Image, error) {
	img := &image{src: C.CBytes(src)}
	if jerr := C.jxr_open(img.src, C.size_t(len(src)), &img.stream, &img.dec); jerr < 0 {
		img.Close()
		return nil, ErrorCode(jerr)
	}
	return img, nil
}

func (img *image) Size() (int, int) {
	var w, h C.I32
	C.jxr_size(img.dec, &w, &h)
	return int(w), int(h)
}

func (img *image) PixelFormat() PixelFormat {
	return PixelFormat(C.jxr_format(img.dec))
}

func (img *image) Copy(f PixelFormat, dst []byte, stride int) error {
	if len(dst) == 0 {
		return ErrInvalidArgument
	}
	if jerr := C.jxr_copy(img.dec, C.int(f), (*C.uint8_t)(unsafe.Pointer(&dst[0])), C.U32(stride)); jerr < 0 {
		return ErrorCode(jerr)
	}
	return nil
}

func (img *image) Close() {
	C.jxr_close(&img.stream, &img.dec)
	if img.src != nil {
		C.free(img.src)
		img.src = nil
	}
}
