// Package jxr decodes JPEG XR tiles into raw samples. The native codec
// is jxrlib, linked when building with the libjxr tag; without it Decode
// returns ErrUnavailable but the header parse in Dimensions still works.
package jxr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
)

// PixelFormat is a decoder pixel layout.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	Format24bppBGR
	// Format48bppRGB is stored in B,G,R order by CZI writers despite its
	// name.
	Format48bppRGB
	Format8bppGray
	Format16bppGray
	Format32bppBGRA
	Format64bppRGBA
	Format32bppGrayFloat
	Format128bppRGBAFloat
)

var formatInfo = map[PixelFormat]struct {
	name string
	bpp  int
}{
	Format24bppBGR:        {"24bppBGR", 24},
	Format48bppRGB:        {"48bppRGB", 48},
	Format8bppGray:        {"8bppGray", 8},
	Format16bppGray:       {"16bppGray", 16},
	Format32bppBGRA:       {"32bppBGRA", 32},
	Format64bppRGBA:       {"64bppRGBA", 64},
	Format32bppGrayFloat:  {"32bppGrayFloat", 32},
	Format128bppRGBAFloat: {"128bppRGBAFloat", 128},
}

func (f PixelFormat) String() string {
	if i, ok := formatInfo[f]; ok {
		return i.name
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// BitsPerPixel returns the size of one pixel of f, or 0 if unknown.
func (f PixelFormat) BitsPerPixel() int {
	return formatInfo[f].bpp
}

// outputFormat maps a source layout to the layout it is decoded into. Only
// the allow-listed layouts have one.
func outputFormat(f PixelFormat) (PixelFormat, bool) {
	switch f {
	case Format24bppBGR, Format48bppRGB, Format8bppGray, Format16bppGray:
		return f, true
	}
	return FormatUnknown, false
}

// ErrorCode is a native jxrlib status. Negative values are failures.
type ErrorCode int32

const (
	ErrFail                                 ErrorCode = -1
	ErrNotYetImplemented                    ErrorCode = -2
	ErrAbstractMethod                       ErrorCode = -3
	ErrOutOfMemory                          ErrorCode = -101
	ErrFileIO                               ErrorCode = -102
	ErrBufferOverflow                       ErrorCode = -103
	ErrInvalidParameter                     ErrorCode = -104
	ErrInvalidArgument                      ErrorCode = -105
	ErrUnsupportedFormatCode                ErrorCode = -106
	ErrIncorrectCodecVersion                ErrorCode = -107
	ErrIndexNotFound                        ErrorCode = -108
	ErrOutOfSequence                        ErrorCode = -109
	ErrNotInitialized                       ErrorCode = -110
	ErrMustBeMultipleOf16LinesUntilLastCall ErrorCode = -111
	ErrPlanarAlphaBandedEncRequiresTempFile ErrorCode = -112
	ErrAlphaModeCannotBeTranscoded          ErrorCode = -113
	ErrIncorrectCodecSubVersion             ErrorCode = -114
)

var codeNames = map[ErrorCode]string{
	ErrFail:                                 "WMP_errFail",
	ErrNotYetImplemented:                    "WMP_errNotYetImplemented",
	ErrAbstractMethod:                       "WMP_errAbstractMethod",
	ErrOutOfMemory:                          "WMP_errOutOfMemory",
	ErrFileIO:                               "WMP_errFileIO",
	ErrBufferOverflow:                       "WMP_errBufferOverflow",
	ErrInvalidParameter:                     "WMP_errInvalidParameter",
	ErrInvalidArgument:                      "WMP_errInvalidArgument",
	ErrUnsupportedFormatCode:                "WMP_errUnsupportedFormat",
	ErrIncorrectCodecVersion:                "WMP_errIncorrectCodecVersion",
	ErrIndexNotFound:                        "WMP_errIndexNotFound",
	ErrOutOfSequence:                        "WMP_errOutOfSequence",
	ErrNotInitialized:                       "WMP_errNotInitialized",
	ErrMustBeMultipleOf16LinesUntilLastCall: "WMP_errMustBeMultipleOf16LinesUntilLastCall",
	ErrPlanarAlphaBandedEncRequiresTempFile: "WMP_errPlanarAlphaBandedEncRequiresTempFile",
	ErrAlphaModeCannotBeTranscoded:          "WMP_errAlphaModeCannotBeTranscoded",
	ErrIncorrectCodecSubVersion:             "WMP_errIncorrectCodecSubVersion",
}

func (c ErrorCode) Error() string {
	if name, ok := codeNames[c]; ok {
		return "JXR decode error: " + name
	}
	return fmt.Sprintf("JXR decode error: code %d", int32(c))
}

var (
	ErrUnsupportedFormat = errors.New("jxr: only 24bppBGR, 48bppRGB, 8bppGray and 16bppGray are supported")
	ErrUnavailable       = errors.New("jxr: built without libjxr")
	ErrNoMagic           = errors.New("jxr: JPEG XR magic WMPHOTO not found")
	ErrTruncated         = errors.New("jxr: truncated image header")
)

// Codec opens compressed JPEG XR streams.
type Codec interface {
	Open(src []byte) (Image, error)
}

// Image is an opened stream ready to be copied out.
type Image interface {
	Size() (w, h int)
	PixelFormat() PixelFormat
	// Copy decodes the whole image as f into dst, rows stride bytes apart.
	Copy(f PixelFormat, dst []byte, stride int) error
	Close()
}

// Info describes a decoded buffer.
type Info struct {
	Width, Height int
	Format        PixelFormat
	Stride        int
}

// Available reports whether Decode has a native codec behind it.
func Available() bool { return nativeCodec != nil }

// Decode decodes src into dst with the native codec.
func Decode(src, dst []byte) (Info, error) {
	if nativeCodec == nil {
		return Info{}, ErrUnavailable
	}
	return DecodeWith(nativeCodec, src, dst)
}

// DecodeWith decodes src into dst using c. It panics if dst cannot hold
// the image the stream declares, which means the container lied about the
// tile size.
func DecodeWith(c Codec, src, dst []byte) (Info, error) {
	if len(src) == 0 {
		return Info{}, ErrInvalidArgument
	}
	img, err := c.Open(src)
	if err != nil {
		return Info{}, err
	}
	defer img.Close()

	w, h := img.Size()
	in := img.PixelFormat()
	out, ok := outputFormat(in)
	if !ok {
		return Info{}, fmt.Errorf("%w: got %s", ErrUnsupportedFormat, in)
	}
	stride := w * ((max(in.BitsPerPixel(), out.BitsPerPixel()) + 7) / 8)
	if need := h * stride; need > len(dst) {
		panic(fmt.Sprintf("jxr: %dx%d %s image needs %d bytes, destination holds %d", w, h, in, need, len(dst)))
	}
	if err := img.Copy(out, dst, stride); err != nil {
		return Info{}, err
	}
	return Info{Width: w, Height: h, Format: out, Stride: stride}, nil
}

var magic = []byte("WMPHOTO\x00")

// Dimensions reads the image size from the JPEG XR stream header without
// decoding. The stream may be preceded by container bytes, including runs
// of zeros.
func Dimensions(src []byte) (w, h uint32, err error) {
	i := bytes.Index(src, magic)
	if i < 0 {
		slog.Warn("jxr: JPEG XR magic WMPHOTO not found", "len", len(src))
		return 0, 0, ErrNoMagic
	}
	s := src[i:]
	if len(s) < 11 {
		return 0, 0, ErrTruncated
	}
	// sizes are stored as dimension minus one
	if s[10]&0x80 != 0 {
		if len(s) < 16 {
			return 0, 0, ErrTruncated
		}
		w = uint32(binary.BigEndian.Uint16(s[12:])) + 1
		h = uint32(binary.BigEndian.Uint16(s[14:])) + 1
	} else {
		if len(s) < 20 {
			return 0, 0, ErrTruncated
		}
		w = binary.BigEndian.Uint32(s[12:]) + 1
		h = binary.BigEndian.Uint32(s[16:]) + 1
	}
	return w, h, nil
}
