package jxr

import (
	"errors"
	"strings"
	"testing"
)

type fakeCodec struct {
	w, h    int
	format  PixelFormat
	openErr error
	copyErr error

	closed bool
	stride int
}

type fakeImage struct{ c *fakeCodec }

func (c *fakeCodec) Open(src []byte) (Image, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	return fakeImage{c}, nil
}

func (i fakeImage) Size() (int, int)         { return i.c.w, i.c.h }
func (i fakeImage) PixelFormat() PixelFormat { return i.c.format }
func (i fakeImage) Close()                   { i.c.closed = true }

func (i fakeImage) Copy(f PixelFormat, dst []byte, stride int) error {
	if i.c.copyErr != nil {
		return i.c.copyErr
	}
	i.c.stride = stride
	for j := range dst[:i.c.h*stride] {
		dst[j] = byte(j)
	}
	return nil
}

func TestDecodeStride(t *testing.T) {
	for _, tc := range []struct {
		format PixelFormat
		stride int
	}{
		{Format24bppBGR, 30},
		{Format48bppRGB, 60},
		{Format8bppGray, 10},
		{Format16bppGray, 20},
	} {
		c := &fakeCodec{w: 10, h: 3, format: tc.format}
		info, err := DecodeWith(c, []byte{1}, make([]byte, 3*tc.stride))
		if err != nil {
			t.Fatalf("%s: %v", tc.format, err)
		}
		if info.Stride != tc.stride || c.stride != tc.stride {
			t.Errorf("%s: stride %d, want %d", tc.format, info.Stride, tc.stride)
		}
		if info.Format != tc.format || info.Width != 10 || info.Height != 3 {
			t.Errorf("%s: info %+v", tc.format, info)
		}
		if !c.closed {
			t.Errorf("%s: image not closed", tc.format)
		}
	}
}

func TestDecodeRejectsFormats(t *testing.T) {
	for _, f := range []PixelFormat{Format32bppBGRA, Format64bppRGBA, Format128bppRGBAFloat, FormatUnknown} {
		c := &fakeCodec{w: 1, h: 1, format: f}
		if _, err := DecodeWith(c, []byte{1}, make([]byte, 64)); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: got %v, want ErrUnsupportedFormat", f, err)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	c := &fakeCodec{openErr: ErrIncorrectCodecVersion}
	_, err := DecodeWith(c, []byte{1}, nil)
	if !errors.Is(err, ErrIncorrectCodecVersion) {
		t.Fatalf("got %v", err)
	}
	if want := "JXR decode error: WMP_errIncorrectCodecVersion"; err.Error() != want {
		t.Errorf("message %q, want %q", err.Error(), want)
	}
	// the first table entry is reachable too
	if got := ErrFail.Error(); got != "JXR decode error: WMP_errFail" {
		t.Errorf("ErrFail message %q", got)
	}
	if got := ErrorCode(-9999).Error(); !strings.Contains(got, "-9999") {
		t.Errorf("unknown code message %q", got)
	}

	c = &fakeCodec{w: 1, h: 1, format: Format8bppGray, copyErr: ErrBufferOverflow}
	if _, err := DecodeWith(c, []byte{1}, make([]byte, 1)); !errors.Is(err, ErrBufferOverflow) {
		t.Errorf("copy failure: got %v", err)
	}
	if _, err := DecodeWith(&fakeCodec{}, nil, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty input: got %v", err)
	}
}

func TestDecodeSmallDestinationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	c := &fakeCodec{w: 4, h: 4, format: Format24bppBGR}
	DecodeWith(c, []byte{1}, make([]byte, 4*12-1))
}

func TestDecodeWithoutNative(t *testing.T) {
	if Available() {
		t.Skip("built with libjxr")
	}
	if _, err := Decode([]byte{1}, nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func header(short bool, w, h uint32) []byte {
	s := append([]byte("WMPHOTO\x00"), 0x11, 0x00, 0, 0)
	if short {
		s[10] = 0x80
		return append(s, byte((w-1)>>8), byte(w-1), byte((h-1)>>8), byte(h-1))
	}
	return append(s,
		byte((w-1)>>24), byte((w-1)>>16), byte((w-1)>>8), byte(w-1),
		byte((h-1)>>24), byte((h-1)>>16), byte((h-1)>>8), byte(h-1))
}

func TestDimensions(t *testing.T) {
	padded := append(make([]byte, 300), header(true, 512, 256)...)
	for _, tc := range []struct {
		name string
		in   []byte
		w, h uint32
	}{
		{"short", header(true, 1024, 768), 1024, 768},
		{"long", header(false, 70000, 65537), 70000, 65537},
		{"zero padding", padded, 512, 256},
		{"one pixel", header(true, 1, 1), 1, 1},
	} {
		w, h, err := Dimensions(tc.in)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if w != tc.w || h != tc.h {
			t.Errorf("%s: got %dx%d, want %dx%d", tc.name, w, h, tc.w, tc.h)
		}
	}
}

func TestDimensionsErrors(t *testing.T) {
	if _, _, err := Dimensions(make([]byte, 100)); !errors.Is(err, ErrNoMagic) {
		t.Errorf("no magic: got %v", err)
	}
	if _, _, err := Dimensions([]byte("WMPHOTO")); !errors.Is(err, ErrNoMagic) {
		t.Errorf("magic without NUL: got %v", err)
	}
	if _, _, err := Dimensions(header(false, 10, 10)[:18]); !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated long header: got %v", err)
	}
}
