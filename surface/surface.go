// Package surface is the compositing target that backends paint decoded
// tiles onto. A Surface wraps a caller buffer (or nothing, for a nil
// surface that only checks arguments); a Context carries the translation
// and compositing operator used while painting.
package surface

import (
	"errors"
	"fmt"
)

// Format is the pixel layout of a surface.
type Format int

const (
	// FormatARGB32 is premultiplied ARGB, one uint32 per pixel.
	FormatARGB32 Format = iota
	// FormatGray8 is one byte per pixel.
	FormatGray8
	// FormatGray16 is one little-endian uint16 per pixel.
	FormatGray16
)

// MaxDimension is the largest width or height a surface accepts.
const MaxDimension = 32767

// maxAddressable bounds the byte size of a surface to 31-bit addressing.
const maxAddressable = 1<<31 - 1

func (f Format) String() string {
	switch f {
	case FormatARGB32:
		return "argb32"
	case FormatGray8:
		return "gray8"
	case FormatGray16:
		return "gray16"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// BytesPerPixel returns the size of one pixel of f.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatARGB32:
		return 4
	case FormatGray16:
		return 2
	default:
		return 1
	}
}

var (
	ErrInvalidSize   = errors.New("surface: invalid size")
	ErrInvalidStride = errors.New("surface: invalid stride")
	ErrFormat        = errors.New("surface: pixel format mismatch")
)

// Surface is a paintable pixel buffer.
type Surface struct {
	format Format
	width  int
	height int

	argb       []uint32
	argbStride int // in pixels
	pix        []byte
	stride     int // in bytes

	isNil bool
	err   error
}

// NewARGB32 wraps pix as a w x h ARGB32 surface whose rows are stride
// pixels apart.
func NewARGB32(pix []uint32, w, h, stride int) *Surface {
	s := &Surface{format: FormatARGB32, width: w, height: h, argb: pix, argbStride: stride}
	s.err = validate(w, h, stride, w, len(pix), 4)
	return s
}

// NewGray wraps pix as a w x h gray surface whose rows are stride bytes
// apart. f must be FormatGray8 or FormatGray16.
func NewGray(pix []byte, f Format, w, h, stride int) *Surface {
	s := &Surface{format: f, width: w, height: h, pix: pix, stride: stride}
	if f == FormatARGB32 {
		s.err = fmt.Errorf("%w: %s is not a gray format", ErrFormat, f)
		return s
	}
	s.err = validate(w, h, stride, w*f.BytesPerPixel(), len(pix), 1)
	return s
}

// NewNil returns a zero-sized surface that accepts and discards painting.
func NewNil(f Format) *Surface {
	return &Surface{format: f, isNil: true}
}

// validate checks a buffer of length elements of elemBytes each, holding
// h rows of rowLen elements placed stride elements apart.
func validate(w, h, stride, rowLen, length, elemBytes int) error {
	if w < 0 || h < 0 || w > MaxDimension || h > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	if w == 0 || h == 0 {
		return nil
	}
	if stride < rowLen {
		return fmt.Errorf("%w: %d for width %d", ErrInvalidStride, stride, w)
	}
	if size := int64(stride) * int64(h) * int64(elemBytes); size > maxAddressable {
		return fmt.Errorf("%w: %d bytes not addressable", ErrInvalidSize, size)
	}
	if need := (h-1)*stride + rowLen; length < need {
		return fmt.Errorf("%w: buffer holds %d, need %d", ErrInvalidSize, length, need)
	}
	return nil
}

// Format returns the pixel layout of s.
func (s *Surface) Format() Format { return s.format }

// Width returns the width of s in pixels.
func (s *Surface) Width() int { return s.width }

// Height returns the height of s in pixels.
func (s *Surface) Height() int { return s.height }

// Status returns the first error recorded on s.
func (s *Surface) Status() error { return s.err }

func (s *Surface) setError(err error) {
	if s.err == nil {
		s.err = err
	}
}
