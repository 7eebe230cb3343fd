// Package zstd decodes the zstd0 and zstd1 tile compressions used by CZI
// slides. zstd0 is a bare zstd frame. zstd1 prefixes the frame with a small
// chunk header whose hi/lo flag says 16-bit samples were stored as a plane
// of low bytes followed by a plane of high bytes.
package zstd

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/ekonechny/gopenslide/v2/pixel"
)

var (
	ErrHeader    = errors.New("zstd: bad zstd1 header")
	ErrOddLength = errors.New("zstd: hi/lo packed data has odd length")
)

const (
	chunkHiLo = 1 // chunk type carrying the hi/lo flag byte
	flagHiLo  = 0x01
)

var encPool = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

var decPool = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

// Header is the parsed zstd1 prefix.
type Header struct {
	Size int  // bytes before the zstd frame, including the size byte
	HiLo bool // payload is hi/lo byte-plane packed
}

// ParseHeader reads the zstd1 header at the start of src.
func ParseHeader(src []byte) (Header, error) {
	if len(src) == 0 {
		return Header{}, fmt.Errorf("%w: empty input", ErrHeader)
	}
	size := int(src[0])
	if size < 1 || size > len(src) {
		return Header{}, fmt.Errorf("%w: header size %d", ErrHeader, size)
	}
	h := Header{Size: size}
	for p := src[1:size]; len(p) > 0; {
		switch p[0] {
		case chunkHiLo:
			if len(p) < 2 {
				return Header{}, fmt.Errorf("%w: truncated chunk", ErrHeader)
			}
			h.HiLo = p[1]&flagHiLo != 0
			p = p[2:]
		default:
			return Header{}, fmt.Errorf("%w: unknown chunk type %d", ErrHeader, p[0])
		}
	}
	return h, nil
}

func decode(src, dst []byte) ([]byte, error) {
	dec := decPool.Get().(*zstd.Decoder)
	defer decPool.Put(dec)
	out, err := dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

// Decode0 decompresses a zstd0 buffer, appending to dst[:0].
func Decode0(src, dst []byte) ([]byte, error) {
	return decode(src, dst)
}

// Decode1 decompresses a zstd1 buffer. Hi/lo packed payloads are restored
// to little-endian 16-bit samples.
func Decode1(src, dst []byte) ([]byte, error) {
	h, err := ParseHeader(src)
	if err != nil {
		return nil, err
	}
	if !h.HiLo {
		return decode(src[h.Size:], dst)
	}
	packed, err := decode(src[h.Size:], nil)
	if err != nil {
		return nil, err
	}
	if len(packed)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(packed))
	}
	if cap(dst) < len(packed) {
		dst = make([]byte, len(packed))
	}
	dst = dst[:len(packed)]
	pixel.RestoreHiLo(packed, dst)
	return dst, nil
}

func encode(src []byte, dst []byte) []byte {
	enc := encPool.Get().(*zstd.Encoder)
	defer encPool.Put(enc)
	return enc.EncodeAll(src, dst)
}

// Encode0 compresses src as zstd0.
func Encode0(src []byte) []byte {
	return encode(src, nil)
}

// Encode1 compresses src as zstd1. With hiLo set, src must hold
// little-endian 16-bit samples, which are split into byte planes first.
func Encode1(src []byte, hiLo bool) []byte {
	hdr := []byte{1}
	if hiLo {
		hdr = []byte{3, chunkHiLo, flagHiLo}
		planes := make([]byte, len(src))
		pixel.SplitHiLo(src, planes)
		src = planes
	}
	return encode(src, hdr)
}
