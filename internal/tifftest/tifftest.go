// Package tifftest assembles small TIFF and BigTIFF files for tests.
package tifftest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// Field is one directory entry. Its value is encoded by the helper that
// created it.
type Field struct {
	Tag   uint16
	Type  uint16
	count uint64
	enc   func(binary.ByteOrder) []byte
}

func Short(tag uint16, v ...uint16) Field {
	return Field{Tag: tag, Type: 3, count: uint64(len(v)), enc: func(o binary.ByteOrder) []byte {
		b := make([]byte, 2*len(v))
		for i, x := range v {
			o.PutUint16(b[2*i:], x)
		}
		return b
	}}
}

func Long(tag uint16, v ...uint32) Field {
	return Field{Tag: tag, Type: 4, count: uint64(len(v)), enc: func(o binary.ByteOrder) []byte {
		b := make([]byte, 4*len(v))
		for i, x := range v {
			o.PutUint32(b[4*i:], x)
		}
		return b
	}}
}

func Long8(tag uint16, v ...uint64) Field {
	return Field{Tag: tag, Type: 16, count: uint64(len(v)), enc: func(o binary.ByteOrder) []byte {
		b := make([]byte, 8*len(v))
		for i, x := range v {
			o.PutUint64(b[8*i:], x)
		}
		return b
	}}
}

func Rational(tag uint16, num, den uint32) Field {
	return Field{Tag: tag, Type: 5, count: 1, enc: func(o binary.ByteOrder) []byte {
		b := make([]byte, 8)
		o.PutUint32(b, num)
		o.PutUint32(b[4:], den)
		return b
	}}
}

func ASCII(tag uint16, s string) Field {
	return Field{Tag: tag, Type: 2, count: uint64(len(s) + 1), enc: func(binary.ByteOrder) []byte {
		return append([]byte(s), 0)
	}}
}

func Undefined(tag uint16, b []byte) Field {
	return Field{Tag: tag, Type: 7, count: uint64(len(b)), enc: func(binary.ByteOrder) []byte { return b }}
}

// Dir is one image directory. When Tiles is not nil the tile bytes are
// written to the file and TileOffsets/TileByteCounts are added.
type Dir struct {
	Fields []Field
	Tiles  [][]byte
}

// Options selects the file flavor.
type Options struct {
	BigEndian bool
	BigTIFF   bool
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Build returns the bytes of a TIFF file holding dirs in order.
func Build(opts Options, dirs ...Dir) []byte {
	var order byteOrder = binary.LittleEndian
	out := []byte("II")
	if opts.BigEndian {
		order = binary.BigEndian
		out = []byte("MM")
	}
	ptr := 4
	if opts.BigTIFF {
		ptr = 8
		out = order.AppendUint16(out, 43)
		out = order.AppendUint16(out, 8)
		out = order.AppendUint16(out, 0)
	} else {
		out = order.AppendUint16(out, 42)
	}
	// offset of the pointer to the next directory
	link := len(out)
	out = append(out, make([]byte, ptr)...)

	putPtr := func(at int, v uint64) {
		if opts.BigTIFF {
			order.PutUint64(out[at:], v)
		} else {
			order.PutUint32(out[at:], uint32(v))
		}
	}

	for _, d := range dirs {
		fields := append([]Field(nil), d.Fields...)
		if d.Tiles != nil {
			offsets := make([]uint64, len(d.Tiles))
			counts := make([]uint64, len(d.Tiles))
			for i, t := range d.Tiles {
				offsets[i] = uint64(len(out))
				counts[i] = uint64(len(t))
				out = append(out, t...)
			}
			if opts.BigTIFF {
				fields = append(fields, Long8(324, offsets...), Long8(325, counts...))
			} else {
				fields = append(fields, Long(324, narrow(offsets)...), Long(325, narrow(counts)...))
			}
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Tag < fields[j].Tag })

		values := make([][]byte, len(fields))
		for i, f := range fields {
			values[i] = f.enc(order)
		}
		// out-of-line values go before the directory
		offsets := make([]uint64, len(fields))
		for i, v := range values {
			if len(v) <= ptr {
				continue
			}
			if len(out)%2 == 1 {
				out = append(out, 0)
			}
			offsets[i] = uint64(len(out))
			out = append(out, v...)
		}
		if len(out)%2 == 1 {
			out = append(out, 0)
		}
		putPtr(link, uint64(len(out)))

		if opts.BigTIFF {
			out = order.AppendUint64(out, uint64(len(fields)))
		} else {
			out = order.AppendUint16(out, uint16(len(fields)))
		}
		for i, f := range fields {
			out = order.AppendUint16(out, f.Tag)
			out = order.AppendUint16(out, f.Type)
			if opts.BigTIFF {
				out = order.AppendUint64(out, f.count)
			} else {
				out = order.AppendUint32(out, uint32(f.count))
			}
			slot := make([]byte, ptr)
			if len(values[i]) <= ptr {
				copy(slot, values[i])
			} else if opts.BigTIFF {
				order.PutUint64(slot, offsets[i])
			} else {
				order.PutUint32(slot, uint32(offsets[i]))
			}
			out = append(out, slot...)
		}
		link = len(out)
		out = append(out, make([]byte, ptr)...)
	}
	return out
}

func narrow(v []uint64) []uint32 {
	out := make([]uint32, len(v))
	for i, x := range v {
		out[i] = uint32(x)
	}
	return out
}

// Write builds a file in a test temporary directory and returns its path.
func Write(t testing.TB, opts Options, dirs ...Dir) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slide.tiff")
	if err := os.WriteFile(path, Build(opts, dirs...), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
