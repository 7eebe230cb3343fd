// Package tifflike parses the directory structure of classic TIFF and
// BigTIFF files without decoding any image data. Slide formats built on
// TIFF share one parse of it during detection and open.
package tifflike

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Tag is a TIFF field tag.
type Tag uint16

const (
	NewSubfileType            Tag = 254
	ImageWidth                Tag = 256
	ImageLength               Tag = 257
	BitsPerSample             Tag = 258
	Compression               Tag = 259
	PhotometricInterpretation Tag = 262
	ImageDescription          Tag = 270
	Make                      Tag = 271
	Model                     Tag = 272
	StripOffsets              Tag = 273
	SamplesPerPixel           Tag = 277
	RowsPerStrip              Tag = 278
	StripByteCounts           Tag = 279
	XResolution               Tag = 282
	YResolution               Tag = 283
	PlanarConfiguration       Tag = 284
	ResolutionUnit            Tag = 296
	Software                  Tag = 305
	DateTime                  Tag = 306
	Predictor                 Tag = 317
	TileWidth                 Tag = 322
	TileLength                Tag = 323
	TileOffsets               Tag = 324
	TileByteCounts            Tag = 325
	JPEGTables                Tag = 347
	YCbCrSubSampling          Tag = 530
	ICCProfile                Tag = 34675
)

// Type is a TIFF field type.
type Type uint16

const (
	TypeByte      Type = 1
	TypeASCII     Type = 2
	TypeShort     Type = 3
	TypeLong      Type = 4
	TypeRational  Type = 5
	TypeSByte     Type = 6
	TypeUndefined Type = 7
	TypeSShort    Type = 8
	TypeSLong     Type = 9
	TypeSRational Type = 10
	TypeFloat     Type = 11
	TypeDouble    Type = 12
	TypeIFD       Type = 13
	TypeLong8     Type = 16
	TypeSLong8    Type = 17
	TypeIFD8      Type = 18
)

// Size returns the byte size of one value of t, or 0 if t is unknown.
func (t Type) Size() int {
	switch t {
	case TypeByte, TypeASCII, TypeSByte, TypeUndefined:
		return 1
	case TypeShort, TypeSShort:
		return 2
	case TypeLong, TypeSLong, TypeFloat, TypeIFD:
		return 4
	case TypeRational, TypeSRational, TypeDouble, TypeLong8, TypeSLong8, TypeIFD8:
		return 8
	}
	return 0
}

var (
	ErrNotTIFF    = errors.New("tifflike: not a TIFF file")
	ErrNoTag      = errors.New("tifflike: no such tag")
	ErrBadType    = errors.New("tifflike: unexpected field type")
	ErrDirectory  = errors.New("tifflike: no such directory")
	ErrLoop       = errors.New("tifflike: loop in directory chain")
	ErrCorruptIFD = errors.New("tifflike: corrupt directory")
)

// maxEntries bounds a single directory so a garbage count cannot force a
// huge allocation.
const maxEntries = 1 << 16

const maxValueBytes = 1 << 30

type entry struct {
	typ   Type
	count uint64
	raw   []byte
}

// Directory is one parsed image file directory.
type Directory struct {
	Offset  uint64
	order   binary.ByteOrder
	entries map[Tag]*entry
}

// File is a parsed TIFF. Its reader stays open for tile reads until Close.
type File struct {
	r      io.ReaderAt
	size   int64 // -1 when the reader cannot tell
	closer io.Closer
	order  binary.ByteOrder
	big    bool
	dirs   []*Directory
}

// Open parses the TIFF file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	tf, err := Parse(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	tf.closer = f
	return tf, nil
}

// Parse reads the header and every directory in the chain from r.
func Parse(r io.ReaderAt) (*File, error) {
	var hdr [16]byte
	if _, err := r.ReadAt(hdr[:8], 0); err != nil {
		return nil, ErrNotTIFF
	}
	tf := &File{r: r, size: readerSize(r)}
	switch string(hdr[:2]) {
	case "II":
		tf.order = binary.LittleEndian
	case "MM":
		tf.order = binary.BigEndian
	default:
		return nil, ErrNotTIFF
	}
	var next uint64
	switch tf.order.Uint16(hdr[2:]) {
	case 42:
		next = uint64(tf.order.Uint32(hdr[4:]))
	case 43:
		if _, err := r.ReadAt(hdr[8:16], 8); err != nil {
			return nil, ErrNotTIFF
		}
		if tf.order.Uint16(hdr[4:]) != 8 || tf.order.Uint16(hdr[6:]) != 0 {
			return nil, fmt.Errorf("%w: unsupported BigTIFF offset size", ErrNotTIFF)
		}
		tf.big = true
		next = tf.order.Uint64(hdr[8:])
	default:
		return nil, ErrNotTIFF
	}

	seen := make(map[uint64]bool)
	for next != 0 {
		if seen[next] {
			return nil, ErrLoop
		}
		seen[next] = true
		d, n, err := tf.readDirectory(next)
		if err != nil {
			return nil, err
		}
		tf.dirs = append(tf.dirs, d)
		next = n
	}
	if len(tf.dirs) == 0 {
		return nil, fmt.Errorf("%w: no directories", ErrCorruptIFD)
	}
	return tf, nil
}

func readerSize(r io.ReaderAt) int64 {
	switch v := r.(type) {
	case interface{ Size() int64 }:
		return v.Size()
	case interface{ Stat() (os.FileInfo, error) }:
		if fi, err := v.Stat(); err == nil {
			return fi.Size()
		}
	}
	return -1
}

// fits reports whether n bytes at off lie within the file.
func (tf *File) fits(off, n uint64) bool {
	if tf.size < 0 {
		return true
	}
	size := uint64(tf.size)
	return off <= size && n <= size-off
}

func (tf *File) readDirectory(off uint64) (*Directory, uint64, error) {
	countSize, entrySize, ptrSize := 2, 12, 4
	if tf.big {
		countSize, entrySize, ptrSize = 8, 20, 8
	}
	buf := make([]byte, countSize)
	if _, err := tf.r.ReadAt(buf, int64(off)); err != nil {
		return nil, 0, fmt.Errorf("%w: reading count at %d: %v", ErrCorruptIFD, off, err)
	}
	var count uint64
	if tf.big {
		count = tf.order.Uint64(buf)
	} else {
		count = uint64(tf.order.Uint16(buf))
	}
	if count > maxEntries {
		return nil, 0, fmt.Errorf("%w: %d entries at %d", ErrCorruptIFD, count, off)
	}

	if !tf.fits(off+uint64(countSize), count*uint64(entrySize)+uint64(ptrSize)) {
		return nil, 0, fmt.Errorf("%w: %d entries at %d run past the end of the file", ErrCorruptIFD, count, off)
	}
	body := make([]byte, int(count)*entrySize+ptrSize)
	if _, err := tf.r.ReadAt(body, int64(off)+int64(countSize)); err != nil {
		return nil, 0, fmt.Errorf("%w: reading entries at %d: %v", ErrCorruptIFD, off, err)
	}
	d := &Directory{Offset: off, order: tf.order, entries: make(map[Tag]*entry, count)}
	for i := 0; i < int(count); i++ {
		e := body[i*entrySize:][:entrySize]
		tag := Tag(tf.order.Uint16(e))
		typ := Type(tf.order.Uint16(e[2:]))
		var n uint64
		var value []byte
		if tf.big {
			n, value = tf.order.Uint64(e[4:]), e[12:20]
		} else {
			n, value = uint64(tf.order.Uint32(e[4:])), e[8:12]
		}
		size := uint64(typ.Size())
		if size == 0 {
			// unknown types are skipped, as libtiff does
			continue
		}
		total := size * n
		if n != 0 && (total/n != size || total > maxValueBytes) {
			return nil, 0, fmt.Errorf("%w: tag %d count overflows", ErrCorruptIFD, tag)
		}
		var raw []byte
		if total <= uint64(len(value)) {
			raw = make([]byte, total)
			copy(raw, value)
		} else {
			var at uint64
			if tf.big {
				at = tf.order.Uint64(value)
			} else {
				at = uint64(tf.order.Uint32(value))
			}
			if !tf.fits(at, total) {
				return nil, 0, fmt.Errorf("%w: tag %d value of %d bytes at %d runs past the end of the file",
					ErrCorruptIFD, tag, total, at)
			}
			raw = make([]byte, total)
			if _, err := tf.r.ReadAt(raw, int64(at)); err != nil {
				return nil, 0, fmt.Errorf("%w: tag %d value at %d: %v", ErrCorruptIFD, tag, at, err)
			}
		}
		d.entries[tag] = &entry{typ: typ, count: n, raw: raw}
	}
	tail := body[int(count)*entrySize:]
	if tf.big {
		return d, tf.order.Uint64(tail), nil
	}
	return d, uint64(tf.order.Uint32(tail)), nil
}

// Close releases the underlying file, if Open created it.
func (tf *File) Close() error {
	if tf.closer == nil {
		return nil
	}
	return tf.closer.Close()
}

// BigTIFF reports whether the file uses 64-bit offsets.
func (tf *File) BigTIFF() bool { return tf.big }

// ByteOrder returns the file's byte order.
func (tf *File) ByteOrder() binary.ByteOrder { return tf.order }

// DirectoryCount returns the number of directories in the chain.
func (tf *File) DirectoryCount() int { return len(tf.dirs) }

// Directory returns directory i.
func (tf *File) Directory(i int) (*Directory, error) {
	if i < 0 || i >= len(tf.dirs) {
		return nil, fmt.Errorf("%w: %d", ErrDirectory, i)
	}
	return tf.dirs[i], nil
}

// ReadRange reads n bytes at off.
func (tf *File) ReadRange(off, n uint64) ([]byte, error) {
	if !tf.fits(off, n) || n > math.MaxInt {
		return nil, fmt.Errorf("tifflike: %d bytes at %d run past the end of the file", n, off)
	}
	buf := make([]byte, n)
	if _, err := tf.r.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("tifflike: reading %d bytes at %d: %w", n, off, err)
	}
	return buf, nil
}

// Has reports whether tag is present.
func (d *Directory) Has(tag Tag) bool {
	_, ok := d.entries[tag]
	return ok
}

// Count returns the value count of tag, or 0 if absent.
func (d *Directory) Count(tag Tag) uint64 {
	if e, ok := d.entries[tag]; ok {
		return e.count
	}
	return 0
}

// IsTiled reports whether the directory stores its image in tiles.
func (d *Directory) IsTiled() bool {
	return d.Has(TileWidth) && d.Has(TileLength) && d.Has(TileOffsets) && d.Has(TileByteCounts)
}

func (d *Directory) lookup(tag Tag) (*entry, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoTag, tag)
	}
	return e, nil
}

// Uints returns the values of an integer-typed tag.
func (d *Directory) Uints(tag Tag) ([]uint64, error) {
	e, err := d.lookup(tag)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case TypeByte, TypeUndefined:
			out[i] = uint64(e.raw[i])
		case TypeShort:
			out[i] = uint64(d.order.Uint16(e.raw[2*i:]))
		case TypeLong, TypeIFD:
			out[i] = uint64(d.order.Uint32(e.raw[4*i:]))
		case TypeLong8, TypeIFD8:
			out[i] = d.order.Uint64(e.raw[8*i:])
		default:
			return nil, fmt.Errorf("%w: tag %d has type %d", ErrBadType, tag, e.typ)
		}
	}
	return out, nil
}

// Uint returns the first value of an integer-typed tag.
func (d *Directory) Uint(tag Tag) (uint64, error) {
	v, err := d.Uints(tag)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: tag %d is empty", ErrCorruptIFD, tag)
	}
	return v[0], nil
}

// UintOr returns the first value of tag, or def if it is absent or not
// an integer.
func (d *Directory) UintOr(tag Tag, def uint64) uint64 {
	v, err := d.Uint(tag)
	if err != nil {
		return def
	}
	return v
}

// Float returns the first value of a numeric tag as a float64.
func (d *Directory) Float(tag Tag) (float64, error) {
	e, err := d.lookup(tag)
	if err != nil {
		return 0, err
	}
	if e.count == 0 {
		return 0, fmt.Errorf("%w: tag %d is empty", ErrCorruptIFD, tag)
	}
	switch e.typ {
	case TypeRational:
		num, den := d.order.Uint32(e.raw), d.order.Uint32(e.raw[4:])
		if den == 0 {
			return 0, fmt.Errorf("%w: tag %d has zero denominator", ErrCorruptIFD, tag)
		}
		return float64(num) / float64(den), nil
	case TypeSRational:
		num, den := int32(d.order.Uint32(e.raw)), int32(d.order.Uint32(e.raw[4:]))
		if den == 0 {
			return 0, fmt.Errorf("%w: tag %d has zero denominator", ErrCorruptIFD, tag)
		}
		return float64(num) / float64(den), nil
	case TypeFloat:
		return float64(math.Float32frombits(d.order.Uint32(e.raw))), nil
	case TypeDouble:
		return math.Float64frombits(d.order.Uint64(e.raw)), nil
	}
	v, err := d.Uint(tag)
	return float64(v), err
}

// String returns an ASCII tag without its trailing NULs.
func (d *Directory) String(tag Tag) (string, error) {
	e, err := d.lookup(tag)
	if err != nil {
		return "", err
	}
	if e.typ != TypeASCII {
		return "", fmt.Errorf("%w: tag %d has type %d", ErrBadType, tag, e.typ)
	}
	return strings.TrimRight(string(e.raw), "\x00"), nil
}

// Bytes returns the raw value bytes of tag in file byte order.
func (d *Directory) Bytes(tag Tag) ([]byte, error) {
	e, err := d.lookup(tag)
	if err != nil {
		return nil, err
	}
	return e.raw, nil
}
