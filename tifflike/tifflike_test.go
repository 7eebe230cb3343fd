package tifflike

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/ekonechny/gopenslide/v2/internal/tifftest"
)

func sample(opts tifftest.Options) []byte {
	return tifftest.Build(opts,
		tifftest.Dir{
			Fields: []tifftest.Field{
				tifftest.Long(uint16(ImageWidth), 1000),
				tifftest.Long(uint16(ImageLength), 600),
				tifftest.Short(uint16(BitsPerSample), 8, 8, 8),
				tifftest.Short(uint16(Compression), 1),
				tifftest.Short(uint16(TileWidth), 256),
				tifftest.Short(uint16(TileLength), 256),
				tifftest.ASCII(uint16(ImageDescription), "a slide"),
				tifftest.Rational(uint16(XResolution), 40000, 10),
			},
			Tiles: [][]byte{{1, 2, 3}, {4, 5, 6, 7, 8, 9}},
		},
		tifftest.Dir{
			Fields: []tifftest.Field{
				tifftest.Long(uint16(ImageWidth), 100),
				tifftest.Long(uint16(ImageLength), 60),
			},
		},
	)
}

func TestParse(t *testing.T) {
	for _, opts := range []tifftest.Options{
		{},
		{BigEndian: true},
		{BigTIFF: true},
		{BigTIFF: true, BigEndian: true},
	} {
		data := sample(opts)
		tf, err := Parse(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%+v: %v", opts, err)
		}
		if tf.BigTIFF() != opts.BigTIFF {
			t.Errorf("%+v: BigTIFF() = %v", opts, tf.BigTIFF())
		}
		if n := tf.DirectoryCount(); n != 2 {
			t.Fatalf("%+v: %d directories, want 2", opts, n)
		}
		d, _ := tf.Directory(0)
		if w, err := d.Uint(ImageWidth); err != nil || w != 1000 {
			t.Errorf("%+v: width %d, %v", opts, w, err)
		}
		if bps, _ := d.Uints(BitsPerSample); len(bps) != 3 || bps[2] != 8 {
			t.Errorf("%+v: bits per sample %v", opts, bps)
		}
		if s, err := d.String(ImageDescription); err != nil || s != "a slide" {
			t.Errorf("%+v: description %q, %v", opts, s, err)
		}
		if x, err := d.Float(XResolution); err != nil || x != 4000 {
			t.Errorf("%+v: x resolution %v, %v", opts, x, err)
		}
		if !d.IsTiled() {
			t.Errorf("%+v: directory 0 not tiled", opts)
		}
		offs, _ := d.Uints(TileOffsets)
		counts, _ := d.Uints(TileByteCounts)
		tile, err := tf.ReadRange(offs[1], counts[1])
		if err != nil || !bytes.Equal(tile, []byte{4, 5, 6, 7, 8, 9}) {
			t.Errorf("%+v: tile 1 = %v, %v", opts, tile, err)
		}
		d1, _ := tf.Directory(1)
		if d1.IsTiled() {
			t.Errorf("%+v: directory 1 tiled", opts)
		}
		if got := d1.UintOr(Compression, 1); got != 1 {
			t.Errorf("%+v: default compression %d", opts, got)
		}
	}
}

func TestErrors(t *testing.T) {
	if _, err := Parse(bytes.NewReader([]byte("GIF89a.."))); !errors.Is(err, ErrNotTIFF) {
		t.Errorf("gif: got %v", err)
	}
	if _, err := Parse(bytes.NewReader(nil)); !errors.Is(err, ErrNotTIFF) {
		t.Errorf("empty: got %v", err)
	}

	tf, err := Parse(bytes.NewReader(sample(tifftest.Options{})))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tf.Directory(5); !errors.Is(err, ErrDirectory) {
		t.Errorf("directory 5: got %v", err)
	}
	d, _ := tf.Directory(0)
	if _, err := d.Uint(ICCProfile); !errors.Is(err, ErrNoTag) {
		t.Errorf("missing tag: got %v", err)
	}
	if _, err := d.Uint(ImageDescription); !errors.Is(err, ErrBadType) {
		t.Errorf("ascii as uint: got %v", err)
	}
}

func TestLoop(t *testing.T) {
	data := tifftest.Build(tifftest.Options{}, tifftest.Dir{
		Fields: []tifftest.Field{tifftest.Long(uint16(ImageWidth), 1)},
	})
	// point the directory's next link back at itself
	first := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
	data[len(data)-4] = byte(first)
	data[len(data)-3] = byte(first >> 8)
	data[len(data)-2] = byte(first >> 16)
	data[len(data)-1] = byte(first >> 24)
	if _, err := Parse(bytes.NewReader(data)); !errors.Is(err, ErrLoop) {
		t.Errorf("got %v, want ErrLoop", err)
	}
}

func TestValuePastEnd(t *testing.T) {
	// one ASCII tag claiming 512 MiB stored at offset 26
	data := []byte{
		'I', 'I', 42, 0, 8, 0, 0, 0,
		1, 0,
		0x0e, 0x01, 2, 0, 0, 0, 0, 0x20, 26, 0, 0, 0,
		0, 0, 0, 0,
	}
	if _, err := Parse(bytes.NewReader(data)); !errors.Is(err, ErrCorruptIFD) {
		t.Errorf("got %v, want ErrCorruptIFD", err)
	}
}

func TestEntriesPastEnd(t *testing.T) {
	// 300 entries announced, none present
	data := []byte{'I', 'I', 42, 0, 8, 0, 0, 0, 0x2c, 0x01, 0, 0}
	if _, err := Parse(bytes.NewReader(data)); !errors.Is(err, ErrCorruptIFD) {
		t.Errorf("got %v, want ErrCorruptIFD", err)
	}
}

func TestReadRangePastEnd(t *testing.T) {
	data := sample(tifftest.Options{})
	tf, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	n := uint64(len(data))
	for _, r := range [][2]uint64{
		{0, n + 1},
		{n, 1},
		{1, math.MaxUint64},
		{math.MaxUint64, 2},
	} {
		if _, err := tf.ReadRange(r[0], r[1]); err == nil {
			t.Errorf("ReadRange(%d, %d) succeeded", r[0], r[1])
		}
	}
	if b, err := tf.ReadRange(n-4, 4); err != nil || len(b) != 4 {
		t.Errorf("ReadRange of the last 4 bytes = %v, %v", b, err)
	}
}
