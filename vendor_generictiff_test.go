package gopenslide

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/ekonechny/gopenslide/v2/internal/tifftest"
	"github.com/ekonechny/gopenslide/v2/tifflike"
)

const testTile = 16

// tileColor is the solid color of tile (col, row) of level.
func tileColor(level, col, row int) (r, g, b byte) {
	return byte(40 + 30*col), byte(60 + 50*row), byte(200 - 80*level)
}

type tiffPyramid struct {
	compression uint16
	opts        tifftest.Options
	extra       []tifftest.Field
	encode      func(t *testing.T, rgb []byte) []byte
	differenced bool // horizontal predictor
}

func rawRGB(r, g, b byte) []byte {
	out := make([]byte, 3*testTile*testTile)
	for i := 0; i < len(out); i += 3 {
		out[i], out[i+1], out[i+2] = r, g, b
	}
	return out
}

// write builds a 32x32 level 0 and a 16x16 reduced level, both RGB in
// 16x16 tiles.
func (p tiffPyramid) write(t *testing.T) string {
	t.Helper()
	photometric := uint16(photometricRGB)
	if p.compression == compressionJPEG {
		photometric = photometricYCbCr
	}
	level := func(n, size int, subfile uint32) tifftest.Dir {
		fields := []tifftest.Field{
			tifftest.Long(uint16(tifflike.ImageWidth), uint32(size)),
			tifftest.Long(uint16(tifflike.ImageLength), uint32(size)),
			tifftest.Short(uint16(tifflike.BitsPerSample), 8, 8, 8),
			tifftest.Short(uint16(tifflike.Compression), p.compression),
			tifftest.Short(uint16(tifflike.PhotometricInterpretation), photometric),
			tifftest.Short(uint16(tifflike.SamplesPerPixel), 3),
			tifftest.Short(uint16(tifflike.TileWidth), testTile),
			tifftest.Short(uint16(tifflike.TileLength), testTile),
		}
		if subfile != 0 {
			fields = append(fields, tifftest.Long(uint16(tifflike.NewSubfileType), subfile))
		}
		if p.differenced {
			fields = append(fields, tifftest.Short(uint16(tifflike.Predictor), predictorHorizontal))
		}
		if n == 0 {
			fields = append(fields, p.extra...)
		}
		var tiles [][]byte
		for row := 0; row < size/testTile; row++ {
			for col := 0; col < size/testTile; col++ {
				rgb := rawRGB(tileColor(n, col, row))
				if p.differenced {
					differenceRows8(rgb, testTile, 3)
				}
				tiles = append(tiles, p.encode(t, rgb))
			}
		}
		return tifftest.Dir{Fields: fields, Tiles: tiles}
	}
	return tifftest.Write(t, p.opts, level(0, 32, 0), level(1, 16, 1))
}

// differenceRows8 applies the TIFF horizontal predictor to 8-bit rows.
func differenceRows8(data []byte, w, samples int) {
	row := w * samples
	for off := 0; off < len(data); off += row {
		r := data[off : off+row]
		for i := len(r) - 1; i >= samples; i-- {
			r[i] -= r[i-samples]
		}
	}
}

func encodeNone(_ *testing.T, rgb []byte) []byte { return rgb }

func encodeLZW(_ *testing.T, data []byte) []byte { return tiffLZW(data) }

// tiffLZW compresses data the way TIFF writers do: MSB-first codes that
// widen one code early, a leading Clear, and a Clear each time the 12-bit
// table fills.
func tiffLZW(data []byte) []byte {
	const (
		clearCode = 256
		eoiCode   = 257
	)
	var (
		out   []byte
		acc   uint64
		nacc  uint
		width uint = 9
		hi    int
		table map[[2]int]int
	)
	emit := func(code int) {
		acc = acc<<width | uint64(code)
		nacc += width
		for nacc >= 8 {
			out = append(out, byte(acc>>(nacc-8)))
			nacc -= 8
		}
	}
	reset := func() {
		emit(clearCode)
		width, hi = 9, eoiCode
		table = make(map[[2]int]int)
	}
	// advance tracks the reader's code width; it reports a full table.
	advance := func() bool {
		hi++
		if hi+1 >= 1<<width {
			if width == 12 {
				return true
			}
			width++
		}
		return false
	}

	reset()
	if len(data) > 0 {
		w := int(data[0])
		for _, c := range data[1:] {
			if code, ok := table[[2]int{w, int(c)}]; ok {
				w = code
				continue
			}
			emit(w)
			if advance() {
				reset()
			} else {
				table[[2]int{w, int(c)}] = hi
			}
			w = int(c)
		}
		emit(w)
		if advance() {
			reset()
		}
	}
	emit(eoiCode)
	if nacc > 0 {
		out = append(out, byte(acc<<(8-nacc)))
	}
	return out
}

func encodeDeflate(t *testing.T, rgb []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(rgb); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, rgb []byte) []byte {
	img := image.NewRGBA(image.Rect(0, 0, testTile, testTile))
	for i := 0; i < testTile*testTile; i++ {
		img.Pix[4*i] = rgb[3*i]
		img.Pix[4*i+1] = rgb[3*i+1]
		img.Pix[4*i+2] = rgb[3*i+2]
		img.Pix[4*i+3] = 0xff
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func near(a, b byte, tol int) bool {
	d := int(a) - int(b)
	return d >= -tol && d <= tol
}

func TestGenericTIFFCompressions(t *testing.T) {
	for _, tc := range []struct {
		name string
		p    tiffPyramid
		tol  int
	}{
		{"none", tiffPyramid{compression: compressionNone, encode: encodeNone}, 0},
		{"lzw", tiffPyramid{compression: compressionLZW, encode: encodeLZW}, 0},
		{"deflate", tiffPyramid{compression: compressionDeflate, encode: encodeDeflate}, 0},
		{"adobe deflate", tiffPyramid{compression: compressionAdobeDeflate, encode: encodeDeflate}, 0},
		{"deflate predictor", tiffPyramid{compression: compressionDeflate, encode: encodeDeflate, differenced: true}, 0},
		{"lzw predictor", tiffPyramid{compression: compressionLZW, encode: encodeLZW, differenced: true}, 0},
		{"jpeg", tiffPyramid{compression: compressionJPEG, encode: encodeJPEG}, 3},
		{"jpeg tables", tiffPyramid{
			compression: compressionJPEG,
			encode:      encodeJPEG,
			// SOI EOI: the tiles carry their own tables
			extra: []tifftest.Field{tifftest.Undefined(uint16(tifflike.JPEGTables), []byte{0xff, 0xd8, 0xff, 0xd9})},
		}, 3},
		{"bigtiff", tiffPyramid{compression: compressionNone, encode: encodeNone, opts: tifftest.Options{BigTIFF: true}}, 0},
		{"big endian", tiffPyramid{compression: compressionLZW, encode: encodeLZW, opts: tifftest.Options{BigEndian: true}}, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			wsi, err := Open(tc.p.write(t))
			if err != nil {
				t.Fatal(err)
			}
			defer wsi.Close()

			if got := wsi.GetVendor(); got != "generic-tiff" {
				t.Errorf("vendor %q, want generic-tiff", got)
			}
			if got := wsi.LevelCount(); got != 2 {
				t.Fatalf("got %d levels, want 2", got)
			}
			if got := wsi.LevelDownsample(1); got != 2 {
				t.Errorf("level 1 downsample %v, want 2", got)
			}

			for level, size := range []int64{32, 16} {
				dst := make([]uint32, size*size)
				wsi.ReadRegionARGB(dst, 0, 0, int32(level), size, size)
				if err := wsi.Error(); err != nil {
					t.Fatal(err)
				}
				for y := int64(0); y < size; y++ {
					for x := int64(0); x < size; x++ {
						r, g, b := tileColor(level, int(x/testTile), int(y/testTile))
						p := dst[y*size+x]
						if p>>24 != 0xff || !near(byte(p>>16), r, tc.tol) ||
							!near(byte(p>>8), g, tc.tol) || !near(byte(p), b, tc.tol) {
							t.Fatalf("level %d (%d,%d) = %#08x, want rgb %d,%d,%d", level, x, y, p, r, g, b)
						}
					}
				}
			}
		})
	}
}

func TestGenericTIFFNoisyLZW(t *testing.T) {
	// 12 KiB tiles of 16-level noise run the code width from 9 to 12 bits
	// and overflow the table at least once.
	const size = 64
	r := rand.New(rand.NewSource(7))
	var (
		tiles [][]byte
		want  [][]byte
	)
	for i := 0; i < 2; i++ {
		rgb := make([]byte, 3*size*size)
		for j := range rgb {
			rgb[j] = byte(r.Intn(16) * 17)
		}
		want = append(want, rgb)
		tiles = append(tiles, tiffLZW(rgb))
	}
	path := tifftest.Write(t, tifftest.Options{}, tifftest.Dir{
		Fields: []tifftest.Field{
			tifftest.Long(uint16(tifflike.ImageWidth), 2*size),
			tifftest.Long(uint16(tifflike.ImageLength), size),
			tifftest.Short(uint16(tifflike.BitsPerSample), 8, 8, 8),
			tifftest.Short(uint16(tifflike.Compression), compressionLZW),
			tifftest.Short(uint16(tifflike.PhotometricInterpretation), photometricRGB),
			tifftest.Short(uint16(tifflike.SamplesPerPixel), 3),
			tifftest.Short(uint16(tifflike.TileWidth), size),
			tifftest.Short(uint16(tifflike.TileLength), size),
		},
		Tiles: tiles,
	})
	wsi, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer wsi.Close()

	dst := make([]uint32, 2*size*size)
	wsi.ReadRegionARGB(dst, 0, 0, 0, 2*size, size)
	if err := wsi.Error(); err != nil {
		t.Fatal(err)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < 2*size; x++ {
			src := want[x/size][3*(y*size+x%size):]
			exp := 0xff000000 | uint32(src[0])<<16 | uint32(src[1])<<8 | uint32(src[2])
			if got := dst[y*2*size+x]; got != exp {
				t.Fatalf("(%d,%d) = %#08x, want %#08x", x, y, got, exp)
			}
		}
	}
}

func TestGenericTIFFEdgeTilesCropped(t *testing.T) {
	// 20x20 image in 16x16 tiles: the right and bottom tiles are padded
	var tiles [][]byte
	for i := 0; i < 4; i++ {
		tiles = append(tiles, rawRGB(10, 20, 30))
	}
	path := tifftest.Write(t, tifftest.Options{}, tifftest.Dir{
		Fields: []tifftest.Field{
			tifftest.Long(uint16(tifflike.ImageWidth), 20),
			tifftest.Long(uint16(tifflike.ImageLength), 20),
			tifftest.Short(uint16(tifflike.BitsPerSample), 8, 8, 8),
			tifftest.Short(uint16(tifflike.PhotometricInterpretation), photometricRGB),
			tifftest.Short(uint16(tifflike.SamplesPerPixel), 3),
			tifftest.Short(uint16(tifflike.TileWidth), testTile),
			tifftest.Short(uint16(tifflike.TileLength), testTile),
		},
		Tiles: tiles,
	})
	wsi, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer wsi.Close()

	dst := make([]uint32, 24*24)
	wsi.ReadRegionARGB(dst, 0, 0, 0, 24, 24)
	if err := wsi.Error(); err != nil {
		t.Fatal(err)
	}
	if got := dst[19*24+19]; got != 0xff0a141e {
		t.Errorf("last pixel %#08x, want 0xff0a141e", got)
	}
	if got := dst[19*24+20]; got != 0 {
		t.Errorf("right of the image %#08x, want transparent", got)
	}
	if got := dst[20*24]; got != 0 {
		t.Errorf("below the image %#08x, want transparent", got)
	}
}

func gray16Pyramid(t *testing.T, opts tifftest.Options) (string, []uint16) {
	t.Helper()
	samples := make([]uint16, testTile*testTile)
	order := binary.ByteOrder(binary.LittleEndian)
	if opts.BigEndian {
		order = binary.BigEndian
	}
	tile := make([]byte, 2*len(samples))
	for i := range samples {
		samples[i] = uint16(i * 251)
		order.PutUint16(tile[2*i:], samples[i])
	}
	path := tifftest.Write(t, opts, tifftest.Dir{
		Fields: []tifftest.Field{
			tifftest.Long(uint16(tifflike.ImageWidth), testTile),
			tifftest.Long(uint16(tifflike.ImageLength), testTile),
			tifftest.Short(uint16(tifflike.BitsPerSample), 16),
			tifftest.Short(uint16(tifflike.PhotometricInterpretation), photometricMinIsBlack),
			tifftest.Short(uint16(tifflike.TileWidth), testTile),
			tifftest.Short(uint16(tifflike.TileLength), testTile),
		},
		Tiles: [][]byte{tile},
	})
	return path, samples
}

func TestGenericTIFFGray16(t *testing.T) {
	for _, opts := range []tifftest.Options{{}, {BigEndian: true}, {BigTIFF: true, BigEndian: true}} {
		path, samples := gray16Pyramid(t, opts)
		wsi, err := Open(path)
		if err != nil {
			t.Fatal(err)
		}

		g16 := make([]byte, 2*testTile*testTile)
		wsi.ReadRegionGray16(g16, 0, 0, 0, testTile, testTile)
		g8 := make([]byte, testTile*testTile)
		wsi.ReadRegionGray8(g8, 0, 0, 0, testTile, testTile)
		if err := wsi.Error(); err != nil {
			t.Fatalf("%+v: %v", opts, err)
		}
		for i, want := range samples {
			if got := binary.LittleEndian.Uint16(g16[2*i:]); got != want {
				t.Fatalf("%+v: gray16 sample %d = %d, want %d", opts, i, got, want)
			}
			if got := g8[i]; got != byte(want>>8) {
				t.Fatalf("%+v: gray8 sample %d = %d, want %d", opts, i, got, want>>8)
			}
		}

		// gray sources expand to opaque ARGB
		argb := make([]uint32, testTile*testTile)
		wsi.ReadRegionARGB(argb, 0, 0, 0, testTile, testTile)
		v := uint32(samples[5] >> 8)
		if want := 0xff000000 | v<<16 | v<<8 | v; argb[5] != want {
			t.Errorf("%+v: argb %#08x, want %#08x", opts, argb[5], want)
		}
		wsi.Close()
	}
}

func TestGenericTIFFPredictor16(t *testing.T) {
	const w, h = testTile, 4
	for _, opts := range []tifftest.Options{{}, {BigEndian: true}} {
		order := binary.ByteOrder(binary.LittleEndian)
		if opts.BigEndian {
			order = binary.BigEndian
		}
		samples := make([]uint16, w*h)
		diffs := make([]byte, 2*w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				samples[i] = uint16(1000*y + 37*x*x)
				d := samples[i]
				if x > 0 {
					d -= samples[i-1]
				}
				order.PutUint16(diffs[2*i:], d)
			}
		}
		path := tifftest.Write(t, opts, tifftest.Dir{
			Fields: []tifftest.Field{
				tifftest.Long(uint16(tifflike.ImageWidth), w),
				tifftest.Long(uint16(tifflike.ImageLength), h),
				tifftest.Short(uint16(tifflike.BitsPerSample), 16),
				tifftest.Short(uint16(tifflike.Compression), compressionDeflate),
				tifftest.Short(uint16(tifflike.PhotometricInterpretation), photometricMinIsBlack),
				tifftest.Short(uint16(tifflike.Predictor), predictorHorizontal),
				tifftest.Short(uint16(tifflike.TileWidth), w),
				tifftest.Short(uint16(tifflike.TileLength), h),
			},
			Tiles: [][]byte{encodeDeflate(t, diffs)},
		})
		wsi, err := Open(path)
		if err != nil {
			t.Fatal(err)
		}
		g16 := make([]byte, 2*w*h)
		wsi.ReadRegionGray16(g16, 0, 0, 0, w, h)
		if err := wsi.Error(); err != nil {
			t.Fatalf("%+v: %v", opts, err)
		}
		for i, want := range samples {
			if got := binary.LittleEndian.Uint16(g16[2*i:]); got != want {
				t.Fatalf("%+v: sample %d = %d, want %d", opts, i, got, want)
			}
		}
		wsi.Close()
	}
}

func TestGenericTIFFProperties(t *testing.T) {
	icc := bytes.Repeat([]byte{7}, 60)
	p := tiffPyramid{
		compression: compressionNone,
		encode:      encodeNone,
		extra: []tifftest.Field{
			tifftest.ASCII(uint16(tifflike.ImageDescription), "test pyramid"),
			tifftest.ASCII(uint16(tifflike.Make), "maker"),
			tifftest.Rational(uint16(tifflike.XResolution), 40000, 1),
			tifftest.Rational(uint16(tifflike.YResolution), 20000, 1),
			tifftest.Short(uint16(tifflike.ResolutionUnit), 3),
			tifftest.Undefined(uint16(tifflike.ICCProfile), icc),
		},
	}
	wsi, err := Open(p.write(t))
	if err != nil {
		t.Fatal(err)
	}
	defer wsi.Close()

	for name, want := range map[string]string{
		"tiff.ImageDescription":    "test pyramid",
		"tiff.Make":                "maker",
		"tiff.XResolution":         "40000",
		"tiff.ResolutionUnit":      "centimeter",
		PropertyComment:            "test pyramid",
		PropertyMPPX:               "0.25",
		PropertyMPPY:               "0.5",
		PropertyICCSize:            "60",
		PropertyLevelCount:         "2",
		PropertyLevelTileWidth(1):  "16",
		PropertyLevelDownsample(1): "2",
		PropertyVendor:             "generic-tiff",
	} {
		if got := wsi.PropertyValue(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if wsi.PropertyValue(PropertyQuickHash1) == "" {
		t.Error("no quickhash")
	}

	got := make([]byte, wsi.ICCProfileSize())
	wsi.ReadICCProfile(got)
	if !bytes.Equal(got, icc) {
		t.Errorf("ICC profile %v, want %v", got, icc)
	}
}

func TestGenericTIFFQuickhash(t *testing.T) {
	hash := func(p tiffPyramid) string {
		wsi, err := Open(p.write(t))
		if err != nil {
			t.Fatal(err)
		}
		defer wsi.Close()
		return wsi.PropertyValue(PropertyQuickHash1)
	}
	a := hash(tiffPyramid{compression: compressionNone, encode: encodeNone})
	b := hash(tiffPyramid{compression: compressionNone, encode: encodeNone})
	c := hash(tiffPyramid{compression: compressionDeflate, encode: encodeDeflate})
	if a == "" || a != b {
		t.Errorf("identical files hash to %q and %q", a, b)
	}
	if a == c {
		t.Errorf("different tiles share quickhash %q", a)
	}
}

func TestGenericTIFFRejects(t *testing.T) {
	stripped := tifftest.Write(t, tifftest.Options{}, tifftest.Dir{
		Fields: []tifftest.Field{
			tifftest.Long(uint16(tifflike.ImageWidth), 16),
			tifftest.Long(uint16(tifflike.ImageLength), 16),
		},
	})
	text := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(text, []byte("not a slide"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{stripped, text, filepath.Join(t.TempDir(), "missing.tiff")} {
		wsi, err := Open(path)
		if !errors.Is(err, ErrUnrecognized) {
			t.Errorf("%s: got %v, want ErrUnrecognized", path, err)
		}
		if wsi.s != nil {
			t.Errorf("%s: unrecognized file returned a slide", path)
		}
		if _, err := DetectVendor(path); !errors.Is(err, ErrUnrecognized) {
			t.Errorf("%s: DetectVendor got %v", path, err)
		}
	}

	for name, p := range map[string]tiffPyramid{
		"compression": {compression: 34712, encode: encodeNone},
		"predictor": {compression: compressionDeflate, encode: encodeDeflate,
			extra: []tifftest.Field{tifftest.Short(uint16(tifflike.Predictor), 3)}},
	} {
		wsi, err := Open(p.write(t))
		if err == nil || errors.Is(err, ErrUnrecognized) {
			t.Fatalf("unsupported %s: got %v", name, err)
		}
		if wsi.Error() == nil || wsi.LevelCount() != -1 {
			t.Errorf("unsupported %s: slide not in the error state", name)
		}
		wsi.Close()
	}
}

func TestJPEGTilePointColor(t *testing.T) {
	data := encodeJPEG(t, rawRGB(100, 150, 200))
	tl, err := decodeJPEGTile(data, nil, testTile, testTile)
	if err != nil {
		t.Fatal(err)
	}
	c := tl.argb[0]
	want := color.RGBA{R: 100, G: 150, B: 200}
	if !near(byte(c>>16), want.R, 3) || !near(byte(c>>8), want.G, 3) || !near(byte(c), want.B, 3) {
		t.Errorf("got %#08x, want about %v", c, want)
	}
}
