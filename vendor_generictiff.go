package gopenslide

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"github.com/ekonechny/gopenslide/v2/cache"
	"github.com/ekonechny/gopenslide/v2/decode/jxr"
	"github.com/ekonechny/gopenslide/v2/pixel"
	"github.com/ekonechny/gopenslide/v2/surface"
	"github.com/ekonechny/gopenslide/v2/tifflike"
)

// TIFF compression schemes the generic backend decodes.
const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionJPEG         = 7
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946
	compressionJPEGXR       = 22610
)

// Predictor values. Horizontal differencing applies to LZW and Deflate
// tiles only.
const (
	predictorNone       = 1
	predictorHorizontal = 2
)

const (
	photometricMinIsBlack = 1
	photometricRGB        = 2
	photometricYCbCr      = 6
)

// quickhashMaxBytes bounds the tile data hashed for openslide.quickhash-1.
const quickhashMaxBytes = 5 << 20

// genericTIFFFormat reads pyramids stored as tiled TIFF or BigTIFF
// directories of decreasing size.
type genericTIFFFormat struct{}

func (genericTIFFFormat) name() string   { return "generic-tiff" }
func (genericTIFFFormat) vendor() string { return "generic-tiff" }

func (genericTIFFFormat) detect(_ string, tl *tifflike.File) error {
	if tl == nil {
		return errors.New("not a TIFF file")
	}
	dir, err := tl.Directory(0)
	if err != nil {
		return err
	}
	if !dir.IsTiled() {
		return errors.New("TIFF is not tiled")
	}
	return nil
}

// tiffLevel is one tiled directory.
type tiffLevel struct {
	grid
	compression uint64
	photometric uint64
	predictor   uint64
	bits        int
	samples     int
	offsets     []uint64
	counts      []uint64
	jpegTables  []byte
}

func (genericTIFFFormat) open(o *opening, _ string, tl *tifflike.File, qh *quickhash) (slideOps, error) {
	s := &genericTIFFSlide{tl: tl, debug: o.debug}
	for i := 0; i < tl.DirectoryCount(); i++ {
		dir, err := tl.Directory(i)
		if err != nil {
			return nil, err
		}
		if !dir.IsTiled() {
			continue
		}
		// only the main image and its reduced-resolution copies
		if i > 0 && dir.UintOr(tifflike.NewSubfileType, 0)&1 == 0 {
			continue
		}
		l, err := newTIFFLevel(dir)
		if err != nil {
			return nil, fmt.Errorf("directory %d: %w", i, err)
		}
		s.levels = append(s.levels, l)
	}
	sort.SliceStable(s.levels, func(i, j int) bool {
		return s.levels[i].width > s.levels[j].width
	})
	for _, l := range s.levels {
		o.levels = append(o.levels, Level{
			Width:      l.width,
			Height:     l.height,
			TileWidth:  l.tileW,
			TileHeight: l.tileH,
		})
	}

	dir0, _ := tl.Directory(0)
	setTIFFProperties(o, dir0)
	if icc, err := dir0.Bytes(tifflike.ICCProfile); err == nil {
		s.icc = icc
		o.iccSize = int64(len(icc))
	}
	if err := s.hash(qh, o); err != nil {
		return nil, err
	}
	s.ds = make([]float64, len(s.levels))
	w0, h0 := float64(s.levels[0].width), float64(s.levels[0].height)
	for i, l := range s.levels {
		s.ds[i] = (h0/float64(l.height) + w0/float64(l.width)) / 2
	}
	s.ds[0] = 1
	return s, nil
}

func newTIFFLevel(dir *tifflike.Directory) (*tiffLevel, error) {
	width, err := dir.Uint(tifflike.ImageWidth)
	if err != nil {
		return nil, err
	}
	height, err := dir.Uint(tifflike.ImageLength)
	if err != nil {
		return nil, err
	}
	tw, err := dir.Uint(tifflike.TileWidth)
	if err != nil {
		return nil, err
	}
	th, err := dir.Uint(tifflike.TileLength)
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 || tw == 0 || th == 0 {
		return nil, fmt.Errorf("bad geometry %dx%d tiles %dx%d", width, height, tw, th)
	}
	if pc := dir.UintOr(tifflike.PlanarConfiguration, 1); pc != 1 {
		return nil, fmt.Errorf("unsupported planar configuration %d", pc)
	}
	l := &tiffLevel{
		grid:        newGrid(int64(width), int64(height), int64(tw), int64(th)),
		compression: dir.UintOr(tifflike.Compression, compressionNone),
		photometric: dir.UintOr(tifflike.PhotometricInterpretation, photometricRGB),
		predictor:   dir.UintOr(tifflike.Predictor, predictorNone),
		bits:        int(dir.UintOr(tifflike.BitsPerSample, 1)),
		samples:     int(dir.UintOr(tifflike.SamplesPerPixel, 1)),
	}
	switch l.compression {
	case compressionNone, compressionLZW, compressionJPEG, compressionDeflate,
		compressionAdobeDeflate, compressionJPEGXR:
	default:
		return nil, fmt.Errorf("unsupported compression %d", l.compression)
	}
	switch l.compression {
	case compressionLZW, compressionDeflate, compressionAdobeDeflate:
		if l.predictor != predictorNone && l.predictor != predictorHorizontal {
			return nil, fmt.Errorf("unsupported predictor %d", l.predictor)
		}
	default:
		l.predictor = predictorNone
	}
	switch l.compression {
	case compressionJPEG:
		if l.photometric != photometricYCbCr && l.photometric != photometricRGB &&
			l.photometric != photometricMinIsBlack {
			return nil, fmt.Errorf("unsupported JPEG photometric %d", l.photometric)
		}
	case compressionJPEGXR:
	default:
		switch {
		case l.photometric == photometricRGB && l.samples == 3 && (l.bits == 8 || l.bits == 16):
		case l.photometric == photometricMinIsBlack && l.samples == 1 && (l.bits == 8 || l.bits == 16):
		default:
			return nil, fmt.Errorf("unsupported photometric %d with %d samples of %d bits",
				l.photometric, l.samples, l.bits)
		}
	}
	if l.offsets, err = dir.Uints(tifflike.TileOffsets); err != nil {
		return nil, err
	}
	if l.counts, err = dir.Uints(tifflike.TileByteCounts); err != nil {
		return nil, err
	}
	tiles := uint64(l.across * l.down)
	if uint64(len(l.offsets)) < tiles || uint64(len(l.counts)) < tiles {
		return nil, fmt.Errorf("%d tile offsets and %d byte counts for %d tiles", len(l.offsets), len(l.counts), tiles)
	}
	if tables, err := dir.Bytes(tifflike.JPEGTables); err == nil && len(tables) >= 4 {
		l.jpegTables = tables
	}
	return l, nil
}

var resolutionUnits = map[uint64]string{
	1: "none",
	2: "inch",
	3: "centimeter",
}

func setTIFFProperties(o *opening, dir *tifflike.Directory) {
	strs := []struct {
		tag  tifflike.Tag
		name string
	}{
		{tifflike.ImageDescription, "tiff.ImageDescription"},
		{tifflike.Make, "tiff.Make"},
		{tifflike.Model, "tiff.Model"},
		{tifflike.Software, "tiff.Software"},
		{tifflike.DateTime, "tiff.DateTime"},
	}
	for _, p := range strs {
		if v, err := dir.String(p.tag); err == nil {
			o.setProperty(p.name, v)
		}
	}
	if v, err := dir.String(tifflike.ImageDescription); err == nil {
		o.setProperty(PropertyComment, v)
	}

	unit := dir.UintOr(tifflike.ResolutionUnit, 2)
	if name, ok := resolutionUnits[unit]; ok && dir.Has(tifflike.ResolutionUnit) {
		o.setProperty("tiff.ResolutionUnit", name)
	}
	res := []struct {
		tag       tifflike.Tag
		name, mpp string
	}{
		{tifflike.XResolution, "tiff.XResolution", PropertyMPPX},
		{tifflike.YResolution, "tiff.YResolution", PropertyMPPY},
	}
	for _, p := range res {
		v, err := dir.Float(p.tag)
		if err != nil {
			continue
		}
		o.setProperty(p.name, formatDouble(v))
		if v <= 0 {
			continue
		}
		switch unit {
		case 2:
			o.setProperty(p.mpp, formatDouble(25400/v))
		case 3:
			o.setProperty(p.mpp, formatDouble(10000/v))
		}
	}
}

type genericTIFFSlide struct {
	tl     *tifflike.File
	levels []*tiffLevel
	ds     []float64
	icc    []byte
	debug  debugFlag
}

// hash feeds the properties and the smallest level's raw tiles to qh. A
// level too large to hash disables the property.
func (s *genericTIFFSlide) hash(qh *quickhash, o *opening) error {
	l := s.levels[len(s.levels)-1]
	var total uint64
	for _, n := range l.counts[:l.across*l.down] {
		total += n
	}
	if total > quickhashMaxBytes {
		qh.disable()
		return nil
	}
	for _, name := range sortedKeys(o.properties) {
		if v := o.properties[name]; v != nil {
			qh.writeString(name)
			qh.writeString(*v)
		}
	}
	for i := int64(0); i < l.across*l.down; i++ {
		if l.counts[i] == 0 {
			continue
		}
		raw, err := s.tl.ReadRange(l.offsets[i], l.counts[i])
		if err != nil {
			return err
		}
		qh.write(raw)
	}
	return nil
}

func (s *genericTIFFSlide) paintRegion(c *surface.Context, cb *cache.Binding, x, y int64, level int, w, h int64) error {
	return s.levels[level].paint(c, cb, s.debug, s.readTile, level, s.ds[level], x, y, w, h)
}

func (s *genericTIFFSlide) readTile(_ surface.Format, level int, col, row int64) (*tile, error) {
	l := s.levels[level]
	i := row*l.across + col
	if l.counts[i] == 0 {
		return nil, nil
	}
	raw, err := s.tl.ReadRange(l.offsets[i], l.counts[i])
	if err != nil {
		return nil, err
	}
	tw, th := int(l.tileW), int(l.tileH)

	switch l.compression {
	case compressionJPEG:
		return decodeJPEGTile(raw, l.jpegTables, tw, th)
	case compressionJPEGXR:
		return decodeJXRTile(raw, tw, th)
	}

	var data []byte
	switch l.compression {
	case compressionNone:
		data = raw
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		data, err = io.ReadAll(r)
		r.Close()
	default:
		var r io.ReadCloser
		if r, err = zlib.NewReader(bytes.NewReader(raw)); err == nil {
			data, err = io.ReadAll(r)
			r.Close()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decompressing tile: %w", err)
	}
	need := tw * th * l.samples * l.bits / 8
	if len(data) < need {
		return nil, fmt.Errorf("tile holds %d bytes, need %d", len(data), need)
	}
	return s.unpack(l, data[:need], tw, th), nil
}

// unpack converts decompressed samples in file order into a tile.
func (s *genericTIFFSlide) unpack(l *tiffLevel, data []byte, w, h int) *tile {
	t := &tile{w: w, h: h}
	order := s.tl.ByteOrder()
	if l.bits == 16 && order != binary.LittleEndian {
		le := make([]byte, len(data))
		for i := 0; i+1 < len(data); i += 2 {
			le[i], le[i+1] = data[i+1], data[i]
		}
		data = le
	}
	if l.predictor == predictorHorizontal {
		undoDifferencing(data, w, l.samples, l.bits)
	}
	if l.photometric == photometricMinIsBlack {
		t.gray, t.bits = data, l.bits
		return t
	}
	t.argb = make([]uint32, w*h)
	if l.bits == 16 {
		bgr := make([]byte, len(data))
		for i := 0; i+5 < len(data); i += 6 {
			copy(bgr[i:i+2], data[i+4:i+6])
			copy(bgr[i+2:i+4], data[i+2:i+4])
			copy(bgr[i+4:i+6], data[i:i+2])
		}
		pixel.BGR48ToARGB32(bgr, t.argb)
		return t
	}
	bgr := make([]byte, len(data))
	for i := 0; i+2 < len(data); i += 3 {
		bgr[i], bgr[i+1], bgr[i+2] = data[i+2], data[i+1], data[i]
	}
	pixel.BGR24ToARGB32(bgr, t.argb)
	return t
}

// undoDifferencing reverses horizontal differencing in place. Each sample
// of a row, after the first pixel, holds the difference from the same
// sample of the pixel to its left. 16-bit samples are little-endian.
func undoDifferencing(data []byte, w, samples, bits int) {
	if bits == 16 {
		row := 2 * w * samples
		for off := 0; off+row <= len(data); off += row {
			r := data[off : off+row]
			for i := 2 * samples; i+1 < len(r); i += 2 {
				prev := binary.LittleEndian.Uint16(r[i-2*samples:])
				binary.LittleEndian.PutUint16(r[i:], binary.LittleEndian.Uint16(r[i:])+prev)
			}
		}
		return
	}
	row := w * samples
	for off := 0; off+row <= len(data); off += row {
		r := data[off : off+row]
		for i := samples; i < len(r); i++ {
			r[i] += r[i-samples]
		}
	}
}

// decodeJPEGTile decodes an abbreviated JPEG stream, whose tables may be
// stored once for the directory.
func decodeJPEGTile(raw, tables []byte, w, h int) (*tile, error) {
	if tables != nil && len(raw) >= 2 {
		// drop the tables' EOI and the tile's SOI
		merged := make([]byte, 0, len(tables)-2+len(raw)-2)
		merged = append(merged, tables[:len(tables)-2]...)
		raw = append(merged, raw[2:]...)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding JPEG tile: %w", err)
	}
	b := img.Bounds()
	w, h = min(w, b.Dx()), min(h, b.Dy())
	t := &tile{w: w, h: h}
	switch m := img.(type) {
	case *image.Gray:
		t.gray, t.bits = make([]byte, w*h), 8
		for y := 0; y < h; y++ {
			copy(t.gray[y*w:(y+1)*w], m.Pix[y*m.Stride:])
		}
	case *image.YCbCr:
		t.argb = make([]uint32, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := m.YCbCrAt(b.Min.X+x, b.Min.Y+y)
				r, g, bb := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				t.argb[y*w+x] = 0xff000000 | uint32(r)<<16 | uint32(g)<<8 | uint32(bb)
			}
		}
	default:
		t.argb = make([]uint32, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				t.argb[y*w+x] = 0xff000000 | r>>8<<16 | g>>8<<8 | bb>>8
			}
		}
	}
	return t, nil
}

func decodeJXRTile(raw []byte, w, h int) (*tile, error) {
	jw, jh, err := jxr.Dimensions(raw)
	if err != nil {
		return nil, err
	}
	if int(jw) > w || int(jh) > h {
		return nil, fmt.Errorf("JPEG XR tile is %dx%d, directory tiles are %dx%d", jw, jh, w, h)
	}
	// room for the widest allowed output
	dst := make([]byte, int(jw)*int(jh)*(jxr.Format48bppRGB.BitsPerPixel()/8))
	info, err := jxr.Decode(raw, dst)
	if err != nil {
		return nil, err
	}
	n := info.Width * info.Height
	t := &tile{w: info.Width, h: info.Height}
	switch info.Format {
	case jxr.Format24bppBGR:
		t.argb = make([]uint32, n)
		pixel.BGR24ToARGB32(pack(dst, info, 3), t.argb)
	case jxr.Format48bppRGB:
		rgb := pack(dst, info, 6)
		bgr := make([]byte, len(rgb))
		for i := 0; i+5 < len(rgb); i += 6 {
			copy(bgr[i:i+2], rgb[i+4:i+6])
			copy(bgr[i+2:i+4], rgb[i+2:i+4])
			copy(bgr[i+4:i+6], rgb[i:i+2])
		}
		t.argb = make([]uint32, n)
		pixel.BGR48ToARGB32(bgr, t.argb)
	case jxr.Format8bppGray:
		t.gray, t.bits = pack(dst, info, 1), 8
	case jxr.Format16bppGray:
		t.gray, t.bits = pack(dst, info, 2), 16
	default:
		return nil, fmt.Errorf("%w: got %s", jxr.ErrUnsupportedFormat, info.Format)
	}
	return t, nil
}

// pack returns the decoded rows without stride padding.
func pack(buf []byte, info jxr.Info, pb int) []byte {
	row := info.Width * pb
	if info.Stride == row {
		return buf[:row*info.Height]
	}
	out := make([]byte, row*info.Height)
	for y := 0; y < info.Height; y++ {
		copy(out[y*row:(y+1)*row], buf[y*info.Stride:])
	}
	return out
}

func (s *genericTIFFSlide) readICCProfile(dst []byte) error {
	if len(dst) != len(s.icc) {
		return fmt.Errorf("ICC profile is %d bytes, asked for %d", len(s.icc), len(dst))
	}
	copy(dst, s.icc)
	return nil
}

// destroy leaves the file to the handle, which owns it.
func (s *genericTIFFSlide) destroy() {}
