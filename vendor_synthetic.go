package gopenslide

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ekonechny/gopenslide/v2/cache"
	"github.com/ekonechny/gopenslide/v2/decode/zstd"
	"github.com/ekonechny/gopenslide/v2/pixel"
	"github.com/ekonechny/gopenslide/v2/surface"
	"github.com/ekonechny/gopenslide/v2/tifflike"
)

const (
	syntheticTileSize = 128
	// gray samples carry this many significant bits
	syntheticGrayBits = 14
	syntheticICCSize  = 128
)

// syntheticLevels are the stored resolutions. Downsamples are inferred.
var syntheticLevels = [...][2]int64{
	{6000, 4000},
	{1500, 1000},
	{375, 250},
}

// syntheticFormat is a generated slide opened with the empty path. It
// needs no file and exercises every kernel and tile codec.
type syntheticFormat struct{}

func (syntheticFormat) name() string   { return "synthetic" }
func (syntheticFormat) vendor() string { return "synthetic" }

func (syntheticFormat) detect(path string, _ *tifflike.File) error {
	if path != "" {
		return errors.New("not the synthetic slide")
	}
	return nil
}

func (f syntheticFormat) open(o *opening, _ string, _ *tifflike.File, qh *quickhash) (slideOps, error) {
	s := &syntheticSlide{debug: o.debug}
	for _, d := range syntheticLevels {
		o.levels = append(o.levels, Level{
			Width:      d[0],
			Height:     d[1],
			TileWidth:  syntheticTileSize,
			TileHeight: syntheticTileSize,
		})
		s.grids = append(s.grids, newGrid(d[0], d[1], syntheticTileSize, syntheticTileSize))
	}

	o.setProperty(PropertyMPPX, "0.25")
	o.setProperty(PropertyMPPY, "0.25")
	o.setProperty(PropertyObjectivePower, "40")
	o.setProperty(PropertyBackgroundColor, "FFFFFF")
	o.setProperty("synthetic.description", "generated test slide")
	o.iccSize = syntheticICCSize

	o.associated["label"] = &associatedImage{width: 200, height: 100, src: syntheticAssociated{seed: 1}}
	o.associated["macro"] = &associatedImage{
		width: 400, height: 200, iccSize: syntheticICCSize,
		src: syntheticAssociated{seed: 2},
	}

	qh.writeString(f.vendor())
	for _, d := range syntheticLevels {
		qh.writeString(fmt.Sprintf("%dx%d", d[0], d[1]))
	}

	if s.debug.has(debugSynthetic) {
		slog.Info("synthetic: opened", "levels", len(o.levels), "associated", len(o.associated))
	}
	return s, nil
}

type syntheticSlide struct {
	grids []grid
	debug debugFlag
}

func (s *syntheticSlide) paintRegion(c *surface.Context, cb *cache.Binding, x, y int64, level int, w, h int64) error {
	ds := syntheticDownsample(level)
	return s.grids[level].paint(c, cb, s.debug, s.readTile, level, ds, x, y, w, h)
}

func syntheticDownsample(level int) float64 {
	w0, h0 := float64(syntheticLevels[0][0]), float64(syntheticLevels[0][1])
	w, h := float64(syntheticLevels[level][0]), float64(syntheticLevels[level][1])
	return (h0/h + w0/w) / 2
}

func (s *syntheticSlide) readTile(f surface.Format, level int, col, row int64) (*tile, error) {
	g := s.grids[level]
	t := &tile{
		w: int(min(g.tileW, g.width-col*g.tileW)),
		h: int(min(g.tileH, g.height-row*g.tileH)),
	}
	ds := syntheticDownsample(level)
	x0, y0 := col*g.tileW, row*g.tileH
	if s.debug.has(debugSynthetic) {
		slog.Info("synthetic: generate tile", "level", level, "col", col, "row", row, "format", f)
	}

	if f != surface.FormatARGB32 {
		raw := make([]byte, 2*t.w*t.h)
		for j := 0; j < t.h; j++ {
			for i := 0; i < t.w; i++ {
				v := syntheticGray(syntheticCoord(x0+int64(i), ds), syntheticCoord(y0+int64(j), ds))
				binary.LittleEndian.PutUint16(raw[2*(j*t.w+i):], v)
			}
		}
		gray, err := zstd.Decode1(zstd.Encode1(raw, true), nil)
		if err != nil {
			return nil, err
		}
		t.gray, t.bits = gray, syntheticGrayBits
		return t, nil
	}

	t.argb = make([]uint32, t.w*t.h)
	switch level {
	case 1:
		raw := make([]byte, 6*t.w*t.h)
		for j := 0; j < t.h; j++ {
			for i := 0; i < t.w; i++ {
				r, gg, b := syntheticColor(syntheticCoord(x0+int64(i), ds), syntheticCoord(y0+int64(j), ds))
				p := raw[6*(j*t.w+i):]
				// repeat each byte so the high byte is the 8-bit value
				binary.LittleEndian.PutUint16(p[0:], uint16(b)<<8|uint16(b))
				binary.LittleEndian.PutUint16(p[2:], uint16(gg)<<8|uint16(gg))
				binary.LittleEndian.PutUint16(p[4:], uint16(r)<<8|uint16(r))
			}
		}
		pixel.BGR48ToARGB32(raw, t.argb)
	default:
		raw := syntheticBGR24(x0, y0, t.w, t.h, ds)
		if level == 2 {
			var err error
			if raw, err = zstd.Decode0(zstd.Encode0(raw), nil); err != nil {
				return nil, err
			}
		}
		pixel.BGR24ToARGB32(raw, t.argb)
	}
	return t, nil
}

func syntheticBGR24(x0, y0 int64, w, h int, ds float64) []byte {
	raw := make([]byte, 3*w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			r, g, b := syntheticColor(syntheticCoord(x0+int64(i), ds), syntheticCoord(y0+int64(j), ds))
			p := raw[3*(j*w+i):]
			p[0], p[1], p[2] = b, g, r
		}
	}
	return raw
}

// syntheticCoord maps a level pixel to its level 0 coordinate.
func syntheticCoord(v int64, ds float64) int64 {
	return int64(float64(v) * ds)
}

// syntheticColor is the slide's color at level 0 position (x, y).
func syntheticColor(x, y int64) (r, g, b byte) {
	return byte(x / 24), byte(y / 16), byte((x + y) / 40)
}

// syntheticGray is the 14-bit gray sample at level 0 position (x, y).
// Some samples exceed 14 bits to exercise saturation.
func syntheticGray(x, y int64) uint16 {
	if x%1000 == 999 {
		return 0xffff
	}
	return uint16((x + y) % (1 << syntheticGrayBits))
}

func (s *syntheticSlide) readICCProfile(dst []byte) error {
	syntheticICC(dst)
	return nil
}

func (s *syntheticSlide) destroy() {}

// syntheticICC writes a minimal ICC header: size, then the acsp signature.
func syntheticICC(dst []byte) {
	clear(dst)
	binary.BigEndian.PutUint32(dst, uint32(len(dst)))
	copy(dst[36:], "acsp")
}

type syntheticAssociated struct {
	seed uint32
}

func (a syntheticAssociated) argbData(dst []uint32) error {
	for i := range dst {
		v := (uint32(i)*a.seed*2654435761 + a.seed) & 0xff
		dst[i] = 0xff000000 | v<<16 | (0xff-v)<<8 | a.seed*0x40
	}
	return nil
}

func (a syntheticAssociated) readICCProfile(dst []byte) error {
	syntheticICC(dst)
	return nil
}

func (syntheticAssociated) destroy() {}
