package gopenslide

import (
	"fmt"
	"image"
	"math"
	"log/slog"
	"time"

	"github.com/ekonechny/gopenslide/v2/pixel"
	"github.com/ekonechny/gopenslide/v2/surface"
)

// subTileSize bounds each painted piece of a request so every surface stays
// within the compositor's dimension and addressing limits.
const subTileSize = 4096

// ReadRegionARGB fills dst with the w x h region of level whose top-left
// corner is (x, y) in level 0 coordinates, as premultiplied ARGB. dst must
// hold w*h pixels, or be nil to only check for errors. On any failure dst
// is left zeroed and the error is recorded on the slide.
func (wsi WSI) ReadRegionARGB(dst []uint32, x, y int64, level int32, w, h int64) {
	if wsi.s == nil {
		clear(dst)
		return
	}
	s := wsi.s
	if w < 0 || h < 0 {
		s.err.set(fmt.Errorf("%w: negative width (%d) or negative height (%d) not allowed", ErrNegativeSize, w, h))
		return
	}
	if err := checkRegionSize(w, h, 4); err != nil {
		s.err.set(err)
		return
	}
	if s.channels > 1 {
		s.err.set(fmt.Errorf("%w: ReadRegionARGB can only read single channel slide", ErrChannelCount))
		return
	}
	if dst != nil {
		if int64(len(dst)) < w*h {
			clear(dst)
			s.err.set(fmt.Errorf("%w: region needs %d pixels, have %d", ErrBufferTooSmall, w*h, len(dst)))
			return
		}
		dst = dst[:w*h]
		clear(dst)
	}
	if s.err.get() != nil {
		return
	}
	if !wsi.levelInRange(level) {
		s.err.set(fmt.Errorf("%w: %d", ErrInvalidLevel, level))
		return
	}
	defer s.logPerformance("read region", level, w, h, time.Now())

	ds := s.levels[level].Downsample
	for row := int64(0); row < (h+subTileSize-1)/subTileSize; row++ {
		for col := int64(0); col < (w+subTileSize-1)/subTileSize; col++ {
			sx := int64(float64(x) + float64(col*subTileSize)*ds)
			sy := int64(float64(y) + float64(row*subTileSize)*ds)
			sw := min(w-col*subTileSize, subTileSize)
			sh := min(h-row*subTileSize, subTileSize)

			var surf *surface.Surface
			if dst != nil {
				sub := dst[w*row*subTileSize+col*subTileSize:]
				surf = surface.NewARGB32(sub, int(sw), int(sh), int(w))
			} else {
				surf = surface.NewNil(surface.FormatARGB32)
			}
			c := surface.NewContext(surf)
			// saturate those seams away
			c.SetOperator(surface.OpSaturate)
			if err := s.readArea(c, sx, sy, int(level), sw, sh); err != nil {
				s.err.set(err)
				clear(dst)
				return
			}
		}
	}
}

// ReadRegionGray8 is ReadRegionARGB for 8-bit gray output.
func (wsi WSI) ReadRegionGray8(dst []byte, x, y int64, level int32, w, h int64) {
	wsi.readRegionGray(dst, surface.FormatGray8, x, y, level, w, h)
}

// ReadRegionGray16 is ReadRegionARGB for little-endian 16-bit gray output.
func (wsi WSI) ReadRegionGray16(dst []byte, x, y int64, level int32, w, h int64) {
	wsi.readRegionGray(dst, surface.FormatGray16, x, y, level, w, h)
}

func (wsi WSI) readRegionGray(dst []byte, f surface.Format, x, y int64, level int32, w, h int64) {
	if wsi.s == nil {
		clear(dst)
		return
	}
	s := wsi.s
	if w < 0 || h < 0 {
		s.err.set(fmt.Errorf("%w: negative width (%d) or negative height (%d) not allowed", ErrNegativeSize, w, h))
		return
	}
	pb := f.BytesPerPixel()
	if err := checkRegionSize(w, h, int64(pb)); err != nil {
		s.err.set(err)
		return
	}
	tight := w * h * int64(pb)
	stride := int64(pixel.StrideForWidth(int(w), pb))

	// buf is painted; it is dst itself unless the rows need padding
	var buf []byte
	if dst != nil {
		if int64(len(dst)) < tight {
			clear(dst)
			s.err.set(fmt.Errorf("%w: region needs %d bytes, have %d", ErrBufferTooSmall, tight, len(dst)))
			return
		}
		dst = dst[:tight]
		if stride == w*int64(pb) {
			buf = dst
		} else {
			buf = make([]byte, h*stride)
		}
		clear(dst)
		clear(buf)
	}
	if s.err.get() != nil {
		return
	}
	if !wsi.levelInRange(level) {
		s.err.set(fmt.Errorf("%w: %d", ErrInvalidLevel, level))
		return
	}
	defer s.logPerformance("read gray region", level, w, h, time.Now())

	ds := s.levels[level].Downsample
	for row := int64(0); row < (h+subTileSize-1)/subTileSize; row++ {
		for col := int64(0); col < (w+subTileSize-1)/subTileSize; col++ {
			sx := int64(float64(x) + float64(col*subTileSize)*ds)
			sy := int64(float64(y) + float64(row*subTileSize)*ds)
			sw := min(w-col*subTileSize, subTileSize)
			sh := min(h-row*subTileSize, subTileSize)

			var surf *surface.Surface
			if buf != nil {
				sub := buf[row*subTileSize*stride+col*subTileSize*int64(pb):]
				surf = surface.NewGray(sub, f, int(sw), int(sh), int(stride))
			} else {
				surf = surface.NewNil(f)
			}
			// gray surfaces are opaque, so the default operator applies
			c := surface.NewContext(surf)
			if err := s.readArea(c, sx, sy, int(level), sw, sh); err != nil {
				s.err.set(err)
				clear(buf)
				clear(dst)
				return
			}
		}
	}
	if buf != nil && len(buf) != len(dst) {
		pixel.DelRowPadding(buf, dst, pb, int(w), int(h))
	}
}

// checkRegionSize rejects regions whose byte size does not fit in an int,
// padded rows included.
func checkRegionSize(w, h, pb int64) error {
	if w == 0 || h == 0 {
		return nil
	}
	if w <= (math.MaxInt-pixel.StrideAlignment)/pb {
		stride := int64(pixel.StrideForWidth(int(w), int(pb)))
		if h <= math.MaxInt/stride {
			return nil
		}
	}
	return fmt.Errorf("%w: %d x %d pixels of %d bytes", ErrRegionTooLarge, w, h, pb)
}

// readArea paints one sub-tile. Negative origins are clipped: the skipped
// part is converted to level pixels and the paint is shifted by it.
func (s *slide) readArea(c *surface.Context, x, y int64, level int, w, h int64) error {
	ds := s.levels[level].Downsample
	var tx, ty int64
	if x < 0 {
		tx = int64(float64(-x) / ds)
		x = 0
		w -= tx
	}
	if y < 0 {
		ty = int64(float64(-y) / ds)
		y = 0
		h -= ty
	}
	c.Translate(int(tx), int(ty))
	if w > 0 && h > 0 {
		if err := s.ops.paintRegion(c, s.cache, x, y, level, w, h); err != nil {
			return err
		}
	}
	return c.Status()
}

func (s *slide) logPerformance(op string, level int32, w, h int64, start time.Time) {
	if s.debug.has(debugPerformance) {
		slog.Info("performance: "+op, "level", level, "width", w, "height", h, "elapsed", time.Since(start))
	}
}

// ImageWithSubImage is an image that can be cropped without copying.
type ImageWithSubImage interface {
	image.Image
	SubImage(rectangle image.Rectangle) image.Image
}

// ReadRegion returns region as image.Image by coordinates
func (wsi WSI) ReadRegion(location image.Point, level int32, bounds image.Point) (image.Image, error) {
	if bounds.X < 0 || bounds.Y < 0 {
		// checked here too, before allocating a negative-size buffer
		return nil, fmt.Errorf("%w: negative width (%d) or negative height (%d) not allowed",
			ErrNegativeSize, bounds.X, bounds.Y)
	}
	buf := make([]uint32, bounds.X*bounds.Y)
	wsi.ReadRegionARGB(buf, int64(location.X), int64(location.Y), level, int64(bounds.X), int64(bounds.Y))
	if err := wsi.Error(); err != nil {
		return nil, err
	}
	tile := image.NewRGBA(image.Rect(0, 0, bounds.X, bounds.Y))
	argbToRGBA(buf, tile.Pix)
	return tile, nil
}

// ReadGrayRegion returns an 8-bit gray region.
func (wsi WSI) ReadGrayRegion(location image.Point, level int32, bounds image.Point) (*image.Gray, error) {
	if bounds.X < 0 || bounds.Y < 0 {
		return nil, fmt.Errorf("%w: negative width (%d) or negative height (%d) not allowed",
			ErrNegativeSize, bounds.X, bounds.Y)
	}
	img := image.NewGray(image.Rect(0, 0, bounds.X, bounds.Y))
	wsi.ReadRegionGray8(img.Pix, int64(location.X), int64(location.Y), level, int64(bounds.X), int64(bounds.Y))
	if err := wsi.Error(); err != nil {
		return nil, err
	}
	return img, nil
}

// ReadGray16Region returns a 16-bit gray region.
func (wsi WSI) ReadGray16Region(location image.Point, level int32, bounds image.Point) (*image.Gray16, error) {
	if bounds.X < 0 || bounds.Y < 0 {
		return nil, fmt.Errorf("%w: negative width (%d) or negative height (%d) not allowed",
			ErrNegativeSize, bounds.X, bounds.Y)
	}
	buf := make([]byte, 2*bounds.X*bounds.Y)
	wsi.ReadRegionGray16(buf, int64(location.X), int64(location.Y), level, int64(bounds.X), int64(bounds.Y))
	if err := wsi.Error(); err != nil {
		return nil, err
	}
	// image.Gray16 is big-endian
	img := image.NewGray16(image.Rect(0, 0, bounds.X, bounds.Y))
	for i := 0; i+1 < len(buf); i += 2 {
		img.Pix[i], img.Pix[i+1] = buf[i+1], buf[i]
	}
	return img, nil
}
