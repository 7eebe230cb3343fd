package gopenslide

import (
	"fmt"
	"log/slog"

	"github.com/ekonechny/gopenslide/v2/cache"
	"github.com/ekonechny/gopenslide/v2/pixel"
	"github.com/ekonechny/gopenslide/v2/surface"
)

// tile is one decoded tile. Exactly one of argb and gray is set; gray
// holds little-endian 16-bit samples when bits > 8.
type tile struct {
	w, h int
	argb []uint32
	gray []byte
	bits int
}

func (t *tile) size() int {
	return len(t.argb)*4 + len(t.gray)
}

// convert returns t in the pixel layout f paints.
func (t *tile) convert(f surface.Format) *tile {
	n := t.w * t.h
	switch f {
	case surface.FormatARGB32:
		if t.argb != nil {
			return t
		}
		g := t.gray8()
		out := &tile{w: t.w, h: t.h, argb: make([]uint32, n)}
		for i, v := range g {
			p := uint32(v)
			out.argb[i] = 0xff000000 | p<<16 | p<<8 | p
		}
		return out
	case surface.FormatGray8:
		if t.gray != nil && t.bits <= 8 {
			return t
		}
		return &tile{w: t.w, h: t.h, gray: t.gray8(), bits: 8}
	default:
		if t.gray != nil && t.bits > 8 {
			return t
		}
		g := t.gray8()
		out := &tile{w: t.w, h: t.h, gray: make([]byte, 2*n), bits: 16}
		for i, v := range g {
			// replicate so 0xff widens to 0xffff
			out.gray[2*i], out.gray[2*i+1] = v, v
		}
		return out
	}
}

func (t *tile) gray8() []byte {
	n := t.w * t.h
	switch {
	case t.argb != nil:
		out := make([]byte, n)
		for i, p := range t.argb {
			r, g, b := p>>16&0xff, p>>8&0xff, p&0xff
			// same weights as color.GrayModel
			out[i] = byte((19595*r + 38470*g + 7471*b + 1<<15) >> 16)
		}
		return out
	case t.bits > 8:
		out := make([]byte, n)
		pixel.Gray16ToGray8(t.gray[:2*n], t.bits, out)
		return out
	default:
		return t.gray
	}
}

// tileReader decodes the tile at (col, row) of level, choosing the source
// plane that best serves f. A nil tile with a nil error is a missing tile.
type tileReader func(f surface.Format, level int, col, row int64) (*tile, error)

// grid is a level stored as equal tiles.
type grid struct {
	width, height int64
	tileW, tileH  int64
	across, down  int64
}

func newGrid(w, h, tw, th int64) grid {
	return grid{
		width: w, height: h,
		tileW: tw, tileH: th,
		across: (w + tw - 1) / tw,
		down:   (h + th - 1) / th,
	}
}

// paint draws the w x h level rectangle at level 0 coordinates (x, y)
// from g's tiles. Tiles are cropped to the level bounds.
func (g grid) paint(c *surface.Context, cb *cache.Binding, debug debugFlag, read tileReader,
	level int, ds float64, x, y, w, h int64) error {
	lx := int64(float64(x) / ds)
	ly := int64(float64(y) / ds)
	startCol, startRow := lx/g.tileW, ly/g.tileH
	endCol := min((lx+w+g.tileW-1)/g.tileW, g.across)
	endRow := min((ly+h+g.tileH-1)/g.tileH, g.down)
	f := c.Format()

	for row := startRow; row < endRow; row++ {
		for col := startCol; col < endCol; col++ {
			key := cache.Key{Plane: int(f), Level: level, Col: col, Row: row}
			var t *tile
			if v, ok := cb.Get(key); ok {
				t = v.(*tile)
			} else {
				raw, err := read(f, level, col, row)
				if err != nil {
					return fmt.Errorf("level %d tile %d,%d: %w", level, col, row, err)
				}
				if raw == nil {
					continue
				}
				t = raw.convert(f)
				cb.Put(key, t, t.size())
			}
			if debug.has(debugTiles) {
				slog.Info("tiles: paint", "level", level, "col", col, "row", row)
			}

			dx := int(col*g.tileW - lx)
			dy := int(row*g.tileH - ly)
			cw := int(min(int64(t.w), g.width-col*g.tileW))
			ch := int(min(int64(t.h), g.height-row*g.tileH))
			switch f {
			case surface.FormatARGB32:
				c.PaintARGB32(t.argb, t.w, cw, ch, dx, dy)
			case surface.FormatGray8:
				c.PaintGray8(t.gray, t.w, cw, ch, dx, dy)
			default:
				c.PaintGray16(t.gray, 2*t.w, cw, ch, dx, dy)
			}
		}
	}
	return c.Status()
}
