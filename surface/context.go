package surface

import "fmt"

// Operator selects how painted pixels combine with the destination.
type Operator int

const (
	// OpOver is source-over. Gray formats are opaque, so it is a copy.
	OpOver Operator = iota
	// OpSaturate adds only as much of the source as the destination's
	// remaining coverage allows. Overlapping tile seams paint once.
	OpSaturate
)

// Context paints onto a Surface through a translation.
type Context struct {
	s      *Surface
	tx, ty int
	op     Operator
}

// NewContext returns a context painting onto s with OpOver and no
// translation.
func NewContext(s *Surface) *Context {
	return &Context{s: s}
}

// Surface returns the target surface.
func (c *Context) Surface() *Surface { return c.s }

// Format returns the pixel layout painters must produce.
func (c *Context) Format() Format { return c.s.format }

// SetOperator sets the compositing operator for later paints.
func (c *Context) SetOperator(op Operator) { c.op = op }

// Operator returns the current compositing operator.
func (c *Context) Operator() Operator { return c.op }

// Translate moves the origin of later paints by (dx, dy).
func (c *Context) Translate(dx, dy int) {
	c.tx += dx
	c.ty += dy
}

// Status returns the first error recorded on the target surface.
func (c *Context) Status() error { return c.s.err }

// clip intersects a w x h source placed at (x, y) in user space with the
// surface. It returns the source offset, destination origin and extent.
func (c *Context) clip(w, h, x, y int) (sx, sy, dx, dy, cw, ch int, ok bool) {
	dx, dy = x+c.tx, y+c.ty
	if dx < 0 {
		sx = -dx
		dx = 0
	}
	if dy < 0 {
		sy = -dy
		dy = 0
	}
	cw = min(w-sx, c.s.width-dx)
	ch = min(h-sy, c.s.height-dy)
	return sx, sy, dx, dy, cw, ch, cw > 0 && ch > 0
}

func (c *Context) checkSource(f Format, length, stride, rowLen, h int) bool {
	if c.s.err != nil {
		return false
	}
	if f != c.s.format {
		c.s.setError(fmt.Errorf("%w: painting %s onto %s", ErrFormat, f, c.s.format))
		return false
	}
	if h > 0 && rowLen > 0 && (stride < rowLen || length < (h-1)*stride+rowLen) {
		c.s.setError(fmt.Errorf("%w: source buffer holds %d, need %d", ErrInvalidSize, length, (h-1)*stride+rowLen))
		return false
	}
	return !c.s.isNil
}

// PaintARGB32 composites a w x h premultiplied ARGB32 image, rows stride
// pixels apart, with its top-left corner at (x, y).
func (c *Context) PaintARGB32(src []uint32, stride, w, h, x, y int) {
	if !c.checkSource(FormatARGB32, len(src), stride, w, h) {
		return
	}
	sx, sy, dx, dy, cw, ch, ok := c.clip(w, h, x, y)
	if !ok {
		return
	}
	s := c.s
	for row := 0; row < ch; row++ {
		in := src[(sy+row)*stride+sx:][:cw]
		out := s.argb[(dy+row)*s.argbStride+dx:][:cw]
		switch c.op {
		case OpSaturate:
			for i, p := range in {
				out[i] = saturate(p, out[i])
			}
		default:
			for i, p := range in {
				out[i] = over(p, out[i])
			}
		}
	}
}

// PaintGray8 copies a w x h 8-bit gray image, rows stride bytes apart, to
// (x, y).
func (c *Context) PaintGray8(src []byte, stride, w, h, x, y int) {
	c.paintGray(FormatGray8, src, stride, w, h, x, y)
}

// PaintGray16 copies a w x h little-endian 16-bit gray image, rows stride
// bytes apart, to (x, y).
func (c *Context) PaintGray16(src []byte, stride, w, h, x, y int) {
	c.paintGray(FormatGray16, src, stride, w, h, x, y)
}

func (c *Context) paintGray(f Format, src []byte, stride, w, h, x, y int) {
	bpp := f.BytesPerPixel()
	if !c.checkSource(f, len(src), stride, w*bpp, h) {
		return
	}
	sx, sy, dx, dy, cw, ch, ok := c.clip(w, h, x, y)
	if !ok {
		return
	}
	s := c.s
	for row := 0; row < ch; row++ {
		in := src[(sy+row)*stride+sx*bpp:][:cw*bpp]
		copy(s.pix[(dy+row)*s.stride+dx*bpp:], in)
	}
}

func unpack(p uint32) (a, r, g, b uint32) {
	return p >> 24, p >> 16 & 0xff, p >> 8 & 0xff, p & 0xff
}

func pack(a, r, g, b uint32) uint32 {
	return a<<24 | r<<16 | g<<8 | b
}

// mul255 returns x*y/255 rounded.
func mul255(x, y uint32) uint32 {
	t := x*y + 128
	return (t + t>>8) >> 8
}

func over(s, d uint32) uint32 {
	sa, sr, sg, sb := unpack(s)
	if sa == 0xff {
		return s
	}
	if sa == 0 && s == 0 {
		return d
	}
	da, dr, dg, db := unpack(d)
	inv := 255 - sa
	return pack(
		min(255, sa+mul255(da, inv)),
		min(255, sr+mul255(dr, inv)),
		min(255, sg+mul255(dg, inv)),
		min(255, sb+mul255(db, inv)),
	)
}

// saturate computes d + s * min(1, (1 - αd) / αs) per channel.
func saturate(s, d uint32) uint32 {
	sa, sr, sg, sb := unpack(s)
	da, dr, dg, db := unpack(d)
	if sa == 0 || da == 0xff {
		return d
	}
	room := 255 - da
	if sa <= room {
		return pack(
			min(255, da+sa),
			min(255, dr+sr),
			min(255, dg+sg),
			min(255, db+sb),
		)
	}
	scale := func(v uint32) uint32 { return (v*room + sa/2) / sa }
	return pack(
		min(255, da+scale(sa)),
		min(255, dr+scale(sr)),
		min(255, dg+scale(sg)),
		min(255, db+scale(sb)),
	)
}
