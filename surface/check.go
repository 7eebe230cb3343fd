package surface

import (
	"errors"
	"sync"
)

// ErrBrokenCompositor is returned by Check when saturating an opaque
// source onto an empty surface does not produce an opaque result.
var ErrBrokenCompositor = errors.New("surface: compositor does not render correctly")

// Check paints a known pattern once per process and reports whether the
// compositor draws it. Later calls return the cached verdict.
var Check = sync.OnceValue(verify)

func verify() error {
	const dim = 16
	dst := make([]uint32, dim*dim)
	src := make([]uint32, dim*dim)
	for i := range src {
		src[i] = 0xffffffff
	}
	c := NewContext(NewARGB32(dst, dim, dim, dim))
	c.SetOperator(OpSaturate)
	// an offset origin exercises the clipping path
	c.Translate(0, 1)
	c.PaintARGB32(src, dim, dim, dim, 0, -1)
	if err := c.Status(); err != nil {
		return err
	}
	// white pixel if working, transparent if broken
	if dst[8*dim+8] != 0xffffffff {
		return ErrBrokenCompositor
	}
	return nil
}
