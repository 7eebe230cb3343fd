package gopenslide

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ekonechny/gopenslide/v2/cache"
	"github.com/ekonechny/gopenslide/v2/surface"
	"github.com/ekonechny/gopenslide/v2/tifflike"
)

// format is a slide format the registry can detect and open.
type format interface {
	name() string
	vendor() string
	// detect returns nil if the file belongs to this format. tl is nil
	// when the file is not a TIFF.
	detect(path string, tl *tifflike.File) error
	// open fills o and returns the entry points for the opened slide.
	open(o *opening, path string, tl *tifflike.File, qh *quickhash) (slideOps, error)
}

// slideOps are a slide's backend entry points, registered on open.
type slideOps interface {
	// paintRegion draws the w x h level-space rectangle whose top-left
	// is (x, y) in level 0 coordinates.
	paintRegion(c *surface.Context, cb *cache.Binding, x, y int64, level int, w, h int64) error
	// readICCProfile copies the slide ICC profile into dst.
	readICCProfile(dst []byte) error
	destroy()
}

// associatedImage is a non-pyramidal image such as a label or macro.
type associatedImage struct {
	width, height int64
	iccSize       int64
	src           associatedSource
}

type associatedSource interface {
	argbData(dst []uint32) error
	readICCProfile(dst []byte) error
	destroy()
}

// opening collects what a backend discovers while opening a slide.
type opening struct {
	levels     []Level
	channels   int32
	timepoints int32
	zstacks    int32
	// nil values are dropped with a warning
	properties map[string]*string
	associated map[string]*associatedImage
	iccSize    int64
	cache      *cache.Binding
	debug      debugFlag
}

func newOpening(debug debugFlag) *opening {
	return &opening{
		debug:      debug,
		channels:   1,
		timepoints: 1,
		zstacks:    1,
		properties: make(map[string]*string),
		associated: make(map[string]*associatedImage),
	}
}

func (o *opening) setProperty(name, value string) {
	o.properties[name] = &value
}

// formats in detection order. The first match wins.
var formats = []format{
	syntheticFormat{},
	genericTIFFFormat{},
}

func detectFormat(path string, debug debugFlag) (format, *tifflike.File) {
	var tl *tifflike.File
	if path != "" {
		var err error
		tl, err = tifflike.Open(path)
		if err != nil {
			switch {
			case debug.has(debugDetection):
				slog.Info("detection: tifflike", "path", path, "error", err)
			case errors.Is(err, tifflike.ErrNotTIFF):
				slog.Debug("detection: tifflike", "path", path, "error", err)
			default:
				slog.Warn("detection: tifflike", "path", path, "error", err)
			}
			tl = nil
		}
	}
	for _, f := range formats {
		err := f.detect(path, tl)
		if err == nil {
			return f, tl
		}
		if debug.has(debugDetection) {
			slog.Info("detection: "+f.name(), "error", err)
		}
	}
	if tl != nil {
		tl.Close()
	}
	return nil, nil
}

// openBackend runs f.open and repairs broken reporting: a backend that
// fails without an error, or succeeds while also returning one.
func openBackend(f format, o *opening, path string, tl *tifflike.File, qh *quickhash) (slideOps, error) {
	ops, err := f.open(o, path, tl, qh)
	switch {
	case ops == nil && err == nil:
		slog.Warn("open: opener failed without setting error", "format", f.name())
		return nil, errUnknown
	case ops == nil && err.Error() == "":
		slog.Warn("open: opener failed with an empty error", "format", f.name())
		return nil, errUnknown
	case ops == nil:
		return nil, err
	case err != nil:
		slog.Warn("open: opener succeeded but set error", "format", f.name(), "error", err)
		ops.destroy()
		return nil, err
	case len(o.levels) == 0:
		slog.Warn("open: opener succeeded without levels", "format", f.name())
		ops.destroy()
		return nil, fmt.Errorf("%s: %w", f.name(), errNoLevels)
	}
	return ops, nil
}

var errNoLevels = errors.New("slide has no levels")

// DetectVendor returns the vendor of the format that recognizes filename.
func DetectVendor(filename string) (string, error) {
	f, tl := detectFormat(filename, envDebugFlags())
	if f == nil {
		return "", fmt.Errorf("no vendor for %s: %w", filename, ErrUnrecognized)
	}
	if tl != nil {
		tl.Close()
	}
	return f.vendor(), nil
}
