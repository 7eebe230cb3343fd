package gopenslide

import (
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/ekonechny/gopenslide/v2/cache"
	"github.com/ekonechny/gopenslide/v2/surface"
	"github.com/ekonechny/gopenslide/v2/tifflike"
)

const version = "2.0.0"

// WSI is an open whole slide image. The zero WSI behaves like a slide in
// the error state.
type WSI struct {
	s *slide
}

type slide struct {
	levels     []Level
	channels   int32
	timepoints int32
	zstacks    int32

	properties     map[string]string
	propertyNames  []string
	associated     map[string]*associatedImage
	associatedList []string
	iccSize        int64

	ops   slideOps
	tl    *tifflike.File
	cache *cache.Binding
	debug debugFlag

	err       stickyError
	closeOnce sync.Once
}

// Open opens the wsi file with DefaultConfig.
// don't forget to call Close
func Open(filename string) (WSI, error) {
	return OpenWithConfig(filename, DefaultConfig())
}

// OpenWithConfig opens the wsi file. A file no format recognizes returns
// an error wrapping ErrUnrecognized and no slide. A recognized file that
// fails to open returns both the error and a WSI in the error state, which
// must still be closed.
func OpenWithConfig(filename string, cfg Config) (WSI, error) {
	if err := cfg.validate(); err != nil {
		return WSI{}, err
	}
	debug := envDebugFlags() | parseDebugFlags(cfg.Debug)

	f, tl := detectFormat(filename, debug)
	if f == nil {
		return WSI{}, fmt.Errorf("file %s unrecognized: %w", filename, ErrUnrecognized)
	}
	s := &slide{
		properties: make(map[string]string),
		associated: make(map[string]*associatedImage),
		tl:         tl,
		debug:      debug,
	}

	if err := surface.Check(); err != nil {
		s.err.set(err)
		return WSI{s}, err
	}

	o := newOpening(debug)
	qh := newQuickhash(cfg.DisableQuickHash)
	ops, err := openBackend(f, o, filename, tl, qh)
	if err != nil {
		// whatever the backend attached is released by Close
		s.adopt(o)
		s.err.set(err)
		return WSI{s}, err
	}
	s.ops = ops

	fillDownsamples(o.levels)
	if err := checkDownsamples(o.levels); err != nil {
		s.adopt(o)
		s.close()
		return WSI{}, err
	}
	s.adopt(o)

	if sum, ok := qh.sum(); ok {
		o.setProperty(PropertyQuickHash1, sum)
	}
	o.setProperty(PropertyVendor, f.vendor())
	if o.iccSize != 0 {
		o.setProperty(PropertyICCSize, strconv.FormatInt(o.iccSize, 10))
	}
	o.setProperty(PropertyLevelCount, strconv.Itoa(len(o.levels)))
	geometry := o.levels[0].hasTileGeometry()
	for i, l := range o.levels {
		o.setProperty(PropertyLevelWidth(i), strconv.FormatInt(l.Width, 10))
		o.setProperty(PropertyLevelHeight(i), strconv.FormatInt(l.Height, 10))
		o.setProperty(PropertyLevelDownsample(i), formatDouble(l.Downsample))
		if l.hasTileGeometry() != geometry {
			slog.Warn("open: inconsistent tile geometry hints between levels", "level", i)
		}
		if l.hasTileGeometry() {
			o.setProperty(PropertyLevelTileWidth(i), strconv.FormatInt(l.TileWidth, 10))
			o.setProperty(PropertyLevelTileHeight(i), strconv.FormatInt(l.TileHeight, 10))
		}
	}
	for _, name := range s.associatedList {
		img := s.associated[name]
		o.setProperty(PropertyAssociatedWidth(name), strconv.FormatInt(img.width, 10))
		o.setProperty(PropertyAssociatedHeight(name), strconv.FormatInt(img.height, 10))
		if img.iccSize != 0 {
			o.setProperty(PropertyAssociatedICCSize(name), strconv.FormatInt(img.iccSize, 10))
		}
	}
	for name, value := range o.properties {
		if value == nil {
			slog.Warn("open: property has nil value", "property", name)
			continue
		}
		s.properties[name] = *value
	}
	s.propertyNames = sortedKeys(s.properties)

	if s.cache == nil {
		s.cache = cache.NewBinding(cfg.CacheSize)
	}
	return WSI{s}, nil
}

// adopt moves what the backend discovered into s.
func (s *slide) adopt(o *opening) {
	s.levels = o.levels
	s.channels, s.timepoints, s.zstacks = o.channels, o.timepoints, o.zstacks
	s.associated = o.associated
	s.associatedList = sortedKeys(o.associated)
	s.iccSize = o.iccSize
	s.cache = o.cache
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatDouble renders property doubles the shortest way that round-trips.
func formatDouble(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (s *slide) close() {
	s.closeOnce.Do(func() {
		if s.ops != nil {
			s.ops.destroy()
		}
		for _, img := range s.associated {
			img.src.destroy()
		}
		s.associated = nil
		s.properties = nil
		if s.cache != nil {
			s.cache.Close()
		}
		if s.tl != nil {
			s.tl.Close()
		}
	})
}

// Close closes the slide, including one in the error state.
func (wsi WSI) Close() {
	if wsi.s != nil {
		wsi.s.close()
	}
}

// Error returns the first error recorded on the slide, or nil.
func (wsi WSI) Error() error {
	if wsi.s == nil {
		return errNotOpen
	}
	return wsi.s.err.get()
}

var errNotOpen = fmt.Errorf("slide not open: %w", ErrUnrecognized)

// failed reports whether accessors should return their sentinel.
func (wsi WSI) failed() bool {
	return wsi.s == nil || wsi.s.err.get() != nil
}

func (wsi WSI) levelInRange(level int32) bool {
	return level >= 0 && int(level) < len(wsi.s.levels)
}

// Version returns the library version.
func Version() string {
	return version
}

// GetVendor returns the openslide.vendor property.
func (wsi WSI) GetVendor() string {
	return wsi.PropertyValue(PropertyVendor)
}

// LevelCount returns count of level resolutions, or -1 on error.
func (wsi WSI) LevelCount() int32 {
	if wsi.failed() {
		return -1
	}
	return int32(len(wsi.s.levels))
}

// ChannelCount returns the number of channels, or -1 on error.
func (wsi WSI) ChannelCount() int32 {
	if wsi.failed() {
		return -1
	}
	return wsi.s.channels
}

// TimepointCount returns the number of timepoints, or -1 on error.
func (wsi WSI) TimepointCount() int32 {
	if wsi.failed() {
		return -1
	}
	return wsi.s.timepoints
}

// ZStackCount returns the number of focal planes, or -1 on error.
func (wsi WSI) ZStackCount() int32 {
	if wsi.failed() {
		return -1
	}
	return wsi.s.zstacks
}

// LargestLevelDimensions return dimension of largest image
func (wsi WSI) LargestLevelDimensions() (int64, int64) {
	return wsi.LevelDimensions(0)
}

// LevelDimensions returns dimensions for the level, or -1, -1.
func (wsi WSI) LevelDimensions(level int32) (int64, int64) {
	if wsi.failed() || !wsi.levelInRange(level) {
		return -1, -1
	}
	l := wsi.s.levels[level]
	return l.Width, l.Height
}

// LevelDownsample return level downsample for current level, or -1.
func (wsi WSI) LevelDownsample(level int32) float64 {
	if wsi.failed() || !wsi.levelInRange(level) {
		return -1
	}
	return wsi.s.levels[level].Downsample
}

// Levels returns a copy of the level table, or nil on error.
func (wsi WSI) Levels() []Level {
	if wsi.failed() {
		return nil
	}
	return append([]Level(nil), wsi.s.levels...)
}

// BestLevelForDownsample returns best level for downsampling
func (wsi WSI) BestLevelForDownsample(downsample float64) int32 {
	if wsi.failed() {
		return -1
	}
	return int32(bestLevel(wsi.s.levels, downsample))
}

// PropertyNames returns the sorted property names.
func (wsi WSI) PropertyNames() []string {
	if wsi.failed() {
		return []string{}
	}
	return append([]string(nil), wsi.s.propertyNames...)
}

// PropertyValue returns value for current property
func (wsi WSI) PropertyValue(propName string) string {
	if wsi.failed() {
		return ""
	}
	return wsi.s.properties[propName]
}

// PropertyValueWithDefault returns value for current property or default value
func (wsi WSI) PropertyValueWithDefault(name string, defaultValue string) string {
	v := wsi.PropertyValue(name)
	if v != "" {
		return v
	}
	return defaultValue
}

// ICCProfileSize returns the slide ICC profile size, or -1 on error.
func (wsi WSI) ICCProfileSize() int64 {
	if wsi.failed() {
		return -1
	}
	return wsi.s.iccSize
}

// ReadICCProfile copies the slide ICC profile into dst, which must hold
// ICCProfileSize bytes. dst is zeroed on failure.
func (wsi WSI) ReadICCProfile(dst []byte) {
	if wsi.s == nil {
		clear(dst)
		return
	}
	s := wsi.s
	n := min(int64(len(dst)), s.iccSize)
	if wsi.failed() {
		clear(dst[:n])
		return
	}
	if s.iccSize == 0 {
		return
	}
	if int64(len(dst)) < s.iccSize {
		s.err.set(fmt.Errorf("%w: ICC profile needs %d bytes, have %d", ErrBufferTooSmall, s.iccSize, len(dst)))
		clear(dst)
		return
	}
	if err := s.ops.readICCProfile(dst[:s.iccSize]); err != nil {
		s.err.set(err)
		clear(dst[:s.iccSize])
	}
}

// AssociatedImageNames returns list of associated images
func (wsi WSI) AssociatedImageNames() []string {
	if wsi.failed() {
		return []string{}
	}
	return append([]string(nil), wsi.s.associatedList...)
}

// AssociatedImageDimensions returns associated image dimensions by name
func (wsi WSI) AssociatedImageDimensions(name string) (int64, int64, bool) {
	if wsi.failed() {
		return -1, -1, false
	}
	img, ok := wsi.s.associated[name]
	if !ok {
		return -1, -1, false
	}
	return img.width, img.height, true
}

// AssociatedImageICCProfileSize returns the ICC profile size of the
// associated image, or -1.
func (wsi WSI) AssociatedImageICCProfileSize(name string) int64 {
	if wsi.failed() {
		return -1
	}
	img, ok := wsi.s.associated[name]
	if !ok {
		return -1
	}
	return img.iccSize
}

// ReadAssociatedImageICCProfile copies an associated image's ICC profile
// into dst.
func (wsi WSI) ReadAssociatedImageICCProfile(name string, dst []byte) {
	if wsi.s == nil {
		clear(dst)
		return
	}
	s := wsi.s
	img, ok := s.associated[name]
	if !ok {
		return
	}
	n := min(int64(len(dst)), img.iccSize)
	if wsi.failed() {
		clear(dst[:n])
		return
	}
	if img.iccSize == 0 {
		return
	}
	if int64(len(dst)) < img.iccSize {
		s.err.set(fmt.Errorf("%w: ICC profile needs %d bytes, have %d", ErrBufferTooSmall, img.iccSize, len(dst)))
		clear(dst)
		return
	}
	if err := img.src.readICCProfile(dst[:img.iccSize]); err != nil {
		s.err.set(err)
		clear(dst[:img.iccSize])
	}
}

// ReadAssociatedImageARGB fills dst, which must hold width*height pixels,
// with the premultiplied ARGB pixels of the named associated image.
func (wsi WSI) ReadAssociatedImageARGB(name string, dst []uint32) {
	if wsi.s == nil {
		clear(dst)
		return
	}
	s := wsi.s
	img, ok := s.associated[name]
	if !ok {
		return
	}
	pixels := img.width * img.height
	n := min(int64(len(dst)), pixels)
	if wsi.failed() {
		clear(dst[:n])
		return
	}
	if int64(len(dst)) < pixels {
		s.err.set(fmt.Errorf("%w: associated image %s needs %d pixels, have %d", ErrBufferTooSmall, name, pixels, len(dst)))
		clear(dst)
		return
	}
	if err := img.src.argbData(dst[:pixels]); err != nil {
		s.err.set(err)
		clear(dst[:pixels])
	}
}

// ReadAssociatedImage returns associated image
func (wsi WSI) ReadAssociatedImage(name string, w, h int64) (ImageWithSubImage, error) {
	buf := make([]uint32, w*h)
	wsi.ReadAssociatedImageARGB(name, buf)
	if err := wsi.Error(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	argbToRGBA(buf, img.Pix)
	return img, nil
}

// SetCache points the slide at a shared cache. The slide takes its own
// reference, so the caller may Release c afterwards. A nil c is ignored.
func (wsi WSI) SetCache(c *cache.Cache) {
	if wsi.failed() {
		return
	}
	wsi.s.cache.Set(c)
}
