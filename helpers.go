package gopenslide

import (
	"image"
	"image/color"
	"strconv"

	"github.com/disintegration/imaging"
)

const assocImageMacro = "macro"

// ReadAssociatedImage reads the named associated image. A portrait macro is
// rotated to landscape. The bool is false if the slide has no such image.
func ReadAssociatedImage(slide WSI, name string) (image.Image, bool, error) {
	w, h, ok := slide.AssociatedImageDimensions(name)
	if !ok {
		return nil, false, nil
	}
	var img image.Image
	img, err := slide.ReadAssociatedImage(name, w, h)
	if err != nil {
		return nil, false, err
	}
	if h > w && name == assocImageMacro {
		img = imaging.Rotate(img, 90, image.Transparent)
	}
	return img, true, nil
}

// ReadAssociatedImageFill reads the named associated image scaled and
// cropped to exactly w x h.
func ReadAssociatedImageFill(slide WSI, name string, w, h int) (image.Image, bool, error) {
	img, ok, err := ReadAssociatedImage(slide, name)
	if err != nil || !ok {
		return nil, ok, err
	}
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		img = imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
	}
	return img, true, nil
}

// Thumbnail renders the whole slide to fit within maxW x maxH, reading from
// the level closest to the needed downsample.
func Thumbnail(slide WSI, maxW, maxH int) (image.Image, error) {
	w0, h0 := slide.LargestLevelDimensions()
	if err := slide.Error(); err != nil {
		return nil, err
	}
	ds := max(float64(w0)/float64(maxW), float64(h0)/float64(maxH))
	level := slide.BestLevelForDownsample(ds)
	lw, lh := slide.LevelDimensions(level)
	img, err := slide.ReadRegion(image.Point{}, level, image.Point{X: int(lw), Y: int(lh)})
	if err != nil {
		return nil, err
	}
	bg := imaging.New(int(lw), int(lh), backgroundColor(slide))
	img = imaging.OverlayCenter(bg, img, 1)
	return imaging.Fit(img, maxW, maxH, imaging.Lanczos), nil
}

// ReadTileFromSlide Return an RGB Image for a tile.
func ReadTileFromSlide(t Tile, slide WSI) (image.Image, error) {
	tile, err := slide.ReadRegion(
		t.tileInfo.l0Location,
		int32(t.tileInfo.slideLevel),
		t.tileInfo.lSize,
	)
	if err != nil {
		return nil, err
	}

	bgImg := imaging.New(tile.Bounds().Dx(), tile.Bounds().Dy(), backgroundColor(slide))
	tile = imaging.OverlayCenter(bgImg, tile, 1)

	if tile.Bounds().Dx() != t.tileInfo.zSize.X || tile.Bounds().Dy() != t.tileInfo.zSize.Y {
		tile = imaging.Thumbnail(tile, t.tileInfo.zSize.X, t.tileInfo.zSize.Y, imaging.Lanczos)
	}
	return tile, nil
}

// backgroundColor parses openslide.background-color, an RRGGBB hex string,
// defaulting to white.
func backgroundColor(slide WSI) color.NRGBA {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	s := slide.PropertyValue(PropertyBackgroundColor)
	if len(s) != 6 {
		return white
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return white
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

func mustStrToInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func reverse[T comparable](a []T) {
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}
}
