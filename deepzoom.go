package gopenslide

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
)

var (
	ErrInvalidDeepZoomLevel = errors.New("invalid deep zoom level")
	ErrInvalidTileAddress   = errors.New("invalid tile address")
)

type (
	// DeepZoomGenerator provides functionality for generating Deep Zoom images from OpenSlide objects
	DeepZoomGenerator struct {
		wsi      WSI
		tileSize int
		overlap  int

		deepZoomTileLevels []image.Point
		deepZoomLevels     []image.Point
		level0Offset       image.Point
		downsamples        []downsample
	}

	// Tile addresses one Deep Zoom tile and the slide region behind it.
	Tile struct {
		Level int
		Row   int
		Col   int

		tileInfo
	}

	tileInfo struct {
		l0Location image.Point
		lSize      image.Point
		zSize      image.Point
		slideLevel int
	}
)

// NewDeepZoomGenerator creates a DeepZoomGenerator wrapping an open slide.
// With limitBounds the pyramid covers only the openslide.bounds-* area.
func NewDeepZoomGenerator(slide WSI, tileSize int, overlap int, limitBounds bool) (*DeepZoomGenerator, error) {
	if tileSize <= 0 || overlap < 0 {
		return nil, fmt.Errorf("tile size %d, overlap %d", tileSize, overlap)
	}
	if err := slide.Error(); err != nil {
		return nil, err
	}
	levels := getLevelDimensions(slide, limitBounds)
	deepZoomLevels := getDeepZoomLevels(levels[0])
	return &DeepZoomGenerator{
		wsi:                slide,
		tileSize:           tileSize,
		overlap:            overlap,
		deepZoomTileLevels: getDeepZoomTileLevels(tileSize, deepZoomLevels),
		deepZoomLevels:     deepZoomLevels,
		level0Offset:       getLevel0Offset(slide, limitBounds),
		downsamples:        generateDownsamples(slide, levels, len(deepZoomLevels)),
	}, nil
}

// Tile returns tile object by coordinates (level, col and row)
func (dz *DeepZoomGenerator) Tile(level, col, row int) (Tile, error) {
	ti, err := dz.tileInfo(level, col, row)
	if err != nil {
		return Tile{}, err
	}
	return Tile{
		Level:    level,
		Row:      row,
		Col:      col,
		tileInfo: ti,
	}, nil
}

// Iter yields every tile, lowest resolution first, until ctx is done.
func (dz *DeepZoomGenerator) Iter(ctx context.Context) <-chan Tile {
	ch := make(chan Tile)
	go func() {
		defer close(ch)
		for level := 0; level < dz.LevelsCount(); level++ {
			cols, rows := dz.Level(level).X, dz.Level(level).Y
			for row := 0; row < rows; row++ {
				for col := 0; col < cols; col++ {
					tile, err := dz.Tile(level, col, row)
					if err != nil {
						continue
					}
					select {
					case <-ctx.Done():
						return
					case ch <- tile:
					}
				}
			}
		}
	}()
	return ch
}

// Read returns the tile as an opaque image on the slide background.
func (dz *DeepZoomGenerator) Read(ctx context.Context, t Tile) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadTileFromSlide(t, dz.wsi)
}

// LevelsCount provides the number of Deep Zoom levels in the image
func (dz *DeepZoomGenerator) LevelsCount() int {
	return len(dz.downsamples)
}

// LevelTiles provides the tile grid size of each Deep Zoom level.
func (dz *DeepZoomGenerator) LevelTiles() []image.Point {
	return dz.deepZoomTileLevels
}

// Level provides deep zoom level
func (dz *DeepZoomGenerator) Level(level int) image.Point {
	return dz.deepZoomTileLevels[level]
}

// LevelDimensions provides the pixel size of each Deep Zoom level.
func (dz *DeepZoomGenerator) LevelDimensions() []image.Point {
	return dz.deepZoomLevels
}

// TileCount provides the total number of Deep Zoom tiles in the image
func (dz *DeepZoomGenerator) TileCount() int {
	var sum int
	for _, dimension := range dz.deepZoomTileLevels {
		sum += dimension.X * dimension.Y
	}
	return sum
}

func getDeepZoomLevels(zSize image.Point) []image.Point {
	zDimensions := []image.Point{zSize}
	for zSize.X > 1 || zSize.Y > 1 {
		zSize = image.Point{
			X: max(1, (zSize.X+1)/2),
			Y: max(1, (zSize.Y+1)/2),
		}
		zDimensions = append(zDimensions, zSize)
	}
	reverse(zDimensions)
	return zDimensions
}

func tileCount(tileSize, zLim int) int {
	return (zLim + tileSize - 1) / tileSize
}

func getDeepZoomTileLevels(tileSize int, dimensions []image.Point) []image.Point {
	r := make([]image.Point, 0, len(dimensions))
	for _, d := range dimensions {
		r = append(r, image.Point{X: tileCount(tileSize, d.X), Y: tileCount(tileSize, d.Y)})
	}
	return r
}

type downsample struct {
	slideLevel          levelDownsample
	bestLevelDownsample float64
}

type levelDownsample struct {
	level      int32
	downsample float64
	image.Point
}

// generateDownsamples picks, for every Deep Zoom level, the slide level to
// read from and the remaining scale factor.
func generateDownsamples(slide WSI, levels []image.Point, dzLevelsCount int) []downsample {
	downsamples := make([]downsample, 0, dzLevelsCount)
	for dzLevel := 0; dzLevel < dzLevelsCount; dzLevel++ {
		l0ZDownsample := math.Pow(2, float64(dzLevelsCount-dzLevel-1))
		best := slide.BestLevelForDownsample(l0ZDownsample)
		ds := slide.LevelDownsample(best)
		downsamples = append(downsamples, downsample{
			slideLevel: levelDownsample{
				level:      best,
				downsample: ds,
				Point:      levels[best],
			},
			bestLevelDownsample: l0ZDownsample / ds,
		})
	}
	return downsamples
}

func getLevel0Offset(slide WSI, limitBounds bool) image.Point {
	if limitBounds {
		return image.Point{
			X: mustStrToInt(slide.PropertyValue(PropertyBoundsX)),
			Y: mustStrToInt(slide.PropertyValue(PropertyBoundsY)),
		}
	}
	return image.Point{}
}

type deepZoomOverlap struct {
	top    int
	left   int
	bottom int
	right  int
}

func getDeepZoomOverlap(levelDimension image.Point, overlap, col, row int) deepZoomOverlap {
	return deepZoomOverlap{
		left:   overlap * boolToInt(col != 0),
		top:    overlap * boolToInt(row != 0),
		right:  overlap * boolToInt(col != levelDimension.X-1),
		bottom: overlap * boolToInt(row != levelDimension.Y-1),
	}
}

func (dz *DeepZoomGenerator) tileInfo(dzLevel, col, row int) (tileInfo, error) {
	if dzLevel < 0 || dzLevel >= len(dz.downsamples) {
		return tileInfo{}, fmt.Errorf("%w: %d", ErrInvalidDeepZoomLevel, dzLevel)
	}
	tiles := dz.Level(dzLevel)
	if col < 0 || row < 0 || col >= tiles.X || row >= tiles.Y {
		return tileInfo{}, fmt.Errorf("%w: level %d col %d row %d", ErrInvalidTileAddress, dzLevel, col, row)
	}

	level := dz.downsamples[dzLevel]
	dzOverlap := getDeepZoomOverlap(tiles, dz.overlap, col, row)

	zSize := image.Point{
		X: min(dz.tileSize, dz.deepZoomLevels[dzLevel].X-dz.tileSize*col) + dzOverlap.left + dzOverlap.right,
		Y: min(dz.tileSize, dz.deepZoomLevels[dzLevel].Y-dz.tileSize*row) + dzOverlap.top + dzOverlap.bottom,
	}
	zLocation := image.Point{
		X: dz.tileSize * col,
		Y: dz.tileSize * row,
	}
	lLocation := [2]float64{
		level.bestLevelDownsample * float64(zLocation.X-dzOverlap.left),
		level.bestLevelDownsample * float64(zLocation.Y-dzOverlap.top),
	}
	// round location down and size up, then shift into the active area
	l0Location := image.Point{
		X: int(level.slideLevel.downsample*lLocation[0]) + dz.level0Offset.X,
		Y: int(level.slideLevel.downsample*lLocation[1]) + dz.level0Offset.Y,
	}
	lSize := image.Point{
		X: int(math.Min(
			math.Ceil(level.bestLevelDownsample*float64(zSize.X)),
			float64(level.slideLevel.X)-math.Ceil(lLocation[0]),
		)),
		Y: int(math.Min(
			math.Ceil(level.bestLevelDownsample*float64(zSize.Y)),
			float64(level.slideLevel.Y)-math.Ceil(lLocation[1]),
		)),
	}

	return tileInfo{
		l0Location: l0Location,
		lSize:      lSize,
		zSize:      zSize,
		slideLevel: int(level.slideLevel.level),
	}, nil
}

// getLevelDimensions returns the slide level sizes, scaled down to the
// bounds area when limitBounds is set.
func getLevelDimensions(slide WSI, limitBounds bool) []image.Point {
	levels := slide.Levels()
	dimensions := make([]image.Point, 0, len(levels))
	for _, l := range levels {
		dimensions = append(dimensions, image.Point{X: int(l.Width), Y: int(l.Height)})
	}
	if !limitBounds {
		return dimensions
	}

	l0width, l0height := dimensions[0].X, dimensions[0].Y
	xRatio := float64(mustStrToInt(slide.PropertyValueWithDefault(PropertyBoundsWidth, strconv.Itoa(l0width)))) / float64(l0width)
	yRatio := float64(mustStrToInt(slide.PropertyValueWithDefault(PropertyBoundsHeight, strconv.Itoa(l0height)))) / float64(l0height)
	for i := range dimensions {
		dimensions[i].X = int(math.Ceil(float64(dimensions[i].X) * xRatio))
		dimensions[i].Y = int(math.Ceil(float64(dimensions[i].Y) * yRatio))
	}
	return dimensions
}
