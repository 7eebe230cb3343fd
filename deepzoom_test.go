package gopenslide

import (
	"context"
	"errors"
	"image"
	"testing"
)

func TestDeepZoomLevels(t *testing.T) {
	got := getDeepZoomLevels(image.Point{X: 5, Y: 3})
	want := []image.Point{{1, 1}, {2, 1}, {3, 2}, {5, 3}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("level %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDeepZoomGenerator(t *testing.T) {
	wsi, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer wsi.Close()

	dz, err := NewDeepZoomGenerator(wsi, 254, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	// 6000 halves down to 1 in 13 steps
	if got := dz.LevelsCount(); got != 14 {
		t.Fatalf("got %d levels, want 14", got)
	}
	last := dz.LevelDimensions()[dz.LevelsCount()-1]
	if last != (image.Point{X: 6000, Y: 4000}) {
		t.Errorf("full resolution level %v", last)
	}
	if got := dz.Level(dz.LevelsCount() - 1); got != (image.Point{X: 24, Y: 16}) {
		t.Errorf("full resolution tiles %v", got)
	}

	tile, err := dz.Tile(dz.LevelsCount()-1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	// inner tiles carry overlap on both sides
	if tile.zSize != (image.Point{X: 256, Y: 256}) {
		t.Errorf("tile size %v", tile.zSize)
	}
	img, err := dz.Read(context.Background(), tile)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 256 || b.Dy() != 256 {
		t.Errorf("tile image %v", b)
	}

	// the smallest level reads from the smallest slide level
	small, err := dz.Tile(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if small.slideLevel != 2 {
		t.Errorf("1x1 level reads slide level %d", small.slideLevel)
	}

	for _, addr := range [][3]int{{-1, 0, 0}, {dz.LevelsCount(), 0, 0}, {0, 1, 0}, {0, 0, -1}} {
		_, err := dz.Tile(addr[0], addr[1], addr[2])
		if !errors.Is(err, ErrInvalidDeepZoomLevel) && !errors.Is(err, ErrInvalidTileAddress) {
			t.Errorf("tile %v: %v", addr, err)
		}
	}
}

func TestDeepZoomIterStops(t *testing.T) {
	wsi, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer wsi.Close()
	dz, err := NewDeepZoomGenerator(wsi, 512, 0, false)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var n int
	for range dz.Iter(ctx) {
		n++
		if n == 5 {
			cancel()
			break
		}
	}
	cancel()

	n = 0
	for range dz.Iter(context.Background()) {
		n++
	}
	if n != dz.TileCount() {
		t.Errorf("iterated %d tiles, want %d", n, dz.TileCount())
	}
}

func TestDeepZoomRejectsErroredSlide(t *testing.T) {
	if _, err := NewDeepZoomGenerator(WSI{}, 256, 0, false); err == nil {
		t.Error("generator over a closed slide")
	}
	wsi, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer wsi.Close()
	if _, err := NewDeepZoomGenerator(wsi, 0, 0, false); err == nil {
		t.Error("zero tile size accepted")
	}
}

func TestThumbnail(t *testing.T) {
	wsi, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer wsi.Close()
	img, err := Thumbnail(wsi, 300, 300)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("thumbnail %v", b)
	}
}
