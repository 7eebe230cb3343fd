package gopenslide

import (
	"fmt"
	"log/slog"
)

// Level is one pyramid resolution. TileWidth and TileHeight are zero when
// the format has no natural tile size.
type Level struct {
	Width, Height         int64
	Downsample            float64
	TileWidth, TileHeight int64
}

func (l Level) hasTileGeometry() bool {
	return l.TileWidth > 0 && l.TileHeight > 0
}

// fillDownsamples sets level 0 to 1 and infers any unset downsample from
// the level's size relative to level 0.
func fillDownsamples(levels []Level) {
	if len(levels) == 0 {
		return
	}
	if levels[0].Downsample == 0 {
		levels[0].Downsample = 1
	}
	w0, h0 := float64(levels[0].Width), float64(levels[0].Height)
	for i := 1; i < len(levels); i++ {
		l := &levels[i]
		if l.Downsample == 0 {
			l.Downsample = (h0/float64(l.Height) + w0/float64(l.Width)) / 2
		}
	}
}

func checkDownsamples(levels []Level) error {
	for i := 1; i < len(levels); i++ {
		if levels[i].Downsample < levels[i-1].Downsample {
			slog.Warn("open: downsampled images not correctly ordered",
				"level", i, "downsample", levels[i].Downsample, "previous", levels[i-1].Downsample)
			return fmt.Errorf("downsampled images not correctly ordered: %g < %g",
				levels[i].Downsample, levels[i-1].Downsample)
		}
	}
	return nil
}

// bestLevel returns the last level whose downsample does not exceed ds, or
// level 0 when ds is below every level.
func bestLevel(levels []Level, ds float64) int {
	if ds < levels[0].Downsample {
		return 0
	}
	for i := 1; i < len(levels); i++ {
		if ds < levels[i].Downsample {
			return i - 1
		}
	}
	return len(levels) - 1
}
