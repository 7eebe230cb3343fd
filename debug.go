package gopenslide

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

type debugFlag uint

const (
	debugDetection debugFlag = 1 << iota
	debugTiles
	debugPerformance
	debugSynthetic
)

var debugFlagNames = map[string]debugFlag{
	"detection":   debugDetection,
	"tiles":       debugTiles,
	"performance": debugPerformance,
	"synthetic":   debugSynthetic,
}

func parseDebugFlags(names []string) debugFlag {
	var f debugFlag
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if v, ok := debugFlagNames[name]; ok {
			f |= v
		} else {
			slog.Warn("debug: unknown flag", "flag", name)
		}
	}
	return f
}

// envDebugFlags is parsed once from OPENSLIDE_DEBUG.
var envDebugFlags = sync.OnceValue(func() debugFlag {
	return parseDebugFlags(strings.Split(os.Getenv("OPENSLIDE_DEBUG"), ","))
})

func (f debugFlag) has(flag debugFlag) bool { return f&flag != 0 }
