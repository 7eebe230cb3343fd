package gopenslide

import "fmt"

const (
	PropertyBackgroundColor = "openslide.background-color"
	PropertyBoundsHeight    = "openslide.bounds-height"
	PropertyBoundsWidth     = "openslide.bounds-width"
	PropertyBoundsX         = "openslide.bounds-x"
	PropertyBoundsY         = "openslide.bounds-y"
	PropertyComment         = "openslide.comment"
	PropertyICCSize         = "openslide.icc-size"
	PropertyLevelCount      = "openslide.level-count"
	PropertyMPPX            = "openslide.mpp-x"
	PropertyMPPY            = "openslide.mpp-y"
	PropertyObjectivePower  = "openslide.objective-power"
	PropertyQuickHash1      = "openslide.quickhash-1"
	PropertyVendor          = "openslide.vendor"
)

// PropertyLevelWidth and friends name the per-level geometry properties.
func PropertyLevelWidth(level int) string {
	return fmt.Sprintf("openslide.level[%d].width", level)
}

func PropertyLevelHeight(level int) string {
	return fmt.Sprintf("openslide.level[%d].height", level)
}

func PropertyLevelDownsample(level int) string {
	return fmt.Sprintf("openslide.level[%d].downsample", level)
}

func PropertyLevelTileWidth(level int) string {
	return fmt.Sprintf("openslide.level[%d].tile-width", level)
}

func PropertyLevelTileHeight(level int) string {
	return fmt.Sprintf("openslide.level[%d].tile-height", level)
}

// PropertyAssociatedWidth and friends name the per-associated-image
// properties.
func PropertyAssociatedWidth(name string) string {
	return fmt.Sprintf("openslide.associated.%s.width", name)
}

func PropertyAssociatedHeight(name string) string {
	return fmt.Sprintf("openslide.associated.%s.height", name)
}

func PropertyAssociatedICCSize(name string) string {
	return fmt.Sprintf("openslide.associated.%s.icc-size", name)
}
