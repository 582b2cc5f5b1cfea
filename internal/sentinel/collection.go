package sentinel

import (
	"fmt"
	"time"

	"github.com/forest-guardian/s2-downloader/internal/ee"
)

// Catalog assets.
const (
	SurfaceReflectance = "COPERNICUS/S2_SR"
	CloudProbability   = "COPERNICUS/S2_CLOUD_PROBABILITY"
	SurfaceWater       = "JRC/GSW1_0/GlobalSurfaceWater"
)

// CloudyPixelPercentage is the scene-level cloud metadata of S2_SR.
const CloudyPixelPercentage = "CLOUDY_PIXEL_PERCENTAGE"

// Query selects Sentinel-2 surface reflectance scenes over an AOI.
type Query struct {
	AOI             ee.Geometry
	Start           time.Time
	End             time.Time
	CloudPercentage float64
}

// Images are the scenes under the cloud threshold acquired in [Start, End)
// that intersect the AOI.
func (q Query) Images() ee.ImageCollection {
	return q.Window(q.Start, q.End)
}

// Window is Images restricted to [start, end).
func (q Query) Window(start, end time.Time) ee.ImageCollection {
	return ee.LoadImageCollection(SurfaceReflectance).
		Filter(ee.LessThan(CloudyPixelPercentage, q.CloudPercentage)).
		FilterDate(start, end).
		FilterBounds(q.AOI)
}

// MaskedImages is Images with cloudy pixels masked on every scene.
func (q Query) MaskedImages(m CloudMask) ee.ImageCollection {
	return q.MaskedWindow(q.Start, q.End, m)
}

func (q Query) MaskedWindow(start, end time.Time, m CloudMask) ee.ImageCollection {
	return ee.LoadImageCollection(SurfaceReflectance).
		Filter(ee.LessThan(CloudyPixelPercentage, q.CloudPercentage)).
		FilterDate(start, end).
		Map(m.Apply).
		FilterBounds(q.AOI)
}

// CloudProbabilityImages is the s2cloudless layer over the AOI.
func (q Query) CloudProbabilityImages() ee.ImageCollection {
	return q.CloudProbabilityWindow(q.Start, q.End)
}

func (q Query) CloudProbabilityWindow(start, end time.Time) ee.ImageCollection {
	return ee.LoadImageCollection(CloudProbability).
		FilterBounds(q.AOI).
		FilterDate(start, end)
}

// CloudMask masks pixels by the per-pixel probability bands of S2_SR.
type CloudMask struct {
	CloudProbability float64
	SnowProbability  float64
	MaskSnow         bool
}

func DefaultCloudMask() CloudMask {
	return CloudMask{CloudProbability: 30, SnowProbability: 5}
}

// Apply keeps pixels with MSK_CLDPRB below the cloud threshold and, when
// MaskSnow is set, MSK_SNWPRB below the snow threshold.
func (m CloudMask) Apply(img ee.Image) ee.Image {
	mask := img.Select("MSK_CLDPRB").Lt(m.CloudProbability)
	if m.MaskSnow {
		mask = mask.And(img.Select("MSK_SNWPRB").Lt(m.SnowProbability))
	}
	return img.UpdateMask(mask)
}

// Composite merges the scenes of a window into one image.
type Composite string

const (
	Mosaic Composite = "mosaic"
	Median Composite = "median"
)

func ParseComposite(s string) (Composite, error) {
	switch c := Composite(s); c {
	case Mosaic, Median:
		return c, nil
	case "":
		return Mosaic, nil
	default:
		return "", fmt.Errorf("unknown composite method %q, use mosaic or median", s)
	}
}

func (c Composite) Apply(col ee.ImageCollection) ee.Image {
	if c == Median {
		return col.Median()
	}
	return col.Mosaic()
}
