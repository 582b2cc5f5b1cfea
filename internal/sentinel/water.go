package sentinel

import (
	"time"

	"github.com/forest-guardian/s2-downloader/internal/ee"
)

// Water masking uses a reference mosaic with at most this scene cloud cover.
const waterReferenceCloudPercentage = 15

// maskedValue marks pixels to drop before the final updateMask.
const maskedValue = 100

// MaskPermanentWater drops pixels that are water most of the year (JRC
// seasonality of at least two months) or water on a reference mosaic of
// [start, end) (SWI above zero).
func MaskPermanentWater(img ee.Image, aoi ee.Geometry, start, end time.Time) ee.Image {
	reference := ee.LoadImageCollection(SurfaceReflectance).
		Filter(ee.LessThan(CloudyPixelPercentage, waterReferenceCloudPercentage)).
		FilterDate(start, end).
		Map(func(i ee.Image) ee.Image { return i.Select("B.*", "SCL") }).
		FilterBounds(aoi).
		Mosaic()

	swi := reference.NormalizedDifference("B3", "B11").Rename("swi")
	swiMask := swi.Gt(0).UpdateMask(swi.Gt(0))

	seasonality := ee.LoadImage(SurfaceWater).Select("seasonality")
	waterMask := seasonality.Gte(2).UpdateMask(seasonality.Gte(2))

	marked := img.Where(waterMask, maskedValue).Where(swiMask, maskedValue)
	return marked.UpdateMask(marked.Neq(maskedValue))
}
