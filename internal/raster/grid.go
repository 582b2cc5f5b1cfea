// Package raster sizes pixel grids for computePixels requests and inspects the
// GeoTIFFs they return.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/forest-guardian/s2-downloader/internal/ee"
)

// metersPerDegree approximates one degree of latitude.
const metersPerDegree = 111_000.0

// DefaultMaxDimension is the largest side computePixels accepts in one call.
const DefaultMaxDimension = 2500

var ErrOutOfBounds = errors.New("coordinate out of raster bounds")

func calculatePixels(distance, resolution float64) int {
	pixels := distance * (metersPerDegree / resolution)
	if pixels < 1 {
		return 1
	}
	return int(pixels)
}

// GridFor covers bound at resolution meters per pixel, clamping every side to
// maxDim pixels.
func GridFor(bound orb.Bound, resolution float64, maxDim int) ee.PixelGrid {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	width := min(calculatePixels(bound.Max.X()-bound.Min.X(), resolution), maxDim)
	height := min(calculatePixels(bound.Max.Y()-bound.Min.Y(), resolution), maxDim)

	return ee.PixelGrid{
		Width:      width,
		Height:     height,
		ScaleX:     (bound.Max.X() - bound.Min.X()) / float64(width),
		ScaleY:     -(bound.Max.Y() - bound.Min.Y()) / float64(height),
		TranslateX: bound.Min.X(),
		TranslateY: bound.Max.Y(),
		CRS:        "EPSG:4326",
	}
}

// ThumbnailGrid covers bound with its longest side maxDim pixels wide,
// keeping square pixels in degrees.
func ThumbnailGrid(bound orb.Bound, maxDim int) ee.PixelGrid {
	if maxDim <= 0 {
		maxDim = 256
	}
	dx := bound.Max.X() - bound.Min.X()
	dy := bound.Max.Y() - bound.Min.Y()
	side := math.Max(dx, dy)
	if side <= 0 {
		side = 1
	}
	step := side / float64(maxDim)
	width := max(1, int(math.Round(dx/step)))
	height := max(1, int(math.Round(dy/step)))

	return ee.PixelGrid{
		Width:      width,
		Height:     height,
		ScaleX:     step,
		ScaleY:     -step,
		TranslateX: bound.Min.X(),
		TranslateY: bound.Max.Y(),
		CRS:        "EPSG:4326",
	}
}

// GeoTransform is the GDAL affine transform of a raster.
type GeoTransform [6]float64

// Pixel maps a geographic coordinate to the column and row that contain it.
func (gt GeoTransform) Pixel(lat, lon float64, width, height int) (int, int, error) {
	col := int(math.Floor((lon - gt[0]) / gt[1]))
	row := int(math.Floor((lat - gt[3]) / gt[5]))
	if col < 0 || col >= width || row < 0 || row >= height {
		return 0, 0, fmt.Errorf("%w: latitude %f and longitude %f", ErrOutOfBounds, lat, lon)
	}
	return col, row, nil
}
