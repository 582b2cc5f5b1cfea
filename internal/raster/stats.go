package raster

import (
	"fmt"
	"image/color"
	"math"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/fogleman/gg"
)

var registerDrivers sync.Once

// BandStats summarizes one band. Min, Max and Mean are NaN when no pixel is
// valid.
type BandStats struct {
	Band  int
	Min   float64
	Max   float64
	Mean  float64
	Valid int
	Total int
}

// Summary describes a downloaded GeoTIFF.
type Summary struct {
	Path         string
	Width        int
	Height       int
	GeoTransform GeoTransform
	Bands        []BandStats
}

func open(path string) (*godal.Dataset, error) {
	registerDrivers.Do(godal.RegisterInternalDrivers)
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open TIFF file: %w", err)
	}
	return ds, nil
}

// Stats reads every band of the GeoTIFF at path.
func Stats(path string) (*Summary, error) {
	ds, err := open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	structure := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to read geotransform: %w", err)
	}

	summary := &Summary{
		Path:         path,
		Width:        structure.SizeX,
		Height:       structure.SizeY,
		GeoTransform: GeoTransform(gt),
	}
	data := make([]float64, structure.SizeX*structure.SizeY)
	for i, band := range ds.Bands() {
		if err := band.Read(0, 0, data, structure.SizeX, structure.SizeY); err != nil {
			return nil, fmt.Errorf("failed to read band %d: %w", i+1, err)
		}
		nodata, hasNoData := band.NoData()
		stats := Summarize(data, nodata, hasNoData)
		stats.Band = i + 1
		summary.Bands = append(summary.Bands, stats)
	}
	return summary, nil
}

// Summarize skips NaN values and, when hasNoData is set, the no-data value.
func Summarize(values []float64, nodata float64, hasNoData bool) BandStats {
	stats := BandStats{Min: math.Inf(1), Max: math.Inf(-1), Total: len(values)}
	var sum float64
	for _, v := range values {
		if math.IsNaN(v) || (hasNoData && v == nodata) {
			continue
		}
		stats.Valid++
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	if stats.Valid == 0 {
		stats.Min, stats.Max, stats.Mean = math.NaN(), math.NaN(), math.NaN()
		return stats
	}
	stats.Mean = sum / float64(stats.Valid)
	return stats
}

// Sample is the value of every band at one pixel.
type Sample struct {
	Col    int
	Row    int
	Values []float64
}

// SampleAt reads every band of the GeoTIFF at path at the pixel containing a
// coordinate.
func SampleAt(path string, lat, lon float64) (*Sample, error) {
	ds, err := open(path)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to read geotransform: %w", err)
	}
	s := ds.Structure()
	col, row, err := GeoTransform(gt).Pixel(lat, lon, s.SizeX, s.SizeY)
	if err != nil {
		return nil, err
	}

	sample := &Sample{Col: col, Row: row}
	buf := make([]float64, 1)
	for i, band := range ds.Bands() {
		if err := band.Read(col, row, buf, 1, 1); err != nil {
			return nil, fmt.Errorf("failed to read band %d: %w", i+1, err)
		}
		sample.Values = append(sample.Values, buf[0])
	}
	return sample, nil
}

// RenderBand writes a PNG of one band, stretched between the band minimum and
// maximum and colored blue to green to red. Invalid pixels are transparent.
func RenderBand(path string, band int, out string) error {
	summary, err := Stats(path)
	if err != nil {
		return err
	}
	if band < 1 || band > len(summary.Bands) {
		return fmt.Errorf("band %d not in %s", band, path)
	}

	ds, err := open(path)
	if err != nil {
		return err
	}
	defer ds.Close()

	w, h := summary.Width, summary.Height
	b := ds.Bands()[band-1]
	data := make([]float64, w*h)
	if err := b.Read(0, 0, data, w, h); err != nil {
		return fmt.Errorf("failed to read raster data: %w", err)
	}
	nodata, hasNoData := b.NoData()
	stats := summary.Bands[band-1]

	dc := gg.NewContext(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := data[y*w+x]
			if math.IsNaN(v) || (hasNoData && v == nodata) {
				continue
			}
			dc.SetColor(Ramp(Stretch(v, stats.Min, stats.Max)))
			dc.SetPixel(x, y)
		}
	}
	if err := dc.SavePNG(out); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// Stretch maps v from [lo, hi] to [0, 1].
func Stretch(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
}

// Ramp colors a normalized value: blue at 0, green at 0.5, red at 1.
func Ramp(norm float64) color.RGBA {
	if norm <= 0.5 {
		ratio := norm / 0.5
		return color.RGBA{G: uint8(255 * ratio), B: uint8(255 * (1 - ratio)), A: 255}
	}
	ratio := (norm - 0.5) / 0.5
	return color.RGBA{R: uint8(255 * ratio), G: uint8(255 * (1 - ratio)), A: 255}
}
