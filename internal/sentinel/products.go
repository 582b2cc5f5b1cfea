package sentinel

import (
	"fmt"
	"strings"

	"github.com/forest-guardian/s2-downloader/internal/ee"
)

// Product is one kind of exported layer.
type Product string

const (
	RGB   Product = "rgb"
	MNDWI Product = "mndwi"
	NDVI  Product = "ndvi"
	SWI   Product = "swi"
	NDWI  Product = "ndwi"
	Cloud Product = "cloud"
)

// Products lists every product in export order.
var Products = []Product{RGB, MNDWI, NDVI, SWI, NDWI, Cloud}

// Index is a normalized difference (A - B) / (A + B) of two bands.
type Index struct {
	Name  string
	BandA string
	BandB string
}

var indexes = map[Product]Index{
	NDVI:  {Name: "ndvi", BandA: "B8", BandB: "B4"},
	MNDWI: {Name: "mndwi", BandA: "B3", BandB: "B11"},
	NDWI:  {Name: "ndwi", BandA: "B8", BandB: "B11"},
	SWI:   {Name: "swi", BandA: "B5", BandB: "B11"},
}

var rgbVis = ee.VisParams{Bands: []string{"B4", "B3", "B2"}, Min: 0, Max: 3000}

var palettes = map[Product][]string{
	NDVI:  {"white", "green"},
	MNDWI: {"white", "blue"},
	NDWI:  {"white", "blue"},
	SWI:   {"white", "blue"},
}

func ParseProducts(names []string) ([]Product, error) {
	seen := make(map[Product]bool)
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			p := Product(strings.ToLower(strings.TrimSpace(part)))
			if p == "" {
				continue
			}
			if !p.Valid() {
				return nil, fmt.Errorf("unknown product %q", part)
			}
			seen[p] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("no product selected")
	}
	// Keep a stable order no matter how they were typed.
	var out []Product
	for _, p := range Products {
		if seen[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (p Product) Valid() bool {
	for _, known := range Products {
		if p == known {
			return true
		}
	}
	return false
}

// Index returns the band pair of an index product.
func (p Product) Index() (Index, bool) {
	idx, ok := indexes[p]
	return idx, ok
}

// FileName prefixes a window name with the product.
func (p Product) FileName(window string) string {
	return string(p) + "_" + window
}

// ExportImage is the layer written to storage: index values, the RGB
// rendering or the cloud probability, clipped to aoi.
func (p Product) ExportImage(img ee.Image, aoi ee.Geometry) ee.Image {
	if idx, ok := indexes[p]; ok {
		return img.NormalizedDifference(idx.BandA, idx.BandB).Rename(idx.Name).Clip(aoi)
	}
	if p == RGB {
		return img.Clip(aoi).Visualize(rgbVis)
	}
	return img.Clip(aoi)
}

// VisualizedImage is the 8-bit rendering used on preview maps.
func (p Product) VisualizedImage(img ee.Image, aoi ee.Geometry) ee.Image {
	if idx, ok := indexes[p]; ok {
		return img.NormalizedDifference(idx.BandA, idx.BandB).
			Rename(idx.Name).
			Clip(aoi).
			Visualize(ee.VisParams{Min: 0, Max: 0.8, Palette: palettes[p]})
	}
	if p == Cloud {
		return img.Clip(aoi).Visualize(ee.VisParams{Bands: []string{"probability"}, Min: 0, Max: 100, Palette: []string{"black", "white"}})
	}
	return img.Clip(aoi).Visualize(rgbVis)
}
