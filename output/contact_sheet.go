package output

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
)

const (
	cellSize    = 256
	labelHeight = 20
	cellPadding = 8
	defaultCols = 4
)

var ErrNoThumbs = errors.New("no quicklook to lay out")

// Thumb is one labelled quicklook.
type Thumb struct {
	Label string
	Image image.Image
}

// DecodeThumb decodes a PNG or JPEG quicklook.
func DecodeThumb(label string, data []byte) (Thumb, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Thumb{}, fmt.Errorf("failed to decode quicklook %s: %w", label, err)
	}
	return Thumb{Label: label, Image: img}, nil
}

// SheetSize returns the pixel size of a sheet of n thumbs in cols columns.
func SheetSize(n, cols int) (int, int) {
	if cols <= 0 {
		cols = defaultCols
	}
	cols = min(cols, n)
	rows := int(math.Ceil(float64(n) / float64(cols)))
	w := cols*(cellSize+cellPadding) + cellPadding
	h := rows*(cellSize+labelHeight+cellPadding) + cellPadding
	return w, h
}

// WriteContactSheet lays thumbs out in a grid, each scaled to fit its cell and
// captioned with its label, and saves the sheet as PNG.
func WriteContactSheet(path string, thumbs []Thumb, cols int) error {
	if len(thumbs) == 0 {
		return ErrNoThumbs
	}
	if cols <= 0 {
		cols = defaultCols
	}
	cols = min(cols, len(thumbs))

	w, h := SheetSize(len(thumbs), cols)
	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for i, t := range thumbs {
		x := float64(cellPadding + (i%cols)*(cellSize+cellPadding))
		y := float64(cellPadding + (i/cols)*(cellSize+labelHeight+cellPadding))

		b := t.Image.Bounds()
		scale := math.Min(float64(cellSize)/float64(b.Dx()), float64(cellSize)/float64(b.Dy()))
		dc.Push()
		dc.Translate(x, y)
		dc.Scale(scale, scale)
		dc.DrawImage(t.Image, 0, 0)
		dc.Pop()

		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(t.Label, x+cellSize/2, y+cellSize+labelHeight/2, 0.5, 0.5)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create quicklook directory: %w", err)
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save contact sheet: %w", err)
	}
	return nil
}
