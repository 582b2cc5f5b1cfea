package output

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/s2-downloader/internal/tasks"
)

func TestMapFileName(t *testing.T) {
	now := time.Date(2022, 5, 1, 9, 5, 7, 123456789, time.UTC)
	assert.Equal(t, "my_map2022-05-010905123456.html", MapFileName(now))

	now = time.Date(2022, 12, 31, 23, 59, 0, 1000, time.UTC)
	assert.Equal(t, "my_map2022-12-312359000001.html", MapFileName(now))
}

func TestWriteMap(t *testing.T) {
	folder := t.TempDir()
	now := time.Date(2022, 5, 1, 9, 5, 7, 0, time.UTC)

	path, err := WriteMap(folder, MapPage{
		Center: Center{Lon: -47.05, Lat: -22.9, Zoom: 12},
		Layers: []Layer{
			{Name: "ndvi_2022-05-01", TileURL: "https://earthengine.googleapis.com/v1/projects/p/maps/abc/tiles/{z}/{x}/{y}"},
			{Name: "rgb_2022-05-01", TileURL: "https://earthengine.googleapis.com/v1/projects/p/maps/def/tiles/{z}/{x}/{y}"},
		},
		AOI: []byte(`{"type":"FeatureCollection","features":[]}`),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(folder, MapDir, MapFileName(now)), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "<title>My Map</title>")
	assert.Contains(t, html, "ndvi_2022-05-01")
	assert.Contains(t, html, "maps/def/tiles")
	assert.Contains(t, html, `{"type":"FeatureCollection","features":[]}`)
	assert.Contains(t, html, "Contour")
}

func TestWriteMapWithoutOutline(t *testing.T) {
	path, err := WriteMap(t.TempDir(), MapPage{Layers: []Layer{{Name: "a", TileURL: "u"}}}, time.Now())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "Contour"))
}

func TestWriteMapRequiresLayers(t *testing.T) {
	_, err := WriteMap(t.TempDir(), MapPage{}, time.Now())
	assert.ErrorIs(t, err, ErrNoLayers)
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestSheetSize(t *testing.T) {
	w, h := SheetSize(5, 2)
	assert.Equal(t, 2*(cellSize+cellPadding)+cellPadding, w)
	assert.Equal(t, 3*(cellSize+labelHeight+cellPadding)+cellPadding, h)

	w, _ = SheetSize(2, 4)
	assert.Equal(t, 2*(cellSize+cellPadding)+cellPadding, w)
}

func TestWriteContactSheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(64, 32, color.RGBA{G: 255, A: 255})))
	green, err := DecodeThumb("ndvi", buf.Bytes())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "quicklooks", "sheet.png")
	thumbs := []Thumb{green, {Label: "rgb", Image: solid(512, 512, color.RGBA{R: 255, A: 255})}, green}
	require.NoError(t, WriteContactSheet(path, thumbs, 2))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	sheet, err := png.Decode(f)
	require.NoError(t, err)

	w, h := SheetSize(3, 2)
	assert.Equal(t, image.Rect(0, 0, w, h), sheet.Bounds())

	r, g, _, _ := sheet.At(cellPadding+10, cellPadding+10).RGBA()
	assert.Zero(t, r)
	assert.Equal(t, uint32(0xffff), g)
	r, _, _, _ = sheet.At(2*cellPadding+cellSize+10, cellPadding+10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestWriteContactSheetErrors(t *testing.T) {
	assert.ErrorIs(t, WriteContactSheet(filepath.Join(t.TempDir(), "x.png"), nil, 2), ErrNoThumbs)

	_, err := DecodeThumb("bad", []byte("not an image"))
	assert.Error(t, err)
}

func TestWriteFootprints(t *testing.T) {
	region := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	submitted := []tasks.Task{
		{Name: "projects/p/operations/A", Product: "ndvi", Window: "w1", State: "PENDING"},
		{Name: "projects/p/operations/B", Product: "rgb", Window: "w1", State: "RUNNING"},
	}

	path := filepath.Join(t.TempDir(), "exports", "footprints.geojson")
	require.NoError(t, WriteFootprints(path, region, submitted))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "projects/p/operations/B", fc.Features[1].ID)
	assert.Equal(t, "rgb", fc.Features[1].Properties["product"])
}
