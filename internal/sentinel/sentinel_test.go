package sentinel

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/s2-downloader/internal/ee"
)

func testAOI(t *testing.T) ee.Geometry {
	t.Helper()
	g, err := ee.NewGeometry(orb.Bound{Min: orb.Point{-47.1, -22.9}, Max: orb.Point{-47.0, -22.8}})
	require.NoError(t, err)
	return g
}

func testQuery(t *testing.T) Query {
	return Query{
		AOI:             testAOI(t),
		Start:           time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		End:             time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC),
		CloudPercentage: 20,
	}
}

// chain follows the first collection/image argument down to the source asset.
func chain(n *ee.Node) []string {
	var names []string
	for n != nil && n.FunctionName() != "" {
		names = append(names, n.FunctionName())
		next := n.Arg("collection")
		if next == nil {
			next = n.Arg("input")
		}
		if next == nil {
			next = n.Arg("image")
		}
		if next == nil {
			next = n.Arg("image1")
		}
		n = next
	}
	return names
}

func TestQueryImages(t *testing.T) {
	q := testQuery(t)
	col := q.Images().Node()

	assert.Equal(t, []string{
		"Collection.filter",
		"Collection.filter",
		"Collection.filter",
		"ImageCollection.load",
	}, chain(col))

	cloud := col.Arg("collection").Arg("collection").Arg("filter")
	assert.Equal(t, "Filter.lessThan", cloud.FunctionName())
	assert.Equal(t, CloudyPixelPercentage, cloud.Arg("leftField").Value())
	assert.Equal(t, 20.0, cloud.Arg("rightValue").Value())

	load := col.Arg("collection").Arg("collection").Arg("collection")
	assert.Equal(t, SurfaceReflectance, load.Arg("id").Value())
}

func TestMaskedImagesMapsCloudMask(t *testing.T) {
	q := testQuery(t)
	col := q.MaskedImages(DefaultCloudMask()).Node()

	mapped := col.Arg("collection")
	require.Equal(t, "Collection.map", mapped.FunctionName())

	body := mapped.Arg("baseAlgorithm").Body()
	require.Equal(t, "Image.updateMask", body.FunctionName())
	mask := body.Arg("mask")
	assert.Equal(t, "Image.lt", mask.FunctionName())
	assert.Equal(t, 30.0, mask.Arg("image2").Arg("value").Value())
}

func TestCloudMaskWithSnow(t *testing.T) {
	m := DefaultCloudMask()
	m.MaskSnow = true

	out := m.Apply(ee.LoadImage("x")).Node()
	mask := out.Arg("mask")
	require.Equal(t, "Image.and", mask.FunctionName())
	snow := mask.Arg("image2")
	assert.Equal(t, "Image.lt", snow.FunctionName())
	assert.Equal(t, 5.0, snow.Arg("image2").Arg("value").Value())
}

func TestCloudProbabilityImages(t *testing.T) {
	col := testQuery(t).CloudProbabilityImages().Node()
	load := col.Arg("collection").Arg("collection")
	assert.Equal(t, CloudProbability, load.Arg("id").Value())
}

func TestParseComposite(t *testing.T) {
	c, err := ParseComposite("")
	require.NoError(t, err)
	assert.Equal(t, Mosaic, c)

	c, err = ParseComposite("median")
	require.NoError(t, err)
	assert.Equal(t, "reduce.median", c.Apply(testQuery(t).Images()).Node().FunctionName())
	assert.Equal(t, "ImageCollection.mosaic", Mosaic.Apply(testQuery(t).Images()).Node().FunctionName())

	_, err = ParseComposite("mean")
	assert.Error(t, err)
}

func TestParseProducts(t *testing.T) {
	products, err := ParseProducts([]string{"ndvi, RGB", "cloud", "ndvi"})
	require.NoError(t, err)
	assert.Equal(t, []Product{RGB, NDVI, Cloud}, products)

	_, err = ParseProducts([]string{"evi"})
	assert.Error(t, err)

	_, err = ParseProducts(nil)
	assert.Error(t, err)
}

func TestExportImageUsesProductBands(t *testing.T) {
	aoi := testAOI(t)
	img := ee.LoadImage("scene")

	tests := []struct {
		product Product
		a, b    string
	}{
		{NDVI, "B8", "B4"},
		{MNDWI, "B3", "B11"},
		{NDWI, "B8", "B11"},
		{SWI, "B5", "B11"},
	}
	for _, tt := range tests {
		t.Run(string(tt.product), func(t *testing.T) {
			out := tt.product.ExportImage(img, aoi).Node()
			assert.Equal(t, []string{"Image.clip", "Image.rename", "Image.normalizedDifference", "Image.load"}, chain(out))
			nd := out.Arg("input").Arg("input")
			assert.Equal(t, []string{tt.a, tt.b}, nd.Arg("bandNames").Value())
		})
	}
}

func TestMedianFeedsIndexBands(t *testing.T) {
	composite := Median.Apply(testQuery(t).Images())
	out := NDVI.ExportImage(composite, testAOI(t)).Node()

	nd := out.Arg("input").Arg("input")
	require.Equal(t, "Image.normalizedDifference", nd.FunctionName())
	assert.Equal(t, []string{"B8", "B4"}, nd.Arg("bandNames").Value())
	assert.Equal(t, "reduce.median", nd.Arg("input").FunctionName())
}

func TestExportImageRGB(t *testing.T) {
	out := RGB.ExportImage(ee.LoadImage("scene"), testAOI(t)).Node()
	require.Equal(t, "Image.visualize", out.FunctionName())
	assert.Equal(t, []string{"B4", "B3", "B2"}, out.Arg("bands").Value())
	assert.Equal(t, 3000.0, out.Arg("max").Value())
}

func TestVisualizedImagePalette(t *testing.T) {
	out := NDVI.VisualizedImage(ee.LoadImage("scene"), testAOI(t)).Node()
	require.Equal(t, "Image.visualize", out.FunctionName())
	assert.Equal(t, []string{"white", "green"}, out.Arg("palette").Value())
	assert.Equal(t, 0.8, out.Arg("max").Value())
}

func TestMaskPermanentWater(t *testing.T) {
	q := testQuery(t)
	out := MaskPermanentWater(ee.LoadImage("scene"), q.AOI, q.Start, q.End).Node()

	require.Equal(t, "Image.updateMask", out.FunctionName())
	neq := out.Arg("mask")
	assert.Equal(t, "Image.neq", neq.FunctionName())
	assert.Equal(t, 100.0, neq.Arg("image2").Arg("value").Value())

	_, err := ee.Encode(out)
	require.NoError(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "ndvi_2022-01-01_2022-01-06", NDVI.FileName("2022-01-01_2022-01-06"))
}
