package ee

// Image wraps a graph node that evaluates to an ee.Image.
type Image struct {
	node *Node
}

// LoadImage references a catalog image asset.
func LoadImage(id string) Image {
	return Image{Invoke("Image.load", Args{"id": Constant(id)})}
}

// ConstantImage is an image with the same value everywhere.
func ConstantImage(v float64) Image {
	return Image{Invoke("Image.constant", Args{"value": Constant(v)})}
}

func (i Image) Node() *Node { return i.node }

func (i Image) Select(bands ...string) Image {
	return Image{Invoke("Image.select", Args{
		"input":         i.node,
		"bandSelectors": Constant(bands),
	})}
}

func (i Image) NormalizedDifference(a, b string) Image {
	return Image{Invoke("Image.normalizedDifference", Args{
		"input":     i.node,
		"bandNames": Constant([]string{a, b}),
	})}
}

func (i Image) Rename(names ...string) Image {
	return Image{Invoke("Image.rename", Args{
		"input": i.node,
		"names": Constant(names),
	})}
}

func (i Image) Clip(g Geometry) Image {
	return Image{Invoke("Image.clip", Args{
		"input":    i.node,
		"geometry": g.node,
	})}
}

// ClipToBoundsAndScale is what the export endpoint expects for a region and
// a nominal scale in meters.
func (i Image) ClipToBoundsAndScale(g Geometry, scale float64) Image {
	return Image{Invoke("Image.clipToBoundsAndScale", Args{
		"input":    i.node,
		"geometry": g.node,
		"scale":    Constant(scale),
	})}
}

func (i Image) compare(op string, v float64) Image {
	return Image{Invoke(op, Args{
		"image1": i.node,
		"image2": ConstantImage(v).node,
	})}
}

func (i Image) Lt(v float64) Image  { return i.compare("Image.lt", v) }
func (i Image) Gt(v float64) Image  { return i.compare("Image.gt", v) }
func (i Image) Gte(v float64) Image { return i.compare("Image.gte", v) }
func (i Image) Neq(v float64) Image { return i.compare("Image.neq", v) }

func (i Image) And(other Image) Image {
	return Image{Invoke("Image.and", Args{
		"image1": i.node,
		"image2": other.node,
	})}
}

func (i Image) UpdateMask(mask Image) Image {
	return Image{Invoke("Image.updateMask", Args{
		"image": i.node,
		"mask":  mask.node,
	})}
}

// Where replaces the pixels selected by test with v.
func (i Image) Where(test Image, v float64) Image {
	return Image{Invoke("Image.where", Args{
		"input": i.node,
		"test":  test.node,
		"value": ConstantImage(v).node,
	})}
}

// VisParams mirrors the visualization parameters of Image.visualize.
type VisParams struct {
	Bands   []string
	Min     float64
	Max     float64
	Palette []string
}

func (i Image) Visualize(p VisParams) Image {
	args := Args{
		"image": i.node,
		"min":   Constant(p.Min),
		"max":   Constant(p.Max),
	}
	if len(p.Bands) > 0 {
		args["bands"] = Constant(p.Bands)
	}
	if len(p.Palette) > 0 {
		args["palette"] = Constant(p.Palette)
	}
	return Image{Invoke("Image.visualize", args)}
}
