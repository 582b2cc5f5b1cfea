package ee

import "time"

// mappingArgument is the parameter name used for Collection.map callbacks.
const mappingArgument = "_MAPPING_VAR_0_0"

// TimeStart is the acquisition timestamp property of catalog images.
const TimeStart = "system:time_start"

// ImageCollection wraps a graph node that evaluates to an ee.ImageCollection.
type ImageCollection struct {
	node *Node
}

func LoadImageCollection(id string) ImageCollection {
	return ImageCollection{Invoke("ImageCollection.load", Args{"id": Constant(id)})}
}

func (c ImageCollection) Node() *Node { return c.node }

func (c ImageCollection) Filter(f Filter) ImageCollection {
	return ImageCollection{Invoke("Collection.filter", Args{
		"collection": c.node,
		"filter":     f.node,
	})}
}

// FilterDate keeps images acquired in [start, end).
func (c ImageCollection) FilterDate(start, end time.Time) ImageCollection {
	return c.Filter(DateFilter(start, end))
}

func (c ImageCollection) FilterBounds(g Geometry) ImageCollection {
	return c.Filter(BoundsFilter(g))
}

// Map applies fn to every image on the server.
func (c ImageCollection) Map(fn func(Image) Image) ImageCollection {
	body := fn(Image{Argument(mappingArgument)})
	return ImageCollection{Invoke("Collection.map", Args{
		"collection":    c.node,
		"baseAlgorithm": Function([]string{mappingArgument}, body.node),
	})}
}

func (c ImageCollection) Mosaic() Image {
	return Image{Invoke("ImageCollection.mosaic", Args{"collection": c.node})}
}

// Median reduces the collection per pixel, keeping the input band names.
func (c ImageCollection) Median() Image {
	return Image{Invoke("reduce.median", Args{"collection": c.node})}
}

// AggregateArray collects a property of every image into a list.
func (c ImageCollection) AggregateArray(property string) *Node {
	return Invoke("AggregateFeatureCollection.array", Args{
		"collection": c.node,
		"property":   Constant(property),
	})
}

func (c ImageCollection) Size() *Node {
	return Invoke("Collection.size", Args{"collection": c.node})
}

// FeatureCollection wraps a graph node that evaluates to an
// ee.FeatureCollection.
type FeatureCollection struct {
	node *Node
}

// LoadTable references a table asset, e.g. an uploaded boundary shapefile.
func LoadTable(tableID string) FeatureCollection {
	return FeatureCollection{Invoke("Collection.loadTable", Args{"tableId": Constant(tableID)})}
}

func (c FeatureCollection) Node() *Node { return c.node }

// Geometry dissolves every feature into one geometry.
func (c FeatureCollection) Geometry() Geometry {
	return Geometry{Invoke("Collection.geometry", Args{"collection": c.node})}
}
