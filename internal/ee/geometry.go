package ee

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

var ErrUnsupportedGeometry = errors.New("unsupported geometry type")

// Geometry wraps a graph node that evaluates to an ee.Geometry.
type Geometry struct {
	node *Node
}

func (g Geometry) Node() *Node { return g.node }

// IsZero reports whether g was never built.
func (g Geometry) IsZero() bool { return g.node == nil }

// NewGeometry builds a geodesic constant geometry from a local orb geometry.
func NewGeometry(g orb.Geometry) (Geometry, error) {
	switch v := g.(type) {
	case orb.Point:
		return constructor("Point", [2]float64(v)), nil
	case orb.Polygon:
		return constructor("Polygon", polygonCoordinates(v)), nil
	case orb.MultiPolygon:
		coords := make([][][][2]float64, 0, len(v))
		for _, p := range v {
			coords = append(coords, polygonCoordinates(p))
		}
		return constructor("MultiPolygon", coords), nil
	case orb.Bound:
		return constructor("Polygon", polygonCoordinates(v.ToPolygon())), nil
	case nil:
		return Geometry{}, fmt.Errorf("%w: empty geometry", ErrUnsupportedGeometry)
	default:
		return Geometry{}, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

func constructor(name string, coordinates any) Geometry {
	return Geometry{Invoke("GeometryConstructors."+name, Args{
		"coordinates": Constant(coordinates),
	})}
}

func polygonCoordinates(p orb.Polygon) [][][2]float64 {
	rings := make([][][2]float64, 0, len(p))
	for _, ring := range p {
		points := make([][2]float64, 0, len(ring))
		for _, pt := range ring {
			points = append(points, [2]float64(pt))
		}
		rings = append(rings, points)
	}
	return rings
}
