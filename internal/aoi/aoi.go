// Package aoi resolves the area of interest of a request, either from a local
// GeoJSON file or from a table asset on the remote platform.
package aoi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/gjson"

	"github.com/forest-guardian/s2-downloader/internal/ee"
)

const extension = ".geojson"

var (
	ErrNotFound        = errors.New("area of interest not found")
	ErrFeatureNotFound = errors.New("feature not found")
	ErrNoPolygons      = errors.New("area of interest has no polygons")
)

// idProperties are checked in order when matching a feature id.
var idProperties = []string{"plot_id", "id", "name"}

// AOI is a boundary used to filter scenes and clip exports.
type AOI struct {
	Name    string
	Feature string
	Asset   string

	geom orb.Geometry
}

// Dir is where AOI files live under the project root.
func Dir(root string) string {
	return filepath.Join(root, "data", "geojsons")
}

// FromGeometry wraps an in-memory geometry.
func FromGeometry(name string, g orb.Geometry) *AOI {
	return &AOI{Name: name, geom: g}
}

// FromAsset references a table asset whose features are dissolved on the
// server.
func FromAsset(id string) *AOI {
	return &AOI{Name: id, Asset: id}
}

// Load reads <root>/data/geojsons/<name>.geojson. When feature is empty every
// polygon of the file is merged.
func Load(root, name, feature string) (*AOI, error) {
	path := filepath.Join(Dir(root), strings.TrimSuffix(name, extension)+extension)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	features, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if feature != "" {
		features = selectFeature(features, feature)
		if len(features) == 0 {
			return nil, fmt.Errorf("%w: %s in %s", ErrFeatureNotFound, feature, name)
		}
	}

	g, err := merge(features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &AOI{Name: name, Feature: feature, geom: g}, nil
}

// parse accepts a FeatureCollection, a single Feature or a bare geometry.
func parse(data []byte) ([]*geojson.Feature, error) {
	switch gjson.GetBytes(data, "type").String() {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		return fc.Features, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		return []*geojson.Feature{f}, nil
	case "":
		return nil, errors.New("missing geojson type")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
	}
}

func featureID(f *geojson.Feature) string {
	for _, key := range idProperties {
		if v, ok := f.Properties[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return ""
}

func selectFeature(features []*geojson.Feature, id string) []*geojson.Feature {
	var out []*geojson.Feature
	for _, f := range features {
		if featureID(f) == id {
			out = append(out, f)
		}
	}
	return out
}

func merge(features []*geojson.Feature) (orb.Geometry, error) {
	var polygons orb.MultiPolygon
	for _, f := range features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polygons = append(polygons, g)
		case orb.MultiPolygon:
			polygons = append(polygons, g...)
		case nil:
			continue
		default:
			return nil, fmt.Errorf("%w: %s", ee.ErrUnsupportedGeometry, g.GeoJSONType())
		}
	}
	switch len(polygons) {
	case 0:
		return nil, ErrNoPolygons
	case 1:
		return polygons[0], nil
	default:
		return polygons, nil
	}
}

// Geometry is the server-side geometry of the AOI.
func (a *AOI) Geometry() (ee.Geometry, error) {
	if a.Asset != "" {
		return ee.LoadTable(a.Asset).Geometry(), nil
	}
	return ee.NewGeometry(a.geom)
}

// Local reports whether the geometry is known on this side.
func (a *AOI) Local() bool {
	return a.geom != nil
}

// Orb returns the local geometry, nil for assets.
func (a *AOI) Orb() orb.Geometry {
	return a.geom
}

func (a *AOI) Bound() (orb.Bound, bool) {
	if a.geom == nil {
		return orb.Bound{}, false
	}
	return a.geom.Bound(), true
}

// Center is the area centroid, or the bound center for degenerate shapes.
func (a *AOI) Center() (orb.Point, bool) {
	if a.geom == nil {
		return orb.Point{}, false
	}
	centroid, area := planar.CentroidArea(a.geom)
	if area <= 0 {
		return a.geom.Bound().Center(), true
	}
	return centroid, true
}

// GeoJSON renders the local geometry as a feature collection for map
// overlays.
func (a *AOI) GeoJSON() ([]byte, error) {
	if a.geom == nil {
		return nil, nil
	}
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(a.geom)
	f.Properties["name"] = a.Name
	fc.Append(f)
	return fc.MarshalJSON()
}

func (a *AOI) String() string {
	if a.Feature != "" {
		return a.Name + "/" + a.Feature
	}
	return a.Name
}

// List returns the AOI names available under root.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(Dir(root))
	if err != nil {
		return nil, fmt.Errorf("error reading geojsons folder: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), extension) {
			names = append(names, strings.TrimSuffix(e.Name(), extension))
		}
	}
	sort.Strings(names)
	return names, nil
}

// FeatureIDs returns the ids of the features of an AOI file, without
// repetition and in file order.
func FeatureIDs(root, name string) ([]string, error) {
	path := filepath.Join(Dir(root), strings.TrimSuffix(name, extension)+extension)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	features, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, f := range features {
		id := featureID(f)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
