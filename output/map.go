// Package output writes the local visualization files: HTML preview maps and
// quicklook contact sheets.
package output

import (
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// MapDir is the folder, under the output folder, holding preview maps.
const MapDir = "HTML_MAPS"

var ErrNoLayers = errors.New("map has no layers")

// Layer is one tile source on the preview map.
type Layer struct {
	Name    string `json:"name"`
	TileURL string `json:"url"`
}

// Center is where the map opens.
type Center struct {
	Lon  float64
	Lat  float64
	Zoom int
}

// DefaultCenter shows the whole world.
var DefaultCenter = Center{Lon: 0, Lat: 0, Zoom: 2}

type MapPage struct {
	Title  string
	Center Center
	Layers []Layer
	// AOI is an optional GeoJSON outline drawn over the layers.
	AOI []byte
}

// MapFileName names a map after the moment it was written, down to the
// microsecond, e.g. my_map2022-05-0110051234567.html.
func MapFileName(now time.Time) string {
	return fmt.Sprintf("my_map%s%02d%02d%06d.html",
		now.Format("2006-01-02"), now.Hour(), now.Minute(), now.Nanosecond()/1000)
}

// WriteMap writes page under <folder>/HTML_MAPS and returns the file path.
func WriteMap(folder string, page MapPage, now time.Time) (string, error) {
	if len(page.Layers) == 0 {
		return "", ErrNoLayers
	}
	if page.Title == "" {
		page.Title = "My Map"
	}
	if page.Center.Zoom == 0 {
		page.Center.Zoom = DefaultCenter.Zoom
	}

	dir := filepath.Join(folder, MapDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create map directory: %w", err)
	}

	path := filepath.Join(dir, MapFileName(now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create map file: %w", err)
	}
	defer f.Close()

	data := struct {
		MapPage
		Outline template.JS
	}{MapPage: page}
	if len(page.AOI) > 0 {
		data.Outline = template.JS(page.AOI)
	}

	if err := mapTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("failed to render map: %w", err)
	}
	return path, nil
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>#map { width: 100%; height: 580px; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map("map").setView([{{.Center.Lat}}, {{.Center.Lon}}], {{.Center.Zoom}});
var base = L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
  attribution: "&copy; OpenStreetMap contributors"
}).addTo(map);
var overlays = {};
var layers = {{.Layers}};
layers.forEach(function (l) {
  overlays[l.name] = L.tileLayer(l.url, {attribution: "Google Earth Engine"}).addTo(map);
});
{{- if .Outline}}
overlays[" Contour"] = L.geoJSON({{.Outline}}, {style: {color: "#000", weight: 2, fill: false}}).addTo(map);
{{- end}}
L.control.layers({"OpenStreetMap": base}, overlays).addTo(map);
</script>
</body>
</html>
`))
