package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/forest-guardian/s2-downloader/internal/tasks"
)

// Footprints is a GeoJSON index of submitted exports: one feature per task,
// all sharing the exported region.
func Footprints(region orb.Geometry, submitted []tasks.Task) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, t := range submitted {
		f := geojson.NewFeature(region)
		f.ID = t.Name
		f.Properties["product"] = t.Product
		f.Properties["window"] = t.Window
		f.Properties["destination"] = t.Destination
		f.Properties["state"] = t.State
		fc.Append(f)
	}
	return fc
}

// WriteFootprints saves Footprints to path.
func WriteFootprints(path string, region orb.Geometry, submitted []tasks.Task) error {
	data, err := Footprints(region, submitted).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode footprints: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create footprints directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write footprints: %w", err)
	}
	return nil
}
