package ui

import (
	"fmt"
	"strings"

	"github.com/forest-guardian/s2-downloader/internal/aoi"
)

// ListAreas prints the AOI files found under root.
func (c *Console) ListAreas(root string) {
	names, err := aoi.List(root)
	if err != nil {
		c.PrintError(err.Error())
		return
	}
	c.PrintWarning("To add a new area of interest, add its '.geojson' file at 'data/geojsons' folder.")
	c.PrintList("Available areas:", names)
}

// ListFeatures prints the feature ids of an AOI file, asking for its name
// when empty.
func (c *Console) ListFeatures(root, name string) {
	c.PrintWarning("Features are identified by their 'plot_id', 'id' or 'name' property.")
	if name == "" {
		name = c.ReadString("Enter the area name: ")
	}
	ids, err := aoi.FeatureIDs(root, name)
	if err != nil {
		c.PrintError(err.Error())
		return
	}
	if len(ids) == 0 {
		c.PrintError("no feature ids found in the GeoJSON file")
		return
	}
	c.PrintList("Available features:", ids)
}

// isAsset tells table asset ids apart from local file names.
func isAsset(name string) bool {
	return strings.HasPrefix(name, "projects/") || strings.HasPrefix(name, "users/")
}

// ReadArea asks for a local AOI, optionally narrowed to one feature, or a
// table asset id.
func (c *Console) ReadArea(root string) (*aoi.AOI, error) {
	if names, err := aoi.List(root); err == nil && len(names) > 0 {
		c.PrintList("Available areas:", names)
	}
	name := c.ReadString("Enter the area name or table asset id: ")
	if name == "" {
		return nil, fmt.Errorf("area name cannot be empty")
	}
	if isAsset(name) {
		return aoi.FromAsset(name), nil
	}
	feature := c.ReadString("Enter the feature id (empty for the whole file): ")
	return aoi.Load(root, name, feature)
}
