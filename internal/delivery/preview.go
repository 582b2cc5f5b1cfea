package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/forest-guardian/s2-downloader/internal/ee"
	"github.com/forest-guardian/s2-downloader/internal/raster"
	"github.com/forest-guardian/s2-downloader/output"
)

// ErrRemoteAOI is returned by operations that need the AOI bound locally.
var ErrRemoteAOI = errors.New("operation needs a local area of interest")

const (
	previewZoom      = 12
	thumbnailSize    = 256
	contactSheetCols = 4
)

// Preview renders every item as a tile layer and writes an HTML map under
// <output>/HTML_MAPS. A nil center opens the map on the AOI.
func (s *Service) Preview(ctx context.Context, req Request, center *output.Center) (string, error) {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return "", err
	}

	layers := make([]output.Layer, len(plan.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, it := range plan.Items {
		g.Go(func() error {
			m, err := s.client.CreateMap(gctx, it.Product.VisualizedImage(it.Composite, plan.Region))
			if err != nil {
				return fmt.Errorf("%s: %w", it.Name(), err)
			}
			layers[i] = output.Layer{Name: it.Name(), TileURL: m.TileURL()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	page := output.MapPage{Title: "My Map", Layers: layers, Center: output.DefaultCenter}
	if center != nil {
		page.Center = *center
	} else if c, ok := plan.Request.AOI.Center(); ok {
		page.Center = output.Center{Lon: c.X(), Lat: c.Y(), Zoom: previewZoom}
	}
	if outline, err := plan.Request.AOI.GeoJSON(); err == nil {
		page.AOI = outline
	}

	return output.WriteMap(s.outputDir, page, s.now())
}

// Quicklook fetches a PNG thumbnail of every item and lays them out on one
// contact sheet at path.
func (s *Service) Quicklook(ctx context.Context, req Request, path string) error {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return err
	}
	bound, ok := plan.Request.AOI.Bound()
	if !ok {
		return ErrRemoteAOI
	}
	grid := raster.ThumbnailGrid(bound, thumbnailSize)

	thumbs := make([]output.Thumb, len(plan.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, it := range plan.Items {
		g.Go(func() error {
			data, err := s.client.ComputePixels(gctx, ee.PixelsRequest{
				Image:  it.Product.VisualizedImage(it.Composite, plan.Region),
				Format: ee.FormatPNG,
				Grid:   grid,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", it.Name(), err)
			}
			thumb, err := output.DecodeThumb(it.Name(), data)
			if err != nil {
				return err
			}
			thumbs[i] = thumb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return output.WriteContactSheet(path, thumbs, contactSheetCols)
}

// Downloaded is a GeoTIFF fetched synchronously, with a PNG rendering of its
// first band next to it. Center holds the band values at the AOI center, nil
// when the center falls outside the raster.
type Downloaded struct {
	Item      Item
	Path      string
	Rendering string
	Summary   *raster.Summary
	Center    *raster.Sample
}

// Download fetches the export image of every item as a GeoTIFF under dir,
// summarizes its bands and renders its first band. Items that fail are skipped and reported together.
func (s *Service) Download(ctx context.Context, req Request, dir string) ([]Downloaded, error) {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	bound, ok := plan.Request.AOI.Bound()
	if !ok {
		return nil, ErrRemoteAOI
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	grid := raster.GridFor(bound, s.scale, raster.DefaultMaxDimension)

	var (
		mu   sync.Mutex
		errs *multierror.Error
		out  = make([]*Downloaded, len(plan.Items))
	)
	wp := workerpool.New(s.workers)
	for i, it := range plan.Items {
		wp.Submit(func() {
			d, err := s.download(ctx, plan, it, grid, dir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", it.Name(), err))
				return
			}
			out[i] = d
		})
	}
	wp.StopWait()

	downloaded := make([]Downloaded, 0, len(out))
	for _, d := range out {
		if d != nil {
			downloaded = append(downloaded, *d)
		}
	}
	return downloaded, errs.ErrorOrNil()
}

func (s *Service) download(ctx context.Context, plan *Plan, it Item, grid ee.PixelGrid, dir string) (*Downloaded, error) {
	data, err := s.client.ComputePixels(ctx, ee.PixelsRequest{
		Image:  it.Product.ExportImage(it.Composite, plan.Region),
		Format: ee.FormatGeoTIFF,
		Grid:   grid,
	})
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, it.Name()+".tif")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	summary, err := raster.Stats(path)
	if err != nil {
		return nil, err
	}
	rendering := filepath.Join(dir, it.Name()+".png")
	if err := raster.RenderBand(path, 1, rendering); err != nil {
		return nil, err
	}
	d := &Downloaded{Item: it, Path: path, Rendering: rendering, Summary: summary}
	if c, ok := plan.Request.AOI.Center(); ok {
		sample, err := raster.SampleAt(path, c.Y(), c.X())
		if err != nil && !errors.Is(err, raster.ErrOutOfBounds) {
			return nil, err
		}
		d.Center = sample
	}
	return d, nil
}
