package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/forest-guardian/s2-downloader/internal/batch"
	"github.com/forest-guardian/s2-downloader/internal/ee"
	"github.com/forest-guardian/s2-downloader/internal/export"
	"github.com/forest-guardian/s2-downloader/internal/sentinel"
)

// Item is one product of one window, before rendering.
type Item struct {
	Product   sentinel.Product
	Window    batch.Window
	Composite ee.Image
}

// Name is the export file name of the item.
func (it Item) Name() string {
	return it.Product.FileName(it.Window.Name)
}

type Plan struct {
	Request      Request
	Region       ee.Geometry
	Windows      []batch.Window
	CloudWindows []batch.Window
	Items        []Item
	// Warnings are non-fatal conditions met while planning.
	Warnings []string
}

// Jobs are the export jobs of the plan, in item order.
func (p *Plan) Jobs() []export.Job {
	jobs := make([]export.Job, 0, len(p.Items))
	for _, it := range p.Items {
		jobs = append(jobs, export.Job{
			Name:    it.Name(),
			Product: it.Product,
			Window:  it.Window,
			Image:   it.Product.ExportImage(it.Composite, p.Region),
		})
	}
	return jobs
}

func query(req Request) (sentinel.Query, error) {
	g, err := req.AOI.Geometry()
	if err != nil {
		return sentinel.Query{}, fmt.Errorf("area of interest %s: %w", req.AOI, err)
	}
	return sentinel.Query{
		AOI:             g,
		Start:           req.Start,
		End:             req.End,
		CloudPercentage: req.CloudPercentage,
	}, nil
}

// Plan resolves the windows of a request and the composite behind every
// requested product. Cloud probability windows come from their own
// collection, so their dates may differ from the reflectance ones.
func (s *Service) Plan(ctx context.Context, req Request) (*Plan, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	q, err := query(req)
	if err != nil {
		return nil, err
	}

	var clip ee.Geometry
	if req.ClipTo != nil {
		if clip, err = req.ClipTo.Geometry(); err != nil {
			return nil, fmt.Errorf("clip area %s: %w", req.ClipTo, err)
		}
	}

	plan := &Plan{Request: req, Region: q.AOI}
	warn := func(w string) { plan.Warnings = append(plan.Warnings, w) }

	if products := req.imageProducts(); len(products) > 0 {
		ts, err := s.timestamps(ctx, req, "images", q.Images(), warn)
		if err != nil {
			return nil, err
		}
		if len(ts) == 0 {
			return nil, fmt.Errorf("%w between %s and %s", ErrNoImages, req.Start.Format(batch.DateLayout), req.End.Format(batch.DateLayout))
		}
		if plan.Windows, err = windows(req, ts); err != nil {
			return nil, err
		}

		for _, w := range plan.Windows {
			col := q.Window(w.Start, w.End)
			if req.Mask {
				col = q.MaskedWindow(w.Start, w.End, req.CloudMask)
			}
			img := req.Composite.Apply(col)
			if !clip.IsZero() {
				img = img.Clip(clip)
			}
			if req.WaterMask != nil {
				img = sentinel.MaskPermanentWater(img, q.AOI, req.WaterMask.Start, req.WaterMask.End)
			}
			for _, p := range products {
				plan.Items = append(plan.Items, Item{Product: p, Window: w, Composite: img})
			}
		}
	}

	if req.wants(sentinel.Cloud) {
		ts, err := s.timestamps(ctx, req, "cloud", q.CloudProbabilityImages(), warn)
		if err != nil {
			return nil, err
		}
		switch {
		case len(ts) == 0 && len(plan.Items) == 0:
			return nil, fmt.Errorf("%w: no cloud probability layer", ErrNoImages)
		case len(ts) == 0:
			plan.Warnings = append(plan.Warnings, "No S2 cloudless layer available")
		default:
			if plan.CloudWindows, err = windows(req, ts); err != nil {
				return nil, err
			}
			for _, w := range plan.CloudWindows {
				img := req.Composite.Apply(q.CloudProbabilityWindow(w.Start, w.End))
				plan.Items = append(plan.Items, Item{Product: sentinel.Cloud, Window: w, Composite: img})
			}
		}
	}
	return plan, nil
}

func windows(req Request, ts []time.Time) ([]batch.Window, error) {
	if req.Mode == ByInterval {
		first := batch.DistinctDates(ts)[0]
		return batch.Intervals(first, req.End, req.IntervalDays)
	}
	return batch.ByDate(ts, req.NextDays)
}
