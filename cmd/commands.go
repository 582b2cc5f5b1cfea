package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/forest-guardian/s2-downloader/internal/aoi"
	"github.com/forest-guardian/s2-downloader/internal/batch"
	"github.com/forest-guardian/s2-downloader/internal/delivery"
	"github.com/forest-guardian/s2-downloader/internal/sentinel"
	"github.com/forest-guardian/s2-downloader/output"
)

// requestFlags are the request parameters shared by the product commands.
type requestFlags struct {
	area         string
	feature      string
	asset        string
	start        string
	end          string
	cloud        float64
	composite    string
	products     []string
	mask         bool
	cloudProb    float64
	snow         bool
	snowProb     float64
	waterMask    bool
	waterStart   string
	waterEnd     string
	clipTo       string
	mode         string
	nextDays     int
	intervalDays int
}

func (f *requestFlags) register(fs *pflag.FlagSet) {
	def := sentinel.DefaultCloudMask()
	fs.StringVar(&f.area, "aoi", "", "area of interest file name under data/geojsons")
	fs.StringVar(&f.feature, "feature", "", "feature id inside the area file")
	fs.StringVar(&f.asset, "asset", "", "table asset id used instead of a local area")
	fs.StringVar(&f.start, "start", "", "start date, YYYY-MM-DD")
	fs.StringVar(&f.end, "end", "", "end date, YYYY-MM-DD or today")
	fs.Float64Var(&f.cloud, "cloud", delivery.DefaultCloudPercentage, "maximum scene cloud percentage")
	fs.StringVar(&f.composite, "composite", string(sentinel.Mosaic), "composite method: mosaic or median")
	fs.StringSliceVar(&f.products, "products", nil, "products to render: rgb, mndwi, ndvi, swi, ndwi, cloud")
	fs.BoolVar(&f.mask, "mask", false, "mask cloudy pixels before compositing")
	fs.Float64Var(&f.cloudProb, "cloud-probability", def.CloudProbability, "pixel cloud probability threshold of the mask")
	fs.BoolVar(&f.snow, "snow", false, "mask snowy pixels too")
	fs.Float64Var(&f.snowProb, "snow-probability", def.SnowProbability, "pixel snow probability threshold of the mask")
	fs.BoolVar(&f.waterMask, "water-mask", false, "mask permanent water")
	fs.StringVar(&f.waterStart, "water-start", "", "start of the water reference period, defaults to --start")
	fs.StringVar(&f.waterEnd, "water-end", "", "end of the water reference period, defaults to --end")
	fs.StringVar(&f.clipTo, "clip-to", "", "further clip to an area, as name or name/feature")
	fs.StringVar(&f.mode, "mode", string(delivery.ByDate), "window mode: by-date or interval")
	fs.IntVar(&f.nextDays, "next-days", delivery.DefaultNextDays, "width in days of by-date windows")
	fs.IntVar(&f.intervalDays, "interval-days", delivery.DefaultIntervalDays, "width in days of interval windows")
}

// nowFunc resolves "today".
var nowFunc = time.Now

func parseDay(s string) (time.Time, error) {
	switch s {
	case "":
		return time.Time{}, nil
	case "today":
		return batch.Day(nowFunc()), nil
	}
	return batch.ParseDate(s)
}

func (f *requestFlags) request(root string) (delivery.Request, error) {
	var req delivery.Request
	var err error

	switch {
	case f.asset != "" && f.area != "":
		return req, errors.New("use either --aoi or --asset")
	case f.asset != "":
		req.AOI = aoi.FromAsset(f.asset)
	case f.area != "":
		if req.AOI, err = aoi.Load(root, f.area, f.feature); err != nil {
			return req, err
		}
	default:
		return req, errors.New("--aoi or --asset is required")
	}

	if req.Start, err = parseDay(f.start); err != nil {
		return req, err
	}
	if req.End, err = parseDay(f.end); err != nil {
		return req, err
	}

	req.CloudPercentage = f.cloud
	if req.Composite, err = sentinel.ParseComposite(f.composite); err != nil {
		return req, err
	}
	if len(f.products) > 0 {
		if req.Products, err = sentinel.ParseProducts(f.products); err != nil {
			return req, err
		}
	}

	req.Mask = f.mask
	req.CloudMask = sentinel.CloudMask{CloudProbability: f.cloudProb, SnowProbability: f.snowProb, MaskSnow: f.snow}

	if f.waterMask {
		var wm delivery.Range
		if wm.Start, err = parseDay(f.waterStart); err != nil {
			return req, err
		}
		if wm.End, err = parseDay(f.waterEnd); err != nil {
			return req, err
		}
		req.WaterMask = &wm
	}

	if f.clipTo != "" {
		name, feature, _ := strings.Cut(f.clipTo, "/")
		if req.ClipTo, err = aoi.Load(root, name, feature); err != nil {
			return req, err
		}
	}

	if req.Mode, err = delivery.ParseMode(f.mode); err != nil {
		return req, err
	}
	if f.nextDays < 1 || f.intervalDays < 1 {
		return req, fmt.Errorf("%w: --next-days and --interval-days must be at least 1", batch.ErrInvalidStep)
	}
	req.NextDays = f.nextDays
	req.IntervalDays = f.intervalDays
	return req, nil
}

// parseCenter reads "lon,lat[,zoom]".
func parseCenter(s string) (*output.Center, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid center %q, use lon,lat[,zoom]", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid center longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid center latitude: %w", err)
	}
	c := &output.Center{Lon: lon, Lat: lat, Zoom: 12}
	if len(parts) == 3 {
		if c.Zoom, err = strconv.Atoi(strings.TrimSpace(parts[2])); err != nil {
			return nil, fmt.Errorf("invalid center zoom: %w", err)
		}
	}
	return c, nil
}

func newDatesCommand(a *app) *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List the acquisition dates matching a request",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(a.cfg.RootPath)
			if err != nil {
				return err
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			dates, err := a.service.Dates(cmd.Context(), req)
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(cmd.OutOrStdout(), d.Format(batch.DateLayout))
			}
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var f requestFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Submit one export task per product and window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(a.cfg.RootPath)
			if err != nil {
				return err
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			report, err := a.service.Export(cmd.Context(), req)
			a.console.FinishProgress()
			if report != nil {
				for _, w := range report.Warnings {
					a.console.PrintWarning(w)
				}
				for _, t := range report.Tasks() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.Name, t.Description, t.Destination)
				}
				if report.ManifestPath != "" {
					a.console.PrintSuccess("Manifest located at: " + report.ManifestPath)
				}
			}
			return err
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func newPreviewCommand(a *app) *cobra.Command {
	var (
		f      requestFlags
		center string
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Write an HTML map with one tile layer per product and window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(a.cfg.RootPath)
			if err != nil {
				return err
			}
			c, err := parseCenter(center)
			if err != nil {
				return err
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			path, err := a.service.Preview(cmd.Context(), req, c)
			if err != nil {
				return err
			}
			a.console.PrintSuccess("Map located at: " + path)
			return nil
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().StringVar(&center, "center", "", "map center as lon,lat[,zoom], defaults to the area centroid")
	return cmd
}

func newQuicklookCommand(a *app) *cobra.Command {
	var (
		f   requestFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "quicklook",
		Short: "Render a PNG contact sheet of every product and window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(a.cfg.RootPath)
			if err != nil {
				return err
			}
			if out == "" {
				out = a.cfg.OutputPath("quicklooks", fmt.Sprintf("%s_%s_%s.png",
					strings.ReplaceAll(req.AOI.String(), "/", "_"), f.start, f.end))
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			if err := a.service.Quicklook(cmd.Context(), req, out); err != nil {
				return err
			}
			a.console.PrintSuccess("Quicklook located at: " + out)
			return nil
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().StringVarP(&out, "out", "o", "", "contact sheet path")
	return cmd
}

func newDownloadCommand(a *app) *cobra.Command {
	var (
		f   requestFlags
		dir string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download every product and window as a GeoTIFF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(a.cfg.RootPath)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.OutputPath("downloads", strings.ReplaceAll(req.AOI.String(), "/", "_"))
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			downloaded, err := a.service.Download(cmd.Context(), req, dir)
			for _, d := range downloaded {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%dx%d\t%d bands\n", filepath.Base(d.Path), d.Summary.Width, d.Summary.Height, len(d.Summary.Bands))
				for _, b := range d.Summary.Bands {
					fmt.Fprintf(cmd.OutOrStdout(), "  band %d: min %.4f max %.4f mean %.4f valid %d of %d\n", b.Band, b.Min, b.Max, b.Mean, b.Valid, b.Total)
				}
				if d.Center != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "  center pixel (%d, %d): %v\n", d.Center.Col, d.Center.Row, d.Center.Values)
				}
			}
			return err
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().StringVar(&dir, "dir", "", "download folder")
	return cmd
}

func newTasksCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Track the export tasks recorded locally",
	}

	var states []string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			ts, err := a.service.ListTasks(cmd.Context(), states...)
			if err != nil {
				return err
			}
			for _, t := range ts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", t.State, t.Description, t.Name, t.Error)
			}
			a.console.PrintInfo(delivery.Summary(ts) + "\n")
			return nil
		},
	}
	list.Flags().StringSliceVar(&states, "state", nil, "only list tasks in these states")

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Poll the tasks still in flight",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			ts, err := a.service.RefreshTasks(cmd.Context())
			for _, t := range ts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.State, t.Description, t.Name)
			}
			a.console.PrintInfo(delivery.Summary(ts) + "\n")
			return err
		},
	}

	var limit int
	remote := &cobra.Command{
		Use:   "remote",
		Short: "List the latest operations of the cloud project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			ops, err := a.service.RemoteOperations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, op := range ops {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", op.State, op.Description, op.Name, strings.Join(op.DestinationURIs, ","))
			}
			return nil
		},
	}
	remote.Flags().IntVar(&limit, "limit", 50, "maximum number of operations")

	cancel := &cobra.Command{
		Use:   "cancel OPERATION...",
		Short: "Cancel export tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			for _, name := range args {
				if err := a.service.CancelTask(cmd.Context(), name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				a.console.PrintSuccess("Cancellation requested for " + name)
			}
			return nil
		},
	}

	cmd.AddCommand(list, refresh, remote, cancel)
	return cmd
}

func newAOICommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aoi",
		Short: "Inspect the local areas of interest",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the area files under data/geojsons",
			RunE: func(cmd *cobra.Command, _ []string) error {
				names, err := aoi.List(a.cfg.RootPath)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "features NAME",
			Short: "List the feature ids of an area file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := aoi.FeatureIDs(a.cfg.RootPath, args[0])
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			},
		},
	)
	return cmd
}
