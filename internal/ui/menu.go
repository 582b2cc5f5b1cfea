package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/s2-downloader/internal/batch"
	"github.com/forest-guardian/s2-downloader/internal/delivery"
	"github.com/forest-guardian/s2-downloader/internal/tasks"
)

type menuOption struct {
	title   string
	handler func(ctx context.Context) error
}

// Menu drives the use cases from numbered choices.
type Menu struct {
	console   *Console
	service   *delivery.Service
	root      string
	outputDir string
}

// NewMenu builds a menu over service. AOI files are read under root and
// local files are written under outputDir.
func NewMenu(console *Console, service *delivery.Service, root, outputDir string) *Menu {
	return &Menu{console: console, service: service, root: root, outputDir: outputDir}
}

func (m *Menu) options() []menuOption {
	return []menuOption{
		{"List acquisition dates of an area", m.listDates},
		{"Export products to Drive or Cloud Storage", m.export},
		{"Preview products on an HTML map", m.preview},
		{"Create a quicklook contact sheet", m.quicklook},
		{"Download products as GeoTIFF", m.download},
		{"List export tasks", m.listTasks},
		{"Refresh export task states", m.refreshTasks},
		{"Cancel an export task", m.cancelTask},
		{"View the list of available areas", func(context.Context) error { m.console.ListAreas(m.root); return nil }},
		{"View the features of an area", func(context.Context) error { m.console.ListFeatures(m.root, ""); return nil }},
	}
}

// Run shows the menu until the user exits or the input ends.
func (m *Menu) Run(ctx context.Context) {
	c := m.console
	options := m.options()
	exit := len(options) + 1

	for {
		infoColor.Fprintln(c.out, "===================")
		for i, opt := range options {
			infoColor.Fprintf(c.out, "%d. %s\n", i+1, opt.title)
		}
		infoColor.Fprintf(c.out, "%d. Exit the application\n", exit)

		choice, err := c.ReadInt("Please enter your choice: ", 1, exit)
		if c.Closed() {
			return
		}
		if err != nil {
			c.PrintError(err.Error())
			continue
		}
		if choice == exit {
			fmt.Fprintln(c.out, "Exiting...")
			return
		}
		if err := options[choice-1].handler(ctx); err != nil {
			c.PrintError(err.Error())
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (m *Menu) listDates(ctx context.Context) error {
	req, err := m.readDatesRequest()
	if err != nil {
		return err
	}
	dates, err := m.service.Dates(ctx, req)
	if err != nil {
		return err
	}
	days := make([]string, len(dates))
	for i, d := range dates {
		days[i] = d.Format(batch.DateLayout)
	}
	m.console.PrintList(fmt.Sprintf("%d acquisition dates for %s:", len(days), req.AOI), days)
	return nil
}

func (m *Menu) readDatesRequest() (delivery.Request, error) {
	c := m.console
	var req delivery.Request
	area, err := c.ReadArea(m.root)
	if err != nil {
		return req, err
	}
	req.AOI = area
	if req.Start, req.End, err = c.ReadDateRange(); err != nil {
		return req, err
	}
	req.CloudPercentage, err = c.ReadFloat("Maximum scene cloud percentage", delivery.DefaultCloudPercentage, 0, 100)
	return req, err
}

func (m *Menu) export(ctx context.Context) error {
	req, err := m.console.ReadRequest(m.root)
	if err != nil {
		return err
	}
	report, err := m.service.Export(ctx, req)
	m.console.FinishProgress()
	if report != nil {
		for _, w := range report.Warnings {
			m.console.PrintWarning(w)
		}
		if len(report.Results) > 0 {
			m.console.PrintSuccess(fmt.Sprintf("%d export tasks submitted.\nManifest located at: %s", len(report.Results), report.ManifestPath))
		}
	}
	return err
}

func (m *Menu) preview(ctx context.Context) error {
	req, err := m.console.ReadRequest(m.root)
	if err != nil {
		return err
	}
	path, err := m.service.Preview(ctx, req, nil)
	if err != nil {
		return err
	}
	m.console.PrintSuccess("Map located at: " + path)
	return nil
}

func (m *Menu) quicklook(ctx context.Context) error {
	req, err := m.console.ReadRequest(m.root)
	if err != nil {
		return err
	}
	path := filepath.Join(m.outputDir, "quicklooks", fileSafe(req.AOI.String())+"_"+req.Start.Format(batch.DateLayout)+"_"+req.End.Format(batch.DateLayout)+".png")
	if err := m.service.Quicklook(ctx, req, path); err != nil {
		return err
	}
	m.console.PrintSuccess("Quicklook located at: " + path)
	return nil
}

func (m *Menu) download(ctx context.Context) error {
	req, err := m.console.ReadRequest(m.root)
	if err != nil {
		return err
	}
	dir := filepath.Join(m.outputDir, "downloads", fileSafe(req.AOI.String()))
	downloaded, err := m.service.Download(ctx, req, dir)
	for _, d := range downloaded {
		m.console.PrintSuccess(fmt.Sprintf("%s (%dx%d, %d bands)", d.Path, d.Summary.Width, d.Summary.Height, len(d.Summary.Bands)))
		if d.Center != nil {
			m.console.PrintInfo(fmt.Sprintf("Center pixel values: %v\n", d.Center.Values))
		}
	}
	return err
}

func (m *Menu) listTasks(ctx context.Context) error {
	ts, err := m.service.ListTasks(ctx)
	if err != nil {
		return err
	}
	m.console.PrintList("Export tasks ("+delivery.Summary(ts)+"):", taskLines(ts))
	return nil
}

func (m *Menu) refreshTasks(ctx context.Context) error {
	ts, err := m.service.RefreshTasks(ctx)
	if len(ts) > 0 {
		m.console.PrintList("Active tasks ("+delivery.Summary(ts)+"):", taskLines(ts))
	}
	return err
}

func (m *Menu) cancelTask(ctx context.Context) error {
	name := m.console.ReadString("Enter the operation name: ")
	if name == "" {
		return errors.New("operation name cannot be empty")
	}
	if err := m.service.CancelTask(ctx, name); err != nil {
		return err
	}
	m.console.PrintSuccess("Cancellation requested for " + name)
	return nil
}

func taskLines(ts []tasks.Task) []string {
	lines := make([]string, len(ts))
	for i, t := range ts {
		lines[i] = fmt.Sprintf("%s %s %s", t.State, t.Description, t.Name)
		if t.Error != "" {
			lines[i] += ": " + t.Error
		}
	}
	return lines
}

// fileSafe turns an AOI label into a file name.
func fileSafe(s string) string {
	return strings.NewReplacer("/", "_", " ", "_", ":", "_").Replace(s)
}
