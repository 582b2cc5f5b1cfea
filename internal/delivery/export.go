package delivery

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/forest-guardian/s2-downloader/internal/ee"
	"github.com/forest-guardian/s2-downloader/internal/export"
	"github.com/forest-guardian/s2-downloader/internal/tasks"
	"github.com/forest-guardian/s2-downloader/output"
)

// Report summarizes one export run.
type Report struct {
	Plan           *Plan
	Results        []export.Result
	ManifestPath   string
	FootprintsPath string
	Warnings       []string
}

func (r *Report) Tasks() []tasks.Task {
	out := make([]tasks.Task, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Task)
	}
	return out
}

// Export plans a request and submits one task per item. Accepted tasks are
// recorded, listed in a CSV manifest and a GeoJSON footprint index, and
// announced. Submission failures are aggregated in the returned error, next
// to a report of what was accepted.
func (s *Service) Export(ctx context.Context, req Request) (*Report, error) {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		s.notifyError(ctx, err)
		return nil, err
	}
	report := &Report{Plan: plan, Warnings: plan.Warnings}

	exporter := export.New(s.client, s.store, s.destination,
		export.WithWorkers(s.workers),
		export.WithScale(s.scale),
		export.WithMaxPixels(s.maxPixels),
		export.WithProgress(s.onProgress),
	)
	results, submitErr := exporter.Submit(ctx, plan.Region, plan.Jobs())
	report.Results = results

	if len(results) > 0 {
		stamp := s.now().UTC().Format("20060102T150405")
		dir := filepath.Join(s.outputDir, "exports")

		report.ManifestPath = filepath.Join(dir, "manifest_"+stamp+".csv")
		if err := tasks.SaveManifest(report.ManifestPath, report.Tasks()); err != nil {
			report.Warnings = append(report.Warnings, err.Error())
			report.ManifestPath = ""
		}

		if req.AOI.Local() {
			report.FootprintsPath = filepath.Join(dir, "footprints_"+stamp+".geojson")
			if err := output.WriteFootprints(report.FootprintsPath, req.AOI.Orb(), report.Tasks()); err != nil {
				report.Warnings = append(report.Warnings, err.Error())
				report.FootprintsPath = ""
			}
		}
	}

	if submitErr != nil {
		s.notifyError(ctx, submitErr)
		return report, submitErr
	}
	s.notifySuccess(ctx, fmt.Sprintf("%d export tasks submitted for %s to %s", len(results), req.AOI, s.destination.String()))
	return report, nil
}

func (s *Service) notifyError(ctx context.Context, err error) {
	if s.notifier != nil {
		_ = s.notifier.Error(ctx, err.Error())
	}
}

func (s *Service) notifySuccess(ctx context.Context, msg string) {
	if s.notifier != nil {
		_ = s.notifier.Success(ctx, msg)
	}
}

// RefreshTasks polls every task still in flight and stores its latest state.
// It returns the refreshed tasks; a task that cannot be polled keeps its
// previous state and is reported in the error.
func (s *Service) RefreshTasks(ctx context.Context) ([]tasks.Task, error) {
	active, err := s.store.List(ctx, activeStates...)
	if err != nil {
		return nil, err
	}

	refreshed := make([]tasks.Task, len(active))
	errs := make([]error, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, t := range active {
		g.Go(func() error {
			refreshed[i] = t
			op, err := s.client.GetOperation(gctx, t.Name)
			if err != nil {
				errs[i] = err
				return nil
			}
			if op.State == t.State && op.Error == t.Error {
				return nil
			}
			if err := s.store.UpdateState(gctx, t.Name, op.State, op.Error); err != nil {
				return err
			}
			refreshed[i].State = op.State
			refreshed[i].Error = op.Error
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return refreshed, merr.ErrorOrNil()
}

// Summary counts tasks per state, e.g. "2 RUNNING, 1 SUCCEEDED".
func Summary(ts []tasks.Task) string {
	order := []string{ee.StatePending, ee.StateRunning, ee.StateCancelling, ee.StateSucceeded, ee.StateCancelled, ee.StateFailed}
	counts := make(map[string]int)
	for _, t := range ts {
		counts[t.State]++
	}
	var parts []string
	for _, st := range order {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, st))
			delete(counts, st)
		}
	}
	rest := make([]string, 0, len(counts))
	for st := range counts {
		rest = append(rest, st)
	}
	sort.Strings(rest)
	for _, st := range rest {
		parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
	}
	if len(parts) == 0 {
		return "no tasks"
	}
	return strings.Join(parts, ", ")
}
