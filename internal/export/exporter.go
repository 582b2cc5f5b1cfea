// Package export submits image export tasks to the remote batch system and
// records them in the task ledger.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/forest-guardian/s2-downloader/internal/batch"
	"github.com/forest-guardian/s2-downloader/internal/ee"
	"github.com/forest-guardian/s2-downloader/internal/sentinel"
	"github.com/forest-guardian/s2-downloader/internal/tasks"
)

const (
	DefaultScale     = 10
	DefaultMaxPixels = int64(1e12)
	DefaultWorkers   = 4
)

var ErrNoJobs = errors.New("nothing to export")

// Job is one image to materialize.
type Job struct {
	Name    string
	Product sentinel.Product
	Window  batch.Window
	Image   ee.Image
}

// Client is the part of the remote API used for exports.
type Client interface {
	ExportImage(ctx context.Context, req ee.ExportRequest) (*ee.Operation, error)
}

// Store persists accepted operations.
type Store interface {
	Save(ctx context.Context, t tasks.Task) error
}

// Result ties a job to the operation it started.
type Result struct {
	Job       Job
	Operation *ee.Operation
	Task      tasks.Task
}

type Exporter struct {
	client      Client
	store       Store
	destination ee.Destination
	scale       float64
	maxPixels   int64
	workers     int
	onProgress  func(Job, error)
	newID       func() string
}

type Option func(*Exporter)

func WithScale(scale float64) Option {
	return func(e *Exporter) { e.scale = scale }
}

func WithMaxPixels(n int64) Option {
	return func(e *Exporter) { e.maxPixels = n }
}

func WithWorkers(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithProgress sets a callback invoked once per finished job, from any worker.
func WithProgress(fn func(Job, error)) Option {
	return func(e *Exporter) { e.onProgress = fn }
}

// New builds an Exporter. A nil store skips persistence.
func New(client Client, store Store, dest ee.Destination, opts ...Option) *Exporter {
	e := &Exporter{
		client:      client,
		store:       store,
		destination: dest,
		scale:       DefaultScale,
		maxPixels:   DefaultMaxPixels,
		workers:     DefaultWorkers,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit starts one export per job over region. Jobs are submitted
// concurrently. Every job is attempted and failures are returned together;
// results hold the accepted ones in job order.
func (e *Exporter) Submit(ctx context.Context, region ee.Geometry, jobs []Job) ([]Result, error) {
	if len(jobs) == 0 {
		return nil, ErrNoJobs
	}

	var (
		mu      sync.Mutex
		errs    *multierror.Error
		results = make([]*Result, len(jobs))
	)

	wp := workerpool.New(e.workers)
	for i, job := range jobs {
		wp.Submit(func() {
			res, err := e.submit(ctx, region, job)

			mu.Lock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", job.Name, err))
			} else {
				results[i] = res
			}
			mu.Unlock()

			if e.onProgress != nil {
				e.onProgress(job, err)
			}
		})
	}
	wp.StopWait()

	accepted := make([]Result, 0, len(jobs))
	for _, r := range results {
		if r != nil {
			accepted = append(accepted, *r)
		}
	}
	return accepted, errs.ErrorOrNil()
}

func (e *Exporter) submit(ctx context.Context, region ee.Geometry, job Job) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dest := e.destination
	dest.FilenamePrefix = job.Name
	req := ee.ExportRequest{
		Image:       job.Image.ClipToBoundsAndScale(region, e.scale),
		Description: job.Name,
		RequestID:   e.newID(),
		MaxPixels:   e.maxPixels,
		Destination: dest,
	}

	op, err := e.client.ExportImage(ctx, req)
	if err != nil {
		return nil, err
	}

	state := op.State
	if state == "" {
		state = ee.StatePending
	}
	task := tasks.Task{
		Name:        op.Name,
		Description: job.Name,
		Product:     string(job.Product),
		Window:      job.Window.Name,
		Destination: dest.String(),
		RequestID:   req.RequestID,
		State:       state,
		Error:       op.Error,
	}
	if e.store != nil {
		if err := e.store.Save(ctx, task); err != nil {
			return nil, fmt.Errorf("export %s started as %s but was not recorded: %w", job.Name, op.Name, err)
		}
	}
	return &Result{Job: job, Operation: op, Task: task}, nil
}
