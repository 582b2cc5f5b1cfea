// Package delivery holds the use cases of the downloader: listing acquisition
// dates, planning windows, exporting, previewing and tracking tasks.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/forest-guardian/s2-downloader/internal/batch"
	"github.com/forest-guardian/s2-downloader/internal/cache"
	"github.com/forest-guardian/s2-downloader/internal/ee"
	"github.com/forest-guardian/s2-downloader/internal/export"
	"github.com/forest-guardian/s2-downloader/internal/tasks"
)

// ErrNoImages is returned when the catalog has no scene for a request.
var ErrNoImages = errors.New("no image available")

// Client is the remote API surface used by the use cases.
type Client interface {
	export.Client
	Compute(ctx context.Context, node *ee.Node) (json.RawMessage, error)
	ComputePixels(ctx context.Context, req ee.PixelsRequest) ([]byte, error)
	CreateMap(ctx context.Context, img ee.Image) (*ee.Map, error)
	GetOperation(ctx context.Context, name string) (*ee.Operation, error)
	ListOperations(ctx context.Context, pageSize int) ([]*ee.Operation, error)
	CancelOperation(ctx context.Context, name string) error
}

type TaskStore interface {
	export.Store
	Get(ctx context.Context, name string) (tasks.Task, error)
	List(ctx context.Context, states ...string) ([]tasks.Task, error)
	UpdateState(ctx context.Context, name, state, errMsg string) error
}

type Notifier interface {
	Success(ctx context.Context, msg string) error
	Error(ctx context.Context, msg string) error
}

type Service struct {
	client      Client
	store       TaskStore
	dates       cache.Cache[[]int64]
	notifier    Notifier
	destination ee.Destination
	outputDir   string
	workers     int
	scale       float64
	maxPixels   int64
	onProgress  func(export.Job, error)
	now         func() time.Time
}

type Option func(*Service)

// WithDateCache memoizes acquisition date lookups.
func WithDateCache(c cache.Cache[[]int64]) Option {
	return func(s *Service) { s.dates = c }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithDestination(d ee.Destination) Option {
	return func(s *Service) { s.destination = d }
}

// WithOutputDir sets where maps, quicklooks, downloads and manifests go.
func WithOutputDir(dir string) Option {
	return func(s *Service) { s.outputDir = dir }
}

func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithScale sets the nominal resolution in meters of exports and downloads.
func WithScale(meters float64) Option {
	return func(s *Service) {
		if meters > 0 {
			s.scale = meters
		}
	}
}

func WithMaxPixels(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

func WithProgress(fn func(export.Job, error)) Option {
	return func(s *Service) { s.onProgress = fn }
}

func New(client Client, store TaskStore, opts ...Option) *Service {
	s := &Service{
		client:      client,
		store:       store,
		destination: ee.Destination{DriveFolder: "earthengine"},
		outputDir:   "output",
		workers:     export.DefaultWorkers,
		scale:       export.DefaultScale,
		maxPixels:   export.DefaultMaxPixels,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dates lists the acquisition days matching a request, ascending.
func (s *Service) Dates(ctx context.Context, req Request) ([]time.Time, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	q, err := query(req)
	if err != nil {
		return nil, err
	}
	ts, err := s.timestamps(ctx, req, "images", q.Images(), nil)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, ErrNoImages
	}
	return batch.DistinctDates(ts), nil
}

// timestamps fetches system:time_start of every image of col. A failed cache
// write does not fail the lookup; it is passed to warn when set.
func (s *Service) timestamps(ctx context.Context, req Request, kind string, col ee.ImageCollection, warn func(string)) ([]time.Time, error) {
	key := s.cacheKey(req, kind)
	if s.dates != nil {
		if millis, ok := s.dates.Get(key); ok {
			return batch.FromMillis(millis), nil
		}
	}

	raw, err := s.client.Compute(ctx, col.AggregateArray(ee.TimeStart))
	if err != nil {
		return nil, fmt.Errorf("failed to list acquisition dates: %w", err)
	}
	result := gjson.ParseBytes(raw)
	if !result.IsArray() {
		return nil, fmt.Errorf("failed to list acquisition dates: unexpected result %s", truncate(string(raw), 80))
	}
	var millis []int64
	for _, v := range result.Array() {
		millis = append(millis, v.Int())
	}

	if s.dates != nil {
		if err := s.dates.Set(key, millis); err != nil && warn != nil {
			warn(fmt.Sprintf("Failed to cache acquisition dates: %s", err))
		}
	}
	return batch.FromMillis(millis), nil
}

func (s *Service) cacheKey(req Request, kind string) string {
	var shape string
	if data, err := req.AOI.GeoJSON(); err == nil {
		shape = string(data)
	}
	return cache.Key(kind, req.AOI.String(), req.AOI.Asset, shape, req.Start, req.End, req.CloudPercentage)
}

// ListTasks returns the ledger, optionally restricted to some states.
func (s *Service) ListTasks(ctx context.Context, states ...string) ([]tasks.Task, error) {
	return s.store.List(ctx, states...)
}

// RemoteOperations lists the most recent operations of the project, including
// those submitted by other tools.
func (s *Service) RemoteOperations(ctx context.Context, limit int) ([]*ee.Operation, error) {
	return s.client.ListOperations(ctx, limit)
}

// activeStates are polled by RefreshTasks.
var activeStates = []string{ee.StatePending, ee.StateRunning, ee.StateCancelling}

// CancelTask asks the platform to stop an operation and marks it as
// cancelling. Operations missing from the ledger are still cancelled.
func (s *Service) CancelTask(ctx context.Context, name string) error {
	if err := s.client.CancelOperation(ctx, name); err != nil {
		return err
	}
	err := s.store.UpdateState(ctx, name, ee.StateCancelling, "")
	if err != nil && !errors.Is(err, tasks.ErrNotFound) {
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
