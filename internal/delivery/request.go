package delivery

import (
	"errors"
	"fmt"
	"time"

	"github.com/forest-guardian/s2-downloader/internal/aoi"
	"github.com/forest-guardian/s2-downloader/internal/sentinel"
)

// Mode selects how acquisition dates are grouped into windows.
type Mode string

const (
	// ByDate builds one window per acquisition date.
	ByDate Mode = "by-date"
	// ByInterval cuts the date range into fixed-width windows.
	ByInterval Mode = "interval"
)

const (
	DefaultCloudPercentage = 20
	DefaultNextDays        = 1
	DefaultIntervalDays    = 5
)

// DefaultProducts are exported when a request names none.
var DefaultProducts = []sentinel.Product{sentinel.MNDWI, sentinel.RGB, sentinel.Cloud, sentinel.SWI}

var ErrInvalidRequest = errors.New("invalid request")

// Range is a closed-open period of days.
type Range struct {
	Start time.Time
	End   time.Time
}

type Request struct {
	AOI             *aoi.AOI
	Start           time.Time
	End             time.Time
	CloudPercentage float64
	Composite       sentinel.Composite
	Products        []sentinel.Product

	// Mask applies CloudMask to every scene before compositing.
	Mask      bool
	CloudMask sentinel.CloudMask
	// WaterMask drops permanent water, using the given period for the
	// reference mosaic. Zero dates fall back to Start and End.
	WaterMask *Range
	// ClipTo further clips every composite.
	ClipTo *aoi.AOI

	Mode         Mode
	NextDays     int
	IntervalDays int
}

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ByDate, ByInterval:
		return m, nil
	case "", "date":
		return ByDate, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q, use by-date or interval", ErrInvalidRequest, s)
	}
}

// normalize fills defaults and validates a copy of r.
func (r Request) normalize() (Request, error) {
	if r.AOI == nil {
		return r, fmt.Errorf("%w: area of interest is required", ErrInvalidRequest)
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return r, fmt.Errorf("%w: start and end dates are required", ErrInvalidRequest)
	}
	if !r.End.After(r.Start) {
		return r, fmt.Errorf("%w: end date must be after start date", ErrInvalidRequest)
	}

	if r.CloudPercentage == 0 {
		r.CloudPercentage = DefaultCloudPercentage
	}
	if r.CloudPercentage < 0 || r.CloudPercentage > 100 {
		return r, fmt.Errorf("%w: cloud percentage %v out of [0, 100]", ErrInvalidRequest, r.CloudPercentage)
	}

	composite, err := sentinel.ParseComposite(string(r.Composite))
	if err != nil {
		return r, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	r.Composite = composite

	if len(r.Products) == 0 {
		r.Products = DefaultProducts
	}
	for _, p := range r.Products {
		if !p.Valid() {
			return r, fmt.Errorf("%w: unknown product %q", ErrInvalidRequest, p)
		}
	}

	if r.CloudMask == (sentinel.CloudMask{}) {
		r.CloudMask = sentinel.DefaultCloudMask()
	}

	if r.WaterMask != nil {
		wm := *r.WaterMask
		if wm.Start.IsZero() {
			wm.Start = r.Start
		}
		if wm.End.IsZero() {
			wm.End = r.End
		}
		r.WaterMask = &wm
	}

	mode, err := ParseMode(string(r.Mode))
	if err != nil {
		return r, err
	}
	r.Mode = mode
	if r.NextDays == 0 {
		r.NextDays = DefaultNextDays
	}
	if r.IntervalDays == 0 {
		r.IntervalDays = DefaultIntervalDays
	}
	if r.NextDays < 0 || r.IntervalDays < 0 {
		return r, fmt.Errorf("%w: window widths must be positive", ErrInvalidRequest)
	}
	return r, nil
}

func (r Request) wants(p sentinel.Product) bool {
	for _, q := range r.Products {
		if q == p {
			return true
		}
	}
	return false
}

// imageProducts are the requested products derived from surface reflectance.
func (r Request) imageProducts() []sentinel.Product {
	var out []sentinel.Product
	for _, p := range r.Products {
		if p != sentinel.Cloud {
			out = append(out, p)
		}
	}
	return out
}
