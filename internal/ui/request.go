package ui

import (
	"strings"

	"github.com/forest-guardian/s2-downloader/internal/delivery"
	"github.com/forest-guardian/s2-downloader/internal/sentinel"
)

func productNames(ps []sentinel.Product) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}

// ReadRequest walks the user through every request parameter. Empty answers
// keep the defaults.
func (c *Console) ReadRequest(root string) (delivery.Request, error) {
	var req delivery.Request

	area, err := c.ReadArea(root)
	if err != nil {
		return req, err
	}
	req.AOI = area

	if req.Start, req.End, err = c.ReadDateRange(); err != nil {
		return req, err
	}
	if req.CloudPercentage, err = c.ReadFloat("Maximum scene cloud percentage", delivery.DefaultCloudPercentage, 0, 100); err != nil {
		return req, err
	}

	products := c.ReadDefault("Products ("+productNames(sentinel.Products)+")", productNames(delivery.DefaultProducts))
	if req.Products, err = sentinel.ParseProducts([]string{products}); err != nil {
		return req, err
	}
	if req.Composite, err = sentinel.ParseComposite(c.ReadDefault("Composite (mosaic, median)", string(sentinel.Mosaic))); err != nil {
		return req, err
	}

	if req.Mask = c.ReadYesNo("Mask cloudy pixels", false); req.Mask {
		req.CloudMask = sentinel.DefaultCloudMask()
		req.CloudMask.MaskSnow = c.ReadYesNo("Mask snow too", false)
	}
	if c.ReadYesNo("Mask permanent water", false) {
		req.WaterMask = &delivery.Range{}
	}

	if req.Mode, err = delivery.ParseMode(c.ReadDefault("Windows (by-date, interval)", string(delivery.ByDate))); err != nil {
		return req, err
	}
	if req.Mode == delivery.ByInterval {
		req.IntervalDays, err = c.ReadPositiveInt("Interval days", delivery.DefaultIntervalDays)
	} else {
		req.NextDays, err = c.ReadPositiveInt("Days per window", delivery.DefaultNextDays)
	}
	return req, err
}
