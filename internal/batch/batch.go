// Package batch groups acquisition dates into the time windows that get
// composited and exported together.
package batch

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// DateLayout is the day format used in window names and on the command line.
const DateLayout = "2006-01-02"

var ErrInvalidStep = errors.New("window step must be at least one day")

// Window is the half-open range [Start, End) of UTC days.
type Window struct {
	Start time.Time
	End   time.Time
	Name  string
}

func (w Window) String() string {
	return w.Name
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", s)
	}
	return t, nil
}

// FromMillis converts epoch milliseconds, as stored in system:time_start.
func FromMillis(millis []int64) []time.Time {
	out := make([]time.Time, 0, len(millis))
	for _, ms := range millis {
		out = append(out, time.UnixMilli(ms).UTC())
	}
	return out
}

// DistinctDates returns the acquisition days of timestamps, ascending and
// without repetition.
func DistinctDates(timestamps []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(timestamps))
	days := make([]time.Time, 0, len(timestamps))
	for _, ts := range timestamps {
		d := Day(ts)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// ByDate builds one window per acquisition day d covering [d, d+nextDays).
// With nextDays > 1 consecutive windows overlap.
func ByDate(timestamps []time.Time, nextDays int) ([]Window, error) {
	if nextDays < 1 {
		return nil, fmt.Errorf("%w: next date %d", ErrInvalidStep, nextDays)
	}
	days := DistinctDates(timestamps)
	windows := make([]Window, 0, len(days))
	for _, d := range days {
		day := d.Format(DateLayout)
		windows = append(windows, Window{
			Start: d,
			End:   d.AddDate(0, 0, nextDays),
			Name:  fmt.Sprintf("%s_%splus%d", day, day, nextDays),
		})
	}
	return windows, nil
}

// DateRange yields start and then keeps stepping by step days for as long as
// the last yielded day is not after end, so the final day lies past end.
func DateRange(start, end time.Time, step int) ([]time.Time, error) {
	if step < 1 {
		return nil, fmt.Errorf("%w: interval %d", ErrInvalidStep, step)
	}
	start, end = Day(start), Day(end)
	days := []time.Time{start}
	for current := start; !current.After(end); {
		current = current.AddDate(0, 0, step)
		days = append(days, current)
	}
	return days, nil
}

// Intervals cuts [first, end] into contiguous windows of days width. The last
// window may reach past end.
func Intervals(first, end time.Time, days int) ([]Window, error) {
	bounds, err := DateRange(first, end, days)
	if err != nil {
		return nil, err
	}
	windows := make([]Window, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		windows = append(windows, Window{
			Start: bounds[i],
			End:   bounds[i+1],
			Name:  bounds[i].Format(DateLayout) + "_" + bounds[i+1].Format(DateLayout),
		})
	}
	return windows, nil
}

// DayOfYear returns the ordinal day of t, January 1st being 1.
func DayOfYear(t time.Time) int {
	return t.YearDay()
}

// FromDayOfYear is the inverse of DayOfYear. Ordinals past the end of the
// year roll into the next one.
func FromDayOfYear(doy, year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1)
}
