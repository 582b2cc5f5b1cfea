package ee

import "time"

// Filter wraps a graph node that evaluates to an ee.Filter.
type Filter struct {
	node *Node
}

func (f Filter) Node() *Node { return f.node }

// LessThan keeps elements whose property is strictly below v.
func LessThan(property string, v float64) Filter {
	return Filter{Invoke("Filter.lessThan", Args{
		"leftField":  Constant(property),
		"rightValue": Constant(v),
	})}
}

// DateFilter keeps elements whose acquisition time falls in [start, end).
func DateFilter(start, end time.Time) Filter {
	return Filter{Invoke("Filter.dateRangeContains", Args{
		"leftValue":  DateRange(start, end),
		"rightField": Constant(TimeStart),
	})}
}

// BoundsFilter keeps elements whose footprint intersects g.
func BoundsFilter(g Geometry) Filter {
	return Filter{Invoke("Filter.intersects", Args{
		"leftField":  Constant(".all"),
		"rightValue": g.node,
	})}
}

// Date is a server date built from epoch milliseconds.
func Date(t time.Time) *Node {
	return Invoke("Date", Args{"value": Constant(t.UTC().UnixMilli())})
}

func DateRange(start, end time.Time) *Node {
	return Invoke("DateRange", Args{
		"start": Date(start),
		"end":   Date(end),
	})
}
