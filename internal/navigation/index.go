package navigation

import (
	"sort"
	"time"

	"github.com/chrispappas/golang-generics-set/set"

	"stationlog/internal/modules/measurements/types"
)

// Index is the set of calendar dates holding at least one measurement for a station.
// Dates are keyed by their "YYYY-MM-DD" form so that zone or clock readings never matter.
type Index struct {
	days set.Set[string]
}

func NewIndex(dates []time.Time) *Index {
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, dayKey(d))
	}
	return &Index{days: set.FromSlice(keys)}
}

func dayKey(t time.Time) string {
	return t.Format(types.DateLayout)
}

func (i *Index) Has(d time.Time) bool {
	return i != nil && i.days.Has(dayKey(d))
}

func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return i.days.Len()
}

// Sorted returns the dates in ascending order.
func (i *Index) Sorted() []time.Time {
	if i == nil {
		return nil
	}
	keys := i.days.Values()
	sort.Strings(keys)
	out := make([]time.Time, 0, len(keys))
	for _, k := range keys {
		d, err := types.ParseDate(k)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// EmptyDays lists the dates in [from, to] without data, as the calendar greys them out.
func (i *Index) EmptyDays(from, to time.Time) []time.Time {
	var out []time.Time
	for d := types.Date(from); !d.After(types.Date(to)); d = d.AddDate(0, 0, 1) {
		if !i.Has(d) {
			out = append(out, d)
		}
	}
	return out
}
