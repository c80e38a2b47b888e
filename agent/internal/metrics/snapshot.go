package metrics

import (
	"fmt"
	"sort"
	"time"
)

// Category is the kind of metric a series belongs to.
type Category string

// Supported metric categories.
const (
	Gauge     Category = "gauge"
	Counter   Category = "counter"
	Histogram Category = "histogram"
	Meter     Category = "meter"
	Timer     Category = "timer"
)

// Categories lists every supported category in a stable order.
var Categories = []Category{Gauge, Counter, Histogram, Meter, Timer}

// ParseCategory validates a category name from configuration.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown metric category %q: want gauge|counter|histogram|meter|timer", s)
}

// Fields maps a field name ("value", "count", "p99", ...) to its value.
type Fields map[string]float64

// Snapshot is a point-in-time view of every series, grouped by category.
// Build it with Put; once handed to readers it must not be modified.
type Snapshot struct {
	TakenAt time.Time
	series  map[Category]map[string]Fields
}

// NewSnapshot returns an empty Snapshot stamped with takenAt.
func NewSnapshot(takenAt time.Time) *Snapshot {
	return &Snapshot{
		TakenAt: takenAt,
		series:  make(map[Category]map[string]Fields),
	}
}

// Put stores the fields of one series, merging into any fields already
// present under the same name.
func (s *Snapshot) Put(cat Category, name string, fields Fields) {
	byName, ok := s.series[cat]
	if !ok {
		byName = make(map[string]Fields)
		s.series[cat] = byName
	}
	existing, ok := byName[name]
	if !ok {
		existing = make(Fields, len(fields))
		byName[name] = existing
	}
	for k, v := range fields {
		existing[k] = v
	}
}

// Names returns the series names of cat in dictionary order.
func (s *Snapshot) Names(cat Category) []string {
	if s == nil {
		return nil
	}
	byName := s.series[cat]
	out := make([]string, 0, len(byName))
	for name := range byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Value returns one field of one series, and whether it was present.
func (s *Snapshot) Value(cat Category, name, field string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	f, ok := s.series[cat][name]
	if !ok {
		return 0, false
	}
	v, ok := f[field]
	return v, ok
}

// Len returns the total number of series across all categories.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, byName := range s.series {
		n += len(byName)
	}
	return n
}
