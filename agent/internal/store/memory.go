package store

import (
	"context"
	"sort"
	"sync"

	"github.com/obsidianstack/sentinel/pkg/types"
)

// Memory is the in-process incident store.
//
// Memory is safe for concurrent use. The mutex only guards the map for the
// duration of one compare-and-swap; callers never hold it across a tick.
type Memory struct {
	mu   sync.RWMutex
	data map[string]types.Incident
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]types.Incident)}
}

// Get returns a copy of the incident stored for checkID.
func (m *Memory) Get(_ context.Context, checkID string) (types.Incident, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.data[checkID]
	return clone(inc), ok, nil
}

// Create inserts inc with version 1 unless an incident already exists.
func (m *Memory) Create(_ context.Context, inc types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[inc.CheckID]; exists {
		return false, nil
	}
	inc.Version = 1
	m.data[inc.CheckID] = clone(inc)
	return true, nil
}

// Update replaces the stored incident if its version still equals prev.Version.
func (m *Memory) Update(_ context.Context, inc, prev types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[inc.CheckID]
	if !ok || cur.Version != prev.Version {
		return false, nil
	}
	inc.Version = prev.Version + 1
	m.data[inc.CheckID] = clone(inc)
	return true, nil
}

// Delete removes the stored incident if its version still equals prev.Version.
func (m *Memory) Delete(_ context.Context, inc, prev types.Incident) (bool, error) {
	if err := checkWritable(inc); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[inc.CheckID]
	if !ok || cur.Version != prev.Version {
		return false, nil
	}
	delete(m.data, inc.CheckID)
	return true, nil
}

// List returns copies of all incidents ordered by check ID.
func (m *Memory) List(_ context.Context) ([]types.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Incident, 0, len(m.data))
	for _, inc := range m.data {
		out = append(out, clone(inc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckID < out[j].CheckID })
	return out, nil
}

// clone deep-copies the slices and pointers of inc so callers cannot mutate
// stored state through a returned value.
func clone(inc types.Incident) types.Incident {
	if inc.Results != nil {
		inc.Results = append([]types.CheckResult(nil), inc.Results...)
	}
	if inc.ResolvedAt != nil {
		t := *inc.ResolvedAt
		inc.ResolvedAt = &t
	}
	if inc.NotifiedAt != nil {
		t := *inc.NotifiedAt
		inc.NotifiedAt = &t
	}
	return inc
}
