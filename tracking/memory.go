package tracking

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/estateml/estateml/pkg/errors"
)

// MemoryTracker keeps runs in memory.
type MemoryTracker struct {
	mu   sync.RWMutex
	runs []*Run
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{}
}

var (
	_ Tracker   = (*MemoryTracker)(nil)
	_ RunLister = (*MemoryTracker)(nil)
)

// PutRun inserts run or replaces the stored run with the same ID.
func (m *MemoryTracker) PutRun(_ context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.NewValidationError("run", "run with an ID is required", run)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == run.ID {
			m.runs[i] = run.Clone()
			return nil
		}
	}
	m.runs = append(m.runs, run.Clone())
	return nil
}

func (m *MemoryTracker) LatestRun(ctx context.Context, experiment, namePrefix string) (*Run, error) {
	runs, err := m.ListRuns(ctx, experiment)
	if err != nil {
		return nil, err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		if strings.HasPrefix(runs[i].Name, namePrefix) {
			return runs[i], nil
		}
	}
	return nil, errors.Wrapf(errors.ErrRunNotFound, "experiment %q, prefix %q", experiment, namePrefix)
}

func (m *MemoryTracker) ListRuns(_ context.Context, experiment string) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Run
	for _, r := range m.runs {
		if r.Experiment == experiment {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *MemoryTracker) GetRun(_ context.Context, experiment, name string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		if r := m.runs[i]; r.Experiment == experiment && r.Name == name {
			return r.Clone(), nil
		}
	}
	return nil, errors.Wrapf(errors.ErrRunNotFound, "run %q in experiment %q", name, experiment)
}
