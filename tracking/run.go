// Package tracking records training runs: their parameters, metrics, tags
// and artifact location. Trainers depend only on the narrow Tracker
// interface; MemoryTracker and SQLiteTracker implement it.
package tracking

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run status values.
const (
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

// Run is one training run.
type Run struct {
	ID          string             `json:"id"`
	Experiment  string             `json:"experiment"`
	Name        string             `json:"name"`
	Version     int                `json:"version"`
	Status      string             `json:"status"`
	ArtifactURI string             `json:"artifact_uri,omitempty"`
	Params      map[string]string  `json:"params"`
	Metrics     map[string]float64 `json:"metrics"`
	Tags        map[string]string  `json:"tags"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time,omitempty"`
}

// NewRun starts a run with a fresh ID.
func NewRun(experiment, base string, version int) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Experiment: experiment,
		Name:       RunName(base, version),
		Version:    version,
		Status:     StatusRunning,
		Params:     map[string]string{},
		Metrics:    map[string]float64{},
		Tags:       map[string]string{},
		StartTime:  time.Now().UTC(),
	}
}

// SetParam stores v in its fmt.Sprint form.
func (r *Run) SetParam(key string, v interface{}) {
	r.Params[key] = fmt.Sprint(v)
}

// SetParams stores every entry of params.
func (r *Run) SetParams(params map[string]interface{}) {
	for k, v := range params {
		r.SetParam(k, v)
	}
}

// SetMetric records a metric value.
func (r *Run) SetMetric(key string, v float64) { r.Metrics[key] = v }

// SetTag records a tag.
func (r *Run) SetTag(key, value string) { r.Tags[key] = value }

// Finish marks the run finished or failed.
func (r *Run) Finish(err error) {
	r.EndTime = time.Now().UTC()
	r.Status = StatusFinished
	if err != nil {
		r.Status = StatusFailed
	}
}

// Clone returns a deep copy.
func (r *Run) Clone() *Run {
	c := *r
	c.Params = maps.Clone(r.Params)
	c.Metrics = maps.Clone(r.Metrics)
	c.Tags = maps.Clone(r.Tags)
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	if c.Metrics == nil {
		c.Metrics = map[string]float64{}
	}
	if c.Tags == nil {
		c.Tags = map[string]string{}
	}
	return &c
}

// RunName formats the run name for version n of base.
func RunName(base string, n int) string {
	return fmt.Sprintf("%s_v%d", base, n)
}

// VersionPrefix is the name prefix shared by every versioned run of base.
func VersionPrefix(base string) string {
	return base + "_v"
}

// ParseVersion extracts N from a run name "<base>_v<N>".
func ParseVersion(base, name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, VersionPrefix(base))
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Tracker persists runs.
type Tracker interface {
	PutRun(ctx context.Context, run *Run) error
	// LatestRun returns the most recently started run of experiment whose
	// name starts with namePrefix, or an error wrapping errors.ErrRunNotFound.
	// An empty prefix matches every run.
	LatestRun(ctx context.Context, experiment, namePrefix string) (*Run, error)
}

// RunLister is implemented by trackers that can enumerate runs.
type RunLister interface {
	// ListRuns returns the runs of experiment ordered by start time.
	ListRuns(ctx context.Context, experiment string) ([]*Run, error)
	// GetRun returns the run of experiment with the given name.
	GetRun(ctx context.Context, experiment, name string) (*Run, error)
}
