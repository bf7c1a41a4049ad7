package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// latestOnly hides RunLister so NextVersion falls back to LatestRun.
type latestOnly struct{ Tracker }

type brokenTracker struct{}

func (brokenTracker) PutRun(context.Context, *Run) error { return errors.New("down") }
func (brokenTracker) LatestRun(context.Context, string, string) (*Run, error) {
	return nil, errors.New("down")
}

func TestNextVersion(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryTracker()
	logger := log.NewTestLogger(log.LevelDebug)

	assert.Equal(t, 1, NextVersion(ctx, mem, experiment, "price_model", logger))
	assert.True(t, logger.ContainsMessage("no previous versioned runs"))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// v3 is older than v2: the scan picks the highest version, not the latest run
	require.NoError(t, mem.PutRun(ctx, sampleRun(3, start)))
	require.NoError(t, mem.PutRun(ctx, sampleRun(2, start.Add(time.Hour))))
	other := NewRun(experiment, "other", 9)
	other.StartTime = start
	require.NoError(t, mem.PutRun(ctx, other))

	assert.Equal(t, 4, NextVersion(ctx, mem, experiment, "price_model", logger))
	assert.Equal(t, 3, NextVersion(ctx, latestOnly{mem}, experiment, "price_model", logger))
	assert.Equal(t, 1, NextVersion(ctx, mem, "another-experiment", "price_model", logger))
}

func TestNextVersionIgnoresNewerRunOfAnotherBase(t *testing.T) {
	ctx := context.Background()
	logger := log.NewTestLogger(log.LevelDebug)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, tr.PutRun(ctx, sampleRun(1, start)))
			require.NoError(t, tr.PutRun(ctx, sampleRun(2, start.Add(time.Hour))))
			other := NewRun(experiment, "price_model_xl", 7)
			other.StartTime = start.Add(2 * time.Hour)
			require.NoError(t, tr.PutRun(ctx, other))

			assert.Equal(t, 3, NextVersion(ctx, latestOnly{tr}, experiment, "price_model", logger))
			assert.Equal(t, 3, NextVersion(ctx, tr, experiment, "price_model", logger))
		})
	}
}

func TestNextVersionTrackerError(t *testing.T) {
	logger := log.NewTestLogger(log.LevelDebug)
	assert.Equal(t, 1, NextVersion(context.Background(), brokenTracker{}, experiment, "price_model", logger))
	assert.Equal(t, 1, logger.CountLevel("warn"))
	assert.True(t, logger.ContainsMessage("could not fetch latest run"))
}
