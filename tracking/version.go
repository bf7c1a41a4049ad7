package tracking

import (
	"context"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// NextVersion returns one more than the highest version among the runs of
// experiment named "<base>_v<N>". Trackers that implement RunLister are
// scanned in full; others are asked for their latest run with the
// "<base>_v" prefix. Any tracker error, or no matching run, yields 1.
func NextVersion(ctx context.Context, tracker Tracker, experiment, base string, logger log.Logger) int {
	if logger == nil {
		logger = log.GetLoggerWithName("tracking")
	}

	var runs []*Run
	if lister, ok := tracker.(RunLister); ok {
		all, err := lister.ListRuns(ctx, experiment)
		if err != nil {
			logger.Warn("could not list previous runs, using version 1", err, log.ExperimentKey, experiment)
			return 1
		}
		runs = all
	} else {
		latest, err := tracker.LatestRun(ctx, experiment, VersionPrefix(base))
		switch {
		case errors.Is(err, errors.ErrRunNotFound):
		case err != nil:
			logger.Warn("could not fetch latest run, using version 1", err, log.ExperimentKey, experiment)
			return 1
		default:
			runs = []*Run{latest}
		}
	}

	highest := 0
	for _, r := range runs {
		if n, ok := ParseVersion(base, r.Name); ok && n > highest {
			highest = n
		}
	}
	if highest == 0 {
		logger.Warn("no previous versioned runs found, using version 1",
			log.ExperimentKey, experiment,
			log.RunNameKey, base,
		)
		return 1
	}
	return highest + 1
}
