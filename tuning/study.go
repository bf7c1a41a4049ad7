// Package tuning searches hyperparameter spaces with a define-by-run API:
// the objective asks its Trial for values, reports intermediate scores and
// returns the value to minimise.
//
//	study := tuning.NewStudy("price-model",
//	    tuning.WithSampler(tuning.NewTPESampler(42)),
//	    tuning.WithPruner(tuning.NewMedianPruner()),
//	)
//	err := study.Optimize(ctx, objective, tuning.OptimizeOptions{NTrials: 50})
//	best, err := study.BestTrial()
package tuning

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// StudyState is the lifecycle state of a Study.
type StudyState int

const (
	StudyCreated StudyState = iota
	StudyRunning
	StudyCompleted
)

func (s StudyState) String() string {
	switch s {
	case StudyCreated:
		return "created"
	case StudyRunning:
		return "running"
	case StudyCompleted:
		return "completed"
	}
	return "unknown"
}

// Callback runs after every recorded trial. Callbacks are never called
// concurrently.
type Callback func(study *Study, trial FrozenTrial)

// OptimizeOptions bound an Optimize call. At least one of NTrials and
// Timeout must be set.
type OptimizeOptions struct {
	NTrials int
	Timeout time.Duration
	// NJobs is the number of trials evaluated concurrently. Values below 1
	// mean 1. Results are only reproducible with a single job.
	NJobs int
}

// Study owns the trial history of one hyperparameter search.
type Study struct {
	name      string
	sampler   Sampler
	pruner    Pruner
	logger    log.Logger
	callbacks []Callback

	mu         sync.Mutex
	state      StudyState
	trials     []FrozenTrial
	nextNumber int

	cbMu sync.Mutex
}

// StudyOption configures a Study.
type StudyOption func(*Study)

// WithSampler sets the sampler. The default is a TPE sampler with seed 0.
func WithSampler(s Sampler) StudyOption { return func(st *Study) { st.sampler = s } }

// WithPruner sets the pruner. The default never prunes.
func WithPruner(p Pruner) StudyOption { return func(st *Study) { st.pruner = p } }

// WithLogger sets the study logger.
func WithLogger(l log.Logger) StudyOption { return func(st *Study) { st.logger = l } }

// WithCallbacks appends per-trial callbacks.
func WithCallbacks(cbs ...Callback) StudyOption {
	return func(st *Study) { st.callbacks = append(st.callbacks, cbs...) }
}

// NewStudy creates an empty study.
func NewStudy(name string, opts ...StudyOption) *Study {
	s := &Study{name: name}
	for _, opt := range opts {
		opt(s)
	}
	if s.sampler == nil {
		s.sampler = NewTPESampler(0)
	}
	if s.pruner == nil {
		s.pruner = NopPruner{}
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("tuning")
	}
	s.logger = s.logger.With(log.StudyKey, name)
	return s
}

// Name returns the study name.
func (s *Study) Name() string { return s.name }

// State returns the lifecycle state.
func (s *Study) State() StudyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trials returns the recorded trials in completion order.
func (s *Study) Trials() []FrozenTrial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FrozenTrial(nil), s.trials...)
}

// BestTrial returns the complete trial with the lowest value. Ties go to the
// lower trial number.
func (s *Study) BestTrial() (FrozenTrial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := -1
	for i, t := range s.trials {
		if t.State != TrialComplete {
			continue
		}
		if best < 0 || t.Value < s.trials[best].Value ||
			(t.Value == s.trials[best].Value && t.Number < s.trials[best].Number) {
			best = i
		}
	}
	if best < 0 {
		return FrozenTrial{}, errors.ErrNoCompletedTrials
	}
	return s.trials[best], nil
}

// CountByState tallies recorded trials per state.
func (s *Study) CountByState() map[TrialState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[TrialState]int)
	for _, t := range s.trials {
		counts[t.State]++
	}
	return counts
}

// Optimize runs trials until NTrials have started or Timeout elapses. A trial
// still running at the deadline is abandoned and not recorded. Objective
// errors and panics mark the trial failed with value +Inf and do not stop
// the study. Optimize returns an error only for invalid options, a
// concurrent Optimize call or cancellation of ctx.
func (s *Study) Optimize(ctx context.Context, objective Objective, opts OptimizeOptions) error {
	if objective == nil {
		return errors.NewValidationError("objective", "must not be nil", nil)
	}
	if opts.NTrials < 0 {
		return errors.NewValidationError("n_trials", "must be >= 0", opts.NTrials)
	}
	if opts.NTrials == 0 && opts.Timeout <= 0 {
		return errors.NewValidationError("n_trials", "either n_trials or timeout is required", opts.NTrials)
	}

	s.mu.Lock()
	if s.state == StudyRunning {
		s.mu.Unlock()
		return errors.Newf("tuning: study %q is already running", s.name)
	}
	s.state = StudyRunning
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.state = StudyCompleted
		s.mu.Unlock()
	}()

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	jobs := max(opts.NJobs, 1)
	var started atomic.Int64
	next := func() bool {
		if runCtx.Err() != nil {
			return false
		}
		return opts.NTrials == 0 || started.Add(1) <= int64(opts.NTrials)
	}

	s.logger.Info("starting hyperparameter search",
		log.OperationKey, log.OperationSearch,
		"n_trials", opts.NTrials,
		"timeout", opts.Timeout,
		"n_jobs", jobs,
	)
	begin := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for next() {
				s.runTrial(runCtx, objective)
			}
		}()
	}
	wg.Wait()

	counts := s.CountByState()
	fields := []any{
		"complete", counts[TrialComplete],
		"pruned", counts[TrialPruned],
		"failed", counts[TrialFail],
		log.DurationMsKey, time.Since(begin).Milliseconds(),
	}
	if best, err := s.BestTrial(); err == nil {
		fields = append(fields, log.TrialKey, best.Number, log.TrialValueKey, best.Value)
	}
	s.logger.Info("hyperparameter search finished", fields...)

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "tuning: optimization interrupted")
	}
	return nil
}

func (s *Study) newTrial() *Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Trial{
		study:        s,
		number:       s.nextNumber,
		start:        time.Now(),
		params:       Params{},
		dists:        map[string]Distribution{},
		intermediate: map[int]float64{},
	}
	s.nextNumber++
	t.space = s.sampler.InferRelativeSearchSpace(s.trials)
	if len(t.space) > 0 {
		t.relative = s.sampler.SampleRelative(s.trials, t.space)
	}
	return t
}

func (s *Study) runTrial(ctx context.Context, objective Objective) {
	trial := s.newTrial()

	var value float64
	err := errors.SafeExecute("tuning.objective", func() error {
		v, err := objective(ctx, trial)
		value = v
		return err
	})

	if ctx.Err() != nil {
		s.logger.Debug("trial abandoned at deadline", log.TrialKey, trial.number)
		return
	}

	state := TrialComplete
	var errMsg string
	switch {
	case errors.Is(err, ErrTrialPruned):
		state = TrialPruned
		value = math.NaN()
	case err != nil:
		state = TrialFail
		value = math.Inf(1)
		errMsg = err.Error()
	case math.IsNaN(value):
		state = TrialFail
		err = errors.NewValueError("tuning.objective", "objective returned NaN")
		value = math.Inf(1)
		errMsg = err.Error()
	}

	frozen := trial.snapshot(state, value, errMsg)
	if state == TrialPruned {
		if step := frozen.lastStep(); step >= 0 {
			frozen.Value = frozen.IntermediateValues[step]
		}
	}
	frozen.DatetimeComplete = time.Now()

	s.mu.Lock()
	s.trials = append(s.trials, frozen)
	s.mu.Unlock()

	switch state {
	case TrialFail:
		s.logger.Warn("trial failed",
			errors.NewTrialError(frozen.Number, err),
			log.TrialKey, frozen.Number,
			log.HyperParamsKey, frozen.Params,
		)
	default:
		s.logger.Info(fmt.Sprintf("trial %s", state),
			log.TrialKey, frozen.Number,
			log.TrialStateKey, state.String(),
			log.TrialValueKey, frozen.Value,
			log.HyperParamsKey, frozen.Params,
			log.DurationMsKey, frozen.Duration().Milliseconds(),
		)
	}

	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	for _, cb := range s.callbacks {
		cb(s, frozen)
	}
}

func (s *Study) sampleIndependent(name string, dist Distribution) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampler.SampleIndependent(s.trials, name, dist)
}

func (s *Study) shouldPrune(trial FrozenTrial) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruner.Prune(s.trials, trial)
}
