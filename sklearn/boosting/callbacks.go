package boosting

import (
	"math"
	"time"

	"github.com/estateml/estateml/pkg/log"
)

// Names under which per-iteration RMSE values appear in CallbackEnv.EvalResults.
const (
	EvalTrain = "train"
	EvalValid = "valid"
)

// CallbackEnv contains the environment for callbacks
type CallbackEnv struct {
	Ensemble    *Ensemble
	Iteration   int
	BeginTime   time.Time
	EvalResults map[string]float64

	// StopTraining ends boosting after the current iteration.
	StopTraining bool
	// BestIteration, when >= 0, truncates the ensemble to BestIteration+1 trees
	// once training stops.
	BestIteration int
}

// Callback is a function that is called after every boosting iteration.
// A returned error aborts training.
type Callback func(env *CallbackEnv) error

// LogEvaluation logs evaluation results every period iterations.
func LogEvaluation(logger log.Logger, period int) Callback {
	return func(env *CallbackEnv) error {
		if period <= 0 || env.Iteration%period != 0 {
			return nil
		}
		fields := []any{log.IterationKey, env.Iteration}
		if v, ok := env.EvalResults[EvalTrain]; ok {
			fields = append(fields, log.LossKey, v)
		}
		if v, ok := env.EvalResults[EvalValid]; ok {
			fields = append(fields, "valid_rmse", v)
		}
		logger.Debug("boosting iteration", fields...)
		return nil
	}
}

// EarlyStopping stops training when metric has not improved for rounds
// iterations and rolls the ensemble back to the best iteration.
func EarlyStopping(rounds int, metric string) Callback {
	bestScore := math.Inf(1)
	bestIteration := -1
	roundsNoImprove := 0

	return func(env *CallbackEnv) error {
		value, ok := env.EvalResults[metric]
		if !ok {
			return nil
		}
		if value < bestScore {
			bestScore = value
			bestIteration = env.Iteration
			roundsNoImprove = 0
		} else {
			roundsNoImprove++
		}
		env.BestIteration = bestIteration
		if roundsNoImprove >= rounds {
			env.StopTraining = true
		}
		return nil
	}
}
