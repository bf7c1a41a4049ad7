package tuning

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/estateml/estateml/pkg/errors"
)

// Params maps hyperparameter names to the values a trial drew for them.
// Float distributions yield float64, integer distributions int and
// categorical distributions one of their choices.
type Params map[string]interface{}

// Distribution describes the domain of one hyperparameter. Samplers work on
// an internal float64 representation: the value itself for numeric
// distributions and the choice index for categorical ones.
type Distribution interface {
	// Validate reports an invalid domain.
	Validate() error
	// ToInternal converts an external value to its internal representation.
	ToInternal(v interface{}) (float64, error)
	// ToExternal converts an internal value back.
	ToExternal(x float64) interface{}
	// Contains reports whether the internal value lies in the domain.
	Contains(x float64) bool
	// Single reports whether the domain has exactly one value.
	Single() bool
}

// FloatDistribution is a continuous range [Low, High], optionally sampled on
// a log scale.
type FloatDistribution struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
	Log  bool    `json:"log"`
}

func (d FloatDistribution) Validate() error {
	if math.IsNaN(d.Low) || math.IsNaN(d.High) || d.Low > d.High {
		return errors.NewValidationError("distribution", "low must be <= high", fmt.Sprintf("[%v, %v]", d.Low, d.High))
	}
	if d.Log && d.Low <= 0 {
		return errors.NewValidationError("distribution", "log scale requires low > 0", d.Low)
	}
	return nil
}

func (d FloatDistribution) ToInternal(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	}
	return 0, errors.NewValueError("FloatDistribution", fmt.Sprintf("unsupported value %v (%T)", v, v))
}

func (d FloatDistribution) ToExternal(x float64) interface{} { return x }

func (d FloatDistribution) Contains(x float64) bool { return x >= d.Low && x <= d.High }

func (d FloatDistribution) Single() bool { return d.Low == d.High }

// IntDistribution is an integer range [Low, High].
type IntDistribution struct {
	Low  int  `json:"low"`
	High int  `json:"high"`
	Log  bool `json:"log"`
}

func (d IntDistribution) Validate() error {
	if d.Low > d.High {
		return errors.NewValidationError("distribution", "low must be <= high", fmt.Sprintf("[%d, %d]", d.Low, d.High))
	}
	if d.Log && d.Low < 1 {
		return errors.NewValidationError("distribution", "log scale requires low >= 1", d.Low)
	}
	return nil
}

func (d IntDistribution) ToInternal(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float64:
		if x == math.Trunc(x) {
			return x, nil
		}
	}
	return 0, errors.NewValueError("IntDistribution", fmt.Sprintf("unsupported value %v (%T)", v, v))
}

func (d IntDistribution) ToExternal(x float64) interface{} { return int(math.Round(x)) }

func (d IntDistribution) Contains(x float64) bool {
	return x == math.Trunc(x) && x >= float64(d.Low) && x <= float64(d.High)
}

func (d IntDistribution) Single() bool { return d.Low == d.High }

// CategoricalDistribution picks one of a fixed list of choices.
type CategoricalDistribution struct {
	Choices []interface{} `json:"choices"`
}

func (d CategoricalDistribution) Validate() error {
	if len(d.Choices) == 0 {
		return errors.NewValidationError("distribution", "at least one choice is required", d.Choices)
	}
	return nil
}

func (d CategoricalDistribution) ToInternal(v interface{}) (float64, error) {
	for i, c := range d.Choices {
		if reflect.DeepEqual(c, v) {
			return float64(i), nil
		}
	}
	return 0, errors.NewValueError("CategoricalDistribution", fmt.Sprintf("%v is not one of %v", v, d.Choices))
}

func (d CategoricalDistribution) ToExternal(x float64) interface{} { return d.Choices[int(x)] }

func (d CategoricalDistribution) Contains(x float64) bool {
	return x == math.Trunc(x) && x >= 0 && int(x) < len(d.Choices)
}

func (d CategoricalDistribution) Single() bool { return len(d.Choices) == 1 }

// SearchSpace is a set of named distributions.
type SearchSpace map[string]Distribution

// Names returns the parameter names in sorted order.
func (s SearchSpace) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// sameDistribution compares two distributions by value.
func sameDistribution(a, b Distribution) bool {
	return reflect.DeepEqual(a, b)
}

// intersectionSearchSpace returns the distributions shared by every
// complete trial, skipping single-valued domains.
func intersectionSearchSpace(trials []FrozenTrial) SearchSpace {
	var space SearchSpace
	for _, t := range trials {
		if t.State != TrialComplete {
			continue
		}
		if space == nil {
			space = SearchSpace{}
			for name, d := range t.Distributions {
				space[name] = d
			}
			continue
		}
		for name, d := range space {
			if other, ok := t.Distributions[name]; !ok || !sameDistribution(d, other) {
				delete(space, name)
			}
		}
	}
	for name, d := range space {
		if d.Single() {
			delete(space, name)
		}
	}
	return space
}
