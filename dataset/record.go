// Package dataset reads raw property transaction records and splits them
// chronologically for training.
package dataset

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/estateml/estateml/pkg/errors"
)

// Record is one raw Dubai property transaction. Empty ProjectName and
// MasterProject mean the value is missing.
type Record struct {
	TransactionGroup string    `csv:"trans_group_en"`
	ProcedureName    string    `csv:"procedure_name_en" validate:"required"`
	RegistrationType string    `csv:"reg_type_en" validate:"required"`
	Date             time.Time `csv:"instance_date" validate:"required"`
	ProjectName      string    `csv:"project_name_en"`
	MasterProject    string    `csv:"master_project_en"`
	Area             float64   `csv:"procedure_area" validate:"gt=0"`
	AreaName         string    `csv:"area_name_en" validate:"required"`
	PricePerSqm      float64   `csv:"meter_sale_price" validate:"gte=0"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func recordValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("csv"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the fields required to build features. The target may be zero.
func (r Record) Validate() error {
	if err := recordValidator().Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewValidationError(fe.Field(), "failed on the '"+fe.Tag()+"' rule", fe.Value())
		}
		return errors.Wrap(err, "record validation")
	}
	return nil
}

// ValidateForTraining additionally requires a positive target.
func (r Record) ValidateForTraining() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.PricePerSqm <= 0 {
		return errors.NewValidationError("meter_sale_price", "must be > 0 for training", r.PricePerSqm)
	}
	return nil
}

// Targets returns the price per square metre of every record, in order.
func Targets(records []Record) []float64 {
	y := make([]float64, len(records))
	for i, r := range records {
		y[i] = r.PricePerSqm
	}
	return y
}
