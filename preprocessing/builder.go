// Package preprocessing turns raw transaction records into the ordered
// feature table consumed by the price model.
package preprocessing

import (
	"time"

	"github.com/estateml/estateml/dataset"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// Raw column names carried into the feature table unchanged.
const (
	ColTransactionGroup = "trans_group_en"
	ColRegistrationType = "reg_type_en"
	ColProjectName      = "project_name_en"
	ColMasterProject    = "master_project_en"
	ColArea             = "procedure_area"
)

// MissingFlagColumns are the columns that receive a missingness indicator.
var MissingFlagColumns = []string{ColProjectName, ColMasterProject}

// FeatureSchema is the fixed column order of every feature table. Training
// and inference must agree on it exactly.
var FeatureSchema = Schema{
	{ColTransactionGroup, Categorical},
	{ColRegistrationType, Categorical},
	{ColProjectName, Categorical},
	{ColMasterProject, Categorical},
	{ColArea, Numeric},
	{ColProcedureNameGrouped, Categorical},
	{ColDistrict, Categorical},
	{ColYear, Numeric},
	{ColMonth, Numeric},
	{ColDay, Numeric},
	{ColQuarter, Numeric},
	{ColDayOfWeek, Numeric},
	{ColWeekOfYear, Numeric},
	{ColDayOfYear, Numeric},
	{ColIsWeekend, Numeric},
	{ColIsMonthStart, Numeric},
	{ColIsMonthEnd, Numeric},
	{ColIsQuarterStart, Numeric},
	{ColIsQuarterEnd, Numeric},
	{ColIsYearStart, Numeric},
	{ColIsYearEnd, Numeric},
	{ColWeekOfMonth, Numeric},
	{ColSeason, Categorical},
	{MissingFlagName(ColProjectName), Numeric},
	{MissingFlagName(ColMasterProject), Numeric},
}

// FeatureColumns returns the names of FeatureSchema in order.
func FeatureColumns() []string {
	return FeatureSchema.Names()
}

// AssertSameColumns fails with a FeatureOrderError when got differs from
// expected in length, names or order.
func AssertSameColumns(phase string, expected, got []string) error {
	n := min(len(expected), len(got))
	for i := 0; i < n; i++ {
		if expected[i] != got[i] {
			return errors.NewFeatureOrderError(phase, expected, got, i)
		}
	}
	if len(expected) != len(got) {
		return errors.NewFeatureOrderError(phase, expected, got, n)
	}
	return nil
}

// BuildStats reports what the builder had to repair.
type BuildStats struct {
	Rows               int            `json:"rows"`
	UnmappedProcedures int            `json:"unmapped_procedures"`
	UnmappedAreas      int            `json:"unmapped_areas"`
	Filled             map[string]int `json:"filled"`
}

// Builder runs the fixed pipeline: normalizer, temporal features,
// missingness flags, then projection onto FeatureSchema.
type Builder struct {
	lookups  Lookups
	temporal []TemporalOption
	logger   log.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLookups replaces the embedded lookup tables.
func WithLookups(l Lookups) BuilderOption {
	return func(b *Builder) { b.lookups = l }
}

// WithTemporalOptions passes options to ExpandDate.
func WithTemporalOptions(opts ...TemporalOption) BuilderOption {
	return func(b *Builder) { b.temporal = append(b.temporal, opts...) }
}

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(l log.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder using the embedded lookup tables by default.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		lookups: DefaultLookups(),
		logger:  log.GetLoggerWithName("preprocessing"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Lookups returns the tables in use.
func (b *Builder) Lookups() Lookups { return b.lookups }

// Build converts records into a feature table with columns FeatureColumns().
func (b *Builder) Build(records []dataset.Record) (*Table, BuildStats, error) {
	if len(records) == 0 {
		return nil, BuildStats{}, errors.NewValueError("Builder.Build", "no records")
	}
	stats := BuildStats{Rows: len(records)}

	n := len(records)
	var (
		group    = make([]string, n)
		proc     = make([]string, n)
		reg      = make([]string, n)
		project  = make([]string, n)
		master   = make([]string, n)
		areaName = make([]string, n)
		area     = make([]float64, n)
		dates    = make([]time.Time, n)
	)
	for i, r := range records {
		group[i] = r.TransactionGroup
		if group[i] == "" {
			group[i] = MissingValue
		}
		proc[i] = r.ProcedureName
		reg[i] = r.RegistrationType
		project[i] = r.ProjectName
		master[i] = r.MasterProject
		areaName[i] = r.AreaName
		area[i] = r.Area
		dates[i] = r.Date
	}

	t := NewTable(n)
	steps := []error{
		t.SetCategorical(ColTransactionGroup, group, nil),
		t.SetCategorical(ColProcedureName, proc, nil),
		t.SetCategorical(ColRegistrationType, reg, nil),
		t.SetCategorical(ColProjectName, project, nil),
		t.SetCategorical(ColMasterProject, master, nil),
		t.SetNumeric(ColArea, area),
		t.SetCategorical(ColAreaName, areaName, nil),
	}
	for _, err := range steps {
		if err != nil {
			return nil, stats, err
		}
	}

	var err error
	if stats.UnmappedProcedures, err = CategorizeTransactions(t, b.lookups.Procedures); err != nil {
		return nil, stats, err
	}
	if stats.UnmappedAreas, err = AddDistrict(t, b.lookups.Districts); err != nil {
		return nil, stats, err
	}
	if stats.UnmappedAreas > 0 {
		errors.Warn(errors.NewUnmappedCategoryWarning(ColDistrict, b.lookups.Districts.Fallback, stats.UnmappedAreas))
	}
	if stats.UnmappedProcedures > 0 {
		b.logger.Debug("unmapped procedure names assigned fallback group",
			log.ColumnKey, ColProcedureNameGrouped,
			log.CountKey, stats.UnmappedProcedures,
		)
	}

	if err := AddTemporalFeatures(t, dates, b.temporal...); err != nil {
		return nil, stats, err
	}
	if stats.Filled, err = FlagMissing(t, MissingFlagColumns); err != nil {
		return nil, stats, err
	}

	out, err := t.Select(FeatureColumns())
	if err != nil {
		return nil, stats, err
	}
	b.logger.Debug("feature table built",
		log.OperationKey, log.OperationBuild,
		log.SamplesKey, out.Len(),
		log.FeaturesKey, len(out.Columns()),
	)
	return out, stats, nil
}

// BuildOne builds a single-row table by running Build on a one-record slice,
// so its columns and values match a batch build exactly.
func (b *Builder) BuildOne(r dataset.Record) (*Table, error) {
	t, _, err := b.Build([]dataset.Record{r})
	return t, err
}
