// Package inference turns single transactions into price quotes using a
// trained artifact.
package inference

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/estateml/estateml/dataset"
	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
	"github.com/estateml/estateml/preprocessing"
	"github.com/estateml/estateml/training"
)

// UnknownName replaces project and developer names the model never saw.
const UnknownName = preprocessing.MissingValue

// Quote is the estimated price of one property.
type Quote struct {
	RunName     string          `json:"run_name"`
	Area        decimal.Decimal `json:"area_sqm"`
	PricePerSqm decimal.Decimal `json:"price_per_sqm"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	// Replaced lists the columns whose value was replaced by UnknownName.
	Replaced []string `json:"replaced,omitempty"`
}

// Predictor scores records with one artifact. It is safe for concurrent use.
type Predictor struct {
	artifact *training.Artifact
	builder  *preprocessing.Builder
	logger   log.Logger
	now      func() time.Time
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithBuilder sets the feature builder. It must use the same lookups and
// temporal options as training.
func WithBuilder(b *preprocessing.Builder) Option { return func(p *Predictor) { p.builder = b } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(p *Predictor) { p.logger = l } }

// WithClock sets the clock used to date records without a date.
func WithClock(now func() time.Time) Option { return func(p *Predictor) { p.now = now } }

// NewPredictor wraps a loaded artifact.
func NewPredictor(a *training.Artifact, opts ...Option) (*Predictor, error) {
	if a == nil || a.Model == nil || a.Encoder == nil {
		return nil, errors.NewNotFittedError("Predictor", "NewPredictor")
	}
	p := &Predictor{artifact: a, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.GetLoggerWithName("inference")
	}
	if p.builder == nil {
		p.builder = preprocessing.NewBuilder(preprocessing.WithLogger(p.logger))
	}
	if err := preprocessing.AssertSameColumns("load", preprocessing.FeatureColumns(), a.FeatureColumns); err != nil {
		return nil, err
	}
	if got := p.builder.Lookups().Versions(); len(a.LookupVersions) > 0 && !maps.Equal(got, a.LookupVersions) {
		p.logger.Warn("lookup tables differ from the ones used in training",
			log.RunNameKey, a.RunName,
			log.LookupVersionKey, got,
			"trained_with", a.LookupVersions,
		)
	}
	return p, nil
}

// Load reads the artifact at path and wraps it.
func Load(path string, opts ...Option) (*Predictor, error) {
	a, err := training.LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewPredictor(a, opts...)
}

// Artifact returns the wrapped artifact.
func (p *Predictor) Artifact() *training.Artifact { return p.artifact }

// Predict quotes one record. A zero Date means today.
func (p *Predictor) Predict(ctx context.Context, r dataset.Record) (Quote, error) {
	quotes, err := p.PredictBatch(ctx, []dataset.Record{r})
	if err != nil {
		return Quote{}, err
	}
	return quotes[0], nil
}

// PredictBatch quotes records in order.
func (p *Predictor) PredictBatch(ctx context.Context, records []dataset.Record) ([]Quote, error) {
	if len(records) == 0 {
		return nil, errors.ErrEmptyData
	}
	prepared := make([]dataset.Record, len(records))
	replaced := make([][]string, len(records))
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.Date.IsZero() {
			r.Date = p.now().UTC().Truncate(24 * time.Hour)
		}
		if err := r.Validate(); err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		prepared[i], replaced[i] = p.replaceUnknown(r)
	}

	var (
		table *preprocessing.Table
		err   error
	)
	if len(prepared) == 1 {
		table, err = p.builder.BuildOne(prepared[0])
	} else {
		table, _, err = p.builder.Build(prepared)
	}
	if err != nil {
		return nil, err
	}
	prices, err := p.artifact.Predict(table)
	if err != nil {
		return nil, err
	}

	quotes := make([]Quote, len(prices))
	for i, price := range prices {
		if err := errors.CheckScalar("inference.Predict", price, i); err != nil {
			return nil, err
		}
		perSqm := decimal.NewFromFloat(price)
		area := decimal.NewFromFloat(prepared[i].Area)
		quotes[i] = Quote{
			RunName:     p.artifact.RunName,
			Area:        area,
			PricePerSqm: perSqm.Round(2),
			TotalPrice:  perSqm.Mul(area).Round(0),
			Replaced:    replaced[i],
		}
	}
	p.logger.Debug("quoted records",
		log.OperationKey, "predict",
		log.SamplesKey, len(quotes),
		log.RunNameKey, p.artifact.RunName,
	)
	return quotes, nil
}

// replaceUnknown maps project and developer names absent from the training
// vocabulary to UnknownName. Blank names stay blank so that the builder
// flags them as missing, as it did during training.
func (p *Predictor) replaceUnknown(r dataset.Record) (dataset.Record, []string) {
	var replaced []string
	fix := func(col string, v *string) {
		name := strings.TrimSpace(*v)
		*v = name
		if name == "" || name == UnknownName {
			return
		}
		if _, ok := p.artifact.Encoder.Vocab[col][name]; !ok {
			p.logger.Info("name not seen in training, using "+UnknownName,
				log.ColumnKey, col,
				"value", name,
			)
			*v = UnknownName
			replaced = append(replaced, col)
		}
	}
	fix(preprocessing.ColProjectName, &r.ProjectName)
	fix(preprocessing.ColMasterProject, &r.MasterProject)
	return r, replaced
}
