package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/estateml/estateml/pkg/errors"
	"github.com/estateml/estateml/pkg/log"
)

// Columns read from the transaction export.
const (
	ColTransactionGroup = "trans_group_en"
	ColProcedureName    = "procedure_name_en"
	ColDate             = "instance_date"
	ColRegistrationType = "reg_type_en"
	ColProjectName      = "project_name_en"
	ColMasterProject    = "master_project_en"
	ColArea             = "procedure_area"
	ColAreaName         = "area_name_en"
	ColPricePerSqm      = "meter_sale_price"
)

var requiredColumns = []string{
	ColProcedureName, ColDate, ColRegistrationType,
	ColProjectName, ColMasterProject, ColArea, ColAreaName,
}

// DateLayouts are tried in order when parsing instance_date.
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02-01-2006",
	"02-01-2006 15:04",
	"02-01-2006 15:04:05",
	"02/01/2006",
}

// ParseDate parses a transaction date using DateLayouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognised date %q", s)
}

// ReadStats summarises a ReadCSV call.
type ReadStats struct {
	Rows    int
	Skipped int
}

type readConfig struct {
	strict   bool
	training bool
	logger   log.Logger
}

// ReadOption configures ReadCSV.
type ReadOption func(*readConfig)

// Strict makes ReadCSV fail on the first invalid row instead of skipping it.
func Strict() ReadOption {
	return func(c *readConfig) { c.strict = true }
}

// ForTraining rejects rows without a positive meter_sale_price.
func ForTraining() ReadOption {
	return func(c *readConfig) { c.training = true }
}

// WithReadLogger sets the logger used for skipped rows.
func WithReadLogger(l log.Logger) ReadOption {
	return func(c *readConfig) { c.logger = l }
}

// ReadCSV reads transaction records from r. Columns are matched by header
// name so the export may contain extra columns in any order.
func ReadCSV(r io.Reader, opts ...ReadOption) ([]Record, ReadStats, error) {
	cfg := readConfig{logger: log.GetLoggerWithName("dataset")}
	for _, opt := range opts {
		opt(&cfg)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ReadStats{}, errors.ErrEmptyData
	}
	if err != nil {
		return nil, ReadStats{}, errors.Wrap(err, "read header")
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, ReadStats{}, errors.NewValidationError("header", "missing column", col)
		}
	}

	var (
		records []Record
		stats   ReadStats
		line    = 1
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, stats, errors.Wrapf(err, "read line %d", line)
		}
		stats.Rows++

		rec, err := parseRow(row, index)
		if err == nil {
			if cfg.training {
				err = rec.ValidateForTraining()
			} else {
				err = rec.Validate()
			}
		}
		if err != nil {
			if cfg.strict {
				return nil, stats, errors.Wrapf(err, "line %d", line)
			}
			stats.Skipped++
			errors.Warn(errors.NewSkippedRecordWarning(line, err.Error()))
			continue
		}
		records = append(records, rec)
	}

	if stats.Skipped > 0 {
		cfg.logger.Warn("skipped invalid rows", "skipped", stats.Skipped, log.SamplesKey, stats.Rows)
	}
	if len(records) == 0 {
		return nil, stats, errors.ErrEmptyData
	}
	return records, stats, nil
}

// ReadCSVFile opens path and calls ReadCSV.
func ReadCSVFile(path string, opts ...ReadOption) ([]Record, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ReadStats{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ReadCSV(f, opts...)
}

func parseRow(row []string, index map[string]int) (Record, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec Record
	rec.TransactionGroup = get(ColTransactionGroup)
	rec.ProcedureName = get(ColProcedureName)
	rec.RegistrationType = get(ColRegistrationType)
	rec.ProjectName = get(ColProjectName)
	rec.MasterProject = get(ColMasterProject)
	rec.AreaName = get(ColAreaName)

	date, err := ParseDate(get(ColDate))
	if err != nil {
		return rec, err
	}
	rec.Date = date

	if rec.Area, err = parseFloat(get(ColArea)); err != nil {
		return rec, errors.Wrap(err, ColArea)
	}
	if s := get(ColPricePerSqm); s != "" {
		if rec.PricePerSqm, err = parseFloat(s); err != nil {
			return rec, errors.Wrap(err, ColPricePerSqm)
		}
	}
	return rec, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}
