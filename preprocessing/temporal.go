package preprocessing

import (
	"time"

	"github.com/estateml/estateml/pkg/errors"
)

// Season is a northern-hemisphere season.
type Season string

const (
	Winter Season = "Winter"
	Spring Season = "Spring"
	Summer Season = "Summer"
	Autumn Season = "Autumn"
)

var monthToSeason = [13]Season{
	time.December: Winter, time.January: Winter, time.February: Winter,
	time.March: Spring, time.April: Spring, time.May: Spring,
	time.June: Summer, time.July: Summer, time.August: Summer,
	time.September: Autumn, time.October: Autumn, time.November: Autumn,
}

// SeasonOf returns the season of month m.
func SeasonOf(m time.Month) Season {
	return monthToSeason[m]
}

// TemporalFeatures are the calendar features derived from one date.
type TemporalFeatures struct {
	Year           int
	Month          int
	Day            int
	Quarter        int
	DayOfWeek      int // 0=Monday
	WeekOfYear     int // ISO 8601
	DayOfYear      int
	IsWeekend      bool
	IsMonthStart   bool
	IsMonthEnd     bool
	IsQuarterStart bool
	IsQuarterEnd   bool
	IsYearStart    bool
	IsYearEnd      bool
	WeekOfMonth    int
	Season         Season
}

type temporalConfig struct {
	legacyWeekend bool
}

// TemporalOption changes how ExpandDate derives features.
type TemporalOption func(*temporalConfig)

// WithLegacyWeekendFlag restores the old weekend flag, set when the day of
// year is 5 or 6. Use it only to reproduce features for artifacts trained
// with that definition.
func WithLegacyWeekendFlag() TemporalOption {
	return func(c *temporalConfig) { c.legacyWeekend = true }
}

// ExpandDate computes the calendar features of d.
func ExpandDate(d time.Time, opts ...TemporalOption) TemporalFeatures {
	var cfg temporalConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	year, month, day := d.Date()
	_, isoWeek := d.ISOWeek()
	dow := (int(d.Weekday()) + 6) % 7
	doy := d.YearDay()
	next := d.AddDate(0, 0, 1)
	monthEnd := next.Month() != month
	quarter := (int(month)-1)/3 + 1

	f := TemporalFeatures{
		Year:           year,
		Month:          int(month),
		Day:            day,
		Quarter:        quarter,
		DayOfWeek:      dow,
		WeekOfYear:     isoWeek,
		DayOfYear:      doy,
		IsMonthStart:   day == 1,
		IsMonthEnd:     monthEnd,
		IsQuarterStart: day == 1 && (int(month)-1)%3 == 0,
		IsQuarterEnd:   monthEnd && int(month)%3 == 0,
		IsYearStart:    day == 1 && month == time.January,
		IsYearEnd:      day == 31 && month == time.December,
		WeekOfMonth:    (day-1)/7 + 1,
		Season:         SeasonOf(month),
	}
	if cfg.legacyWeekend {
		f.IsWeekend = doy == 5 || doy == 6
	} else {
		f.IsWeekend = dow == 5 || dow == 6
	}
	return f
}

// Temporal column names, in table order.
const (
	ColYear           = "year"
	ColMonth          = "month"
	ColDay            = "day"
	ColQuarter        = "quarter"
	ColDayOfWeek      = "dayofweek"
	ColWeekOfYear     = "weekofyear"
	ColDayOfYear      = "dayofyear"
	ColIsWeekend      = "isweekend"
	ColIsMonthStart   = "ismonthstart"
	ColIsMonthEnd     = "ismonthend"
	ColIsQuarterStart = "isquarterstart"
	ColIsQuarterEnd   = "isquarterend"
	ColIsYearStart    = "isyearstart"
	ColIsYearEnd      = "isyearend"
	ColWeekOfMonth    = "weekofmonth"
	ColSeason         = "season"
)

// TemporalColumns are the columns AddTemporalFeatures adds.
var TemporalColumns = []string{
	ColYear, ColMonth, ColDay, ColQuarter, ColDayOfWeek, ColWeekOfYear, ColDayOfYear,
	ColIsWeekend, ColIsMonthStart, ColIsMonthEnd, ColIsQuarterStart, ColIsQuarterEnd,
	ColIsYearStart, ColIsYearEnd, ColWeekOfMonth, ColSeason,
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// AddTemporalFeatures adds one column per calendar feature of dates to t.
func AddTemporalFeatures(t *Table, dates []time.Time, opts ...TemporalOption) error {
	if len(dates) != t.Len() {
		return errors.NewDimensionError("AddTemporalFeatures", t.Len(), len(dates), 0)
	}

	numeric := make(map[string][]float64, len(TemporalColumns)-1)
	for _, name := range TemporalColumns[:len(TemporalColumns)-1] {
		numeric[name] = make([]float64, len(dates))
	}
	seasons := make([]string, len(dates))

	for i, d := range dates {
		f := ExpandDate(d, opts...)
		numeric[ColYear][i] = float64(f.Year)
		numeric[ColMonth][i] = float64(f.Month)
		numeric[ColDay][i] = float64(f.Day)
		numeric[ColQuarter][i] = float64(f.Quarter)
		numeric[ColDayOfWeek][i] = float64(f.DayOfWeek)
		numeric[ColWeekOfYear][i] = float64(f.WeekOfYear)
		numeric[ColDayOfYear][i] = float64(f.DayOfYear)
		numeric[ColIsWeekend][i] = b2f(f.IsWeekend)
		numeric[ColIsMonthStart][i] = b2f(f.IsMonthStart)
		numeric[ColIsMonthEnd][i] = b2f(f.IsMonthEnd)
		numeric[ColIsQuarterStart][i] = b2f(f.IsQuarterStart)
		numeric[ColIsQuarterEnd][i] = b2f(f.IsQuarterEnd)
		numeric[ColIsYearStart][i] = b2f(f.IsYearStart)
		numeric[ColIsYearEnd][i] = b2f(f.IsYearEnd)
		numeric[ColWeekOfMonth][i] = float64(f.WeekOfMonth)
		seasons[i] = string(f.Season)
	}

	for _, name := range TemporalColumns[:len(TemporalColumns)-1] {
		if err := t.SetNumeric(name, numeric[name]); err != nil {
			return err
		}
	}
	return t.SetCategorical(ColSeason, seasons, make([]bool, len(seasons)))
}
