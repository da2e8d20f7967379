package record

import (
	"database/sql"
	"math"
	"strconv"
	"time"
)

const (
	TimeLayout   = "2006-01-02 15:04:05.000000"
	MinuteLayout = "2006-01-02 15:04:05"
)

// ArchiveRecord is a converted sample, or the per-minute median of converted
// samples. Null fields are readings that do not exist, most importantly the
// rain and wind deltas of the first row of a batch.
type ArchiveRecord struct {
	Time          time.Time
	Minute        time.Time
	RainMM        sql.NullFloat64
	WindSpeedKmh  sql.NullFloat64
	WindDirection sql.NullFloat64
	TemperatureF  sql.NullFloat64
	PressurehPa   sql.NullFloat64
	HumidityPct   sql.NullFloat64
}

// Null wraps v, treating NaN as missing.
func Null(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func formatNull(n sql.NullFloat64) string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Float64, 'f', -1, 64)
}

func (r ArchiveRecord) values() []string {
	return []string{
		formatNull(r.RainMM),
		formatNull(r.WindSpeedKmh),
		formatNull(r.WindDirection),
		formatNull(r.TemperatureF),
		formatNull(r.PressurehPa),
		formatNull(r.HumidityPct),
	}
}

// ArchiveRow is the monthly archive form: sample time, minute, then the values.
func (r ArchiveRecord) ArchiveRow() []string {
	return append([]string{
		r.Time.UTC().Format(TimeLayout),
		r.Minute.UTC().Format(MinuteLayout),
	}, r.values()...)
}

// CurrentRow is the minute snapshot form.
func (r ArchiveRecord) CurrentRow() []string {
	return append([]string{r.Minute.UTC().Format(MinuteLayout)}, r.values()...)
}
