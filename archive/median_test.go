package archive

import (
	"database/sql"
	"testing"
	"time"

	"github.com/gr-butler/weatherlog/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nulls(vals ...float64) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, len(vals))
	for i, v := range vals {
		out[i] = record.Null(v)
	}
	return out
}

func TestMedian(t *testing.T) {
	assert.Equal(t, record.Null(20), Median(nulls(30, 10, 20)))
	assert.Equal(t, record.Null(25), Median(nulls(40, 10, 30, 20)))
	assert.Equal(t, record.Null(7), Median(nulls(7)))
	// missing values do not count
	assert.Equal(t, record.Null(15), Median(append(nulls(10, 20), sql.NullFloat64{})))
	assert.False(t, Median([]sql.NullFloat64{{}, {}}).Valid)
	assert.False(t, Median(nil).Valid)
}

func TestByMinute(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rec := func(offset time.Duration, rain sql.NullFloat64, temp float64) record.ArchiveRecord {
		at := base.Add(offset)
		return record.ArchiveRecord{
			Time:         at,
			Minute:       at.Truncate(time.Minute),
			RainMM:       rain,
			TemperatureF: record.Null(temp),
		}
	}
	out := ByMinute([]record.ArchiveRecord{
		rec(61*time.Second, record.Null(0), 60),
		rec(0, sql.NullFloat64{}, 58),
		rec(30*time.Second, record.Null(0.2794), 59),
	})
	require.Len(t, out, 2)

	assert.Equal(t, base, out[0].Minute)
	assert.Equal(t, base, out[0].Time)
	assert.Equal(t, record.Null(0.2794), out[0].RainMM)
	assert.Equal(t, record.Null(58.5), out[0].TemperatureF)
	assert.False(t, out[0].HumidityPct.Valid)

	assert.Equal(t, base.Add(time.Minute), out[1].Minute)
	assert.Equal(t, record.Null(60), out[1].TemperatureF)
}
