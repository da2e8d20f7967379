package archive

import (
	"database/sql"
	"sort"
	"time"

	"github.com/gr-butler/weatherlog/record"
)

// Median of the valid values; an even count averages the middle two. No valid
// values gives null.
func Median(vals []sql.NullFloat64) sql.NullFloat64 {
	v := make([]float64, 0, len(vals))
	for _, n := range vals {
		if n.Valid {
			v = append(v, n.Float64)
		}
	}
	if len(v) == 0 {
		return sql.NullFloat64{}
	}
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return sql.NullFloat64{Float64: v[mid], Valid: true}
	}
	return sql.NullFloat64{Float64: (v[mid-1] + v[mid]) / 2, Valid: true}
}

// ByMinute collapses records into one per minute, each field the median of
// that minute's values. Output is in minute order.
func ByMinute(records []record.ArchiveRecord) []record.ArchiveRecord {
	groups := map[time.Time][]record.ArchiveRecord{}
	var minutes []time.Time
	for _, r := range records {
		if _, ok := groups[r.Minute]; !ok {
			minutes = append(minutes, r.Minute)
		}
		groups[r.Minute] = append(groups[r.Minute], r)
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i].Before(minutes[j]) })

	out := make([]record.ArchiveRecord, 0, len(minutes))
	for _, m := range minutes {
		g := groups[m]
		field := func(get func(record.ArchiveRecord) sql.NullFloat64) sql.NullFloat64 {
			vals := make([]sql.NullFloat64, len(g))
			for i, r := range g {
				vals[i] = get(r)
			}
			return Median(vals)
		}
		out = append(out, record.ArchiveRecord{
			Time:          m,
			Minute:        m,
			RainMM:        field(func(r record.ArchiveRecord) sql.NullFloat64 { return r.RainMM }),
			WindSpeedKmh:  field(func(r record.ArchiveRecord) sql.NullFloat64 { return r.WindSpeedKmh }),
			WindDirection: field(func(r record.ArchiveRecord) sql.NullFloat64 { return r.WindDirection }),
			TemperatureF:  field(func(r record.ArchiveRecord) sql.NullFloat64 { return r.TemperatureF }),
			PressurehPa:   field(func(r record.ArchiveRecord) sql.NullFloat64 { return r.PressurehPa }),
			HumidityPct:   field(func(r record.ArchiveRecord) sql.NullFloat64 { return r.HumidityPct }),
		})
	}
	return out
}
