package archive

import (
	"math"
	"time"

	"github.com/gr-butler/weatherlog/calibration"
	"github.com/gr-butler/weatherlog/env"
	"github.com/gr-butler/weatherlog/record"
)

// CToF converts to whole degrees Fahrenheit.
func CToF(c float64) float64 {
	return math.Round(c*9/5 + 32)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// temperature of a sample, the mean of both sensors or whichever one answered
func temperature(s record.RawSample) float64 {
	p, q := s.TempPrimary, s.TempSecondary
	switch {
	case math.IsNaN(p) && math.IsNaN(q):
		return math.NaN()
	case math.IsNaN(p):
		return q
	case math.IsNaN(q):
		return p
	}
	t, _ := calibration.ConsensusTemperature(p, q)
	return t
}

// pulseDelta is the change in a batch running total; a total that went
// backwards cannot be trusted and is null.
func pulseDelta(cur, prev uint64, unit float64) float64 {
	if cur < prev {
		return math.NaN()
	}
	return float64(cur-prev) * unit
}

// Convert turns the ordered samples of one batch into archive records. The
// first record has no predecessor so its rain and wind speed are null.
func Convert(samples []record.RawSample) []record.ArchiveRecord {
	out := make([]record.ArchiveRecord, 0, len(samples))
	for i, s := range samples {
		r := record.ArchiveRecord{
			Time:         s.Time.UTC(),
			Minute:       s.Time.UTC().Truncate(time.Minute),
			TemperatureF: record.Null(CToF(temperature(s))),
			PressurehPa:  record.Null(round2(s.Pressure)),
			HumidityPct:  record.Null(round2(s.Humidity)),
		}
		if i > 0 {
			prev := samples[i-1]
			r.RainMM = record.Null(pulseDelta(s.RainPulses, prev.RainPulses, env.MMPerBucketTip))
			r.WindSpeedKmh = record.Null(pulseDelta(s.WindPulses, prev.WindPulses, env.KmhPerTick))
		}
		if s.WindDirOK {
			r.WindDirection = record.Null(float64(s.WindDirTicks))
		}
		out = append(out, r)
	}
	return out
}
