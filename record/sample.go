// Package record defines the raw samples written to batch files and the
// reduced records written to the archive, along with their encodings.
package record

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ColDatetime      = "DATETIME"
	ColRain          = "RAIN"
	ColWindSpeed     = "WIND_SPEED"
	ColWindDirection = "WIND_DIRECTION"
	ColTempPrimary   = "TEMP_PRIMARY"
	ColTempSecondary = "TEMP_SECONDARY"
	ColPressure      = "PRESSURE"
	ColHumidity      = "HUMIDITY"
	ColCalAltitude   = "CAL_ALTITUDE"
	ColCalSPL        = "CAL_SPL"
)

// BatchHeader is the first row of every batch file.
var BatchHeader = []string{
	ColDatetime, ColRain, ColWindSpeed, ColWindDirection, ColTempPrimary,
	ColTempSecondary, ColPressure, ColHumidity, ColCalAltitude, ColCalSPL,
}

// RawSample is one sampling tick. Sensor fields hold NaN when the sensor could
// not be read that tick. RainPulses and WindPulses are running totals since the
// batch was opened.
type RawSample struct {
	Time                time.Time
	RainPulses          uint64
	WindPulses          uint64
	WindDirTicks        uint32
	WindDirOK           bool
	TempPrimary         float64
	TempSecondary       float64
	Pressure            float64
	Humidity            float64
	Altitude            float64
	SeaLevelCalibration float64
}

// Missing is the in-memory marker for a failed sensor read.
func Missing() float64 {
	return math.NaN()
}

// EpochSeconds renders t as fractional seconds since the epoch, microsecond precision.
func EpochSeconds(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', 6, 64)
}

func parseEpochSeconds(v string) (time.Time, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return time.Time{}, err
	}
	sec := math.Floor(f)
	usec := math.Round((f - sec) * 1e6)
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)).UTC(), nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "nan") {
		return Missing(), nil
	}
	return strconv.ParseFloat(v, 64)
}

func parseCount(v string) (uint64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("not a pulse count [%v]", v)
	}
	return uint64(f), nil
}

// BatchRow renders the sample in BatchHeader column order.
func (s RawSample) BatchRow() []string {
	dir := ""
	if s.WindDirOK {
		dir = strconv.FormatUint(uint64(s.WindDirTicks), 10)
	}
	return []string{
		EpochSeconds(s.Time),
		strconv.FormatUint(s.RainPulses, 10),
		strconv.FormatUint(s.WindPulses, 10),
		dir,
		formatFloat(s.TempPrimary),
		formatFloat(s.TempSecondary),
		formatFloat(s.Pressure),
		formatFloat(s.Humidity),
		formatFloat(s.Altitude),
		formatFloat(s.SeaLevelCalibration),
	}
}

// ReadBatch parses a batch file. Columns are located by header name and the
// samples are returned ordered by timestamp.
func ReadBatch(r io.Reader) ([]RawSample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, h := range BatchHeader {
		if _, ok := cols[h]; !ok {
			return nil, fmt.Errorf("missing column [%v]", h)
		}
	}

	var samples []RawSample
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		s, err := parseBatchRow(cols, row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
	return samples, nil
}

func parseBatchRow(cols map[string]int, row []string) (RawSample, error) {
	s := RawSample{}
	var err error
	field := func(name string) string {
		return row[cols[name]]
	}

	if s.Time, err = parseEpochSeconds(field(ColDatetime)); err != nil {
		return s, fmt.Errorf("%s: %w", ColDatetime, err)
	}
	if s.RainPulses, err = parseCount(field(ColRain)); err != nil {
		return s, fmt.Errorf("%s: %w", ColRain, err)
	}
	if s.WindPulses, err = parseCount(field(ColWindSpeed)); err != nil {
		return s, fmt.Errorf("%s: %w", ColWindSpeed, err)
	}
	if d := strings.TrimSpace(field(ColWindDirection)); d != "" {
		ticks, err := strconv.ParseUint(d, 10, 32)
		if err != nil {
			return s, fmt.Errorf("%s: %w", ColWindDirection, err)
		}
		s.WindDirTicks = uint32(ticks)
		s.WindDirOK = true
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{ColTempPrimary, &s.TempPrimary},
		{ColTempSecondary, &s.TempSecondary},
		{ColPressure, &s.Pressure},
		{ColHumidity, &s.Humidity},
		{ColCalAltitude, &s.Altitude},
		{ColCalSPL, &s.SeaLevelCalibration},
	}
	for _, f := range floats {
		if *f.dst, err = parseFloat(field(f.name)); err != nil {
			return s, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return s, nil
}

// Event is the flat key/value form of a sample published on the event stream.
// Readings that failed this tick are left out.
type Event struct {
	Datetime      float64  `json:"datetime"`
	Rain          uint64   `json:"rain"`
	Wind          uint64   `json:"wind"`
	WindDirection *uint32  `json:"wind_direction,omitempty"`
	TempPrimary   *float64 `json:"temp_primary,omitempty"`
	TempSecondary *float64 `json:"temp_secondary,omitempty"`
	Pressure      *float64 `json:"pressure,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	CalAltitude   *float64 `json:"cal_alt,omitempty"`
	CalSLP        *float64 `json:"cal_slp,omitempty"`
}

func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func (s RawSample) Event() Event {
	e := Event{
		Datetime:      float64(s.Time.UnixMicro()) / 1e6,
		Rain:          s.RainPulses,
		Wind:          s.WindPulses,
		TempPrimary:   optional(s.TempPrimary),
		TempSecondary: optional(s.TempSecondary),
		Pressure:      optional(s.Pressure),
		Humidity:      optional(s.Humidity),
		CalAltitude:   optional(s.Altitude),
		CalSLP:        optional(s.SeaLevelCalibration),
	}
	if s.WindDirOK {
		ticks := s.WindDirTicks
		e.WindDirection = &ticks
	}
	return e
}

// EncodeEvent encodes a sample for the event stream
func EncodeEvent(s RawSample) ([]byte, error) {
	return json.Marshal(s.Event())
}
