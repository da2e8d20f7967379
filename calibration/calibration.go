// Package calibration derives the per-session ambient temperature and the
// sea-level pressure reference from the station's sensors.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gr-butler/weatherlog/sensors"
	logger "github.com/sirupsen/logrus"
)

const (
	// the two thermometers should agree to within this many degrees
	DivergenceLimitC = 1.0

	lapseRate = 0.0065 // K/m
	kelvin    = 273.15
	exponent  = -5.257
)

// ErrDivergence is advisory: the thermometers disagree but the session continues.
var ErrDivergence = errors.New("temperature sensors diverge")

// State is computed once per acquisition session and never modified.
type State struct {
	AmbientTemp      float64
	SeaLevelPressure float64
	Divergent        bool
}

// ConsensusTemperature averages two readings and flags them when they differ by
// more than DivergenceLimitC.
func ConsensusTemperature(t1, t2 float64) (float64, bool) {
	return (t1 + t2) / 2, math.Abs(t1-t2) > DivergenceLimitC
}

// SeaLevelCalibration reduces a station pressure to sea level for the given
// elevation (m) and temperature (°C).
//
// https://keisan.casio.com/exec/system/1224575267
func SeaLevelCalibration(elevation, tempC, stationPressure float64) float64 {
	h := lapseRate * elevation
	return stationPressure * math.Pow(1-h/(tempC+h+kelvin), exponent)
}

// Calibrate reads both thermometers and the barometer, computes the session
// state and sets the barometer's sea-level reference. If one thermometer fails
// the other is used alone. It fails when no temperature or no pressure can be
// read; a divergence is only logged.
func Calibrate(ctx context.Context, primary, secondary sensors.Thermometer, baro sensors.Barometer, elevation float64) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	t1, err1 := read(primary)
	t2, err2 := read(secondary)

	s := State{}
	switch {
	case err1 == nil && err2 == nil:
		s.AmbientTemp, s.Divergent = ConsensusTemperature(t1, t2)
		if s.Divergent {
			logger.Warnf("%v, check sensors... primary [%.2f] secondary [%.2f]", ErrDivergence, t1, t2)
		}
	case err1 == nil:
		logger.Warnf("Secondary temperature unavailable, calibrating from primary [%v]", err2)
		s.AmbientTemp = t1
	case err2 == nil:
		logger.Warnf("Primary temperature unavailable, calibrating from secondary [%v]", err1)
		s.AmbientTemp = t2
	default:
		return State{}, fmt.Errorf("no temperature for calibration: %w", errors.Join(err1, err2))
	}

	p, err := baro.Pressure()
	if err != nil {
		return State{}, fmt.Errorf("no pressure for calibration: %w", err)
	}

	s.SeaLevelPressure = SeaLevelCalibration(elevation, s.AmbientTemp, p.Float64())
	baro.SetSeaLevel(s.SeaLevelPressure)
	logger.Infof("Calibrated: ambient [%.2f]C station [%.2f]hPa sea level [%.2f]hPa elevation [%v]m",
		s.AmbientTemp, p.Float64(), s.SeaLevelPressure, elevation)
	return s, nil
}

func read(t sensors.Thermometer) (float64, error) {
	if t == nil {
		return 0, fmt.Errorf("%w: no thermometer", sensors.ErrSensorRead)
	}
	v, err := t.Temperature()
	if err != nil {
		return 0, err
	}
	return v.Float64(), nil
}

// Fallback is used when calibration could not run: no divergence information
// and the standard atmosphere as the sea-level reference.
func Fallback(ambient, seaLevel float64) State {
	return State{AmbientTemp: ambient, SeaLevelPressure: seaLevel}
}
