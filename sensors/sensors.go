package sensors

import (
	"errors"
	"time"
)

/*
 * Sensors is responsible for reading the sensors and converting sensor output to real values.
 * Every reader may fail on its own; callers treat a failure as a missing value for that tick.
 */

var (
	// ErrSensorRead marks a reading that could not be taken this tick.
	ErrSensorRead = errors.New("sensor read failed")
	// ErrTimerTimeout is returned when the vane capacitor never charged within the timeout.
	ErrTimerTimeout = errors.New("capacitive timer timed out")
)

type PressurehPa float64
type RelHumidity float64
type TemperatureC float64

func (p PressurehPa) Float64() float64 {
	return float64(p)
}

func (r RelHumidity) Float64() float64 {
	return float64(r)
}

func (t TemperatureC) Float64() float64 {
	return float64(t)
}

type Thermometer interface {
	Temperature() (TemperatureC, error)
}

// Barometer reads station pressure. Altitude is only meaningful once a
// sea-level reference has been set with SetSeaLevel.
type Barometer interface {
	Pressure() (PressurehPa, error)
	Altitude() (float64, error)
	SetSeaLevel(hPa float64)
}

type Hygrometer interface {
	RelativeHumidity() (RelHumidity, error)
}

// DirectionSensor returns the vane tick count, a resistance proxy.
type DirectionSensor interface {
	Measure(timeout time.Duration) (uint32, error)
}
