package sensors

import (
	"fmt"
	"math"
	"sync"

	"github.com/gr-butler/weatherlog/env"
	logger "github.com/sirupsen/logrus"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/devices/v3/mcp9808"
)

// envSensor is what both periph drivers expose.
type envSensor interface {
	Sense(e *physic.Env) error
}

// Atmosphere is the BME280: primary temperature, pressure and humidity.
type Atmosphere struct {
	dev      envSensor
	lock     sync.Mutex
	seaLevel float64 // hPa
}

// HiResThermometer is the MCP9808, the secondary temperature.
type HiResThermometer struct {
	dev envSensor
}

func NewAtmosphere(bus i2c.Bus) (*Atmosphere, error) {
	logger.Infof("Starting BME280 reader [%x]", env.BME280_I2C)
	bme, err := bmxx80.NewI2C(bus, env.BME280_I2C, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bme280: %w", err)
	}
	return newAtmosphere(bme), nil
}

func newAtmosphere(dev envSensor) *Atmosphere {
	return &Atmosphere{dev: dev, seaLevel: env.StandardSeaLevelhPa}
}

func NewHiResThermometer(bus i2c.Bus) (*HiResThermometer, error) {
	logger.Infof("Starting MCP9808 Temperature Sensor [%x]", env.MCP9808_I2C)
	// Create a new temperature sensor with hig res
	tempSensor, err := mcp9808.New(bus, &mcp9808.Opts{Addr: env.MCP9808_I2C, Res: mcp9808.High})
	if err != nil {
		return nil, fmt.Errorf("failed to open MCP9808 sensor: %w", err)
	}
	return &HiResThermometer{dev: tempSensor}, nil
}

func (a *Atmosphere) sense() (physic.Env, error) {
	em := physic.Env{}
	if a.dev == nil {
		return em, fmt.Errorf("%w: bme280 not initialised", ErrSensorRead)
	}
	if err := a.dev.Sense(&em); err != nil {
		return em, fmt.Errorf("%w: bme280: %v", ErrSensorRead, err)
	}
	return em, nil
}

func (a *Atmosphere) Temperature() (TemperatureC, error) {
	em, err := a.sense()
	if err != nil {
		return 0, err
	}
	return TemperatureC(em.Temperature.Celsius()), nil
}

func (a *Atmosphere) Pressure() (PressurehPa, error) {
	em, err := a.sense()
	if err != nil {
		return 0, err
	}
	return toHPa(em.Pressure), nil
}

func (a *Atmosphere) RelativeHumidity() (RelHumidity, error) {
	em, err := a.sense()
	if err != nil {
		return 0, err
	}
	return RelHumidity(float64(em.Humidity) / float64(physic.PercentRH)), nil
}

// SetSeaLevel sets the local sea-level reference used by Altitude.
func (a *Atmosphere) SetSeaLevel(hPa float64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.seaLevel = hPa
}

func (a *Atmosphere) SeaLevel() float64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.seaLevel
}

func (a *Atmosphere) Altitude() (float64, error) {
	p, err := a.Pressure()
	if err != nil {
		return 0, err
	}
	return Altitude(p.Float64(), a.SeaLevel()), nil
}

func (h *HiResThermometer) Temperature() (TemperatureC, error) {
	hiT := physic.Env{}
	if h.dev == nil {
		return 0, fmt.Errorf("%w: mcp9808 not initialised", ErrSensorRead)
	}
	if err := h.dev.Sense(&hiT); err != nil {
		return 0, fmt.Errorf("%w: mcp9808: %v", ErrSensorRead, err)
	}
	return TemperatureC(hiT.Temperature.Celsius()), nil
}

func toHPa(p physic.Pressure) PressurehPa {
	return PressurehPa(float64(p) / float64(100*physic.Pascal))
}

// Altitude in metres for a station pressure against a sea-level reference, both hPa.
func Altitude(pressure, seaLevel float64) float64 {
	return 44330 * (1 - math.Pow(pressure/seaLevel, 1/5.255))
}
