package calibration

import (
	"context"
	"errors"
	"testing"

	"github.com/gr-butler/weatherlog/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTemp struct {
	c   float64
	err error
}

func (f fixedTemp) Temperature() (sensors.TemperatureC, error) {
	return sensors.TemperatureC(f.c), f.err
}

type fakeBaro struct {
	hPa      float64
	err      error
	seaLevel float64
}

func (f *fakeBaro) Pressure() (sensors.PressurehPa, error) {
	return sensors.PressurehPa(f.hPa), f.err
}

func (f *fakeBaro) Altitude() (float64, error) {
	return sensors.Altitude(f.hPa, f.seaLevel), f.err
}

func (f *fakeBaro) SetSeaLevel(hPa float64) {
	f.seaLevel = hPa
}

func TestConsensusTemperature(t *testing.T) {
	temp, diverged := ConsensusTemperature(20.0, 21.5)
	assert.Equal(t, 20.75, temp)
	assert.True(t, diverged)

	temp, diverged = ConsensusTemperature(20.0, 20.5)
	assert.Equal(t, 20.25, temp)
	assert.False(t, diverged)

	// exactly one degree apart is not a divergence
	_, diverged = ConsensusTemperature(20.0, 21.0)
	assert.False(t, diverged)
}

func TestSeaLevelCalibration(t *testing.T) {
	assert.Equal(t, 1000.0, SeaLevelCalibration(0, 15, 1000))

	// the station/sea-level ratio falls as the station gets higher
	prev := 1000 / SeaLevelCalibration(0, 15, 1000)
	for elevation := 50.0; elevation <= 3000; elevation += 50 {
		cur := 1000 / SeaLevelCalibration(elevation, 15, 1000)
		assert.Less(t, cur, prev, "elevation %v", elevation)
		prev = cur
	}

	// 370m at 15C is roughly 44hPa of correction
	assert.InDelta(t, 1044.5, SeaLevelCalibration(370, 15, 1000), 1.0)
}

func TestCalibrate(t *testing.T) {
	baro := &fakeBaro{hPa: 970}
	s, err := Calibrate(context.Background(), fixedTemp{c: 20.0}, fixedTemp{c: 21.5}, baro, 370)
	require.NoError(t, err)

	assert.Equal(t, 20.75, s.AmbientTemp)
	assert.True(t, s.Divergent)
	assert.Equal(t, SeaLevelCalibration(370, 20.75, 970), s.SeaLevelPressure)
	assert.Equal(t, s.SeaLevelPressure, baro.seaLevel, "reference is fed back to the barometer")
}

func TestCalibrate_OneThermometerDown(t *testing.T) {
	baro := &fakeBaro{hPa: 970}
	s, err := Calibrate(context.Background(), fixedTemp{err: sensors.ErrSensorRead}, fixedTemp{c: 18}, baro, 100)
	require.NoError(t, err)
	assert.Equal(t, 18.0, s.AmbientTemp)
	assert.False(t, s.Divergent)
}

func TestCalibrate_Failures(t *testing.T) {
	baro := &fakeBaro{hPa: 970}
	_, err := Calibrate(context.Background(), fixedTemp{err: sensors.ErrSensorRead}, nil, baro, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sensors.ErrSensorRead))
	assert.Zero(t, baro.seaLevel)

	baro.err = sensors.ErrSensorRead
	_, err = Calibrate(context.Background(), fixedTemp{c: 18}, fixedTemp{c: 18}, baro, 100)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Calibrate(ctx, fixedTemp{c: 18}, fixedTemp{c: 18}, &fakeBaro{hPa: 1000}, 100)
	assert.True(t, errors.Is(err, context.Canceled))
}
