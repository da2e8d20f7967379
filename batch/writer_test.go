package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gr-butler/weatherlog/calibration"
	"github.com/gr-butler/weatherlog/counter"
	"github.com/gr-butler/weatherlog/record"
	"github.com/gr-butler/weatherlog/sensors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	lock sync.Mutex
	t    time.Time
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.t = c.t.Add(d)
	return nil
}

type fakeThermometer struct {
	c   float64
	err error
}

func (f fakeThermometer) Temperature() (sensors.TemperatureC, error) {
	return sensors.TemperatureC(f.c), f.err
}

type fakeBarometer struct {
	p   float64
	err error
}

func (f *fakeBarometer) Pressure() (sensors.PressurehPa, error) {
	return sensors.PressurehPa(f.p), f.err
}

func (f *fakeBarometer) Altitude() (float64, error) {
	return 370, f.err
}

func (f *fakeBarometer) SetSeaLevel(float64) {}

type fakeHygrometer struct {
	rh float64
}

func (f fakeHygrometer) RelativeHumidity() (sensors.RelHumidity, error) {
	return sensors.RelHumidity(f.rh), nil
}

type fakeVane struct {
	ticks uint32
	err   error
}

func (f fakeVane) Measure(time.Duration) (uint32, error) {
	return f.ticks, f.err
}

type sinkFunc func(ctx context.Context, s record.RawSample) error

func (f sinkFunc) Publish(ctx context.Context, s record.RawSample) error {
	return f(ctx, s)
}

func (f sinkFunc) Close() error {
	return nil
}

func testSensors() Sensors {
	return Sensors{
		Primary:   fakeThermometer{c: 12.5},
		Secondary: fakeThermometer{c: 12.75},
		Baro:      &fakeBarometer{p: 975.25},
		Hygro:     fakeHygrometer{rh: 88},
		Vane:      fakeVane{ticks: 420},
		Rain:      counter.New("rain"),
		Wind:      counter.New("wind"),
	}
}

func newTestWriter(t *testing.T, cfg Config, s Sensors, start time.Time) (*Writer, *fakeClock) {
	dir := t.TempDir()
	if cfg.LiveDir == "" {
		cfg.LiveDir = filepath.Join(dir, "live")
	}
	cfg.PendingDir = filepath.Join(dir, "pending")
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	w, err := NewWriter(cfg, s, nil)
	require.NoError(t, err)
	clock := &fakeClock{t: start}
	w.now = clock.Now
	w.sleep = clock.Sleep
	return w, clock
}

func readPending(t *testing.T, path string) []record.RawSample {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	samples, err := record.ReadBatch(f)
	require.NoError(t, err)
	return samples
}

var cal = calibration.State{AmbientTemp: 12.6, SeaLevelPressure: 1020.4}

func TestWriter_RotatesOnMaxRows(t *testing.T) {
	s := testSensors()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	w, _ := newTestWriter(t, Config{MaxRows: 3}, s, start)
	// one rain tip lands between each tick
	w.OnTick(s.Rain.Increment)

	pending, err := w.RunBatch(context.Background(), cal)
	require.NoError(t, err)
	assert.Equal(t, "20240601-100000.csv", filepath.Base(pending))
	assert.Equal(t, Idle, w.State())

	live, err := os.ReadDir(w.cfg.LiveDir)
	require.NoError(t, err)
	assert.Empty(t, live)

	samples := readPending(t, pending)
	require.Len(t, samples, 3)
	for i, smp := range samples {
		assert.Equal(t, start.Add(time.Duration(i)*time.Second), smp.Time)
		assert.Equal(t, uint64(i), smp.RainPulses)
		assert.Equal(t, uint32(420), smp.WindDirTicks)
		assert.Equal(t, 12.75, smp.TempSecondary)
		assert.Equal(t, 975.25, smp.Pressure)
		assert.Equal(t, 1020.4, smp.SeaLevelCalibration)
	}
	// pulses are consumed by the writer
	assert.Equal(t, uint64(1), s.Rain.Load())
}

func TestWriter_RotatesAtCutoff(t *testing.T) {
	cutoff, err := ParseCutoff("05:59")
	require.NoError(t, err)
	start := time.Date(2024, 6, 1, 5, 58, 58, 0, time.UTC)
	w, clock := newTestWriter(t, Config{Cutoff: cutoff}, testSensors(), start)

	pending, err := w.RunBatch(context.Background(), cal)
	require.NoError(t, err)
	assert.Equal(t, "20240601-055858.csv", filepath.Base(pending))
	assert.Len(t, readPending(t, pending), 2)
	assert.Equal(t, time.Date(2024, 6, 1, 5, 59, 0, 0, time.UTC), clock.Now())
}

func TestWriter_SensorFailuresOnlyBlankTheirColumn(t *testing.T) {
	s := testSensors()
	s.Primary = fakeThermometer{err: fmt.Errorf("%w: i2c nack", sensors.ErrSensorRead)}
	s.Vane = fakeVane{ticks: 9000, err: sensors.ErrTimerTimeout}
	s.Baro = &fakeBarometer{err: sensors.ErrSensorRead}
	w, _ := newTestWriter(t, Config{MaxRows: 1}, s, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))

	pending, err := w.RunBatch(context.Background(), cal)
	require.NoError(t, err)
	samples := readPending(t, pending)
	require.Len(t, samples, 1)

	smp := samples[0]
	assert.True(t, math.IsNaN(smp.TempPrimary))
	assert.True(t, math.IsNaN(smp.Pressure))
	assert.True(t, math.IsNaN(smp.Altitude))
	assert.False(t, smp.WindDirOK)
	assert.Equal(t, 12.75, smp.TempSecondary)
	assert.Equal(t, float64(88), smp.Humidity)
}

type slowVane struct {
	clock *fakeClock
}

func (v slowVane) Measure(time.Duration) (uint32, error) {
	v.clock.lock.Lock()
	defer v.clock.lock.Unlock()
	v.clock.t = v.clock.t.Add(1500 * time.Millisecond)
	return 10, nil
}

func TestWriter_CountsDrift(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	w, clock := newTestWriter(t, Config{MaxRows: 3}, testSensors(), start)
	w.sensors.Vane = slowVane{clock: clock}
	before := testutil.ToFloat64(Prom_sampleDrift)

	pending, err := w.RunBatch(context.Background(), cal)
	require.NoError(t, err)
	samples := readPending(t, pending)
	require.Len(t, samples, 3)
	// overrunning ticks start straight away
	assert.Equal(t, start.Add(1500*time.Millisecond), samples[1].Time)
	assert.Equal(t, 2.0, testutil.ToFloat64(Prom_sampleDrift)-before)
}

func TestWriter_CancelRotatesPartialBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rows := 0
	var states []State
	w, _ := newTestWriter(t, Config{MaxRows: 100}, testSensors(), time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	w.sink = sinkFunc(func(ctx context.Context, s record.RawSample) error {
		rows++
		if rows == 2 {
			cancel()
		}
		return errors.New("sink errors are ignored")
	})
	w.OnTick(func() { states = append(states, w.State()) })

	pending, err := w.RunBatch(ctx, cal)
	require.NoError(t, err)
	assert.Len(t, readPending(t, pending), 2)
	assert.Equal(t, []State{Sampling, Sampling}, states)
	assert.Equal(t, Idle, w.State())
}

func TestWriter_OpenFailureIsBatchIO(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "live")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0644))

	w, _ := newTestWriter(t, Config{MaxRows: 1, LiveDir: blocker}, testSensors(), time.Now())
	_, err := w.RunBatch(context.Background(), cal)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchIO))
	assert.Equal(t, Idle, w.State())
}

func TestNewWriter_NeedsABoundary(t *testing.T) {
	_, err := NewWriter(Config{Interval: time.Second}, testSensors(), nil)
	assert.Error(t, err)

	_, err = NewWriter(Config{MaxRows: 10}, testSensors(), nil)
	assert.Error(t, err)
}

func TestWriter_SameSecondBatchesKeepDistinctNames(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	w, clock := newTestWriter(t, Config{MaxRows: 1}, testSensors(), start)

	first, err := w.RunBatch(context.Background(), cal)
	require.NoError(t, err)
	second, err := w.RunBatch(context.Background(), cal)
	require.NoError(t, err)
	assert.Equal(t, start, clock.Now())

	assert.Equal(t, "20240601-100000.csv", filepath.Base(first))
	assert.Equal(t, "20240601-100000-1.csv", filepath.Base(second))
	entries, err := os.ReadDir(w.cfg.PendingDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Len(t, readPending(t, first), 1)
	assert.Len(t, readPending(t, second), 1)
}

func TestWriter_LeftoverLiveFileIsNotReused(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	w, _ := newTestWriter(t, Config{MaxRows: 1}, testSensors(), start)
	require.NoError(t, os.MkdirAll(w.cfg.LiveDir, 0755))
	leftover := filepath.Join(w.cfg.LiveDir, "20240601-100000.csv")
	require.NoError(t, os.WriteFile(leftover, []byte("partial"), 0644))

	pending, err := w.RunBatch(context.Background(), cal)
	require.NoError(t, err)
	assert.Equal(t, "20240601-100000-1.csv", filepath.Base(pending))

	b, err := os.ReadFile(leftover)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(b))
}

func TestBatchName(t *testing.T) {
	assert.Equal(t, "20240601-100000.csv", batchName("20240601-100000", 0))
	assert.Equal(t, "20240601-100000-12.csv", batchName("20240601-100000", 12))
}
