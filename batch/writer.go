// Package batch samples every sensor at a fixed cadence and writes the raw
// readings to a batch file, rotating it into the pending directory when the
// batch is complete.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gr-butler/weatherlog/calibration"
	"github.com/gr-butler/weatherlog/counter"
	"github.com/gr-butler/weatherlog/publish"
	"github.com/gr-butler/weatherlog/record"
	"github.com/gr-butler/weatherlog/sensors"
	logger "github.com/sirupsen/logrus"
)

// ErrBatchIO is returned when a batch file cannot be opened, written or rotated.
var ErrBatchIO = errors.New("batch io failed")

const (
	fileLayout      = "20060102-150405"
	maxNameAttempts = 1000
)

type State int32

const (
	Idle State = iota
	Sampling
	Rotating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Rotating:
		return "rotating"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Sensors is everything read each tick. A nil reader is stored as missing.
type Sensors struct {
	Primary   sensors.Thermometer
	Secondary sensors.Thermometer
	Baro      sensors.Barometer
	Hygro     sensors.Hygrometer
	Vane      sensors.DirectionSensor
	Rain      *counter.PulseCounter
	Wind      *counter.PulseCounter
}

type Config struct {
	LiveDir     string
	PendingDir  string
	Interval    time.Duration
	Cutoff      *Cutoff // nil disables the wall clock cutoff
	MaxRows     int     // 0 disables the row limit
	VaneTimeout time.Duration
}

// Writer owns one batch at a time; RunBatch must not be called concurrently.
type Writer struct {
	cfg     Config
	sensors Sensors
	sink    publish.Publisher
	onTick  func()
	state   atomic.Int32

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWriter(cfg Config, s Sensors, sink publish.Publisher) (*Writer, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid sample interval [%v]", cfg.Interval)
	}
	if cfg.Cutoff == nil && cfg.MaxRows <= 0 {
		return nil, errors.New("batch needs a cutoff or a row limit")
	}
	if s.Rain == nil || s.Wind == nil {
		return nil, errors.New("batch needs rain and wind counters")
	}
	return &Writer{
		cfg:     cfg,
		sensors: s,
		sink:    sink,
		now:     time.Now,
		sleep:   sleepCtx,
	}, nil
}

// OnTick registers f to run after every row, e.g. to flash a heartbeat LED.
func (w *Writer) OnTick(f func()) {
	w.onTick = f
}

func (w *Writer) State() State {
	return State(w.state.Load())
}

func (w *Writer) setState(s State) {
	w.state.Store(int32(s))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type openBatch struct {
	name string
	path string
	file *os.File
	csv  *csv.Writer
	rows int
}

func (b *openBatch) write(row []string) error {
	if err := b.csv.Write(row); err != nil {
		return err
	}
	b.csv.Flush()
	return b.csv.Error()
}

// RunBatch samples into a new batch until it is complete or ctx is cancelled,
// then rotates it and returns its pending path. A cancelled batch is still
// rotated.
func (w *Writer) RunBatch(ctx context.Context, cal calibration.State) (string, error) {
	b, err := w.open()
	if err != nil {
		return "", err
	}
	w.setState(Sampling)
	defer w.setState(Idle)

	pol := newPolicy(w.cfg.Cutoff, w.cfg.MaxRows, w.now())
	var rainTotal, windTotal uint64
	var writeErr error

	for ctx.Err() == nil {
		tick := w.now()
		rainTotal += w.sensors.Rain.ReadAndReset()
		windTotal += w.sensors.Wind.ReadAndReset()
		s := w.sample(tick, cal)
		s.RainPulses = rainTotal
		s.WindPulses = windTotal

		if err := b.write(s.BatchRow()); err != nil {
			writeErr = fmt.Errorf("%w: write [%v]: %v", ErrBatchIO, b.name, err)
			break
		}
		b.rows++
		Prom_rowsWritten.Inc()

		if w.sink != nil {
			if err := w.sink.Publish(ctx, s); err != nil {
				logger.Warnf("Publish failed [%v]", err)
			}
		}
		if w.onTick != nil {
			w.onTick()
		}

		if pol.rowsReached(b.rows) {
			break
		}
		elapsed := w.now().Sub(tick)
		if elapsed > w.cfg.Interval {
			logger.Warnf("Sample took [%v], longer than the interval [%v]", elapsed, w.cfg.Interval)
			Prom_sampleDrift.Inc()
		} else if err := w.sleep(ctx, w.cfg.Interval-elapsed); err != nil {
			break
		}
		if pol.cutoffReached(w.now()) {
			break
		}
	}

	pending, err := w.rotate(b)
	if writeErr != nil {
		return pending, errors.Join(writeErr, err)
	}
	return pending, err
}

func (w *Writer) open() (*openBatch, error) {
	for _, dir := range []string{w.cfg.LiveDir, w.cfg.PendingDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBatchIO, err)
		}
	}
	base := w.now().UTC().Format(fileLayout)
	var name, path string
	var f *os.File
	for n := 0; f == nil; n++ {
		if n == maxNameAttempts {
			return nil, fmt.Errorf("%w: no free batch name for [%v]", ErrBatchIO, base)
		}
		name = batchName(base, n)
		// a rotated batch keeps its name until it is reduced
		if exists(filepath.Join(w.cfg.PendingDir, name)) {
			continue
		}
		path = filepath.Join(w.cfg.LiveDir, name)
		var err error
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: open [%v]: %v", ErrBatchIO, name, err)
		}
	}
	b := &openBatch{name: name, path: path, file: f, csv: csv.NewWriter(f)}
	if err := b.write(record.BatchHeader); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: header [%v]: %v", ErrBatchIO, name, err)
	}
	logger.Infof("Opened batch [%v]", path)
	return b, nil
}

// rotate closes the batch and hands it to the reducer by moving it to pending.
func (w *Writer) rotate(b *openBatch) (string, error) {
	w.setState(Rotating)
	b.csv.Flush()
	closeErr := b.file.Close()
	pending := filepath.Join(w.cfg.PendingDir, b.name)
	if exists(pending) {
		return "", fmt.Errorf("%w: rotate [%v]: already pending, left in live", ErrBatchIO, b.name)
	}
	if err := os.Rename(b.path, pending); err != nil {
		return "", fmt.Errorf("%w: rotate [%v]: %v", ErrBatchIO, b.name, err)
	}
	Prom_batchesRotated.Inc()
	logger.Infof("Rotated batch [%v] rows [%d]", pending, b.rows)
	if closeErr != nil {
		return pending, fmt.Errorf("%w: close [%v]: %v", ErrBatchIO, b.name, closeErr)
	}
	return pending, nil
}

// batchName is the file name for the n'th batch opened in the same second.
func batchName(base string, n int) string {
	if n == 0 {
		return base + ".csv"
	}
	return fmt.Sprintf("%s-%d.csv", base, n)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (w *Writer) sensorFailed(name string, err error) {
	logger.Warnf("Failed to read [%v] [%v]", name, err)
	Prom_sensorErrors.WithLabelValues(name).Inc()
}

// sample reads every sensor independently; a failure only affects its own column.
func (w *Writer) sample(at time.Time, cal calibration.State) record.RawSample {
	s := record.RawSample{
		Time:                at,
		TempPrimary:         record.Missing(),
		TempSecondary:       record.Missing(),
		Pressure:            record.Missing(),
		Humidity:            record.Missing(),
		Altitude:            record.Missing(),
		SeaLevelCalibration: cal.SeaLevelPressure,
	}

	if w.sensors.Vane != nil {
		ticks, err := w.sensors.Vane.Measure(w.cfg.VaneTimeout)
		if err != nil {
			w.sensorFailed("vane", err)
		} else {
			s.WindDirTicks = ticks
			s.WindDirOK = true
		}
	}
	if w.sensors.Primary != nil {
		if t, err := w.sensors.Primary.Temperature(); err != nil {
			w.sensorFailed("temp_primary", err)
		} else {
			s.TempPrimary = t.Float64()
		}
	}
	if w.sensors.Secondary != nil {
		if t, err := w.sensors.Secondary.Temperature(); err != nil {
			w.sensorFailed("temp_secondary", err)
		} else {
			s.TempSecondary = t.Float64()
		}
	}
	if w.sensors.Baro != nil {
		if p, err := w.sensors.Baro.Pressure(); err != nil {
			w.sensorFailed("pressure", err)
		} else {
			s.Pressure = p.Float64()
		}
		if a, err := w.sensors.Baro.Altitude(); err != nil {
			w.sensorFailed("altitude", err)
		} else {
			s.Altitude = a
		}
	}
	if w.sensors.Hygro != nil {
		if h, err := w.sensors.Hygro.RelativeHumidity(); err != nil {
			w.sensorFailed("humidity", err)
		} else {
			s.Humidity = h.Float64()
		}
	}
	return s
}
