package sensors

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

/*
The wind vane is a resistor network read without an ADC. A capacitor is
discharged through the sense line, then charged from the reference line
through the vane. The number of polling loops until the sense line reads high
grows with the resistance the vane presents, and so with its direction.

https://raspberrypi.stackexchange.com/questions/75940/measuring-resistance-without-adc
*/

const (
	DischargeSettle    = 5 * time.Millisecond
	DefaultVaneTimeout = 200 * time.Millisecond

	// how many polls between deadline checks
	deadlineCheckTicks = 256
)

// Line is the part of gpio.PinIO the vane drives.
type Line interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Out(l gpio.Level) error
	Read() gpio.Level
}

// Vane is the capacitive timer on the wind vane.
type Vane struct {
	ref     Line // drives the charge
	sense   Line // reads the capacitor
	settle  time.Duration
	timeout time.Duration
	lock    sync.Mutex
}

func NewVane(ref, sense Line, timeout time.Duration) *Vane {
	if timeout <= 0 {
		timeout = DefaultVaneTimeout
	}
	return &Vane{
		ref:     ref,
		sense:   sense,
		settle:  DischargeSettle,
		timeout: timeout,
	}
}

// Measure discharges the capacitor and counts polls until it charges. A zero
// timeout uses the vane's default. On expiry the partial count is returned
// along with ErrTimerTimeout.
func (v *Vane) Measure(timeout time.Duration) (uint32, error) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if timeout <= 0 {
		timeout = v.timeout
	}

	if err := v.discharge(); err != nil {
		return 0, fmt.Errorf("%w: vane discharge: %v", ErrSensorRead, err)
	}

	if err := v.sense.In(gpio.Float, gpio.NoEdge); err != nil {
		return 0, fmt.Errorf("%w: vane sense line: %v", ErrSensorRead, err)
	}
	deadline := time.Now().Add(timeout)
	if err := v.ref.Out(gpio.High); err != nil {
		return 0, fmt.Errorf("%w: vane reference line: %v", ErrSensorRead, err)
	}

	var ticks uint32
	for v.sense.Read() == gpio.Low {
		ticks++
		if ticks%deadlineCheckTicks == 0 && time.Now().After(deadline) {
			return ticks, fmt.Errorf("%w after %v (%d ticks)", ErrTimerTimeout, timeout, ticks)
		}
		if ticks == math.MaxUint32 {
			return ticks, fmt.Errorf("%w: tick counter overflow", ErrTimerTimeout)
		}
	}
	return ticks, nil
}

func (v *Vane) discharge() error {
	if err := v.ref.In(gpio.Float, gpio.NoEdge); err != nil {
		return err
	}
	if err := v.sense.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(v.settle)
	return nil
}

// Bearing is one row of a vane calibration table: every tick count up to and
// including MaxTicks reads as Label.
type Bearing struct {
	MaxTicks uint32
	Label    string
}

// DirectionTable maps tick counts to compass labels. It has to be measured on
// the installed vane; there is no built in default.
type DirectionTable []Bearing

// ParseDirectionTable reads "ticks:label" pairs separated by commas, for
// example "120:N,310:NE,560:E".
func ParseDirectionTable(s string) (DirectionTable, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var t DirectionTable
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("invalid vane table entry [%v]", pair)
		}
		max, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vane table entry [%v]: %w", pair, err)
		}
		t = append(t, Bearing{MaxTicks: uint32(max), Label: strings.ToUpper(strings.TrimSpace(parts[1]))})
	}
	sort.Slice(t, func(i, j int) bool { return t[i].MaxTicks < t[j].MaxTicks })
	return t, nil
}

// Lookup returns the label for ticks, or false when ticks is beyond the table.
func (t DirectionTable) Lookup(ticks uint32) (string, bool) {
	i := sort.Search(len(t), func(i int) bool { return t[i].MaxTicks >= ticks })
	if i == len(t) {
		return "", false
	}
	return t[i].Label, true
}

var compassDegrees = map[string]float64{
	"N": 0, "NNE": 22.5, "NE": 45, "ENE": 67.5,
	"E": 90, "ESE": 112.5, "SE": 135, "SSE": 157.5,
	"S": 180, "SSW": 202.5, "SW": 225, "WSW": 247.5,
	"W": 270, "WNW": 292.5, "NW": 315, "NNW": 337.5,
}

// Degrees converts a compass label to a bearing.
func Degrees(label string) (float64, bool) {
	d, ok := compassDegrees[strings.ToUpper(label)]
	return d, ok
}
