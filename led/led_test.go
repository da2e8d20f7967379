package led

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// recordingPin keeps every level written to it.
type recordingPin struct {
	*gpiotest.Pin
	lock   sync.Mutex
	levels []gpio.Level
}

func (p *recordingPin) Out(l gpio.Level) error {
	p.lock.Lock()
	p.levels = append(p.levels, l)
	p.lock.Unlock()
	return p.Pin.Out(l)
}

func (p *recordingPin) history() []gpio.Level {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]gpio.Level(nil), p.levels...)
}

func newTestLED() (*LED, *recordingPin) {
	p := &recordingPin{Pin: &gpiotest.Pin{N: "GPIO20"}}
	l := NewLED("heartbeat", p)
	l.duration = time.Millisecond
	return l, p
}

func Test_LED_Flash(t *testing.T) {
	l, p := newTestLED()
	defer l.Close()

	l.Flash()
	require.Eventually(t, func() bool { return len(p.history()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low}, p.history())
}

func Test_LED_FlashWhileOn(t *testing.T) {
	l, p := newTestLED()
	defer l.Close()

	l.On()
	assert.True(t, l.IsOn())
	l.Flash()
	require.Eventually(t, func() bool { return len(p.history()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High}, p.history())
}

func Test_LED_Flicker(t *testing.T) {
	l, p := newTestLED()
	defer l.Close()

	l.Flicker(2)
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.Low}, p.history())

	l.Flicker(0)
	assert.Len(t, p.history(), 5)
}

func Test_LED_NoPin(t *testing.T) {
	l := NewLED("missing", nil)
	l.Flash()
	l.On()
	assert.True(t, l.IsOn())
	l.Close()
	assert.False(t, l.IsOn())
}

func Test_LED_CloseTurnsOff(t *testing.T) {
	l, p := newTestLED()
	l.On()
	l.Close()
	assert.Equal(t, gpio.Low, p.Pin.Read())
}
