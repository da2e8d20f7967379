package led

import (
	"sync"
	"time"

	"github.com/gr-butler/weatherlog/env"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// LED is a status light. Flash requests never block the caller; a request
// arriving while a flash is in progress is dropped.
type LED struct {
	Name     string
	lock     sync.Mutex
	on       bool
	flash    chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	duration time.Duration
	gpioPin  gpio.PinOut
}

// ByName opens the LED on a named GPIO pin. A missing pin gives an LED that
// does nothing, the station runs without its lights.
func ByName(name string, GPIOPin string) *LED {
	logger.Infof("Creating new LED on pin [%v] called [%v]", GPIOPin, name)
	p := gpioreg.ByName(GPIOPin)
	if p == nil {
		logger.Errorf("Failed to find %v pin", GPIOPin)
		return NewLED(name, nil)
	}
	return NewLED(name, p)
}

func NewLED(name string, p gpio.PinOut) *LED {
	l := &LED{
		Name:     name,
		flash:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		duration: env.LEDFlashDuration,
		gpioPin:  p,
	}
	l.out(gpio.Low)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.flash:
				l.doFlash()
			case <-l.done:
				return
			}
		}
	}()
	return l
}

func (l *LED) out(level gpio.Level) {
	if l.gpioPin != nil {
		_ = l.gpioPin.Out(level)
	}
}

func (l *LED) On() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = true
	l.out(gpio.High)
}

func (l *LED) Off() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = false
	l.out(gpio.Low)
}

// Flash inverts the LED briefly.
func (l *LED) Flash() {
	if l.gpioPin == nil {
		return
	}
	select {
	case l.flash <- struct{}{}:
	default:
		logger.Debugf("LED [%v] busy, flash dropped", l.Name)
	}
}

func (l *LED) doFlash() {
	l.lock.Lock()
	defer l.lock.Unlock()
	// if the LED is currently off, then flash on
	if !l.on {
		l.out(gpio.High)
		time.Sleep(l.duration)
		l.out(gpio.Low)
	} else {
		// 'off' flash
		l.out(gpio.Low)
		time.Sleep(l.duration)
		l.out(gpio.High)
	}
}

// Flicker blinks pulses times, blocking until done. Used at startup to show
// the light works.
func (l *LED) Flicker(pulses int) {
	if l.gpioPin == nil {
		return
	}
	if pulses < 1 || pulses > 100 {
		// reject daft or excessive requests
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	for i := 0; i < pulses; i++ {
		l.out(gpio.High)
		time.Sleep(l.duration)
		l.out(gpio.Low)
		time.Sleep(l.duration)
	}
	if l.on {
		l.out(gpio.High)
	}
}

func (l *LED) IsOn() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.on
}

// Close stops the flash loop and turns the LED off.
func (l *LED) Close() {
	close(l.done)
	l.wg.Wait()
	l.Off()
}
