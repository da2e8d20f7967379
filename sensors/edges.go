package sensors

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpioutil"
)

// EdgeSource delivers debounced falling edges to registered handlers.
// Edges on the same pin closer together than debounce are dropped by the source.
type EdgeSource interface {
	RegisterEdgeHandler(pin string, debounce time.Duration, handler func()) error
	Halt() error
}

// GPIOEdges watches real GPIO pins.
type GPIOEdges struct {
	halted atomic.Bool
	lock   sync.Mutex
	pins   []gpio.PinIO
	wg     sync.WaitGroup
}

func NewGPIOEdges() *GPIOEdges {
	return &GPIOEdges{}
}

func (g *GPIOEdges) RegisterEdgeHandler(pin string, debounce time.Duration, handler func()) error {
	p := gpioreg.ByName(pin)
	if p == nil {
		return fmt.Errorf("failed to find pin [%v]", pin)
	}
	logger.Infof("%s: %s", p, p.Function())

	if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("failed to configure pin [%v]: %w", pin, err)
	}
	// ignore repeated edges within the debounce window
	debounced, err := gpioutil.Debounce(p, 0, debounce, gpio.FallingEdge)
	if err != nil {
		return fmt.Errorf("failed to set debounce on [%v]: %w", pin, err)
	}

	g.lock.Lock()
	g.pins = append(g.pins, debounced)
	g.lock.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() { _ = debounced.Halt() }()
		for !g.halted.Load() {
			// wake up once a second to notice Halt
			if debounced.WaitForEdge(time.Second) && debounced.Read() == gpio.Low {
				handler()
			}
		}
	}()
	return nil
}

// Halt stops all edge goroutines and waits for them to exit.
func (g *GPIOEdges) Halt() error {
	g.halted.Store(true)
	g.wg.Wait()
	return nil
}

// SyntheticEdges lets tests and bench rigs inject edges by hand. It applies the
// same per-pin debounce window as the hardware source.
type SyntheticEdges struct {
	lock     sync.Mutex
	handlers map[string][]func()
	debounce map[string]time.Duration
	last     map[string]time.Time
}

func NewSyntheticEdges() *SyntheticEdges {
	return &SyntheticEdges{
		handlers: make(map[string][]func()),
		debounce: make(map[string]time.Duration),
		last:     make(map[string]time.Time),
	}
}

func (s *SyntheticEdges) RegisterEdgeHandler(pin string, debounce time.Duration, handler func()) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handlers[pin] = append(s.handlers[pin], handler)
	s.debounce[pin] = debounce
	return nil
}

// Fire injects an edge now.
func (s *SyntheticEdges) Fire(pin string) bool {
	return s.FireAt(pin, time.Now())
}

// FireAt injects an edge at the given instant and reports whether it got past
// the debounce window.
func (s *SyntheticEdges) FireAt(pin string, at time.Time) bool {
	s.lock.Lock()
	last, seen := s.last[pin]
	if seen && at.Sub(last) < s.debounce[pin] {
		s.lock.Unlock()
		return false
	}
	s.last[pin] = at
	handlers := append([]func(){}, s.handlers[pin]...)
	s.lock.Unlock()

	for _, h := range handlers {
		h()
	}
	return true
}

func (s *SyntheticEdges) Halt() error {
	return nil
}
