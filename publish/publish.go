// Package publish sends every raw sample to the event stream sinks. Delivery
// is best effort: a failing sink is logged and counted, and never holds up
// the sampling loop.
package publish

import (
	"context"
	"errors"

	"github.com/gr-butler/weatherlog/record"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
)

// ErrPublish wraps every sink failure.
var ErrPublish = errors.New("publish failed")

var Prom_publishErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "publish_errors_total",
		Help: "Samples a sink failed to publish",
	},
	[]string{"sink"},
)

type Publisher interface {
	Publish(ctx context.Context, s record.RawSample) error
	Close() error
}

type sink struct {
	name string
	p    Publisher
}

// Fanout publishes to every registered sink.
type Fanout struct {
	sinks []sink
}

func NewFanout() *Fanout {
	return &Fanout{}
}

func (f *Fanout) Add(name string, p Publisher) {
	logger.Infof("Publishing samples to [%v]", name)
	f.sinks = append(f.sinks, sink{name: name, p: p})
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish hands s to each sink. Sink errors are logged and counted, never returned.
func (f *Fanout) Publish(ctx context.Context, s record.RawSample) error {
	for _, k := range f.sinks {
		if err := k.p.Publish(ctx, s); err != nil {
			logger.Warnf("Sink [%v] failed [%v]", k.name, err)
			Prom_publishErrors.WithLabelValues(k.name).Inc()
		}
	}
	return nil
}

func (f *Fanout) Close() error {
	var errs []error
	for _, k := range f.sinks {
		if err := k.p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
