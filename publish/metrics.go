package publish

import (
	"context"
	"math"

	"github.com/gr-butler/weatherlog/record"
	"github.com/prometheus/client_golang/prometheus"
)

var Prom_atmPresure = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "atmospheric_pressure",
		Help: "Atmospheric pressure hPa",
	},
)

var Prom_humidity = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "relative_humidity",
		Help: "Relative Humidity",
	},
)

var Prom_temperature = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "temperature",
		Help: "Temperature C",
	},
	[]string{"sensor"},
)

var Prom_altitude = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "calibrated_altitude",
		Help: "Altitude from the session sea-level reference, m",
	},
)

var Prom_windDirection = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "winddirection_ticks",
		Help: "Raw wind vane charge time",
	},
)

var Prom_rainPulses = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "rain_batch_pulses",
		Help: "Rain gauge tips since the batch opened",
	},
)

var Prom_windPulses = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "wind_batch_pulses",
		Help: "Anemometer pulses since the batch opened",
	},
)

// Collectors is everything this package registers.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		Prom_publishErrors,
		Prom_atmPresure,
		Prom_humidity,
		Prom_temperature,
		Prom_altitude,
		Prom_windDirection,
		Prom_rainPulses,
		Prom_windPulses,
	}
}

// MetricsPublisher mirrors the latest sample into the prometheus gauges.
type MetricsPublisher struct{}

func setIfPresent(g prometheus.Gauge, v float64) {
	if !math.IsNaN(v) {
		g.Set(v)
	}
}

func (MetricsPublisher) Publish(_ context.Context, s record.RawSample) error {
	setIfPresent(Prom_temperature.WithLabelValues("primary"), s.TempPrimary)
	setIfPresent(Prom_temperature.WithLabelValues("secondary"), s.TempSecondary)
	setIfPresent(Prom_atmPresure, s.Pressure)
	setIfPresent(Prom_humidity, s.Humidity)
	setIfPresent(Prom_altitude, s.Altitude)
	if s.WindDirOK {
		Prom_windDirection.Set(float64(s.WindDirTicks))
	}
	Prom_rainPulses.Set(float64(s.RainPulses))
	Prom_windPulses.Set(float64(s.WindPulses))
	return nil
}

func (MetricsPublisher) Close() error {
	return nil
}
