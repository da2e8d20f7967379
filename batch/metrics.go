package batch

import "github.com/prometheus/client_golang/prometheus"

var Prom_sensorErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sensor_read_errors_total",
		Help: "Sensor reads that failed and were stored as missing",
	},
	[]string{"sensor"},
)

var Prom_sampleDrift = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "sample_drift_total",
		Help: "Ticks whose work overran the sampling interval",
	},
)

var Prom_rowsWritten = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "batch_rows_total",
		Help: "Rows written to batch files",
	},
)

var Prom_batchesRotated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "batches_rotated_total",
		Help: "Batch files moved to pending",
	},
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		Prom_sensorErrors,
		Prom_sampleDrift,
		Prom_rowsWritten,
		Prom_batchesRotated,
	}
}
