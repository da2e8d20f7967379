package publish

import (
	"context"
	"testing"
	"time"

	"github.com/gr-butler/weatherlog/record"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsPublisher_SkipsFailedReadings(t *testing.T) {
	m := MetricsPublisher{}
	s := testSample(time.Now())
	require.NoError(t, m.Publish(context.Background(), s))
	assert.Equal(t, 970.5, testutil.ToFloat64(Prom_atmPresure))
	assert.Equal(t, 20.4, testutil.ToFloat64(Prom_temperature.WithLabelValues("secondary")))

	// a failed read leaves the last good value
	s.Pressure = record.Missing()
	s.WindPulses = 9
	require.NoError(t, m.Publish(context.Background(), s))
	assert.Equal(t, 970.5, testutil.ToFloat64(Prom_atmPresure))
	assert.Equal(t, float64(9), testutil.ToFloat64(Prom_windPulses))
}
