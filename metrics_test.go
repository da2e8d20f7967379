package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gr-butler/weatherlog/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_latestSample_handler(t *testing.T) {
	l := &latestSample{}

	rec := httptest.NewRecorder()
	l.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, l.Publish(context.Background(), record.RawSample{
		Time:          time.Unix(1717236000, 0),
		RainPulses:    3,
		TempPrimary:   18.5,
		TempSecondary: record.Missing(),
		Pressure:      record.Missing(),
		Humidity:      77,
		Altitude:      record.Missing(),
	}))

	rec = httptest.NewRecorder()
	l.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(3), got["rain"])
	assert.Equal(t, 18.5, got["temp_primary"])
	assert.NotContains(t, got, "pressure")
	assert.NotContains(t, got, "temp_secondary")
}
