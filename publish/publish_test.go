package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gr-butler/weatherlog/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []record.RawSample
	err       error
	closeErr  error
	closed    bool
}

func (f *fakePublisher) Publish(_ context.Context, s record.RawSample) error {
	f.published = append(f.published, s)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return f.closeErr
}

func testSample(at time.Time) record.RawSample {
	return record.RawSample{
		Time:                at,
		RainPulses:          1,
		WindPulses:          4,
		WindDirTicks:        150,
		WindDirOK:           true,
		TempPrimary:         20.0,
		TempSecondary:       20.4,
		Pressure:            970.5,
		Humidity:            81.2,
		Altitude:            372.1,
		SeaLevelCalibration: 1014.2,
	}
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	bad := &fakePublisher{err: errors.New("broker down")}
	good := &fakePublisher{}

	f := NewFanout()
	f.Add("bad", bad)
	f.Add("good", good)
	require.Equal(t, 2, f.Len())

	s := testSample(time.Now())
	require.NoError(t, f.Publish(context.Background(), s))
	assert.Len(t, bad.published, 1)
	require.Len(t, good.published, 1)
	assert.Equal(t, s, good.published[0])
}

func TestFanout_CloseClosesEverySink(t *testing.T) {
	closeErr := errors.New("flush failed")
	a := &fakePublisher{closeErr: closeErr}
	b := &fakePublisher{}

	f := NewFanout()
	f.Add("a", a)
	f.Add("b", b)

	err := f.Close()
	assert.True(t, errors.Is(err, closeErr))
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
