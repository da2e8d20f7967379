package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaPublisher{writer: w, key: []byte("station-1")}

	at := time.Date(2024, 3, 1, 12, 0, 0, 500000000, time.UTC)
	require.NoError(t, k.Publish(context.Background(), testSample(at)))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("station-1"), msg.Key)
	assert.Equal(t, at, msg.Time)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, 1709294400.5, event["datetime"])
	assert.Equal(t, float64(4), event["wind"])
	assert.Equal(t, float64(150), event["wind_direction"])
}

func TestKafkaPublisher_WriteFailure(t *testing.T) {
	k := &KafkaPublisher{writer: &fakeWriter{err: errors.New("no leader")}}
	err := k.Publish(context.Background(), testSample(time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPublish))
}
