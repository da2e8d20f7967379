package publish

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gr-butler/weatherlog/env"
	"github.com/gr-butler/weatherlog/record"
	logger "github.com/sirupsen/logrus"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTPublisher publishes samples at QoS 0 without waiting for the broker.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

func NewMQTTPublisher(cfg env.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warnf("MQTT connection lost [%v]", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker [%v]", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	logger.Infof("MQTT connected [%v] topic [%v]", cfg.Broker, cfg.Topic)
	return newMQTTPublisher(client, cfg.Topic), nil
}

func newMQTTPublisher(client mqtt.Client, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic}
}

func (m *MQTTPublisher) Publish(ctx context.Context, s record.RawSample) error {
	if !m.client.IsConnectionOpen() {
		return fmt.Errorf("%w: mqtt not connected", ErrPublish)
	}
	payload, err := record.EncodeEvent(s)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPublish, err)
	}
	token := m.client.Publish(m.topic, 0, false, payload)
	// only report what has already failed, never wait
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: mqtt: %v", ErrPublish, err)
		}
	default:
	}
	return nil
}

func (m *MQTTPublisher) Close() error {
	m.client.Disconnect(250)
	return nil
}
