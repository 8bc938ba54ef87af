package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/cityscope/cityscope/internal/airquality"
)

// ErrPublishTimeout is returned when the broker does not confirm a publish in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTClient is the subset of the paho client used by the publisher.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig holds configuration for the MQTT publisher.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retained bool

	// Timeout bounds connect and publish confirmation (default: 10s).
	Timeout time.Duration

	Logger zerolog.Logger
}

// MQTTPublisher publishes readings to an MQTT topic.
type MQTTPublisher struct {
	client   MQTTClient
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewMQTTPublisher connects to the broker and returns a publisher.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		cfg.Logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
	})

	p := NewMQTTPublisherWithClient(mqtt.NewClient(opts), cfg)
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewMQTTPublisherWithClient wraps an existing client. It does not connect.
func NewMQTTPublisherWithClient(client MQTTClient, cfg MQTTConfig) *MQTTPublisher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &MQTTPublisher{
		client:   client,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  timeout,
		logger:   cfg.Logger,
	}
}

func (p *MQTTPublisher) connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("connecting to mqtt broker: %w", ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	return nil
}

// Publish implements Publisher. It waits for the broker to confirm delivery
// at the configured QoS, the timeout, or ctx, whichever comes first.
func (p *MQTTPublisher) Publish(ctx context.Context, r *airquality.Reading) error {
	e, data, err := Encode(r)
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, p.retained, data)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("event_id", e.EventID).
		Msg("published air quality reading")
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
