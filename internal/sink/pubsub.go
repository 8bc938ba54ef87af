package sink

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/cityscope/cityscope/internal/airquality"
)

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// PubSubPublisher publishes readings to a Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewPubSubPublisher creates a Pub/Sub publisher.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		topic:     cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// NewMessage builds the Pub/Sub message for a reading.
func NewMessage(r *airquality.Reading) (*pubsub.Message, error) {
	e, data, err := Encode(r)
	if err != nil {
		return nil, fmt.Errorf("encoding reading: %w", err)
	}

	attrs := map[string]string{
		"event_id":   e.EventID,
		"event_type": e.Type,
	}
	if e.Category != "" {
		attrs["category"] = e.Category
	}

	return &pubsub.Message{Data: data, Attributes: attrs}, nil
}

// Publish implements Publisher. It blocks until the server acknowledges the message.
func (p *PubSubPublisher) Publish(ctx context.Context, r *airquality.Reading) error {
	msg, err := NewMessage(r)
	if err != nil {
		return err
	}

	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("message_id", id).
		Str("event_id", msg.Attributes["event_id"]).
		Msg("published air quality reading")
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
