package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/events"
	"github.com/tphakala/rtp-recorder/internal/logger"
)

// EventPublisher forwards lifecycle events to <topic>/<mid>/<event>.
type EventPublisher struct {
	client  Client
	topic   string
	timeout time.Duration
	logger  logger.Logger
}

var _ events.EventConsumer = (*EventPublisher)(nil)

// NewEventPublisher returns an event bus consumer publishing through client.
func NewEventPublisher(client Client, cfg Config, log logger.Logger) *EventPublisher {
	topic := strings.TrimRight(cfg.Topic, "/")
	if topic == "" {
		topic = DefaultConfig().Topic
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().PublishTimeout
	}
	if log == nil {
		log = logger.NewDiscard()
	}
	return &EventPublisher{client: client, topic: topic, timeout: timeout, logger: log}
}

func (p *EventPublisher) Name() string { return "mqtt" }

// Topic returns the topic for an event.
func (p *EventPublisher) Topic(e events.LifecycleEvent) string {
	return p.topic + "/" + e.MID + "/" + string(e.Type)
}

// ProcessEvent publishes e as JSON.
func (p *EventPublisher) ProcessEvent(e events.LifecycleEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	topic := p.Topic(e)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		return err
	}
	p.logger.Debug("lifecycle event published",
		logger.String("topic", topic),
		logger.Int("size", len(payload)))
	return nil
}
