package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/errors"
)

// Publisher announces saved collection entries on {topic}/{owner}.
type Publisher struct {
	client Client
	topic  string
}

// NewPublisher wraps a connected client.
func NewPublisher(client Client, topic string) *Publisher {
	topic = strings.TrimRight(topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: client, topic: topic}
}

// Name identifies the publisher in logs.
func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the topic an owner's entries are published on.
func (p *Publisher) Topic(ownerID string) string {
	return p.topic + "/" + ownerID
}

// EntrySaved publishes entry as JSON. It reconnects once when the client has dropped.
func (p *Publisher) EntrySaved(ctx context.Context, entry *collection.Entry) error {
	payload, err := json.Marshal(NewEntryMessage(entry))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_entry").
			Build()
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}
	return p.client.Publish(ctx, p.Topic(entry.OwnerID), payload)
}
