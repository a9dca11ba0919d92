// Package pubsub publishes each Record as a Google Cloud Pub/Sub message.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Config identifies the destination topic.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

type topicAdapter struct {
	topic *pubsub.Topic
}

func (t topicAdapter) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.topic.Publish(ctx, msg)
}

func (t topicAdapter) Stop() {
	t.topic.Stop()
}

// Sink publishes Records to a topic.
type Sink struct {
	publisher topicPublisher
	client    *pubsub.Client
}

// New connects to Pub/Sub and binds the configured topic.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("pubsub project_id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Sink{
		publisher: topicAdapter{topic: client.Topic(cfg.Topic)},
		client:    client,
	}, nil
}

// Append marshals rec to JSON and waits for the publish to be acknowledged.
func (s *Sink) Append(ctx context.Context, rec harvest.Record) error {
	if s.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"platform": string(rec.Platform),
			"blocked":  strconv.FormatBool(rec.Blocked),
			"url":      rec.URL,
		},
	}
	if _, err := s.publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (s *Sink) Close(context.Context) error {
	if s.publisher != nil {
		s.publisher.Stop()
	}
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
