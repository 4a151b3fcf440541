package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata keys set on published messages.
const (
	MetadataTopic       = "topic"
	MetadataKey         = "key"
	MetadataPublishedAt = "published_at"
)

// Publish sends one typed event.
type Publish[T any] func(ctx context.Context, event *T) error

// PublishOption configures a Publish func.
type PublishOption[T any] func(*publishConfig[T])

type publishConfig[T any] struct {
	key func(*T) string
	now func() time.Time
}

// WithKey stores key(event) under MetadataKey so consumers can correlate
// deliveries of the same event.
func WithKey[T any](key func(*T) string) PublishOption[T] {
	return func(c *publishConfig[T]) { c.key = key }
}

// WithPublishClock replaces time.Now for MetadataPublishedAt.
func WithPublishClock[T any](now func() time.Time) PublishOption[T] {
	return func(c *publishConfig[T]) { c.now = now }
}

// NewPublishFunc returns a Publish func that JSON-encodes events onto topic.
func NewPublishFunc[T any](publisher message.Publisher, topic string, opts ...PublishOption[T]) Publish[T] {
	cfg := publishConfig[T]{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, event *T) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", topic, err)
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.SetContext(ctx)
		msg.Metadata.Set(MetadataTopic, topic)
		msg.Metadata.Set(MetadataPublishedAt, cfg.now().UTC().Format(time.RFC3339Nano))

		if cfg.key != nil {
			msg.Metadata.Set(MetadataKey, cfg.key(event))
		}

		if err := publisher.Publish(topic, msg); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}

		return nil
	}
}

// PublisherGroup owns a publisher shared by several Publish funcs.
type PublisherGroup struct {
	publisher message.Publisher
	once      sync.Once
	closeErr  error
}

// NewPublisherGroup creates a new publisher group.
func NewPublisherGroup(publisher message.Publisher) *PublisherGroup {
	return &PublisherGroup{publisher: publisher}
}

// Publisher returns the shared publisher.
func (g *PublisherGroup) Publisher() message.Publisher {
	return g.publisher
}

// Shutdown closes the publisher once. Later calls return the first result.
func (g *PublisherGroup) Shutdown() error {
	g.once.Do(func() {
		if err := g.publisher.Close(); err != nil {
			g.closeErr = fmt.Errorf("close publisher: %w", err)
		}
	})

	return g.closeErr
}
