package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

const (
	// DefaultHandlerTimeout bounds a single handler call.
	DefaultHandlerTimeout = 15 * time.Second
	// DefaultMaxAttempts is how often a failing event is delivered before
	// it is dropped.
	DefaultMaxAttempts = 5
)

// Handler processes a single event.
type Handler[T any] func(ctx context.Context, event *T) error

// Consumer decodes JSON events from one topic and hands them to a Handler.
// Undecodable payloads are acked and dropped. Handler failures are nacked
// for redelivery until the message has failed maxAttempts times, after which
// it is acked and dropped.
type Consumer[T any] struct {
	subscriber  message.Subscriber
	topic       string
	handler     Handler[T]
	timeout     time.Duration
	maxAttempts int
	attempts    map[string]int
	logger      *zap.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	timeout     time.Duration
	maxAttempts int
}

// WithHandlerTimeout overrides DefaultHandlerTimeout. Zero disables it.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *consumerConfig) { c.timeout = d }
}

// WithMaxAttempts overrides DefaultMaxAttempts. Zero retries forever.
func WithMaxAttempts(n int) ConsumerOption {
	return func(c *consumerConfig) { c.maxAttempts = n }
}

// NewConsumer creates a consumer of topic.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
	opts ...ConsumerOption,
) *Consumer[T] {
	cfg := consumerConfig{timeout: DefaultHandlerTimeout, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer[T]{
		subscriber:  subscriber,
		topic:       topic,
		handler:     handler,
		timeout:     cfg.timeout,
		maxAttempts: cfg.maxAttempts,
		attempts:    make(map[string]int),
		logger:      logger.With(zap.String("topic", topic)),
		done:        make(chan struct{}),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes and processes messages in the background until ctx is
// done or Shutdown is called.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		c.cancel()
		close(c.done)

		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}

	go c.run(ctx, msgs)

	return nil
}

func (c *Consumer[T]) run(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.process(ctx, msg)
		}
	}
}

// process runs on the single run goroutine, so attempts needs no lock.
func (c *Consumer[T]) process(ctx context.Context, msg *message.Message) {
	log := c.logger.With(
		zap.String("messageId", msg.UUID),
		zap.String("key", msg.Metadata.Get(MetadataKey)),
	)

	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		log.Error("dropping undecodable event", zap.Error(err))
		msg.Ack()

		return
	}

	handlerCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc

		handlerCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.handler(handlerCtx, &event); err != nil {
		c.attempts[msg.UUID]++
		attempt := c.attempts[msg.UUID]

		if c.maxAttempts > 0 && attempt >= c.maxAttempts {
			delete(c.attempts, msg.UUID)
			log.Error("giving up on event", zap.Int("attempts", attempt), zap.Error(err))
			msg.Ack()

			return
		}

		log.Warn("failed to handle event", zap.Int("attempt", attempt), zap.Error(err))
		msg.Nack()

		return
	}

	delete(c.attempts, msg.UUID)
	msg.Ack()

	log.Debug("processed event")
}

// Shutdown stops the consumer and waits for the message in flight.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel == nil {
		return nil
	}

	c.cancel()
	<-c.done

	return nil
}
