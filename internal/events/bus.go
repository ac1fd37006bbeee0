// Package events carries page lifecycle notifications to background workers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	TopicPageCreated   = "page.created"
	TopicPageDestroyed = "page.destroyed"
)

// PageCreated is published after a page has been persisted.
type PageCreated struct {
	Code   string `json:"code"`
	Source string `json:"source"`
}

// PageDestroyed is published after a page has been removed from the store.
type PageDestroyed struct {
	Code          string `json:"code"`
	Reason        string `json:"reason"`
	AudioFilename string `json:"audioFilename,omitempty"`
	ImageFilename string `json:"imageFilename,omitempty"`
}

const (
	ReasonPlayLimit = "play_limit"
	ReasonDeleted   = "deleted"
	ReasonDemoReset = "demo_reset"
)

// Handler processes one decoded payload. Errors are logged, never redelivered.
type Handler func(ctx context.Context, payload []byte) error

type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBus(logger *slog.Logger, buffer int64) *Bus {
	return newBus(logger, gochannel.Config{
		OutputChannelBuffer:            buffer,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	})
}

// NewBlockingBus returns a bus whose Publish waits until every subscriber has
// handled the message. Short-lived processes use it so that no event is
// dropped on exit.
func NewBlockingBus(logger *slog.Logger) *Bus {
	return newBus(logger, gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	})
}

func newBus(logger *slog.Logger, cfg gochannel.Config) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Bus{
		pubsub: gochannel.NewGoChannel(cfg, watermill.NewSlogLogger(logger)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish encodes payload as JSON and hands it to the topic's subscribers
// without waiting for them.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", topic)
	msg.SetContext(ctx)
	return b.pubsub.Publish(topic, msg)
}

// Subscribe starts a consumer goroutine for topic. It must be called before
// the first Publish on that topic, messages are not retained.
func (b *Bus) Subscribe(topic string, handler Handler) error {
	messages, err := b.pubsub.Subscribe(b.ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			b.dispatch(topic, msg, handler)
		}
	}()
	return nil
}

func (b *Bus) dispatch(topic string, msg *message.Message, handler Handler) {
	defer msg.Ack()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", topic, "message_id", msg.UUID, "panic", r)
		}
	}()

	if err := handler(b.ctx, msg.Payload); err != nil {
		b.logger.Error("event handler failed", "topic", topic, "message_id", msg.UUID, "error", err)
	}
}

// Close stops all consumers and waits for in-flight handlers.
func (b *Bus) Close() error {
	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()
	return err
}

// Decode is a helper for handlers.
func Decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode event: %w", err)
	}
	return v, nil
}
