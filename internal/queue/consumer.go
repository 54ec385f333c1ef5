package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/tradeloop/notification-service/internal/domain"
)

// One queue per notification category, consumed independently. There is no
// ordering guarantee across queues.
const (
	CommentQueue = "comment_queue"
	ChatQueue    = "chat_queue"
	PaymentQueue = "payment_queue"
	OfferQueue   = "offer_queue"
	AdminQueue   = "admin_queue"
)

// ErrMalformedPayload marks messages that can never be processed. They are
// rejected without requeue so the broker can dead-letter them instead of
// redelivering forever.
var ErrMalformedPayload = errors.New("malformed queue payload")

// Ingestor is the pipeline entry point, one method per category.
type Ingestor interface {
	IngestComment(ctx context.Context, ev domain.InboundEvent) error
	IngestChat(ctx context.Context, ev domain.InboundEvent) error
	IngestPayment(ctx context.Context, ev domain.InboundEvent) error
	IngestOffer(ctx context.Context, ev domain.InboundEvent) error
	IngestAdminRequest(ctx context.Context, ev domain.InboundEvent) error
}

// Consumer drives one worker goroutine per category queue with manual acks:
// a message is acked only after persistence and push both succeeded.
type Consumer struct {
	ch      *amqp.Channel
	service Ingestor
	logger  *zap.Logger
}

func NewConsumer(conn *amqp.Connection, service Ingestor, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	for _, queue := range []string{CommentQueue, ChatQueue, PaymentQueue, OfferQueue, AdminQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}
	}

	return &Consumer{ch: ch, service: service, logger: logger}, nil
}

// Start begins consuming all category queues. Each queue gets its own
// goroutine; the goroutines exit when the channel is closed.
func (c *Consumer) Start(ctx context.Context) error {
	for _, queue := range []string{CommentQueue, ChatQueue, PaymentQueue, OfferQueue, AdminQueue} {
		deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume queue %s: %w", queue, err)
		}
		go c.consume(ctx, queue, deliveries)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}

func (c *Consumer) consume(ctx context.Context, queue string, deliveries <-chan amqp.Delivery) {
	c.logger.Info("queue worker started", zap.String("queue", queue))

	for d := range deliveries {
		err := c.handle(ctx, queue, d.Body)
		if err == nil {
			if err := d.Ack(false); err != nil {
				c.logger.Error("failed to ack message", zap.String("queue", queue), zap.Error(err))
			}
			continue
		}

		// Failures never crash the worker: the message stays unacked and the
		// broker redelivers it, except for permanently malformed payloads.
		requeue := !errors.Is(err, ErrMalformedPayload)
		c.logger.Error("failed to process message",
			zap.String("queue", queue),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		if err := d.Nack(false, requeue); err != nil {
			c.logger.Error("failed to nack message", zap.String("queue", queue), zap.Error(err))
		}
	}

	c.logger.Info("queue worker stopped", zap.String("queue", queue))
}

// handle decodes one message body and dispatches it to the category pipeline.
func (c *Consumer) handle(ctx context.Context, queue string, body []byte) error {
	var ev domain.InboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch queue {
	case CommentQueue:
		return c.service.IngestComment(ctx, ev)
	case ChatQueue:
		return c.service.IngestChat(ctx, ev)
	case PaymentQueue:
		return c.service.IngestPayment(ctx, ev)
	case OfferQueue:
		return c.service.IngestOffer(ctx, ev)
	case AdminQueue:
		return c.service.IngestAdminRequest(ctx, ev)
	default:
		return fmt.Errorf("%w: unknown queue %s", ErrMalformedPayload, queue)
	}
}
