// Package queue implements the order ingress: a blocking subscriber to the
// "incoming_order" queue with prefetch=1 and manual acknowledgement, backed
// by NATS JetStream. A durable pull consumer with MaxAckPending(1) is the
// Go-idiomatic analogue of AMQP's prefetch=1: exactly one unacknowledged
// message is ever outstanding per process.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lanternex/matchingengine/internal/codec"
	"github.com/lanternex/matchingengine/internal/config"
	"github.com/lanternex/matchingengine/internal/errs"
	"github.com/lanternex/matchingengine/internal/model"
)

// QueueName is the durable queue orders are published to and consumed from.
const QueueName = "incoming_order"

const streamName = "MATCHING_ENGINE"

// maxDeliver bounds how many times JetStream will redeliver a message before
// handleOne dead-letters it outright, regardless of how the handler's error
// classifies. This is what actually protects against a poison message: a
// failure classified as retryable that recurs on every delivery would
// otherwise Nak forever across process restarts.
const maxDeliver = 5

// correlationHeader carries a per-message correlation ID generated at
// publish time, surfaced in every log line handleOne emits so a single
// order's retries/dead-lettering can be traced across process restarts.
const correlationHeader = "X-Correlation-ID"

// Handler processes one decoded order and reports success or failure; its
// error, when non-nil, must be classified via the errs package so Consume
// knows whether to retry (Nak) or dead-letter (Term) the message.
type Handler func(ctx context.Context, order model.Order) error

// Consumer wraps a NATS JetStream connection bound to the incoming_order
// queue. Grounded on
// internal/architecture/cqrs/eventbus/nats_adapter.go's connection/option
// setup, generalized from a fire-and-forget event bus to a blocking,
// ack-disciplined work queue.
type Consumer struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker
}

// Connect dials the broker described by cfg and ensures the incoming_order
// stream/durable consumer exist.
func Connect(cfg config.QueueConfig, logger *zap.Logger) (*Consumer, error) {
	opts := []nats.Option{
		nats.Name("matching-engine"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("queue disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("queue reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.URL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("queue: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue: jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(streamName); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:      streamName,
			Subjects:  []string{QueueName},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		}); err != nil {
			nc.Close()
			return nil, fmt.Errorf("queue: create stream: %w", err)
		}
	}

	sub, err := js.PullSubscribe(QueueName, "matching-engine", nats.ManualAck(), nats.MaxAckPending(1), nats.MaxDeliver(maxDeliver))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue: pull subscribe: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "matching-engine-store",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Consumer{conn: nc, js: js, sub: sub, logger: logger, breaker: breaker}, nil
}

// Close unsubscribes and closes the broker connection.
func (c *Consumer) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	c.conn.Close()
}

// Consume blocks forever, fetching one message at a time and invoking
// handler. Graceful shutdown is cooperative: cancelling ctx stops the loop
// after the in-flight message is acked or nak'd.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := c.sub.Fetch(1, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			c.logger.Warn("fetch failed", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			c.handleOne(ctx, msg, handler)
		}
	}
}

func (c *Consumer) handleOne(ctx context.Context, msg *nats.Msg, handler Handler) {
	correlationID := msg.Header.Get(correlationHeader)
	if correlationID == "" {
		correlationID = "unknown"
	}
	deliveryCount := DeliveryCount(msg)
	logger := c.logger.With(zap.String("correlation_id", correlationID), zap.Uint64("delivery_count", deliveryCount))

	order, err := codec.Decode(msg.Data)
	if err != nil {
		logger.Error("malformed message, dead-lettering", zap.Error(err))
		_ = msg.Term()
		return
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, handler(ctx, order)
	})

	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Error("ack failed", zap.Error(ackErr))
		}
	case errs.Is(err, errs.CodeReferentialFailure), errs.Is(err, errs.CodeMalformedMessage), errs.Is(err, errs.CodeInvariantViolation):
		logger.Error("non-retryable failure, dead-lettering", zap.Error(err))
		_ = msg.Term()
	case errors.Is(err, gobreaker.ErrOpenState):
		logger.Warn("store circuit open, requeueing", zap.Error(err))
		_ = msg.NakWithDelay(time.Second)
	case deliveryCount >= maxDeliver:
		logger.Error("exhausted redelivery attempts, dead-lettering", zap.Error(err))
		_ = msg.Term()
	default:
		logger.Warn("retryable failure, requeueing", zap.Error(err))
		_ = msg.Nak()
	}
}

// Publish encodes and publishes an order onto the incoming_order queue,
// stamping it with a fresh correlation ID; used by order submitters and the
// benchmark harness.
func (c *Consumer) Publish(order model.Order) error {
	payload, err := codec.Encode(order)
	if err != nil {
		return fmt.Errorf("queue: encode order: %w", err)
	}
	msg := nats.NewMsg(QueueName)
	msg.Data = payload
	msg.Header = nats.Header{}
	msg.Header.Set(correlationHeader, uuid.NewString())
	_, err = c.js.PublishMsg(msg)
	return err
}

// DeliveryCount reports how many times a message has been (re)delivered, per
// JetStream message metadata, used by handleOne to dead-letter a message
// once it has exhausted maxDeliver redeliveries.
func DeliveryCount(msg *nats.Msg) uint64 {
	meta, err := msg.Metadata()
	if err != nil {
		return 1
	}
	return meta.NumDelivered
}
