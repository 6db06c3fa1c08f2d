package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Handler processes one batch of message bodies. A non-nil error requeues the
// whole batch, except deliveries that used up MaxDeliveries, which are
// dead-lettered.
type Handler func(ctx context.Context, bodies [][]byte) error

type deliverySource interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type ConsumerOptions struct {
	Queue     string
	Name      string
	BatchSize int
	BatchWait time.Duration
	// MaxDeliveries bounds how often a message is handed to a failing
	// handler. Zero means unbounded.
	MaxDeliveries int
}

type Consumer struct {
	source deliverySource
	opts   ConsumerOptions
	logger zerolog.Logger
}

func NewConsumer(source deliverySource, opts ConsumerOptions, logger zerolog.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.BatchWait <= 0 {
		opts.BatchWait = time.Second
	}
	return &Consumer{
		source: source,
		opts:   opts,
		logger: logger.With().Str("queue", opts.Queue).Logger(),
	}
}

// Run consumes until ctx is done or the broker closes the channel. Deliveries
// are grouped into batches of at most BatchSize, flushed early once BatchWait
// has passed since the first message of the batch.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	deliveries, err := c.source.Consume(
		c.opts.Queue,
		c.opts.Name,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.opts.Queue, err)
	}

	c.logger.Info().Int("batch_size", c.opts.BatchSize).Msg("consumer started")

	batch := make([]amqp.Delivery, 0, c.opts.BatchSize)
	var deadline <-chan time.Time

	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.dispatch(ctx, handle, batch)
		batch = batch[:0]
		deadline = nil
	}

	for {
		select {
		case <-ctx.Done():
			c.requeue(batch)
			c.logger.Info().Msg("consumer stopped")
			return nil

		case d, ok := <-deliveries:
			if !ok {
				flush()
				return ErrDeliveriesClosed
			}
			batch = append(batch, d)
			if len(batch) == 1 {
				deadline = time.After(c.opts.BatchWait)
			}
			if len(batch) >= c.opts.BatchSize {
				flush()
			}

		case <-deadline:
			flush()
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, handle Handler, batch []amqp.Delivery) {
	bodies := make([][]byte, len(batch))
	for i, d := range batch {
		bodies[i] = d.Body
	}

	if err := handle(ctx, bodies); err != nil {
		c.logger.Error().Err(err).Int("messages", len(batch)).Msg("batch failed")
		c.retry(batch)
		return
	}

	for _, d := range batch {
		if err := d.Ack(false); err != nil {
			c.logger.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("ack failed")
		}
	}
	c.logger.Debug().Int("messages", len(batch)).Msg("batch acknowledged")
}

func (c *Consumer) requeue(batch []amqp.Delivery) {
	for _, d := range batch {
		if err := d.Nack(false, true); err != nil {
			c.logger.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("nack failed")
		}
	}
}

// retry requeues a failed batch. Deliveries on their last allowed attempt are
// rejected instead, which routes them to the queue's dead-letter exchange.
func (c *Consumer) retry(batch []amqp.Delivery) {
	for _, d := range batch {
		n := deliveryAttempt(d)
		if c.opts.MaxDeliveries <= 0 || n < c.opts.MaxDeliveries {
			if err := d.Nack(false, true); err != nil {
				c.logger.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("nack failed")
			}
			continue
		}
		c.logger.Error().
			Str("message_id", d.MessageId).
			Int("attempt", n).
			Msg("delivery limit reached, dead-lettering message")
		if err := d.Nack(false, false); err != nil {
			c.logger.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("reject failed")
		}
	}
}

// deliveryAttempt numbers the deliveries of a message from 1. Quorum queues
// count earlier deliveries in x-delivery-count; other queues only flag a
// redelivery.
func deliveryAttempt(d amqp.Delivery) int {
	switch n := d.Headers["x-delivery-count"].(type) {
	case int64:
		return int(n) + 1
	case int32:
		return int(n) + 1
	case int:
		return n + 1
	}
	if d.Redelivered {
		return 2
	}
	return 1
}
