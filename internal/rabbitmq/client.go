package rabbitmq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
)

// Topology names the exchanges and queues of the pipeline.
type Topology struct {
	// FanoutExchange is a direct exchange routing new appointments to the
	// queue of their region.
	FanoutExchange string
	// EventExchange is a fanout exchange broadcasting processed appointments.
	EventExchange string
	// RegionQueuePrefix + lowercase country is the queue of a regional processor.
	RegionQueuePrefix string
	// CompletionQueue receives broadcast events for the completion stage.
	CompletionQueue string
	// IntakeQueue receives booking requests for asynchronous creation. It is
	// reached through the default exchange by its name.
	IntakeQueue string
	// DeadLetterExchange and DeadLetterQueue collect messages rejected after
	// DeliveryLimit failed deliveries.
	DeadLetterExchange string
	DeadLetterQueue    string
	DeliveryLimit      int
}

func DefaultTopology() Topology {
	return Topology{
		FanoutExchange:     "appointments.fanout",
		EventExchange:      "appointments.events",
		RegionQueuePrefix:  "appointments.",
		CompletionQueue:    "appointments.completion",
		IntakeQueue:        "appointments.intake",
		DeadLetterExchange: "appointments.dead-letter",
		DeadLetterQueue:    "appointments.dead-letter",
		DeliveryLimit:      3,
	}
}

// RoutingKey is the fan-out routing key for a country, e.g. "appointment.pe".
func RoutingKey(c appointment.Country) string {
	return appointment.EventSource(c)
}

func (t Topology) RegionQueue(c appointment.Country) string {
	return t.RegionQueuePrefix + strings.ToLower(string(c))
}

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	topology Topology
	logger   zerolog.Logger
}

func Dial(url string, topology Topology, logger zerolog.Logger) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Error().Err(err).Msg("rabbitmq connect failed")
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error().Err(err).Msg("rabbitmq channel failed")
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	return &Client{
		conn:     conn,
		channel:  channel,
		topology: topology,
		logger:   logger,
	}, nil
}

func (c *Client) Channel() *amqp.Channel { return c.channel }

func (c *Client) Topology() Topology { return c.topology }

// SetPrefetch bounds the unacknowledged deliveries the broker pushes to this
// channel.
func (c *Client) SetPrefetch(count int) error {
	if err := c.channel.Qos(count, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	return nil
}

// DeclareTopology creates both exchanges, one queue per country bound by its
// routing key, the completion queue bound to the event exchange, the intake
// queue and the dead-letter route all work queues reject into.
func (c *Client) DeclareTopology(countries []appointment.Country) error {
	if err := c.channel.ExchangeDeclare(
		c.topology.FanoutExchange,
		amqp.ExchangeDirect,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare fan-out exchange: %w", err)
	}

	if err := c.channel.ExchangeDeclare(
		c.topology.EventExchange,
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare event exchange: %w", err)
	}

	if err := c.channel.ExchangeDeclare(
		c.topology.DeadLetterExchange,
		amqp.ExchangeFanout,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if err := c.declareQueue(c.topology.DeadLetterQueue, nil); err != nil {
		return err
	}
	if err := c.bindQueue(c.topology.DeadLetterQueue, "", c.topology.DeadLetterExchange); err != nil {
		return err
	}

	args := c.topology.WorkQueueArgs()
	for _, country := range countries {
		queue := c.topology.RegionQueue(country)
		if err := c.declareQueue(queue, args); err != nil {
			return err
		}
		if err := c.bindQueue(queue, RoutingKey(country), c.topology.FanoutExchange); err != nil {
			return err
		}
	}

	if err := c.declareQueue(c.topology.CompletionQueue, args); err != nil {
		return err
	}
	if err := c.bindQueue(c.topology.CompletionQueue, "", c.topology.EventExchange); err != nil {
		return err
	}

	return c.declareQueue(c.topology.IntakeQueue, args)
}

// WorkQueueArgs declares a quorum queue so the broker tracks delivery counts,
// dead-lettering a message once it has failed DeliveryLimit times.
func (t Topology) WorkQueueArgs() amqp.Table {
	args := amqp.Table{"x-queue-type": "quorum"}
	if t.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = t.DeadLetterExchange
	}
	if t.DeliveryLimit > 0 {
		args["x-delivery-limit"] = int64(t.DeliveryLimit)
	}
	return args
}

func (c *Client) declareQueue(name string, args amqp.Table) error {
	_, err := c.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

func (c *Client) bindQueue(name, key, exchange string) error {
	if err := c.channel.QueueBind(name, key, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", name, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.channel == nil {
		return nil
	}
	if err := c.channel.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}
