package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
)

// HeaderCountry tags fan-out messages with the appointment region.
const HeaderCountry = "countryISO"

// channelPublisher is the subset of *amqp.Channel used for publishing.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// FanoutPublisher hands new appointments to the processor of their region.
type FanoutPublisher struct {
	ch       channelPublisher
	exchange string
	logger   zerolog.Logger
}

func NewFanoutPublisher(ch channelPublisher, exchange string, logger zerolog.Logger) *FanoutPublisher {
	return &FanoutPublisher{ch: ch, exchange: exchange, logger: logger}
}

func (p *FanoutPublisher) PublishAppointment(ctx context.Context, a *appointment.Appointment) error {
	body, err := json.Marshal(a.Record())
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}

	key := RoutingKey(a.CountryISO)
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    a.ID,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{HeaderCountry: string(a.CountryISO)},
		Body:         body,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("appointment_id", a.ID).Str("routing_key", key).Msg("fan-out publish failed")
		return fmt.Errorf("publish appointment: %w", err)
	}

	p.logger.Info().Str("appointment_id", a.ID).Str("routing_key", key).Msg("appointment published")
	return nil
}

// EventBusPublisher broadcasts processed appointments to every subscriber.
type EventBusPublisher struct {
	ch       channelPublisher
	exchange string
	logger   zerolog.Logger
}

func NewEventBusPublisher(ch channelPublisher, exchange string, logger zerolog.Logger) *EventBusPublisher {
	return &EventBusPublisher{ch: ch, exchange: exchange, logger: logger}
}

func (p *EventBusPublisher) PublishProcessedAppointment(ctx context.Context, a *appointment.Appointment) error {
	ev := appointment.NewProcessedEvent(a)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    a.ID,
		Type:         ev.DetailType,
		AppId:        ev.Source,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("event publish failed")
		return fmt.Errorf("publish processed event: %w", err)
	}

	p.logger.Info().Str("appointment_id", a.ID).Str("source", ev.Source).Msg("processed event published")
	return nil
}

// IntakePublisher queues booking requests for the intake worker, which books
// them through the create stage.
type IntakePublisher struct {
	ch     channelPublisher
	queue  string
	logger zerolog.Logger
}

func NewIntakePublisher(ch channelPublisher, queue string, logger zerolog.Logger) *IntakePublisher {
	return &IntakePublisher{ch: ch, queue: queue, logger: logger}
}

func (p *IntakePublisher) PublishCreateRequest(ctx context.Context, in pipeline.CreateInput) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode create request: %w", err)
	}

	// The default exchange routes by queue name.
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{HeaderCountry: string(in.CountryISO)},
		Body:         body,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("insured_id", in.InsuredID).Msg("intake publish failed")
		return fmt.Errorf("publish create request: %w", err)
	}
	return nil
}
