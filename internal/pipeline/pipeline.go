// Package pipeline holds the stages an appointment moves through:
// Create (primary store, then fan-out), Process (regional store, then
// broadcast), Complete (terminal status in the primary store) and Query.
//
// Stages never retry or deduplicate. Redelivery is the broker's job and
// idempotency is pushed down into the repositories.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
)

// FanoutPublisher hands a new appointment to the processor of its region.
type FanoutPublisher interface {
	PublishAppointment(ctx context.Context, a *appointment.Appointment) error
}

// EventPublisher announces that a region has processed an appointment.
type EventPublisher interface {
	PublishProcessedAppointment(ctx context.Context, a *appointment.Appointment) error
}

// CreateInput is a booking request that already passed boundary validation.
type CreateInput struct {
	InsuredID  string              `json:"insuredId"`
	ScheduleID int64               `json:"scheduleId"`
	CountryISO appointment.Country `json:"countryISO"`
}

func decodeCreateInput(body []byte) (CreateInput, error) {
	var in CreateInput
	if err := json.Unmarshal(body, &in); err != nil {
		return in, fmt.Errorf("decode create message: %w", err)
	}
	if in.InsuredID == "" || in.ScheduleID <= 0 {
		return in, fmt.Errorf("%w: missing insuredId or scheduleId", appointment.ErrMalformedRecord)
	}
	if !in.CountryISO.Valid() {
		return in, fmt.Errorf("%w: %w %q", appointment.ErrMalformedRecord, appointment.ErrUnsupportedCountry, in.CountryISO)
	}
	return in, nil
}

// decodeAppointment rehydrates a fan-out payload.
func decodeAppointment(body []byte) (*appointment.Appointment, error) {
	var rec appointment.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode appointment message: %w", err)
	}
	return appointment.FromRecord(rec)
}

func decodeEvent(body []byte) (appointment.ProcessedEvent, error) {
	var ev appointment.ProcessedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
