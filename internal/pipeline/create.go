package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
)

type CreateStage struct {
	store     appointment.Repository
	publisher FanoutPublisher
	logger    zerolog.Logger
}

func NewCreateStage(store appointment.Repository, publisher FanoutPublisher, logger zerolog.Logger) *CreateStage {
	return &CreateStage{store: store, publisher: publisher, logger: logger.With().Str("stage", "create").Logger()}
}

// Execute stores a new PENDING appointment and publishes it for its region.
// When the publish fails the stored record is left as is; nothing rolls it
// back and nothing re-publishes it.
func (s *CreateStage) Execute(ctx context.Context, in CreateInput) (*appointment.Appointment, error) {
	a := appointment.New(in.InsuredID, in.ScheduleID, in.CountryISO)

	created, err := s.store.Create(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("store appointment: %w", err)
	}

	if err := s.publisher.PublishAppointment(ctx, created); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", created.ID).
			Str("country", string(created.CountryISO)).
			Msg("appointment stored as PENDING but not published")
		return nil, fmt.Errorf("publish appointment: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", created.ID).
		Str("insured_id", created.InsuredID).
		Str("country", string(created.CountryISO)).
		Msg("appointment created")
	return created, nil
}

// HandleBatch creates one appointment per message. Failures are logged and
// the remaining messages are still attempted.
func (s *CreateStage) HandleBatch(ctx context.Context, bodies [][]byte) error {
	for i, body := range bodies {
		in, err := decodeCreateInput(body)
		if err != nil {
			s.logger.Warn().Err(err).Int("record", i).Msg("skipping malformed create message")
			continue
		}
		if _, err := s.Execute(ctx, in); err != nil {
			s.logger.Error().Err(err).Int("record", i).Msg("create from message failed")
		}
	}
	return nil
}
