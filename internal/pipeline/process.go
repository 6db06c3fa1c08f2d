package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
)

// ProcessStage is bound to one region: its regional repository and the
// broadcast publisher.
type ProcessStage struct {
	country   appointment.Country
	regional  appointment.Repository
	publisher EventPublisher
	logger    zerolog.Logger
}

func NewProcessStage(country appointment.Country, regional appointment.Repository, publisher EventPublisher, logger zerolog.Logger) *ProcessStage {
	return &ProcessStage{
		country:   country,
		regional:  regional,
		publisher: publisher,
		logger:    logger.With().Str("stage", "process").Str("country", string(country)).Logger(),
	}
}

func (s *ProcessStage) Execute(ctx context.Context, a *appointment.Appointment) error {
	if a.CountryISO != s.country {
		s.logger.Warn().Str("appointment_id", a.ID).Str("appointment_country", string(a.CountryISO)).
			Msg("appointment routed to another region")
	}

	stored, err := s.regional.Create(ctx, a)
	if err != nil {
		return fmt.Errorf("store regional appointment: %w", err)
	}

	if err := s.publisher.PublishProcessedAppointment(ctx, stored); err != nil {
		return fmt.Errorf("broadcast processed appointment: %w", err)
	}

	s.logger.Info().Str("appointment_id", stored.ID).Msg("appointment processed")
	return nil
}

// HandleBatch processes messages in order and returns on the first failure so
// the whole batch is redelivered. Records that already succeeded will be
// processed again.
func (s *ProcessStage) HandleBatch(ctx context.Context, bodies [][]byte) error {
	for i, body := range bodies {
		a, err := decodeAppointment(body)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := s.Execute(ctx, a); err != nil {
			s.logger.Error().Err(err).Int("record", i).Str("appointment_id", a.ID).Msg("process failed")
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}
