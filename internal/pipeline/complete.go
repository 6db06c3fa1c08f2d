package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
)

type CompleteStage struct {
	store  appointment.Repository
	logger zerolog.Logger
}

func NewCompleteStage(store appointment.Repository, logger zerolog.Logger) *CompleteStage {
	return &CompleteStage{store: store, logger: logger.With().Str("stage", "complete").Logger()}
}

// Execute marks the appointment COMPLETED in the primary store. Running it
// again for the same appointment re-applies the same terminal status.
func (s *CompleteStage) Execute(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	a.UpdateStatus(appointment.StatusCompleted)

	updated, err := s.store.ProcessAppointment(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logger.Info().Str("appointment_id", updated.ID).Msg("appointment completed")
	return updated, nil
}

// HandleBatch applies every APPOINTMENT_PROCESSED event in the batch. Other
// event types are skipped and failures are logged without stopping the
// batch, so it always returns nil.
func (s *CompleteStage) HandleBatch(ctx context.Context, bodies [][]byte) error {
	for i, body := range bodies {
		ev, err := decodeEvent(body)
		if err != nil {
			s.logger.Error().Err(err).Int("record", i).Msg("skipping undecodable event")
			continue
		}
		if ev.DetailType != appointment.DetailTypeProcessed {
			s.logger.Info().Int("record", i).Str("detail_type", ev.DetailType).Msg("ignoring event")
			continue
		}

		a, err := appointment.FromRecord(ev.Detail)
		if err != nil {
			s.logger.Error().Err(err).Int("record", i).Msg("skipping malformed event detail")
			continue
		}
		if _, err := s.Execute(ctx, a); err != nil {
			s.logger.Error().Err(err).Int("record", i).Str("appointment_id", a.ID).Msg("complete failed")
		}
	}
	return nil
}
