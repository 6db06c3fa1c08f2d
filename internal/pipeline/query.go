package pipeline

import (
	"context"
	"fmt"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
)

type QueryStage struct {
	store appointment.Repository
}

func NewQueryStage(store appointment.Repository) *QueryStage {
	return &QueryStage{store: store}
}

// Execute lists the appointments of an insured person, newest first. The
// result is never nil.
func (s *QueryStage) Execute(ctx context.Context, insuredID string) ([]*appointment.Appointment, error) {
	list, err := s.store.FindAllByInsuredID(ctx, insuredID)
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}
	if list == nil {
		list = []*appointment.Appointment{}
	}
	return list, nil
}
