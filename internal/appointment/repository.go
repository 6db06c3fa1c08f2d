package appointment

import (
	"context"
	"errors"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrMalformedRecord     = errors.New("malformed appointment record")
	ErrUnsupportedCountry  = errors.New("unsupported country")
)

// Repository is implemented by the primary store and by every regional store.
//
// Implementations must tolerate the same appointment being written more than
// once: messages are delivered at least once and the pipeline stages never
// deduplicate on their own.
type Repository interface {
	Create(ctx context.Context, a *Appointment) (*Appointment, error)

	// ProcessAppointment persists the lifecycle fields of an already stored
	// appointment and returns the stored result.
	ProcessAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// FindAllByInsuredID returns matches newest first, or an empty slice.
	FindAllByInsuredID(ctx context.Context, insuredID string) ([]*Appointment, error)
}
