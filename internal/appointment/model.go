package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Country selects the regional store and the fan-out routing of an appointment.
type Country string

const (
	CountryPeru  Country = "PE"
	CountryChile Country = "CL"
)

// Countries lists every supported region in a stable order.
var Countries = []Country{CountryPeru, CountryChile}

func (c Country) Valid() bool {
	return c == CountryPeru || c == CountryChile
}

// TimeLayout is the wire format of CreatedAt and UpdatedAt.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

type Appointment struct {
	ID         string
	InsuredID  string
	ScheduleID int64
	CountryISO Country
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// now is replaced in tests that need a controlled clock.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// New builds a fresh PENDING appointment with a generated id.
func New(insuredID string, scheduleID int64, country Country) *Appointment {
	ts := now()
	return &Appointment{
		ID:         uuid.NewString(),
		InsuredID:  insuredID,
		ScheduleID: scheduleID,
		CountryISO: country,
		Status:     StatusPending,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

// UpdateStatus is the only mutation an appointment supports. Re-applying the
// current status is allowed and simply refreshes UpdatedAt. COMPLETED is
// terminal: moving a completed appointment to any other status is a no-op.
func (a *Appointment) UpdateStatus(status Status) {
	if a.IsCompleted() && status != StatusCompleted {
		return
	}
	ts := now()
	if ts.Before(a.UpdatedAt) {
		ts = a.UpdatedAt
	}
	if ts.Before(a.CreatedAt) {
		ts = a.CreatedAt
	}
	a.Status = status
	a.UpdatedAt = ts
}

func (a *Appointment) IsCompleted() bool {
	return a.Status == StatusCompleted
}
