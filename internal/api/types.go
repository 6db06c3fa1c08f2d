package api

import (
	"github.com/hackgods/appointment-pipeline/internal/appointment"
)

// CreateAppointmentRequest keeps the raw JSON values so type mismatches are
// reported per field instead of failing the whole body.
type CreateAppointmentRequest struct {
	InsuredID  any `json:"insuredId"`
	ScheduleID any `json:"scheduleId"`
	CountryISO any `json:"countryISO"`
}

type AppointmentResponse struct {
	Message string                   `json:"message"`
	Data    *appointment.Appointment `json:"data"`
}

type AppointmentListResponse struct {
	Message string                     `json:"message"`
	Data    []*appointment.Appointment `json:"data"`
}

type ErrorResponse struct {
	Message string              `json:"message"`
	Error   string              `json:"error,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}
