package appointment

import (
	"strings"
	"time"
)

const DetailTypeProcessed = "APPOINTMENT_PROCESSED"

// ProcessedEvent is the broadcast envelope announcing that a regional
// processor has handled an appointment.
type ProcessedEvent struct {
	Source     string `json:"source"`
	DetailType string `json:"detail-type"`
	Detail     Record `json:"detail"`
	Time       string `json:"time"`
}

func NewProcessedEvent(a *Appointment) ProcessedEvent {
	return ProcessedEvent{
		Source:     EventSource(a.CountryISO),
		DetailType: DetailTypeProcessed,
		Detail:     a.Record(),
		Time:       FormatTime(time.Now()),
	}
}

// EventSource is the source tag used for events of a region, e.g. "appointment.pe".
func EventSource(c Country) string {
	return "appointment." + strings.ToLower(string(c))
}
