package appointment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Record is the flat key/value form of an appointment. It is the primary
// store hash, the fan-out payload and the broadcast event detail.
type Record struct {
	ID         string `json:"id"`
	InsuredID  string `json:"insuredId"`
	ScheduleID int64  `json:"scheduleId"`
	CountryISO string `json:"countryISO"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (a *Appointment) Record() Record {
	return Record{
		ID:         a.ID,
		InsuredID:  a.InsuredID,
		ScheduleID: a.ScheduleID,
		CountryISO: string(a.CountryISO),
		Status:     string(a.Status),
		CreatedAt:  FormatTime(a.CreatedAt),
		UpdatedAt:  FormatTime(a.UpdatedAt),
	}
}

// FromRecord rehydrates an appointment. Fields left empty get the same
// defaults as New; a present id is always kept.
func FromRecord(r Record) (*Appointment, error) {
	country := Country(r.CountryISO)
	if !country.Valid() {
		return nil, fmt.Errorf("%w: %w %q", ErrMalformedRecord, ErrUnsupportedCountry, r.CountryISO)
	}

	a := &Appointment{
		ID:         r.ID,
		InsuredID:  r.InsuredID,
		ScheduleID: r.ScheduleID,
		CountryISO: country,
		Status:     Status(r.Status),
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if !a.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedRecord, r.Status)
	}

	ts := now()
	var err error
	a.CreatedAt, err = parseOrDefault(r.CreatedAt, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: createdAt: %v", ErrMalformedRecord, err)
	}
	a.UpdatedAt, err = parseOrDefault(r.UpdatedAt, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: updatedAt: %v", ErrMalformedRecord, err)
	}

	return a, nil
}

func parseOrDefault(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return ParseTime(s)
}

func (a *Appointment) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Record())
}

func (a *Appointment) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	parsed, err := FromRecord(r)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

// Hash returns the record as Redis hash fields.
func (a *Appointment) Hash() map[string]any {
	r := a.Record()
	return map[string]any{
		"id":         r.ID,
		"insuredId":  r.InsuredID,
		"scheduleId": strconv.FormatInt(r.ScheduleID, 10),
		"countryISO": r.CountryISO,
		"status":     r.Status,
		"createdAt":  r.CreatedAt,
		"updatedAt":  r.UpdatedAt,
	}
}

func FromHash(h map[string]string) (*Appointment, error) {
	scheduleID, err := strconv.ParseInt(h["scheduleId"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduleId: %v", ErrMalformedRecord, err)
	}
	return FromRecord(Record{
		ID:         h["id"],
		InsuredID:  h["insuredId"],
		ScheduleID: scheduleID,
		CountryISO: h["countryISO"],
		Status:     h["status"],
		CreatedAt:  h["createdAt"],
		UpdatedAt:  h["updatedAt"],
	})
}
