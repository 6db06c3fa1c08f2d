package appointment

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func withClock(t *testing.T, times ...time.Time) {
	t.Helper()
	orig := now
	i := 0
	now = func() time.Time {
		ts := times[i]
		if i < len(times)-1 {
			i++
		}
		return ts
	}
	t.Cleanup(func() { now = orig })
}

func TestNewAppointmentDefaults(t *testing.T) {
	a := New("12345", 100, CountryPeru)

	if a.ID == "" {
		t.Fatal("expected generated id")
	}
	if a.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", a.Status)
	}
	if !a.CreatedAt.Equal(a.UpdatedAt) {
		t.Fatalf("expected createdAt == updatedAt, got %s and %s", a.CreatedAt, a.UpdatedAt)
	}
	if a.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamps, got %s", a.CreatedAt.Location())
	}

	b := New("12345", 100, CountryPeru)
	if a.ID == b.ID {
		t.Fatal("expected distinct ids for distinct appointments")
	}
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	withClock(t, base, base.Add(time.Minute), base.Add(2*time.Minute))

	a := New("12345", 100, CountryChile)

	a.UpdateStatus(StatusCompleted)
	first := a.UpdatedAt
	if a.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", a.Status)
	}
	if !first.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected updatedAt to be stamped, got %s", first)
	}

	a.UpdateStatus(StatusCompleted)
	if a.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED after second call, got %s", a.Status)
	}
	if a.UpdatedAt.Before(first) {
		t.Fatalf("updatedAt went backwards: %s < %s", a.UpdatedAt, first)
	}
	if !a.CreatedAt.Equal(base) {
		t.Fatalf("createdAt changed: %s", a.CreatedAt)
	}
}

func TestUpdateStatusCompletedIsTerminal(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	withClock(t, base, base.Add(time.Minute), base.Add(2*time.Minute))

	a := New("12345", 100, CountryPeru)
	a.UpdateStatus(StatusCompleted)
	completedAt := a.UpdatedAt

	a.UpdateStatus(StatusPending)
	if !a.IsCompleted() {
		t.Fatalf("expected COMPLETED to stick, got %s", a.Status)
	}
	if !a.UpdatedAt.Equal(completedAt) {
		t.Fatalf("rejected transition touched updatedAt: %s != %s", a.UpdatedAt, completedAt)
	}
}

func TestUpdateStatusNeverPrecedesCreatedAt(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	skewed := created.Add(-time.Hour)
	withClock(t, skewed)

	a := &Appointment{
		ID:         "x",
		InsuredID:  "12345",
		ScheduleID: 1,
		CountryISO: CountryPeru,
		Status:     StatusPending,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	a.UpdateStatus(StatusCompleted)

	if a.UpdatedAt.Before(a.CreatedAt) {
		t.Fatalf("updatedAt %s before createdAt %s", a.UpdatedAt, a.CreatedAt)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	a := New("54321", 7, CountryChile)
	a.UpdateStatus(StatusCompleted)

	got, err := FromRecord(a.Record())
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	assertSameAppointment(t, a, got)

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Appointment
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	assertSameAppointment(t, a, &decoded)

	hash := map[string]string{}
	for k, v := range a.Hash() {
		hash[k] = v.(string)
	}
	fromHash, err := FromHash(hash)
	if err != nil {
		t.Fatalf("from hash: %v", err)
	}
	assertSameAppointment(t, a, fromHash)
}

func TestFromRecordKeepsHistoricalFields(t *testing.T) {
	r := Record{
		ID:         "test-id",
		InsuredID:  "12345",
		ScheduleID: 100,
		CountryISO: "PE",
		Status:     "PENDING",
		CreatedAt:  "2023-01-01T12:00:00.000Z",
		UpdatedAt:  "2023-01-01T12:00:00.000Z",
	}

	a, err := FromRecord(r)
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if a.ID != "test-id" {
		t.Fatalf("id regenerated: %s", a.ID)
	}
	if got := a.Record(); got != r {
		t.Fatalf("record mismatch:\n got %+v\nwant %+v", got, r)
	}
}

func TestFromRecordAppliesDefaults(t *testing.T) {
	a, err := FromRecord(Record{InsuredID: "12345", ScheduleID: 3, CountryISO: "CL"})
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if a.ID == "" || a.Status != StatusPending {
		t.Fatalf("defaults not applied: %+v", a)
	}
	if !a.CreatedAt.Equal(a.UpdatedAt) {
		t.Fatalf("expected equal timestamps, got %s and %s", a.CreatedAt, a.UpdatedAt)
	}
}

func TestFromRecordRejectsMalformedInput(t *testing.T) {
	cases := map[string]Record{
		"country":   {InsuredID: "12345", ScheduleID: 1, CountryISO: "AR"},
		"status":    {InsuredID: "12345", ScheduleID: 1, CountryISO: "PE", Status: "CANCELLED"},
		"createdAt": {InsuredID: "12345", ScheduleID: 1, CountryISO: "PE", CreatedAt: "yesterday"},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromRecord(r)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}

	_, err := FromRecord(Record{CountryISO: "AR"})
	if !errors.Is(err, ErrUnsupportedCountry) {
		t.Fatalf("expected ErrUnsupportedCountry, got %v", err)
	}
}

func TestProcessedEventEnvelope(t *testing.T) {
	a := New("12345", 100, CountryPeru)
	ev := NewProcessedEvent(a)

	if ev.DetailType != DetailTypeProcessed {
		t.Fatalf("unexpected detail type %q", ev.DetailType)
	}
	if ev.Source != "appointment.pe" {
		t.Fatalf("unexpected source %q", ev.Source)
	}
	if ev.Detail != a.Record() {
		t.Fatalf("detail mismatch: %+v", ev.Detail)
	}
}

func assertSameAppointment(t *testing.T, want, got *Appointment) {
	t.Helper()
	if got.ID != want.ID || got.InsuredID != want.InsuredID || got.ScheduleID != want.ScheduleID ||
		got.CountryISO != want.CountryISO || got.Status != want.Status {
		t.Fatalf("appointment mismatch:\n got %+v\nwant %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("timestamp mismatch:\n got %s/%s\nwant %s/%s", got.CreatedAt, got.UpdatedAt, want.CreatedAt, want.UpdatedAt)
	}
}
