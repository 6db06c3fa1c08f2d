package main

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
)

type countingStore struct {
	created []*appointment.Appointment
}

func (s *countingStore) Create(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	s.created = append(s.created, a)
	return a, nil
}

func (s *countingStore) ProcessAppointment(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	return a, nil
}

func (s *countingStore) FindAllByInsuredID(context.Context, string) ([]*appointment.Appointment, error) {
	return []*appointment.Appointment{}, nil
}

type countingPublisher struct{ n int }

func (p *countingPublisher) PublishAppointment(context.Context, *appointment.Appointment) error {
	p.n++
	return nil
}

func TestSeedAppointments(t *testing.T) {
	store := &countingStore{}
	pub := &countingPublisher{}
	stage := pipeline.NewCreateStage(store, pub, zerolog.Nop())
	book := func(ctx context.Context, in pipeline.CreateInput) error {
		_, err := stage.Execute(ctx, in)
		return err
	}

	if err := seedAppointments(context.Background(), book, gofakeit.New(42), 25, 3); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(store.created) != 25 || pub.n != 25 {
		t.Fatalf("expected 25 stored and published, got %d and %d", len(store.created), pub.n)
	}

	digits := regexp.MustCompile(`^[0-9]{5}$`)
	insured := map[string]bool{}
	for _, a := range store.created {
		if !digits.MatchString(a.InsuredID) {
			t.Fatalf("insured id %q is not 5 digits", a.InsuredID)
		}
		if !a.CountryISO.Valid() || a.ScheduleID < 1 {
			t.Fatalf("unexpected appointment %+v", a)
		}
		insured[a.InsuredID] = true
	}
	if len(insured) > 3 {
		t.Fatalf("expected at most 3 insured ids, got %d", len(insured))
	}
}

func TestSeedThroughIntakeMessages(t *testing.T) {
	var queued [][]byte
	enqueue := func(_ context.Context, in pipeline.CreateInput) error {
		body, err := json.Marshal(in)
		if err != nil {
			return err
		}
		queued = append(queued, body)
		return nil
	}

	if err := seedAppointments(context.Background(), enqueue, gofakeit.New(7), 12, 4); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := &countingStore{}
	pub := &countingPublisher{}
	stage := pipeline.NewCreateStage(store, pub, zerolog.Nop())
	if err := stage.HandleBatch(context.Background(), queued); err != nil {
		t.Fatalf("handle batch: %v", err)
	}
	if len(store.created) != 12 || pub.n != 12 {
		t.Fatalf("expected 12 booked from intake messages, got %d stored and %d published", len(store.created), pub.n)
	}
}

func TestTrafficStatsSummary(t *testing.T) {
	var stats trafficStats
	stats.observe(http.StatusCreated, 10*time.Millisecond)
	stats.observe(http.StatusBadRequest, 20*time.Millisecond)
	stats.observe(http.StatusInternalServerError, 30*time.Millisecond)
	stats.observe(0, 40*time.Millisecond)

	got := stats.summary()
	if got.Total != 4 || got.OK != 1 || got.Rejected != 1 || got.Failed != 2 {
		t.Fatalf("unexpected counters %+v", got)
	}
	if got.P50 != 20*time.Millisecond || got.P95 != 30*time.Millisecond {
		t.Fatalf("unexpected percentiles p50=%s p95=%s", got.P50, got.P95)
	}

	var empty trafficStats
	if s := empty.summary(); s.Total != 0 || s.P95 != 0 {
		t.Fatalf("expected empty summary, got %+v", s)
	}
}
