package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/db"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
)

type stubCreator struct {
	got   *pipeline.CreateInput
	calls int
	err   error
}

func (s *stubCreator) Execute(_ context.Context, in pipeline.CreateInput) (*appointment.Appointment, error) {
	s.calls++
	s.got = &in
	if s.err != nil {
		return nil, s.err
	}
	return appointment.New(in.InsuredID, in.ScheduleID, in.CountryISO), nil
}

type stubQuerier struct {
	got  string
	list []*appointment.Appointment
	err  error
}

func (s *stubQuerier) Execute(_ context.Context, insuredID string) ([]*appointment.Appointment, error) {
	s.got = insuredID
	return s.list, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubRegions map[string]error

func (s stubRegions) Ping(context.Context) map[string]error { return s }

func newTestRouter(c *stubCreator, q *stubQuerier) http.Handler {
	return NewRouter(RouterConfig{
		Creator: c,
		Querier: q,
		Store:   stubPinger{},
		Regions: stubRegions{"PE": nil, "CL": nil},
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "v0",
	})
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec, decoded
}

func TestCreateAppointment(t *testing.T) {
	creator := &stubCreator{}
	h := newTestRouter(creator, &stubQuerier{})

	rec, body := do(t, h, http.MethodPost, "/appointments", `{"insuredId":"12345","scheduleId":100,"countryISO":"PE"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", rec.Code, body)
	}
	if body["message"] != "Appointment created successfully" {
		t.Fatalf("unexpected message %v", body["message"])
	}
	data, _ := body["data"].(map[string]any)
	if data["insuredId"] != "12345" || data["status"] != "PENDING" || data["countryISO"] != "PE" {
		t.Fatalf("unexpected data %v", data)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
	if *creator.got != (pipeline.CreateInput{InsuredID: "12345", ScheduleID: 100, CountryISO: appointment.CountryPeru}) {
		t.Fatalf("unexpected input %+v", *creator.got)
	}
}

func TestCreateAppointmentCoercesScheduleID(t *testing.T) {
	creator := &stubCreator{}
	h := newTestRouter(creator, &stubQuerier{})

	rec, _ := do(t, h, http.MethodPost, "/appointments", `{"insuredId":"12345","scheduleId":"42","countryISO":"CL"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if creator.got.ScheduleID != 42 {
		t.Fatalf("expected scheduleId 42, got %d", creator.got.ScheduleID)
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string][]string
	}{
		{
			name: "all fields invalid",
			body: `{"insuredId":"12a","scheduleId":-1,"countryISO":"AR"}`,
			want: map[string][]string{
				"insuredId":  {"Insured ID must be 5 characters long", "Insured ID must be a 5-digit number"},
				"scheduleId": {"Schedule ID must be a positive integer"},
				"countryISO": {"Country ISO must be PE or CL"},
			},
		},
		{
			name: "empty insured id",
			body: `{"insuredId":"","scheduleId":1,"countryISO":"PE"}`,
			want: map[string][]string{
				"insuredId": {"Insured ID is required", "Insured ID must be 5 characters long", "Insured ID must be a 5-digit number"},
			},
		},
		{
			name: "empty body",
			body: ``,
			want: map[string][]string{
				"insuredId":  {"Insured ID is required"},
				"scheduleId": {"Schedule ID must be a positive integer"},
				"countryISO": {"Country ISO must be PE or CL"},
			},
		},
		{
			name: "fractional schedule id",
			body: `{"insuredId":"12345","scheduleId":1.5,"countryISO":"CL"}`,
			want: map[string][]string{
				"scheduleId": {"Schedule ID must be a positive integer"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &stubCreator{}
			h := newTestRouter(creator, &stubQuerier{})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Message != "Validation Error" {
				t.Fatalf("unexpected message %q", resp.Message)
			}
			if !reflect.DeepEqual(resp.Errors, tt.want) {
				t.Fatalf("errors mismatch:\n got %v\nwant %v", resp.Errors, tt.want)
			}
			if creator.calls != 0 {
				t.Fatal("creator must not run on invalid input")
			}
		})
	}
}

func TestCreateAppointmentInvalidJSON(t *testing.T) {
	h := newTestRouter(&stubCreator{}, &stubQuerier{})

	rec, body := do(t, h, http.MethodPost, "/appointments", `{"insuredId":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["message"] != "Invalid request body" || body["error"] != "Request body must be valid JSON" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCreateAppointmentBackendError(t *testing.T) {
	h := newTestRouter(&stubCreator{err: errors.New("publish appointment: broker unreachable")}, &stubQuerier{})

	rec, body := do(t, h, http.MethodPost, "/appointments", `{"insuredId":"12345","scheduleId":100,"countryISO":"PE"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body["message"] != "Internal Server Error" || body["error"] != "publish appointment: broker unreachable" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestListAppointments(t *testing.T) {
	a := appointment.New("12345", 1, appointment.CountryPeru)
	b := appointment.New("12345", 2, appointment.CountryChile)

	for _, target := range []string{"/appointments?insuredId=12345", "/appointments/12345"} {
		q := &stubQuerier{list: []*appointment.Appointment{b, a}}
		h := newTestRouter(&stubCreator{}, q)

		rec, body := do(t, h, http.MethodGet, target, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, rec.Code)
		}
		if q.got != "12345" {
			t.Fatalf("%s: expected insuredId 12345, got %q", target, q.got)
		}
		if body["message"] != "Appointments retrieved successfully" {
			t.Fatalf("%s: unexpected message %v", target, body["message"])
		}
		data, _ := body["data"].([]any)
		if len(data) != 2 || data[0].(map[string]any)["id"] != b.ID {
			t.Fatalf("%s: unexpected data %v", target, data)
		}
	}
}

func TestListAppointmentsEmpty(t *testing.T) {
	h := newTestRouter(&stubCreator{}, &stubQuerier{list: []*appointment.Appointment{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/12345", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Fatalf("expected an empty array, got %s", rec.Body.String())
	}
}

func TestListAppointmentsInvalidInsuredID(t *testing.T) {
	q := &stubQuerier{}
	h := newTestRouter(&stubCreator{}, q)

	rec, body := do(t, h, http.MethodGet, "/appointments?insuredId=abc", "")
	if rec.Code != http.StatusBadRequest || body["message"] != "Validation Error" {
		t.Fatalf("expected validation error, got %d %v", rec.Code, body)
	}
	if q.got != "" {
		t.Fatal("querier must not run on invalid input")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestRouter(&stubCreator{}, &stubQuerier{})

	rec, body := do(t, h, http.MethodDelete, "/appointments", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if body["message"] != "Method not allowed" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		store      error
		regions    stubRegions
		wantCode   int
		wantStatus string
	}{
		{"healthy", nil, stubRegions{"PE": nil}, http.StatusOK, "ok"},
		{"region down", nil, stubRegions{"PE": errors.New("refused")}, http.StatusOK, "degraded"},
		{"store down", errors.New("refused"), stubRegions{"PE": nil}, http.StatusServiceUnavailable, "error"},
		{"region not opened", nil, stubRegions{"PE": nil, "CL": fmt.Errorf("%w: CL", db.ErrNoPool)}, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(stubPinger{err: tt.store}, tt.regions, "test", "v0")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var resp ReadinessResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Fatalf("expected status %q, got %q", tt.wantStatus, resp.Status)
			}
		})
	}
}

type deadlineRegions struct{ remaining time.Duration }

func (d *deadlineRegions) Ping(ctx context.Context) map[string]error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return map[string]error{"PE": errors.New("no deadline")}
	}
	d.remaining = time.Until(deadline)
	return map[string]error{"PE": nil}
}

func TestReadinessBoundsRegionPing(t *testing.T) {
	regions := &deadlineRegions{}
	h := NewHealthHandler(stubPinger{}, regions, "test", "v0")
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if regions.remaining <= 0 || regions.remaining > time.Second {
		t.Fatalf("expected region ping bounded by 1s, got %s", regions.remaining)
	}
}
