package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
)

type AppointmentCreator interface {
	Execute(ctx context.Context, in pipeline.CreateInput) (*appointment.Appointment, error)
}

type AppointmentQuerier interface {
	Execute(ctx context.Context, insuredID string) ([]*appointment.Appointment, error)
}

var errInvalidBody = errors.New("request body must be valid JSON")

func createAppointmentHandler(creator AppointmentCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeCreateRequest(r.Body)
		if err != nil {
			handleError(w, r, err)
			return
		}

		in, err := validateCreate(req)
		if err != nil {
			handleError(w, r, err)
			return
		}

		appt, err := creator.Execute(r.Context(), in)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, AppointmentResponse{
			Message: "Appointment created successfully",
			Data:    appt,
		})
	}
}

// listAppointmentsHandler serves both /appointments?insuredId= and
// /appointments/{insuredId}.
func listAppointmentsHandler(querier AppointmentQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "insuredId")
		if raw == "" {
			raw = r.URL.Query().Get("insuredId")
		}

		insuredID, err := validateInsuredID(raw)
		if err != nil {
			handleError(w, r, err)
			return
		}

		list, err := querier.Execute(r.Context(), insuredID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Message: "Appointments retrieved successfully",
			Data:    list,
		})
	}
}

// decodeCreateRequest treats an empty body as an empty object.
func decodeCreateRequest(body io.Reader) (CreateAppointmentRequest, error) {
	var req CreateAppointmentRequest

	raw, err := io.ReadAll(body)
	if err != nil {
		return req, errInvalidBody
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, errInvalidBody
	}
	return req, nil
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Validation Error", Errors: verr.Fields})
	case errors.Is(err, errInvalidBody):
		writeError(w, http.StatusBadRequest, "Invalid request body", "Request body must be valid JSON")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Message: "Method not allowed"})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "Not found"})
}
