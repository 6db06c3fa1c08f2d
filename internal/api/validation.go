package api

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
	"github.com/hackgods/appointment-pipeline/internal/pipeline"
)

var digitsPattern = regexp.MustCompile(`^[0-9]+$`)

// ValidationError maps a field name to every rule it failed.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func validateCreate(req CreateAppointmentRequest) (pipeline.CreateInput, error) {
	var verr ValidationError
	var in pipeline.CreateInput

	in.InsuredID = checkInsuredID(&verr, req.InsuredID)

	if id, ok := coercePositiveInt(req.ScheduleID); ok {
		in.ScheduleID = id
	} else {
		verr.add("scheduleId", "Schedule ID must be a positive integer")
	}

	country, _ := req.CountryISO.(string)
	if c := appointment.Country(country); c.Valid() {
		in.CountryISO = c
	} else {
		verr.add("countryISO", "Country ISO must be PE or CL")
	}

	return in, verr.errOrNil()
}

func validateInsuredID(raw string) (string, error) {
	var verr ValidationError
	id := checkInsuredID(&verr, raw)
	return id, verr.errOrNil()
}

// checkInsuredID reports every failed rule, not just the first.
func checkInsuredID(verr *ValidationError, raw any) string {
	if raw == nil {
		verr.add("insuredId", "Insured ID is required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		verr.add("insuredId", "Insured ID must be a string")
		return ""
	}

	if s == "" {
		verr.add("insuredId", "Insured ID is required")
	}
	if len(s) != 5 {
		verr.add("insuredId", "Insured ID must be 5 characters long")
	}
	if !digitsPattern.MatchString(s) {
		verr.add("insuredId", "Insured ID must be a 5-digit number")
	}
	return s
}

// coercePositiveInt accepts JSON numbers and numeric strings.
func coercePositiveInt(raw any) (int64, bool) {
	var s string
	switch v := raw.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = strings.TrimSpace(v)
	default:
		return 0, false
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, false
		}
		n = int64(f)
	}
	return n, n > 0
}
