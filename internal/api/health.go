package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hackgods/appointment-pipeline/internal/db"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// RegionPinger reports reachability per regional store.
type RegionPinger interface {
	Ping(ctx context.Context) map[string]error
}

type HealthHandler struct {
	store   Pinger
	regions RegionPinger
	env     string
	version string
}

func NewHealthHandler(store Pinger, regions RegionPinger, env, version string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		regions: regions,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness fails when the primary store is down. An unreachable regional
// store only degrades the service since the API never writes to it, and a
// region whose pool was never opened is reported without degrading.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	storeCtx, storeCancel := context.WithTimeout(ctx, time.Second)
	err := h.store.Ping(storeCtx)
	storeCancel()
	if err != nil {
		deps["redis"] = "down"
		status = "error"
	} else {
		deps["redis"] = "ok"
	}

	if h.regions != nil {
		regionCtx, regionCancel := context.WithTimeout(ctx, time.Second)
		regions := h.regions.Ping(regionCtx)
		regionCancel()

		for country, err := range regions {
			name := "region_" + country
			if errors.Is(err, db.ErrNoPool) {
				deps[name] = "not_opened"
				continue
			}
			if err != nil {
				deps[name] = "down"
				if status == "ok" {
					status = "degraded"
				}
				continue
			}
			deps[name] = "ok"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
