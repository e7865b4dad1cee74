package handler

import (
	"encoding/json"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ursa-watch/ursa/pkg/source"
)

// ScenarioRequest asks the camera fleet to run a scripted scenario.
type ScenarioRequest struct {
	Scenario     string `json:"scenario"`
	TickInterval string `json:"tick_interval,omitempty"`
}

// ScenarioHandler relays scenario control to the camera fleet over NATS.
type ScenarioHandler struct {
	nc     *nats.Conn
	logger zerolog.Logger
}

// NewScenarioHandler creates a new ScenarioHandler.
func NewScenarioHandler(nc *nats.Conn, logger zerolog.Logger) *ScenarioHandler {
	return &ScenarioHandler{
		nc:     nc,
		logger: logger.With().Str("handler", "scenario").Logger(),
	}
}

// StartScenario handles POST /api/scenario/start
func (h *ScenarioHandler) StartScenario(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	var req ScenarioRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), correlationID)
		return
	}
	if !source.Scenario(req.Scenario).Valid() {
		WriteError(w, http.StatusBadRequest, "unknown scenario: "+req.Scenario, correlationID)
		return
	}

	if h.nc == nil {
		WriteError(w, http.StatusServiceUnavailable, "scenario control unavailable", correlationID)
		return
	}

	data, err := json.Marshal(req)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to encode request", correlationID)
		return
	}
	if err := h.nc.Publish("control.scenario.start", data); err != nil {
		h.logger.Error().Err(err).Str("scenario", req.Scenario).Msg("Failed to publish scenario start")
		WriteError(w, http.StatusServiceUnavailable, "failed to request scenario start", correlationID)
		return
	}

	h.logger.Info().Str("scenario", req.Scenario).Msg("Scenario start requested")
	WriteSuccess(w, http.StatusAccepted, "scenario start requested", req, correlationID)
}

// StopScenario handles POST /api/scenario/stop. Stopping also asks the
// coordinator to resolve everything the scenario raised.
func (h *ScenarioHandler) StopScenario(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	if h.nc == nil {
		WriteError(w, http.StatusServiceUnavailable, "scenario control unavailable", correlationID)
		return
	}

	if err := h.nc.Publish("control.scenario.stop", nil); err != nil {
		h.logger.Error().Err(err).Msg("Failed to publish scenario stop")
		WriteError(w, http.StatusServiceUnavailable, "failed to request scenario stop", correlationID)
		return
	}
	if err := h.nc.Publish("control.resolve_all", nil); err != nil {
		h.logger.Error().Err(err).Msg("Failed to publish resolve-all after scenario stop")
		WriteError(w, http.StatusServiceUnavailable, "scenario stopped but threat resolution could not be requested", correlationID)
		return
	}

	h.logger.Info().Msg("Scenario stop requested")
	WriteSuccess(w, http.StatusAccepted, "scenario stop requested", nil, correlationID)
}
