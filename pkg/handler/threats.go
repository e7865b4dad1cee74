package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ThreatHandler serves threat queries and resolution requests.
type ThreatHandler struct {
	store  *Store
	nc     *nats.Conn
	logger zerolog.Logger
}

// NewThreatHandler creates a new ThreatHandler.
func NewThreatHandler(store *Store, nc *nats.Conn, logger zerolog.Logger) *ThreatHandler {
	return &ThreatHandler{
		store:  store,
		nc:     nc,
		logger: logger.With().Str("handler", "threats").Logger(),
	}
}

// ListThreats handles GET /api/threats
func (h *ThreatHandler) ListThreats(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	filter := ThreatFilter{
		Status:   r.URL.Query().Get("status"),
		Activity: r.URL.Query().Get("activity"),
		Severity: r.URL.Query().Get("severity"),
		Limit:    50,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			WriteError(w, http.StatusBadRequest, "limit must be between 1 and 500", correlationID)
			return
		}
		filter.Limit = limit
	}

	threats := h.store.Threats(filter)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"threats": threats,
		"count":   len(threats),
	})
}

// GetThreat handles GET /api/threats/{threatID}
func (h *ThreatHandler) GetThreat(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())
	threatID := chi.URLParam(r, "threatID")

	threat, ok := h.store.ThreatByID(threatID)
	if !ok {
		WriteError(w, http.StatusNotFound, "threat not found", correlationID)
		return
	}
	WriteJSON(w, http.StatusOK, threat)
}

// ResolveThreat handles POST /api/threats/{threatID}/resolve. The
// resolution itself happens in the coordinator, so this publishes a
// control message and answers 202.
func (h *ThreatHandler) ResolveThreat(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())
	threatID := chi.URLParam(r, "threatID")

	if _, ok := h.store.ThreatByID(threatID); !ok {
		WriteError(w, http.StatusNotFound, "threat not found", correlationID)
		return
	}

	if err := h.nc.Publish("control.resolve."+threatID, nil); err != nil {
		h.logger.Error().Err(err).Str("threat_id", threatID).Msg("Failed to publish resolve request")
		WriteError(w, http.StatusServiceUnavailable, "failed to request resolution", correlationID)
		return
	}

	h.logger.Info().Str("threat_id", threatID).Msg("Resolution requested")
	WriteSuccess(w, http.StatusAccepted, "resolution requested", map[string]string{"threat_id": threatID}, correlationID)
}

// ResolveAll handles POST /api/threats/resolve_all
func (h *ThreatHandler) ResolveAll(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	if err := h.nc.Publish("control.resolve_all", nil); err != nil {
		h.logger.Error().Err(err).Msg("Failed to publish resolve-all request")
		WriteError(w, http.StatusServiceUnavailable, "failed to request resolution", correlationID)
		return
	}

	h.logger.Info().Msg("Resolve-all requested")
	WriteSuccess(w, http.StatusAccepted, "resolution of all active threats requested", nil, correlationID)
}
