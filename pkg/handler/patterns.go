package handler

import (
	"net/http"

	"github.com/rs/zerolog"
)

// PatternHandler serves movement patterns, dispatch history, and the
// system-wide reasoning feed.
type PatternHandler struct {
	store  *Store
	logger zerolog.Logger
}

// NewPatternHandler creates a new PatternHandler.
func NewPatternHandler(store *Store, logger zerolog.Logger) *PatternHandler {
	return &PatternHandler{
		store:  store,
		logger: logger.With().Str("handler", "patterns").Logger(),
	}
}

// ListPatterns handles GET /api/patterns
func (h *PatternHandler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	limit, err := parseLimit(r, 50)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), correlationID)
		return
	}

	patterns := h.store.Patterns(limit)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// ListDispatches handles GET /api/dispatches
func (h *PatternHandler) ListDispatches(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	limit, err := parseLimit(r, 50)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), correlationID)
		return
	}

	outcomes := h.store.Dispatches(limit)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dispatches": outcomes,
		"count":      len(outcomes),
	})
}

// ListReasoning handles GET /api/reasoning
func (h *PatternHandler) ListReasoning(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	limit, err := parseLimit(r, 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), correlationID)
		return
	}

	entries := h.store.Reasoning(r.URL.Query().Get("camera_id"), limit)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reasoning": entries,
		"count":     len(entries),
	})
}
