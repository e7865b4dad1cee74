package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

var errInvalidLimit = errors.New("limit must be between 1 and 500")

// CameraHandler serves the camera network and per-camera activity.
type CameraHandler struct {
	store  *Store
	logger zerolog.Logger
}

// NewCameraHandler creates a new CameraHandler.
func NewCameraHandler(store *Store, logger zerolog.Logger) *CameraHandler {
	return &CameraHandler{
		store:  store,
		logger: logger.With().Str("handler", "cameras").Logger(),
	}
}

// ListCameras handles GET /api/cameras
func (h *CameraHandler) ListCameras(w http.ResponseWriter, r *http.Request) {
	cameras := h.store.Cameras()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"cameras": cameras,
		"count":   len(cameras),
	})
}

// GetCamera handles GET /api/cameras/{cameraID}
func (h *CameraHandler) GetCamera(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())
	cameraID := chi.URLParam(r, "cameraID")

	camera, ok := h.store.CameraByID(cameraID)
	if !ok {
		WriteError(w, http.StatusNotFound, "camera not found", correlationID)
		return
	}
	WriteJSON(w, http.StatusOK, camera)
}

// ListCameraDetections handles GET /api/cameras/{cameraID}/detections
func (h *CameraHandler) ListCameraDetections(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())
	cameraID := chi.URLParam(r, "cameraID")

	if _, ok := h.store.CameraByID(cameraID); !ok {
		WriteError(w, http.StatusNotFound, "camera not found", correlationID)
		return
	}

	limit, err := parseLimit(r, 50)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), correlationID)
		return
	}

	detections := h.store.Detections(cameraID, limit)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"camera_id":  cameraID,
		"detections": detections,
		"count":      len(detections),
	})
}

// ListCameraReasoning handles GET /api/cameras/{cameraID}/reasoning
func (h *CameraHandler) ListCameraReasoning(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())
	cameraID := chi.URLParam(r, "cameraID")

	if _, ok := h.store.CameraByID(cameraID); !ok {
		WriteError(w, http.StatusNotFound, "camera not found", correlationID)
		return
	}

	limit, err := parseLimit(r, 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), correlationID)
		return
	}

	entries := h.store.Reasoning(cameraID, limit)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"camera_id": cameraID,
		"reasoning": entries,
		"count":     len(entries),
	})
}

// parseLimit reads the limit query parameter, defaulting when absent.
func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 500 {
		return 0, errInvalidLimit
	}
	return limit, nil
}
