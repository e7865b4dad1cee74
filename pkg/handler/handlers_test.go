package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/messages"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(config.Defaults().Cameras, zerolog.Nop())
}

func feed(t *testing.T, fn func(*nats.Msg), v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	fn(&nats.Msg{Data: data})
}

func sampleThreat(id string, activity messages.ActivityType, severity messages.Severity, ts time.Time) messages.Threat {
	return messages.Threat{
		ThreatID:  id,
		Activity:  activity,
		CameraID:  "cam_001",
		Status:    messages.ThreatActive,
		Timestamp: ts,
		Details:   messages.ThreatDetails{Severity: severity},
	}
}

func TestStoreThreatFiltering(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)

	feed(t, store.onThreat, sampleThreat("t1", messages.ActivityCarProwling, messages.SeverityHigh, base))
	feed(t, store.onThreat, sampleThreat("t2", messages.ActivityLoitering, messages.SeverityMedium, base.Add(time.Minute)))
	resolved := sampleThreat("t3", messages.ActivityCarProwling, messages.SeverityHigh, base.Add(2*time.Minute))
	resolved.Status = messages.ThreatResolved
	feed(t, store.onThreat, resolved)

	all := store.Threats(ThreatFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].ThreatID, "newest first")

	active := store.Threats(ThreatFilter{Status: "active"})
	assert.Len(t, active, 2)

	prowling := store.Threats(ThreatFilter{Activity: "car_prowling", Status: "active"})
	require.Len(t, prowling, 1)
	assert.Equal(t, "t1", prowling[0].ThreatID)

	high := store.Threats(ThreatFilter{Severity: "HIGH"})
	assert.Len(t, high, 2)

	limited := store.Threats(ThreatFilter{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, "t3", limited[0].ThreatID)
}

func TestStoreThreatRedeliveryReplaces(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)

	feed(t, store.onThreat, sampleThreat("t1", messages.ActivityCarProwling, messages.SeverityMedium, base))
	feed(t, store.onThreat, sampleThreat("t1", messages.ActivityCarProwling, messages.SeverityHigh, base.Add(time.Minute)))

	got, ok := store.ThreatByID("t1")
	require.True(t, ok)
	assert.Equal(t, messages.SeverityHigh, got.Details.Severity)
	assert.Len(t, store.Threats(ThreatFilter{}), 1)
}

func TestStoreDispatchOutcomeReflectsOntoThreat(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)

	feed(t, store.onThreat, sampleThreat("t1", messages.ActivityCarProwling, messages.SeverityHigh, base))
	feed(t, store.onDispatch, messages.DispatchOutcome{
		ThreatID:  "t1",
		Channel:   messages.ChannelEmergencyCall,
		Status:    messages.DispatchSent,
		Detail:    "call placed",
		Timestamp: base.Add(time.Second),
	})
	feed(t, store.onDispatch, messages.DispatchOutcome{
		ThreatID:   "t1",
		Channel:    messages.ChannelCommunitySMS,
		Status:     messages.DispatchSent,
		Recipients: []string{"member_001"},
		Timestamp:  base.Add(2 * time.Second),
	})

	got, ok := store.ThreatByID("t1")
	require.True(t, ok)
	assert.True(t, got.Dispatch.EmergencyCall.Attempted)
	assert.Equal(t, messages.DispatchSent, got.Dispatch.EmergencyCall.Status)
	assert.Equal(t, []string{"member_001"}, got.Dispatch.Community.Recipients)

	outcomes := store.Dispatches(0)
	assert.Len(t, outcomes, 2)
	assert.Equal(t, messages.ChannelCommunitySMS, outcomes[0].Channel, "newest first")
}

func TestStoreFailedCommunityOutcomeDoesNotMarkRecipients(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)

	feed(t, store.onThreat, sampleThreat("t1", messages.ActivityCarProwling, messages.SeverityHigh, base))
	feed(t, store.onDispatch, messages.DispatchOutcome{
		ThreatID:   "t1",
		Channel:    messages.ChannelCommunitySMS,
		Status:     messages.DispatchFailed,
		Detail:     "sms gateway down",
		Recipients: []string{"member_001"},
		Timestamp:  base.Add(time.Second),
	})

	got, ok := store.ThreatByID("t1")
	require.True(t, ok)
	assert.Empty(t, got.Dispatch.Community.Recipients)
	assert.Equal(t, []string{"member_001"}, got.Dispatch.Community.Failed)
	assert.Equal(t, "sms gateway down", got.Dispatch.Community.LastError)
}

func TestStoreThreatMapBounded(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)

	for i := 0; i < storeThreatCap+50; i++ {
		th := sampleThreat(fmt.Sprintf("t%04d", i), messages.ActivityCarProwling, messages.SeverityMedium, base.Add(time.Duration(i)*time.Second))
		if i < 30 {
			th.Status = messages.ThreatResolved
		}
		feed(t, store.onThreat, th)
	}

	assert.Len(t, store.Threats(ThreatFilter{}), storeThreatCap)
	assert.Empty(t, store.Threats(ThreatFilter{Status: "resolved"}), "resolved threats evicted first")

	_, ok := store.ThreatByID("t0030")
	assert.False(t, ok, "oldest active threats evicted after resolved ones")
	_, ok = store.ThreatByID(fmt.Sprintf("t%04d", storeThreatCap+49))
	assert.True(t, ok, "newest threat retained")
}

func TestStoreDetectionsBoundedAndFiltered(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)

	for i := 0; i < storeDetectionCap+10; i++ {
		cam := "cam_001"
		if i%2 == 0 {
			cam = "cam_002"
		}
		feed(t, store.onDetection, messages.Detection{
			DetectionID: "d",
			CameraID:    cam,
			Activity:    messages.ActivitySuspiciousMovement,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		})
	}

	assert.Len(t, store.Detections("", 0), storeDetectionCap)
	solo := store.Detections("cam_001", 5)
	require.Len(t, solo, 5)
	for _, d := range solo {
		assert.Equal(t, "cam_001", d.CameraID)
	}

	cams := store.Cameras()
	require.NotEmpty(t, cams)
	assert.False(t, cams[0].LastDetection.IsZero(), "last detection recorded for cam_001")
}

func TestStoreDropsUnparseablePayloads(t *testing.T) {
	store := newTestStore(t)
	store.onThreat(&nats.Msg{Data: []byte("{not json")})
	store.onDetection(&nats.Msg{Data: []byte("nope")})
	assert.Empty(t, store.Threats(ThreatFilter{}))
	assert.Empty(t, store.Detections("", 0))
}

func newThreatRouter(store *Store) *chi.Mux {
	h := NewThreatHandler(store, nil, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/api/threats", h.ListThreats)
	r.Get("/api/threats/{threatID}", h.GetThreat)
	return r
}

func TestListThreatsEndpoint(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)
	feed(t, store.onThreat, sampleThreat("t1", messages.ActivityCarProwling, messages.SeverityHigh, base))

	router := newThreatRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threats?status=active", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Threats []messages.Threat `json:"threats"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Threats, 1)
	assert.Equal(t, "t1", body.Threats[0].ThreatID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threats?limit=9999", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetThreatNotFound(t *testing.T) {
	router := newThreatRouter(newTestStore(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threats/no-such", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCameraEndpoints(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)
	feed(t, store.onDetection, messages.Detection{
		DetectionID: "d1",
		CameraID:    "cam_002",
		Activity:    messages.ActivityCarProwling,
		Timestamp:   base,
	})

	h := NewCameraHandler(store, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/api/cameras", h.ListCameras)
	r.Get("/api/cameras/{cameraID}", h.GetCamera)
	r.Get("/api/cameras/{cameraID}/detections", h.ListCameraDetections)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cameras", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listBody struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	assert.Equal(t, 5, listBody.Count)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cameras/cam_002/detections", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detBody struct {
		Detections []messages.Detection `json:"detections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detBody))
	require.Len(t, detBody.Detections, 1)
	assert.Equal(t, "d1", detBody.Detections[0].DetectionID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cameras/cam_999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatternAndReasoningEndpoints(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)
	feed(t, store.onPattern, messages.Pattern{
		PatternID: "p1",
		Activity:  messages.ActivityCarProwling,
		LastSeen:  base,
	})
	feed(t, store.onReasoning, messages.ReasoningLogEntry{
		CameraID:  "cam_001",
		Step:      "scoring",
		Reasoning: "edge density in prowler band",
		Timestamp: base,
	})

	h := NewPatternHandler(store, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/api/patterns", h.ListPatterns)
	r.Get("/api/reasoning", h.ListReasoning)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/patterns", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var patBody struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patBody))
	assert.Equal(t, 1, patBody.Count)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reasoning?camera_id=cam_001", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var reasonBody struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reasonBody))
	assert.Equal(t, 1, reasonBody.Count)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reasoning?camera_id=cam_002", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reasonBody))
	assert.Equal(t, 0, reasonBody.Count)
}

func TestClientSubscriptionFiltering(t *testing.T) {
	c := &WebSocketClient{subscribed: make(map[string]bool)}
	assert.True(t, c.isSubscribed(MessageTypeThreatNew), "no subscriptions means everything")

	c.subscribed["threat"] = true
	assert.True(t, c.isSubscribed(MessageTypeThreatNew))
	assert.True(t, c.isSubscribed(MessageTypeThreatResolved))
	assert.False(t, c.isSubscribed(MessageTypeDetectionNew))

	c.subscribed[MessageTypeDetectionNew] = true
	assert.True(t, c.isSubscribed(MessageTypeDetectionNew))
}

func TestScenarioEndpoints(t *testing.T) {
	h := NewScenarioHandler(nil, zerolog.Nop())
	r := chi.NewRouter()
	r.Post("/api/scenario/start", h.StartScenario)
	r.Post("/api/scenario/stop", h.StopScenario)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scenario/start", strings.NewReader(`{"scenario":"meteor_strike"}`))
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/scenario/start", strings.NewReader(`not json`))
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A valid scenario with no broker connection is unavailable, not a
	// client error.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/scenario/start", strings.NewReader(`{"scenario":"car_prowler"}`))
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scenario/stop", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
