// Camera Agent - scores per-camera observations and emits detections
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ursa-watch/ursa/pkg/agent"
	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/messages"
	"github.com/ursa-watch/ursa/pkg/natsutil"
	"github.com/ursa-watch/ursa/pkg/scoring"
	"github.com/ursa-watch/ursa/pkg/source"
	"github.com/ursa-watch/ursa/pkg/vision"
)

const (
	MinTickInterval = 100 * time.Millisecond
	MaxTickInterval = 30 * time.Second

	DefaultTickInterval = 2 * time.Second
)

// unit is one camera's scoring state. The tick goroutine and the config
// endpoints touch the scorer and source from different goroutines, so
// every access goes through mu. enricher is immutable after
// construction and nil when no vision service is configured.
type unit struct {
	camera   config.Camera
	enricher *vision.Enricher

	mu     sync.Mutex
	scorer *scoring.Scorer
	src    source.Source
}

// ConfigResponse represents the JSON response for configuration
type ConfigResponse struct {
	Cameras      []string       `json:"cameras"`
	Paused       bool           `json:"paused"`
	Scenario     string         `json:"scenario"`
	TickInterval string         `json:"tick_interval"`
	Scoring      scoring.Config `json:"scoring"`
}

// ConfigUpdateRequest represents a partial configuration update request
type ConfigUpdateRequest struct {
	Paused           *bool               `json:"paused,omitempty"`
	TickInterval     *string             `json:"tick_interval,omitempty"`
	Scenario         *string             `json:"scenario,omitempty"`
	WindowSize       *int                `json:"window_size,omitempty"`
	DefaultThreshold *float64            `json:"default_threshold,omitempty"`
	Thresholds       *map[string]float64 `json:"thresholds,omitempty"`
}

// ScenarioRequest starts a scripted scenario across the fleet.
type ScenarioRequest struct {
	Scenario     string `json:"scenario"`
	TickInterval string `json:"tick_interval,omitempty"`
}

// CameraAgent runs one scoring goroutine per configured camera and
// publishes their detections under a single agent identity.
type CameraAgent struct {
	*agent.BaseAgent

	units []*unit

	// mu guards the fleet-wide loop settings below.
	mu       sync.Mutex
	paused   bool
	interval time.Duration
	scenario source.Scenario
	seed     int64
	runs     int64 // bumped per scenario start so reruns reseed
	live     bool

	detectionCounter *prometheus.CounterVec
	scoreGauge       *prometheus.GaugeVec
}

// NewCameraAgent creates a fleet agent with synthetic sources scripted
// from the given scenario.
func NewCameraAgent(cfg agent.Config, cameras []config.Camera, scoringCfg scoring.Config, scenario source.Scenario, interval time.Duration, seed int64) (*CameraAgent, error) {
	base, err := agent.NewBaseAgent(cfg)
	if err != nil {
		return nil, err
	}

	detectionCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camera_detections_total",
			Help: "Total detections emitted, per camera",
		},
		[]string{"camera_id"},
	)
	scoreGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camera_suspicion_score",
			Help: "Fused suspicion score of the most recent tick, per camera",
		},
		[]string{"camera_id"},
	)
	base.Metrics().MustRegister(detectionCounter, scoreGauge)

	a := &CameraAgent{
		BaseAgent:        base,
		interval:         interval,
		scenario:         scenario,
		seed:             seed,
		detectionCounter: detectionCounter,
		scoreGauge:       scoreGauge,
	}

	// Each unit gets its own enricher so one camera's detector lookup
	// never delays another's.
	var detector vision.Detector
	if cfg.VisionURL != "" {
		detector = meteredDetector{inner: vision.NewClient(cfg.VisionURL), agent: base}
	}

	for i, camera := range cameras {
		from, until := source.ActiveWindow(scenario, i)
		u := &unit{
			camera: camera,
			scorer: scoring.NewScorer(scoringCfg, camera.ID, camera.Location, *base.Logger()),
			src:    source.NewSynthetic(camera.ID, scenario, seed+int64(i), interval, from, until),
		}
		if detector != nil {
			u.enricher = vision.NewEnricher(detector, *base.Logger())
		}
		a.units = append(a.units, u)
	}

	return a, nil
}

// meteredDetector counts detector failures in the agent's error metric.
type meteredDetector struct {
	inner *vision.Client
	agent *agent.BaseAgent
}

func (d meteredDetector) Detect(ctx context.Context, cameraID, frameRef string) ([]messages.DetectedObject, error) {
	objects, err := d.inner.Detect(ctx, cameraID, frameRef)
	if err != nil {
		d.agent.RecordError("vision_error")
	}
	return objects, err
}

// UseLiveSources replaces every unit's source with a live NATS feed
// subscription. Scenario control is disabled in live mode.
func (a *CameraAgent) UseLiveSources() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, u := range a.units {
		live, err := source.NewLive(a.NATS(), u.camera.ID)
		if err != nil {
			return fmt.Errorf("subscribing live feed for %s: %w", u.camera.ID, err)
		}
		u.mu.Lock()
		u.src = live
		u.mu.Unlock()
	}
	a.live = true
	return nil
}

// Run starts one scoring loop per camera. The agent must already be
// started.
func (a *CameraAgent) Run(ctx context.Context) error {
	if err := natsutil.SetupStreams(ctx, a.JetStream()); err != nil {
		return fmt.Errorf("failed to setup streams: %w", err)
	}

	a.Logger().Info().
		Int("cameras", len(a.units)).
		Str("scenario", string(a.scenario)).
		Msg("Camera agent started")

	// Scenario requests also arrive over NATS from the gateway.
	scenarioSub, err := a.NATS().Subscribe("control.scenario.>", a.handleScenarioControl)
	if err != nil {
		return fmt.Errorf("failed to subscribe to scenario control: %w", err)
	}
	defer scenarioSub.Unsubscribe()

	g, gCtx := errgroup.WithContext(ctx)
	for _, u := range a.units {
		u := u
		if u.enricher != nil {
			g.Go(func() error { return u.enricher.Run(gCtx) })
		}
		g.Go(func() error { return a.runUnit(gCtx, u) })
	}
	return g.Wait()
}

// handleScenarioControl applies scenario requests published by the
// gateway. Live mode ignores them.
func (a *CameraAgent) handleScenarioControl(msg *nats.Msg) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.live {
		a.Logger().Warn().Str("subject", msg.Subject).Msg("Ignoring scenario control in live mode")
		return
	}

	switch msg.Subject {
	case "control.scenario.stop":
		a.applyScenario(source.ScenarioQuiet, a.interval)

	case "control.scenario.start":
		var req ScenarioRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			a.Logger().Warn().Err(err).Msg("Ignoring malformed scenario request")
			return
		}
		scenario := source.Scenario(req.Scenario)
		if !scenario.Valid() {
			a.Logger().Warn().Str("scenario", req.Scenario).Msg("Ignoring unknown scenario")
			return
		}
		interval := a.interval
		if req.TickInterval != "" {
			if d, err := time.ParseDuration(req.TickInterval); err == nil && d >= MinTickInterval && d <= MaxTickInterval {
				interval = d
			}
		}
		a.paused = false
		a.applyScenario(scenario, interval)

	default:
		a.Logger().Debug().Str("subject", msg.Subject).Msg("Ignoring unknown scenario control subject")
	}
}

// runUnit is the per-camera tick loop.
func (a *CameraAgent) runUnit(ctx context.Context, u *unit) error {
	for {
		u.mu.Lock()
		src := u.src
		u.mu.Unlock()

		bundle, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			a.Logger().Error().Err(err).Str("camera_id", u.camera.ID).Msg("Source error")
			a.RecordError("source_error")
			continue
		}

		if a.isPaused() {
			continue
		}

		a.processBundle(ctx, u, bundle)
	}
}

func (a *CameraAgent) isPaused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// processBundle scores one observation tick and publishes the results.
func (a *CameraAgent) processBundle(ctx context.Context, u *unit, bundle messages.ObservationBundle) {
	start := time.Now()

	// Object detection runs in the unit's enricher goroutine; the tick
	// picks up whatever result is ready and never waits on the detector.
	if u.enricher != nil {
		u.enricher.Enrich(&bundle)
	}

	u.mu.Lock()
	tick, err := u.scorer.ProcessTick(bundle)
	u.mu.Unlock()
	if err != nil {
		a.Logger().Warn().Err(err).Str("camera_id", u.camera.ID).Msg("Rejected observation bundle")
		a.RecordError("malformed_bundle")
		return
	}

	a.scoreGauge.WithLabelValues(u.camera.ID).Set(tick.Score)

	if err := a.publishReasoning(ctx, tick.Reasoning); err != nil {
		a.Logger().Warn().Err(err).Msg("Failed to publish reasoning entry")
	}

	if tick.Detection != nil {
		if err := a.publishDetection(ctx, tick.Detection); err != nil {
			a.Logger().Error().Err(err).Str("detection_id", tick.Detection.DetectionID).Msg("Failed to publish detection")
			a.RecordError("publish_failed")
			return
		}
		a.detectionCounter.WithLabelValues(u.camera.ID).Inc()
		a.RecordMessage("success", "detection")
	}

	a.RecordLatency("observation", time.Since(start))
}

// publishDetection signs and publishes a detection to the DETECTIONS stream.
func (a *CameraAgent) publishDetection(ctx context.Context, det *messages.Detection) error {
	det.Envelope = messages.NewEnvelope(a.ID(), string(agent.AgentTypeCamera))
	det.Envelope.CorrelationID = uuid.New().String()

	data, err := messages.MarshalWithSignature(det, a.Config().Secret)
	if err != nil {
		return fmt.Errorf("failed to marshal detection: %w", err)
	}

	subject := det.Subject()
	if _, err := a.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(det.Envelope.MessageID)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	a.Logger().Info().
		Str("detection_id", det.DetectionID).
		Str("camera_id", det.CameraID).
		Str("activity", string(det.Activity)).
		Float64("score", det.Score).
		Str("correlation_id", det.Envelope.CorrelationID).
		Msg("Published detection")

	return nil
}

// publishReasoning publishes the per-tick reasoning entry.
func (a *CameraAgent) publishReasoning(ctx context.Context, entry messages.ReasoningLogEntry) error {
	entry.Envelope = messages.NewEnvelope(a.ID(), string(agent.AgentTypeCamera))

	data, err := json.Marshal(&entry)
	if err != nil {
		return err
	}

	_, err = a.JetStream().Publish(ctx, entry.Subject(), data)
	return err
}

// applyScenario swaps every unit's synthetic source to a fresh scripted
// run. Callers hold a.mu.
func (a *CameraAgent) applyScenario(scenario source.Scenario, interval time.Duration) {
	a.scenario = scenario
	a.interval = interval
	a.runs++

	for i, u := range a.units {
		from, until := source.ActiveWindow(scenario, i)
		src := source.NewSynthetic(u.camera.ID, scenario, a.seed+a.runs*1000+int64(i), interval, from, until)
		u.mu.Lock()
		u.src = src
		u.mu.Unlock()
	}

	a.Logger().Info().
		Str("scenario", string(scenario)).
		Dur("tick_interval", interval).
		Msg("Scenario applied across fleet")
}

// startHTTPServer starts the HTTP server with chi router
func (a *CameraAgent) startHTTPServer(addr string) {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(a.Metrics(), promhttp.HandlerOpts{}))
	r.Get("/health", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/config", func(r chi.Router) {
			r.Get("/", a.handleGetConfig)
			r.Patch("/", a.handlePatchConfig)
			r.Post("/reset", a.handleResetConfig)
		})

		r.Post("/scenario/start", a.handleScenarioStart)
		r.Post("/scenario/stop", a.handleScenarioStop)

		r.Get("/cameras/{cameraID}/detections", a.handleDetections)
		r.Get("/cameras/{cameraID}/reasoning", a.handleReasoning)
	})

	a.Logger().Info().Str("addr", addr).Msg("Starting HTTP server")
	if err := http.ListenAndServe(addr, r); err != nil {
		a.Logger().Error().Err(err).Msg("HTTP server error")
	}
}

// handleHealth handles GET /health
func (a *CameraAgent) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := a.Health()
	w.Header().Set("Content-Type", "application/json")
	if health.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// handleGetConfig handles GET /api/v1/config
func (a *CameraAgent) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	response := ConfigResponse{
		Paused:       a.paused,
		Scenario:     string(a.scenario),
		TickInterval: a.interval.String(),
	}
	a.mu.Unlock()

	for _, u := range a.units {
		response.Cameras = append(response.Cameras, u.camera.ID)
	}

	// Scoring config is fleet-wide; any unit's copy is authoritative.
	u := a.units[0]
	u.mu.Lock()
	response.Scoring = u.scorer.Config()
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handlePatchConfig handles PATCH /api/v1/config
func (a *CameraAgent) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	a.mu.Lock()
	if req.Paused != nil {
		a.paused = *req.Paused
		a.Logger().Info().Bool("paused", *req.Paused).Msg("Updated paused state")
	}

	scenario := a.scenario
	interval := a.interval
	reroll := false

	if req.Scenario != nil {
		s := source.Scenario(*req.Scenario)
		if !s.Valid() {
			a.mu.Unlock()
			a.writeError(w, http.StatusBadRequest, "unknown scenario: "+*req.Scenario)
			return
		}
		scenario = s
		reroll = true
	}
	if req.TickInterval != nil {
		d, err := time.ParseDuration(*req.TickInterval)
		if err != nil || d < MinTickInterval || d > MaxTickInterval {
			a.mu.Unlock()
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("tick_interval must be a duration between %v and %v", MinTickInterval, MaxTickInterval))
			return
		}
		interval = d
		reroll = true
	}

	if reroll {
		if a.live {
			a.mu.Unlock()
			a.writeError(w, http.StatusConflict, "scenario control is unavailable in live mode")
			return
		}
		a.applyScenario(scenario, interval)
	}
	a.mu.Unlock()

	if err := a.applyScoringUpdate(req); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.Logger().Info().Msg("Updated configuration")
	a.handleGetConfig(w, r)
}

// applyScoringUpdate validates and applies scoring changes to every unit.
func (a *CameraAgent) applyScoringUpdate(req ConfigUpdateRequest) error {
	if req.WindowSize == nil && req.DefaultThreshold == nil && req.Thresholds == nil {
		return nil
	}

	if req.WindowSize != nil && (*req.WindowSize < 3 || *req.WindowSize > 300) {
		return errors.New("window_size must be between 3 and 300")
	}
	if req.DefaultThreshold != nil && (*req.DefaultThreshold <= 0 || *req.DefaultThreshold > 1) {
		return errors.New("default_threshold must be in (0, 1]")
	}
	if req.Thresholds != nil {
		for activity, threshold := range *req.Thresholds {
			if !messages.ActivityType(activity).Valid() {
				return errors.New("unknown activity type: " + activity)
			}
			if threshold <= 0 || threshold > 1 {
				return errors.New("threshold for " + activity + " must be in (0, 1]")
			}
		}
	}

	for _, u := range a.units {
		u.mu.Lock()
		cfg := u.scorer.Config()
		if req.WindowSize != nil {
			cfg.WindowSize = *req.WindowSize
		}
		if req.DefaultThreshold != nil {
			cfg.DefaultThreshold = *req.DefaultThreshold
		}
		if req.Thresholds != nil {
			cfg.Thresholds = *req.Thresholds
		}
		u.scorer.SetConfig(cfg)
		u.mu.Unlock()
	}
	return nil
}

// handleResetConfig handles POST /api/v1/config/reset
func (a *CameraAgent) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	for _, u := range a.units {
		u.mu.Lock()
		u.scorer.SetConfig(scoring.DefaultConfig())
		u.mu.Unlock()
	}

	a.mu.Lock()
	a.paused = false
	if !a.live {
		a.applyScenario(source.ScenarioQuiet, DefaultTickInterval)
	}
	a.mu.Unlock()

	a.Logger().Info().Msg("Configuration reset to defaults")
	a.handleGetConfig(w, r)
}

// handleScenarioStart handles POST /api/v1/scenario/start
func (a *CameraAgent) handleScenarioStart(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	scenario := source.Scenario(req.Scenario)
	if !scenario.Valid() {
		a.writeError(w, http.StatusBadRequest, "unknown scenario: "+req.Scenario)
		return
	}

	a.mu.Lock()
	if a.live {
		a.mu.Unlock()
		a.writeError(w, http.StatusConflict, "scenario control is unavailable in live mode")
		return
	}

	interval := a.interval
	if req.TickInterval != "" {
		d, err := time.ParseDuration(req.TickInterval)
		if err != nil || d < MinTickInterval || d > MaxTickInterval {
			a.mu.Unlock()
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("tick_interval must be a duration between %v and %v", MinTickInterval, MaxTickInterval))
			return
		}
		interval = d
	}

	a.paused = false
	a.applyScenario(scenario, interval)
	a.mu.Unlock()

	a.handleGetConfig(w, r)
}

// handleScenarioStop handles POST /api/v1/scenario/stop. Stopping
// returns the fleet to the quiet baseline and asks the coordinator to
// resolve everything the scenario raised.
func (a *CameraAgent) handleScenarioStop(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if a.live {
		a.mu.Unlock()
		a.writeError(w, http.StatusConflict, "scenario control is unavailable in live mode")
		return
	}
	a.applyScenario(source.ScenarioQuiet, a.interval)
	a.mu.Unlock()

	if err := a.NATS().Publish("control.resolve_all", nil); err != nil {
		a.Logger().Error().Err(err).Msg("Failed to request threat resolution")
		a.writeError(w, http.StatusServiceUnavailable, "scenario stopped but threat resolution could not be requested")
		return
	}

	a.handleGetConfig(w, r)
}

// unitByID finds the unit for a camera ID.
func (a *CameraAgent) unitByID(cameraID string) (*unit, bool) {
	for _, u := range a.units {
		if u.camera.ID == cameraID {
			return u, true
		}
	}
	return nil, false
}

// handleDetections handles GET /api/v1/cameras/{cameraID}/detections
func (a *CameraAgent) handleDetections(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	u, ok := a.unitByID(cameraID)
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown camera: "+cameraID)
		return
	}

	u.mu.Lock()
	detections := u.scorer.RecentDetections()
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"camera_id":  cameraID,
		"detections": detections,
		"count":      len(detections),
	})
}

// handleReasoning handles GET /api/v1/cameras/{cameraID}/reasoning
func (a *CameraAgent) handleReasoning(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	u, ok := a.unitByID(cameraID)
	if !ok {
		a.writeError(w, http.StatusNotFound, "unknown camera: "+cameraID)
		return
	}

	u.mu.Lock()
	entries := u.scorer.RecentReasoning()
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"camera_id": cameraID,
		"reasoning": entries,
		"count":     len(entries),
	})
}

// writeError writes an error response
func (a *CameraAgent) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func main() {
	cfg := agent.Config{
		ID:        getEnv("AGENT_ID", "camera-fleet-001"),
		Type:      agent.AgentTypeCamera,
		NATSUrl:   getEnv("NATS_URL", "nats://localhost:4222"),
		NATSUser:  os.Getenv("NATS_USER"),
		NATSPass:  os.Getenv("NATS_PASS"),
		VisionURL: os.Getenv("VISION_URL"),
		Secret:    []byte(getEnv("SIGNING_SECRET", "dev-secret")),
	}

	fileCfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	cameras := fileCfg.Cameras
	if ids := os.Getenv("CAMERA_IDS"); ids != "" {
		cameras = cameras[:0:0]
		for _, id := range strings.Split(ids, ",") {
			camera, ok := fileCfg.CameraByID(strings.TrimSpace(id))
			if !ok {
				fmt.Fprintf(os.Stderr, "Unknown camera: %s\n", id)
				os.Exit(1)
			}
			cameras = append(cameras, camera)
		}
	}
	if len(cameras) == 0 {
		fmt.Fprintln(os.Stderr, "No cameras configured")
		os.Exit(1)
	}

	interval := DefaultTickInterval
	if raw := os.Getenv("TICK_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < MinTickInterval || d > MaxTickInterval {
			fmt.Fprintf(os.Stderr, "TICK_INTERVAL must be a duration between %v and %v\n", MinTickInterval, MaxTickInterval)
			os.Exit(1)
		}
		interval = d
	}

	scenario := source.Scenario(getEnv("SCENARIO", string(source.ScenarioQuiet)))
	if !scenario.Valid() {
		fmt.Fprintf(os.Stderr, "Unknown scenario: %s\n", scenario)
		os.Exit(1)
	}
	seed := int64(getEnvInt("SEED", int(time.Now().UnixNano())))

	cam, err := NewCameraAgent(cfg, cameras, fileCfg.Scoring, scenario, interval, seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create camera agent: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cam.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start camera agent: %v\n", err)
		os.Exit(1)
	}

	// Live mode consumes observations published by an external feed
	// instead of the synthetic scenarios.
	if getEnv("SOURCE", "synthetic") == "live" {
		if err := cam.UseLiveSources(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to switch to live feeds: %v\n", err)
			os.Exit(1)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cam.Logger().Info().Msg("Shutdown signal received")
		cancel()
	}()

	go cam.startHTTPServer(getEnv("HTTP_ADDR", ":9090"))

	if err := cam.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Camera agent error: %v\n", err)
		os.Exit(1)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cam.Stop(shutdownCtx)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
