// Package correlation groups detections from across the camera network
// into patterns, predicts where a moving subject will appear next, and
// promotes detections into deduplicated threats.
package correlation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ursa-watch/ursa/pkg/bus"
	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/messages"
)

// Config tunes the correlation engine.
type Config struct {
	// CorrelationWindow is how recent a pattern's last occurrence must
	// be for a new detection with the same signature to join it.
	CorrelationWindow time.Duration `koanf:"correlation_window"`

	// PatternTTL drops patterns that have not absorbed a detection.
	PatternTTL time.Duration `koanf:"pattern_ttl"`

	// ThreatTTL auto-resolves threats with no fresh detections.
	ThreatTTL time.Duration `koanf:"threat_ttl"`

	// ResolutionCooldown suppresses re-promotion for a (camera,
	// activity) pair right after its threat resolved.
	ResolutionCooldown time.Duration `koanf:"resolution_cooldown"`

	// ResolvedRetention is how long a resolved threat stays queryable
	// before the sweeper deletes it.
	ResolvedRetention time.Duration `koanf:"resolved_retention"`

	// MaxOccurrences bounds the per-pattern occurrence list.
	MaxOccurrences int `koanf:"max_occurrences"`

	PredictionBase float64 `koanf:"prediction_base"`
	PredictionStep float64 `koanf:"prediction_step"`
	PredictionCap  float64 `koanf:"prediction_cap"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		CorrelationWindow:  60 * time.Second,
		PatternTTL:         5 * time.Minute,
		ThreatTTL:          10 * time.Minute,
		ResolutionCooldown: 2 * time.Minute,
		ResolvedRetention:  30 * time.Minute,
		MaxOccurrences:     20,
		PredictionBase:     0.5,
		PredictionStep:     0.1,
		PredictionCap:      0.9,
	}
}

// signature is the behavior identity two detections must share to be
// treated as the same subject.
type signature struct {
	activity messages.ActivityType
	movement messages.MovementPattern
}

type threatKey struct {
	cameraID string
	activity messages.ActivityType
}

// Result reports what one ingested detection changed.
type Result struct {
	Pattern       *messages.Pattern
	Threat        *messages.Threat
	ThreatCreated bool
	ThreatUpdated bool
}

// Engine is the coordinator's correlation state. All mutation happens
// under one mutex; read accessors return copies.
type Engine struct {
	cfg     Config
	cameras []config.Camera
	bus     *bus.Bus
	logger  zerolog.Logger
	now     func() time.Time

	mu           sync.Mutex
	patterns     map[signature]*messages.Pattern
	threats      map[string]*messages.Threat
	activeByKey  map[threatKey]string
	lastResolved map[threatKey]time.Time
}

// New creates an engine over the given camera network. Events are
// published to b as patterns and threats change; b may be nil in tests.
func New(cfg Config, cameras []config.Camera, b *bus.Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:          cfg,
		cameras:      cameras,
		bus:          b,
		logger:       logger.With().Str("component", "correlation").Logger(),
		now:          time.Now,
		patterns:     make(map[signature]*messages.Pattern),
		threats:      make(map[string]*messages.Threat),
		activeByKey:  make(map[threatKey]string),
		lastResolved: make(map[threatKey]time.Time),
	}
}

// Ingest absorbs one detection: it joins or seeds a pattern, refreshes
// the prediction, and creates or updates the (camera, activity) threat.
func (e *Engine) Ingest(det messages.Detection) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	pat := e.upsertPattern(det)

	var res Result
	res.Pattern = clonePattern(pat)

	if det.Activity.DispatchEligible() {
		res.Threat, res.ThreatCreated, res.ThreatUpdated = e.promote(det, pat)
	}

	e.publishResult(det, res)
	return res
}

func (e *Engine) upsertPattern(det messages.Detection) *messages.Pattern {
	sig := signature{activity: det.Activity, movement: det.Behavior}
	now := det.Timestamp
	if now.IsZero() {
		now = e.now().UTC()
	}

	pat, ok := e.patterns[sig]
	if ok && now.Sub(pat.LastSeen) > e.cfg.CorrelationWindow {
		// Stale pattern: the trail went cold, start a fresh one.
		delete(e.patterns, sig)
		ok = false
	}

	if !ok {
		pat = &messages.Pattern{
			PatternID: uuid.New().String(),
			Activity:  det.Activity,
			Movement:  det.Behavior,
			FirstSeen: now,
		}
		e.patterns[sig] = pat
	}

	pat.Occurrences = append(pat.Occurrences, messages.PatternOccurrence{
		DetectionID: det.DetectionID,
		CameraID:    det.CameraID,
		Location:    det.Location,
		Confidence:  det.Confidence,
		Timestamp:   now,
	})
	if len(pat.Occurrences) > e.cfg.MaxOccurrences {
		pat.Occurrences = pat.Occurrences[len(pat.Occurrences)-e.cfg.MaxOccurrences:]
	}
	pat.LastSeen = now

	seen := false
	for _, id := range pat.Cameras {
		if id == det.CameraID {
			seen = true
			break
		}
	}
	if !seen {
		pat.Cameras = append(pat.Cameras, det.CameraID)
	}

	pat.PredictedNext = e.predict(pat)
	return pat
}

func (e *Engine) promote(det messages.Detection, pat *messages.Pattern) (*messages.Threat, bool, bool) {
	key := threatKey{cameraID: det.CameraID, activity: det.Activity}
	now := e.now().UTC()

	if id, ok := e.activeByKey[key]; ok {
		t := e.threats[id]
		t.Confidence = det.Confidence
		t.Timestamp = det.Timestamp
		t.DetectionID = det.DetectionID
		t.PatternID = pat.PatternID
		t.Details.CameraCount = pat.CameraCount()
		t.Details.MovingAcrossArea = pat.CameraCount() >= 2
		return cloneThreat(t), false, true
	}

	if resolvedAt, ok := e.lastResolved[key]; ok && now.Sub(resolvedAt) < e.cfg.ResolutionCooldown {
		e.logger.Debug().
			Str("camera_id", det.CameraID).
			Str("activity", string(det.Activity)).
			Msg("Suppressing re-promotion inside resolution cooldown")
		return nil, false, false
	}

	t := &messages.Threat{
		ThreatID:    uuid.New().String(),
		Activity:    det.Activity,
		CameraID:    det.CameraID,
		Location:    det.Location,
		Confidence:  det.Confidence,
		Status:      messages.ThreatActive,
		Timestamp:   det.Timestamp,
		DetectionID: det.DetectionID,
		PatternID:   pat.PatternID,
		Details: messages.ThreatDetails{
			Description:      describe(det.Activity),
			CameraCount:      pat.CameraCount(),
			MovingAcrossArea: pat.CameraCount() >= 2,
		},
	}
	e.threats[t.ThreatID] = t
	e.activeByKey[key] = t.ThreatID

	e.logger.Info().
		Str("threat_id", t.ThreatID).
		Str("camera_id", t.CameraID).
		Str("activity", string(t.Activity)).
		Float64("confidence", t.Confidence).
		Msg("Promoted detection to threat")

	return cloneThreat(t), true, false
}

// ExpireInactive drops cold patterns, auto-resolves stale threats, and
// deletes resolved threats past their retention so the threat map stays
// bounded. Intended to run from a periodic sweeper goroutine.
func (e *Engine) ExpireInactive() (patterns, threats int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()

	for sig, pat := range e.patterns {
		if now.Sub(pat.LastSeen) > e.cfg.PatternTTL {
			delete(e.patterns, sig)
			patterns++
		}
	}

	for id, t := range e.threats {
		switch {
		case t.Status == messages.ThreatActive && now.Sub(t.Timestamp) > e.cfg.ThreatTTL:
			e.resolveLocked(t, "inactivity timeout")
			threats++
		case t.Status == messages.ThreatResolved && now.Sub(t.ResolvedAt) > e.cfg.ResolvedRetention:
			delete(e.threats, id)
		}
	}

	if patterns > 0 || threats > 0 {
		e.logger.Info().
			Int("patterns", patterns).
			Int("threats", threats).
			Msg("Expired inactive correlation state")
	}
	return patterns, threats
}

// Resolve marks a threat resolved, reporting whether it existed and was
// active.
func (e *Engine) Resolve(threatID string) (*messages.Threat, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.threats[threatID]
	if !ok || t.Status != messages.ThreatActive {
		return nil, false
	}
	e.resolveLocked(t, "resolved by operator")
	return cloneThreat(t), true
}

// ResolveAll resolves every active threat, returning how many changed.
func (e *Engine) ResolveAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, t := range e.threats {
		if t.Status == messages.ThreatActive {
			e.resolveLocked(t, "bulk resolve")
			n++
		}
	}
	return n
}

func (e *Engine) resolveLocked(t *messages.Threat, reason string) {
	t.Status = messages.ThreatResolved
	t.ResolvedAt = e.now().UTC()
	key := threatKey{cameraID: t.CameraID, activity: t.Activity}
	delete(e.activeByKey, key)
	e.lastResolved[key] = t.ResolvedAt

	e.logger.Info().
		Str("threat_id", t.ThreatID).
		Str("reason", reason).
		Msg("Resolved threat")

	if e.bus != nil {
		e.bus.Publish(bus.Event{Type: bus.EventThreatResolved, Payload: cloneThreat(t)})
	}
}

// ActiveThreats returns copies of all active threats.
func (e *Engine) ActiveThreats() []messages.Threat {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []messages.Threat
	for _, t := range e.threats {
		if t.Status == messages.ThreatActive {
			out = append(out, *cloneThreat(t))
		}
	}
	return out
}

// ThreatByID returns a copy of the threat, if known.
func (e *Engine) ThreatByID(id string) (*messages.Threat, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.threats[id]
	if !ok {
		return nil, false
	}
	return cloneThreat(t), true
}

// Patterns returns copies of all live patterns.
func (e *Engine) Patterns() []messages.Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []messages.Pattern
	for _, pat := range e.patterns {
		out = append(out, *clonePattern(pat))
	}
	return out
}

func (e *Engine) publishResult(det messages.Detection, res Result) {
	if e.bus == nil {
		return
	}

	e.bus.Publish(bus.Event{Type: bus.EventPatternUpdated, Payload: res.Pattern})

	switch {
	case res.ThreatCreated:
		e.bus.Publish(bus.Event{Type: bus.EventThreatCreated, Payload: res.Threat})
	case res.ThreatUpdated:
		e.bus.Publish(bus.Event{Type: bus.EventThreatUpdated, Payload: res.Threat})
	}

	entry := &messages.ReasoningLogEntry{
		CameraID:  det.CameraID,
		Step:      "correlation",
		Reasoning: e.narrate(det, res),
		Conclusion: fmt.Sprintf("pattern %s spans %d camera(s)",
			res.Pattern.PatternID, res.Pattern.CameraCount()),
		Timestamp: e.now().UTC(),
	}
	e.bus.Publish(bus.Event{Type: bus.EventReasoning, Payload: entry})
}

func (e *Engine) narrate(det messages.Detection, res Result) string {
	switch {
	case res.ThreatCreated:
		return fmt.Sprintf("%s at %s promoted to threat %s", det.Activity, det.CameraID, res.Threat.ThreatID)
	case res.ThreatUpdated:
		return fmt.Sprintf("%s at %s merged into active threat %s", det.Activity, det.CameraID, res.Threat.ThreatID)
	default:
		return fmt.Sprintf("%s at %s recorded, no threat change", det.Activity, det.CameraID)
	}
}

func describe(a messages.ActivityType) string {
	switch a {
	case messages.ActivityCarProwling:
		return "Person observed moving between parked vehicles"
	case messages.ActivityLoitering:
		return "Person lingering in the same spot"
	case messages.ActivitySuspiciousMovement:
		return "Sustained deliberate movement through the area"
	case messages.ActivityWildlife:
		return "Wild animal in a residential area"
	case messages.ActivityWildfire:
		return "Smoke or flame visible on camera"
	case messages.ActivityLostPet:
		return "Unaccompanied pet wandering the area"
	default:
		return "Unclassified activity"
	}
}

func clonePattern(p *messages.Pattern) *messages.Pattern {
	out := *p
	out.Occurrences = append([]messages.PatternOccurrence(nil), p.Occurrences...)
	out.Cameras = append([]string(nil), p.Cameras...)
	if p.PredictedNext != nil {
		pred := *p.PredictedNext
		out.PredictedNext = &pred
	}
	return &out
}

func cloneThreat(t *messages.Threat) *messages.Threat {
	out := *t
	out.Details.RecommendedActions = append([]string(nil), t.Details.RecommendedActions...)
	out.Dispatch.Community.Recipients = append([]string(nil), t.Dispatch.Community.Recipients...)
	out.Dispatch.Community.Failed = append([]string(nil), t.Dispatch.Community.Failed...)
	return &out
}
