package handler

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/messages"
)

const (
	storeDetectionCap = 500
	storeReasoningCap = 1000
	storeDispatchCap  = 500
	storeThreatCap    = 1000
	storePatternCap   = 1000
)

// CameraView is a camera plus what the gateway last heard from it.
type CameraView struct {
	config.Camera
	LastDetection time.Time `json:"last_detection,omitempty"`
}

// Store is the gateway's in-memory view of the pipeline, rebuilt from
// the NATS firehose. It exists so REST queries never reach into agent
// state; losing it on restart costs nothing but history.
type Store struct {
	mu         sync.RWMutex
	cameras    []config.Camera
	lastSeen   map[string]time.Time // camera -> last detection time
	threats    map[string]messages.Threat
	patterns   map[string]messages.Pattern
	detections []messages.Detection
	reasoning  []messages.ReasoningLogEntry
	dispatches []messages.DispatchOutcome

	logger zerolog.Logger
	subs   []*nats.Subscription
}

// NewStore creates a view store over the configured camera network.
func NewStore(cameras []config.Camera, logger zerolog.Logger) *Store {
	return &Store{
		cameras:  cameras,
		lastSeen: make(map[string]time.Time),
		threats:  make(map[string]messages.Threat),
		patterns: make(map[string]messages.Pattern),
		logger:   logger.With().Str("component", "view_store").Logger(),
	}
}

// Bind subscribes the store to the pipeline subjects.
func (s *Store) Bind(nc *nats.Conn) error {
	handlers := map[string]nats.MsgHandler{
		"detection.>": s.onDetection,
		"pattern.>":   s.onPattern,
		"threat.>":    s.onThreat,
		"dispatch.>":  s.onDispatch,
		"reasoning.>": s.onReasoning,
	}

	for subject, fn := range handlers {
		sub, err := nc.Subscribe(subject, fn)
		if err != nil {
			s.Unbind()
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// Unbind drops the store's NATS subscriptions.
func (s *Store) Unbind() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Store) onDetection(msg *nats.Msg) {
	var det messages.Detection
	if err := json.Unmarshal(msg.Data, &det); err != nil {
		s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping unparseable detection")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = append(s.detections, det)
	if len(s.detections) > storeDetectionCap {
		s.detections = s.detections[len(s.detections)-storeDetectionCap:]
	}
	if det.Timestamp.After(s.lastSeen[det.CameraID]) {
		s.lastSeen[det.CameraID] = det.Timestamp
	}
}

func (s *Store) onPattern(msg *nats.Msg) {
	var pat messages.Pattern
	if err := json.Unmarshal(msg.Data, &pat); err != nil {
		s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping unparseable pattern")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[pat.PatternID] = pat
	s.prunePatternsLocked()
}

func (s *Store) onThreat(msg *nats.Msg) {
	var t messages.Threat
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping unparseable threat")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threats[t.ThreatID] = t
	s.pruneThreatsLocked()
}

// pruneThreatsLocked evicts the oldest threats once the map exceeds its
// cap, taking resolved threats first. Callers hold s.mu.
func (s *Store) pruneThreatsLocked() {
	if len(s.threats) <= storeThreatCap {
		return
	}

	type aged struct {
		id       string
		resolved bool
		at       time.Time
	}
	order := make([]aged, 0, len(s.threats))
	for id, t := range s.threats {
		order = append(order, aged{id: id, resolved: t.Status == messages.ThreatResolved, at: t.Timestamp})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].resolved != order[j].resolved {
			return order[i].resolved
		}
		return order[i].at.Before(order[j].at)
	})
	for _, entry := range order[:len(s.threats)-storeThreatCap] {
		delete(s.threats, entry.id)
	}
}

// prunePatternsLocked evicts the coldest patterns once the map exceeds
// its cap. Callers hold s.mu.
func (s *Store) prunePatternsLocked() {
	if len(s.patterns) <= storePatternCap {
		return
	}

	type aged struct {
		id string
		at time.Time
	}
	order := make([]aged, 0, len(s.patterns))
	for id, p := range s.patterns {
		order = append(order, aged{id: id, at: p.LastSeen})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].at.Before(order[j].at) })
	for _, entry := range order[:len(s.patterns)-storePatternCap] {
		delete(s.patterns, entry.id)
	}
}

func (s *Store) onDispatch(msg *nats.Msg) {
	var out messages.DispatchOutcome
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping unparseable dispatch outcome")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatches = append(s.dispatches, out)
	if len(s.dispatches) > storeDispatchCap {
		s.dispatches = s.dispatches[len(s.dispatches)-storeDispatchCap:]
	}

	// Reflect the outcome onto the threat so threat queries show the
	// dispatch trail even if the coordinator never re-emits it.
	if t, ok := s.threats[out.ThreatID]; ok {
		switch out.Channel {
		case messages.ChannelEmergencyCall:
			t.Dispatch.EmergencyCall = messages.CallRecord{
				Attempted: true,
				Status:    out.Status,
				Outcome:   out.Detail,
				At:        out.Timestamp,
			}
		case messages.ChannelCommunitySMS:
			switch out.Status {
			case messages.DispatchSent:
				t.Dispatch.Community.Recipients = append(t.Dispatch.Community.Recipients, out.Recipients...)
				t.Dispatch.Community.LastSentAt = out.Timestamp
			case messages.DispatchFailed:
				t.Dispatch.Community.Failed = append(t.Dispatch.Community.Failed, out.Recipients...)
				t.Dispatch.Community.LastError = out.Detail
			}
		}
		s.threats[out.ThreatID] = t
	}
}

func (s *Store) onReasoning(msg *nats.Msg) {
	var entry messages.ReasoningLogEntry
	if err := json.Unmarshal(msg.Data, &entry); err != nil {
		s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping unparseable reasoning entry")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasoning = append(s.reasoning, entry)
	if len(s.reasoning) > storeReasoningCap {
		s.reasoning = s.reasoning[len(s.reasoning)-storeReasoningCap:]
	}
}

// Cameras returns the network with per-camera last detection times.
func (s *Store) Cameras() []CameraView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CameraView, 0, len(s.cameras))
	for _, cam := range s.cameras {
		out = append(out, CameraView{Camera: cam, LastDetection: s.lastSeen[cam.ID]})
	}
	return out
}

// CameraByID finds one camera view.
func (s *Store) CameraByID(id string) (CameraView, bool) {
	for _, cam := range s.Cameras() {
		if cam.ID == id {
			return cam, true
		}
	}
	return CameraView{}, false
}

// ThreatFilter narrows a threat listing.
type ThreatFilter struct {
	Status   string
	Activity string
	Severity string
	Limit    int
}

// Threats lists known threats, newest first.
func (s *Store) Threats(f ThreatFilter) []messages.Threat {
	s.mu.RLock()
	out := make([]messages.Threat, 0, len(s.threats))
	for _, t := range s.threats {
		if f.Status != "" && !strings.EqualFold(string(t.Status), f.Status) {
			continue
		}
		if f.Activity != "" && !strings.EqualFold(string(t.Activity), f.Activity) {
			continue
		}
		if f.Severity != "" && !strings.EqualFold(string(t.Details.Severity), f.Severity) {
			continue
		}
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// ThreatByID returns one threat.
func (s *Store) ThreatByID(id string) (messages.Threat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threats[id]
	return t, ok
}

// Patterns lists known patterns, most recently seen first.
func (s *Store) Patterns(limit int) []messages.Pattern {
	s.mu.RLock()
	out := make([]messages.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Detections lists recent detections, newest first, optionally for one
// camera.
func (s *Store) Detections(cameraID string, limit int) []messages.Detection {
	s.mu.RLock()
	var out []messages.Detection
	for i := len(s.detections) - 1; i >= 0; i-- {
		d := s.detections[i]
		if cameraID != "" && d.CameraID != cameraID {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	s.mu.RUnlock()
	return out
}

// Reasoning lists recent reasoning entries, newest first, optionally
// for one camera.
func (s *Store) Reasoning(cameraID string, limit int) []messages.ReasoningLogEntry {
	s.mu.RLock()
	var out []messages.ReasoningLogEntry
	for i := len(s.reasoning) - 1; i >= 0; i-- {
		entry := s.reasoning[i]
		if cameraID != "" && entry.CameraID != cameraID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	s.mu.RUnlock()
	return out
}

// Dispatches lists recent dispatch outcomes, newest first.
func (s *Store) Dispatches(limit int) []messages.DispatchOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.dispatches)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]messages.DispatchOutcome, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.dispatches[i])
	}
	return out
}
