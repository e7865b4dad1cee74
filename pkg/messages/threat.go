package messages

import "time"

// ThreatDetails carries the human-facing assessment attached to a threat.
type ThreatDetails struct {
	Description        string   `json:"description"`
	Severity           Severity `json:"severity"`
	Category           Category `json:"category"`
	Priority           int      `json:"priority"`
	ActionRequired     bool     `json:"action_required"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`

	// Cross-camera context, filled in when the threat belongs to a
	// multi-camera pattern.
	CameraCount      int  `json:"camera_count,omitempty"`
	MovingAcrossArea bool `json:"moving_across_area,omitempty"`
}

// CallRecord tracks the single emergency call attempt for a threat.
type CallRecord struct {
	Attempted bool      `json:"attempted"`
	Status    string    `json:"status,omitempty"` // queued, failed, skipped
	Outcome   string    `json:"outcome,omitempty"`
	At        time.Time `json:"at,omitempty"`
}

// NotifyRecord tracks community notifications sent for a threat,
// including members whose delivery failed.
type NotifyRecord struct {
	Recipients []string  `json:"recipients,omitempty"`
	LastSentAt time.Time `json:"last_sent_at,omitempty"`
	Failed     []string  `json:"failed,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// DispatchState is the dispatch ledger entry embedded in a threat.
type DispatchState struct {
	EmergencyCall CallRecord   `json:"emergency_call"`
	Community     NotifyRecord `json:"community"`
}

// Threat is an active incident promoted from one or more detections.
// There is at most one active threat per (camera, activity) pair.
type Threat struct {
	Envelope Envelope `json:"envelope"`

	ThreatID    string       `json:"threat_id"`
	Activity    ActivityType `json:"activity"`
	CameraID    string       `json:"camera_id"`
	Location    Position     `json:"location"`
	Confidence  float64      `json:"confidence"`
	Status      ThreatStatus `json:"status"`
	Timestamp   time.Time    `json:"timestamp"`
	ResolvedAt  time.Time    `json:"resolved_at,omitempty"`
	DetectionID string       `json:"detection_id"`
	PatternID   string       `json:"pattern_id,omitempty"`

	Details  ThreatDetails `json:"details"`
	Dispatch DispatchState `json:"dispatch"`
}

func (t *Threat) GetEnvelope() Envelope  { return t.Envelope }
func (t *Threat) SetEnvelope(e Envelope) { t.Envelope = e }

func (t *Threat) Subject() string {
	switch t.Status {
	case ThreatResolved:
		return "threat.resolved." + string(t.Activity)
	default:
		return "threat.created." + string(t.Activity)
	}
}

// UpdateSubject is used when an existing active threat absorbs a new
// detection instead of creating a duplicate.
func (t *Threat) UpdateSubject() string {
	return "threat.updated." + string(t.Activity)
}
