package messages

import "time"

// PatternOccurrence is one detection's contribution to a cross-camera
// pattern, reduced to what prediction needs.
type PatternOccurrence struct {
	DetectionID string    `json:"detection_id"`
	CameraID    string    `json:"camera_id"`
	Location    Position  `json:"location"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// Prediction names the camera most likely to see the subject next,
// extrapolated from the last two pattern occurrences.
type Prediction struct {
	CameraID   string   `json:"camera_id"`
	Location   Position `json:"location"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Pattern groups detections with the same behavior signature observed
// across the camera network within a correlation window.
type Pattern struct {
	Envelope Envelope `json:"envelope"`

	PatternID   string              `json:"pattern_id"`
	Activity    ActivityType        `json:"activity"`
	Movement    MovementPattern     `json:"movement"`
	Occurrences []PatternOccurrence `json:"occurrences"`
	Cameras     []string            `json:"cameras"` // distinct camera IDs, in first-seen order
	FirstSeen   time.Time           `json:"first_seen"`
	LastSeen    time.Time           `json:"last_seen"`

	PredictedNext *Prediction `json:"predicted_next,omitempty"`
}

func (p *Pattern) GetEnvelope() Envelope  { return p.Envelope }
func (p *Pattern) SetEnvelope(e Envelope) { p.Envelope = e }

func (p *Pattern) Subject() string {
	return "pattern.updated." + string(p.Activity)
}

// OccurrenceCount returns how many detections the pattern has absorbed.
func (p *Pattern) OccurrenceCount() int {
	return len(p.Occurrences)
}

// CameraCount returns how many distinct cameras contributed.
func (p *Pattern) CameraCount() int {
	return len(p.Cameras)
}
