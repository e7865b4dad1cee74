package messages

import "time"

// ScoreBreakdown records the individual contributions that produced a
// suspicion score, keyed by factor name. Kept on the detection so the
// reasoning behind every alert is auditable after the fact.
type ScoreBreakdown map[string]float64

// Detection is emitted by a camera agent when the fused suspicion score
// for a tick crosses the activity threshold.
type Detection struct {
	Envelope Envelope `json:"envelope"`

	DetectionID string          `json:"detection_id"`
	CameraID    string          `json:"camera_id"`
	Activity    ActivityType    `json:"activity"`
	Behavior    MovementPattern `json:"behavior"`
	Confidence  float64         `json:"confidence"`
	Score       float64         `json:"score"`
	Breakdown   ScoreBreakdown  `json:"breakdown,omitempty"`
	Location    Position        `json:"location"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (d *Detection) GetEnvelope() Envelope  { return d.Envelope }
func (d *Detection) SetEnvelope(e Envelope) { d.Envelope = e }

func (d *Detection) Subject() string {
	return "detection." + d.CameraID + "." + string(d.Activity)
}
