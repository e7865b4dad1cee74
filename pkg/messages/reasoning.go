package messages

import "time"

// ReasoningLogEntry narrates one step of the pipeline's decision making
// so operators can replay why an alert did or did not fire.
type ReasoningLogEntry struct {
	Envelope Envelope `json:"envelope"`

	CameraID   string    `json:"camera_id,omitempty"`
	Step       string    `json:"step"` // scoring, classification, correlation, assessment, dispatch
	Reasoning  string    `json:"reasoning"`
	Evidence   []string  `json:"evidence,omitempty"`
	Conclusion string    `json:"conclusion"`
	Timestamp  time.Time `json:"timestamp"`
}

func (r *ReasoningLogEntry) GetEnvelope() Envelope  { return r.Envelope }
func (r *ReasoningLogEntry) SetEnvelope(e Envelope) { r.Envelope = e }

func (r *ReasoningLogEntry) Subject() string {
	if r.CameraID == "" {
		return "reasoning.system"
	}
	return "reasoning." + r.CameraID
}
