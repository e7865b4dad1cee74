package messages

import "time"

// Dispatch channels.
const (
	ChannelEmergencyCall = "emergency_call"
	ChannelCommunitySMS  = "community_sms"
)

// Dispatch outcome statuses.
const (
	DispatchQueued  = "queued"
	DispatchSent    = "sent"
	DispatchFailed  = "failed"
	DispatchSkipped = "skipped"
)

// DispatchOutcome reports what the dispatch manager did (or declined to
// do) for a threat on one channel.
type DispatchOutcome struct {
	Envelope Envelope `json:"envelope"`

	ThreatID   string    `json:"threat_id"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (d *DispatchOutcome) GetEnvelope() Envelope  { return d.Envelope }
func (d *DispatchOutcome) SetEnvelope(e Envelope) { d.Envelope = e }

func (d *DispatchOutcome) Subject() string {
	return "dispatch." + d.Status + "." + d.Channel
}
