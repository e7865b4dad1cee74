package messages

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSignAndVerify(t *testing.T) {
	secret := []byte("test-secret")
	payload := []byte(`{"camera_id":"cam_001"}`)

	env := NewEnvelope("cam_001", "camera")
	env.Sign(payload, secret)

	assert.NotEmpty(t, env.Signature)
	assert.True(t, env.VerifySignature(payload, secret))
	assert.False(t, env.VerifySignature([]byte("tampered"), secret))
	assert.False(t, env.VerifySignature(payload, []byte("wrong-secret")))
}

func TestMarshalWithSignature(t *testing.T) {
	secret := []byte("test-secret")

	det := &Detection{
		Envelope:    NewEnvelope("cam_002", "camera"),
		DetectionID: "det-1",
		CameraID:    "cam_002",
		Activity:    ActivityCarProwling,
		Behavior:    MovementSlowDeliberate,
		Confidence:  0.82,
		Location:    Position{Lat: 37.7749, Lng: -122.4194},
		Timestamp:   time.Now().UTC(),
	}

	data, err := MarshalWithSignature(det, secret)
	require.NoError(t, err)

	var decoded Detection
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, det.DetectionID, decoded.DetectionID)
	assert.NotEmpty(t, decoded.Envelope.Signature)
}

func TestVerifySignedRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	det := &Detection{
		Envelope:    NewEnvelope("cam_003", "camera"),
		DetectionID: "det-2",
		CameraID:    "cam_003",
		Activity:    ActivityLoitering,
		Behavior:    MovementStatic,
		Confidence:  0.91,
		Location:    Position{Lat: 37.7751, Lng: -122.4192},
		Timestamp:   time.Now().UTC(),
	}

	data, err := MarshalWithSignature(det, secret)
	require.NoError(t, err)

	var received Detection
	require.NoError(t, json.Unmarshal(data, &received))

	sig := received.Envelope.Signature
	assert.True(t, VerifySigned(&received, secret))
	assert.Equal(t, sig, received.Envelope.Signature, "envelope must be restored after verification")
	assert.False(t, VerifySigned(&received, []byte("wrong-secret")))

	received.Confidence = 0.1
	assert.False(t, VerifySigned(&received, secret), "tampered payload must fail verification")
}

func TestSubjectRouting(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		subject string
	}{
		{
			name:    "observation",
			msg:     &ObservationBundle{CameraID: "cam_001"},
			subject: "obs.cam_001",
		},
		{
			name:    "detection",
			msg:     &Detection{CameraID: "cam_003", Activity: ActivityLoitering},
			subject: "detection.cam_003.loitering",
		},
		{
			name:    "pattern",
			msg:     &Pattern{Activity: ActivityCarProwling},
			subject: "pattern.updated.car_prowling",
		},
		{
			name:    "active threat",
			msg:     &Threat{Activity: ActivityWildfire, Status: ThreatActive},
			subject: "threat.created.wildfire",
		},
		{
			name:    "resolved threat",
			msg:     &Threat{Activity: ActivityWildfire, Status: ThreatResolved},
			subject: "threat.resolved.wildfire",
		},
		{
			name:    "dispatch outcome",
			msg:     &DispatchOutcome{Status: DispatchQueued, Channel: ChannelEmergencyCall},
			subject: "dispatch.queued.emergency_call",
		},
		{
			name:    "reasoning",
			msg:     &ReasoningLogEntry{CameraID: "cam_002"},
			subject: "reasoning.cam_002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.subject, tt.msg.Subject())
		})
	}
}

func TestActivityTypeEligibility(t *testing.T) {
	assert.False(t, ActivityNone.DispatchEligible())
	assert.False(t, ActivityType("jaywalking").DispatchEligible())

	for _, a := range []ActivityType{
		ActivitySuspiciousMovement, ActivityCarProwling, ActivityLoitering,
		ActivityWildlife, ActivityWildfire, ActivityLostPet,
	} {
		assert.True(t, a.DispatchEligible(), string(a))
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityMedium))
	assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityHigh))
}

func TestDetectedObjectCenter(t *testing.T) {
	obj := DetectedObject{Class: "person", BBox: [4]float64{100, 200, 140, 280}}
	x, y := obj.Center()
	assert.Equal(t, 120.0, x)
	assert.Equal(t, 240.0, y)
}
