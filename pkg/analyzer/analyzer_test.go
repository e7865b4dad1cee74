package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ursa-watch/ursa/pkg/messages"
)

func threat(activity messages.ActivityType, confidence float64) messages.Threat {
	return messages.Threat{
		ThreatID:   "threat-1",
		Activity:   activity,
		CameraID:   "cam_001",
		Confidence: confidence,
		Status:     messages.ThreatActive,
	}
}

func TestSeverityTable(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name       string
		activity   messages.ActivityType
		confidence float64
		severity   messages.Severity
		call       bool
		notify     bool
	}{
		{"wildfire is always critical", messages.ActivityWildfire, 0.55, messages.SeverityCritical, true, true},
		{"confident car prowling is high", messages.ActivityCarProwling, 0.82, messages.SeverityHigh, true, true},
		{"tentative car prowling is medium", messages.ActivityCarProwling, 0.70, messages.SeverityMedium, false, true},
		{"very confident medium still calls", messages.ActivityCarProwling, 0.80, messages.SeverityMedium, false, true},
		{"confident suspicious movement is high", messages.ActivitySuspiciousMovement, 0.86, messages.SeverityHigh, true, true},
		{"ordinary suspicious movement is medium", messages.ActivitySuspiciousMovement, 0.65, messages.SeverityMedium, false, true},
		{"confident wildlife is high", messages.ActivityWildlife, 0.78, messages.SeverityHigh, true, true},
		{"tentative wildlife is low but notifies", messages.ActivityWildlife, 0.60, messages.SeverityLow, false, true},
		{"loitering stays low", messages.ActivityLoitering, 0.66, messages.SeverityLow, false, false},
		{"confident loitering is medium", messages.ActivityLoitering, 0.75, messages.SeverityMedium, false, true},
		{"lost pet never calls 911", messages.ActivityLostPet, 0.95, messages.SeverityMedium, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := cfg.Analyze(threat(tt.activity, tt.confidence))
			assert.Equal(t, tt.severity, a.Severity)
			assert.Equal(t, tt.call, a.ShouldCallEmergency, "call gate")
			assert.Equal(t, tt.notify, a.ShouldNotifyCommunity, "notify gate")
		})
	}
}

func TestMediumCallGate(t *testing.T) {
	cfg := DefaultConfig()

	// MEDIUM severity calls only at very high confidence. Lost pet sits
	// at MEDIUM for any confidence above the floor.
	a := cfg.Analyze(threat(messages.ActivityLoitering, 0.92))
	assert.Equal(t, messages.SeverityMedium, a.Severity)
	assert.True(t, a.ShouldCallEmergency)
}

func TestPriorities(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Analyze(threat(messages.ActivityWildfire, 0.9)).Priority)
	assert.Equal(t, 7, cfg.Analyze(threat(messages.ActivityCarProwling, 0.9)).Priority)
	assert.Equal(t, 5, cfg.Analyze(threat(messages.ActivityCarProwling, 0.7)).Priority)
	assert.Equal(t, 2, cfg.Analyze(threat(messages.ActivityLoitering, 0.3)).Priority)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	th := threat(messages.ActivityCarProwling, 0.82)

	first := cfg.Analyze(th)
	second := cfg.Analyze(th)
	assert.Equal(t, first, second)
}

func TestRecommendedActions(t *testing.T) {
	cfg := DefaultConfig()

	fire := cfg.Analyze(threat(messages.ActivityWildfire, 0.9))
	assert.Contains(t, fire.RecommendedActions[0], "fire department")

	pet := cfg.Analyze(threat(messages.ActivityLostPet, 0.8))
	assert.Contains(t, pet.RecommendedActions[0], "animal control")
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, messages.CategoryFire, Categorize(messages.ActivityWildfire))
	assert.Equal(t, messages.CategoryAbnormality, Categorize(messages.ActivityWildlife))
	assert.Equal(t, messages.CategoryUnclassified, Categorize(messages.ActivityNone))
}
