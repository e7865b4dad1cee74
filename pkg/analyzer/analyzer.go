// Package analyzer turns a threat into a dispatch assessment: severity,
// incident category, and whether to call emergency services or notify
// the community. Assessment is a pure decision table so the same threat
// always yields the same answer.
package analyzer

import (
	"fmt"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// Config holds the confidence cutoffs of the decision table.
type Config struct {
	// Per-category confidence needed to rate HIGH instead of MEDIUM.
	CarProwlingHigh float64 `koanf:"car_prowling_high"`
	SuspiciousHigh  float64 `koanf:"suspicious_high"`
	AbnormalityHigh float64 `koanf:"abnormality_high"`

	// Confidence needed for MEDIUM on categories without a HIGH rule.
	MediumFloor float64 `koanf:"medium_floor"`

	// Emergency call gates by severity.
	HighCallConfidence   float64 `koanf:"high_call_confidence"`
	MediumCallConfidence float64 `koanf:"medium_call_confidence"`
}

// DefaultConfig returns the tuned decision table.
func DefaultConfig() Config {
	return Config{
		CarProwlingHigh:      0.80,
		SuspiciousHigh:       0.85,
		AbnormalityHigh:      0.75,
		MediumFloor:          0.70,
		HighCallConfidence:   0.75,
		MediumCallConfidence: 0.90,
	}
}

// Assessment is the dispatch decision for one threat.
type Assessment struct {
	ThreatID   string            `json:"threat_id"`
	Category   messages.Category `json:"category"`
	Severity   messages.Severity `json:"severity"`
	Confidence float64           `json:"confidence"`
	Priority   int               `json:"priority"`

	ShouldCallEmergency   bool `json:"should_call_emergency"`
	ShouldNotifyCommunity bool `json:"should_notify_community"`

	Summary            string   `json:"summary"`
	RecommendedActions []string `json:"recommended_actions"`
}

// Categorize maps an activity type to its incident category.
func Categorize(a messages.ActivityType) messages.Category {
	switch a {
	case messages.ActivityWildfire:
		return messages.CategoryFire
	case messages.ActivityCarProwling:
		return messages.CategoryCarProwling
	case messages.ActivitySuspiciousMovement:
		return messages.CategorySuspicious
	case messages.ActivityWildlife:
		return messages.CategoryAbnormality
	case messages.ActivityLoitering:
		return messages.CategoryLoitering
	case messages.ActivityLostPet:
		return messages.CategoryLostPet
	default:
		return messages.CategoryUnclassified
	}
}

// Analyze assesses one threat. It never mutates its input.
func (c Config) Analyze(t messages.Threat) Assessment {
	category := Categorize(t.Activity)
	severity := c.severity(category, t.Confidence)

	a := Assessment{
		ThreatID:   t.ThreatID,
		Category:   category,
		Severity:   severity,
		Confidence: t.Confidence,
		Priority:   priority(severity),
	}

	a.ShouldCallEmergency = c.shouldCall(severity, t.Confidence)
	if category == messages.CategoryLostPet {
		// Lost pets are an animal control matter, never a 911 call.
		a.ShouldCallEmergency = false
	}
	a.ShouldNotifyCommunity = severity.AtLeast(messages.SeverityMedium) ||
		category == messages.CategoryAbnormality ||
		category == messages.CategoryLostPet

	a.Summary = fmt.Sprintf("%s (%s) at %s, confidence %.0f%%",
		category, severity, t.CameraID, t.Confidence*100)
	a.RecommendedActions = recommend(category, severity)

	return a
}

func (c Config) severity(category messages.Category, confidence float64) messages.Severity {
	switch category {
	case messages.CategoryKidnapping, messages.CategoryAssault, messages.CategoryFire:
		return messages.SeverityCritical
	case messages.CategoryCarProwling:
		if confidence > c.CarProwlingHigh {
			return messages.SeverityHigh
		}
		return messages.SeverityMedium
	case messages.CategorySuspicious:
		if confidence > c.SuspiciousHigh {
			return messages.SeverityHigh
		}
		return messages.SeverityMedium
	case messages.CategoryAbnormality:
		if confidence > c.AbnormalityHigh {
			return messages.SeverityHigh
		}
		if confidence > c.MediumFloor {
			return messages.SeverityMedium
		}
		return messages.SeverityLow
	default:
		if confidence > c.MediumFloor {
			return messages.SeverityMedium
		}
		return messages.SeverityLow
	}
}

func (c Config) shouldCall(severity messages.Severity, confidence float64) bool {
	switch severity {
	case messages.SeverityCritical:
		return true
	case messages.SeverityHigh:
		return confidence >= c.HighCallConfidence
	case messages.SeverityMedium:
		return confidence >= c.MediumCallConfidence
	default:
		return false
	}
}

func priority(s messages.Severity) int {
	switch s {
	case messages.SeverityCritical:
		return 10
	case messages.SeverityHigh:
		return 7
	case messages.SeverityMedium:
		return 5
	default:
		return 2
	}
}

func recommend(category messages.Category, severity messages.Severity) []string {
	var actions []string

	switch category {
	case messages.CategoryFire:
		actions = append(actions,
			"Notify fire department immediately",
			"Alert residents within the evacuation radius")
	case messages.CategoryCarProwling:
		actions = append(actions,
			"Review camera footage for vehicle entry",
			"Check for additional subjects on adjacent cameras")
	case messages.CategorySuspicious, messages.CategoryLoitering:
		actions = append(actions,
			"Monitor adjacent cameras for movement",
			"Preserve footage for the incident record")
	case messages.CategoryAbnormality:
		actions = append(actions, "Keep residents and pets indoors until the animal moves on")
	case messages.CategoryLostPet:
		actions = append(actions,
			"Notify animal control",
			"Share last seen location with the community")
	}

	if severity.AtLeast(messages.SeverityHigh) {
		actions = append(actions, "Keep the incident open until resolved by an operator")
	}
	return actions
}
