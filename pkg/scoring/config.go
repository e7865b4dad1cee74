// Package scoring implements per-camera suspicion scoring: fusing one
// tick of visual and motion features into a score, deriving movement
// patterns from the recent window, and classifying threshold-crossing
// ticks into activity types.
package scoring

import "github.com/ursa-watch/ursa/pkg/messages"

// Band is a half-open value range (low, high).
type Band struct {
	Low  float64 `koanf:"low"`
	High float64 `koanf:"high"`
}

// Contains reports whether v falls strictly inside the band.
func (b Band) Contains(v float64) bool {
	return v > b.Low && v < b.High
}

// Weights holds every tunable contribution of the score fusion. Values
// are additive deltas on a base score of zero; the fused score is
// clamped to [0,1].
type Weights struct {
	// Edge density: moderate structure suggests a person-sized subject,
	// heavy clutter mostly means foliage or rain.
	EdgeSweetSpot      Band    `koanf:"edge_sweet_spot"`
	EdgeSweetSpotBonus float64 `koanf:"edge_sweet_spot_bonus"`
	EdgeClutterBonus   float64 `koanf:"edge_clutter_bonus"`

	// Motion consistency: concentrated motion is a subject, scattered
	// motion is weather.
	ConsistencyConcentrated float64 `koanf:"consistency_concentrated"`
	ConsistencyBonus        float64 `koanf:"consistency_bonus"`
	ConsistencyScattered    float64 `koanf:"consistency_scattered"`
	ConsistencyPenalty      float64 `koanf:"consistency_penalty"`

	// Motion speed: deliberate walking pace reads as casing, vehicles
	// passing through do not.
	SpeedDeliberate Band    `koanf:"speed_deliberate"`
	SpeedBonus      float64 `koanf:"speed_bonus"`
	SpeedFast       float64 `koanf:"speed_fast"`
	SpeedPenalty    float64 `koanf:"speed_penalty"`

	// Persistence: how much of the window the subject stayed in frame.
	PersistenceSustained float64 `koanf:"persistence_sustained"`
	PersistenceBonus     float64 `koanf:"persistence_bonus"`
	PersistenceTransient float64 `koanf:"persistence_transient"`
	PersistencePenalty   float64 `koanf:"persistence_penalty"`

	// Movement pattern deltas, keyed by messages.MovementPattern value.
	PatternBonus map[string]float64 `koanf:"pattern_bonus"`

	// Intensity texture: mid-range variation is a textured scene, very
	// high values are glare or headlights.
	IntensityTextured Band    `koanf:"intensity_textured"`
	IntensityBonus    float64 `koanf:"intensity_bonus"`
	IntensityGlare    float64 `koanf:"intensity_glare"`
	GlarePenalty      float64 `koanf:"glare_penalty"`

	// Object-level evidence, applied only when detections are present.
	PersonNearVehicleBonus  float64 `koanf:"person_near_vehicle_bonus"`
	LoiteringBonus          float64 `koanf:"loitering_bonus"`
	PersonPresenceBonus     float64 `koanf:"person_presence_bonus"`
	HazardBonus             float64 `koanf:"hazard_bonus"`
	WildlifeBonus           float64 `koanf:"wildlife_bonus"`
	PetBonus                float64 `koanf:"pet_bonus"`
	UnattendedMotionPenalty float64 `koanf:"unattended_motion_penalty"`
}

// PatternBands controls how the observation window is reduced to a
// movement pattern. Classification runs over the window's edge density
// series: average and spread together separate a deliberate walker from
// passing traffic or wind.
type PatternBands struct {
	StaticMax        float64 `koanf:"static_max"`
	Deliberate       Band    `koanf:"deliberate"`
	DeliberateStdMax float64 `koanf:"deliberate_std_max"`
	FastMin          float64 `koanf:"fast_min"`
	ErraticStdMin    float64 `koanf:"erratic_std_min"`
}

// MotionRules are the motion-only classification cutoffs used when no
// object evidence is available. Edge and speed bands include their low
// boundary.
type MotionRules struct {
	// Car prowling: a person-scale subject pacing slowly and staying in
	// frame.
	ProwlEdge        Band    `koanf:"prowl_edge"`
	ProwlSpeed       Band    `koanf:"prowl_speed"`
	ProwlPersistence float64 `koanf:"prowl_persistence"`

	// Suspicious movement: deliberate or erratic motion with sustained
	// presence.
	SuspiciousEdge        Band    `koanf:"suspicious_edge"`
	SuspiciousPersistence float64 `koanf:"suspicious_persistence"`

	// Loitering: a near-stationary subject that will not leave.
	LoiterEdge        Band    `koanf:"loiter_edge"`
	LoiterPersistence float64 `koanf:"loiter_persistence"`
	LoiterSpeedMax    float64 `koanf:"loiter_speed_max"`
}

// Config is the full scoring configuration for a camera agent. All
// values are hot-reloadable through the agent's config endpoint.
type Config struct {
	WindowSize int `koanf:"window_size"`

	Weights Weights      `koanf:"weights"`
	Pattern PatternBands `koanf:"pattern"`
	Motion  MotionRules  `koanf:"motion"`

	// Detection thresholds. Thresholds overrides DefaultThreshold per
	// activity type.
	DefaultThreshold float64            `koanf:"default_threshold"`
	Thresholds       map[string]float64 `koanf:"thresholds"`

	// Object analysis.
	ProximityPixels    float64 `koanf:"proximity_pixels"`
	LoiterSpreadPixels float64 `koanf:"loiter_spread_pixels"`
	LoiterMinSamples   int     `koanf:"loiter_min_samples"`

	// Bounded in-memory logs.
	DetectionLogSize int `koanf:"detection_log_size"`
	ReasoningLogSize int `koanf:"reasoning_log_size"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize: 30,
		Weights: Weights{
			EdgeSweetSpot:      Band{Low: 0.10, High: 0.25},
			EdgeSweetSpotBonus: 0.12,
			EdgeClutterBonus:   0.03,

			ConsistencyConcentrated: 0.3,
			ConsistencyBonus:        0.15,
			ConsistencyScattered:    0.1,
			ConsistencyPenalty:      -0.10,

			SpeedDeliberate: Band{Low: 0.02, High: 0.10},
			SpeedBonus:      0.12,
			SpeedFast:       0.15,
			SpeedPenalty:    -0.10,

			PersistenceSustained: 0.6,
			PersistenceBonus:     0.20,
			PersistenceTransient: 0.3,
			PersistencePenalty:   -0.15,

			PatternBonus: map[string]float64{
				string(messages.MovementSlowDeliberate): 0.15,
				string(messages.MovementFast):           -0.10,
				string(messages.MovementErratic):        0.08,
			},

			IntensityTextured: Band{Low: 30, High: 80},
			IntensityBonus:    0.08,
			IntensityGlare:    100,
			GlarePenalty:      -0.10,

			PersonNearVehicleBonus:  0.30,
			LoiteringBonus:          0.25,
			PersonPresenceBonus:     0.10,
			HazardBonus:             0.35,
			WildlifeBonus:           0.18,
			PetBonus:                0.15,
			UnattendedMotionPenalty: -0.15,
		},
		Pattern: PatternBands{
			StaticMax:        0.05,
			Deliberate:       Band{Low: 0.08, High: 0.15},
			DeliberateStdMax: 0.02,
			FastMin:          0.15,
			ErraticStdMin:    0.03,
		},
		Motion: MotionRules{
			ProwlEdge:        Band{Low: 0.10, High: 0.15},
			ProwlSpeed:       Band{Low: 0.02, High: 0.08},
			ProwlPersistence: 0.6,

			SuspiciousEdge:        Band{Low: 0.10, High: 0.20},
			SuspiciousPersistence: 0.5,

			LoiterEdge:        Band{Low: 0.08, High: 0.15},
			LoiterPersistence: 0.7,
			LoiterSpeedMax:    0.02,
		},
		DefaultThreshold: 0.60,
		Thresholds: map[string]float64{
			string(messages.ActivityLoitering): 0.65,
		},
		ProximityPixels:    50,
		LoiterSpreadPixels: 60,
		LoiterMinSamples:   5,
		DetectionLogSize:   100,
		ReasoningLogSize:   200,
	}
}

// ThresholdFor returns the detection threshold for an activity type.
func (c Config) ThresholdFor(a messages.ActivityType) float64 {
	if t, ok := c.Thresholds[string(a)]; ok {
		return t
	}
	return c.DefaultThreshold
}
