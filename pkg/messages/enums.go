package messages

// ActivityType classifies what a camera believes it is seeing.
type ActivityType string

const (
	ActivityNone               ActivityType = "none"
	ActivitySuspiciousMovement ActivityType = "suspicious_movement"
	ActivityCarProwling        ActivityType = "car_prowling"
	ActivityLoitering          ActivityType = "loitering"
	ActivityWildlife           ActivityType = "wildlife"
	ActivityWildfire           ActivityType = "wildfire"
	ActivityLostPet            ActivityType = "lost_pet"
)

// Valid reports whether the activity type is one of the known values.
func (a ActivityType) Valid() bool {
	switch a {
	case ActivityNone, ActivitySuspiciousMovement, ActivityCarProwling,
		ActivityLoitering, ActivityWildlife, ActivityWildfire, ActivityLostPet:
		return true
	}
	return false
}

// DispatchEligible reports whether detections of this activity may be
// promoted to threats. ActivityNone never reaches the coordinator.
func (a ActivityType) DispatchEligible() bool {
	return a.Valid() && a != ActivityNone
}

// MovementPattern describes motion character derived from a camera's
// recent observation window.
type MovementPattern string

const (
	MovementStatic         MovementPattern = "static"
	MovementSlowDeliberate MovementPattern = "slow_deliberate"
	MovementModerate       MovementPattern = "moderate"
	MovementFast           MovementPattern = "fast_movement"
	MovementErratic        MovementPattern = "erratic"
)

// Severity ranks how serious an assessed threat is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is at or above the given severity.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Category is the incident category assigned during threat assessment.
type Category string

const (
	CategoryKidnapping    Category = "kidnapping"
	CategoryAssault       Category = "assault"
	CategoryFire          Category = "fire"
	CategoryCarProwling   Category = "car_prowling"
	CategorySuspicious    Category = "suspicious_activity"
	CategoryAbnormality   Category = "behavioral_abnormality"
	CategoryLoitering     Category = "loitering"
	CategoryLostPet       Category = "lost_pet"
	CategoryUnclassified  Category = "unclassified"
)

// ThreatStatus tracks a threat through its lifecycle.
type ThreatStatus string

const (
	ThreatActive   ThreatStatus = "active"
	ThreatResolved ThreatStatus = "resolved"
)
