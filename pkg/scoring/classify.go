package scoring

import (
	"math"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// Object classes recognized by the vision service that scoring cares
// about. Anything else contributes nothing.
var (
	personClasses   = []string{"person"}
	vehicleClasses  = []string{"car", "truck", "bus", "motorcycle"}
	hazardClasses   = []string{"fire", "smoke"}
	wildlifeClasses = []string{"bear", "coyote", "deer", "raccoon", "mountain_lion"}
	petClasses      = []string{"dog", "cat"}
)

// objectSummary is what the current tick's detected objects amount to,
// judged against the recent window.
type objectSummary struct {
	persons  []messages.DetectedObject
	vehicles []messages.DetectedObject
	hazards  []messages.DetectedObject
	wildlife []messages.DetectedObject
	pets     []messages.DetectedObject

	personNearVehicle bool
	loitering         bool
}

func summarizeObjects(b messages.ObservationBundle, w *window, cfg Config) objectSummary {
	sum := objectSummary{
		persons:  b.ObjectsOfClass(personClasses...),
		vehicles: b.ObjectsOfClass(vehicleClasses...),
		hazards:  b.ObjectsOfClass(hazardClasses...),
		wildlife: b.ObjectsOfClass(wildlifeClasses...),
		pets:     b.ObjectsOfClass(petClasses...),
	}

	for _, p := range sum.persons {
		px, py := p.Center()
		for _, v := range sum.vehicles {
			vx, vy := v.Center()
			if math.Hypot(px-vx, py-vy) < cfg.ProximityPixels {
				sum.personNearVehicle = true
			}
		}
	}

	if len(sum.persons) > 0 {
		if spread, ok := w.personSpread(cfg.LoiterMinSamples); ok && spread < cfg.LoiterSpreadPixels {
			sum.loitering = true
		}
	}

	return sum
}

// classify maps a threshold-crossing tick to an activity type. Object
// evidence wins over motion inference; motion-only rules let a camera
// keep classifying when the vision service is down.
func classify(b messages.ObservationBundle, movement messages.MovementPattern, sum objectSummary, rules MotionRules) messages.ActivityType {
	if len(sum.hazards) > 0 {
		return messages.ActivityWildfire
	}
	if sum.personNearVehicle {
		return messages.ActivityCarProwling
	}
	if sum.loitering {
		return messages.ActivityLoitering
	}
	if len(sum.wildlife) > 0 {
		return messages.ActivityWildlife
	}
	if len(sum.pets) > 0 && len(sum.persons) == 0 {
		return messages.ActivityLostPet
	}

	// Motion-only inference.
	deliberate := movement == messages.MovementSlowDeliberate
	erratic := movement == messages.MovementErratic

	switch {
	case deliberate &&
		b.EdgeDensity >= rules.ProwlEdge.Low && b.EdgeDensity < rules.ProwlEdge.High &&
		b.MotionSpeed >= rules.ProwlSpeed.Low && b.MotionSpeed < rules.ProwlSpeed.High &&
		b.PersistenceRatio > rules.ProwlPersistence:
		// A person-scale subject pacing slowly and staying in frame is
		// the car prowler profile even without an object fix.
		return messages.ActivityCarProwling

	case (deliberate || erratic) &&
		b.EdgeDensity >= rules.SuspiciousEdge.Low && b.EdgeDensity < rules.SuspiciousEdge.High &&
		b.PersistenceRatio > rules.SuspiciousPersistence:
		return messages.ActivitySuspiciousMovement

	case b.PersistenceRatio > rules.LoiterPersistence &&
		b.EdgeDensity >= rules.LoiterEdge.Low && b.EdgeDensity < rules.LoiterEdge.High &&
		b.MotionSpeed < rules.LoiterSpeedMax:
		return messages.ActivityLoitering
	}

	return messages.ActivityNone
}
