package source

import (
	"context"
	"math/rand"
	"time"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// Scenario names a scripted demo storyline.
type Scenario string

const (
	ScenarioQuiet      Scenario = "quiet"
	ScenarioCarProwler Scenario = "car_prowler"
	ScenarioWildlife   Scenario = "wildlife"
	ScenarioWildfire   Scenario = "wildfire"
	ScenarioLostPet    Scenario = "lost_pet"
)

// Valid reports whether the scenario is one of the known storylines.
func (s Scenario) Valid() bool {
	switch s {
	case ScenarioQuiet, ScenarioCarProwler, ScenarioWildlife, ScenarioWildfire, ScenarioLostPet:
		return true
	}
	return false
}

// ActiveWindow returns the tick range during which the scenario subject
// appears on the camera at the given roster index. Roaming scenarios
// stagger overlapping windows across cameras to script a route through
// the network; stationary ones play out on the first camera only.
func ActiveWindow(scenario Scenario, cameraIndex int) (activeFrom, activeUntil int) {
	switch scenario {
	case ScenarioCarProwler, ScenarioLostPet:
		from := 5 + cameraIndex*10
		return from, from + 20
	case ScenarioWildlife:
		if cameraIndex == 0 {
			return 5, 40
		}
	case ScenarioWildfire:
		if cameraIndex == 0 {
			return 5, 60
		}
	}
	return 0, 0
}

// Synthetic generates observation bundles for one camera from a
// scripted scenario. Outside the active tick range it produces baseline
// scene noise; inside it, the scenario's subject walks through frame.
type Synthetic struct {
	cameraID string
	scenario Scenario
	rng      *rand.Rand
	interval time.Duration

	tick        int
	activeFrom  int
	activeUntil int
}

// NewSynthetic creates a scenario source. The subject appears on this
// camera between ticks activeFrom and activeUntil; stagger the ranges
// across cameras to script a route through the network.
func NewSynthetic(cameraID string, scenario Scenario, seed int64, interval time.Duration, activeFrom, activeUntil int) *Synthetic {
	return &Synthetic{
		cameraID:    cameraID,
		scenario:    scenario,
		rng:         rand.New(rand.NewSource(seed)),
		interval:    interval,
		activeFrom:  activeFrom,
		activeUntil: activeUntil,
	}
}

// Next waits one tick interval and returns the next bundle.
func (s *Synthetic) Next(ctx context.Context) (messages.ObservationBundle, error) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return messages.ObservationBundle{}, ctx.Err()
	case <-timer.C:
	}

	s.tick++
	if s.tick >= s.activeFrom && s.tick <= s.activeUntil {
		return s.active(), nil
	}
	return s.baseline(), nil
}

// jitter returns v perturbed by at most +-spread, clamped to [0,1].
func (s *Synthetic) jitter(v, spread float64) float64 {
	v += (s.rng.Float64()*2 - 1) * spread
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (s *Synthetic) baseline() messages.ObservationBundle {
	b := messages.ObservationBundle{
		CameraID:          s.cameraID,
		Timestamp:         time.Now().UTC(),
		EdgeDensity:       s.jitter(0.03, 0.02),
		IntensityStdDev:   15 + s.rng.Float64()*10,
		MotionConsistency: s.jitter(0.1, 0.05),
		MotionSpeed:       s.jitter(0.01, 0.01),
		PersistenceRatio:  s.jitter(0.1, 0.05),
	}

	// The occasional gust: brief scattered motion that should never
	// clear a detection threshold.
	if s.rng.Float64() < 0.1 {
		b.EdgeDensity = s.jitter(0.12, 0.06)
		b.MotionConsistency = s.jitter(0.08, 0.04)
		b.MotionSpeed = s.jitter(0.04, 0.02)
	}
	return b
}

func (s *Synthetic) active() messages.ObservationBundle {
	b := messages.ObservationBundle{
		CameraID:  s.cameraID,
		Timestamp: time.Now().UTC(),
	}

	switch s.scenario {
	case ScenarioCarProwler:
		b.EdgeDensity = s.jitter(0.14, 0.004)
		b.IntensityStdDev = 45 + s.rng.Float64()*5
		b.MotionConsistency = s.jitter(0.45, 0.05)
		b.MotionSpeed = s.jitter(0.05, 0.01)
		b.PersistenceRatio = s.jitter(0.75, 0.05)
		if s.tick%3 == 0 {
			b.DetectedObjects = []messages.DetectedObject{
				{Class: "person", Confidence: 0.85 + s.rng.Float64()*0.1, BBox: [4]float64{90, 90, 110, 110}},
				{Class: "car", Confidence: 0.95, BBox: [4]float64{120, 90, 150, 115}},
			}
		}

	case ScenarioWildlife:
		b.EdgeDensity = s.jitter(0.18, 0.01)
		b.IntensityStdDev = 50
		b.MotionConsistency = s.jitter(0.5, 0.05)
		b.MotionSpeed = s.jitter(0.06, 0.02)
		b.PersistenceRatio = s.jitter(0.7, 0.05)
		b.DetectedObjects = []messages.DetectedObject{
			{Class: "bear", Confidence: 0.8 + s.rng.Float64()*0.15, BBox: [4]float64{200, 180, 320, 300}},
		}

	case ScenarioWildfire:
		// Smoke plume grows with every tick on camera.
		grow := float64(s.tick - s.activeFrom + 1)
		b.EdgeDensity = s.jitter(0.2, 0.02)
		b.IntensityStdDev = 50
		b.MotionConsistency = s.jitter(0.6, 0.05)
		b.MotionSpeed = s.jitter(0.05, 0.01)
		b.PersistenceRatio = s.jitter(0.9, 0.03)
		b.DetectedObjects = []messages.DetectedObject{
			{Class: "smoke", Confidence: 0.7 + s.rng.Float64()*0.2, BBox: [4]float64{0, 0, 40 * grow, 30 * grow}},
		}

	case ScenarioLostPet:
		b.EdgeDensity = s.jitter(0.12, 0.005)
		b.IntensityStdDev = 45
		b.MotionConsistency = s.jitter(0.4, 0.05)
		b.MotionSpeed = s.jitter(0.04, 0.01)
		b.PersistenceRatio = s.jitter(0.7, 0.05)
		b.DetectedObjects = []messages.DetectedObject{
			{Class: "dog", Confidence: 0.8 + s.rng.Float64()*0.1, BBox: [4]float64{100, 100, 160, 150}},
		}

	default:
		return s.baseline()
	}

	return b
}
