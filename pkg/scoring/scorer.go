package scoring

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// ErrMalformedBundle marks observation bundles that fail validation.
// The caller logs and skips the tick; the scorer's window is untouched.
var ErrMalformedBundle = errors.New("malformed observation bundle")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Tick is the outcome of scoring one observation bundle.
type Tick struct {
	Score     float64
	Breakdown messages.ScoreBreakdown
	Movement  messages.MovementPattern
	Activity  messages.ActivityType
	Threshold float64

	// Detection is non-nil only when the score crossed the activity
	// threshold and the activity is dispatch-eligible.
	Detection *messages.Detection
	Reasoning messages.ReasoningLogEntry
}

// Scorer holds the per-camera scoring state: the observation window and
// the bounded detection and reasoning logs.
type Scorer struct {
	cfg      Config
	cameraID string
	location messages.Position

	win        *window
	detections []messages.Detection
	reasoning  []messages.ReasoningLogEntry

	logger zerolog.Logger
	now    func() time.Time
}

// NewScorer creates a scorer for one camera.
func NewScorer(cfg Config, cameraID string, location messages.Position, logger zerolog.Logger) *Scorer {
	return &Scorer{
		cfg:      cfg,
		cameraID: cameraID,
		location: location,
		win:      newWindow(cfg.WindowSize),
		logger:   logger.With().Str("camera_id", cameraID).Logger(),
		now:      time.Now,
	}
}

// SetConfig swaps the scoring configuration. The observation window is
// rebuilt only if its size changed.
func (s *Scorer) SetConfig(cfg Config) {
	if cfg.WindowSize != s.cfg.WindowSize {
		s.win = newWindow(cfg.WindowSize)
	}
	s.cfg = cfg
}

// Config returns the current scoring configuration.
func (s *Scorer) Config() Config { return s.cfg }

// ProcessTick validates and scores one observation bundle. Malformed
// bundles return ErrMalformedBundle and leave all state untouched.
func (s *Scorer) ProcessTick(b messages.ObservationBundle) (Tick, error) {
	if err := validate.Struct(&b); err != nil {
		return Tick{}, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}
	if b.CameraID != s.cameraID {
		return Tick{}, fmt.Errorf("%w: camera_id %q does not match %q", ErrMalformedBundle, b.CameraID, s.cameraID)
	}

	s.win.push(b)

	movement := s.win.movement(s.cfg.Pattern)
	sum := summarizeObjects(b, s.win, s.cfg)
	score, breakdown := fuse(b, movement, sum, s.cfg.Weights)
	activity := classify(b, movement, sum, s.cfg.Motion)
	threshold := s.cfg.ThresholdFor(activity)

	tick := Tick{
		Score:     score,
		Breakdown: breakdown,
		Movement:  movement,
		Activity:  activity,
		Threshold: threshold,
	}

	triggered := activity.DispatchEligible() && score >= threshold
	if triggered {
		det := messages.Detection{
			DetectionID: uuid.New().String(),
			CameraID:    s.cameraID,
			Activity:    activity,
			Behavior:    movement,
			Confidence:  score,
			Score:       score,
			Breakdown:   breakdown,
			Location:    s.location,
			Timestamp:   b.Timestamp,
		}
		tick.Detection = &det

		s.detections = append(s.detections, det)
		if len(s.detections) > s.cfg.DetectionLogSize {
			s.detections = s.detections[len(s.detections)-s.cfg.DetectionLogSize:]
		}
	}

	tick.Reasoning = s.buildReasoning(b, tick, triggered)
	s.reasoning = append(s.reasoning, tick.Reasoning)
	if len(s.reasoning) > s.cfg.ReasoningLogSize {
		s.reasoning = s.reasoning[len(s.reasoning)-s.cfg.ReasoningLogSize:]
	}

	s.logger.Debug().
		Float64("score", score).
		Str("movement", string(movement)).
		Str("activity", string(activity)).
		Bool("triggered", triggered).
		Msg("Scored observation tick")

	return tick, nil
}

// RecentDetections returns a copy of the bounded detection log,
// oldest first.
func (s *Scorer) RecentDetections() []messages.Detection {
	out := make([]messages.Detection, len(s.detections))
	copy(out, s.detections)
	return out
}

// RecentReasoning returns a copy of the bounded reasoning log,
// oldest first.
func (s *Scorer) RecentReasoning() []messages.ReasoningLogEntry {
	out := make([]messages.ReasoningLogEntry, len(s.reasoning))
	copy(out, s.reasoning)
	return out
}

func (s *Scorer) buildReasoning(b messages.ObservationBundle, tick Tick, triggered bool) messages.ReasoningLogEntry {
	keys := make([]string, 0, len(tick.Breakdown))
	for k := range tick.Breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	evidence := make([]string, 0, len(keys))
	for _, k := range keys {
		evidence = append(evidence, fmt.Sprintf("%s %+.2f", k, tick.Breakdown[k]))
	}

	conclusion := fmt.Sprintf("score %.2f below threshold %.2f, no alert", tick.Score, tick.Threshold)
	if triggered {
		conclusion = fmt.Sprintf("score %.2f >= threshold %.2f, emitting %s detection", tick.Score, tick.Threshold, tick.Activity)
	} else if tick.Activity == messages.ActivityNone {
		conclusion = fmt.Sprintf("score %.2f, no classifiable activity", tick.Score)
	}

	return messages.ReasoningLogEntry{
		CameraID: s.cameraID,
		Step:     "scoring",
		Reasoning: fmt.Sprintf("movement %s, edge %.2f, consistency %.2f, speed %.2f, persistence %.2f",
			tick.Movement, b.EdgeDensity, b.MotionConsistency, b.MotionSpeed, b.PersistenceRatio),
		Evidence:   evidence,
		Conclusion: conclusion,
		Timestamp:  s.now().UTC(),
	}
}

// fuse combines a tick's features into a suspicion score in [0,1] with
// a per-factor breakdown. Object factors apply only when the bundle
// carries detection results; a detector outage degrades to motion-only
// scoring instead of biasing the score down.
func fuse(b messages.ObservationBundle, movement messages.MovementPattern, sum objectSummary, wt Weights) (float64, messages.ScoreBreakdown) {
	breakdown := make(messages.ScoreBreakdown)
	add := func(factor string, delta float64) {
		if delta != 0 {
			breakdown[factor] += delta
		}
	}

	switch {
	case wt.EdgeSweetSpot.Contains(b.EdgeDensity):
		add("edge_density", wt.EdgeSweetSpotBonus)
	case b.EdgeDensity >= wt.EdgeSweetSpot.High:
		add("edge_density", wt.EdgeClutterBonus)
	}

	if b.MotionConsistency > wt.ConsistencyConcentrated {
		add("motion_consistency", wt.ConsistencyBonus)
	} else if b.MotionConsistency < wt.ConsistencyScattered {
		add("motion_consistency", wt.ConsistencyPenalty)
	}

	if wt.SpeedDeliberate.Contains(b.MotionSpeed) {
		add("motion_speed", wt.SpeedBonus)
	} else if b.MotionSpeed > wt.SpeedFast {
		add("motion_speed", wt.SpeedPenalty)
	}

	if b.PersistenceRatio > wt.PersistenceSustained {
		add("persistence", wt.PersistenceBonus)
	} else if b.PersistenceRatio < wt.PersistenceTransient {
		add("persistence", wt.PersistencePenalty)
	}

	add("movement_pattern", wt.PatternBonus[string(movement)])

	if wt.IntensityTextured.Contains(b.IntensityStdDev) {
		add("intensity", wt.IntensityBonus)
	} else if b.IntensityStdDev > wt.IntensityGlare {
		add("intensity", wt.GlarePenalty)
	}

	if b.HasObjects() {
		if len(sum.hazards) > 0 {
			add("hazard", wt.HazardBonus)
		}
		switch {
		case sum.personNearVehicle:
			add("person_near_vehicle", wt.PersonNearVehicleBonus)
		case sum.loitering:
			add("loitering", wt.LoiteringBonus)
		case len(sum.persons) > 0:
			add("person_presence", wt.PersonPresenceBonus)
		}
		if len(sum.wildlife) > 0 {
			add("wildlife", wt.WildlifeBonus)
		}
		if len(sum.pets) > 0 && len(sum.persons) == 0 {
			add("pet", wt.PetBonus)
		}
		if len(sum.persons) == 0 && b.MotionSpeed > 0.1 {
			add("unattended_motion", wt.UnattendedMotionPenalty)
		}
	}

	var score float64
	for _, delta := range breakdown {
		score += delta
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, breakdown
}
