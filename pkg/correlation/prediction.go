package correlation

import (
	"fmt"
	"math"

	"github.com/ursa-watch/ursa/pkg/geo"
	"github.com/ursa-watch/ursa/pkg/messages"
)

// predict names the camera most likely to see the subject next by
// continuing the vector between the last two occurrences. Needs at
// least two occurrences at distinct positions; confidence grows with
// the number of corroborating occurrences.
func (e *Engine) predict(pat *messages.Pattern) *messages.Prediction {
	n := len(pat.Occurrences)
	if n < 2 {
		return nil
	}

	prev := pat.Occurrences[n-2]
	last := pat.Occurrences[n-1]
	if prev.Location == last.Location {
		return nil
	}

	projected := geo.Extrapolate(prev.Location, last.Location)

	var (
		best     *messages.Position
		bestID   string
		bestDist = math.MaxFloat64
	)
	for i := range e.cameras {
		cam := e.cameras[i]
		if cam.ID == last.CameraID {
			continue
		}
		if d := geo.Distance(projected, cam.Location); d < bestDist {
			bestDist = d
			bestID = cam.ID
			best = &cam.Location
		}
	}
	if best == nil {
		return nil
	}

	confidence := e.cfg.PredictionBase + e.cfg.PredictionStep*float64(n)
	if confidence > e.cfg.PredictionCap {
		confidence = e.cfg.PredictionCap
	}

	return &messages.Prediction{
		CameraID:   bestID,
		Location:   *best,
		Confidence: confidence,
		Reasoning: fmt.Sprintf("trajectory %s -> %s continues toward %s (%.2f mi off projection)",
			prev.CameraID, last.CameraID, bestID, bestDist),
	}
}
