package scoring

import (
	"math"

	"github.com/ursa-watch/ursa/pkg/messages"
)

type sample struct {
	edgeDensity   float64
	motionSpeed   float64
	personCenters [][2]float64
	hasObjects    bool
}

// window is a bounded ring of recent per-tick samples for one camera.
type window struct {
	size    int
	samples []sample
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{size: size}
}

func (w *window) push(b messages.ObservationBundle) {
	s := sample{
		edgeDensity: b.EdgeDensity,
		motionSpeed: b.MotionSpeed,
		hasObjects:  b.HasObjects(),
	}
	for _, obj := range b.ObjectsOfClass(personClasses...) {
		x, y := obj.Center()
		s.personCenters = append(s.personCenters, [2]float64{x, y})
	}

	w.samples = append(w.samples, s)
	if len(w.samples) > w.size {
		w.samples = w.samples[len(w.samples)-w.size:]
	}
}

func (w *window) len() int { return len(w.samples) }

func (w *window) edgeStats() (avg, std float64) {
	n := len(w.samples)
	if n == 0 {
		return 0, 0
	}
	for _, s := range w.samples {
		avg += s.edgeDensity
	}
	avg /= float64(n)

	var variance float64
	for _, s := range w.samples {
		d := s.edgeDensity - avg
		variance += d * d
	}
	return avg, math.Sqrt(variance / float64(n))
}

// movement reduces the window's edge density series to a movement
// pattern. Too few samples reads as moderate rather than guessing.
func (w *window) movement(bands PatternBands) messages.MovementPattern {
	if len(w.samples) < 3 {
		return messages.MovementModerate
	}

	avg, std := w.edgeStats()
	switch {
	case avg < bands.StaticMax:
		return messages.MovementStatic
	case std < bands.DeliberateStdMax && bands.Deliberate.Contains(avg):
		return messages.MovementSlowDeliberate
	case avg > bands.FastMin:
		return messages.MovementFast
	case std > bands.ErraticStdMin:
		return messages.MovementErratic
	default:
		return messages.MovementModerate
	}
}

// personSpread measures how far detected people have wandered across
// the recent window, as the mean pixel distance of per-sample centroids
// from the overall centroid. ok is false when too few samples carried a
// person to judge loitering.
func (w *window) personSpread(minSamples int) (spread float64, ok bool) {
	var centroids [][2]float64
	for _, s := range w.samples {
		if len(s.personCenters) == 0 {
			continue
		}
		var cx, cy float64
		for _, c := range s.personCenters {
			cx += c[0]
			cy += c[1]
		}
		n := float64(len(s.personCenters))
		centroids = append(centroids, [2]float64{cx / n, cy / n})
	}

	if len(centroids) < minSamples {
		return 0, false
	}

	var mx, my float64
	for _, c := range centroids {
		mx += c[0]
		my += c[1]
	}
	n := float64(len(centroids))
	mx /= n
	my /= n

	for _, c := range centroids {
		spread += math.Hypot(c[0]-mx, c[1]-my)
	}
	return spread / n, true
}
