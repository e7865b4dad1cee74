package vision

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ursa-watch/ursa/pkg/messages"
)

// Detector is the object detection dependency of an Enricher.
type Detector interface {
	Detect(ctx context.Context, cameraID, frameRef string) ([]messages.DetectedObject, error)
}

type lookup struct {
	cameraID string
	frameRef string
}

// Enricher runs object detection off the scoring path. Enrich never
// blocks: it applies the latest ready detector result and queues at
// most one pending lookup, so a slow or unreachable detector degrades
// ticks to motion-only scoring instead of stalling them.
type Enricher struct {
	detector Detector
	logger   zerolog.Logger

	requests chan lookup
	results  chan []messages.DetectedObject
}

// NewEnricher creates an enricher over the given detector. Run must be
// started for Enrich to ever produce objects.
func NewEnricher(detector Detector, logger zerolog.Logger) *Enricher {
	return &Enricher{
		detector: detector,
		logger:   logger.With().Str("component", "vision_enricher").Logger(),
		requests: make(chan lookup, 1),
		results:  make(chan []messages.DetectedObject, 1),
	}
}

// Run serves queued lookups until ctx is cancelled. Detector failures
// are logged and dropped; the next tick simply queues a fresh frame.
func (e *Enricher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-e.requests:
			objects, err := e.detector.Detect(ctx, req.cameraID, req.frameRef)
			if err != nil {
				e.logger.Warn().Err(err).
					Str("camera_id", req.cameraID).
					Msg("Vision service unavailable, scoring motion only")
				continue
			}
			select {
			case e.results <- objects:
			default:
			}
		}
	}
}

// Enrich applies the most recent ready detector result to the bundle
// and queues its frame for the next lookup. It never waits on the
// detector. Reports whether objects were applied.
func (e *Enricher) Enrich(b *messages.ObservationBundle) bool {
	applied := false
	select {
	case objects := <-e.results:
		if !b.HasObjects() && len(objects) > 0 {
			b.DetectedObjects = objects
			applied = true
		}
	default:
	}

	if b.HasObjects() || b.FrameRef == "" {
		return applied
	}
	select {
	case e.requests <- lookup{cameraID: b.CameraID, frameRef: b.FrameRef}:
	default:
		// A lookup is already in flight; this frame is skipped.
	}
	return applied
}
