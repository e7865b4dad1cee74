package messages

import "time"

// DetectedObject is a single object reported by the vision service for a
// frame. BBox is [x1, y1, x2, y2] in pixel coordinates.
type DetectedObject struct {
	Class      string     `json:"class" validate:"required"`
	Confidence float64    `json:"confidence" validate:"gte=0,lte=1"`
	BBox       [4]float64 `json:"bbox"`
}

// Center returns the pixel-space center of the bounding box.
func (o DetectedObject) Center() (float64, float64) {
	return (o.BBox[0] + o.BBox[2]) / 2, (o.BBox[1] + o.BBox[3]) / 2
}

// ObservationBundle carries one tick of visual and motion features from a
// camera feed. Feature values are normalized to [0,1] except
// IntensityStdDev, which is on the 0-255 pixel intensity scale.
//
// DetectedObjects is nil when object detection was unavailable for the
// tick; scoring then falls back to motion-only analysis. FrameRef lets a
// downstream detector fetch the frame that produced the bundle.
type ObservationBundle struct {
	Envelope Envelope `json:"envelope"`

	CameraID  string    `json:"camera_id" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`

	EdgeDensity       float64 `json:"edge_density" validate:"gte=0,lte=1"`
	IntensityStdDev   float64 `json:"intensity_stddev" validate:"gte=0,lte=255"`
	MotionConsistency float64 `json:"motion_consistency" validate:"gte=0,lte=1"`
	MotionSpeed       float64 `json:"motion_speed" validate:"gte=0,lte=1"`
	PersistenceRatio  float64 `json:"persistence_ratio" validate:"gte=0,lte=1"`

	DetectedObjects []DetectedObject `json:"detected_objects,omitempty" validate:"omitempty,dive"`
	FrameRef        string           `json:"frame_ref,omitempty"`
}

func (o *ObservationBundle) GetEnvelope() Envelope  { return o.Envelope }
func (o *ObservationBundle) SetEnvelope(e Envelope) { o.Envelope = e }

func (o *ObservationBundle) Subject() string {
	return "obs." + o.CameraID
}

// HasObjects reports whether object detection results are present for
// this tick.
func (o *ObservationBundle) HasObjects() bool {
	return o.DetectedObjects != nil
}

// ObjectsOfClass returns the detected objects matching any of the given
// classes.
func (o *ObservationBundle) ObjectsOfClass(classes ...string) []DetectedObject {
	var out []DetectedObject
	for _, obj := range o.DetectedObjects {
		for _, c := range classes {
			if obj.Class == c {
				out = append(out, obj)
				break
			}
		}
	}
	return out
}
