package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ursa-watch/ursa/pkg/messages"
)

func drain(t *testing.T, s *Synthetic, n int) []messages.ObservationBundle {
	t.Helper()
	out := make([]messages.ObservationBundle, 0, n)
	for i := 0; i < n; i++ {
		b, err := s.Next(context.Background())
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func TestProwlerScenarioShape(t *testing.T) {
	s := NewSynthetic("cam_001", ScenarioCarProwler, 1, time.Microsecond, 5, 15)
	bundles := drain(t, s, 20)

	for i, b := range bundles {
		assert.Equal(t, "cam_001", b.CameraID)
		tick := i + 1
		if tick >= 5 && tick <= 15 {
			assert.InDelta(t, 0.14, b.EdgeDensity, 0.01, "active tick %d", tick)
			assert.Greater(t, b.PersistenceRatio, 0.6, "active tick %d", tick)
		}
	}

	// The prowler track carries person and car detections on some ticks.
	sawPair := false
	for _, b := range bundles {
		if len(b.ObjectsOfClass("person")) > 0 && len(b.ObjectsOfClass("car")) > 0 {
			sawPair = true
		}
	}
	assert.True(t, sawPair)
}

func TestQuietScenarioStaysCalm(t *testing.T) {
	s := NewSynthetic("cam_002", ScenarioQuiet, 2, time.Microsecond, 0, 0)
	for _, b := range drain(t, s, 30) {
		assert.LessOrEqual(t, b.EdgeDensity, 0.2)
		assert.LessOrEqual(t, b.PersistenceRatio, 0.2)
		assert.Nil(t, b.DetectedObjects)
	}
}

func TestWildfireSmokeGrows(t *testing.T) {
	s := NewSynthetic("cam_003", ScenarioWildfire, 3, time.Microsecond, 1, 10)
	bundles := drain(t, s, 10)

	first := bundles[0].ObjectsOfClass("smoke")
	last := bundles[9].ObjectsOfClass("smoke")
	require.Len(t, first, 1)
	require.Len(t, last, 1)
	assert.Greater(t, last[0].BBox[2], first[0].BBox[2])
}

func TestDeterministicForSeed(t *testing.T) {
	a := drain(t, NewSynthetic("cam_001", ScenarioCarProwler, 42, time.Microsecond, 3, 8), 10)
	b := drain(t, NewSynthetic("cam_001", ScenarioCarProwler, 42, time.Microsecond, 3, 8), 10)

	for i := range a {
		assert.InDelta(t, a[i].EdgeDensity, b[i].EdgeDensity, 1e-12)
		assert.InDelta(t, a[i].MotionSpeed, b[i].MotionSpeed, 1e-12)
	}
}

func TestActiveWindowScripting(t *testing.T) {
	// Roaming scenarios stagger overlapping windows so the subject
	// routes through the camera network.
	from0, until0 := ActiveWindow(ScenarioCarProwler, 0)
	from1, until1 := ActiveWindow(ScenarioCarProwler, 1)
	assert.Greater(t, from1, from0)
	assert.Greater(t, until0, from1, "consecutive windows must overlap")
	assert.Greater(t, until1, until0)

	// Stationary scenarios play out on the first camera only.
	from, until := ActiveWindow(ScenarioWildfire, 0)
	assert.Greater(t, until, from)
	from, until = ActiveWindow(ScenarioWildfire, 2)
	assert.Zero(t, from)
	assert.Zero(t, until)

	// Quiet never activates anywhere.
	from, until = ActiveWindow(ScenarioQuiet, 0)
	assert.Zero(t, from)
	assert.Zero(t, until)
}

func TestScenarioValid(t *testing.T) {
	assert.True(t, ScenarioQuiet.Valid())
	assert.True(t, ScenarioLostPet.Valid())
	assert.False(t, Scenario("meteor_strike").Valid())
}

func TestNextHonorsContext(t *testing.T) {
	s := NewSynthetic("cam_001", ScenarioQuiet, 1, time.Hour, 0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
