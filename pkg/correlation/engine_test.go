package correlation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ursa-watch/ursa/pkg/bus"
	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/messages"
)

var baseTime = time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)

func newTestEngine(b *bus.Bus) *Engine {
	e := New(DefaultConfig(), config.Defaults().Cameras, b, zerolog.Nop())
	e.now = func() time.Time { return baseTime }
	return e
}

func detection(cameraID string, activity messages.ActivityType, at time.Time) messages.Detection {
	cam, _ := config.Defaults().CameraByID(cameraID)
	return messages.Detection{
		DetectionID: cameraID + "-" + at.Format("150405"),
		CameraID:    cameraID,
		Activity:    activity,
		Behavior:    messages.MovementSlowDeliberate,
		Confidence:  0.82,
		Location:    cam.Location,
		Timestamp:   at,
	}
}

func TestIngestSeedsPatternAndThreat(t *testing.T) {
	e := newTestEngine(nil)

	res := e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))

	require.NotNil(t, res.Pattern)
	assert.Equal(t, 1, res.Pattern.OccurrenceCount())
	assert.Equal(t, []string{"cam_001"}, res.Pattern.Cameras)
	assert.Nil(t, res.Pattern.PredictedNext)

	require.True(t, res.ThreatCreated)
	require.NotNil(t, res.Threat)
	assert.Equal(t, messages.ThreatActive, res.Threat.Status)
	assert.Equal(t, res.Pattern.PatternID, res.Threat.PatternID)
	assert.False(t, res.Threat.Details.MovingAcrossArea)
}

func TestCrossCameraPatternPredictsNextCamera(t *testing.T) {
	e := newTestEngine(nil)

	// The demo cameras sit on a straight line; a subject seen at
	// cam_001 then cam_002 should be projected onto cam_003.
	first := e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))
	second := e.Ingest(detection("cam_002", messages.ActivityCarProwling, baseTime.Add(30*time.Second)))

	assert.Equal(t, first.Pattern.PatternID, second.Pattern.PatternID)
	assert.Equal(t, 2, second.Pattern.OccurrenceCount())
	assert.Equal(t, []string{"cam_001", "cam_002"}, second.Pattern.Cameras)

	pred := second.Pattern.PredictedNext
	require.NotNil(t, pred)
	assert.Equal(t, "cam_003", pred.CameraID)
	assert.InDelta(t, 0.7, pred.Confidence, 1e-9)
	assert.NotEmpty(t, pred.Reasoning)

	// The second camera's threat is distinct from the first camera's,
	// but both reference the shared pattern.
	require.True(t, second.ThreatCreated)
	assert.True(t, second.Threat.Details.MovingAcrossArea)
	assert.Equal(t, 2, second.Threat.Details.CameraCount)
}

func TestPredictionConfidenceCapped(t *testing.T) {
	e := newTestEngine(nil)

	at := baseTime
	cams := []string{"cam_001", "cam_002", "cam_003", "cam_004", "cam_005", "cam_004", "cam_003"}
	var res Result
	for _, id := range cams {
		res = e.Ingest(detection(id, messages.ActivitySuspiciousMovement, at))
		at = at.Add(20 * time.Second)
	}

	require.NotNil(t, res.Pattern.PredictedNext)
	assert.InDelta(t, 0.9, res.Pattern.PredictedNext.Confidence, 1e-9)
}

func TestDuplicateDetectionUpdatesNotDuplicates(t *testing.T) {
	e := newTestEngine(nil)

	first := e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))
	require.True(t, first.ThreatCreated)

	dup := detection("cam_001", messages.ActivityCarProwling, baseTime.Add(10*time.Second))
	dup.Confidence = 0.91
	second := e.Ingest(dup)

	assert.False(t, second.ThreatCreated)
	assert.True(t, second.ThreatUpdated)
	assert.Equal(t, first.Threat.ThreatID, second.Threat.ThreatID)
	assert.InDelta(t, 0.91, second.Threat.Confidence, 1e-9)

	assert.Len(t, e.ActiveThreats(), 1)
}

func TestDifferentSignaturesKeepSeparatePatterns(t *testing.T) {
	e := newTestEngine(nil)

	prowl := e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))

	loiter := detection("cam_001", messages.ActivityLoitering, baseTime.Add(5*time.Second))
	loiterRes := e.Ingest(loiter)

	assert.NotEqual(t, prowl.Pattern.PatternID, loiterRes.Pattern.PatternID)
	assert.Len(t, e.ActiveThreats(), 2)
}

func TestStalePatternStartsFresh(t *testing.T) {
	e := newTestEngine(nil)

	first := e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))
	late := e.Ingest(detection("cam_002", messages.ActivityCarProwling, baseTime.Add(3*time.Minute)))

	assert.NotEqual(t, first.Pattern.PatternID, late.Pattern.PatternID)
	assert.Equal(t, 1, late.Pattern.OccurrenceCount())
}

func TestResolutionCooldownSuppressesRepromotion(t *testing.T) {
	e := newTestEngine(nil)

	res := e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))
	_, ok := e.Resolve(res.Threat.ThreatID)
	require.True(t, ok)

	// Inside the cooldown nothing is promoted.
	again := e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime.Add(30*time.Second)))
	assert.Nil(t, again.Threat)
	assert.Empty(t, e.ActiveThreats())

	// Past the cooldown a new threat forms.
	e.now = func() time.Time { return baseTime.Add(5 * time.Minute) }
	fresh := e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime.Add(5*time.Minute)))
	require.True(t, fresh.ThreatCreated)
	assert.NotEqual(t, res.Threat.ThreatID, fresh.Threat.ThreatID)
}

func TestExpireInactive(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Close()
	resolved, cancel := b.Subscribe(8, bus.EventThreatResolved)
	defer cancel()

	e := newTestEngine(b)
	e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))

	// Nothing expires while fresh.
	patterns, threats := e.ExpireInactive()
	assert.Zero(t, patterns)
	assert.Zero(t, threats)

	e.now = func() time.Time { return baseTime.Add(time.Hour) }
	patterns, threats = e.ExpireInactive()
	assert.Equal(t, 1, patterns)
	assert.Equal(t, 1, threats)
	assert.Empty(t, e.ActiveThreats())
	assert.Empty(t, e.Patterns())

	select {
	case evt := <-resolved:
		thr := evt.Payload.(*messages.Threat)
		assert.Equal(t, messages.ThreatResolved, thr.Status)
	case <-time.After(time.Second):
		t.Fatal("no resolve event published")
	}
}

func TestResolvedThreatsPrunedAfterRetention(t *testing.T) {
	e := newTestEngine(nil)

	cams := []string{"cam_001", "cam_002", "cam_003", "cam_004", "cam_005"}
	activities := []messages.ActivityType{messages.ActivityCarProwling, messages.ActivityLoitering}
	var ids []string
	for _, cam := range cams {
		for _, act := range activities {
			res := e.Ingest(detection(cam, act, baseTime))
			require.True(t, res.ThreatCreated)
			ids = append(ids, res.Threat.ThreatID)
		}
	}
	require.Equal(t, len(ids), e.ResolveAll())

	// Inside the retention window resolved threats stay queryable.
	e.now = func() time.Time { return baseTime.Add(10 * time.Minute) }
	e.ExpireInactive()
	_, ok := e.ThreatByID(ids[0])
	assert.True(t, ok)

	// Past the retention window the sweeper deletes them, so the threat
	// map does not grow without bound across resolved incidents.
	e.now = func() time.Time { return baseTime.Add(time.Hour) }
	e.ExpireInactive()
	for _, id := range ids {
		_, ok := e.ThreatByID(id)
		assert.False(t, ok)
	}
	e.mu.Lock()
	assert.Empty(t, e.threats)
	e.mu.Unlock()
}

func TestResolveAll(t *testing.T) {
	e := newTestEngine(nil)
	e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))
	e.Ingest(detection("cam_002", messages.ActivityLoitering, baseTime))

	assert.Equal(t, 2, e.ResolveAll())
	assert.Equal(t, 0, e.ResolveAll())
	assert.Empty(t, e.ActiveThreats())
}

func TestThreatByID(t *testing.T) {
	e := newTestEngine(nil)
	res := e.Ingest(detection("cam_001", messages.ActivityWildfire, baseTime))

	got, ok := e.ThreatByID(res.Threat.ThreatID)
	require.True(t, ok)
	assert.Equal(t, messages.ActivityWildfire, got.Activity)

	_, ok = e.ThreatByID("nope")
	assert.False(t, ok)
}

func TestEventsPublishedOnIngest(t *testing.T) {
	b := bus.New(zerolog.Nop())
	defer b.Close()
	events, cancel := b.Subscribe(16)
	defer cancel()

	e := newTestEngine(b)
	e.Ingest(detection("cam_001", messages.ActivityCarProwling, baseTime))

	types := map[bus.EventType]bool{}
	for len(types) < 3 {
		select {
		case evt := <-events:
			types[evt.Type] = true
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	assert.True(t, types[bus.EventPatternUpdated])
	assert.True(t, types[bus.EventThreatCreated])
	assert.True(t, types[bus.EventReasoning])
}
