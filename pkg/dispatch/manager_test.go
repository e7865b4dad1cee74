package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ursa-watch/ursa/pkg/analyzer"
	"github.com/ursa-watch/ursa/pkg/bus"
	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/geo"
	"github.com/ursa-watch/ursa/pkg/messages"
	"github.com/ursa-watch/ursa/pkg/roster"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls []string // messages passed to PlaceCall
	err   error
}

func (c *fakeCaller) PlaceCall(_ context.Context, _, message string) (CallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return CallResult{}, c.err
	}
	c.calls = append(c.calls, message)
	return CallResult{CallID: "call-1", Status: messages.DispatchQueued}, nil
}

func (c *fakeCaller) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]string // contactID -> messages
	err  error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]string)}
}

func (n *fakeNotifier) Send(_ context.Context, contactID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent[contactID] = append(n.sent[contactID], message)
	return nil
}

func testThreat(activity messages.ActivityType, confidence float64) messages.Threat {
	cam, _ := config.Defaults().CameraByID("cam_001")
	return messages.Threat{
		ThreatID:   "threat-1",
		Activity:   activity,
		CameraID:   "cam_001",
		Location:   cam.Location,
		Confidence: confidence,
		Status:     messages.ThreatActive,
		Details: messages.ThreatDetails{
			Description: "Person observed moving between parked vehicles",
		},
	}
}

func newTestManager(caller Caller, notifier Notifier) *Manager {
	defaults := config.Defaults()
	members := roster.New(defaults.Members...)
	return NewManager(DefaultConfig(), caller, notifier, NewMemoryLedger(), members, defaults.Cameras, nil, zerolog.Nop())
}

func TestDispatchCallsOncePerThreat(t *testing.T) {
	caller := &fakeCaller{}
	notifier := newFakeNotifier()
	m := newTestManager(caller, notifier)

	th := testThreat(messages.ActivityCarProwling, 0.85)
	a := analyzer.DefaultConfig().Analyze(th)
	require.True(t, a.ShouldCallEmergency)

	state, err := m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.True(t, state.EmergencyCall.Attempted)
	assert.Equal(t, messages.DispatchQueued, state.EmergencyCall.Status)
	assert.Equal(t, 1, caller.count())

	// Redelivery: same threat arrives again, the call must not repeat.
	th.Dispatch = state
	state, err = m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.True(t, state.EmergencyCall.Attempted)
	assert.Equal(t, 1, caller.count())
}

func TestFailedCallRecordedNotRetried(t *testing.T) {
	caller := &fakeCaller{err: errors.New("provider unreachable")}
	m := newTestManager(caller, newFakeNotifier())

	th := testThreat(messages.ActivityCarProwling, 0.85)
	a := analyzer.DefaultConfig().Analyze(th)

	state, err := m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.Equal(t, messages.DispatchFailed, state.EmergencyCall.Status)
	assert.Contains(t, state.EmergencyCall.Outcome, "provider unreachable")

	// The provider recovers, but the attempt is burned for this threat.
	caller.err = nil
	state, err = m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.Equal(t, 0, caller.count())
	assert.Equal(t, messages.DispatchFailed, state.EmergencyCall.Status)
}

func TestCommunityNotificationDeduplicated(t *testing.T) {
	notifier := newFakeNotifier()
	m := newTestManager(&fakeCaller{}, notifier)

	th := testThreat(messages.ActivityCarProwling, 0.85)
	a := analyzer.DefaultConfig().Analyze(th)
	require.True(t, a.ShouldNotifyCommunity)

	state, err := m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"member_001"}, state.Community.Recipients)
	assert.Len(t, notifier.sent["member_001"], 1)

	// Second delivery of the same threat: no second text.
	_, err = m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.Len(t, notifier.sent["member_001"], 1)
}

func TestFailedNotificationRecordedAndPublished(t *testing.T) {
	b := bus.New(zerolog.Nop())
	events, cancel := b.Subscribe(8, bus.EventDispatchOutcome)
	defer cancel()

	notifier := newFakeNotifier()
	notifier.err = errors.New("sms gateway down")
	defaults := config.Defaults()
	m := NewManager(DefaultConfig(), &fakeCaller{}, notifier, NewMemoryLedger(), roster.New(defaults.Members...), defaults.Cameras, b, zerolog.Nop())

	th := testThreat(messages.ActivityCarProwling, 0.85)
	a := analyzer.DefaultConfig().Analyze(th)
	require.True(t, a.ShouldNotifyCommunity)

	state, err := m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.Empty(t, state.Community.Recipients)
	assert.Equal(t, []string{"member_001"}, state.Community.Failed)
	assert.Contains(t, state.Community.LastError, "sms gateway down")

	var failed *messages.DispatchOutcome
	for len(events) > 0 {
		evt := <-events
		if out, ok := evt.Payload.(*messages.DispatchOutcome); ok &&
			out.Channel == messages.ChannelCommunitySMS && out.Status == messages.DispatchFailed {
			failed = out
		}
	}
	require.NotNil(t, failed, "failed delivery must surface as a dispatch outcome")
	assert.Equal(t, []string{"member_001"}, failed.Recipients)
	assert.Contains(t, failed.Detail, "sms gateway down")

	// The gateway recovers: a redelivered threat retries the member.
	notifier.err = nil
	th.Dispatch = state
	state, err = m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"member_001"}, state.Community.Recipients)
	assert.Len(t, notifier.sent["member_001"], 1)
}

func TestNotificationRadius(t *testing.T) {
	defaults := config.Defaults()
	cam, ok := defaults.CameraByID("cam_001")
	require.True(t, ok)

	// Pure latitude offsets put one member just inside the 50 mile
	// radius and one just outside it.
	near := roster.Member{ContactID: "near", Location: messages.Position{Lat: cam.Location.Lat + 0.7092, Lng: cam.Location.Lng}}
	far := roster.Member{ContactID: "far", Location: messages.Position{Lat: cam.Location.Lat + 0.7381, Lng: cam.Location.Lng}}
	require.InDelta(t, 49.0, geo.Distance(cam.Location, near.Location), 0.1)
	require.InDelta(t, 51.0, geo.Distance(cam.Location, far.Location), 0.1)

	notifier := newFakeNotifier()
	m := NewManager(DefaultConfig(), &fakeCaller{}, notifier, NewMemoryLedger(), roster.New(near, far), defaults.Cameras, nil, zerolog.Nop())

	th := testThreat(messages.ActivityCarProwling, 0.85)
	a := analyzer.DefaultConfig().Analyze(th)

	state, err := m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, state.Community.Recipients)
	assert.NotContains(t, notifier.sent, "far")
}

func TestNoCallBelowGate(t *testing.T) {
	caller := &fakeCaller{}
	m := newTestManager(caller, newFakeNotifier())

	th := testThreat(messages.ActivityCarProwling, 0.70)
	a := analyzer.DefaultConfig().Analyze(th)
	require.False(t, a.ShouldCallEmergency)

	state, err := m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.False(t, state.EmergencyCall.Attempted)
	assert.Equal(t, 0, caller.count())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	caller := &fakeCaller{err: errors.New("provider down")}
	m := newTestManager(caller, newFakeNotifier())
	a := analyzer.DefaultConfig().Analyze(testThreat(messages.ActivityCarProwling, 0.85))

	for i := 0; i < 3; i++ {
		th := testThreat(messages.ActivityCarProwling, 0.85)
		th.ThreatID = string(rune('a' + i))
		_, err := m.Dispatch(context.Background(), th, a)
		require.NoError(t, err)
	}

	// Breaker is open now: the provider stops being dialed at all.
	caller.err = nil
	th := testThreat(messages.ActivityCarProwling, 0.85)
	th.ThreatID = "after-open"
	state, err := m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)
	assert.Equal(t, messages.DispatchFailed, state.EmergencyCall.Status)
	assert.Equal(t, 0, caller.count())
}

func TestLostPetMessageRoutesToAnimalControl(t *testing.T) {
	notifier := newFakeNotifier()
	m := newTestManager(&fakeCaller{}, notifier)

	th := testThreat(messages.ActivityLostPet, 0.9)
	th.Details.Description = "Unaccompanied pet wandering the area"
	a := analyzer.DefaultConfig().Analyze(th)
	require.False(t, a.ShouldCallEmergency)
	require.True(t, a.ShouldNotifyCommunity)

	_, err := m.Dispatch(context.Background(), th, a)
	require.NoError(t, err)

	msgs := notifier.sent["member_001"]
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "animal control")
	assert.Contains(t, msgs[0], DefaultConfig().AnimalControlNumber)
}

func TestCallScriptMentionsCrossCameraTracking(t *testing.T) {
	th := testThreat(messages.ActivityCarProwling, 0.85)
	th.Details.MovingAcrossArea = true
	th.Details.CameraCount = 3
	a := analyzer.DefaultConfig().Analyze(th)

	script := BuildCallMessage(th, a, "1420 Oak Street", 2)
	assert.Contains(t, script, "1420 Oak Street")
	assert.Contains(t, script, "tracked across 3 cameras")
	assert.Contains(t, script, "85 percent")
}

func TestMemoryLedgerBeginCallAtomic(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.BeginCall(ctx, "threat-1")
			require.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, granted)
}
