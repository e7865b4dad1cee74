// Package dispatch executes the response to an assessed threat: one
// idempotent emergency call per threat and deduplicated community
// notifications to members near the incident.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/ursa-watch/ursa/pkg/analyzer"
	"github.com/ursa-watch/ursa/pkg/bus"
	"github.com/ursa-watch/ursa/pkg/config"
	"github.com/ursa-watch/ursa/pkg/geo"
	"github.com/ursa-watch/ursa/pkg/messages"
	"github.com/ursa-watch/ursa/pkg/roster"
)

// Config tunes the dispatch manager.
type Config struct {
	NotifyRadiusMiles   float64       `koanf:"notify_radius_miles"`
	NearbyCameraMiles   float64       `koanf:"nearby_camera_miles"`
	EmergencyNumber     string        `koanf:"emergency_number"`
	AnimalControlNumber string        `koanf:"animal_control_number"`
	CallTimeout         time.Duration `koanf:"call_timeout"`

	// Circuit breaker over the telephony provider.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		NotifyRadiusMiles:   50,
		NearbyCameraMiles:   1,
		EmergencyNumber:     "911",
		AnimalControlNumber: "311",
		CallTimeout:         10 * time.Second,
		BreakerFailures:     3,
		BreakerCooldown:     30 * time.Second,
	}
}

// Manager owns the dispatch side effects for one dispatcher process.
type Manager struct {
	cfg      Config
	caller   Caller
	breaker  *gobreaker.CircuitBreaker[CallResult]
	notifier Notifier
	ledger   Ledger
	roster   *roster.Roster
	cameras  []config.Camera
	bus      *bus.Bus
	logger   zerolog.Logger
	now      func() time.Time
}

// NewManager wires a dispatch manager. bus may be nil in tests.
func NewManager(cfg Config, caller Caller, notifier Notifier, ledger Ledger, members *roster.Roster, cameras []config.Camera, b *bus.Bus, logger zerolog.Logger) *Manager {
	breaker := gobreaker.NewCircuitBreaker[CallResult](gobreaker.Settings{
		Name:    "emergency-call",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
	})

	return &Manager{
		cfg:      cfg,
		caller:   caller,
		breaker:  breaker,
		notifier: notifier,
		ledger:   ledger,
		roster:   members,
		cameras:  cameras,
		bus:      b,
		logger:   logger.With().Str("component", "dispatch").Logger(),
		now:      time.Now,
	}
}

// Dispatch executes the assessment's decisions against the threat and
// returns the updated dispatch state. Redelivery of the same threat is
// safe: the call happens at most once and members are notified at most
// once each. A failed call is recorded, not retried.
func (m *Manager) Dispatch(ctx context.Context, t messages.Threat, a analyzer.Assessment) (messages.DispatchState, error) {
	state := t.Dispatch

	if a.ShouldCallEmergency {
		record, err := m.placeCall(ctx, t, a)
		if err != nil {
			return state, err
		}
		state.EmergencyCall = record
	}

	if a.ShouldNotifyCommunity {
		result, err := m.notifyCommunity(ctx, t, a)
		if err != nil {
			return state, err
		}
		if len(result.sent) > 0 {
			state.Community.Recipients = append(state.Community.Recipients, result.sent...)
			state.Community.LastSentAt = m.now().UTC()
		}
		if len(result.failed) > 0 {
			state.Community.Failed = append(state.Community.Failed, result.failed...)
			state.Community.LastError = result.lastError
		}
	}

	return state, nil
}

func (m *Manager) placeCall(ctx context.Context, t messages.Threat, a analyzer.Assessment) (messages.CallRecord, error) {
	first, err := m.ledger.BeginCall(ctx, t.ThreatID)
	if err != nil {
		return messages.CallRecord{}, fmt.Errorf("checking call ledger: %w", err)
	}

	if !first {
		status, outcome, _, err := m.ledger.CallRecord(ctx, t.ThreatID)
		if err != nil {
			return messages.CallRecord{}, fmt.Errorf("reading call ledger: %w", err)
		}
		m.logger.Info().
			Str("threat_id", t.ThreatID).
			Str("prior_status", status).
			Msg("Emergency call already attempted, skipping")
		m.publishOutcome(t, messages.ChannelEmergencyCall, messages.DispatchSkipped, "call already attempted", nil)
		return messages.CallRecord{Attempted: true, Status: status, Outcome: outcome, At: m.now().UTC()}, nil
	}

	address, nearby := m.describeScene(t.CameraID)
	script := BuildCallMessage(t, a, address, nearby)

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	result, err := m.breaker.Execute(func() (CallResult, error) {
		return m.caller.PlaceCall(callCtx, m.cfg.EmergencyNumber, script)
	})
	if err != nil {
		// Recorded as failed; the ledger still holds the attempt so a
		// redelivered threat will not dial again.
		if recErr := m.ledger.RecordCallOutcome(ctx, t.ThreatID, messages.DispatchFailed, err.Error()); recErr != nil {
			m.logger.Error().Err(recErr).Str("threat_id", t.ThreatID).Msg("Failed to record call outcome")
		}
		m.logger.Error().Err(err).Str("threat_id", t.ThreatID).Msg("Emergency call failed")
		m.publishOutcome(t, messages.ChannelEmergencyCall, messages.DispatchFailed, err.Error(), nil)
		return messages.CallRecord{Attempted: true, Status: messages.DispatchFailed, Outcome: err.Error(), At: m.now().UTC()}, nil
	}

	if err := m.ledger.RecordCallOutcome(ctx, t.ThreatID, result.Status, result.CallID); err != nil {
		m.logger.Error().Err(err).Str("threat_id", t.ThreatID).Msg("Failed to record call outcome")
	}

	m.logger.Info().
		Str("threat_id", t.ThreatID).
		Str("call_id", result.CallID).
		Str("severity", string(a.Severity)).
		Msg("Placed emergency call")
	m.publishOutcome(t, messages.ChannelEmergencyCall, result.Status, result.CallID, nil)

	return messages.CallRecord{Attempted: true, Status: result.Status, Outcome: result.CallID, At: m.now().UTC()}, nil
}

// notifyResult separates members who got the text from members whose
// delivery failed. Failed members are not recorded in the ledger, so a
// redelivered threat retries them.
type notifyResult struct {
	sent      []string
	failed    []string
	lastError string
}

func (m *Manager) notifyCommunity(ctx context.Context, t messages.Threat, a analyzer.Assessment) (notifyResult, error) {
	var result notifyResult

	members := m.roster.Within(t.Location, m.cfg.NotifyRadiusMiles)
	if len(members) == 0 {
		return result, nil
	}

	already, err := m.ledger.Notified(ctx, t.ThreatID)
	if err != nil {
		return result, fmt.Errorf("reading notification ledger: %w", err)
	}

	address, _ := m.describeScene(t.CameraID)
	text := BuildCommunityMessage(t, a, address, m.cfg.AnimalControlNumber)

	for _, member := range members {
		if _, ok := already[member.ContactID]; ok {
			continue
		}
		if err := m.notifier.Send(ctx, member.ContactID, text); err != nil {
			m.logger.Error().Err(err).
				Str("threat_id", t.ThreatID).
				Str("contact_id", member.ContactID).
				Msg("Community notification failed")
			result.failed = append(result.failed, member.ContactID)
			result.lastError = err.Error()
			continue
		}
		if err := m.ledger.RecordNotification(ctx, t.ThreatID, member.ContactID); err != nil {
			m.logger.Error().Err(err).Str("threat_id", t.ThreatID).Msg("Failed to record notification")
		}
		result.sent = append(result.sent, member.ContactID)
	}

	if len(result.sent) > 0 {
		m.logger.Info().
			Str("threat_id", t.ThreatID).
			Int("recipients", len(result.sent)).
			Msg("Notified community members")
		m.publishOutcome(t, messages.ChannelCommunitySMS, messages.DispatchSent, text, result.sent)
	}
	if len(result.failed) > 0 {
		m.publishOutcome(t, messages.ChannelCommunitySMS, messages.DispatchFailed, result.lastError, result.failed)
	}
	return result, nil
}

// describeScene returns the camera's street address and how many other
// cameras sit within immediate range of it.
func (m *Manager) describeScene(cameraID string) (string, int) {
	address := "an unregistered location"
	var at *messages.Position
	for i := range m.cameras {
		if m.cameras[i].ID == cameraID {
			address = m.cameras[i].Address
			at = &m.cameras[i].Location
			break
		}
	}
	if at == nil {
		return address, 0
	}

	nearby := 0
	for i := range m.cameras {
		if m.cameras[i].ID == cameraID {
			continue
		}
		if geo.Distance(*at, m.cameras[i].Location) <= m.cfg.NearbyCameraMiles {
			nearby++
		}
	}
	return address, nearby
}

func (m *Manager) publishOutcome(t messages.Threat, channel, status, detail string, recipients []string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.Event{
		Type: bus.EventDispatchOutcome,
		Payload: &messages.DispatchOutcome{
			ThreatID:   t.ThreatID,
			Channel:    channel,
			Status:     status,
			Detail:     detail,
			Recipients: recipients,
			Timestamp:  m.now().UTC(),
		},
	})
}
