package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CallResult reports what the telephony provider did with a call.
type CallResult struct {
	CallID string
	Status string // queued, failed
}

// Caller places outbound voice calls.
type Caller interface {
	PlaceCall(ctx context.Context, number, message string) (CallResult, error)
}

// Notifier delivers a text message to one community member.
type Notifier interface {
	Send(ctx context.Context, contactID, message string) error
}

// SimulatedCaller stands in for a telephony provider: it logs the call
// and reports it queued. Used in demo deployments.
type SimulatedCaller struct {
	logger zerolog.Logger
}

// NewSimulatedCaller creates a caller that only logs.
func NewSimulatedCaller(logger zerolog.Logger) *SimulatedCaller {
	return &SimulatedCaller{logger: logger.With().Str("component", "simulated_caller").Logger()}
}

func (c *SimulatedCaller) PlaceCall(_ context.Context, number, message string) (CallResult, error) {
	id := uuid.New().String()
	c.logger.Info().
		Str("call_id", id).
		Str("number", number).
		Str("message", message).
		Msg("Simulated emergency call")
	return CallResult{CallID: id, Status: "queued"}, nil
}

// SimulatedNotifier stands in for an SMS provider.
type SimulatedNotifier struct {
	logger zerolog.Logger
}

// NewSimulatedNotifier creates a notifier that only logs.
func NewSimulatedNotifier(logger zerolog.Logger) *SimulatedNotifier {
	return &SimulatedNotifier{logger: logger.With().Str("component", "simulated_notifier").Logger()}
}

func (n *SimulatedNotifier) Send(_ context.Context, contactID, message string) error {
	n.logger.Info().
		Str("contact_id", contactID).
		Str("message", message).
		Msg("Simulated community notification")
	return nil
}
