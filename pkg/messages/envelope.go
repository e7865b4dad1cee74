// Package messages defines the data structures exchanged between URSA agents
package messages

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope contains metadata common to all messages for tracing and security
type Envelope struct {
	// Identity
	MessageID     string `json:"message_id"`
	CorrelationID string `json:"correlation_id"` // Chain tracking across agents
	CausationID   string `json:"causation_id"`   // Parent message that caused this

	// Routing
	Source     string `json:"source"`      // Agent ID that sent this message
	SourceType string `json:"source_type"` // Agent type (camera, coordinator, etc.)

	// Timing
	Timestamp time.Time `json:"timestamp"`

	// Security
	Signature string `json:"signature"` // HMAC-SHA256 of payload
}

// NewEnvelope creates a new envelope with generated IDs
func NewEnvelope(source, sourceType string) Envelope {
	return Envelope{
		MessageID:  uuid.New().String(),
		Source:     source,
		SourceType: sourceType,
		Timestamp:  time.Now().UTC(),
	}
}

// WithCorrelation sets the correlation and causation IDs
func (e Envelope) WithCorrelation(correlationID, causationID string) Envelope {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}

// Sign generates an HMAC signature for the message
func (e *Envelope) Sign(payload []byte, secret []byte) {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	e.Signature = hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks the HMAC signature
func (e *Envelope) VerifySignature(payload []byte, secret []byte) bool {
	expected := hmac.New(sha256.New, secret)
	expected.Write(payload)
	expectedSig := hex.EncodeToString(expected.Sum(nil))
	return hmac.Equal([]byte(e.Signature), []byte(expectedSig))
}

// Message is an interface for all message types
type Message interface {
	GetEnvelope() Envelope
	SetEnvelope(Envelope)
	Subject() string
}

// BaseMessage provides common functionality
type BaseMessage struct {
	Envelope Envelope `json:"envelope"`
}

func (m *BaseMessage) GetEnvelope() Envelope {
	return m.Envelope
}

func (m *BaseMessage) SetEnvelope(e Envelope) {
	m.Envelope = e
}

// MarshalWithSignature marshals the message and signs it
func MarshalWithSignature(msg Message, secret []byte) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	env := msg.GetEnvelope()
	env.Sign(data, secret)
	msg.SetEnvelope(env)

	return json.Marshal(msg)
}

// VerifySigned checks a received message against its envelope signature.
// It re-marshals the message with the signature field cleared, which mirrors
// what MarshalWithSignature signed on the sending side. The message's
// envelope is restored before returning.
func VerifySigned(msg Message, secret []byte) bool {
	env := msg.GetEnvelope()
	sig := env.Signature

	cleared := env
	cleared.Signature = ""
	msg.SetEnvelope(cleared)

	payload, err := json.Marshal(msg)
	msg.SetEnvelope(env)
	if err != nil {
		return false
	}

	check := Envelope{Signature: sig}
	return check.VerifySignature(payload, secret)
}

// Position represents a geographic position
type Position struct {
	Lat float64 `json:"lat" koanf:"lat"` // Latitude in degrees
	Lng float64 `json:"lng" koanf:"lng"` // Longitude in degrees
}
