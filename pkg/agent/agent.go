// Package agent provides the base framework for URSA agents
package agent

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// AgentType identifies the type of agent
type AgentType string

const (
	AgentTypeCamera      AgentType = "camera"
	AgentTypeCoordinator AgentType = "coordinator"
	AgentTypeDispatcher  AgentType = "dispatcher"
	AgentTypeGateway     AgentType = "gateway"
)

// HealthStatus represents agent health
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Agent is the interface that all agents must implement
type Agent interface {
	// Identity
	ID() string
	Type() AgentType

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() HealthStatus

	// Metrics
	Metrics() *prometheus.Registry
}

// Config holds configuration for an agent
type Config struct {
	ID        string
	Type      AgentType
	NATSUrl   string
	NATSUser  string
	NATSPass  string
	DBUrl     string
	VisionURL string
	Secret    []byte
}
