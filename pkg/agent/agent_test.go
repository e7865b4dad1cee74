package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseAgent(t *testing.T) {
	a, err := NewBaseAgent(Config{ID: "camera-test-001", Type: AgentTypeCamera})
	require.NoError(t, err)

	assert.Equal(t, "camera-test-001", a.ID())
	assert.Equal(t, AgentTypeCamera, a.Type())
	assert.NotNil(t, a.Metrics())
	assert.NotNil(t, a.Logger())
}

func TestHealthBeforeStart(t *testing.T) {
	a, err := NewBaseAgent(Config{ID: "coordinator-test", Type: AgentTypeCoordinator})
	require.NoError(t, err)

	health := a.Health()
	assert.False(t, health.Healthy)
	assert.Equal(t, "stopped", health.Status)
}

func TestMetricsRecording(t *testing.T) {
	a, err := NewBaseAgent(Config{ID: "dispatcher-test", Type: AgentTypeDispatcher})
	require.NoError(t, err)

	a.RecordMessage("success", "threat")
	a.RecordMessage("success", "threat")
	a.RecordLatency("threat", 5*time.Millisecond)
	a.RecordError("publish_failed")

	families, err := a.Metrics().Gather()
	require.NoError(t, err)

	seen := make(map[string]bool, len(families))
	for _, f := range families {
		seen[f.GetName()] = true
	}
	assert.True(t, seen["agent_messages_total"])
	assert.True(t, seen["agent_processing_latency_seconds"])
	assert.True(t, seen["agent_errors_total"])
}
