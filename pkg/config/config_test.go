package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	f := Defaults()

	assert.Len(t, f.Cameras, 5)
	assert.NotEmpty(t, f.Members)
	assert.InDelta(t, 0.60, f.Scoring.DefaultThreshold, 1e-9)

	cam, ok := f.CameraByID("cam_003")
	require.True(t, ok)
	assert.Equal(t, "Corner store", cam.Name)

	_, ok = f.CameraByID("cam_999")
	assert.False(t, ok)
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ursa.yaml")
	yaml := `
scoring:
  default_threshold: 0.7
cameras:
  - id: cam_100
    name: Test cam
    location:
      lat: 40.0
      lng: -100.0
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	f, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, f.Scoring.DefaultThreshold, 1e-9)
	// File-provided camera list replaces the default deployment.
	require.Len(t, f.Cameras, 1)
	assert.Equal(t, "cam_100", f.Cameras[0].ID)
	assert.InDelta(t, 40.0, f.Cameras[0].Location.Lat, 1e-9)

	// Untouched sections keep their defaults.
	assert.InDelta(t, 0.12, f.Scoring.Weights.EdgeSweetSpotBonus, 1e-9)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("URSA_SCORING__WINDOW_SIZE", "12")

	f, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12, f.Scoring.WindowSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/ursa.yaml")
	assert.Error(t, err)
}
