// Package config loads the camera network, community roster, and
// scoring configuration. Values are layered: compiled-in defaults, then
// an optional YAML file, then URSA_-prefixed environment variables.
// Nested keys in the environment use double underscores, e.g.
// URSA_SCORING__DEFAULT_THRESHOLD=0.7.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ursa-watch/ursa/pkg/messages"
	"github.com/ursa-watch/ursa/pkg/roster"
	"github.com/ursa-watch/ursa/pkg/scoring"
)

const envPrefix = "URSA_"

// Camera is one deployed camera in the network.
type Camera struct {
	ID       string            `koanf:"id" json:"id"`
	Name     string            `koanf:"name" json:"name"`
	Address  string            `koanf:"address" json:"address"`
	Location messages.Position `koanf:"location" json:"location"`
}

// File is the on-disk configuration shape shared by all binaries. Each
// binary reads the sections it needs.
type File struct {
	Cameras []Camera        `koanf:"cameras" json:"cameras"`
	Members []roster.Member `koanf:"members" json:"members"`
	Scoring scoring.Config  `koanf:"scoring" json:"scoring"`
}

// Defaults returns the built-in demo deployment: five cameras covering
// a few residential blocks and one registered member near the first
// camera.
func Defaults() File {
	return File{
		Cameras: []Camera{
			{ID: "cam_001", Name: "Front porch", Address: "1420 Oak Street", Location: messages.Position{Lat: 37.7749, Lng: -122.4194}},
			{ID: "cam_002", Name: "Driveway", Address: "1426 Oak Street", Location: messages.Position{Lat: 37.7759, Lng: -122.4184}},
			{ID: "cam_003", Name: "Corner store", Address: "Oak & 15th", Location: messages.Position{Lat: 37.7769, Lng: -122.4174}},
			{ID: "cam_004", Name: "Back alley", Address: "15th Street alley", Location: messages.Position{Lat: 37.7779, Lng: -122.4164}},
			{ID: "cam_005", Name: "Park entrance", Address: "Duboce Park gate", Location: messages.Position{Lat: 37.7789, Lng: -122.4154}},
		},
		Members: []roster.Member{
			{ContactID: "member_001", Name: "Resident", Location: messages.Position{Lat: 37.7750, Lng: -122.4192}},
		},
		Scoring: scoring.DefaultConfig(),
	}
}

// Load reads configuration from the optional YAML file at path, layered
// over Defaults and under environment overrides.
func Load(path string) (File, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return File{}, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return File{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return File{}, fmt.Errorf("loading environment: %w", err)
	}

	var out File
	if err := k.Unmarshal("", &out); err != nil {
		return File{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return out, nil
}

// CameraByID finds a camera in the network.
func (f File) CameraByID(id string) (Camera, bool) {
	for _, c := range f.Cameras {
		if c.ID == id {
			return c, true
		}
	}
	return Camera{}, false
}
