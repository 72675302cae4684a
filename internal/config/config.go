// Package config loads the profile file consumed by the kanaltail binary:
// which driver to run, where its own config lives, and the surface options
// for the consumer runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const SupportedSchema = "v1"

// Profile is the YAML schema of a kanaltail profile.
type Profile struct {
	SchemaVersion string `yaml:"schema_version"`

	// Driver names a registered driver ("kafka"); DriverConfig points at
	// its own config file, resolved relative to the profile.
	Driver       string `yaml:"driver"`
	DriverConfig string `yaml:"driver_config"`

	// Topic is auto-subscribed at construction.
	Topic string `yaml:"topic"`

	// Codec renders record values ("bytes", "string", "json").
	Codec string `yaml:"codec"`

	InputBuffer   int `yaml:"input_buffer"`
	OutputBuffer  int `yaml:"output_buffer"`
	PollTimeoutMS int `yaml:"poll_timeout_ms"`

	// MetricsPort, when non-zero, serves /metrics.
	MetricsPort int `yaml:"metrics_port"`
}

// LoadProfile parses a profile YAML, validates schema_version, and returns
// the profile with DriverConfig resolved to an absolute path.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if p.SchemaVersion == "" {
		p.SchemaVersion = SupportedSchema
	}
	if p.SchemaVersion != SupportedSchema {
		return p, fmt.Errorf("profile schema_version %q not supported (want %q)", p.SchemaVersion, SupportedSchema)
	}
	if p.Driver == "" {
		p.Driver = "kafka"
	}
	if p.DriverConfig != "" && !filepath.IsAbs(p.DriverConfig) {
		p.DriverConfig = filepath.Join(filepath.Dir(path), p.DriverConfig)
	}
	return p, nil
}
