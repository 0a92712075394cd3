// Package config loads the Snapshot Manager's tunables from YAML,
// overlaying values onto a set of built-in defaults.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nexustablet/snapshotd/core"
)

// PathsConfig controls where snapshot directories are rooted.
type PathsConfig struct {
	// DataRoots lists the data-directory paths; in a real deployment this
	// list comes from the storage engine's store registry, but the Snapshot
	// Manager only needs the paths.
	DataRoots []string `yaml:"data_roots"`
}

// SnapshotConfig controls default request parameters.
type SnapshotConfig struct {
	DefaultTimeoutSeconds    int64  `yaml:"default_timeout_seconds"`
	PreferredSnapshotVersion string `yaml:"preferred_snapshot_version"`
	MaxLinkConcurrency       int    `yaml:"max_link_concurrency"`
}

// LoggingConfig controls where and how verbosely the manager logs.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// TracingConfig controls whether spans are exported and where.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

// Config is the top-level configuration struct for the snapshotd module.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// PreferredFormat parses Snapshot.PreferredSnapshotVersion into a
// core.SnapshotFormat, defaulting to V2 for an empty value. An unrecognised
// value yields SnapshotFormatUnspecified.
func (c *Config) PreferredFormat() core.SnapshotFormat {
	switch c.Snapshot.PreferredSnapshotVersion {
	case "V1":
		return core.SnapshotFormatV1
	case "V2", "":
		return core.SnapshotFormatV2
	default:
		return core.SnapshotFormatUnspecified
	}
}

func defaults() *Config {
	return &Config{
		Paths: PathsConfig{
			DataRoots: []string{"./data"},
		},
		Snapshot: SnapshotConfig{
			DefaultTimeoutSeconds:    86400,
			PreferredSnapshotVersion: "V2",
			MaxLinkConcurrency:       8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
	}
}

// Load reads YAML configuration from r, overlaying it onto the defaults.
// A nil or empty reader yields the defaults unchanged.
func Load(r io.Reader) (*Config, error) {
	cfg := defaults()
	if r == nil {
		return cfg, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadFile reads configuration from a YAML file by path, falling back to
// defaults when the file does not exist.
func LoadFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("open config file %s: %w", path, err)
	}
	defer file.Close()
	return Load(file)
}
