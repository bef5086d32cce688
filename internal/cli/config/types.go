// Package config provides configuration management for the lineagekit CLI.
//
// Values are layered with koanf: built-in defaults, then lineagekit.yaml,
// then LINEAGEKIT_ environment variables, then explicitly set flags.
package config

import (
	"github.com/souptikmandal/lineagekit/internal/archive"
	"github.com/souptikmandal/lineagekit/internal/diff"
)

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string          `koanf:"state_path"`
	Pipeline     string          `koanf:"pipeline"`
	Verbose      bool            `koanf:"verbose"`
	OutputFormat string          `koanf:"output"`
	Detect       diff.Thresholds `koanf:"detect"`
	Guard        GuardConfig     `koanf:"guard"`
	Serve        ServeConfig     `koanf:"serve"`
	Archive      archive.Config  `koanf:"archive"`
}

// GuardConfig configures the guard command.
type GuardConfig struct {
	// Threshold is the lowest downstream severity that fails the guard.
	Threshold string `koanf:"threshold"`
}

// ServeConfig configures the read-only API server.
type ServeConfig struct {
	Port int `koanf:"port"`
}

// Default configuration values.
const (
	DefaultStateFile      = ".lineagekit/state.db"
	DefaultPipeline       = "pipeline.yaml"
	DefaultOutput         = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultGuardThreshold = "HIGH"
	DefaultServePort      = 8765
)

// ConfigFileNames are the config files looked up in the working directory.
var ConfigFileNames = []string{"lineagekit.yaml", "lineagekit.yml"}
