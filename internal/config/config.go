// Package config loads the data plane's own process-level options — as
// opposed to the per-request filter/sink configuration a frontend sends over
// the wire (internal/protocol), which is never read from disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultSinkPoolSize         = 4
	DefaultCompressionThreshold = 0.02
)

// Config holds the options a local .dataplane.kdl file may override.
type Config struct {
	// SinkPoolSize is read from the file's sink_pool_size node. Nothing in
	// this module consults it: the sink pool C4 multiplexes across is sized
	// by the number of sink tokens in the DATAPLANE_SINKS descriptor.
	SinkPoolSize int

	// CompressionThreshold is the default fraction-of-total-samples cutoff C7
	// collapses subtrees below, when a flame-graph request doesn't supply one.
	CompressionThreshold float64

	// DiagLogPath is read from the file's diag_log_path node. Nothing in
	// this module consults it: cmd/dataplaned takes its diagnostic log path
	// from the --diag-log flag, else uses internal/diag's os.TempDir() file.
	DiagLogPath string
}

func defaults() *Config {
	return &Config{
		SinkPoolSize:         DefaultSinkPoolSize,
		CompressionThreshold: DefaultCompressionThreshold,
	}
}

// Load reads .dataplane.kdl from dir, if present, overriding the defaults.
// A missing file is not an error: Load returns the defaults.
func Load(dir string) (*Config, error) {
	cfg := defaults()

	kdlPath := filepath.Join(dir, ".dataplane.kdl")
	content, err := os.ReadFile(kdlPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kdlPath, err)
	}

	if err := parseKDL(string(content), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kdlPath, err)
	}
	return cfg, nil
}
