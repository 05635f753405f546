package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// WorkersPerQueue is the number of concurrent executors per queue.
	WorkersPerQueue int `json:"workersPerQueue" yaml:"workersPerQueue"`
	// ClaimPollMs is how long an idle executor sleeps between claim attempts.
	ClaimPollMs int `json:"claimPollMs" yaml:"claimPollMs"`
	// PayloadMaxBytes caps the size of a single bulk-upload body.
	PayloadMaxBytes int `json:"payloadMaxBytes" yaml:"payloadMaxBytes"`
	// EstimatePerRecordMs feeds the advisory processing-time estimate
	// returned on enqueue.
	EstimatePerRecordMs int `json:"estimatePerRecordMs" yaml:"estimatePerRecordMs"`

	Retention Retention `json:"retention" yaml:"retention"`
}

// Retention captures the TTL policy for job records.
type Retention struct {
	// JobTTLMs is the hard cap from creation, regardless of state.
	JobTTLMs int64 `json:"jobTtlMs" yaml:"jobTtlMs"`
	// CompletedTTLMs runs from the terminal transition of a completed job.
	CompletedTTLMs int64 `json:"completedTtlMs" yaml:"completedTtlMs"`
	// FailedTTLMs runs from the terminal transition of a failed job.
	FailedTTLMs int64 `json:"failedTtlMs" yaml:"failedTtlMs"`
	// SweepIntervalMs is the period of the scheduled reaper pass.
	SweepIntervalMs int64 `json:"sweepIntervalMs" yaml:"sweepIntervalMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		WorkersPerQueue:     4,
		ClaimPollMs:         250,
		PayloadMaxBytes:     10 << 20,
		EstimatePerRecordMs: 150,
		Retention: Retention{
			JobTTLMs:        3 * 24 * 3600 * 1000,
			CompletedTTLMs:  60 * 1000,
			FailedTTLMs:     5 * 60 * 1000,
			SweepIntervalMs: 3600 * 1000,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
