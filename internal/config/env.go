package config

import (
	"os"
	"strconv"
)

// FromEnv overlays DRAY_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("DRAY_WORKERS_PER_QUEUE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkersPerQueue = n
		}
	}
	if v := os.Getenv("DRAY_CLAIM_POLL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ClaimPollMs = n
		}
	}
	if v := os.Getenv("DRAY_PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PayloadMaxBytes = n
		}
	}
	if v := os.Getenv("DRAY_ESTIMATE_PER_RECORD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EstimatePerRecordMs = n
		}
	}
	if v := os.Getenv("DRAY_JOB_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Retention.JobTTLMs = n
		}
	}
	if v := os.Getenv("DRAY_COMPLETED_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Retention.CompletedTTLMs = n
		}
	}
	if v := os.Getenv("DRAY_FAILED_TTL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Retention.FailedTTLMs = n
		}
	}
	if v := os.Getenv("DRAY_SWEEP_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Retention.SweepIntervalMs = n
		}
	}
}
