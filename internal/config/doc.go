// Package config loads dray's configuration from defaults, an optional JSON
// or YAML file, and DRAY_* environment variable overlays, in that order.
package config
