// Package config loads service configuration from environment
// variables, optionally overlaid on a YAML file named by
// MYSCHED_CONFIG_FILE. Environment variables always win, so a
// deployment can share one file and vary per-instance settings.
package config
