// Package config provides configuration loading and validation for the interview audio service.
// It handles YAML-based configuration with per-section struct validation and
// duration conversion helpers for time-based parameters.
package config
