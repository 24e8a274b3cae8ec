package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Finalize      FinalizeConfig      `yaml:"finalize"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Storage       StorageConfig       `yaml:"storage"`
	Database      DatabaseConfig      `yaml:"database"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int    `yaml:"port"`
	Address         string `yaml:"address"`
	MaxChunkSizeMB  int    `yaml:"max_chunk_size_mb"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// SessionConfig contains session cache and time-limit configuration
type SessionConfig struct {
	MaxSessions     int     `yaml:"max_sessions"`
	IdleTimeout     float64 `yaml:"idle_timeout"`     // seconds
	WarningMinutes  float64 `yaml:"warning_minutes"`  // first time-limit warning
	CriticalMinutes float64 `yaml:"critical_minutes"` // final time-limit warning
	ExpireMinutes   float64 `yaml:"expire_minutes"`   // hard session cap
}

// FinalizeConfig contains end-of-recording finalization parameters
type FinalizeConfig struct {
	MaxWait          float64 `yaml:"max_wait"`           // seconds to wait for in-flight chunks
	PartialThreshold float64 `yaml:"partial_threshold"`  // fraction of max_wait after which partial results are accepted
	SegmentBatchSize int     `yaml:"segment_batch_size"` // rows per bulk segment insert
}

// AudioConfig contains audio probing parameters
type AudioConfig struct {
	DefaultSampleRate int `yaml:"default_sample_rate"`
	// Fallback byte-rate estimates used when container metadata cannot be
	// read, keyed by codec family mime type.
	EstimateBytesPerSecond map[string]int `yaml:"estimate_bytes_per_second"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Language      string `yaml:"language"`
}

// StorageConfig contains object storage configuration
type StorageConfig struct {
	RootDir string `yaml:"root_dir"`
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig contains the durable store configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Finalize.Validate(); err != nil {
		return fmt.Errorf("finalize config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.MaxChunkSizeMB < 1 {
		return fmt.Errorf("max_chunk_size_mb must be at least 1, got %d", s.MaxChunkSizeMB)
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}

	if s.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %f", s.IdleTimeout)
	}

	if s.WarningMinutes <= 0 {
		return fmt.Errorf("warning_minutes must be positive, got %f", s.WarningMinutes)
	}

	if s.CriticalMinutes <= s.WarningMinutes {
		return fmt.Errorf("critical_minutes (%f) must be greater than warning_minutes (%f)",
			s.CriticalMinutes, s.WarningMinutes)
	}

	if s.ExpireMinutes <= s.CriticalMinutes {
		return fmt.Errorf("expire_minutes (%f) must be greater than critical_minutes (%f)",
			s.ExpireMinutes, s.CriticalMinutes)
	}

	return nil
}

// Validate validates finalize configuration
func (f *FinalizeConfig) Validate() error {
	if f.MaxWait <= 0 {
		return fmt.Errorf("max_wait must be positive, got %f", f.MaxWait)
	}

	if f.PartialThreshold <= 0 || f.PartialThreshold > 1 {
		return fmt.Errorf("partial_threshold must be in (0, 1], got %f", f.PartialThreshold)
	}

	if f.SegmentBatchSize < 1 {
		return fmt.Errorf("segment_batch_size must be at least 1, got %d", f.SegmentBatchSize)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.DefaultSampleRate <= 0 {
		return fmt.Errorf("default_sample_rate must be positive, got %d", a.DefaultSampleRate)
	}

	for mime, rate := range a.EstimateBytesPerSecond {
		if rate <= 0 {
			return fmt.Errorf("estimate_bytes_per_second[%s] must be positive, got %d", mime, rate)
		}
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.RootDir == "" {
		return fmt.Errorf("root_dir cannot be empty")
	}

	if s.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	return nil
}

// Validate validates database configuration
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetIdleTimeout returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetIdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeout * float64(time.Second))
}

// GetWarningThreshold returns the first warning threshold as a time.Duration
func (s *SessionConfig) GetWarningThreshold() time.Duration {
	return time.Duration(s.WarningMinutes * float64(time.Minute))
}

// GetCriticalThreshold returns the critical warning threshold as a time.Duration
func (s *SessionConfig) GetCriticalThreshold() time.Duration {
	return time.Duration(s.CriticalMinutes * float64(time.Minute))
}

// GetExpireThreshold returns the hard session cap as a time.Duration
func (s *SessionConfig) GetExpireThreshold() time.Duration {
	return time.Duration(s.ExpireMinutes * float64(time.Minute))
}

// GetMaxWait returns the finalize wait budget as a time.Duration
func (f *FinalizeConfig) GetMaxWait() time.Duration {
	return time.Duration(f.MaxWait * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetShutdownTimeout returns the HTTP shutdown grace period as a time.Duration
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}
