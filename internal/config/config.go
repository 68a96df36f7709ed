package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Refiner    RefinerConfig    `yaml:"refiner"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Export     ExportConfig     `yaml:"export"`
	Documents  DocumentsConfig  `yaml:"documents"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port          int    `yaml:"port"`
	Address       string `yaml:"address"`
	Enabled       bool   `yaml:"enabled"`
	MaxUploadSize int64  `yaml:"max_upload_size"` // bytes
}

// RefinerConfig contains envelope extraction and boundary refinement parameters
type RefinerConfig struct {
	CenterFrequency float64 `yaml:"center_frequency"` // Hz
	Q               float64 `yaml:"q"`
	SmoothingWindow int     `yaml:"smoothing_window"` // samples
	SearchPadding   float64 `yaml:"search_padding"`   // seconds
	SilenceRun      float64 `yaml:"silence_run"`      // seconds
	SpeechRatio     float64 `yaml:"speech_ratio"`
	SilenceRatio    float64 `yaml:"silence_ratio"`
	FallbackLead    float64 `yaml:"fallback_lead"` // seconds
	FallbackTail    float64 `yaml:"fallback_tail"` // seconds
	Workers         int     `yaml:"workers"`
}

// Playback outputs
const (
	OutputDevice = "device"
	OutputNull   = "null"
)

// PlaybackConfig contains live playback configuration
type PlaybackConfig struct {
	Fade     float64 `yaml:"fade"`      // seconds
	Output   string  `yaml:"output"`    // "device" or "null"
	NullTick int     `yaml:"null_tick"` // milliseconds
}

// ExportConfig contains offline render configuration
type ExportConfig struct {
	FileName string `yaml:"file_name"`
	BitDepth int    `yaml:"bit_depth"`
}

// DocumentsConfig contains document lifecycle configuration
type DocumentsConfig struct {
	DataDir         string `yaml:"data_dir"`
	MaxOpen         int    `yaml:"max_open"`
	IdleTimeout     int    `yaml:"idle_timeout"`     // seconds
	CleanupInterval int    `yaml:"cleanup_interval"` // seconds
}

// RecognizerConfig contains the external recognizer client configuration
type RecognizerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Language      string `yaml:"language"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration usable without a config file
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:          8080,
			Address:       "0.0.0.0",
			Enabled:       true,
			MaxUploadSize: 256 << 20,
		},
		Refiner: RefinerConfig{
			CenterFrequency: 1650,
			Q:               0.351,
			SmoothingWindow: 128,
			SearchPadding:   0.5,
			SilenceRun:      0.1,
			SpeechRatio:     0.2,
			SilenceRatio:    0.03,
			FallbackLead:    0.5,
			FallbackTail:    0.25,
			Workers:         4,
		},
		Playback: PlaybackConfig{
			Fade:     0.05,
			Output:   OutputNull,
			NullTick: 10,
		},
		Export: ExportConfig{
			FileName: "audio.wav",
			BitDepth: 16,
		},
		Documents: DocumentsConfig{
			DataDir:         "./data",
			MaxOpen:         32,
			IdleTimeout:     1800,
			CleanupInterval: 60,
		},
		Recognizer: RecognizerConfig{
			Enabled:       false,
			Timeout:       60,
			MaxRetries:    3,
			MaxConcurrent: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. Keys missing from the file
// keep their Default values; NARRATION_* environment variables override both.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment override failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// FromEnv returns Default with NARRATION_* overrides applied, for running
// without a config file
func FromEnv() (*Config, error) {
	config := Default()
	if err := config.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment override failed: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Refiner.Validate(); err != nil {
		return fmt.Errorf("refiner config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config: %w", err)
	}

	if err := c.Documents.Validate(); err != nil {
		return fmt.Errorf("documents config: %w", err)
	}

	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	if h.MaxUploadSize < 1024 {
		return fmt.Errorf("max_upload_size must be at least 1024 bytes, got %d", h.MaxUploadSize)
	}

	return nil
}

// Validate validates refiner configuration
func (r *RefinerConfig) Validate() error {
	if r.CenterFrequency <= 0 {
		return fmt.Errorf("center_frequency must be positive, got %f", r.CenterFrequency)
	}

	if r.Q <= 0 {
		return fmt.Errorf("q must be positive, got %f", r.Q)
	}

	if r.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1 sample, got %d", r.SmoothingWindow)
	}

	if r.SearchPadding < 0 {
		return fmt.Errorf("search_padding cannot be negative, got %f", r.SearchPadding)
	}

	if r.SilenceRun <= 0 {
		return fmt.Errorf("silence_run must be positive, got %f", r.SilenceRun)
	}

	if r.SpeechRatio <= 0 || r.SpeechRatio > 1 {
		return fmt.Errorf("speech_ratio must be between 0 (exclusive) and 1, got %f", r.SpeechRatio)
	}

	if r.SilenceRatio <= 0 || r.SilenceRatio >= r.SpeechRatio {
		return fmt.Errorf("silence_ratio (%f) must be positive and below speech_ratio (%f)",
			r.SilenceRatio, r.SpeechRatio)
	}

	if r.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", r.Workers)
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.Fade < 0 || p.Fade > 1 {
		return fmt.Errorf("fade must be between 0 and 1 second, got %f", p.Fade)
	}

	if p.Output != OutputDevice && p.Output != OutputNull {
		return fmt.Errorf("output must be 'device' or 'null', got '%s'", p.Output)
	}

	if p.NullTick < 1 {
		return fmt.Errorf("null_tick must be at least 1 millisecond, got %d", p.NullTick)
	}

	return nil
}

// Validate validates export configuration
func (e *ExportConfig) Validate() error {
	if e.FileName == "" {
		return fmt.Errorf("file_name cannot be empty")
	}

	validDepths := map[int]bool{8: true, 16: true, 24: true, 32: true}
	if !validDepths[e.BitDepth] {
		return fmt.Errorf("bit_depth must be one of [8, 16, 24, 32], got %d", e.BitDepth)
	}

	return nil
}

// Validate validates documents configuration
func (d *DocumentsConfig) Validate() error {
	if d.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	if d.MaxOpen < 1 {
		return fmt.Errorf("max_open must be at least 1, got %d", d.MaxOpen)
	}

	if d.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", d.IdleTimeout)
	}

	if d.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", d.CleanupInterval)
	}

	return nil
}

// Validate validates recognizer configuration
func (r *RecognizerConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when the recognizer is enabled")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries)
	}

	if r.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", r.MaxConcurrent)
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

	// Anything other than stdout/stderr is treated as a file path
	return nil
}

// GetNullTickDuration returns the null sink tick as a time.Duration
func (p *PlaybackConfig) GetNullTickDuration() time.Duration {
	return time.Duration(p.NullTick) * time.Millisecond
}

// GetIdleTimeoutDuration returns the document idle timeout as a time.Duration
func (d *DocumentsConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(d.IdleTimeout) * time.Second
}

// GetCleanupIntervalDuration returns the cleanup interval as a time.Duration
func (d *DocumentsConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(d.CleanupInterval) * time.Second
}

// GetTimeoutDuration returns the recognizer timeout as a time.Duration
func (r *RecognizerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}
