package config

import (
	"fmt"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("invalid log_format: %s (must be json or text)", cfg.LogFormat)
	}

	if cfg.Server.HTTPAddr == "" {
		return fmt.Errorf("server http_addr cannot be empty")
	}

	if err := validateEngine(&cfg.Engine); err != nil {
		return fmt.Errorf("engine validation failed: %w", err)
	}

	if err := validatePlayback(&cfg.Playback); err != nil {
		return fmt.Errorf("playback validation failed: %w", err)
	}

	return nil
}

// validateEngine validates the search parameters
func validateEngine(e *EngineConfig) error {
	if e.Cities < 2 {
		return fmt.Errorf("cities must be at least 2, got %d", e.Cities)
	}
	if e.Candidates < 0 {
		return fmt.Errorf("candidates_per_step cannot be negative, got %d", e.Candidates)
	}
	if e.StuckThreshold < 0 {
		return fmt.Errorf("stuck_threshold cannot be negative, got %d", e.StuckThreshold)
	}
	return nil
}

// validatePlayback validates the playback configuration
func validatePlayback(p *PlaybackConfig) error {
	if p.StepIntervalMs <= 0 {
		return fmt.Errorf("step_interval_ms must be positive, got %d", p.StepIntervalMs)
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative, got %d", p.MaxIterations)
	}
	if p.CallbackURL == "" && p.CallbackSecret != "" {
		return fmt.Errorf("callback_secret set without callback_url")
	}
	return nil
}
