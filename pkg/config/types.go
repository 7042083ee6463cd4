package config

import "time"

// Config represents the daemon configuration
type Config struct {
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format,omitempty"` // json or text
	Server    ServerConfig   `yaml:"server"`
	Engine    EngineConfig   `yaml:"engine"`
	Playback  PlaybackConfig `yaml:"playback"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// EngineConfig holds the default search parameters for new runs.
// Zero values are replaced by the defaults below; explicit zero candidates
// for a single run can still be requested through the run-creation API.
type EngineConfig struct {
	Cities         int   `yaml:"cities"`              // number of cities (N)
	Candidates     int   `yaml:"candidates_per_step"` // evaluations per step (K)
	StuckThreshold int   `yaml:"stuck_threshold"`     // failed attempts before declaring an optimum (T)
	Seed           int64 `yaml:"seed"`
}

// PlaybackConfig controls how the daemon drives runs
type PlaybackConfig struct {
	StepIntervalMs int    `yaml:"step_interval_ms"`
	MaxIterations  int64  `yaml:"max_iterations"` // 0 = run until stopped
	CallbackURL    string `yaml:"callback_url,omitempty"`
	CallbackSecret string `yaml:"callback_secret,omitempty"`
}

// Defaults applied to zero-valued fields before validation
const (
	DefaultCities         = 50
	DefaultCandidates     = 10
	DefaultStuckThreshold = 50
	DefaultSeed           = 42
	DefaultStepIntervalMs = 40
	DefaultHTTPAddr       = ":8080"
)

// Default returns a configuration populated entirely from defaults
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// StepInterval returns the playback step interval as a duration
func (p *PlaybackConfig) StepInterval() time.Duration {
	return time.Duration(p.StepIntervalMs) * time.Millisecond
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Engine.Cities == 0 {
		cfg.Engine.Cities = DefaultCities
	}
	if cfg.Engine.Candidates == 0 {
		cfg.Engine.Candidates = DefaultCandidates
	}
	if cfg.Engine.StuckThreshold == 0 {
		cfg.Engine.StuckThreshold = DefaultStuckThreshold
	}
	if cfg.Engine.Seed == 0 {
		cfg.Engine.Seed = DefaultSeed
	}
	if cfg.Playback.StepIntervalMs == 0 {
		cfg.Playback.StepIntervalMs = DefaultStepIntervalMs
	}
}
