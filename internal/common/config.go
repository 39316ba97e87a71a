// Package common provides shared utilities for Riskcast
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Riskcast
type Config struct {
	Environment string           `toml:"environment"`
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Simulation  SimulationConfig `toml:"simulation"`
	Logging     LoggingConfig    `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the tree store path.
type StorageConfig struct {
	Path string `toml:"path"`
}

// SimulationConfig bounds the simulation engine's resource usage.
type SimulationConfig struct {
	MaxConcurrent     int     `toml:"max_concurrent"`      // semaphore capacity for concurrent simulations
	QueueTimeout      string  `toml:"queue_timeout"`       // how long a request waits for a permit before "busy"
	ChunkSize         int     `toml:"chunk_size"`          // trials folded per chunk
	MaxFanout         int     `toml:"max_fanout"`          // upper bound on concurrent portfolio children
	TrialWorkers      int     `toml:"trial_workers"`       // concurrent chunks within one leaf
	HeapPressurePct   float64 `toml:"heap_pressure_pct"`   // heap utilization above which fan-out is halved
	DefaultTrials     int     `toml:"default_trials"`      // trial count when a request omits one
	MaxTrials         int     `toml:"max_trials"`          // hard ceiling on per-request trial count
	LargeTrialCutover int     `toml:"large_trial_cutover"` // trial count above which fan-out is reduced
}

// GetQueueTimeout parses and returns the permit wait duration
func (c *SimulationConfig) GetQueueTimeout() time.Duration {
	d, err := time.ParseDuration(c.QueueTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		Storage: StorageConfig{
			Path: "data/trees",
		},
		Simulation: SimulationConfig{
			MaxConcurrent:     4,
			QueueTimeout:      "5s",
			ChunkSize:         10000,
			MaxFanout:         8,
			TrialWorkers:      4,
			HeapPressurePct:   80,
			DefaultTrials:     10000,
			MaxTrials:         1000000,
			LargeTrialCutover: 250000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	// Clamp simulation limits back to sane values
	normalizeSimulation(&config.Simulation)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RISKCAST_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("RISKCAST_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("RISKCAST_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("RISKCAST_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("RISKCAST_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if mc := os.Getenv("RISKCAST_MAX_CONCURRENT"); mc != "" {
		if n, err := strconv.Atoi(mc); err == nil {
			config.Simulation.MaxConcurrent = n
		}
	}

	if qt := os.Getenv("RISKCAST_QUEUE_TIMEOUT"); qt != "" {
		config.Simulation.QueueTimeout = qt
	}
}

// normalizeSimulation clamps simulation settings so a bad config file cannot
// disable the engine's admission control or memory bounds.
func normalizeSimulation(sim *SimulationConfig) {
	if sim.MaxConcurrent < 1 {
		sim.MaxConcurrent = 4
	}
	if sim.ChunkSize < 1 {
		sim.ChunkSize = 10000
	}
	if sim.MaxFanout < 1 {
		sim.MaxFanout = 8
	}
	if sim.TrialWorkers < 1 {
		sim.TrialWorkers = 4
	}
	if sim.HeapPressurePct <= 0 || sim.HeapPressurePct > 100 {
		sim.HeapPressurePct = 80
	}
	if sim.DefaultTrials < 1 {
		sim.DefaultTrials = 10000
	}
	if sim.MaxTrials < sim.DefaultTrials {
		sim.MaxTrials = sim.DefaultTrials
	}
	if sim.LargeTrialCutover < 1 {
		sim.LargeTrialCutover = 250000
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
