// Package config loads engine configuration from YAML with environment
// variable expansion. Zero values fall back to the engine defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	Playback PlaybackConfig `yaml:"playback"`
	GPU      GPUConfig      `yaml:"gpu"`
	Sequence SequenceConfig `yaml:"sequence"`
}

// PlaybackConfig tunes per-session decode behavior.
type PlaybackConfig struct {
	// QueueDepth is how many decoded frames a session buffers ahead.
	QueueDepth int `yaml:"queue_depth"`
	// FailureThreshold is how many consecutive bad frames halt a session.
	FailureThreshold int `yaml:"failure_threshold"`
}

// GPUConfig tunes the shared texture pool.
type GPUConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"` // idle texture scan cadence (2s)
	IdleTimeout   time.Duration `yaml:"idle_timeout"`   // texture lifetime when unused (30s)
}

// SequenceConfig tunes image sequence sources.
type SequenceConfig struct {
	Framerate float64 `yaml:"framerate"` // playback rate for directories of stills
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Playback: PlaybackConfig{
			QueueDepth:       4,
			FailureThreshold: 5,
		},
		GPU: GPUConfig{
			SweepInterval: 2 * time.Second,
			IdleTimeout:   30 * time.Second,
		},
		Sequence: SequenceConfig{
			Framerate: 30,
		},
	}
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment. Unset fields keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Playback.QueueDepth <= 0 {
		cfg.Playback.QueueDepth = 4
	}
	if cfg.Playback.FailureThreshold <= 0 {
		cfg.Playback.FailureThreshold = 5
	}
	if cfg.GPU.SweepInterval <= 0 {
		cfg.GPU.SweepInterval = 2 * time.Second
	}
	if cfg.GPU.IdleTimeout <= 0 {
		cfg.GPU.IdleTimeout = 30 * time.Second
	}
	if cfg.Sequence.Framerate <= 0 {
		cfg.Sequence.Framerate = 30
	}
	return cfg, nil
}
