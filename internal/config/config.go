package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir string `yaml:"work_dir"`

	// Buffer pool settings
	Pool PoolConfig `yaml:"pool"`

	// Preloading settings
	Preload PreloadConfig `yaml:"preload"`

	// Memory pressure settings
	Pressure PressureConfig `yaml:"pressure"`

	// Playback settings
	Playback PlaybackConfig `yaml:"playback"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
}

type PoolConfig struct {
	Capacity int `yaml:"capacity"`
}

type PreloadConfig struct {
	PlaybackAhead     int           `yaml:"playback_ahead"`
	ScrubWindow       float64       `yaml:"scrub_window"`
	PlaybackThrottle  time.Duration `yaml:"playback_throttle"`
	ScrubbingThrottle time.Duration `yaml:"scrubbing_throttle"`
	IdleThrottle      time.Duration `yaml:"idle_throttle"`
}

type PressureConfig struct {
	SampleInterval    time.Duration `yaml:"sample_interval"`
	MediumThreshold   float64       `yaml:"medium_threshold"`
	HighThreshold     float64       `yaml:"high_threshold"`
	CriticalThreshold float64       `yaml:"critical_threshold"`
}

type PlaybackConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval"`
	SeekTolerance float64       `yaml:"seek_tolerance"`
}

type FFmpegConfig struct {
	BinaryPath  string  `yaml:"binary_path"`
	ProbePath   string  `yaml:"probe_path"`
	ProxyWidth  int     `yaml:"proxy_width"`
	ProxyFPSCap float64 `yaml:"proxy_fps_cap"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		WorkDir: defaultWorkDir(),
		Pool: PoolConfig{
			Capacity: 16,
		},
		Preload: PreloadConfig{
			PlaybackAhead:     5,
			ScrubWindow:       10,
			PlaybackThrottle:  500 * time.Millisecond,
			ScrubbingThrottle: 200 * time.Millisecond,
			IdleThrottle:      2 * time.Second,
		},
		Pressure: PressureConfig{
			SampleInterval:    5 * time.Second,
			MediumThreshold:   0.60,
			HighThreshold:     0.75,
			CriticalThreshold: 0.90,
		},
		Playback: PlaybackConfig{
			TickInterval:  33 * time.Millisecond,
			SeekTolerance: 0.1,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath:  "ffmpeg",
			ProbePath:   "ffprobe",
			ProxyWidth:  1280,
			ProxyFPSCap: 30,
		},
	}
}

func defaultWorkDir() string {
	return filepath.Join(os.TempDir(), "playcut")
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".playcut", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
