package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Simulation    SimulationConfig    `toml:"simulation"`
	Mechanisms    MechanismsConfig    `toml:"mechanisms"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	Workers      int    `toml:"workers"` // 0 means one per CPU
	DatabasePath string `toml:"database_path"`
	OutputDir    string `toml:"output_dir"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"` // text or json
}

// SimulationConfig holds reactor and ignition-detection settings
type SimulationConfig struct {
	Horizon  float64 `toml:"horizon"` // [s]
	Reactor  string  `toml:"reactor"`
	Method   string  `toml:"method"`
	Signal   string  `toml:"signal"` // empty means temperature
	MaxSteps int     `toml:"max_steps"`
}

// Merge returns s with every non-zero field of override applied
func (s SimulationConfig) Merge(override SimulationConfig) SimulationConfig {
	if override.Horizon != 0 {
		s.Horizon = override.Horizon
	}
	if override.Reactor != "" {
		s.Reactor = override.Reactor
	}
	if override.Method != "" {
		s.Method = override.Method
	}
	if override.Signal != "" {
		s.Signal = override.Signal
	}
	if override.MaxSteps != 0 {
		s.MaxSteps = override.MaxSteps
	}
	return s
}

// MechanismsConfig holds mechanism lookup settings
type MechanismsConfig struct {
	SearchDirs []string `toml:"search_dirs"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds the results API settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the listen address
func (w WebConfig) Addr() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			Workers:      0,
			DatabasePath: filepath.Join(home, ".knightshock", "results.db"),
			OutputDir:    ".",
			LogLevel:     "info",
			LogFormat:    "text",
		},
		Simulation: SimulationConfig{
			Horizon:  5e-3,
			Reactor:  "constant-volume",
			Method:   "inflection",
			MaxSteps: 0,
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.OutputDir = ExpandPath(cfg.General.OutputDir)
	for i, dir := range cfg.Mechanisms.SearchDirs {
		cfg.Mechanisms.SearchDirs[i] = ExpandPath(dir)
	}

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "knightshock", "config.toml")
}
