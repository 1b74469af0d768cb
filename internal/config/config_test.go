package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.Workers != 0 {
		t.Errorf("Workers = %d, want 0", cfg.General.Workers)
	}
	if cfg.Simulation.Horizon != 5e-3 {
		t.Errorf("Horizon = %g, want 5e-3", cfg.Simulation.Horizon)
	}
	if cfg.Simulation.Reactor != "constant-volume" {
		t.Errorf("Reactor = %q, want constant-volume", cfg.Simulation.Reactor)
	}
	if cfg.Simulation.Method != "inflection" {
		t.Errorf("Method = %q, want inflection", cfg.Simulation.Method)
	}
	if cfg.General.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.General.LogLevel)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Simulation.Horizon != 5e-3 {
		t.Errorf("Horizon = %g, want default 5e-3", cfg.Simulation.Horizon)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
workers = 6
database_path = "~/shock/results.db"
log_format = "json"

[simulation]
horizon = 2e-3
reactor = "constant-pressure"
signal = "OH"

[mechanisms]
search_dirs = ["~/mechs", "/opt/mechs"]

[notifications]
slack_webhook = "https://hooks.example.com/x"

[web]
port = 9090
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	home, _ := os.UserHomeDir()
	if cfg.General.Workers != 6 {
		t.Errorf("Workers = %d, want 6", cfg.General.Workers)
	}
	if want := filepath.Join(home, "shock", "results.db"); cfg.General.DatabasePath != want {
		t.Errorf("DatabasePath = %q, want %q", cfg.General.DatabasePath, want)
	}
	if cfg.General.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default info", cfg.General.LogLevel)
	}
	if cfg.Simulation.Horizon != 2e-3 || cfg.Simulation.Reactor != "constant-pressure" || cfg.Simulation.Signal != "OH" {
		t.Errorf("Simulation = %+v", cfg.Simulation)
	}
	if cfg.Simulation.Method != "inflection" {
		t.Errorf("Method = %q, want default inflection", cfg.Simulation.Method)
	}
	if len(cfg.Mechanisms.SearchDirs) != 2 || cfg.Mechanisms.SearchDirs[0] != filepath.Join(home, "mechs") {
		t.Errorf("SearchDirs = %v", cfg.Mechanisms.SearchDirs)
	}
	if cfg.Notifications.SlackWebhook != "https://hooks.example.com/x" {
		t.Errorf("SlackWebhook = %q", cfg.Notifications.SlackWebhook)
	}
	if got := cfg.Web.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Web.Addr() = %q, want 127.0.0.1:9090", got)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[general\nworkers = "), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("Load() should fail on malformed TOML")
	}
}

func TestSimulationConfig_Merge(t *testing.T) {
	base := Default().Simulation
	got := base.Merge(SimulationConfig{Method: "peak", MaxSteps: 1000})

	if got.Method != "peak" || got.MaxSteps != 1000 {
		t.Errorf("Merge() = %+v, want overridden method and max steps", got)
	}
	if got.Horizon != base.Horizon || got.Reactor != base.Reactor {
		t.Errorf("Merge() = %+v, want base horizon and reactor kept", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDefaultConfigPath(t *testing.T) {
	if got := DefaultConfigPath(); filepath.Base(filepath.Dir(got)) != "knightshock" {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
}
