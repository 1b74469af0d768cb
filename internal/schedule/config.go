package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Entry is one recurring sweep
type Entry struct {
	Name        string        `toml:"name"`
	Cron        string        `toml:"cron"`
	Plan        string        `toml:"plan"`
	Timeout     string        `toml:"max_duration"` // e.g. "30m"; default 4h
	MaxDuration time.Duration `toml:"-"`
}

// Config holds all entries of a schedule file
type Config struct {
	Entries []Entry `toml:"sweep"`
}

// Validate checks the entry and fills defaults
func (e *Entry) Validate() error {
	if e.Plan == "" {
		return fmt.Errorf("plan is required")
	}
	if e.Name == "" {
		e.Name = filepath.Base(e.Plan)
	}
	if e.Cron == "" {
		return fmt.Errorf("%s: cron expression is required", e.Name)
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("%s: invalid cron expression: %w", e.Name, err)
	}
	if e.Timeout != "" {
		d, err := time.ParseDuration(e.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("%s: invalid max_duration %q", e.Name, e.Timeout)
		}
		e.MaxDuration = d
	}
	if e.MaxDuration <= 0 {
		e.MaxDuration = 4 * time.Hour
	}
	return nil
}

// Load reads a schedule file. Relative plan paths are resolved against
// the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Entries) == 0 {
		return nil, fmt.Errorf("%s: no [[sweep]] entries", path)
	}

	seen := make(map[string]bool)
	for i := range cfg.Entries {
		e := &cfg.Entries[i]
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("sweep %d: %w", i, err)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate sweep name %q", e.Name)
		}
		seen[e.Name] = true
		if !filepath.IsAbs(e.Plan) {
			e.Plan = filepath.Join(filepath.Dir(path), e.Plan)
		}
	}

	return &cfg, nil
}
