package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// ErrNotFound is returned when no config file exists in any search location
var ErrNotFound = errors.New("no config file found in standard locations")

// Loader discovers and parses the TOML configuration file
type Loader struct {
	Fs     afero.Fs
	Home   string
	Getenv func(string) string
}

// NewLoader creates a Loader backed by the OS file system and environment
func NewLoader() *Loader {
	return &Loader{
		Fs:     afero.NewOsFs(),
		Home:   os.Getenv("HOME"),
		Getenv: os.Getenv,
	}
}

// Candidates lists the search locations in priority order
func (l *Loader) Candidates() []string {
	paths := []string{"config.toml"}
	if l.Home != "" {
		paths = append(paths,
			filepath.Join(l.Home, ".icinga_passive_checks.toml"),
			filepath.Join(l.Home, ".config", "icinga_passive_checks.toml"),
		)
	}
	return append(paths, "/etc/icinga_passive_checks.toml")
}

// Find returns explicit if set, otherwise the first existing candidate
func (l *Loader) Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := l.Fs.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, path := range l.Candidates() {
		if info, err := l.Fs.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// Load finds, parses and validates the configuration
func (l *Loader) Load(explicit string) (*Config, error) {
	cfg, err := l.Read(explicit)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfg.Path, err)
	}
	return cfg, nil
}

// Read finds and parses the configuration and applies environment overrides
// without validating it. Commands that only need the control socket or the
// update settings use it so missing credentials do not stop them.
func (l *Loader) Read(explicit string) (*Config, error) {
	path, err := l.Find(explicit)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Path = path

	if l.Getenv != nil {
		applyEnv(cfg, l.Getenv)
	}
	return cfg, nil
}

// Parse decodes TOML on top of the defaults without validating
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
