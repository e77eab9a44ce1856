package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read on top of the config file.
const (
	EnvWorkspaceRoot = "RETROFIT_WORKSPACE_ROOT"
	EnvSource        = "RETROFIT_SOURCE"
	EnvTarget        = "RETROFIT_TARGET"
)

// DefaultExtensions are the PL/SQL and DDL file types scanned when the
// config file does not list any.
var DefaultExtensions = []string{".sql", ".pks", ".pkb", ".pls", ".plb", ".prc", ".fnc", ".trg", ".vw", ".typ"}

// Config holds project-level settings loaded from retrofit.yml.
type Config struct {
	SupportedExtensions []string          `yaml:"supported_extensions,omitempty"`
	FolderMapping       map[string]string `yaml:"folder_mapping,omitempty"`
	Exclude             []string          `yaml:"exclude,omitempty"`
	ContextLines        int               `yaml:"context_lines,omitempty"`
	FuzzyThreshold      float64           `yaml:"fuzzy_threshold,omitempty"`
	BelowWindow         int               `yaml:"below_window,omitempty"`
	Jobs                int               `yaml:"jobs,omitempty"`
	WorkspaceRoot       string            `yaml:"workspace_root,omitempty"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	root := "Retro_auto"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, "Retro_auto")
	}
	return &Config{
		SupportedExtensions: append([]string(nil), DefaultExtensions...),
		FolderMapping:       map[string]string{},
		ContextLines:        10,
		FuzzyThreshold:      0.80,
		BelowWindow:         15,
		Jobs:                1,
		WorkspaceRoot:       root,
	}
}

// Load reads retrofit.yml or retrofit.yaml from dir over the defaults and
// applies environment overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{"retrofit.yml", "retrofit.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.Path = path
		break
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvWorkspaceRoot); v != "" {
		c.WorkspaceRoot = v
	}
}

// Validate checks the tunables are in range.
func (c *Config) Validate() error {
	switch {
	case c.ContextLines < 0:
		return fmt.Errorf("config: context_lines must not be negative, got %d", c.ContextLines)
	case c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1:
		return fmt.Errorf("config: fuzzy_threshold must be within [0, 1], got %v", c.FuzzyThreshold)
	case c.BelowWindow < 0:
		return fmt.Errorf("config: below_window must not be negative, got %d", c.BelowWindow)
	case c.Jobs < 0:
		return fmt.Errorf("config: jobs must not be negative, got %d", c.Jobs)
	}
	return nil
}

// LoadDotEnv loads dir/.env into the process environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}
