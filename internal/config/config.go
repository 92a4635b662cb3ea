// Package config holds run options for the execution engine and the
// drover config file format.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when an option is left zero.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 8
)

// Options holds the recognized per-run settings for a multi-host run.
type Options struct {
	// User is the remote login user. If empty, resolved from ssh_config
	// or the current OS user.
	User string

	// Password authenticates the session and, when sudo is enabled, is
	// fed to the elevation prompt non-interactively.
	Password string

	// Keys lists private key file paths. When both Keys and Password are
	// supplied, keys take precedence for authentication.
	Keys []string

	// Port overrides the SSH port. Zero means ssh_config or 22.
	Port int

	// Timeout bounds each host's handshake plus execution.
	Timeout time.Duration

	// Sudo wraps commands in an elevation prefix. Enabled by default;
	// use NewOptions rather than a zero Options literal.
	Sudo bool

	// Concurrency is the strict ceiling on simultaneously open
	// connections.
	Concurrency int
}

// NewOptions returns Options with the documented defaults: 5s timeout,
// sudo on, concurrency 8.
func NewOptions() Options {
	return Options{
		Timeout:     DefaultTimeout,
		Sudo:        true,
		Concurrency: DefaultConcurrency,
	}
}

// Normalize fills zero Timeout and Concurrency with defaults.
func (o *Options) Normalize() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
}

// Validate checks the options for logical errors.
func (o Options) Validate() error {
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", o.Timeout)
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", o.Concurrency)
	}
	return nil
}

// Config represents the top-level drover configuration file.
type Config struct {
	Defaults  Defaults          `yaml:"defaults"`
	Bootstrap Bootstrap         `yaml:"bootstrap,omitempty"`
	Recipes   map[string]Recipe `yaml:"recipes,omitempty"`
}

// Recipe is a named sequence of commands run across the fleet. Steps
// may carry an @-selector prefix scoping them to the previous step's
// outcome.
type Recipe struct {
	Description string   `yaml:"description,omitempty"`
	Steps       []string `yaml:"steps"`
}

// Defaults holds default run settings from the config file.
type Defaults struct {
	User        string   `yaml:"user,omitempty"`
	Keys        []string `yaml:"keys,omitempty"`
	Concurrency int      `yaml:"concurrency"`
	Timeout     Duration `yaml:"timeout"`
	Sudo        *bool    `yaml:"sudo,omitempty"`
}

// Bootstrap holds file paths for the bootstrap payload.
type Bootstrap struct {
	Template     string `yaml:"template,omitempty"`
	ValidatorKey string `yaml:"validator_key,omitempty"`
	Secret       string `yaml:"secret,omitempty"`
	RunCommand   string `yaml:"run_command,omitempty"`
}

// Duration wraps time.Duration to support YAML unmarshaling from strings
// like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			Concurrency: DefaultConcurrency,
			Timeout:     Duration{DefaultTimeout},
		},
	}
}

// DefaultConfigPath returns the default config file path.
// Respects $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir != "" {
		return filepath.Join(configDir, "drover", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "drover", "config.yaml")
}

// Load reads and parses a config YAML file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the config from the default path. If the file does
// not exist, it returns the default config.
func LoadDefault() (*Config, error) {
	path := DefaultConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	if c.Defaults.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative, got %d", c.Defaults.Concurrency)
	}
	if c.Defaults.Timeout.Duration < 0 {
		return fmt.Errorf("default timeout must be non-negative, got %s", c.Defaults.Timeout)
	}
	return nil
}

// Options converts the file defaults to run Options, normalized.
func (c *Config) Options() Options {
	o := Options{
		User:        c.Defaults.User,
		Keys:        c.Defaults.Keys,
		Timeout:     c.Defaults.Timeout.Duration,
		Concurrency: c.Defaults.Concurrency,
		Sudo:        true,
	}
	if c.Defaults.Sudo != nil {
		o.Sudo = *c.Defaults.Sudo
	}
	o.Normalize()
	return o
}
