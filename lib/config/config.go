// Copyright 2026 The Manifold Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the file path from.
const EnvironmentVariable = "MANIFOLD_CONFIG"

// Environment selects which override section applies.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the complete configuration shared by both binaries. Each
// binary reads the sections it needs.
type Config struct {
	Environment Environment `yaml:"environment"`

	Registry  RegistryConfig  `yaml:"registry"`
	Signaling SignalingConfig `yaml:"signaling"`
	ICE       ICEConfig       `yaml:"ice"`
	Session   SessionConfig   `yaml:"session"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the per-environment sections. Zero fields leave the
// base value alone.
type Overrides struct {
	Registry  *RegistryConfig  `yaml:"registry,omitempty"`
	Signaling *SignalingConfig `yaml:"signaling,omitempty"`
	ICE       *ICEConfig       `yaml:"ice,omitempty"`
	Session   *SessionConfig   `yaml:"session,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
}

// RegistryConfig locates the attendance registry.
type RegistryConfig struct {
	// URL is the registry base URL. Requests go to URL + "join", so it
	// normally ends with a slash.
	URL string `yaml:"url"`
}

// SignalingConfig locates the signaling server.
type SignalingConfig struct {
	// URL is the websocket endpoint, e.g. ws://host:9000/signal.
	URL string `yaml:"url"`

	// PingPeriod is the keepalive interval on signaling sockets.
	PingPeriod Duration `yaml:"ping_period"`
}

// ICEConfig lists STUN/TURN servers handed to every peer connection.
type ICEConfig struct {
	Servers []ICEServer `yaml:"servers"`
}

// ICEServer is one STUN or TURN entry.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// SessionConfig tunes the space controller.
type SessionConfig struct {
	ConnectTimeout    Duration `yaml:"connect_timeout"`
	PairingTimeout    Duration `yaml:"pairing_timeout"`
	BroadcastInterval Duration `yaml:"broadcast_interval"`
}

// ServerConfig configures the registry/signaling HTTP server.
type ServerConfig struct {
	Address string `yaml:"address"`

	// ReadLimit caps a single signaling frame in bytes.
	ReadLimit int64 `yaml:"read_limit"`
}

// LogConfig sets the minimum log level: debug, info, warn, or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig exposes Prometheus metrics. An empty address disables
// the standalone metrics listener of the attendee binary.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Default returns the configuration used before any file is applied.
func Default() *Config {
	return &Config{
		Environment: Development,
		Registry:    RegistryConfig{URL: "http://localhost:9000/"},
		Signaling: SignalingConfig{
			URL:        "ws://localhost:9000/signal",
			PingPeriod: Duration(30 * time.Second),
		},
		ICE: ICEConfig{
			Servers: []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		},
		Session: SessionConfig{
			ConnectTimeout:    Duration(10 * time.Second),
			PairingTimeout:    Duration(30 * time.Second),
			BroadcastInterval: Duration(100 * time.Millisecond),
		},
		Server: ServerConfig{
			Address:   ":9000",
			ReadLimit: 64 * 1024,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the file named by MANIFOLD_CONFIG. It fails when the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of a config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// Resolve picks the configuration a binary runs with: the --config
// path when given, then MANIFOLD_CONFIG, then Default.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	return Default(), nil
}

// LoadFile reads path over Default, applies the environment section, and
// expands variables.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// YAML is a superset of JSON, so the stripped text decodes with
		// the same struct tags.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Registry != nil && overrides.Registry.URL != "" {
		c.Registry.URL = overrides.Registry.URL
	}
	if overrides.Signaling != nil {
		if overrides.Signaling.URL != "" {
			c.Signaling.URL = overrides.Signaling.URL
		}
		if overrides.Signaling.PingPeriod != 0 {
			c.Signaling.PingPeriod = overrides.Signaling.PingPeriod
		}
	}
	if overrides.ICE != nil && len(overrides.ICE.Servers) > 0 {
		c.ICE.Servers = overrides.ICE.Servers
	}
	if overrides.Session != nil {
		if overrides.Session.ConnectTimeout != 0 {
			c.Session.ConnectTimeout = overrides.Session.ConnectTimeout
		}
		if overrides.Session.PairingTimeout != 0 {
			c.Session.PairingTimeout = overrides.Session.PairingTimeout
		}
		if overrides.Session.BroadcastInterval != 0 {
			c.Session.BroadcastInterval = overrides.Session.BroadcastInterval
		}
	}
	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}
}

func (c *Config) expandVariables() {
	c.Registry.URL = expandVars(c.Registry.URL)
	c.Signaling.URL = expandVars(c.Signaling.URL)
	c.Server.Address = expandVars(c.Server.Address)
	c.Metrics.Address = expandVars(c.Metrics.Address)
	for index := range c.ICE.Servers {
		server := &c.ICE.Servers[index]
		server.Username = expandVars(server.Username)
		server.Credential = expandVars(server.Credential)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if err := validateURL("registry.url", c.Registry.URL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("signaling.url", c.Signaling.URL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	for index, server := range c.ICE.Servers {
		if len(server.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice.servers[%d].urls is required", index))
		}
	}
	for _, field := range []struct {
		name  string
		value Duration
	}{
		{"signaling.ping_period", c.Signaling.PingPeriod},
		{"session.connect_timeout", c.Session.ConnectTimeout},
		{"session.pairing_timeout", c.Session.PairingTimeout},
		{"session.broadcast_interval", c.Session.BroadcastInterval},
	} {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field.name))
		}
	}
	if c.Server.ReadLimit <= 0 {
		errs = append(errs, errors.New("server.read_limit must be positive"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %s", field, strings.Join(schemes, " or "))
}
