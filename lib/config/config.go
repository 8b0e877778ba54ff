// Copyright 2026 The Lucidity Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Lucidity
// components.
//
// Configuration is loaded from a single YAML file specified by:
//   - the LUCIDITY_CONFIG environment variable, or
//   - the --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// A handful of LUCIDITY_* environment variables override individual
// fields after the file is loaded; they exist for parity with the
// desktop shell's launcher and are listed on each field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Lucidity.
type Config struct {
	// Paths configures persistent state locations.
	Paths PathsConfig `yaml:"paths"`

	// Host configures the desktop host bridge.
	Host HostConfig `yaml:"host"`

	// Tmux configures the dedicated tmux server behind the pane
	// bridge.
	Tmux TmuxConfig `yaml:"tmux"`
}

// PathsConfig configures persistent state locations.
type PathsConfig struct {
	// State is the base directory for Lucidity data. Defaults to
	// ~/.local/state/lucidity.
	State string `yaml:"state"`

	// Keypair overrides the host keypair file path. Defaults to
	// <state>/host_key.json. Environment override:
	// LUCIDITY_KEYPAIR_PATH.
	Keypair string `yaml:"keypair"`

	// TrustDB overrides the trust store database path. Defaults to
	// <state>/devices.db. Environment override: LUCIDITY_TRUST_DB.
	TrustDB string `yaml:"trust_db"`
}

// HostConfig configures the desktop host bridge.
type HostConfig struct {
	// Listen is the TCP bind address. Defaults to 127.0.0.1:9797.
	// Environment override: LUCIDITY_LISTEN.
	Listen string `yaml:"listen"`

	// Disabled suppresses the host service entirely. Environment
	// override: LUCIDITY_DISABLE_HOST (1/true).
	Disabled bool `yaml:"disabled"`

	// MaxSessions is the admission cap across all active sessions.
	// Defaults to 4. Environment override: LUCIDITY_MAX_CLIENTS.
	MaxSessions int `yaml:"max_sessions"`

	// AuthGraceSeconds closes connections that have not completed
	// authentication in time. Defaults to 15.
	AuthGraceSeconds int `yaml:"auth_grace_seconds"`

	// ApprovalTimeoutSeconds bounds the pairing approval prompt.
	// Defaults to 60.
	ApprovalTimeoutSeconds int `yaml:"approval_timeout_seconds"`

	// FreshnessWindowSeconds bounds the pairing replay window.
	// Defaults to 300.
	FreshnessWindowSeconds int `yaml:"freshness_window_seconds"`

	// OverflowPolicy is "drop-oldest" (default) or "disconnect".
	OverflowPolicy string `yaml:"overflow_policy"`

	// LoopbackAuthExempt skips authentication for loopback
	// connections. Defaults to true.
	LoopbackAuthExempt *bool `yaml:"loopback_auth_exempt"`

	// LANAddr, ExternalAddr, and RelayURL are advertised in the
	// pairing payload when set.
	LANAddr      string `yaml:"lan_addr"`
	ExternalAddr string `yaml:"external_addr"`
	RelayURL     string `yaml:"relay_url"`

	// RelaySecretFile names a file holding the relay secret. The
	// secret itself never lives in this struct.
	RelaySecretFile string `yaml:"relay_secret_file"`
}

// TmuxConfig configures the dedicated tmux server.
type TmuxConfig struct {
	// Socket is the tmux server socket path. Defaults to
	// <state>/tmux.sock.
	Socket string `yaml:"socket"`

	// ConfigFile is passed as tmux -f. Defaults to /dev/null so the
	// user's personal ~/.tmux.conf never leaks into hosted sessions.
	ConfigFile string `yaml:"config_file"`
}

// EnvConfigPath is the environment variable naming the config file.
const EnvConfigPath = "LUCIDITY_CONFIG"

// Load reads the config file at path, or an all-defaults config when
// path is empty and LUCIDITY_CONFIG is unset. Field-level environment
// overrides are applied after the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnvironment()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment applies the LUCIDITY_* field overrides.
func (c *Config) applyEnvironment() {
	if listen := os.Getenv("LUCIDITY_LISTEN"); listen != "" {
		c.Host.Listen = listen
	}
	if disabled := os.Getenv("LUCIDITY_DISABLE_HOST"); disabled == "1" || disabled == "true" {
		c.Host.Disabled = true
	}
	if maxClients := os.Getenv("LUCIDITY_MAX_CLIENTS"); maxClients != "" {
		if n, err := strconv.Atoi(maxClients); err == nil && n > 0 {
			c.Host.MaxSessions = n
		}
	}
	if keypair := os.Getenv("LUCIDITY_KEYPAIR_PATH"); keypair != "" {
		c.Paths.Keypair = keypair
	}
	if trustDB := os.Getenv("LUCIDITY_TRUST_DB"); trustDB != "" {
		c.Paths.TrustDB = trustDB
	}
}

// applyDefaults fills every unset field.
func (c *Config) applyDefaults() {
	if c.Paths.State == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Paths.State = filepath.Join(home, ".local", "state", "lucidity")
	}
	if c.Paths.Keypair == "" {
		c.Paths.Keypair = filepath.Join(c.Paths.State, "host_key.json")
	}
	if c.Paths.TrustDB == "" {
		c.Paths.TrustDB = filepath.Join(c.Paths.State, "devices.db")
	}
	if c.Host.Listen == "" {
		c.Host.Listen = "127.0.0.1:9797"
	}
	if c.Host.MaxSessions == 0 {
		c.Host.MaxSessions = 4
	}
	if c.Host.AuthGraceSeconds == 0 {
		c.Host.AuthGraceSeconds = 15
	}
	if c.Host.ApprovalTimeoutSeconds == 0 {
		c.Host.ApprovalTimeoutSeconds = 60
	}
	if c.Host.FreshnessWindowSeconds == 0 {
		c.Host.FreshnessWindowSeconds = 300
	}
	if c.Host.OverflowPolicy == "" {
		c.Host.OverflowPolicy = "drop-oldest"
	}
	if c.Host.LoopbackAuthExempt == nil {
		exempt := true
		c.Host.LoopbackAuthExempt = &exempt
	}
	if c.Tmux.Socket == "" {
		c.Tmux.Socket = filepath.Join(c.Paths.State, "tmux.sock")
	}
	if c.Tmux.ConfigFile == "" {
		c.Tmux.ConfigFile = "/dev/null"
	}
}

// validate rejects configurations that cannot work.
func (c *Config) validate() error {
	if c.Host.MaxSessions < 0 {
		return fmt.Errorf("config: host.max_sessions must be positive")
	}
	switch c.Host.OverflowPolicy {
	case "drop-oldest", "disconnect":
	default:
		return fmt.Errorf("config: host.overflow_policy must be drop-oldest or disconnect, got %q", c.Host.OverflowPolicy)
	}
	return nil
}

// AuthGrace returns the grace period as a duration.
func (c *HostConfig) AuthGrace() time.Duration {
	return time.Duration(c.AuthGraceSeconds) * time.Second
}

// ApprovalTimeout returns the approval deadline as a duration.
func (c *HostConfig) ApprovalTimeout() time.Duration {
	return time.Duration(c.ApprovalTimeoutSeconds) * time.Second
}

// FreshnessWindow returns the pairing replay window as a duration.
func (c *HostConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowSeconds) * time.Second
}
