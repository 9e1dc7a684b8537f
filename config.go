// Copyright 2026 The JetStream Protocol Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jsp

import (
	"os"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"

	"github.com/jetstreamproto/jsp/lib/conn"
	"github.com/jetstreamproto/jsp/lib/pathval"
	"github.com/jetstreamproto/jsp/lib/ratelimit"
)

// Config holds every tunable for a client or server connection. Zero
// values are not valid configuration; build one with DefaultConfig and
// functional options, or load one from YAML with LoadConfig.
type Config struct {
	BindAddr string `yaml:"bind_addr"`

	SessionTimeout        time.Duration `yaml:"session_timeout"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeoutCount int           `yaml:"heartbeat_timeout_count"`
	MaxStreams            int           `yaml:"max_streams"`

	RateLimitMessages float64 `yaml:"rate_limit_messages"`
	RateLimitBytes    float64 `yaml:"rate_limit_bytes"`

	EnableCompression bool `yaml:"enable_compression"`
	EnableEncryption  bool `yaml:"enable_encryption"`

	InitialCWND   int           `yaml:"initial_cwnd"`
	MinRTO        time.Duration `yaml:"min_rto"`
	ReorderBudget int           `yaml:"reorder_budget"`

	ReplayWindowSize      int           `yaml:"replay_window_size"`
	PathValidationTimeout time.Duration `yaml:"path_validation_timeout"`

	// Accept0RTTBeforeLiveness controls whether 0-RTT data from a
	// resumed session is delivered to the application immediately
	// (true) or withheld until the peer's address has been confirmed
	// live by a subsequent authenticated frame (false, the default).
	Accept0RTTBeforeLiveness bool `yaml:"accept_0rtt_before_liveness"`

	// Server-only fields; zero values mean "no global limit" /
	// "use the library default" when the Config is used for Dial.
	GlobalRateLimitMessages float64       `yaml:"global_rate_limit_messages"`
	GlobalRateLimitBytes    float64       `yaml:"global_rate_limit_bytes"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig returns the conservative defaults each lib/ package
// already ships, collected into one Config.
func DefaultConfig() Config {
	limits := ratelimit.DefaultLimits()
	return Config{
		SessionTimeout:           conn.IdleTimeout,
		HeartbeatInterval:        conn.HeartbeatInterval,
		HeartbeatTimeoutCount:    3,
		MaxStreams:               1024,
		RateLimitMessages:        limits.MessagesPerSecond,
		RateLimitBytes:           limits.BytesPerSecond,
		EnableCompression:        false,
		EnableEncryption:         true,
		InitialCWND:              10,
		MinRTO:                   200 * time.Millisecond,
		ReorderBudget:            256,
		ReplayWindowSize:         1024,
		PathValidationTimeout:    pathval.DefaultDeadline,
		Accept0RTTBeforeLiveness: false,
		GlobalRateLimitMessages:  limits.MessagesPerSecond * 50,
		GlobalRateLimitBytes:     limits.BytesPerSecond * 50,
		CleanupInterval:          30 * time.Second,
	}
}

// Option mutates a Config being built by NewConfig.
type Option func(*Config)

// WithBindAddr sets the local address a server listens on or a client
// binds its socket to.
func WithBindAddr(addr string) Option { return func(c *Config) { c.BindAddr = addr } }

// WithSessionTimeout overrides the idle timeout after which a
// connection with no inbound traffic is closed.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *Config) { c.SessionTimeout = d }
}

// WithHeartbeatInterval overrides how often an idle connection sends a
// heartbeat frame.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) { c.HeartbeatInterval = d }
}

// WithMaxStreams bounds how many concurrently open streams a
// connection will allow.
func WithMaxStreams(n int) Option { return func(c *Config) { c.MaxStreams = n } }

// WithRateLimits overrides the per-connection message and byte rate
// limits.
func WithRateLimits(messagesPerSecond, bytesPerSecond float64) Option {
	return func(c *Config) {
		c.RateLimitMessages = messagesPerSecond
		c.RateLimitBytes = bytesPerSecond
	}
}

// WithGlobalRateLimits overrides the server-wide message and byte rate
// limits shared across every connection.
func WithGlobalRateLimits(messagesPerSecond, bytesPerSecond float64) Option {
	return func(c *Config) {
		c.GlobalRateLimitMessages = messagesPerSecond
		c.GlobalRateLimitBytes = bytesPerSecond
	}
}

// WithCompression toggles flate compression of stream payloads.
func WithCompression(enabled bool) Option { return func(c *Config) { c.EnableCompression = enabled } }

// WithAccept0RTTBeforeLiveness toggles whether 0-RTT data is delivered
// before the peer's address is confirmed live.
func WithAccept0RTTBeforeLiveness(enabled bool) Option {
	return func(c *Config) { c.Accept0RTTBeforeLiveness = enabled }
}

// WithPathValidationTimeout overrides how long a path validation
// challenge waits for its response.
func WithPathValidationTimeout(d time.Duration) Option {
	return func(c *Config) { c.PathValidationTimeout = d }
}

// NewConfig builds a Config from DefaultConfig with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Validate reports whether cfg is internally consistent enough to build
// a connection or server from.
func (c Config) Validate() error {
	if !c.EnableEncryption {
		return trace.BadParameter("encryption cannot be disabled")
	}
	if c.MaxStreams <= 0 {
		return trace.BadParameter("max streams must be positive")
	}
	if c.SessionTimeout <= 0 {
		return trace.BadParameter("session timeout must be positive")
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.SessionTimeout {
		return trace.BadParameter("heartbeat interval must be positive and less than the session timeout")
	}
	return nil
}

// LoadConfig reads a YAML-encoded Config from path, filling any unset
// field from DefaultConfig first.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, trace.Wrap(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, trace.Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, trace.Wrap(err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return trace.Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return trace.Wrap(err)
	}
	return nil
}
