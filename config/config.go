// Package config loads the bridge configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glimte/gdp-bridge/bridge"
	"github.com/glimte/gdp-bridge/internal/reliability"
)

// Transport names
const (
	TransportWebSocket = "websocket"
	TransportAMQP      = "amqp"
)

// Defaults
const (
	DefaultControlExchange      = "gdp.control"
	DefaultSendTimeout          = 5 * time.Second
	DefaultHousekeepingInterval = time.Second
	DefaultShutdownGrace        = 5 * time.Second
	DefaultReconnectInitial     = 500 * time.Millisecond
	DefaultReconnectMax         = 30 * time.Second
)

// Duration is a time.Duration written as a Go duration string ("1.5s")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the bridge configuration file
type Config struct {
	Remote               RemoteConfig    `yaml:"remote"`
	RemoteTopics         []TopicEntry    `yaml:"remote_topics"`
	LocalTopics          []TopicEntry    `yaml:"local_topics"`
	HousekeepingInterval Duration        `yaml:"housekeeping_interval"`
	ShutdownGrace        Duration        `yaml:"shutdown_grace"`
	Reconnect            ReconnectConfig `yaml:"reconnect"`
	Log                  LogConfig       `yaml:"log"`
	MetricsAddr          string          `yaml:"metrics_addr"`
	HealthAddr           string          `yaml:"health_addr"`
}

// RemoteConfig describes the control channel
type RemoteConfig struct {
	Transport       string   `yaml:"transport"`
	Address         string   `yaml:"address"`
	ControlExchange string   `yaml:"control_exchange"`
	SendTimeout     Duration `yaml:"send_timeout"`
}

// TopicEntry is one bridged topic. LocalName and RemoteName rename the
// topic on the far side and default to Name.
type TopicEntry struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	LocalName  string `yaml:"local_name,omitempty"`
	RemoteName string `yaml:"remote_name,omitempty"`
}

// ReconnectConfig controls reconnecting a lost control channel
type ReconnectConfig struct {
	Enabled         bool     `yaml:"enabled"`
	InitialInterval Duration `yaml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
	MaxAttempts     int      `yaml:"max_attempts"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, defaults and validates a YAML config file
func Load(path string) (*Config, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML strictly, applies defaults and validates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("config contains multiple documents or trailing content")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.Remote.Transport == "" {
		c.Remote.Transport = TransportWebSocket
	}
	if c.Remote.ControlExchange == "" {
		c.Remote.ControlExchange = DefaultControlExchange
	}
	if c.Remote.SendTimeout <= 0 {
		c.Remote.SendTimeout = Duration(DefaultSendTimeout)
	}
	if c.HousekeepingInterval <= 0 {
		c.HousekeepingInterval = Duration(DefaultHousekeepingInterval)
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = Duration(DefaultShutdownGrace)
	}
	if c.Reconnect.InitialInterval <= 0 {
		c.Reconnect.InitialInterval = Duration(DefaultReconnectInitial)
	}
	if c.Reconnect.MaxInterval <= 0 {
		c.Reconnect.MaxInterval = Duration(DefaultReconnectMax)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration, reporting every problem at once
func (c *Config) Validate() error {
	var errs []error

	switch c.Remote.Transport {
	case TransportWebSocket, TransportAMQP:
	default:
		errs = append(errs, fmt.Errorf("remote.transport must be %q or %q, got %q", TransportWebSocket, TransportAMQP, c.Remote.Transport))
	}
	if c.Remote.Address == "" {
		errs = append(errs, errors.New("remote.address cannot be empty"))
	}
	if len(c.RemoteTopics) == 0 && len(c.LocalTopics) == 0 {
		errs = append(errs, errors.New("at least one of remote_topics or local_topics is required"))
	}

	seen := make(map[string]bool)
	for _, route := range c.Routes() {
		if err := route.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[route.Name()] {
			errs = append(errs, fmt.Errorf("duplicate route %s", route.Name()))
		}
		seen[route.Name()] = true
	}

	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect.max_attempts cannot be negative"))
	}
	if c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
		errs = append(errs, errors.New("reconnect.max_interval must not be less than initial_interval"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Routes expands the topic lists into route configs, remote topics first
func (c *Config) Routes() []bridge.RouteConfig {
	routes := make([]bridge.RouteConfig, 0, len(c.RemoteTopics)+len(c.LocalTopics))
	for _, t := range c.RemoteTopics {
		local := t.LocalName
		if local == "" {
			local = t.Name
		}
		routes = append(routes, bridge.RemoteToLocal(t.Name, local, t.Type))
	}
	for _, t := range c.LocalTopics {
		remote := t.RemoteName
		if remote == "" {
			remote = t.Name
		}
		routes = append(routes, bridge.LocalToRemote(t.Name, remote, t.Type))
	}
	return routes
}

// ReconnectPolicy returns the backoff for a lost control channel, nil when
// reconnecting is disabled. Equal initial and max intervals give a constant
// delay.
func (c *Config) ReconnectPolicy() reliability.RetryPolicy {
	if !c.Reconnect.Enabled {
		return nil
	}
	if c.Reconnect.InitialInterval == c.Reconnect.MaxInterval {
		return reliability.NewFixedDelay(c.Reconnect.InitialInterval.Std(), c.Reconnect.MaxAttempts)
	}
	return reliability.NewExponentialBackoff(
		c.Reconnect.InitialInterval.Std(),
		c.Reconnect.MaxInterval.Std(),
		2.0,
		c.Reconnect.MaxAttempts,
	)
}

// ParseLevel maps a level name to a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", level, err)
	}
	return l, nil
}

// NewLogger builds the slog logger described by the log section
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
}
