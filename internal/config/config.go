// Package config loads and persists the device configuration: the server
// URL, the bearer token, the device id and the channel budgets.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neboloop/clawreach/internal/stream"
)

// Length bounds of the provisioned strings.
const (
	MaxURLLen   = 255
	MaxTokenLen = 127
)

var ErrInvalidConfig = errors.New("invalid config")

// Channel is the YAML form of stream.ChannelConfig.
type Channel struct {
	MaxPayload     int           `yaml:"max_payload"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

func channelFrom(c stream.ChannelConfig) Channel {
	return Channel{MaxPayload: c.MaxPayload, AcquireTimeout: c.AcquireTimeout, WriteTimeout: c.WriteTimeout}
}

func (c Channel) stream() stream.ChannelConfig {
	return stream.ChannelConfig{MaxPayload: c.MaxPayload, AcquireTimeout: c.AcquireTimeout, WriteTimeout: c.WriteTimeout}
}

// Config is the content of config.yaml.
type Config struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token,omitempty"`
	DeviceID  string `yaml:"device_id"`

	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingPeriod        time.Duration `yaml:"ping_period"`

	Audio Channel `yaml:"audio"`
	Video Channel `yaml:"video"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ReconnectInterval: stream.DefaultReconnectInterval,
		PollInterval:      stream.DefaultPollInterval,
		HandshakeTimeout:  stream.DefaultHandshakeTimeout,
		PingPeriod:        stream.DefaultPingPeriod,
		Audio:             channelFrom(stream.DefaultAudioChannel),
		Video:             channelFrom(stream.DefaultVideoChannel),
	}
}

// LoadFromBytes parses YAML over the defaults, expanding environment
// variables first.
func LoadFromBytes(data []byte) (*Config, error) {
	c := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks bounds. An empty server URL is valid and means
// "not provisioned yet".
func (c *Config) Validate() error {
	if err := validateURL(c.ServerURL); err != nil {
		return err
	}
	if len(c.Token) > MaxTokenLen {
		return fmt.Errorf("%w: token longer than %d bytes", ErrInvalidConfig, MaxTokenLen)
	}
	if c.ReconnectInterval < 0 || c.PollInterval < 0 || c.HandshakeTimeout < 0 || c.PingPeriod < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidConfig)
	}
	if err := c.Audio.validate("audio", stream.MaxAudioPayload); err != nil {
		return err
	}
	return c.Video.validate("video", stream.MaxVideoPayload)
}

func (c Channel) validate(name string, limit int) error {
	if c.MaxPayload <= 0 || c.MaxPayload > limit {
		return fmt.Errorf("%w: %s max_payload must be in 1..%d", ErrInvalidConfig, name, limit)
	}
	if c.AcquireTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: %s timeouts must not be negative", ErrInvalidConfig, name)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > MaxURLLen {
		return fmt.Errorf("%w: server URL longer than %d bytes", ErrInvalidConfig, MaxURLLen)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: server URL: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: server URL scheme must be ws or wss, got %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: server URL has no host", ErrInvalidConfig)
	}
	return nil
}

// ApplyEnv overrides the server settings from CLAWREACH_SERVER_URL and
// CLAWREACH_SERVER_TOKEN.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CLAWREACH_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("CLAWREACH_SERVER_TOKEN"); v != "" {
		c.Token = v
	}
}

// Stream converts c into session parameters.
func (c *Config) Stream() stream.Config {
	return stream.Config{
		URL:               c.ServerURL,
		Token:             c.Token,
		DeviceID:          c.DeviceID,
		Audio:             c.Audio.stream(),
		Video:             c.Video.stream(),
		ReconnectInterval: c.ReconnectInterval,
		PollInterval:      c.PollInterval,
	}
}

// TransportOptions returns the WebSocket keepalive and handshake settings.
func (c *Config) TransportOptions() []stream.WSOption {
	return []stream.WSOption{
		stream.WithHandshakeTimeout(c.HandshakeTimeout),
		stream.WithPingPeriod(c.PingPeriod),
	}
}

// SameConnection reports whether c and o would open the same connection.
func (c *Config) SameConnection(o *Config) bool {
	return c.ServerURL == o.ServerURL && c.Token == o.Token &&
		c.DeviceID == o.DeviceID && c.ReconnectInterval == o.ReconnectInterval
}
