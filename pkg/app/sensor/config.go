package sensor

import (
	"errors"
	"time"

	"github.com/slimtoolkit/hooksensor/pkg/app/sensor/eventbuf"
	"github.com/slimtoolkit/hooksensor/pkg/hook"
	"github.com/slimtoolkit/hooksensor/pkg/ipc/channel"
	"github.com/slimtoolkit/hooksensor/pkg/target/xinput"
)

const (
	DefaultPollInterval       = 500 * time.Millisecond
	DefaultCallTimeout        = channel.DefaultCallTimeout
	DefaultConnectTimeout     = channel.DefaultConnectTimeout
	DefaultDelayDiscriminator = 0
	DefaultBufferCapacity     = eventbuf.DefaultCapacity
)

var (
	ErrNoChannel       = errors.New("no channel name")
	ErrBadPollInterval = errors.New("poll interval must be positive")
	ErrBadTimeout      = errors.New("timeouts must be positive")
	ErrBadDelay        = errors.New("injected delay must not be negative")
	ErrBadCapacity     = errors.New("buffer capacity must be positive")
	ErrBadTarget       = errors.New("hook target needs a module and an export")
)

// Config is captured once at startup and passed by value.
type Config struct {
	ChannelName    string
	PollInterval   time.Duration
	CallTimeout    time.Duration
	ConnectTimeout time.Duration
	// InjectedDelay is slept on calls matching DelayDiscriminator. Zero disables it.
	InjectedDelay      time.Duration
	DelayDiscriminator int
	BufferCapacity     int
	Target             hook.Target
}

type ConfigOption func(*Config)

func WithPollInterval(d time.Duration) ConfigOption {
	return func(c *Config) { c.PollInterval = d }
}

func WithCallTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.CallTimeout = d }
}

func WithConnectTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.ConnectTimeout = d }
}

func WithInjectedDelay(d time.Duration) ConfigOption {
	return func(c *Config) { c.InjectedDelay = d }
}

func WithDelayDiscriminator(value int) ConfigOption {
	return func(c *Config) { c.DelayDiscriminator = value }
}

func WithBufferCapacity(capacity int) ConfigOption {
	return func(c *Config) { c.BufferCapacity = capacity }
}

func WithTarget(target hook.Target) ConfigOption {
	return func(c *Config) { c.Target = target }
}

func NewConfig(channelName string, opts ...ConfigOption) Config {
	cfg := Config{
		ChannelName:        channelName,
		PollInterval:       DefaultPollInterval,
		CallTimeout:        DefaultCallTimeout,
		ConnectTimeout:     DefaultConnectTimeout,
		DelayDiscriminator: DefaultDelayDiscriminator,
		BufferCapacity:     DefaultBufferCapacity,
		Target:             xinput.Target,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

func (c Config) Validate() error {
	switch {
	case c.ChannelName == "":
		return ErrNoChannel
	case c.PollInterval <= 0:
		return ErrBadPollInterval
	case c.CallTimeout <= 0 || c.ConnectTimeout <= 0:
		return ErrBadTimeout
	case c.InjectedDelay < 0:
		return ErrBadDelay
	case c.BufferCapacity <= 0:
		return ErrBadCapacity
	case c.Target.IsZero():
		return ErrBadTarget
	}

	return nil
}
