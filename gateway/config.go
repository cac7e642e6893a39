package gateway

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/logger"
)

// DefaultPort is the well-known TCP port of the gateway.
const DefaultPort = 5000

// Config represents the configuration of a Gateway and its Server.
type Config struct {
	// address specifies the local address the server listens on. Empty means every interface.
	address string

	// port specifies the TCP port the server listens on, 0 picks a free port.
	// Defaults to 5000.
	port int

	// opTimeout bounds the wait for the completion of one bus operation. It should be between
	// 100 milliseconds and 120 seconds.
	// Defaults to 5 seconds.
	opTimeout time.Duration

	// settleDelay is the pause after each command of a batch file.
	// Defaults to 999999 microseconds.
	settleDelay time.Duration

	// writeTimeout bounds the write of one reply line. It should be between 1 and 30 seconds.
	// Defaults to 5 seconds.
	writeTimeout time.Duration

	// acceptTimeout defines the timeout for each iteration of accepting a connection.
	// It should between 100 milliseconds and 2 seconds.
	// Defaults to 1 second.
	acceptTimeout time.Duration

	// maxLineLength is the longest command line accepted from a client, in bytes.
	// Defaults to 200.
	maxLineLength int

	// completionQueueSize is the capacity of the queue between the bus callbacks and the
	// correlator of a session.
	// Defaults to 16.
	completionQueueSize int

	// defaultDriver is used when the load# library path names no registered driver.
	// Defaults to "virtual".
	defaultDriver string

	// registry holds the bus drivers available to load#.
	registry *bus.Registry

	logger logger.Logger
}

// NewConfig creates a gateway configuration with default values, then applies opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		port:                DefaultPort,
		opTimeout:           5 * time.Second,
		settleDelay:         999999 * time.Microsecond,
		writeTimeout:        5 * time.Second,
		acceptTimeout:       1 * time.Second,
		maxLineLength:       200,
		completionQueueSize: 16,
		defaultDriver:       "virtual",
		logger:              logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.registry == nil {
		cfg.registry = bus.NewRegistry()
	}

	return cfg, nil
}

// Address returns the listen address in host:port form.
func (cfg *Config) Address() string {
	return net.JoinHostPort(cfg.address, strconv.Itoa(cfg.port))
}

func (cfg *Config) Port() int {
	return cfg.port
}

func (cfg *Config) OperationTimeout() time.Duration {
	return cfg.opTimeout
}

func (cfg *Config) SettleDelay() time.Duration {
	return cfg.settleDelay
}

func (cfg *Config) WriteTimeout() time.Duration {
	return cfg.writeTimeout
}

func (cfg *Config) AcceptTimeout() time.Duration {
	return cfg.acceptTimeout
}

func (cfg *Config) MaxLineLength() int {
	return cfg.maxLineLength
}

func (cfg *Config) CompletionQueueSize() int {
	return cfg.completionQueueSize
}

func (cfg *Config) DefaultDriver() string {
	return cfg.defaultDriver
}

func (cfg *Config) Registry() *bus.Registry {
	return cfg.registry
}

func (cfg *Config) Logger() logger.Logger {
	return cfg.logger
}

// Option represents a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (f *optFunc) apply(cfg *Config) error {
	return f.applyFunc(cfg)
}

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithAddress sets the local address the server listens on.
func WithAddress(address string) Option {
	return newOptFunc("WithAddress", func(cfg *Config) error {
		address = strings.TrimSpace(address)
		if address != "" && address != "localhost" && net.ParseIP(address) == nil {
			return errors.New("invalid address")
		}
		cfg.address = address

		return nil
	})
}

// WithPort sets the TCP port the server listens on.
func WithPort(port int) Option {
	return newOptFunc("WithPort", func(cfg *Config) error {
		if port < 0 || port > 65535 {
			return errors.New("port is out of range [0, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithOperationTimeout sets the deadline of one bus operation.
func WithOperationTimeout(val time.Duration) Option {
	return newOptFunc("WithOperationTimeout", func(cfg *Config) error {
		if val < 100*time.Millisecond || val > 120*time.Second {
			return errors.New("operation timeout out of range [100ms, 120s]")
		}
		cfg.opTimeout = val

		return nil
	})
}

// WithSettleDelay sets the pause after each batch command.
func WithSettleDelay(val time.Duration) Option {
	return newOptFunc("WithSettleDelay", func(cfg *Config) error {
		if val < 0 || val > time.Minute {
			return errors.New("settle delay out of range [0, 60s]")
		}
		cfg.settleDelay = val

		return nil
	})
}

// WithWriteTimeout sets the deadline of one reply write.
func WithWriteTimeout(val time.Duration) Option {
	return newOptFunc("WithWriteTimeout", func(cfg *Config) error {
		if val < time.Second || val > 30*time.Second {
			return errors.New("write timeout out of range [1, 30]")
		}
		cfg.writeTimeout = val

		return nil
	})
}

// WithAcceptTimeout sets the timeout of each accept iteration. It bounds the time Close waits
// for the accept loop.
func WithAcceptTimeout(val time.Duration) Option {
	return newOptFunc("WithAcceptTimeout", func(cfg *Config) error {
		if val < 100*time.Millisecond || val > 2*time.Second {
			return errors.New("accept timeout out of range [100ms, 2s]")
		}
		cfg.acceptTimeout = val

		return nil
	})
}

// WithMaxLineLength sets the longest command line accepted from a client.
func WithMaxLineLength(val int) Option {
	return newOptFunc("WithMaxLineLength", func(cfg *Config) error {
		if val < 16 || val > 4096 {
			return errors.New("max line length out of range [16, 4096]")
		}
		cfg.maxLineLength = val

		return nil
	})
}

// WithCompletionQueueSize sets the capacity of the completion queue of each session.
func WithCompletionQueueSize(val int) Option {
	return newOptFunc("WithCompletionQueueSize", func(cfg *Config) error {
		if val < 1 {
			return errors.New("completion queue size must be positive")
		}
		cfg.completionQueueSize = val

		return nil
	})
}

// WithDefaultDriver sets the driver used when the load# library path names no registered driver.
func WithDefaultDriver(name string) Option {
	return newOptFunc("WithDefaultDriver", func(cfg *Config) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("empty default driver")
		}
		cfg.defaultDriver = name

		return nil
	})
}

// WithDriverRegistry sets the bus drivers available to load#.
func WithDriverRegistry(reg *bus.Registry) Option {
	return newOptFunc("WithDriverRegistry", func(cfg *Config) error {
		if reg == nil {
			return errors.New("nil driver registry")
		}
		cfg.registry = reg

		return nil
	})
}

// WithLogger sets the logger of the gateway.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("nil logger")
		}
		cfg.logger = l

		return nil
	})
}
