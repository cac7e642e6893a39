package gateway

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadEnvOptions.
const (
	EnvAddress       = "COSHELL_ADDRESS"
	EnvPort          = "COSHELL_PORT"
	EnvOpTimeout     = "COSHELL_OP_TIMEOUT"
	EnvSettleDelay   = "COSHELL_SETTLE_DELAY"
	EnvDefaultDriver = "COSHELL_DEFAULT_DRIVER"
)

// LoadEnvOptions loads the given .env files, or ./.env when none is given, into the process
// environment and returns the options set by the COSHELL_* variables. Variables already set in
// the environment win over the files. A missing file is not an error.
//
// Durations use time.ParseDuration syntax, e.g. COSHELL_OP_TIMEOUT=2s.
func LoadEnvOptions(files ...string) ([]Option, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	var opts []Option

	if v, ok := os.LookupEnv(EnvAddress); ok {
		opts = append(opts, WithAddress(v))
	}

	if v, ok := os.LookupEnv(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvPort, err)
		}
		opts = append(opts, WithPort(port))
	}

	for _, d := range []struct {
		key string
		opt func(time.Duration) Option
	}{
		{EnvOpTimeout, WithOperationTimeout},
		{EnvSettleDelay, WithSettleDelay},
	} {
		v, ok := os.LookupEnv(d.key)
		if !ok {
			continue
		}
		val, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		opts = append(opts, d.opt(val))
	}

	if v, ok := os.LookupEnv(EnvDefaultDriver); ok {
		opts = append(opts, WithDefaultDriver(v))
	}

	return opts, nil
}
