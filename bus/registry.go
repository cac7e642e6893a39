package bus

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-coshell/logger"
)

// Registry maps driver names to openers.
type Registry struct {
	drivers *xsync.MapOf[string, Opener]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: xsync.NewMapOf[string, Opener]()}
}

// Register registers open under name, replacing any previous opener of that name.
func (r *Registry) Register(name string, open Opener) {
	r.drivers.Store(strings.ToLower(name), open)
}

// Drivers returns the sorted names of the registered drivers.
func (r *Registry) Drivers() []string {
	names := make([]string, 0, r.drivers.Size())
	r.drivers.Range(func(name string, _ Opener) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)

	return names
}

// Open opens a bus with the driver selected by cfg.LibraryPath, falling back to defaultDriver
// when no driver of that name is registered. It returns the name of the driver used.
func (r *Registry) Open(ctx context.Context, cfg Config, defaultDriver string) (Bus, string, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	name := DriverName(cfg.LibraryPath)
	open, ok := r.drivers.Load(name)
	if !ok {
		cfg.Logger.Debug("driver not registered, using default", "requested", name, "default", defaultDriver)
		name = strings.ToLower(defaultDriver)
		open, ok = r.drivers.Load(name)
		if !ok {
			return nil, name, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.LibraryPath)
		}
	}

	cfg.Logger = cfg.Logger.With("driver", name)
	b, err := open(ctx, cfg)
	if err != nil {
		return nil, name, fmt.Errorf("open %s bus on %s: %w", name, cfg.Channel, err)
	}

	return b, name, nil
}

// DriverName derives a driver name from a load# library path.
//
//	"libcanfestival_can_virtual.so" -> "virtual"
//	"/usr/lib/libslcan.so"          -> "slcan"
//	"slcan"                         -> "slcan"
func DriverName(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "lib")
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		name = name[i+1:]
	}

	return strings.ToLower(name)
}
