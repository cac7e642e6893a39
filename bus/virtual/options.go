package virtual

import (
	"fmt"
	"time"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/command"
)

// Identity is the content of the identity objects 0x1000:00 and 0x1018:01..03 of a node.
type Identity struct {
	DeviceType  uint32
	VendorID    uint32
	ProductCode uint32
	Revision    uint32
}

type objectKey struct {
	index    uint16
	subIndex uint8
}

type objectDef struct {
	key      objectKey
	size     uint8
	value    uint64
	readOnly bool
}

type options struct {
	nodes        map[uint8]Identity
	objects      map[uint8][]objectDef
	aborts       map[uint8]map[objectKey]bus.AbortCode
	silent       map[uint8]bool
	latency      time.Duration
	pollInterval time.Duration
	rejectNMT    bool
}

func defaultOptions() *options {
	return &options{
		nodes:        make(map[uint8]Identity),
		objects:      make(map[uint8][]objectDef),
		aborts:       make(map[uint8]map[objectKey]bus.AbortCode),
		silent:       make(map[uint8]bool),
		latency:      10 * time.Millisecond,
		pollInterval: 2 * time.Millisecond,
	}
}

// Option configures the virtual network.
type Option interface {
	apply(*options) error
}

type optFunc struct {
	name string
	f    func(*options) error
}

func (o *optFunc) apply(opts *options) error {
	if err := o.f(opts); err != nil {
		return fmt.Errorf("virtual bus option %s: %w", o.name, err)
	}

	return nil
}

func newOptFunc(name string, f func(*options) error) *optFunc {
	return &optFunc{name: name, f: f}
}

func checkNode(id uint8) error {
	if id == command.BroadcastNodeID || id > command.MaxNodeID {
		return fmt.Errorf("%w: %#02x", bus.ErrInvalidNode, id)
	}

	return nil
}

// WithNode adds a node to the network.
func WithNode(id uint8, identity Identity) Option {
	return newOptFunc("WithNode", func(opts *options) error {
		if err := checkNode(id); err != nil {
			return err
		}
		opts.nodes[id] = identity

		return nil
	})
}

// WithObject adds or overrides an object of the dictionary of node.
// size is the object width in bytes, between 1 and 8.
func WithObject(node uint8, index uint16, subIndex uint8, size uint8, value uint64, readOnly bool) Option {
	return newOptFunc("WithObject", func(opts *options) error {
		if err := checkNode(node); err != nil {
			return err
		}
		if size == 0 || size > command.MaxDataSize {
			return fmt.Errorf("object size %d out of range [1, %d]", size, command.MaxDataSize)
		}
		opts.objects[node] = append(opts.objects[node], objectDef{
			key:      objectKey{index: index, subIndex: subIndex},
			size:     size,
			value:    value,
			readOnly: readOnly,
		})

		return nil
	})
}

// WithAbort makes every transfer of the object abort with code.
func WithAbort(node uint8, index uint16, subIndex uint8, code bus.AbortCode) Option {
	return newOptFunc("WithAbort", func(opts *options) error {
		if code == 0 {
			return fmt.Errorf("abort code must not be zero")
		}
		if opts.aborts[node] == nil {
			opts.aborts[node] = make(map[objectKey]bus.AbortCode)
		}
		opts.aborts[node][objectKey{index: index, subIndex: subIndex}] = code

		return nil
	})
}

// WithSilentNode makes node drop every SDO request without answering.
func WithSilentNode(node uint8) Option {
	return newOptFunc("WithSilentNode", func(opts *options) error {
		opts.silent[node] = true
		return nil
	})
}

// WithLatency sets the delay between a request and its completion. Defaults to 10ms.
func WithLatency(d time.Duration) Option {
	return newOptFunc("WithLatency", func(opts *options) error {
		if d < 0 {
			return fmt.Errorf("negative latency %v", d)
		}
		opts.latency = d

		return nil
	})
}

// WithPollInterval sets the period of the loop delivering completions. Defaults to 2ms.
func WithPollInterval(d time.Duration) Option {
	return newOptFunc("WithPollInterval", func(opts *options) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive, got %v", d)
		}
		opts.pollInterval = d

		return nil
	})
}

// WithRejectNMT makes the stack reject every NMT request with bus.ErrBusy.
func WithRejectNMT(reject bool) Option {
	return newOptFunc("WithRejectNMT", func(opts *options) error {
		opts.rejectNMT = reject
		return nil
	})
}
