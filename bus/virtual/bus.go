// Package virtual implements an in-process CANopen network for the bus package.
//
// Nodes hold a small object dictionary with their identity objects. Object transfers are queued
// and completed by a poll loop after a configurable latency, so callbacks always run on the
// poll goroutine, never on the caller's.
package virtual

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/command"
	"github.com/arloliu/go-coshell/internal/queue"
	"github.com/arloliu/go-coshell/internal/task"
	"github.com/arloliu/go-coshell/logger"
)

// DriverName is the registry name of the virtual driver.
const DriverName = "virtual"

type request struct {
	write bool
	req   bus.ObjectRequest
	cb    bus.Callback
	due   time.Time
}

// Bus is a virtual CANopen network seen from the local node.
type Bus struct {
	cfg    bus.Config
	opts   *options
	logger logger.Logger

	nodes    *xsync.MapOf[uint8, *node]
	channels *xsync.MapOf[uint8, bus.Handle]
	requests *queue.Queue[*request]

	taskMgr *task.Manager
	closed  atomic.Bool
}

var _ bus.Bus = (*Bus)(nil)

// Opener returns a bus.Opener creating virtual networks configured by opts.
func Opener(opts ...Option) bus.Opener {
	return func(ctx context.Context, cfg bus.Config) (bus.Bus, error) {
		return Open(ctx, cfg, opts...)
	}
}

// Open creates a virtual network and starts its poll loop.
func Open(ctx context.Context, cfg bus.Config, opts ...Option) (*Bus, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	b := &Bus{
		cfg:      cfg,
		opts:     o,
		logger:   cfg.Logger,
		nodes:    xsync.NewMapOf[uint8, *node](),
		channels: xsync.NewMapOf[uint8, bus.Handle](),
		requests: queue.New[*request](16),
		taskMgr:  task.NewManager(ctx, cfg.Logger),
	}

	for id, identity := range o.nodes {
		b.nodes.Store(id, newNode(id, identity, o.objects[id], o.aborts[id], o.silent[id]))
	}

	if _, err := b.taskMgr.StartInterval("virtualPoll", b.poll, o.pollInterval); err != nil {
		return nil, err
	}

	b.logger.Info("virtual bus opened",
		"channel", cfg.Channel, "baudrate", cfg.Baudrate, "node_id", cfg.NodeID, "master", cfg.Master, "nodes", b.NodeIDs())

	return b, nil
}

// NodeIDs returns the sorted ids of the nodes of the network.
func (b *Bus) NodeIDs() []uint8 {
	ids := make([]uint8, 0, b.nodes.Size())
	b.nodes.Range(func(id uint8, _ *node) bool {
		ids = append(ids, id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// NodeState returns the NMT state of node.
func (b *Bus) NodeState(id uint8) (State, bool) {
	n, ok := b.nodes.Load(id)
	if !ok {
		return 0, false
	}

	return n.getState(), true
}

// Pending returns the number of queued transfers.
func (b *Bus) Pending() int {
	return b.requests.Length()
}

func (b *Bus) ChangeNodeState(id uint8, cmd bus.NMTCommand) error {
	if b.closed.Load() {
		return bus.ErrClosed
	}
	if !b.cfg.Master {
		return bus.ErrNotMaster
	}
	if id > command.MaxNodeID {
		return fmt.Errorf("%w: %#02x", bus.ErrInvalidNode, id)
	}
	if b.opts.rejectNMT {
		return bus.ErrBusy
	}

	b.logger.Debug("nmt", "node_id", id, "command", cmd)

	if id == command.BroadcastNodeID {
		b.nodes.Range(func(_ uint8, n *node) bool {
			b.applyNMT(n, cmd)
			return true
		})

		return nil
	}

	if n, ok := b.nodes.Load(id); ok {
		b.applyNMT(n, cmd)
	}

	return nil
}

func (b *Bus) applyNMT(n *node, cmd bus.NMTCommand) {
	if n.applyNMT(cmd) {
		b.logger.Info("slave boot up", "node_id", n.id)
	}
}

func (b *Bus) ReadObject(req bus.ObjectRequest, cb bus.Callback) error {
	return b.enqueue(false, req, cb)
}

func (b *Bus) WriteObject(req bus.ObjectRequest, cb bus.Callback) error {
	if req.Size == 0 || req.Size > command.MaxDataSize {
		return fmt.Errorf("%w: write of %d bytes", bus.ErrUnsupported, req.Size)
	}

	return b.enqueue(true, req, cb)
}

func (b *Bus) enqueue(write bool, req bus.ObjectRequest, cb bus.Callback) error {
	if b.closed.Load() {
		return bus.ErrClosed
	}
	if err := checkNode(req.NodeID); err != nil {
		return err
	}
	if cb == nil {
		return fmt.Errorf("nil callback for %s", req)
	}

	if _, busy := b.channels.LoadOrStore(req.NodeID, req.Handle); busy {
		return fmt.Errorf("%w: node %#02x", bus.ErrChannelBusy, req.NodeID)
	}

	b.requests.Enqueue(&request{write: write, req: req, cb: cb, due: time.Now().Add(b.opts.latency)})

	return nil
}

func (b *Bus) CloseTransfer(id uint8) error {
	if b.closed.Load() {
		return bus.ErrClosed
	}
	b.channels.Delete(id)

	return nil
}

func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.taskMgr.Stop()
	b.taskMgr.Wait()
	b.requests.Reset()

	b.logger.Info("virtual bus closed", "channel", b.cfg.Channel)

	return nil
}

// poll completes every due request, in order.
func (b *Bus) poll() bool {
	now := time.Now()
	for {
		r, ok := b.requests.DequeueIf(func(r *request) bool { return !r.due.After(now) })
		if !ok {
			return true
		}
		b.process(r)
	}
}

func (b *Bus) process(r *request) {
	// the transfer was released, or replaced, before completing
	if h, ok := b.channels.Load(r.req.NodeID); !ok || h != r.req.Handle {
		b.logger.Debug("drop closed transfer", "handle", r.req.Handle, "request", r.req)
		return
	}

	c := bus.Completion{
		Handle:   r.req.Handle,
		NodeID:   r.req.NodeID,
		Index:    r.req.Index,
		SubIndex: r.req.SubIndex,
	}

	n, ok := b.nodes.Load(r.req.NodeID)
	switch {
	case !ok:
		c.AbortCode = bus.AbortTimeout
	case n.silent:
		b.logger.Debug("silent node drops request", "request", r.req)
		return
	case r.write:
		c.AbortCode = n.write(objectKey{r.req.Index, r.req.SubIndex}, r.req.Size, r.req.Value)
	default:
		c.Value, c.Size, c.AbortCode = n.read(objectKey{r.req.Index, r.req.SubIndex})
	}

	b.logger.Debug("sdo completed", "handle", c.Handle, "request", r.req, "write", r.write, "abort_code", c.AbortCode)
	r.cb(c)
}
