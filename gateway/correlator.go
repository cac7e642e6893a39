package gateway

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/command"
	"github.com/arloliu/go-coshell/internal/pool"
	"github.com/arloliu/go-coshell/internal/task"
	"github.com/arloliu/go-coshell/logger"
	"github.com/arloliu/go-coshell/reply"
)

// operation is one bus command waiting for its completion.
type operation struct {
	cmd      *command.Command
	bus      bus.Bus
	identity *IdentityQuery
	done     chan struct{}

	// owned by the consumer goroutine
	handle bus.Handle
}

func newOperation(cmd *command.Command, b bus.Bus, identity *IdentityQuery) *operation {
	return &operation{cmd: cmd, bus: b, identity: identity, done: make(chan struct{})}
}

// Correlator matches the completions of a bus with the single operation in flight of a session.
//
// Bus callbacks only enqueue their completion; one consumer goroutine owns the operation in
// flight, its handle and its deadline, and sends exactly one reply per operation.
type Correlator struct {
	ctx     context.Context
	timeout time.Duration
	send    func(line string)
	state   *AtomicOpState
	metrics *Metrics
	logger  logger.Logger

	inflight    atomic.Pointer[operation]
	submits     chan *operation
	completions chan bus.Completion

	// owned by the consumer goroutine
	current *operation
	timer   *time.Timer
}

// newCorrelator creates a correlator and starts its consumer on taskMgr.
func newCorrelator(taskMgr *task.Manager, cfg *Config, send func(string), state *AtomicOpState, metrics *Metrics, l logger.Logger) (*Correlator, error) {
	c := &Correlator{
		ctx:         taskMgr.Context(),
		timeout:     cfg.OperationTimeout(),
		send:        send,
		state:       state,
		metrics:     metrics,
		logger:      l,
		submits:     make(chan *operation),
		completions: make(chan bus.Completion, cfg.CompletionQueueSize()),
	}

	if err := taskMgr.Start("correlator", c.consume, c.abandon); err != nil {
		return nil, err
	}

	return c, nil
}

// InFlight reports whether an operation is waiting for its completion.
func (c *Correlator) InFlight() bool {
	return c.inflight.Load() != nil
}

// Submit hands op to the consumer and blocks until it has been replied to.
// A second operation submitted while one is in flight is rejected with ErrOperationInFlight.
func (c *Correlator) Submit(ctx context.Context, op *operation) error {
	if !c.inflight.CompareAndSwap(nil, op) {
		return ErrOperationInFlight
	}

	select {
	case c.submits <- op:
	case <-ctx.Done():
		c.inflight.Store(nil)
		return ctx.Err()
	case <-c.ctx.Done():
		c.inflight.Store(nil)
		return ErrSessionClosed
	}

	<-op.done

	return nil
}

// onCompletion is the bus callback. It never blocks the driver.
func (c *Correlator) onCompletion(comp bus.Completion) {
	select {
	case c.completions <- comp:
	default:
		c.metrics.incDroppedCompletionCount()
		c.logger.Error("completion queue full, completion dropped", "handle", comp.Handle, "node_id", comp.NodeID)
	}
}

func (c *Correlator) timerC() <-chan time.Time {
	if c.timer == nil {
		return nil
	}

	return c.timer.C
}

func (c *Correlator) consume() bool {
	select {
	case <-c.ctx.Done():
		return false
	case op := <-c.submits:
		c.issue(op)
	case comp := <-c.completions:
		c.complete(comp)
	case <-c.timerC():
		pool.PutTimer(c.timer)
		c.timer = nil
		c.expire()
	}

	return true
}

func (c *Correlator) issue(op *operation) {
	c.current = op
	c.metrics.incInflightGauge()
	c.state.ToAwaitingCompletion()

	node := op.cmd.NodeID
	switch op.cmd.Kind {
	case command.ReadObject:
		err := c.startTransfer(op, false, bus.ObjectRequest{NodeID: node, Index: op.cmd.Index, SubIndex: op.cmd.SubIndex})
		if err != nil {
			c.reject(op, err)
			c.finish(reply.Fail("Unable to read node %d", node))
		}

	case command.WriteObject:
		err := c.startTransfer(op, true, bus.ObjectRequest{
			NodeID: node, Index: op.cmd.Index, SubIndex: op.cmd.SubIndex, Size: op.cmd.Size, Value: op.cmd.Data,
		})
		if err != nil {
			c.reject(op, err)
			c.finish(reply.Fail("Unable to write node %d", node))
		}

	case command.Info:
		c.issueIdentityStep(op)

	default:
		c.finish(reply.Fail("wrong command sent"))
	}
}

func (c *Correlator) reject(op *operation, err error) {
	c.metrics.incBusRejectCount()
	c.logger.Warn("bus rejected request", "command", op.cmd.String(), "error", err)
}

func (c *Correlator) startTransfer(op *operation, write bool, req bus.ObjectRequest) error {
	req.Handle = bus.NewHandle()

	var err error
	if write {
		err = op.bus.WriteObject(req, c.onCompletion)
	} else {
		err = op.bus.ReadObject(req, c.onCompletion)
	}
	if err != nil {
		return err
	}

	op.handle = req.Handle
	c.timer = pool.GetTimer(c.timeout)

	return nil
}

// issueIdentityStep reads the object of the current step. A rejected read counts as a failed
// step and the query moves on.
func (c *Correlator) issueIdentityStep(op *operation) {
	for {
		step := op.identity.current()
		err := c.startTransfer(op, false, bus.ObjectRequest{NodeID: op.cmd.NodeID, Index: step.index, SubIndex: step.subIndex})
		if err == nil {
			return
		}

		c.reject(op, err)
		if !c.recordIdentityStep(op, false, 0) {
			c.finish(op.identity.Result())
			return
		}
	}
}

func (c *Correlator) recordIdentityStep(op *operation, ok bool, value uint32) bool {
	step := op.identity.current()
	if ok {
		c.logger.Info(fmt.Sprintf("%s: %x", step.label, value), "node_id", op.cmd.NodeID)
	} else {
		c.logger.Warn(step.label+" read failed", "node_id", op.cmd.NodeID)
	}

	return op.identity.Record(ok, value)
}

func (c *Correlator) releaseTransfer(op *operation) {
	op.handle = 0
	if err := op.bus.CloseTransfer(op.cmd.NodeID); err != nil {
		c.logger.Warn("failed to close transfer", "node_id", op.cmd.NodeID, "error", err)
	}
}

func (c *Correlator) stopTimer() {
	if c.timer != nil {
		pool.PutTimer(c.timer)
		c.timer = nil
	}
}

func (c *Correlator) complete(comp bus.Completion) {
	op := c.current
	if op == nil || op.handle == 0 || comp.Handle != op.handle {
		c.metrics.incStaleCompletionCount()
		c.logger.Warn("stale completion", "handle", comp.Handle, "node_id", comp.NodeID)

		return
	}

	c.stopTimer()
	c.releaseTransfer(op)

	if comp.AbortCode != 0 {
		c.metrics.incBusAbortCount()
		c.logger.Debug("transfer aborted", "command", op.cmd.String(), "abort_code", comp.AbortCode.String())
	}

	node := op.cmd.NodeID
	switch op.cmd.Kind {
	case command.ReadObject:
		switch {
		case comp.OK():
			c.finish(reply.OK("ssdo node %d ok with result: %x", node, comp.Value))
		case comp.AbortCode != 0:
			c.finish(reply.Fail("ssdo node %d with abort code: %x", node, uint32(comp.AbortCode)))
		default:
			c.logger.Warn("read failed", "command", op.cmd.String(), "error", comp.Err)
			c.finish(reply.Fail("Unable to read node %d", node))
		}

	case command.WriteObject:
		switch {
		case comp.OK():
			c.finish(reply.OK("wsdo node %d ok", node))
		case comp.AbortCode != 0:
			c.finish(reply.Fail("wsdo node %d with abort code: %x", node, uint32(comp.AbortCode)))
		default:
			c.logger.Warn("write failed", "command", op.cmd.String(), "error", comp.Err)
			c.finish(reply.Fail("Unable to write node %d", node))
		}

	case command.Info:
		if c.recordIdentityStep(op, comp.OK(), uint32(comp.Value)) {
			c.issueIdentityStep(op)
			return
		}
		c.finish(op.identity.Result())
	}
}

func (c *Correlator) expire() {
	op := c.current
	if op == nil {
		return
	}

	c.metrics.incTimeoutCount()
	c.logger.Warn("bus operation timed out", "command", op.cmd.String(), "timeout", c.timeout)
	c.releaseTransfer(op)

	node := op.cmd.NodeID
	switch op.cmd.Kind {
	case command.ReadObject:
		c.finish(reply.Fail("ssdo node %d timed out", node))
	case command.WriteObject:
		c.finish(reply.Fail("wsdo node %d timed out", node))
	case command.Info:
		if c.recordIdentityStep(op, false, 0) {
			c.issueIdentityStep(op)
			return
		}
		c.finish(op.identity.Result())
	}
}

// finish sends the single reply of the current operation and releases it.
func (c *Correlator) finish(line string) {
	op := c.current
	c.stopTimer()
	c.send(line)
	c.state.ToReplied()

	c.current = nil
	c.metrics.decInflightGauge()
	c.inflight.Store(nil)
	close(op.done)
}

// abandon releases the operation in flight without a reply when the consumer exits.
func (c *Correlator) abandon() {
	op := c.current
	if op == nil {
		return
	}

	c.logger.Warn("operation abandoned", "command", op.cmd.String())
	c.stopTimer()
	if op.handle != 0 {
		c.releaseTransfer(op)
	}
	if op.identity != nil {
		op.identity.abort()
	}

	c.current = nil
	c.metrics.decInflightGauge()
	c.inflight.Store(nil)
	close(op.done)
}
