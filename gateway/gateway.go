package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/command"
	"github.com/arloliu/go-coshell/internal/pool"
	"github.com/arloliu/go-coshell/logger"
	"github.com/arloliu/go-coshell/reply"
)

// Gateway translates text commands into bus operations.
//
// The bus device is shared by every session and replaced by each successful load#.
type Gateway struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *Config
	logger logger.Logger

	metrics    Metrics
	sessionSeq atomic.Uint64
	closed     atomic.Bool

	busMu  sync.RWMutex
	bus    bus.Bus
	loaded *command.LoadParams
	driver string
}

// New creates a gateway. ctx bounds the lifetime of the buses it opens.
func New(ctx context.Context, cfg *Config) *Gateway {
	g := &Gateway{cfg: cfg, logger: cfg.Logger()}
	g.ctx, g.cancel = context.WithCancel(ctx)

	return g
}

// Config returns the configuration of the gateway.
func (g *Gateway) Config() *Config {
	return g.cfg
}

// Metrics returns the metrics of the gateway.
func (g *Gateway) Metrics() *Metrics {
	return &g.metrics
}

// Bus returns the loaded bus and the name of its driver, or nil before the first load#.
func (g *Gateway) Bus() (bus.Bus, string) {
	g.busMu.RLock()
	defer g.busMu.RUnlock()

	return g.bus, g.driver
}

// NewSession creates a session replying through replier. ctx bounds the session.
func (g *Gateway) NewSession(ctx context.Context, replier Replier) (*Session, error) {
	if g.closed.Load() {
		return nil, ErrGatewayClosed
	}

	s, err := newSession(ctx, g.sessionSeq.Add(1), replier, g.cfg, &g.metrics)
	if err != nil {
		return nil, err
	}
	g.metrics.incSessionCount()

	return s, nil
}

// HandleLine parses line and dispatches it on s. A malformed line is answered with a failure.
func (g *Gateway) HandleLine(ctx context.Context, s *Session, line string) error {
	cmd, err := command.Parse(line)
	if err != nil {
		g.rejectMalformed(s, err)
		return nil
	}

	return g.Dispatch(ctx, s, cmd)
}

// rejectMalformed answers a line that is not a command.
func (g *Gateway) rejectMalformed(s *Session, err error) {
	g.metrics.incMalformedCount()
	s.logger.Warn("malformed command", "error", err)
	s.send(reply.Fail("wrong command sent"))
}

// Dispatch executes cmd on s and sends its reply.
//
// The session lock is held until the command has been replied to, completion of its bus
// operation included. Bus failures are reported through the reply, the returned error is
// ErrQuit for quit, or reports that the session or ctx ended.
func (g *Gateway) Dispatch(ctx context.Context, s *Session, cmd *command.Command) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ToIssuing()
	defer func() {
		// quit and canceled commands end without a reply
		if !s.state.ToIdle() {
			s.state.Set(IdleState)
		}
	}()

	g.metrics.incCommandCount()
	s.logger.Debug("dispatch command", "command", cmd.String())

	var b bus.Bus
	if cmd.Kind.IsBusTargeted() {
		b, _ = g.Bus()
		if b == nil {
			s.replyNow(reply.Fail("bus not loaded, send load# first"))
			return nil
		}
	}

	node := cmd.NodeID
	switch cmd.Kind {
	case command.StartNode:
		g.changeNodeState(s, b, node, bus.NMTStart, "Node %d started ok", "Unable to start node %d")
	case command.StopNode:
		g.changeNodeState(s, b, node, bus.NMTStop, "Node %d stopped ok", "Unable to stop node %d")
	case command.ResetNode:
		g.changeNodeState(s, b, node, bus.NMTResetNode, "Node %d reseted ok", "Unable to reset node %d")
	case command.Scan:
		g.changeNodeState(s, b, command.BroadcastNodeID, bus.NMTResetNode, "Node %d reseted ok", "Unable to reset node %d")

	case command.ReadObject:
		_, err := g.submit(ctx, s, newOperation(cmd, b, nil), reply.Fail("Unable to read node %d", node))
		return err
	case command.WriteObject:
		_, err := g.submit(ctx, s, newOperation(cmd, b, nil), reply.Fail("Unable to write node %d", node))
		return err
	case command.Info:
		if err := s.identity.Begin(node); err != nil {
			s.replyNow(reply.Fail("identity query already running for node %d", s.identity.NodeID()))
			return nil
		}
		accepted, err := g.submit(ctx, s, newOperation(cmd, b, &s.identity), reply.Fail("Unable to read node %d", node))
		if !accepted {
			s.identity.abort()
		}

		return err

	case command.Wait:
		s.replyNow(cmd.Raw)
		return pool.Sleep(ctx, time.Duration(cmd.Seconds)*time.Second)

	case command.LoadConfig:
		g.load(s, cmd.Load)
	case command.Help:
		s.logger.Info("help\n" + command.HelpMenu)
		s.replyNow(reply.OK("%s", command.HelpSummary()))
	case command.Quit:
		s.logger.Info("quit requested")
		return ErrQuit

	default:
		tag := cmd.Raw
		if len(tag) > command.TagLength {
			tag = tag[:command.TagLength]
		}
		s.replyNow(reply.Fail("unknown command %s", tag))
	}

	return nil
}

func (g *Gateway) changeNodeState(s *Session, b bus.Bus, node uint8, nmt bus.NMTCommand, okFormat string, failFormat string) {
	if err := b.ChangeNodeState(node, nmt); err != nil {
		g.metrics.incBusRejectCount()
		s.logger.Warn("bus rejected nmt request", "node_id", node, "nmt", nmt.String(), "error", err)
		s.replyNow(reply.Fail(failFormat, node))

		return
	}

	s.replyNow(reply.OK(okFormat, node))
}

// submit hands op to the correlator of s, which replies once the operation ends, and reports
// whether the correlator took op. When another operation is in flight failLine is sent instead.
func (g *Gateway) submit(ctx context.Context, s *Session, op *operation, failLine string) (bool, error) {
	err := s.correlator.Submit(ctx, op)
	if err == nil {
		return true, nil
	}

	s.logger.Warn("operation not submitted", "command", op.cmd.String(), "error", err)
	if errors.Is(err, ErrOperationInFlight) {
		s.replyNow(failLine)
		return false, nil
	}

	return false, err
}

// load replaces the bus with one opened from params.
func (g *Gateway) load(s *Session, params *command.LoadParams) {
	g.busMu.Lock()
	defer g.busMu.Unlock()

	if g.bus != nil {
		if err := g.bus.Close(); err != nil {
			s.logger.Warn("failed to close previous bus", "driver", g.driver, "error", err)
		}
		g.bus, g.loaded, g.driver = nil, nil, ""
	}

	b, driver, err := g.cfg.Registry().Open(g.ctx, bus.Config{
		LibraryPath: params.LibraryPath,
		Channel:     params.Channel,
		Baudrate:    params.Baudrate,
		NodeID:      params.NodeID,
		Master:      params.NodeType == command.MasterNode,
		Logger:      g.logger,
	}, g.cfg.DefaultDriver())
	if err != nil {
		s.logger.Error("failed to load bus", "library", params.LibraryPath, "channel", params.Channel, "error", err)
		s.replyNow(reply.Fail("Error creating node %d", params.NodeID))

		return
	}

	g.bus, g.loaded, g.driver = b, params, driver
	s.logger.Info("bus loaded", "driver", driver, "channel", params.Channel, "baudrate", params.Baudrate,
		"node_id", params.NodeID, "node_type", params.NodeType.String())
	s.replyNow(reply.OK("Node %d creation ok", params.NodeID))
}

// Close resets every node through a loaded master bus, then closes the bus.
func (g *Gateway) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer g.cancel()

	g.busMu.Lock()
	defer g.busMu.Unlock()

	if g.bus == nil {
		return nil
	}

	if g.loaded.NodeType == command.MasterNode {
		if err := g.bus.ChangeNodeState(command.BroadcastNodeID, bus.NMTResetNode); err != nil {
			g.logger.Warn("failed to reset nodes", "error", err)
		} else {
			g.logger.Info("all nodes reset")
		}
	}

	err := g.bus.Close()
	g.bus, g.loaded, g.driver = nil, nil, ""

	return err
}
