package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-coshell/internal/task"
	"github.com/arloliu/go-coshell/logger"
	"github.com/arloliu/go-coshell/reply"
)

// Replier sends the reply lines of a session to its peer.
type Replier interface {
	Reply(line string) error
}

// Session is one client of the gateway.
//
// A session executes one command at a time: its lock is held from the parse of a command until
// the reply of that command, bus completion included. The operation in flight and the identity
// query cursor belong to the session.
type Session struct {
	id      uint64
	mu      sync.Mutex
	replier Replier
	metrics *Metrics
	logger  logger.Logger

	taskMgr    *task.Manager
	correlator *Correlator
	identity   IdentityQuery
	state      AtomicOpState
	closed     atomic.Bool
}

func newSession(ctx context.Context, id uint64, replier Replier, cfg *Config, metrics *Metrics) (*Session, error) {
	l := cfg.Logger().With("session", id)
	s := &Session{
		id:      id,
		replier: replier,
		metrics: metrics,
		logger:  l,
		taskMgr: task.NewManager(ctx, l),
	}

	correlator, err := newCorrelator(s.taskMgr, cfg, s.send, &s.state, metrics, l)
	if err != nil {
		return nil, fmt.Errorf("start session %d: %w", id, err)
	}
	s.correlator = correlator

	return s, nil
}

// ID returns the id of the session.
func (s *Session) ID() uint64 {
	return s.id
}

// State returns the position of the session in the lifecycle of its current command.
func (s *Session) State() OpState {
	return s.state.Get()
}

// Identity returns the identity query cursor of the session.
func (s *Session) Identity() *IdentityQuery {
	return &s.identity
}

// InFlight reports whether a bus operation of the session waits for its completion.
func (s *Session) InFlight() bool {
	return s.correlator.InFlight()
}

// Close stops the session. An operation in flight is abandoned without a reply.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.taskMgr.Stop()
	s.taskMgr.Wait()
	s.logger.Debug("session closed")
}

// send writes one reply line to the peer.
func (s *Session) send(line string) {
	if reply.ExceedsBudget(line) {
		s.logger.Warn("reply exceeds line budget", "length", len(line), "budget", reply.MaxLength)
	}

	s.metrics.incReplyCount(reply.IsOK(line))
	s.logger.Debug("reply", "line", line)

	if err := s.replier.Reply(line); err != nil {
		s.logger.Warn("failed to send reply", "line", line, "error", err)
	}
}

// replyNow sends the reply of a command that needs no bus completion.
func (s *Session) replyNow(line string) {
	s.send(line)
	s.state.ToReplied()
}

// connReplier writes newline terminated replies to a connection.
type connReplier struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

func (r *connReplier) Reply(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.conn.SetWriteDeadline(time.Now().Add(r.timeout)); err != nil {
		return err
	}
	_, err := io.WriteString(r.conn, line+"\n")

	return err
}

// logReplier logs replies of a session without peer, such as the batch runner.
type logReplier struct {
	logger logger.Logger
}

func (r *logReplier) Reply(line string) error {
	if reply.IsOK(line) {
		r.logger.Info("reply", "line", line)
	} else {
		r.logger.Warn("reply", "line", line)
	}

	return nil
}
