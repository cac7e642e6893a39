package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-coshell/internal/task"
	"github.com/arloliu/go-coshell/logger"
	"github.com/arloliu/go-coshell/reply"
)

// Server accepts client connections and serves one session at a time.
//
// Connections arriving while a session is active are answered with a failure and closed.
type Server struct {
	gw     *Gateway
	cfg    *Config
	ctx    context.Context
	logger logger.Logger

	listenerMutex sync.Mutex
	listener      net.Listener

	// acceptMgr runs the accept loop, sessionMgr the session loops.
	acceptMgr  *task.Manager
	sessionMgr *task.Manager

	connCount atomic.Int32
	sessions  *xsync.MapOf[uint64, *Session]
	conns     *xsync.MapOf[uint64, net.Conn]
	shutdown  atomic.Bool
}

// NewServer creates a server for gw, listening on the address of its configuration.
func NewServer(ctx context.Context, gw *Gateway) *Server {
	l := gw.Config().Logger().With("component", "server")

	return &Server{
		gw:         gw,
		cfg:        gw.Config(),
		ctx:        ctx,
		logger:     l,
		acceptMgr:  task.NewManager(ctx, l),
		sessionMgr: task.NewManager(ctx, l),
		sessions:   xsync.NewMapOf[uint64, *Session](),
		conns:      xsync.NewMapOf[uint64, net.Conn](),
	}
}

// Open starts listening and accepting connections.
func (srv *Server) Open() error {
	srv.listenerMutex.Lock()
	if srv.listener == nil {
		var lc net.ListenConfig
		listener, err := lc.Listen(srv.ctx, "tcp", srv.cfg.Address())
		if err != nil {
			srv.listenerMutex.Unlock()
			srv.logger.Error("failed to listen", "address", srv.cfg.Address(), "error", err)

			return err
		}
		srv.listener = listener
	}
	srv.listenerMutex.Unlock()

	srv.shutdown.Store(false)
	srv.logger.Info("listening", "address", srv.Addr().String())

	return srv.acceptMgr.Start("tryAcceptConn", srv.tryAcceptConn, nil)
}

// Addr returns the address the server listens on, or nil before Open.
func (srv *Server) Addr() net.Addr {
	srv.listenerMutex.Lock()
	defer srv.listenerMutex.Unlock()

	if srv.listener == nil {
		return nil
	}

	return srv.listener.Addr()
}

// ActiveSessions returns the number of sessions being served.
func (srv *Server) ActiveSessions() int {
	return srv.sessions.Size()
}

// Close stops accepting, ends every session and closes the listener.
func (srv *Server) Close() error {
	if !srv.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	srv.acceptMgr.Stop()
	err := srv.closeListener()
	srv.acceptMgr.Wait()

	srv.sessionMgr.Stop()
	srv.conns.Range(func(_ uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	srv.sessionMgr.Wait()

	srv.logger.Info("server closed")

	return err
}

func (srv *Server) tryAcceptConn() bool {
	tcpListener := srv.getTCPListener()
	// listener already closed, skip
	if tcpListener == nil {
		return false
	}

	conn, err := tcpListener.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			select {
			case <-srv.acceptMgr.Context().Done():
				return false
			default:
				return true // re-accept if context is not done
			}
		}

		if !srv.shutdown.Load() {
			srv.logger.Error("failed to accept connection", "error", err)
			return true
		}

		return false
	}

	if srv.connCount.Load() > 0 {
		srv.refuse(conn)
		return true
	}

	if err := srv.serve(conn); err != nil {
		srv.logger.Error("failed to start session", "remote_address", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
	}

	return true
}

func (srv *Server) refuse(conn net.Conn) {
	srv.gw.metrics.incRefusedConnCount()
	srv.logger.Warn("session already active, connection refused", "remote_address", conn.RemoteAddr().String())

	r := &connReplier{conn: conn, timeout: srv.cfg.WriteTimeout()}
	_ = r.Reply(reply.Fail("gateway busy"))
	_ = conn.Close()
}

func (srv *Server) serve(conn net.Conn) error {
	ctx := srv.sessionMgr.Context()
	s, err := srv.gw.NewSession(ctx, &connReplier{conn: conn, timeout: srv.cfg.WriteTimeout()})
	if err != nil {
		return err
	}

	srv.connCount.Add(1)
	srv.sessions.Store(s.ID(), s)
	srv.conns.Store(s.ID(), conn)
	s.logger.Info("session accepted", "remote_address", conn.RemoteAddr().String())

	cleanup := func() {
		_ = conn.Close()
		s.Close()
		srv.conns.Delete(s.ID())
		srv.sessions.Delete(s.ID())
		srv.connCount.Add(-1)
		s.logger.Info("session ended")
	}

	err = srv.sessionMgr.Start(fmt.Sprintf("session-%d", s.ID()), func() bool {
		srv.runSession(ctx, conn, s)
		return false
	}, cleanup)
	if err != nil {
		cleanup()
		return err
	}

	return nil
}

// runSession reads command lines until the peer leaves or sends quit.
func (srv *Server) runSession(ctx context.Context, conn net.Conn, s *Session) {
	// room for the line terminator
	reader := bufio.NewReaderSize(conn, srv.cfg.MaxLineLength()+2)

	for {
		line, err := readLine(reader)
		switch {
		case errors.Is(err, errLineTooLong):
			srv.gw.rejectMalformed(s, err)
			continue
		case err != nil:
			if !errors.Is(err, io.EOF) && !srv.shutdown.Load() {
				s.logger.Warn("session read failed", "error", err)
			}
			return
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		err = srv.gw.HandleLine(ctx, s, line)
		switch {
		case errors.Is(err, ErrQuit):
			return
		case err != nil:
			s.logger.Debug("session stopped", "error", err)
			return
		}
	}
}

// readLine returns the next line of r without its terminator. A line that does not fit the
// buffer of r is discarded up to its newline and reported as errLineTooLong.
func readLine(r *bufio.Reader) (string, error) {
	data, err := r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}

		return "", errLineTooLong
	}

	// the last line may lack its newline
	if err != nil && (!errors.Is(err, io.EOF) || len(data) == 0) {
		return "", err
	}

	return strings.TrimRight(string(data), "\r\n"), nil
}

func (srv *Server) getTCPListener() *net.TCPListener {
	srv.listenerMutex.Lock()
	defer srv.listenerMutex.Unlock()
	if srv.listener == nil {
		return nil
	}

	tcpListener, ok := srv.listener.(*net.TCPListener)
	if !ok {
		srv.logger.Error("failed to convert listener to TCPListener")
		return nil
	}

	err := tcpListener.SetDeadline(time.Now().Add(srv.cfg.AcceptTimeout()))
	if err != nil {
		srv.logger.Error("failed to set deadline for tcp listener", "error", err)
		return nil
	}

	return tcpListener
}

func (srv *Server) closeListener() error {
	srv.listenerMutex.Lock()
	defer srv.listenerMutex.Unlock()
	if srv.listener != nil {
		err := srv.listener.Close()
		srv.listener = nil

		return err
	}

	return nil
}
