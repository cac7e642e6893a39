// Package task manages the named goroutines of the gateway: the accept loop, session command
// loops, correlator consumers, and the poll or receive loops of the bus drivers.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-coshell/logger"
)

// ErrStopped is returned when a task is started on a stopped manager.
var ErrStopped = errors.New("task manager already stopped")

// Func is the body of a looping task.
// It should return true to run again, or false to end the goroutine.
type Func func() bool

// CancelFunc is called once when the goroutine of a task exits.
type CancelFunc func()

// Manager manages the lifecycle of goroutines.
//
// Tasks loop until their Func returns false or the manager context is canceled.
// Stop cancels the context; Wait blocks until every goroutine has exited and re-arms the
// manager so it can be started again.
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("acceptTask", s.acceptConn, nil)
//	...
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map     // map[string]*time.Ticker
	mu      sync.RWMutex // protect ctx and cancel
	taskMu  sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a new Manager using ctx as the parent context.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context canceled by Stop.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a looping task. cancelFunc, if not nil, runs when the goroutine exits.
func (mgr *Manager) Start(name string, taskFunc Func, cancelFunc CancelFunc) error {
	mgr.logger.Debug("start task", "name", name)

	starter, err := mgr.newStarter(name)
	if err != nil {
		return err
	}

	starter.run(func() {
		if cancelFunc != nil {
			defer cancelFunc()
		}
		mgr.runLoop(name, taskFunc)
	})

	return starter.waitForStart()
}

// StartInterval starts a task executed every interval until it returns false.
// The returned ticker can be used to change the interval.
func (mgr *Manager) StartInterval(name string, taskFunc Func, interval time.Duration) (*time.Ticker, error) {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval)

	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval: %v", interval)
	}

	ticker := time.NewTicker(interval)
	if _, loaded := mgr.tickers.LoadOrStore(name, ticker); loaded {
		ticker.Stop()
		return nil, fmt.Errorf("interval task %s already exists", name)
	}

	cleanup := func() {
		ticker.Stop()
		mgr.tickers.Delete(name)
	}

	starter, err := mgr.newStarter(name)
	if err != nil {
		cleanup()
		return nil, err
	}

	starter.run(func() {
		defer cleanup()

		for {
			ctx := mgr.Context()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecover(name, taskFunc) {
					return
				}
			}
		}
	})

	if err := starter.waitForStart(); err != nil {
		cleanup()
		return nil, err
	}

	return ticker, nil
}

// Stop stops every ticker and cancels the manager context.
func (mgr *Manager) Stop() {
	mgr.tickers.Range(func(_, value any) bool {
		if ticker, ok := value.(*time.Ticker); ok {
			ticker.Stop()
		}

		return true
	})

	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate, then re-creates the manager context.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) callWithRecover(name string, fn Func) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			cont = false
		}
	}()

	return fn()
}

func (mgr *Manager) runLoop(name string, taskFunc Func) {
	for {
		ctx := mgr.Context()
		select {
		case <-ctx.Done():
			return
		default:
			if !mgr.callWithRecover(name, taskFunc) {
				return
			}
		}
	}
}

type starter struct {
	mgr     *Manager
	name    string
	started chan struct{}
}

func (mgr *Manager) newStarter(name string) (*starter, error) {
	select {
	case <-mgr.Context().Done():
		return nil, fmt.Errorf("start %s: %w", name, ErrStopped)
	default:
	}

	return &starter{mgr: mgr, name: name, started: make(chan struct{})}, nil
}

func (s *starter) run(body func()) {
	s.mgr.taskMu.RLock()
	defer s.mgr.taskMu.RUnlock()

	s.mgr.wg.Add(1)
	s.mgr.count.Add(1)

	go func() {
		defer s.mgr.wg.Done()
		defer func() {
			s.mgr.count.Add(-1)
			s.mgr.logger.Debug("task terminated", "name", s.name, "task_count", s.mgr.TaskCount())
		}()

		close(s.started)
		body()
	}()
}

func (s *starter) waitForStart() error {
	select {
	case <-s.started:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for %s to start", s.name)
	}
}
