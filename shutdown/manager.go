// Package shutdown coordinates graceful termination: the first SIGINT or
// SIGTERM cancels the run context so workers stop taking jobs and release
// in-flight ones; a second signal forces exit. Registered cleanup
// functions then run in priority order.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"promptbatch/core"
	"promptbatch/logging"

	"go.uber.org/zap"
)

// DefaultTimeout bounds waiting for operations plus cleanup.
const DefaultTimeout = 30 * time.Second

// Manager ties an OperationTracker, a ShutdownRegistry and a SignalCounter
// to one cancellable context.
//
//	m := shutdown.NewManager(logger)
//	m.Register("history", shutdown.PriorityClose, shutdown.Close(db))
//	m.Start()
//	err := m.WrapOperation(m.Context(), "run", func(ctx context.Context) error {
//	    return r.Run(ctx)
//	})
//	m.Shutdown()
//	os.Exit(m.ExitCode())
type Manager struct {
	logger   *logging.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *ShutdownRegistry
	signals  *SignalCounter

	forceExit func()
	sigChan   chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown timeout. Default is DefaultTimeout.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithParent derives the managed context from ctx instead of Background.
func WithParent(ctx context.Context) ManagerOption {
	return func(m *Manager) {
		m.ctx, m.cancel = context.WithCancel(ctx)
	}
}

// WithForceExit replaces the os.Exit(1) run on the second signal.
func WithForceExit(fn func()) ManagerOption {
	return func(m *Manager) {
		m.forceExit = fn
	}
}

// NewManager creates a Manager. Nothing listens for signals until Start.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		tracker:  NewOperationTracker(),
		registry: NewShutdownRegistry(),
		sigChan:  make(chan os.Signal, 2),
		forceExit: func() {
			os.Exit(core.ExitCodeError)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ctx == nil {
		m.ctx, m.cancel = context.WithCancel(context.Background())
	}
	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing immediate exit")
		_ = m.logger.Sync()
		m.forceExit()
	})
	return m
}

// Context is cancelled on the first signal or on Shutdown.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function; see the Priority constants.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start listens for SIGINT and SIGTERM. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.shutdown {
		return
	}
	m.started = true
	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range m.sigChan {
			m.handle(sig)
		}
	}()
}

func (m *Manager) handle(sig os.Signal) {
	if m.signals.Record(sig) == 1 {
		m.logger.Info("Received shutdown signal, finishing in-flight work",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}

// Shutdown stops accepting operations, waits for in-flight ones and runs
// the cleanup functions with whatever time is left. Only the first call
// does anything.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	if m.started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	m.mu.Unlock()

	start := time.Now()
	m.tracker.Close()
	m.cancel()

	if active := m.tracker.ActiveCount(); active > 0 {
		m.logger.Info("Waiting for in-flight operations", zap.Int64("active", active))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("Timeout waiting for in-flight operations",
			zap.Duration("waited", time.Since(start)),
			zap.Int64("remaining", m.tracker.ActiveCount()),
		)
	}

	remaining := m.timeout - time.Since(start)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.logger.Debug("Running cleanup", zap.Strings("handlers", m.registry.Names()))
	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("Cleanup function failed", zap.Error(err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown had %d errors", len(errs))
	}
	m.logger.Debug("Shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// Wait blocks until the managed context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// WrapOperation runs fn as a tracked operation. It returns
// ErrTrackerClosed without running fn once Shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		m.logger.Debug("Operation rejected, shutting down", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// ActiveOperations returns the number of in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown reports whether a signal arrived or Shutdown was called.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown || m.signals.Count() > 0
}

// Interrupted reports whether a signal was received.
func (m *Manager) Interrupted() bool {
	return m.signals.Count() > 0
}

// ExitCode is the signal exit code, or ExitCodeSuccess without a signal.
func (m *Manager) ExitCode() int {
	return m.signals.ExitCode()
}

// RegisteredHandlers returns cleanup handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
