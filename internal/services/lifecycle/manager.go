package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownFunc describes a graceful shutdown callback.
type ShutdownFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   ShutdownFunc
}

// Manager owns the process lifetime: it starts long-running components,
// cancels the application context on a signal or a component failure, and
// runs shutdown hooks in reverse registration order.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	hooks []hook
	errs  []error
}

// New creates a lifecycle manager whose context is derived from parent.
func New(parent context.Context, timeout time.Duration, logger *zap.Logger) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Context is cancelled once shutdown has been requested.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a shutdown hook. Hooks are executed in reverse order.
func (m *Manager) Register(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Go runs a blocking component. If it returns an error the whole process is
// asked to stop and the error is reported by Wait.
func (m *Manager) Go(name string, run func() error) {
	go func() {
		if err := run(); err != nil {
			m.logger.Error("component failed", zap.String("component", name), zap.Error(err))
			m.mu.Lock()
			m.errs = append(m.errs, err)
			m.mu.Unlock()
			m.cancel()
		}
	}()
}

// Listen cancels the manager's context on SIGINT or SIGTERM.
func (m *Manager) Listen() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			m.cancel()
		case <-m.ctx.Done():
		}
	}()
}

// Wait blocks until shutdown is requested, then runs every hook. It returns
// the component failures joined with any hook errors.
func (m *Manager) Wait() error {
	<-m.ctx.Done()
	err := m.Shutdown(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(append(m.errs, err)...)
}

// Shutdown executes all registered hooks, respecting the configured timeout.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	hooks := m.hooks
	m.hooks = nil
	m.mu.Unlock()

	var result error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, err)
			continue
		}
		m.logger.Info("component stopped", zap.String("component", h.name))
	}
	return result
}
