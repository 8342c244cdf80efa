// Package shutdown runs registered cleanup functions in reverse order on
// SIGINT/SIGTERM, bounded by a grace period.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/e2e-tester/pkg/logging"
)

// ErrForced is returned by Shutdown when the grace period expired before all
// functions finished
var ErrForced = errors.New("forced shutdown after grace period")

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager handles graceful shutdown
type Manager struct {
	mu       sync.Mutex
	hooks    []hook
	timeout  time.Duration
	log      *logging.Logger
	doneChan chan struct{}
	once     sync.Once
}

// New creates a new shutdown manager
func New(timeout time.Duration, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		timeout:  timeout,
		log:      log,
		doneChan: make(chan struct{}),
	}
}

// Register adds a shutdown function. Functions run in reverse order (LIFO).
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Done is closed once shutdown has been initiated
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Trigger initiates shutdown without a signal
func (m *Manager) Trigger() {
	m.once.Do(func() { close(m.doneChan) })
}

// Wait blocks until SIGINT/SIGTERM, Trigger, or ctx cancellation
func (m *Manager) Wait(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("Received signal, initiating graceful shutdown", map[string]interface{}{"signal": sig.String()})
	case <-m.doneChan:
		m.log.Info("Shutdown requested")
	case <-ctx.Done():
		m.log.Info("Context canceled, initiating graceful shutdown")
	}
	m.Trigger()
}

// Shutdown runs every registered function within the grace period. It
// returns ErrForced if the period ran out first.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	hooks := append([]hook(nil), m.hooks...)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.fn(ctx); err != nil {
				m.log.Error("Shutdown step failed", map[string]interface{}{"step": h.name, "error": err.Error()})
				continue
			}
			m.log.Debug("Shutdown step complete", map[string]interface{}{"step": h.name})
		}
	}()

	select {
	case <-finished:
		m.log.Info("Graceful shutdown complete")
		return nil
	case <-ctx.Done():
		m.log.Error("Could not close connections in time, forcefully shutting down",
			map[string]interface{}{"grace": m.timeout.String()})
		return ErrForced
	}
}

// StopHTTPServer creates a shutdown function for an http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop %s server: %w", name, err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for an io.Closer
func CloseResource(closer interface{ Close() error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}
