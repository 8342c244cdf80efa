// Package scope tracks heavyweight resources acquired for a single bounded
// operation and releases them in reverse acquisition order.
//
// Every tracked resource is released exactly once. A failure releasing one
// resource never prevents the release of the others; failures are logged,
// counted and aggregated into the error returned by Close.
package scope

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/psantana5/e2e-tester/pkg/logging"
)

// ErrClosed is returned by Track once the scope has been closed. The resource
// passed to Track has already been released when this is returned.
var ErrClosed = errors.New("scope closed")

// Releaser is anything that can give back an external resource
type Releaser interface {
	Release() error
}

// ReleaseFunc adapts a plain func (typically a Close method) to Releaser
type ReleaseFunc func() error

// Release calls f
func (f ReleaseFunc) Release() error {
	return f()
}

// ReleaseHook observes each release attempt. err is nil on success.
type ReleaseHook func(name string, err error)

type entry struct {
	name string
	r    Releaser
}

// Scope is an ordered list of releasable resources
type Scope struct {
	mu       sync.Mutex
	entries  []entry
	released []string
	closed   bool
	log      *logging.Logger
	hook     ReleaseHook
}

// New creates an empty scope
func New(log *logging.Logger) *Scope {
	if log == nil {
		log = logging.Nop()
	}
	return &Scope{log: log}
}

// OnRelease installs a hook called after every release attempt
func (s *Scope) OnRelease(hook ReleaseHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Track registers r under name. If the scope is already closed r is released
// right away and ErrClosed is returned, so a resource acquired after a
// deadline fired cannot leak.
func (s *Scope) Track(name string, r Releaser) error {
	if r == nil {
		return fmt.Errorf("scope: nil releaser for %q", name)
	}

	s.mu.Lock()
	if !s.closed {
		s.entries = append(s.entries, entry{name: name, r: r})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.log.Warn("Resource acquired after scope closed, releasing immediately", map[string]interface{}{
		"resource": name,
	})
	s.releaseOne(entry{name: name, r: r})
	return ErrClosed
}

// Len returns the number of resources still held
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Released returns resource names in the order they were released
func (s *Scope) Released() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.released))
	copy(out, s.released)
	return out
}

// Close releases all tracked resources, last acquired first.
// Subsequent calls are no-ops and return nil.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var errs error
	for i := len(entries) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, s.releaseOne(entries[i]))
	}
	return errs
}

func (s *Scope) releaseOne(e entry) (err error) {
	defer func() {
		// A panicking Close must not stop the remaining releases.
		if p := recover(); p != nil {
			err = fmt.Errorf("release %s panicked: %v", e.name, p)
		}

		s.mu.Lock()
		s.released = append(s.released, e.name)
		hook := s.hook
		s.mu.Unlock()

		if err != nil {
			s.log.Error("Failed to release resource", map[string]interface{}{
				"resource": e.name,
				"error":    err.Error(),
			})
		} else {
			s.log.Debug("Released resource", map[string]interface{}{"resource": e.name})
		}
		if hook != nil {
			hook(e.name, err)
		}
	}()

	if rerr := e.r.Release(); rerr != nil {
		return fmt.Errorf("release %s: %w", e.name, rerr)
	}
	return nil
}
