package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNoResponse is returned by Page.Goto when navigation produced no
// main-resource response
var ErrNoResponse = errors.New("no response")

// LaunchOptions configures a browser process
type LaunchOptions struct {
	Headless       bool
	Args           []string
	ExecutablePath string
	Timeout        time.Duration
}

// ContextOptions configures an isolated browsing context
type ContextOptions struct {
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
}

// Launcher starts browser processes. One call, one independent process.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process
type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context (cookies, storage, viewport)
type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single tab
type Page interface {
	SetNavigationTimeout(d time.Duration)
	// Goto navigates and waits for DOMContentLoaded. It returns the main
	// response status, or ErrNoResponse.
	Goto(url string, timeout time.Duration) (int, error)
	WaitForNetworkIdle(timeout time.Duration) error
	Title() (string, error)
	Screenshot(path string, fullPage bool) error
	Close() error
}
