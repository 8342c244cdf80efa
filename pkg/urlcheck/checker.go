// Package urlcheck answers "is this URL reachable?" with a single bounded
// HTTP request. There are no retries.
package urlcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/psantana5/e2e-tester/pkg/config"
	"github.com/psantana5/e2e-tester/pkg/logging"
)

// ErrTooManyRedirects is returned when the redirect cap is exceeded
var ErrTooManyRedirects = errors.New("maximum number of redirects exceeded")

// ErrStatusRejected is returned when a response arrived but the status
// policy does not accept its code
var ErrStatusRejected = errors.New("status rejected by policy")

// Outcome describes one check
type Outcome struct {
	Target     string
	StatusCode int
	Accessible bool
	Err        error
	Duration   time.Duration
}

// Recorder receives one call per finished check
type Recorder interface {
	ObserveCheck(accessible bool, d time.Duration)
}

// Checker performs reachability checks
type Checker struct {
	cfg      config.CheckConfig
	client   *http.Client
	log      *logging.Logger
	recorder Recorder
}

// NewChecker builds a checker from config. transport may be nil.
func NewChecker(cfg config.CheckConfig, transport http.RoundTripper, log *logging.Logger) *Checker {
	if log == nil {
		log = logging.Nop()
	}
	maxRedirects := cfg.MaxRedirects
	return &Checker{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		log: log,
	}
}

// SetRecorder installs a metrics recorder
func (c *Checker) SetRecorder(r Recorder) {
	c.recorder = r
}

// Normalize trims raw and prepends https:// when it carries no scheme
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if hasScheme(s) {
		return s
	}
	return "https://" + s
}

func hasScheme(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for n, r := range s[:i] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case n > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// Accepts reports whether code satisfies the configured status policy
func (c *Checker) Accepts(code int) bool {
	if c.cfg.StatusPolicy == config.StatusPolicySuccess {
		return code >= 200 && code < 400
	}
	return true
}

// Check issues one request against raw (normalized first)
func (c *Checker) Check(ctx context.Context, raw string) (out Outcome) {
	start := time.Now()
	out.Target = Normalize(raw)
	defer func() {
		out.Duration = time.Since(start)
		if c.recorder != nil {
			c.recorder.ObserveCheck(out.Accessible, out.Duration)
		}
	}()

	c.log.Info("Checking URL", map[string]interface{}{"url": out.Target})

	method := c.cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, out.Target, nil)
	if err != nil {
		out.Err = fmt.Errorf("failed to build request: %w", err)
		c.logFailure(out)
		return out
	}
	req.Header.Set("Accept", "*/*")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		out.Err = err
		c.logFailure(out)
		return out
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	out.StatusCode = resp.StatusCode
	if !c.Accepts(resp.StatusCode) {
		out.Err = fmt.Errorf("%w: HTTP %d", ErrStatusRejected, resp.StatusCode)
		c.logFailure(out)
		return out
	}

	out.Accessible = true
	c.log.Info("URL is accessible", map[string]interface{}{
		"url":    out.Target,
		"status": resp.StatusCode,
	})
	return out
}

func (c *Checker) logFailure(out Outcome) {
	fields := map[string]interface{}{"url": out.Target, "error": out.Err.Error()}
	if out.StatusCode != 0 {
		fields["status"] = out.StatusCode
	}
	c.log.Warn("URL is not accessible", fields)
}
