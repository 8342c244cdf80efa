// Package browser runs a single headless browser check against a URL:
// launch, navigate, read the title, screenshot, and release everything.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/psantana5/e2e-tester/pkg/config"
	"github.com/psantana5/e2e-tester/pkg/logging"
	"github.com/psantana5/e2e-tester/pkg/models"
	"github.com/psantana5/e2e-tester/pkg/scope"
	"github.com/psantana5/e2e-tester/pkg/tracing"
)

// Failure kinds reported in TestResult.Error.Name
const (
	KindLaunch        = "LaunchError"
	KindNavigation    = "NavigationError"
	KindHTTPStatus    = "HTTPStatusError"
	KindTitleMismatch = "TitleMismatch"
	KindTimeout       = "TimeoutError"
	KindCanceled      = "CanceledError"
)

// Request describes one run
type Request struct {
	URL string
	// ExpectedTitle, when set, must equal the page title for the run to pass.
	ExpectedTitle string
}

// Recorder receives run and release observations
type Recorder interface {
	ObserveRun(outcome string, d time.Duration)
	ObserveRelease(resource string, err error)
}

// Runner executes browser runs. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	cfg         config.RunnerConfig
	launcher    Launcher
	log         *logging.Logger
	recorder    Recorder
	exposeStack bool
	now         func() time.Time
}

// NewRunner creates a runner
func NewRunner(cfg config.RunnerConfig, launcher Launcher, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{
		cfg:      cfg,
		launcher: launcher,
		log:      log,
		now:      time.Now,
	}
}

// SetRecorder installs a metrics recorder
func (r *Runner) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// ExposeStack includes error stacks in failed results (non-production only)
func (r *Runner) ExposeStack(expose bool) {
	r.exposeStack = expose
}

type runError struct {
	kind string
	err  error
}

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

func fail(kind string, err error) *runError {
	return &runError{kind: kind, err: err}
}

type outcome struct {
	title      string
	screenshot string
	err        *runError
}

// Run performs the whole sequence within the overall budget and always
// returns a well-formed result. Resources are released on every path.
func (r *Runner) Run(ctx context.Context, req Request) *models.TestResult {
	start := r.now()
	runID := uuid.New().String()
	log := r.log.WithField("run_id", runID).WithField("url", req.URL)

	ctx, span := tracing.StartSpan(ctx, "browser.run",
		attribute.String("browser.url", req.URL),
		attribute.String("browser.run_id", runID),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.OverallTimeout)
	defer cancel()

	sc := scope.New(log)
	sc.OnRelease(func(name string, err error) {
		if r.recorder != nil {
			r.recorder.ObserveRelease(name, err)
		}
	})

	log.Info("Starting browser run")

	done := make(chan outcome, 1)
	go func() {
		done <- r.execute(ctx, log, sc, runID, req)
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.err = fail(KindTimeout, errors.Errorf("Test execution timed out after %s", humanDuration(r.cfg.OverallTimeout)))
		} else {
			out.err = fail(KindCanceled, errors.Wrap(ctx.Err(), "test execution canceled"))
		}
	}

	// Closing here also unblocks a sequence still waiting on the browser.
	if err := sc.Close(); err != nil {
		log.Warn("Cleanup finished with errors", map[string]interface{}{"error": err.Error()})
	}

	result := r.buildResult(req, out)
	elapsed := r.now().Sub(start)

	resultLabel := "passed"
	if !result.Success {
		resultLabel = "failed"
		if out.err != nil && out.err.kind == KindTimeout {
			resultLabel = "timeout"
		}
		if out.err != nil {
			tracing.SetError(ctx, out.err)
		}
	}
	if r.recorder != nil {
		r.recorder.ObserveRun(resultLabel, elapsed)
	}

	log.Info("Browser run finished", map[string]interface{}{
		"success":     result.Success,
		"outcome":     resultLabel,
		"duration_ms": elapsed.Milliseconds(),
		"released":    sc.Released(),
	})
	return result
}

func (r *Runner) execute(ctx context.Context, log *logging.Logger, sc *scope.Scope, runID string, req Request) outcome {
	var out outcome

	log.Debug("Launching headless browser", map[string]interface{}{"browser": r.cfg.Browser})
	b, err := r.launcher.Launch(ctx, LaunchOptions{
		Headless:       r.cfg.Headless,
		Args:           r.cfg.LaunchArgs,
		ExecutablePath: r.cfg.ExecutablePath,
		Timeout:        r.cfg.OverallTimeout,
	})
	if err != nil {
		out.err = fail(KindLaunch, errors.Wrap(err, "failed to launch browser"))
		return out
	}
	if err := sc.Track("browser", scope.ReleaseFunc(b.Close)); err != nil {
		out.err = fail(KindCanceled, errors.Wrap(err, "browser launched after deadline"))
		return out
	}
	tracing.AddEvent(ctx, "browser.launched")

	bctx, err := b.NewContext(ContextOptions{
		ViewportWidth:  r.cfg.ViewportWidth,
		ViewportHeight: r.cfg.ViewportHeight,
		UserAgent:      r.cfg.UserAgent,
	})
	if err != nil {
		out.err = fail(KindLaunch, errors.Wrap(err, "failed to create browser context"))
		return out
	}
	if err := sc.Track("context", scope.ReleaseFunc(bctx.Close)); err != nil {
		out.err = fail(KindCanceled, errors.Wrap(err, "context created after deadline"))
		return out
	}

	page, err := bctx.NewPage()
	if err != nil {
		out.err = fail(KindLaunch, errors.Wrap(err, "failed to open page"))
		return out
	}
	if err := sc.Track("page", scope.ReleaseFunc(page.Close)); err != nil {
		out.err = fail(KindCanceled, errors.Wrap(err, "page opened after deadline"))
		return out
	}
	page.SetNavigationTimeout(r.cfg.NavigationTimeout)

	log.Info("Navigating")
	status, err := page.Goto(req.URL, r.cfg.NavigationTimeout)
	if errors.Is(err, ErrNoResponse) {
		out.err = fail(KindNavigation, errors.Errorf("Failed to get response from %s", req.URL))
		return out
	}
	if err != nil {
		out.err = fail(KindNavigation, errors.WithStack(err))
		return out
	}
	if status >= 400 {
		out.err = fail(KindHTTPStatus, errors.Errorf("Received HTTP %d from %s", status, req.URL))
		return out
	}
	tracing.AddEvent(ctx, "browser.navigated", attribute.Int("http.status_code", status))

	if r.cfg.NetworkIdleTimeout > 0 {
		if err := page.WaitForNetworkIdle(r.cfg.NetworkIdleTimeout); err != nil {
			log.Info("Network did not reach idle state, but continuing test...")
		}
	}

	title, err := page.Title()
	if err != nil {
		out.err = fail(KindNavigation, errors.Wrap(err, "failed to read page title"))
		return out
	}
	out.title = title
	log.Info("Page title read", map[string]interface{}{"title": title})

	if path, ok := r.screenshot(log, page, runID); ok {
		out.screenshot = path
	}

	if req.ExpectedTitle != "" && title != req.ExpectedTitle {
		out.err = fail(KindTitleMismatch, errors.Errorf("The title is not '%s'. Actual title: '%s'", req.ExpectedTitle, title))
	}
	return out
}

// screenshot is best effort: failures are logged and the run continues
func (r *Runner) screenshot(log *logging.Logger, page Page, runID string) (string, bool) {
	if r.cfg.EvidenceDir == "" {
		return "", false
	}
	if err := os.MkdirAll(r.cfg.EvidenceDir, 0755); err != nil {
		log.Error("Failed to create evidence directory", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	path := filepath.Join(r.cfg.EvidenceDir, runID+".png")
	if err := page.Screenshot(path, r.cfg.FullPageScreenshot); err != nil {
		log.Error("Failed to take screenshot", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	return path, true
}

func (r *Runner) buildResult(req Request, out outcome) *models.TestResult {
	var res *models.TestResult

	switch {
	case out.err == nil && req.ExpectedTitle != "":
		res = models.NewTestResult(true, fmt.Sprintf("Playwright test passed: The title is '%s'.", req.ExpectedTitle))
	case out.err == nil:
		res = models.NewTestResult(true, fmt.Sprintf("Playwright test passed: Successfully loaded %s with title '%s'", req.URL, out.title))
	case out.err.kind == KindTitleMismatch:
		res = models.NewTestResult(false, "Playwright test failed: "+out.err.Error())
	default:
		res = models.NewTestResult(false, "Playwright test failed with error: "+out.err.Error())
	}

	res.Title = out.title
	if out.screenshot != "" {
		res.Evidence = &models.Evidence{Screenshot: out.screenshot}
	}
	if out.err != nil {
		res.Error = &models.ErrorInfo{Name: out.err.kind}
		if r.exposeStack {
			res.Error.Stack = fmt.Sprintf("%+v", out.err.err)
		}
	}
	return res
}

func humanDuration(d time.Duration) string {
	if d%time.Second == 0 {
		secs := int(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}
