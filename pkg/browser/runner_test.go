package browser

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/e2e-tester/pkg/config"
	"github.com/psantana5/e2e-tester/pkg/logging"
)

// closeLog records the order in which fake resources are closed
type closeLog struct {
	mu    sync.Mutex
	order []string
}

func (c *closeLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = append(c.order, name)
}

func (c *closeLog) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

type fakePage struct {
	log        *closeLog
	status     int
	gotoErr    error
	gotoBlock  chan struct{}
	idleErr    error
	title      string
	titleErr   error
	shotErr    error
	shotPath   string
	navTimeout time.Duration
}

func (p *fakePage) SetNavigationTimeout(d time.Duration) { p.navTimeout = d }

func (p *fakePage) Goto(url string, timeout time.Duration) (int, error) {
	if p.gotoBlock != nil {
		<-p.gotoBlock
		return 0, errors.New("target closed")
	}
	return p.status, p.gotoErr
}

func (p *fakePage) WaitForNetworkIdle(timeout time.Duration) error { return p.idleErr }
func (p *fakePage) Title() (string, error)                         { return p.title, p.titleErr }

func (p *fakePage) Screenshot(path string, fullPage bool) error {
	if p.shotErr != nil {
		return p.shotErr
	}
	p.shotPath = path
	return os.WriteFile(path, []byte("png"), 0644)
}

func (p *fakePage) Close() error {
	p.log.add("page")
	if p.gotoBlock != nil {
		select {
		case <-p.gotoBlock:
		default:
			close(p.gotoBlock)
		}
	}
	return nil
}

type fakeContext struct {
	log     *closeLog
	page    *fakePage
	pageErr error
}

func (c *fakeContext) NewPage() (Page, error) {
	if c.pageErr != nil {
		return nil, c.pageErr
	}
	return c.page, nil
}

func (c *fakeContext) Close() error {
	c.log.add("context")
	return nil
}

type fakeBrowser struct {
	log      *closeLog
	ctx      *fakeContext
	closeErr error
}

func (b *fakeBrowser) NewContext(opts ContextOptions) (Context, error) {
	return b.ctx, nil
}

func (b *fakeBrowser) Close() error {
	b.log.add("browser")
	return b.closeErr
}

type fakeLauncher struct {
	mu        sync.Mutex
	browser   *fakeBrowser
	launchErr error
	launches  int
	lastOpts  LaunchOptions
}

func (l *fakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	l.lastOpts = opts
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.browser, nil
}

type runRecorder struct {
	mu       sync.Mutex
	outcomes []string
	releases map[string]int
	failed   map[string]int
}

func newRunRecorder() *runRecorder {
	return &runRecorder{releases: map[string]int{}, failed: map[string]int{}}
}

func (r *runRecorder) ObserveRun(outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *runRecorder) ObserveRelease(resource string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases[resource]++
	if err != nil {
		r.failed[resource]++
	}
}

func newFakes(page *fakePage) (*fakeLauncher, *closeLog) {
	cl := &closeLog{}
	page.log = cl
	ctx := &fakeContext{log: cl, page: page}
	b := &fakeBrowser{log: cl, ctx: ctx}
	return &fakeLauncher{browser: b}, cl
}

func testRunnerConfig(t *testing.T) config.RunnerConfig {
	cfg := config.Default().Runner
	cfg.EvidenceDir = t.TempDir()
	cfg.OverallTimeout = 2 * time.Second
	return cfg
}

func TestRunSuccess(t *testing.T) {
	page := &fakePage{status: 200, title: "Example Domain"}
	launcher, cl := newFakes(page)
	cfg := testRunnerConfig(t)

	r := NewRunner(cfg, launcher, logging.Nop())
	res := r.Run(context.Background(), Request{URL: "https://example.com"})

	assert.True(t, res.Success)
	assert.Equal(t, "Playwright test passed: Successfully loaded https://example.com with title 'Example Domain'", res.Message)
	assert.Equal(t, "Example Domain", res.Title)
	require.NotNil(t, res.Evidence)
	assert.FileExists(t, res.Evidence.Screenshot)
	assert.True(t, strings.HasPrefix(res.Evidence.Screenshot, cfg.EvidenceDir))
	assert.Nil(t, res.Error)
	assert.NotEmpty(t, res.Timestamp)

	assert.Equal(t, []string{"page", "context", "browser"}, cl.get())
	assert.Equal(t, cfg.NavigationTimeout, page.navTimeout)
	assert.True(t, launcher.lastOpts.Headless)
	assert.Equal(t, cfg.LaunchArgs, launcher.lastOpts.Args)
}

func TestRunNoResponse(t *testing.T) {
	launcher, cl := newFakes(&fakePage{gotoErr: ErrNoResponse})
	r := NewRunner(testRunnerConfig(t), launcher, nil)

	res := r.Run(context.Background(), Request{URL: "https://example.com"})
	assert.False(t, res.Success)
	assert.Equal(t, "Playwright test failed with error: Failed to get response from https://example.com", res.Message)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindNavigation, res.Error.Name)
	assert.Equal(t, []string{"page", "context", "browser"}, cl.get())
}

func TestRunHTTPErrorStatus(t *testing.T) {
	launcher, cl := newFakes(&fakePage{status: 404, title: "Not Found"})
	r := NewRunner(testRunnerConfig(t), launcher, nil)

	res := r.Run(context.Background(), Request{URL: "https://example.com/missing"})
	assert.False(t, res.Success)
	assert.Equal(t, "Playwright test failed with error: Received HTTP 404 from https://example.com/missing", res.Message)
	assert.Nil(t, res.Evidence)
	assert.Len(t, cl.get(), 3)
}

func TestRunNetworkIdleFailureIsNotFatal(t *testing.T) {
	launcher, _ := newFakes(&fakePage{status: 200, title: "Busy", idleErr: errors.New("timeout 5000ms exceeded")})
	r := NewRunner(testRunnerConfig(t), launcher, nil)

	res := r.Run(context.Background(), Request{URL: "https://example.com"})
	assert.True(t, res.Success)
	assert.Equal(t, "Busy", res.Title)
}

func TestRunScreenshotFailureIsNotFatal(t *testing.T) {
	launcher, _ := newFakes(&fakePage{status: 200, title: "Example", shotErr: errors.New("disk full")})
	r := NewRunner(testRunnerConfig(t), launcher, nil)

	res := r.Run(context.Background(), Request{URL: "https://example.com"})
	assert.True(t, res.Success)
	assert.Nil(t, res.Evidence)
}

func TestRunExpectedTitle(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		launcher, _ := newFakes(&fakePage{status: 200, title: "Google"})
		r := NewRunner(testRunnerConfig(t), launcher, nil)

		res := r.Run(context.Background(), Request{URL: "https://www.google.com", ExpectedTitle: "Google"})
		assert.True(t, res.Success)
		assert.Equal(t, "Playwright test passed: The title is 'Google'.", res.Message)
	})

	t.Run("mismatch", func(t *testing.T) {
		launcher, cl := newFakes(&fakePage{status: 200, title: "Consent"})
		r := NewRunner(testRunnerConfig(t), launcher, nil)

		res := r.Run(context.Background(), Request{URL: "https://www.google.com", ExpectedTitle: "Google"})
		assert.False(t, res.Success)
		assert.Equal(t, "Playwright test failed: The title is not 'Google'. Actual title: 'Consent'", res.Message)
		assert.Equal(t, "Consent", res.Title)
		require.NotNil(t, res.Error)
		assert.Equal(t, KindTitleMismatch, res.Error.Name)
		assert.NotNil(t, res.Evidence, "evidence is still captured on a mismatch")
		assert.Len(t, cl.get(), 3)
	})
}

func TestRunLaunchFailure(t *testing.T) {
	launcher, cl := newFakes(&fakePage{})
	launcher.launchErr = errors.New("executable doesn't exist")
	rec := newRunRecorder()
	r := NewRunner(testRunnerConfig(t), launcher, nil)
	r.SetRecorder(rec)

	res := r.Run(context.Background(), Request{URL: "https://example.com"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Playwright test failed with error: failed to launch browser")
	assert.Empty(t, cl.get())
	assert.Equal(t, []string{"failed"}, rec.outcomes)
}

func TestRunPageFailureReleasesAcquired(t *testing.T) {
	launcher, cl := newFakes(&fakePage{})
	launcher.browser.ctx.pageErr = errors.New("page crashed")
	rec := newRunRecorder()
	r := NewRunner(testRunnerConfig(t), launcher, nil)
	r.SetRecorder(rec)

	res := r.Run(context.Background(), Request{URL: "https://example.com"})
	assert.False(t, res.Success)
	assert.Equal(t, []string{"context", "browser"}, cl.get())
	assert.Equal(t, 1, rec.releases["context"])
	assert.Equal(t, 1, rec.releases["browser"])
	assert.Zero(t, rec.releases["page"])
}

func TestRunReleaseFailureIsCounted(t *testing.T) {
	launcher, cl := newFakes(&fakePage{status: 200, title: "Example"})
	launcher.browser.closeErr = errors.New("browser already gone")
	rec := newRunRecorder()
	r := NewRunner(testRunnerConfig(t), launcher, nil)
	r.SetRecorder(rec)

	res := r.Run(context.Background(), Request{URL: "https://example.com"})
	assert.True(t, res.Success, "release errors do not change the result")
	assert.Equal(t, []string{"page", "context", "browser"}, cl.get())
	assert.Equal(t, 1, rec.failed["browser"])
}

func TestRunTimeoutReleasesEverything(t *testing.T) {
	page := &fakePage{gotoBlock: make(chan struct{})}
	launcher, cl := newFakes(page)
	cfg := testRunnerConfig(t)
	cfg.OverallTimeout = 100 * time.Millisecond
	rec := newRunRecorder()
	r := NewRunner(cfg, launcher, nil)
	r.SetRecorder(rec)

	start := time.Now()
	res := r.Run(context.Background(), Request{URL: "https://example.com"})
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Equal(t, "Playwright test failed with error: Test execution timed out after 100ms", res.Message)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindTimeout, res.Error.Name)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, []string{"page", "context", "browser"}, cl.get())
	assert.Equal(t, []string{"timeout"}, rec.outcomes)
}

func TestRunCanceledByCaller(t *testing.T) {
	page := &fakePage{gotoBlock: make(chan struct{})}
	launcher, cl := newFakes(page)
	r := NewRunner(testRunnerConfig(t), launcher, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := r.Run(ctx, Request{URL: "https://example.com"})
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, KindCanceled, res.Error.Name)
	assert.Len(t, cl.get(), 3)
}

func TestRunStackExposure(t *testing.T) {
	launcher, _ := newFakes(&fakePage{status: 500})
	r := NewRunner(testRunnerConfig(t), launcher, nil)

	res := r.Run(context.Background(), Request{URL: "https://example.com"})
	require.NotNil(t, res.Error)
	assert.Empty(t, res.Error.Stack)

	launcher2, _ := newFakes(&fakePage{status: 500})
	r2 := NewRunner(testRunnerConfig(t), launcher2, nil)
	r2.ExposeStack(true)
	res = r2.Run(context.Background(), Request{URL: "https://example.com"})
	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Stack, "Received HTTP 500")
	assert.Contains(t, res.Error.Stack, "runner.go")
}

func TestRunsAreIndependent(t *testing.T) {
	launcher, cl := newFakes(&fakePage{status: 200, title: "Example"})
	r := NewRunner(testRunnerConfig(t), launcher, nil)

	first := r.Run(context.Background(), Request{URL: "https://example.com"})
	second := r.Run(context.Background(), Request{URL: "https://example.com"})

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.Equal(t, 2, launcher.launches)
	assert.Len(t, cl.get(), 6)
	assert.NotEqual(t, first.Evidence.Screenshot, second.Evidence.Screenshot)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "30 seconds", humanDuration(30*time.Second))
	assert.Equal(t, "1 second", humanDuration(time.Second))
	assert.Equal(t, "1.5s", humanDuration(1500*time.Millisecond))
}
