package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/psantana5/e2e-tester/pkg/logging"
)

// PlaywrightLauncher launches browsers through the Playwright driver.
// The driver process is started on first use and shared; every Launch still
// creates its own browser process.
type PlaywrightLauncher struct {
	browserType string
	log         *logging.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightLauncher creates a launcher for chromium, firefox or webkit
func NewPlaywrightLauncher(browserType string, log *logging.Logger) *PlaywrightLauncher {
	if log == nil {
		log = logging.Nop()
	}
	return &PlaywrightLauncher{browserType: browserType, log: log}
}

// Install downloads the Playwright driver and the given browsers
func Install(browsers ...string) error {
	if len(browsers) == 0 {
		browsers = []string{"chromium"}
	}
	if err := playwright.Install(&playwright.RunOptions{Browsers: browsers}); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	return nil
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return l.pw, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}
	l.log.Info("Playwright driver started", map[string]interface{}{"browser": l.browserType})
	l.pw = pw
	return pw, nil
}

func (l *PlaywrightLauncher) browserTypeFor(pw *playwright.Playwright) (playwright.BrowserType, error) {
	switch l.browserType {
	case "", "chromium":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported browser type %q", l.browserType)
	}
}

// Launch starts a new browser process
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}
	bt, err := l.browserTypeFor(pw)
	if err != nil {
		return nil, err
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.ExecutablePath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	if opts.Timeout > 0 {
		launch.Timeout = playwright.Float(millis(opts.Timeout))
	}

	b, err := bt.Launch(launch)
	if err != nil {
		return nil, err
	}
	return &pwBrowser{b: b}, nil
}

// Close stops the shared driver process
func (l *PlaywrightLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	return err
}

type pwBrowser struct {
	b playwright.Browser
}

func (b *pwBrowser) NewContext(opts ContextOptions) (Context, error) {
	o := playwright.BrowserNewContextOptions{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		o.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}
	if opts.UserAgent != "" {
		o.UserAgent = playwright.String(opts.UserAgent)
	}
	c, err := b.b.NewContext(o)
	if err != nil {
		return nil, err
	}
	return &pwContext{c: c}, nil
}

func (b *pwBrowser) Close() error {
	return b.b.Close()
}

type pwContext struct {
	c playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	p, err := c.c.NewPage()
	if err != nil {
		return nil, err
	}
	return &pwPage{p: p}, nil
}

func (c *pwContext) Close() error {
	return c.c.Close()
}

type pwPage struct {
	p playwright.Page
}

func (p *pwPage) SetNavigationTimeout(d time.Duration) {
	p.p.SetDefaultNavigationTimeout(millis(d))
}

func (p *pwPage) Goto(url string, timeout time.Duration) (int, error) {
	resp, err := p.p.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(millis(timeout)),
	})
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, ErrNoResponse
	}
	return resp.Status(), nil
}

func (p *pwPage) WaitForNetworkIdle(timeout time.Duration) error {
	return p.p.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(millis(timeout)),
	})
}

func (p *pwPage) Title() (string, error) {
	return p.p.Title()
}

func (p *pwPage) Screenshot(path string, fullPage bool) error {
	_, err := p.p.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	return err
}

func (p *pwPage) Close() error {
	return p.p.Close()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
