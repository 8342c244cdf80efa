package browser

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/psantana5/e2e-tester/pkg/config"
	"github.com/psantana5/e2e-tester/pkg/logging"
)

// Requires installed browsers and network access:
//
//	E2E_BROWSER=1 go test ./pkg/browser -run Playwright
func TestPlaywrightGoogle(t *testing.T) {
	if os.Getenv("E2E_BROWSER") == "" {
		t.Skip("Skipping browser test. Set E2E_BROWSER=1 to run")
	}

	cfg := config.Default().Runner
	cfg.EvidenceDir = t.TempDir()

	launcher := NewPlaywrightLauncher(cfg.Browser, logging.Nop())
	defer launcher.Close()

	r := NewRunner(cfg, launcher, logging.Nop())
	res := r.Run(context.Background(), Request{URL: "https://www.google.com"})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Message)
	}
	if !strings.Contains(res.Title, "Google") {
		t.Errorf("title = %q, want it to contain Google", res.Title)
	}
	if res.Evidence == nil {
		t.Error("expected screenshot evidence")
	}
}

func TestPlaywrightUnsupportedBrowser(t *testing.T) {
	l := NewPlaywrightLauncher("netscape", nil)
	if _, err := l.browserTypeFor(nil); err == nil {
		t.Error("expected an error for an unknown browser type")
	}
}

func TestMillis(t *testing.T) {
	if got := millis(1500 * time.Millisecond); got != 1500 {
		t.Errorf("millis = %v", got)
	}
}
