// Package evidence prunes screenshots that outlived the retention period.
package evidence

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/psantana5/e2e-tester/pkg/config"
	"github.com/psantana5/e2e-tester/pkg/logging"
)

// Stats tracks sweeps
type Stats struct {
	LastSweepTime     time.Time
	LastSweepDuration time.Duration
	LastSweepRemoved  int
	TotalRemoved      int64
	TotalSweeps       int64
}

// Janitor deletes *.png files older than the retention period from the
// evidence directory. Only the top level of the directory is scanned.
type Janitor struct {
	dir      string
	cfg      config.EvidenceConfig
	log      *logging.Logger
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu    sync.RWMutex
	stats Stats
}

// NewJanitor creates a janitor for dir
func NewJanitor(dir string, cfg config.EvidenceConfig, log *logging.Logger) *Janitor {
	if log == nil {
		log = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		dir:    dir,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enabled reports whether sweeping is configured
func (j *Janitor) Enabled() bool {
	return j.dir != "" && j.cfg.Retention > 0 && j.cfg.SweepInterval > 0
}

// Start runs one sweep immediately and then one per interval until Stop.
// It does nothing when the janitor is disabled.
func (j *Janitor) Start() {
	if !j.Enabled() {
		j.log.Info("Evidence janitor disabled")
		return
	}
	j.log.Info("Starting evidence janitor", map[string]interface{}{
		"dir":       j.dir,
		"retention": j.cfg.Retention.String(),
		"interval":  j.cfg.SweepInterval.String(),
	})

	j.wg.Add(1)
	go j.loop()
}

// Stop ends the sweep loop and waits for a running sweep to finish
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		j.cancel()
		j.wg.Wait()
		j.log.Info("Evidence janitor stopped")
	})
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.SweepInterval)
	defer ticker.Stop()

	j.sweepAndLog()
	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.sweepAndLog()
		}
	}
}

func (j *Janitor) sweepAndLog() {
	removed, err := j.Sweep()
	if err != nil {
		j.log.Warn("Evidence sweep finished with errors", map[string]interface{}{
			"removed": removed,
			"error":   err.Error(),
		})
		return
	}
	if removed > 0 {
		j.log.Info("Evidence sweep complete", map[string]interface{}{"removed": removed})
	}
}

// Sweep removes expired screenshots once and returns how many were deleted.
// A missing directory is not an error.
func (j *Janitor) Sweep() (int, error) {
	start := j.now()
	cutoff := start.Add(-j.cfg.Retention)

	entries, err := os.ReadDir(j.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var errs error
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}

	j.mu.Lock()
	j.stats.LastSweepTime = start
	j.stats.LastSweepDuration = j.now().Sub(start)
	j.stats.LastSweepRemoved = removed
	j.stats.TotalRemoved += int64(removed)
	j.stats.TotalSweeps++
	j.mu.Unlock()

	return removed, errs
}

// Stats returns a snapshot of sweep statistics
func (j *Janitor) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}
