package logging

import (
	"fmt"
	"path/filepath"
)

// GenerateLogrotateConfig returns a logrotate stanza for the log file the
// service writes when logging.file is set. The file is truncated in place so
// the running process keeps its descriptor.
func GenerateLogrotateConfig(logFile string, keepDays int) string {
	if keepDays <= 0 {
		keepDays = 14
	}
	abs, err := filepath.Abs(logFile)
	if err != nil {
		abs = logFile
	}
	return fmt.Sprintf(`# Logrotate configuration for e2e-tester
# Install: sudo cp this file to /etc/logrotate.d/e2e-tester

%s {
    daily
    rotate %d
    compress
    delaycompress
    missingok
    notifempty
    copytruncate
}
`, abs, keepDays)
}
