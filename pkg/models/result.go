package models

import "time"

// TimestampFormat is ISO 8601 with millisecond precision, always UTC.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t the way every response body carries it
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Evidence points at artifacts captured during a browser run
type Evidence struct {
	Screenshot string `json:"screenshot"`
}

// ErrorInfo describes why a run failed. Stack is only filled outside production.
type ErrorInfo struct {
	Name  string `json:"name"`
	Stack string `json:"stack,omitempty"`
}

// TestResult is the outcome of one headless browser run.
// It is built once per request and returned as-is; nothing stores it.
type TestResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
	Title     string     `json:"title,omitempty"`
	Evidence  *Evidence  `json:"evidence,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// NewTestResult stamps a result with the current time
func NewTestResult(success bool, message string) *TestResult {
	return &TestResult{
		Success:   success,
		Message:   message,
		Timestamp: Timestamp(time.Now()),
	}
}

// CheckResult is the body of POST /api/check-url
type CheckResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RunTestRequest is the body of POST /run-test
type RunTestRequest struct {
	URL string `json:"url"`
}

// CheckURLRequest is the body of POST /api/check-url
type CheckURLRequest struct {
	URL string `json:"url"`
}

// ErrorResponse is returned for rejected requests (4xx/5xx)
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
