// Package api serves the HTTP endpoints of the tester.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/e2e-tester/pkg/browser"
	"github.com/psantana5/e2e-tester/pkg/config"
	"github.com/psantana5/e2e-tester/pkg/logging"
	"github.com/psantana5/e2e-tester/pkg/middleware"
	"github.com/psantana5/e2e-tester/pkg/models"
	"github.com/psantana5/e2e-tester/pkg/urlcheck"
)

// Version is reported by the banner and health endpoints
const Version = "1.0.0"

// ServiceName identifies the process in health output
const ServiceName = "e2e-tester"

const maxBodyBytes = 64 << 10

// TestRunner runs one headless browser test
type TestRunner interface {
	Run(ctx context.Context, req browser.Request) *models.TestResult
}

// URLChecker performs one reachability check
type URLChecker interface {
	Check(ctx context.Context, raw string) urlcheck.Outcome
}

// RunObserver tracks runs in flight
type RunObserver interface {
	RunStarted()
	RunFinished()
}

// Handler serves the tester endpoints
type Handler struct {
	runner  TestRunner
	checker URLChecker
	cfg     config.RunnerConfig
	log     *logging.Logger
	started time.Time

	runLimiter  func(http.Handler) http.Handler
	runObserver RunObserver
}

// NewHandler creates a handler. started is the process start time used for uptime.
func NewHandler(cfg config.RunnerConfig, runner TestRunner, checker URLChecker, log *logging.Logger, started time.Time) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		runner:  runner,
		checker: checker,
		cfg:     cfg,
		log:     log,
		started: started,
	}
}

// SetRunLimiter wraps both /run-test routes with mw
func (h *Handler) SetRunLimiter(mw func(http.Handler) http.Handler) {
	h.runLimiter = mw
}

// SetRunObserver installs an in-flight run observer
func (h *Handler) SetRunObserver(obs RunObserver) {
	h.runObserver = obs
}

// NewRouter builds a router with JSON 404/405 handlers and every route registered
func (h *Handler) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	run := http.Handler(http.HandlerFunc(h.RunTest))
	legacy := http.Handler(http.HandlerFunc(h.RunLegacyTest))
	if h.runLimiter != nil {
		run = h.runLimiter(run)
		legacy = h.runLimiter(legacy)
	}

	r.Handle("/run-test", run).Methods(http.MethodPost)
	r.Handle("/run-test", legacy).Methods(http.MethodGet)
	r.HandleFunc("/api/check-url", h.CheckURL).Methods(http.MethodPost)
	r.HandleFunc("/api/hello", h.Hello).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
}

// RunTest runs a browser test against the URL in the body
func (h *Handler) RunTest(w http.ResponseWriter, r *http.Request) {
	var req models.RunTestRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target := strings.TrimSpace(req.URL)
	if h.cfg.TargetPolicy == config.TargetPolicyFixed {
		target = h.cfg.DefaultTarget
	} else {
		if target == "" {
			middleware.WriteError(w, http.StatusBadRequest, "URL is required in the request body")
			return
		}
		if err := ValidateTarget(target); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid URL format: "+err.Error())
			return
		}
	}

	h.run(w, r, browser.Request{URL: target})
}

// RunLegacyTest runs the fixed target and expects the configured title
func (h *Handler) RunLegacyTest(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, browser.Request{
		URL:           h.cfg.DefaultTarget,
		ExpectedTitle: h.cfg.LegacyExpectedTitle,
	})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, req browser.Request) {
	if h.runObserver != nil {
		h.runObserver.RunStarted()
		defer h.runObserver.RunFinished()
	}

	log := h.log.WithField("request_id", middleware.GetRequestID(r.Context()))
	log.Info("Running browser test", map[string]interface{}{"url": req.URL})

	// The run owns its own deadline; a client hanging up still cancels it.
	result := h.runner.Run(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

// CheckURL reports whether a URL answers an HTTP request
func (h *Handler) CheckURL(w http.ResponseWriter, r *http.Request) {
	var req models.CheckURLRequest
	if err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, models.CheckResult{Success: false, Message: "URL is required"})
		return
	}

	out := h.checker.Check(r.Context(), req.URL)
	if out.Accessible {
		writeJSON(w, http.StatusOK, models.CheckResult{Success: true, Message: "URL is accessible"})
		return
	}
	writeJSON(w, http.StatusOK, models.CheckResult{Success: false, Message: "URL is not accessible"})
}

// Hello is a liveness probe used by the frontend
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HelloResponse{
		Message:   "E2E Tester API",
		Timestamp: models.Timestamp(time.Now()),
		Status:    "success",
	})
}

// Health reports process uptime
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.started).Seconds()
	if uptime < 0 {
		uptime = 0
	}
	writeJSON(w, http.StatusOK, models.HealthStatus{
		Status:    "healthy",
		Service:   ServiceName,
		Uptime:    uptime,
		Timestamp: models.Timestamp(time.Now()),
	})
}

// Root serves the service banner
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ServiceInfo{
		Status:    "ok",
		Message:   "E2E Tester API is running",
		Version:   Version,
		Timestamp: models.Timestamp(time.Now()),
		Endpoints: map[string]string{
			"POST /run-test":      "Run a headless browser test against {url}",
			"GET /run-test":       "Run the default browser test",
			"POST /api/check-url": "Check whether {url} is reachable",
			"GET /api/hello":      "API greeting",
			"GET /health":         "Health check",
		},
	})
}

// NotFound answers unknown routes
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, http.StatusNotFound, "Route not found: "+r.URL.Path)
}

// MethodNotAllowed answers known routes called with the wrong method
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method not allowed: %s %s", r.Method, r.URL.Path))
}

// ValidateTarget accepts absolute http and https URLs with a host
func ValidateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return uerr.Err
		}
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return errors.New("missing scheme (expected http or https)")
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// decodeBody treats an empty body as an empty request
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
