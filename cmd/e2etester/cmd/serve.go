package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/e2e-tester/pkg/api"
	"github.com/psantana5/e2e-tester/pkg/auth"
	"github.com/psantana5/e2e-tester/pkg/browser"
	"github.com/psantana5/e2e-tester/pkg/config"
	"github.com/psantana5/e2e-tester/pkg/evidence"
	"github.com/psantana5/e2e-tester/pkg/logging"
	"github.com/psantana5/e2e-tester/pkg/metrics"
	"github.com/psantana5/e2e-tester/pkg/ratelimit"
	"github.com/psantana5/e2e-tester/pkg/shutdown"
	tlsutil "github.com/psantana5/e2e-tester/pkg/tls"
	"github.com/psantana5/e2e-tester/pkg/tracing"
	"github.com/psantana5/e2e-tester/pkg/urlcheck"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tester HTTP service",
	Long: `Starts the HTTP API (run-test, check-url, health) and, when enabled, the
Prometheus metrics listener. SIGINT/SIGTERM trigger a graceful shutdown.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "HTTP port (env E2E_SERVER_PORT or PORT, default 3001)")
	serveCmd.Flags().String("host", "", "HTTP listen host")
	serveCmd.Flags().String("browser", "", "browser engine: chromium, firefox or webkit")
	serveCmd.Flags().String("evidence-dir", "", "directory for screenshots")
	serveCmd.Flags().Bool("json-logs", false, "log as JSON")
	serveCmd.Flags().Bool("tls", false, "serve HTTPS using server.tls certFile/keyFile")

	bindFlag("server.port", serveCmd, "port")
	bindFlag("server.host", serveCmd, "host")
	bindFlag("runner.browser", serveCmd, "browser")
	bindFlag("runner.evidenceDir", serveCmd, "evidence-dir")
	bindFlag("logging.json", serveCmd, "json-logs")
	bindFlag("server.tls.enabled", serveCmd, "tls")
}

func bindFlag(key string, c *cobra.Command, name string) {
	_ = v.BindPFlag(key, c.Flags().Lookup(name))
}

func newLogger(cfg config.Config) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		JSONFormat: cfg.Logging.JSON,
		FilePath:   cfg.Logging.File,
		Service:    api.ServiceName,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	started := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	mgr := shutdown.New(cfg.Server.ShutdownGrace, log.WithComponent("shutdown"))
	mgr.Register("logger", func(context.Context) error { return log.Close() })

	tp, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: api.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, log.WithComponent("tracing"))
	if err != nil {
		return err
	}
	mgr.Register("tracer", tp.Shutdown)

	m := metrics.New()

	launcher := browser.NewPlaywrightLauncher(cfg.Runner.Browser, log.WithComponent("playwright"))
	mgr.Register("playwright", shutdown.CloseResource(launcher, "playwright driver"))

	runner := browser.NewRunner(cfg.Runner, launcher, log.WithComponent("runner"))
	runner.SetRecorder(m)
	runner.ExposeStack(!cfg.IsProduction())

	janitor := evidence.NewJanitor(cfg.Runner.EvidenceDir, cfg.Evidence, log.WithComponent("evidence"))
	janitor.Start()
	mgr.Register("evidence janitor", func(context.Context) error {
		janitor.Stop()
		return nil
	})

	checker := urlcheck.NewChecker(cfg.Check, nil, log.WithComponent("urlcheck"))
	checker.SetRecorder(m)

	handler := api.NewHandler(cfg.Runner, runner, checker, log.WithComponent("api"), started)
	handler.SetRunObserver(m)

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		handler.SetRunLimiter(limiter.Middleware(ratelimit.IPKeyFunc))
		stop := make(chan struct{})
		go limiter.RunEvictor(time.Minute, cfg.RateLimit.IdleTTL, stop)
		mgr.Register("ratelimit", func(context.Context) error {
			close(stop)
			return nil
		})
	}

	verifier, err := auth.NewVerifier(cfg.Server.APIKey, cfg.Server.APIKeyHash)
	if err != nil {
		return err
	}
	if verifier.Enabled() {
		log.Info("API key authentication enabled")
	}

	chain := api.ChainOptions{
		Log:         log.WithComponent("http"),
		Observer:    m,
		Verifier:    verifier,
		CORSOrigins: cfg.Server.CORSOrigins,
		LogStacks:   !cfg.IsProduction(),
	}
	if cfg.Tracing.Enabled {
		chain.Tracer = tp
	}

	serveErr := make(chan error, 2)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		if err := listenAndServe(metricsSrv, serveErr); err != nil {
			log.Error("Failed to start metrics server", map[string]interface{}{"addr": cfg.Metrics.Listen, "error": err.Error()})
			return err
		}
		mgr.Register("metrics server", shutdown.StopHTTPServer(metricsSrv, "metrics"))
		log.Info("Metrics server listening", map[string]interface{}{"addr": cfg.Metrics.Listen})
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Chain(chain),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if cfg.Server.TLS.Enabled {
		srv.TLSConfig, err = tlsutil.ServerConfig(cfg.Server.TLS, log.WithComponent("tls"))
		if err != nil {
			log.Error("Failed to configure TLS", map[string]interface{}{"error": err.Error()})
			mgr.Shutdown()
			return err
		}
	}
	if err := listenAndServe(srv, serveErr); err != nil {
		if errors.Is(err, errAddrInUse) {
			log.Error(fmt.Sprintf("Port %d is already in use", cfg.Server.Port))
		} else {
			log.Error("Failed to start server", map[string]interface{}{"error": err.Error()})
		}
		mgr.Shutdown()
		return err
	}
	mgr.Register("http server", shutdown.StopHTTPServer(srv, "api"))

	log.Info("E2E tester listening", map[string]interface{}{
		"addr":        srv.Addr,
		"environment": cfg.Environment,
		"browser":     cfg.Runner.Browser,
		"tls":         cfg.Server.TLS.Enabled,
	})

	go func() {
		select {
		case err := <-serveErr:
			log.Error("Server stopped unexpectedly", map[string]interface{}{"error": err.Error()})
			mgr.Trigger()
		case <-mgr.Done():
		}
	}()

	mgr.Wait(cmd.Context())
	if err := mgr.Shutdown(); errors.Is(err, shutdown.ErrForced) {
		os.Exit(1)
	}
	return nil
}

var errAddrInUse = errors.New("address already in use")

// listenAndServe binds synchronously so bind errors surface before we log
// that the server is up
func listenAndServe(srv *http.Server, errs chan<- error) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %s", errAddrInUse, srv.Addr)
		}
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	go func() {
		serve := srv.Serve
		if srv.TLSConfig != nil {
			serve = func(l net.Listener) error { return srv.ServeTLS(l, "", "") }
		}
		if err := serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	return nil
}
