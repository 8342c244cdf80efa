// Package config defines the single configuration object the service is
// started with. Nothing reads the environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Status policies for the reachability check
const (
	StatusPolicyAny     = "any"
	StatusPolicySuccess = "success"
)

// Target policies for POST /run-test
const (
	TargetPolicyRequest = "request"
	TargetPolicyFixed   = "fixed"
)

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the explicit service configuration
type Config struct {
	Environment string          `mapstructure:"environment" yaml:"environment"`
	Server      ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging     LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Check       CheckConfig     `mapstructure:"check" yaml:"check"`
	Runner      RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	RateLimit   RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit"`
	Metrics     MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Tracing     TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Evidence    EvidenceConfig  `mapstructure:"evidence" yaml:"evidence"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	ReadTimeout   time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout  time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
	IdleTimeout   time.Duration `mapstructure:"idleTimeout" yaml:"idleTimeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdownGrace" yaml:"shutdownGrace"`
	CORSOrigins   []string      `mapstructure:"corsOrigins" yaml:"corsOrigins"`
	APIKey        string        `mapstructure:"apiKey" yaml:"apiKey,omitempty"`
	APIKeyHash    string        `mapstructure:"apiKeyHash" yaml:"apiKeyHash,omitempty"`
	TLS           TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig enables HTTPS on the API listener. ClientCAFile turns on mutual
// TLS; AutoGenerate writes a self-signed pair to CertFile/KeyFile when missing.
type TLSConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	CertFile     string   `mapstructure:"certFile" yaml:"certFile,omitempty"`
	KeyFile      string   `mapstructure:"keyFile" yaml:"keyFile,omitempty"`
	ClientCAFile string   `mapstructure:"clientCAFile" yaml:"clientCAFile,omitempty"`
	AutoGenerate bool     `mapstructure:"autoGenerate" yaml:"autoGenerate"`
	Hosts        []string `mapstructure:"hosts" yaml:"hosts,omitempty"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
}

// CheckConfig configures the URL reachability check
type CheckConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRedirects int           `mapstructure:"maxRedirects" yaml:"maxRedirects"`
	Method       string        `mapstructure:"method" yaml:"method"`
	UserAgent    string        `mapstructure:"userAgent" yaml:"userAgent"`
	// StatusPolicy is "any" (every response counts as accessible) or
	// "success" (only 2xx-3xx).
	StatusPolicy string `mapstructure:"statusPolicy" yaml:"statusPolicy"`
}

// RunnerConfig configures the headless browser runner
type RunnerConfig struct {
	Browser             string        `mapstructure:"browser" yaml:"browser"`
	Headless            bool          `mapstructure:"headless" yaml:"headless"`
	LaunchArgs          []string      `mapstructure:"launchArgs" yaml:"launchArgs"`
	ExecutablePath      string        `mapstructure:"executablePath" yaml:"executablePath,omitempty"`
	ViewportWidth       int           `mapstructure:"viewportWidth" yaml:"viewportWidth"`
	ViewportHeight      int           `mapstructure:"viewportHeight" yaml:"viewportHeight"`
	UserAgent           string        `mapstructure:"userAgent" yaml:"userAgent"`
	NavigationTimeout   time.Duration `mapstructure:"navigationTimeout" yaml:"navigationTimeout"`
	NetworkIdleTimeout  time.Duration `mapstructure:"networkIdleTimeout" yaml:"networkIdleTimeout"`
	OverallTimeout      time.Duration `mapstructure:"overallTimeout" yaml:"overallTimeout"`
	EvidenceDir         string        `mapstructure:"evidenceDir" yaml:"evidenceDir"`
	FullPageScreenshot  bool          `mapstructure:"fullPageScreenshot" yaml:"fullPageScreenshot"`
	DefaultTarget       string        `mapstructure:"defaultTarget" yaml:"defaultTarget"`
	LegacyExpectedTitle string        `mapstructure:"legacyExpectedTitle" yaml:"legacyExpectedTitle"`
	// TargetPolicy is "request" (POST body decides) or "fixed" (always DefaultTarget).
	TargetPolicy string `mapstructure:"targetPolicy" yaml:"targetPolicy"`
}

// RateLimitConfig limits browser runs per client
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	RPS     float64       `mapstructure:"rps" yaml:"rps"`
	Burst   int           `mapstructure:"burst" yaml:"burst"`
	IdleTTL time.Duration `mapstructure:"idleTTL" yaml:"idleTTL"`
}

// EvidenceConfig controls pruning of old screenshots
type EvidenceConfig struct {
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	SweepInterval time.Duration `mapstructure:"sweepInterval" yaml:"sweepInterval"`
}

// MetricsConfig controls the Prometheus listener
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string `mapstructure:"serviceName" yaml:"serviceName"`
}

// Default returns the configuration the service runs with when nothing is set
func Default() Config {
	return Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host:          "",
			Port:          3001,
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  60 * time.Second,
			IdleTimeout:   60 * time.Second,
			ShutdownGrace: 10 * time.Second,
			CORSOrigins:   []string{"*"},
			TLS: TLSConfig{
				CertFile: "./certs/server.crt",
				KeyFile:  "./certs/server.key",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Check: CheckConfig{
			Timeout:      10 * time.Second,
			MaxRedirects: 5,
			Method:       "GET",
			UserAgent:    "Mozilla/5.0 (compatible; E2ETester/1.0)",
			StatusPolicy: StatusPolicyAny,
		},
		Runner: RunnerConfig{
			Browser:             "chromium",
			Headless:            true,
			LaunchArgs:          []string{"--no-sandbox", "--disable-setuid-sandbox", "--disable-dev-shm-usage"},
			ViewportWidth:       1280,
			ViewportHeight:      720,
			UserAgent:           "Playwright E2E Test Runner/1.0",
			NavigationTimeout:   15 * time.Second,
			NetworkIdleTimeout:  5 * time.Second,
			OverallTimeout:      30 * time.Second,
			EvidenceDir:         "./evidence",
			FullPageScreenshot:  true,
			DefaultTarget:       "https://www.google.com",
			LegacyExpectedTitle: "Google",
			TargetPolicy:        TargetPolicyRequest,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     1,
			Burst:   5,
			IdleTTL: 10 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9090",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "e2e-tester",
		},
		Evidence: EvidenceConfig{
			Retention:     7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
	}
}

// Addr returns the HTTP listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether the service runs in production mode
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Validate rejects values the service cannot run with
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownGrace <= 0 {
		add("server.shutdownGrace must be positive")
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		add("server.tls certFile and keyFile are required when TLS is enabled")
	}

	if c.Check.Timeout <= 0 {
		add("check.timeout must be positive")
	}
	if c.Check.MaxRedirects < 0 {
		add("check.maxRedirects must not be negative")
	}
	switch strings.ToUpper(c.Check.Method) {
	case "GET", "HEAD":
	default:
		add("check.method %q must be GET or HEAD", c.Check.Method)
	}
	switch c.Check.StatusPolicy {
	case StatusPolicyAny, StatusPolicySuccess:
	default:
		add("check.statusPolicy %q must be %q or %q", c.Check.StatusPolicy, StatusPolicyAny, StatusPolicySuccess)
	}

	switch c.Runner.Browser {
	case "chromium", "firefox", "webkit":
	default:
		add("runner.browser %q must be chromium, firefox or webkit", c.Runner.Browser)
	}
	if c.Runner.ViewportWidth <= 0 || c.Runner.ViewportHeight <= 0 {
		add("runner viewport must be positive")
	}
	if c.Runner.NavigationTimeout <= 0 || c.Runner.OverallTimeout <= 0 {
		add("runner timeouts must be positive")
	}
	if c.Runner.NetworkIdleTimeout < 0 {
		add("runner.networkIdleTimeout must not be negative")
	}
	if c.Runner.DefaultTarget == "" {
		add("runner.defaultTarget is required")
	}
	switch c.Runner.TargetPolicy {
	case TargetPolicyRequest, TargetPolicyFixed:
	default:
		add("runner.targetPolicy %q must be %q or %q", c.Runner.TargetPolicy, TargetPolicyRequest, TargetPolicyFixed)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		add("rateLimit rps and burst must be positive when enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		add("metrics.listen is required when metrics are enabled")
	}
	if c.Evidence.Retention < 0 || c.Evidence.SweepInterval < 0 {
		add("evidence retention and sweepInterval must not be negative")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		add("tracing.endpoint is required when tracing is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
