package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (server.port -> E2E_SERVER_PORT)
const EnvPrefix = "E2E"

// NewViper returns a viper instance carrying the defaults and env bindings.
// Callers may bind command-line flags onto it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// PORT and NODE_ENV style variables are what existing deployments set.
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("environment", EnvPrefix+"_ENVIRONMENT", "APP_ENV")

	return v
}

// LoadDotEnv loads .env files that exist. Variables already present in the
// process environment win.
func LoadDotEnv(paths ...string) []string {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			loaded = append(loaded, p)
		}
	}
	return loaded
}

// Load reads the optional config file into v and decodes the result.
// An explicit file that does not exist is an error; the implicit search
// locations are optional.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("e2etester")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".e2etester"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Check.Method = strings.ToUpper(cfg.Check.Method)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("environment", d.Environment)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	v.SetDefault("server.idleTimeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdownGrace", d.Server.ShutdownGrace)
	v.SetDefault("server.corsOrigins", d.Server.CORSOrigins)
	v.SetDefault("server.apiKey", d.Server.APIKey)
	v.SetDefault("server.apiKeyHash", d.Server.APIKeyHash)
	v.SetDefault("server.tls.enabled", d.Server.TLS.Enabled)
	v.SetDefault("server.tls.certFile", d.Server.TLS.CertFile)
	v.SetDefault("server.tls.keyFile", d.Server.TLS.KeyFile)
	v.SetDefault("server.tls.clientCAFile", d.Server.TLS.ClientCAFile)
	v.SetDefault("server.tls.autoGenerate", d.Server.TLS.AutoGenerate)
	v.SetDefault("server.tls.hosts", d.Server.TLS.Hosts)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.json", d.Logging.JSON)
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("check.timeout", d.Check.Timeout)
	v.SetDefault("check.maxRedirects", d.Check.MaxRedirects)
	v.SetDefault("check.method", d.Check.Method)
	v.SetDefault("check.userAgent", d.Check.UserAgent)
	v.SetDefault("check.statusPolicy", d.Check.StatusPolicy)

	v.SetDefault("runner.browser", d.Runner.Browser)
	v.SetDefault("runner.headless", d.Runner.Headless)
	v.SetDefault("runner.launchArgs", d.Runner.LaunchArgs)
	v.SetDefault("runner.executablePath", d.Runner.ExecutablePath)
	v.SetDefault("runner.viewportWidth", d.Runner.ViewportWidth)
	v.SetDefault("runner.viewportHeight", d.Runner.ViewportHeight)
	v.SetDefault("runner.userAgent", d.Runner.UserAgent)
	v.SetDefault("runner.navigationTimeout", d.Runner.NavigationTimeout)
	v.SetDefault("runner.networkIdleTimeout", d.Runner.NetworkIdleTimeout)
	v.SetDefault("runner.overallTimeout", d.Runner.OverallTimeout)
	v.SetDefault("runner.evidenceDir", d.Runner.EvidenceDir)
	v.SetDefault("runner.fullPageScreenshot", d.Runner.FullPageScreenshot)
	v.SetDefault("runner.defaultTarget", d.Runner.DefaultTarget)
	v.SetDefault("runner.legacyExpectedTitle", d.Runner.LegacyExpectedTitle)
	v.SetDefault("runner.targetPolicy", d.Runner.TargetPolicy)

	v.SetDefault("rateLimit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rateLimit.rps", d.RateLimit.RPS)
	v.SetDefault("rateLimit.burst", d.RateLimit.Burst)
	v.SetDefault("rateLimit.idleTTL", d.RateLimit.IdleTTL)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.serviceName", d.Tracing.ServiceName)

	v.SetDefault("evidence.retention", d.Evidence.Retention)
	v.SetDefault("evidence.sweepInterval", d.Evidence.SweepInterval)
}
