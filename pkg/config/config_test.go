package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownGrace)
	assert.Equal(t, 10*time.Second, cfg.Check.Timeout)
	assert.Equal(t, StatusPolicyAny, cfg.Check.StatusPolicy)
	assert.Equal(t, 15*time.Second, cfg.Runner.NavigationTimeout)
	assert.Equal(t, 5*time.Second, cfg.Runner.NetworkIdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Runner.OverallTimeout)
	assert.Equal(t, "https://www.google.com", cfg.Runner.DefaultTarget)
	assert.Contains(t, cfg.Runner.LaunchArgs, "--no-sandbox")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	file := filepath.Join(dir, "custom.yaml")
	body := `
check:
  timeout: 15s
  statusPolicy: success
runner:
  targetPolicy: fixed
  launchArgs: ["--no-sandbox"]
`
	require.NoError(t, os.WriteFile(file, []byte(body), 0644))

	t.Setenv("PORT", "5000")
	t.Setenv("E2E_CHECK_MAXREDIRECTS", "2")

	cfg, err := Load(NewViper(), file)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Check.Timeout)
	assert.Equal(t, StatusPolicySuccess, cfg.Check.StatusPolicy)
	assert.Equal(t, 2, cfg.Check.MaxRedirects)
	assert.Equal(t, TargetPolicyFixed, cfg.Runner.TargetPolicy)
	assert.Equal(t, []string{"--no-sandbox"}, cfg.Runner.LaunchArgs)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("E2E_TEST_DOTENV_MARKER=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("E2E_TEST_DOTENV_MARKER") })

	loaded := LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	assert.Equal(t, []string{path}, loaded)
	assert.Equal(t, "loaded", os.Getenv("E2E_TEST_DOTENV_MARKER"))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"port":          func(c *Config) { c.Server.Port = 0 },
		"check timeout": func(c *Config) { c.Check.Timeout = 0 },
		"method":        func(c *Config) { c.Check.Method = "POST" },
		"status policy": func(c *Config) { c.Check.StatusPolicy = "2xx" },
		"browser":       func(c *Config) { c.Runner.Browser = "lynx" },
		"target policy": func(c *Config) { c.Runner.TargetPolicy = "random" },
		"overall":       func(c *Config) { c.Runner.OverallTimeout = -time.Second },
		"rate limit":    func(c *Config) { c.RateLimit.Burst = 0 },
		"tls files": func(c *Config) {
			c.Server.TLS.Enabled = true
			c.Server.TLS.CertFile = ""
		},
		"retention":     func(c *Config) { c.Evidence.Retention = -time.Hour },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
