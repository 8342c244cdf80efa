package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/e2e-tester/pkg/client"
	"github.com/psantana5/e2e-tester/pkg/config"
)

var (
	cfgFile      string
	serverURL    string
	outputFormat string
	apiKey       string
	timeout      time.Duration
	caCert       string
)

// v carries defaults, env bindings and flags; config.Load decodes it
var v = config.NewViper()

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "e2etester",
	Short: "Headless browser checks over HTTP",
	Long: `e2etester runs a small HTTP service that checks whether URLs are reachable
and loads them in a headless browser, plus client commands to drive it.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./e2etester.yaml or $HOME/.e2etester/e2etester.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "tester API URL for client commands (default http://localhost:<server.port>)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key sent as a bearer token (env E2E_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "client request timeout")
	rootCmd.PersistentFlags().StringVar(&caCert, "ca-cert", "", "CA certificate to trust when the server uses HTTPS")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig loads .env before anything reads the environment
func initConfig() {
	config.LoadDotEnv()
	_ = v.BindEnv("client.apiKey", "E2E_API_KEY")
	_ = v.BindEnv("client.server", "E2E_SERVER_URL")
}

func loadConfig() (config.Config, error) {
	return config.Load(v, cfgFile)
}

// GetServerURL resolves the API URL from flag, env, then the configured port
func GetServerURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	if u := v.GetString("client.server"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return fmt.Sprintf("http://localhost:%d", v.GetInt("server.port"))
}

// GetAPIKey returns the configured API key
func GetAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	return v.GetString("client.apiKey")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if key := GetAPIKey(); key != "" {
		opts = append(opts, client.WithAPIKey(key))
	}
	if timeout > 0 || caCert != "" {
		hc, err := newHTTPClient(timeout, caCert)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithHTTPClient(hc))
	}
	return client.New(GetServerURL(), opts...), nil
}
