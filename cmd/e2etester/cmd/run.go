package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/e2e-tester/pkg/models"
	tlsutil "github.com/psantana5/e2e-tester/pkg/tls"
)

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Run a headless browser test against a URL",
	Long: `Asks the tester service to load the URL in a fresh headless browser,
read its title and capture a screenshot.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Run the service's default browser test",
	Long:  `Triggers GET /run-test: the configured default target with its expected title.`,
	Args:  cobra.NoArgs,
	RunE:  runLegacy,
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check whether a URL is reachable",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show service health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(legacyCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(healthCmd)
}

func newHTTPClient(d time.Duration, caFile string) (*http.Client, error) {
	hc := &http.Client{Timeout: d}
	if caFile == "" {
		return hc, nil
	}
	tlsConfig, err := tlsutil.ClientConfig(caFile)
	if err != nil {
		return nil, err
	}
	hc.Transport = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsConfig,
	}
	return hc, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	res, err := c.RunTest(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to run test: %w", err)
	}
	return printTestResult(cmd.OutOrStdout(), res)
}

func runLegacy(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	res, err := c.RunDefaultTest(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to run test: %w", err)
	}
	return printTestResult(cmd.OutOrStdout(), res)
}

func runCheck(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	res, err := c.CheckURL(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to check URL: %w", err)
	}
	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	if res.Success {
		fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ %s: %s", args[0], res.Message))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.RedString("✗ %s: %s", args[0], res.Message))
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	res, err := c.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	if IsJSONOutput() {
		return writeJSON(cmd.OutOrStdout(), res)
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Field", "Value")
	table.Append("Service", res.Service)
	table.Append("Status", res.Status)
	table.Append("Uptime", (time.Duration(res.Uptime * float64(time.Second))).Round(time.Second).String())
	table.Append("Timestamp", res.Timestamp)
	return table.Render()
}

func printTestResult(w io.Writer, res *models.TestResult) error {
	if IsJSONOutput() {
		return writeJSON(w, res)
	}

	status := color.GreenString("PASSED")
	if !res.Success {
		status = color.RedString("FAILED")
	}

	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	table.Append("Result", status)
	table.Append("Message", res.Message)
	if res.Title != "" {
		table.Append("Title", res.Title)
	}
	if res.Evidence != nil {
		table.Append("Screenshot", res.Evidence.Screenshot)
	}
	if res.Error != nil {
		table.Append("Error", res.Error.Name)
	}
	table.Append("Timestamp", res.Timestamp)
	return table.Render()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
