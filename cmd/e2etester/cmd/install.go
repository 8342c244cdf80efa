package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/psantana5/e2e-tester/pkg/browser"
)

var installCmd = &cobra.Command{
	Use:   "install [browser...]",
	Short: "Download the Playwright driver and browsers",
	Long: `Installs the Playwright driver plus the given browsers (default: the
configured runner.browser). Run once per machine before serve.`,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	browsers := args
	if len(browsers) == 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		browsers = []string{cfg.Runner.Browser}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Installing Playwright driver and %v...\n", browsers)
	if err := browser.Install(browsers...); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("✓ Playwright installed"))
	return nil
}
