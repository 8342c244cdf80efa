package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/e2e-tester/pkg/auth"
	"github.com/psantana5/e2e-tester/pkg/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Resolves defaults, the config file, .env and environment variables the
same way serve does, and prints the result. API keys are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configGenKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate an API key and the bcrypt hash for server.apiKeyHash",
	Args:  cobra.NoArgs,
	RunE:  runConfigGenKey,
}

var configLogrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Print a logrotate config for logging.file",
	Args:  cobra.NoArgs,
	RunE:  runConfigLogrotate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGenKeyCmd)
	configCmd.AddCommand(configLogrotateCmd)

	configLogrotateCmd.Flags().Int("keep", 14, "days of rotated logs to keep")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Server.APIKey != "" {
		cfg.Server.APIKey = "********"
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runConfigGenKey(cmd *cobra.Command, args []string) error {
	key, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "API key:  %s\n", key)
	fmt.Fprintf(cmd.OutOrStdout(), "Hash:     %s\n", hash)
	fmt.Fprintln(cmd.OutOrStdout(), "\nSet server.apiKeyHash (or E2E_SERVER_APIKEYHASH) to the hash and give clients the key.")
	return nil
}

func runConfigLogrotate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Logging.File == "" {
		return fmt.Errorf("logging.file is not set; the service only logs to stdout")
	}
	keep, _ := cmd.Flags().GetInt("keep")
	fmt.Fprint(cmd.OutOrStdout(), logging.GenerateLogrotateConfig(cfg.Logging.File, keep))
	return nil
}
