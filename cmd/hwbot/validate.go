package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hwbot/internal/config"
	"hwbot/internal/poller"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a configuration file without starting the service.

Exit codes:
  0 - config is valid
  1 - config is invalid (error printed to stderr)

Missing secrets are reported but do not fail validation, since they are
usually supplied by the environment at runtime.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		return errors.New("--config is required")
	}
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	sched, err := poller.ParseSchedule(cfg.Poll.Schedule)
	if err != nil {
		return fmt.Errorf("invalid config: poll.schedule: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Config is valid!")
	fmt.Fprintf(out, "  Endpoint:  %s\n", cfg.Practicum.Endpoint)
	fmt.Fprintf(out, "  Schedule:  %s (%s)\n", sched, sched.Source)
	fmt.Fprintf(out, "  Commands:  %v\n", cfg.Telegram.Commands)
	storage := "none"
	if cfg.Storage != nil && cfg.Storage.Driver != "" {
		storage = cfg.Storage.Driver
	}
	fmt.Fprintf(out, "  Storage:   %s\n", storage)
	var mse *config.MissingSecretsError
	if err := config.RequireSecrets(cfg); errors.As(err, &mse) {
		fmt.Fprintf(out, "  Missing secrets: %v\n", mse.Names)
	}
	return nil
}
