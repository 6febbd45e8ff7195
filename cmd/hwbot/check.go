package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"hwbot/internal/app"
	"hwbot/internal/config"
	logx "hwbot/pkg/logx"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Poll the homework API once and print the verdict",
	Long: `Fetch statuses changed since --from (unix seconds, default now),
print the verdict for the latest homework and, with --send, deliver it to
the configured chat. The stored cursor is not touched.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Int64("from", 0, "from_date as unix seconds (0 = now)")
	checkCmd.Flags().Bool("send", false, "send the verdict to the configured chat")
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := loadEnv(cmd); err != nil {
		return err
	}
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetInt64("from")
	send, _ := cmd.Flags().GetBool("send")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	log := logx.NewConsole(cfg.Logging.Level)
	return app.Check(ctx, cfg, app.CheckOptions{From: from, Send: send}, cmd.OutOrStdout(), log)
}
