// Command hwbot watches the homework review API and reports status changes
// to a Telegram chat.
//
// Usage:
//
//	hwbot [run] [-c config.yaml]        # start polling (default)
//	hwbot check [--from ts] [--send]     # poll once and print the verdict
//	hwbot validate -c config.yaml        # validate a config file
//	hwbot version                        # show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=1.0.0".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "hwbot",
	Short: "Homework review status notifier",
	Long: `hwbot polls the Practicum homework status API and sends a message to
a Telegram chat whenever the review status of the latest submission changes.

Secrets come from the environment (or a .env file):
  PRACTICUM_TOKEN   OAuth token for the homework API
  TELEGRAM_TOKEN    Bot API token
  TELEGRAM_CHAT_ID  chat that receives the messages`,
	SilenceUsage: true,
	RunE:         runService,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (JSON or YAML, optional)")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "hwbot %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
