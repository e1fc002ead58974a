package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codbot",
	Short: "codbot is a Call of Duty stats Telegram bot",
	Long: `codbot proxies the Call of Duty statistics API into Telegram. It polls
the Telegram Bot API for updates, routes slash-commands to per-account
sessions, and periodically pushes activity and match feeds into subscribed
chats.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}
