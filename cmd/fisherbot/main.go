package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	rootCmd := &cobra.Command{
		Use:   "fisherbot",
		Short: "fisherbot - automated fishing loops driven from Telegram",
		Long: `fisherbot runs the fishing and worker loops against the chat bridge,
reacts to replies (money, crates, workers, anti-bot challenges) and keeps the
actor's progress in MySQL or SQLite.

Without a subcommand it runs the bot.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config file (yaml or json)")

	rootCmd.AddCommand(runCmd(&cfgPath))
	rootCmd.AddCommand(migrateCmd(&cfgPath))
	rootCmd.AddCommand(stateCmd(&cfgPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
