package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:     "agentd",
	Short:   "Per-user social content pipeline daemon",
	Version: version,
	Long: `agentd schedules and runs per-user content cycles: fetch candidate
stories, pick one, research it, synthesize a long-form post with a chart,
and publish to the user's configured platforms.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(userCmd)
}
