package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "orion-agent",
	Short:         "Autonomous network health agent",
	Long:          "orion-agent samples router and host telemetry, raises deduplicated alerts,\nrestarts BGP when every session is down and logs an hourly status report.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file (empty for defaults and env only)")
	rootCmd.AddCommand(runCmd, checkCmd, trendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "orion-agent:", err)
		os.Exit(1)
	}
}
