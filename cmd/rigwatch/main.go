// Command rigwatch is the real-time observability service for a fleet
// of gt/bd-managed rigs: it polls and tails each rig's state, derives
// metrics/health/anomalies/forecasts, and serves both an HTTP read API
// and a terminal dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rigwatch",
	Short: "Real-time observability for a gt/bd rig fleet",
	Long: `rigwatch watches a fleet of autonomous coding agents (rigs, mayors,
witnesses, refineries, crew and polecats, all coordinated through
gt/bd) and turns their raw state into metrics, health scores, alerts
and a live event feed.

  rigwatch serve   run the service: ingestion, metrics, alerting,
                   fan-out and the HTTP read API
  rigwatch watch   attach a terminal dashboard to a running service`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to rigwatch.toml (defaults to $GT_DIR/rigwatch.toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rigwatch: "+err.Error())
		os.Exit(1)
	}
}
