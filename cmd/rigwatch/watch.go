package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gastown-ops/rigwatch/internal/tui"
)

var watchBaseURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Attach a terminal dashboard to a running rigwatch service",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchBaseURL, "url", "http://localhost:3001", "base URL of the running rigwatch service")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !tui.IsInteractive() {
		fmt.Fprintln(os.Stderr, "rigwatch watch: stdout is not a terminal, falling back to plain output")
		return runWatchPlain(ctx)
	}
	return tui.Run(ctx, watchBaseURL)
}

// runWatchPlain prints one line per frame instead of drawing the full
// dashboard, for piped/non-TTY invocations (cron, CI logs, `| tee`).
func runWatchPlain(ctx context.Context) error {
	for frame := range tui.Stream(ctx, watchBaseURL) {
		fmt.Printf("%s [%s] %v\n", frame.Timestamp.Format("2006-01-02T15:04:05"), frame.Type, frame.Data)
	}
	return nil
}
