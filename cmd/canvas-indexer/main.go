package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pubky-canvas/indexer/cmd/canvas-indexer/commands"
	"github.com/pubky-canvas/indexer/logger"
)

var rootCmd = &cobra.Command{
	Use:   "canvas-indexer",
	Short: "canvas-indexer aggregates pixel placements from homeservers into a shared canvas",
	Long: `canvas-indexer pulls append-only pixel placement events from per-user
homeserver object stores, enforces per-user credit-rate limits, materializes
a shared pixel grid, and serves it over a read-only HTTP API with live SSE
updates.

Available commands:
  serve    - Start the watcher loop and HTTP API
  version  - Show version information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Bootstrap logger so early-startup messages (including config load
		// failures) are not silently dropped; serve reinitializes this with
		// the loaded logging.json/logging.level once config is available.
		if err := logger.Initialize(false, "info"); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity")
	rootCmd.PersistentFlags().String("config", "", "Path to config.toml")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
