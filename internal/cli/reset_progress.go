package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bitmapland/indexer/internal/core/progress"
)

var resetProgressCmd = &cobra.Command{
	Use:   "reset-progress [block_number]",
	Short: "Reset the last-processed marker to a given block",
	Long: `Reset the last-processed marker so the next run rescans from the
given block. Confirmed-empty blocks stay excluded; delete the empties
log too for a full re-fetch.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetProgress,
}

func init() {
	rootCmd.AddCommand(resetProgressCmd)
}

func runResetProgress(cmd *cobra.Command, args []string) {
	block, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block number: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()

	tracker, err := progress.Load(cfg.Storage.ProgressFile, cfg.Storage.EmptiesFile, cfg.Ingest.StartBlock)
	if err != nil {
		slog.Error("Failed to load progress", "error", err)
		os.Exit(1)
	}

	if err := tracker.Reset(block); err != nil {
		slog.Error("Failed to reset progress", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset progress marker to block %d\n", block)
}
