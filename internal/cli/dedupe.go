package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bitmapland/indexer/internal/infra/store"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Sort the dataset file and drop duplicate block rows",
	Run:   runDedupe,
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger(cfg)

	dataset, err := store.Open(cfg.Storage.DatasetFile, cfg.Ingest.DedupeEvery, log)
	if err != nil {
		log.Error("Failed to open dataset", "error", err)
		os.Exit(1)
	}

	before, err := dataset.Count()
	if err != nil {
		log.Error("Failed to count dataset rows", "error", err)
		os.Exit(1)
	}
	if err := dataset.SortAndDedupe(); err != nil {
		log.Error("Sort/dedupe failed", "error", err)
		os.Exit(1)
	}
	after, err := dataset.Count()
	if err != nil {
		log.Error("Failed to count dataset rows", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Dataset sorted: %d rows, %d duplicates removed\n", after, before-after)
}
