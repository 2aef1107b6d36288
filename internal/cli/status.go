package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bitmapland/indexer/internal/core/progress"
	"github.com/bitmapland/indexer/internal/infra/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current ingestion position and dataset size",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	log := newLogger(cfg)

	tracker, err := progress.Load(cfg.Storage.ProgressFile, cfg.Storage.EmptiesFile, cfg.Ingest.StartBlock)
	if err != nil {
		log.Error("Failed to load progress", "error", err)
		os.Exit(1)
	}
	rec := tracker.Record()

	empties, err := tracker.LoadEmpties()
	if err != nil {
		log.Error("Failed to load empties log", "error", err)
		os.Exit(1)
	}

	dataset, err := store.Open(cfg.Storage.DatasetFile, cfg.Ingest.DedupeEvery, log)
	if err != nil {
		log.Error("Failed to open dataset", "error", err)
		os.Exit(1)
	}
	rows, err := dataset.Count()
	if err != nil {
		log.Error("Failed to count dataset rows", "error", err)
		os.Exit(1)
	}
	ordered, err := dataset.ValidateOrder()
	if err != nil {
		log.Error("Failed to validate dataset order", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "LAST BLOCK\tPROCESSED\tROWS\tEMPTIES\tORDERED\tSTARTED")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%t\t%s\n",
		rec.LastProcessedBlock, rec.TotalProcessed, rows, len(empties), ordered, rec.StartTime.Format("2006-01-02"))
	_ = w.Flush()
}
