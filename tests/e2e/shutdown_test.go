package e2e

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bitmapland/indexer/internal/control"
)

// TestGracefulShutdown starts the indexer with no live feed and an
// unreachable provider, lets it idle, and verifies Stop returns cleanly
// with the progress document persisted.
func TestGracefulShutdown(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, "http://127.0.0.1:1", "")
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	app, err := control.NewIndexer(cfg, log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.Start(ctx))

	time.Sleep(100 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, app.Stop(stopCtx))

	rec := readProgress(t, cfg.Storage.ProgressFile)
	require.Equal(t, cfg.Ingest.StartBlock-1, rec.LastProcessedBlock)

	// Dataset file exists with just the header.
	data, err := os.ReadFile(cfg.Storage.DatasetFile)
	require.NoError(t, err)
	require.Equal(t, "block_number,inscription_id,sat\n", string(data))
}
